package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
)

// Device selects the client class reported to the nearby endpoint.
type Device string

const (
	DeviceMobile  Device = "mobile"
	DeviceDesktop Device = "desktop"
)

// LatLng is a place location as the backend encodes it.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is a pharmacy or clinic near a position.
type Place struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Address        string   `json:"address,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	Website        string   `json:"website,omitempty"`
	OpeningHours   string   `json:"opening_hours,omitempty"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	Location       LatLng   `json:"location"`
}

// GetNearby lists places around pos. The caller bounds the call through ctx.
func (c *Client) GetNearby(ctx context.Context, pos domain.Position, device Device) ([]Place, error) {
	q := url.Values{}
	q.Set("lat", domain.FormatCoordinate(pos.Lat))
	q.Set("lng", domain.FormatCoordinate(pos.Lon))

	req, err := c.newRequest(ctx, http.MethodGet, "/get-nearby", q, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Device-Type", string(device))

	var places []Place
	if err := c.do(req, "get-nearby", &places); err != nil {
		return nil, err
	}
	return places, nil
}
