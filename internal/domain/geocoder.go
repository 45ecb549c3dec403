package domain

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNoResults is returned by an address search that matched nothing.
var ErrNoResults = errors.New("no geocoding results")

// GeocodeResult contains address data returned by a geocoding provider.
type GeocodeResult struct {
	DisplayAddress string          `json:"display_address"`
	DisplayName    string          `json:"display_name,omitempty"` // provider's full label
	Road           string          `json:"road,omitempty"`
	State          string          `json:"state,omitempty"`
	LGA            string          `json:"lga,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
	Synthetic      bool            `json:"synthetic,omitempty"` // built from coordinates, not a provider
}

// ReverseGeocoder converts coordinates to an address.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, pos Position) (GeocodeResult, error)
}

// AddressSearcher converts a free-text address to a position.
type AddressSearcher interface {
	Search(ctx context.Context, query string) (Position, GeocodeResult, error)
}

// Geocoder is both directions.
type Geocoder interface {
	ReverseGeocoder
	AddressSearcher
}
