package ipgeo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
)

// Client implements domain.CoarseLocator using an ipapi.co-compatible endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an IP geolocation client.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// LocateByIP returns the approximate position of the caller's public address.
func (c *Client) LocateByIP(ctx context.Context) (domain.Position, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return domain.Position{}, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Position{}, "", fmt.Errorf("ip location request: %w: %w", domain.ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.Position{}, "", fmt.Errorf("ip location API error: status %d: %s: %w", resp.StatusCode, body, domain.ErrServerError)
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return domain.Position{}, "", fmt.Errorf("decode response: %w: %w", domain.ErrServerError, err)
	}
	if r.Error {
		return domain.Position{}, "", fmt.Errorf("ip location: %s: %w", r.Reason, domain.ErrPositionUnavailable)
	}

	lat, latOK := r.Latitude.float()
	lon, lonOK := r.Longitude.float()
	if !latOK || !lonOK || (lat == 0 && lon == 0) {
		return domain.Position{}, "", fmt.Errorf("no coordinates from ip location: %w", domain.ErrPositionUnavailable)
	}

	c.logger.Debug("approximate location from ip", "city", r.City, "region", r.Region)
	return domain.Position{Lat: lat, Lon: lon, Source: domain.SourceIP}, label(r.City, r.Region), nil
}

func label(city, region string) string {
	return fmt.Sprintf("Approximate location: %s, %s", city, region)
}

type response struct {
	Latitude  number `json:"latitude"`
	Longitude number `json:"longitude"`
	City      string `json:"city"`
	Region    string `json:"region"`
	Error     bool   `json:"error"`
	Reason    string `json:"reason"`
}

// number accepts both JSON numbers and numeric strings; providers differ.
type number string

func (n *number) UnmarshalJSON(b []byte) error {
	*n = number(strings.Trim(string(b), `"`))
	return nil
}

func (n number) float() (float64, bool) {
	if n == "" || n == "null" {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(n), 64)
	return v, err == nil
}
