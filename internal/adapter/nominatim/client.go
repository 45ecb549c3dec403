package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
	"github.com/couchcryptid/nexahealth-reporter/internal/observability"
)

const (
	detailZoom = "18"
	coarseZoom = "16"
)

// Client implements domain.Geocoder using the OpenStreetMap Nominatim API.
type Client struct {
	userAgent  string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Nominatim geocoding client. Nominatim's usage policy
// requires an identifying User-Agent.
func NewClient(baseURL, userAgent string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// ReverseGeocode converts a position to an address. Street-level detail is
// requested first; when that answer has no road, city or town it retries once
// at neighbourhood zoom.
func (c *Client) ReverseGeocode(ctx context.Context, pos domain.Position) (domain.GeocodeResult, error) {
	resp, raw, err := c.reverse(ctx, pos, detailZoom)
	if err != nil {
		return domain.GeocodeResult{}, err
	}

	if !resp.Address.hasLocality() {
		c.metrics.GeocodeRequests.WithLabelValues("reverse", "retry").Inc()
		c.logger.Debug("reverse geocode lacks locality, retrying coarser", "lat", pos.Lat, "lon", pos.Lon)
		resp, raw, err = c.reverse(ctx, pos, coarseZoom)
		if err != nil {
			return domain.GeocodeResult{}, err
		}
	}

	if resp.DisplayName == "" && resp.Address.isEmpty() {
		c.metrics.GeocodeRequests.WithLabelValues("reverse", "empty").Inc()
		return domain.GeocodeResult{}, nil
	}

	c.metrics.GeocodeRequests.WithLabelValues("reverse", "success").Inc()
	lga := resp.Address.lga()
	return domain.GeocodeResult{
		DisplayAddress: domain.FormatAddress(resp.Address.Road, lga, resp.Address.State, resp.DisplayName),
		DisplayName:    resp.DisplayName,
		Road:           resp.Address.Road,
		State:          resp.Address.State,
		LGA:            lga,
		Raw:            raw,
	}, nil
}

// Search converts a free-text address to a position, restricted to Nigeria.
func (c *Client) Search(ctx context.Context, query string) (domain.Position, domain.GeocodeResult, error) {
	params := url.Values{
		"format":       {"json"},
		"q":            {query},
		"limit":        {"1"},
		"countrycodes": {"ng"},
	}

	var places []place
	raw, err := c.doRequest(ctx, c.baseURL+"/search?"+params.Encode(), "search", &places)
	if err != nil {
		return domain.Position{}, domain.GeocodeResult{}, err
	}
	if len(places) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues("search", "empty").Inc()
		return domain.Position{}, domain.GeocodeResult{}, domain.ErrNoResults
	}

	p := places[0]
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.Position{}, domain.GeocodeResult{}, fmt.Errorf("parse lat %q: %w", p.Lat, domain.ErrServerError)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.Position{}, domain.GeocodeResult{}, fmt.Errorf("parse lon %q: %w", p.Lon, domain.ErrServerError)
	}

	c.metrics.GeocodeRequests.WithLabelValues("search", "success").Inc()
	pos := domain.Position{Lat: lat, Lon: lon, Source: domain.SourceAddress}
	return pos, domain.GeocodeResult{DisplayAddress: p.DisplayName, DisplayName: p.DisplayName, Raw: raw}, nil
}

func (c *Client) reverse(ctx context.Context, pos domain.Position, zoom string) (reverseResponse, json.RawMessage, error) {
	params := url.Values{
		"format":         {"jsonv2"},
		"lat":            {strconv.FormatFloat(pos.Lat, 'f', -1, 64)},
		"lon":            {strconv.FormatFloat(pos.Lon, 'f', -1, 64)},
		"zoom":           {zoom},
		"addressdetails": {"1"},
	}

	var resp reverseResponse
	raw, err := c.doRequest(ctx, c.baseURL+"/reverse?"+params.Encode(), "reverse", &resp)
	return resp, raw, err
}

func (c *Client) doRequest(ctx context.Context, fullURL, method string, out any) (json.RawMessage, error) {
	start := time.Now()
	defer func() {
		c.metrics.GeocodeAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("%s geocode request: %w: %w", method, domain.ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("read response: %w: %w", domain.ErrNetworkUnreachable, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("nominatim API error: status %d: %s: %w", resp.StatusCode, body, domain.ErrServerError)
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("decode response: %w: %w", domain.ErrServerError, err)
	}
	return body, nil
}

// Nominatim API response types.

type reverseResponse struct {
	DisplayName string  `json:"display_name"`
	Address     address `json:"address"`
	Error       string  `json:"error"`
}

type address struct {
	Road    string `json:"road"`
	Suburb  string `json:"suburb"`
	City    string `json:"city"`
	Town    string `json:"town"`
	Village string `json:"village"`
	County  string `json:"county"`
	State   string `json:"state"`
	Country string `json:"country"`
}

func (a address) hasLocality() bool {
	return a.Road != "" || a.City != "" || a.Town != ""
}

func (a address) isEmpty() bool {
	return a == address{}
}

// lga picks the closest available stand-in for a Local Government Area.
func (a address) lga() string {
	switch {
	case a.County != "":
		return a.County
	case a.City != "":
		return a.City
	default:
		return a.Town
	}
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}
