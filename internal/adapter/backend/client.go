package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
	"github.com/couchcryptid/nexahealth-reporter/internal/observability"
)

// maxErrorBody caps how much of a failed response is kept in an APIError.
const maxErrorBody = 512

// Client calls the reporting backend's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a backend API client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     logger,
	}
}

// APIError is a non-2xx or undecodable backend response.
type APIError struct {
	Endpoint string
	Status   int
	Body     string
	// Message is the backend's own "message" field, when the body carried one.
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend API error: %s: status %d: %s", e.Endpoint, e.Status, e.Message)
	}
	if e.Body == "" {
		return fmt.Sprintf("backend API error: %s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("backend API error: %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

func (e *APIError) Unwrap() error { return domain.ErrServerError }

// CheckReadiness probes the backend root endpoint.
func (c *Client) CheckReadiness(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/", nil, nil)
	if err != nil {
		return err
	}
	return c.do(req, "root", nil)
}

// newRequest builds a request for path with an optional query and JSON body.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req and decodes a JSON response into out when out is non-nil.
// Transport failures wrap ErrNetworkUnreachable; bad statuses and bodies
// become *APIError.
func (c *Client) do(req *http.Request, endpoint string, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.BackendDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s request: %w: %w", endpoint, domain.ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("backend request failed", "endpoint", endpoint, "status", resp.StatusCode)
		apiErr := &APIError{Endpoint: endpoint, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &msg) == nil {
			apiErr.Message = msg.Message
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, &APIError{Endpoint: endpoint, Status: resp.StatusCode, Body: err.Error()})
	}
	return nil
}
