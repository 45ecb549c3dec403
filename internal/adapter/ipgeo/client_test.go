package ipgeo

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
)

func newTestClient(url string) *Client {
	return NewClient(url, 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func serve(body string, status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestLocateByIP_Success(t *testing.T) {
	srv := serve(`{"latitude": 6.6018, "longitude": 3.3515, "city": "Ikeja", "region": "Lagos"}`, http.StatusOK)
	defer srv.Close()

	pos, lbl, err := newTestClient(srv.URL).LocateByIP(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6.6018, pos.Lat)
	assert.Equal(t, 3.3515, pos.Lon)
	assert.Equal(t, domain.SourceIP, pos.Source)
	assert.Equal(t, "Approximate location: Ikeja, Lagos", lbl)
}

func TestLocateByIP_StringCoordinates(t *testing.T) {
	srv := serve(`{"latitude": "9.0765", "longitude": "7.3986", "city": "Abuja", "region": "FCT"}`, http.StatusOK)
	defer srv.Close()

	pos, _, err := newTestClient(srv.URL).LocateByIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9.0765, pos.Lat)
}

func TestLocateByIP_NoCoordinates(t *testing.T) {
	srv := serve(`{"city": "Ikeja"}`, http.StatusOK)
	defer srv.Close()

	_, _, err := newTestClient(srv.URL).LocateByIP(context.Background())
	assert.ErrorIs(t, err, domain.ErrPositionUnavailable)
}

func TestLocateByIP_ProviderError(t *testing.T) {
	srv := serve(`{"error": true, "reason": "RateLimited"}`, http.StatusOK)
	defer srv.Close()

	_, _, err := newTestClient(srv.URL).LocateByIP(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RateLimited")
}

func TestLocateByIP_ServerError(t *testing.T) {
	srv := serve(`oops`, http.StatusBadGateway)
	defer srv.Close()

	_, _, err := newTestClient(srv.URL).LocateByIP(context.Background())
	assert.ErrorIs(t, err, domain.ErrServerError)
}

func TestLocateByIP_Unreachable(t *testing.T) {
	srv := serve(`{}`, http.StatusOK)
	srv.Close()

	_, _, err := newTestClient(srv.URL).LocateByIP(context.Background())
	assert.ErrorIs(t, err, domain.ErrNetworkUnreachable)
}
