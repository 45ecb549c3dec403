package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/nexahealth-reporter/internal/session"
)

// ReadinessFunc adapts a function to sharedobs.ReadinessChecker.
type ReadinessFunc func(ctx context.Context) error

func (f ReadinessFunc) CheckReadiness(ctx context.Context) error { return f(ctx) }

// Services are the handlers' collaborators. Nil optional services answer 501.
type Services struct {
	Sessions  *session.Registry
	Nearby    NearbyLookup
	Flagged   FlaggedLister
	Companion Companion
}

// Server exposes the report form gateway plus health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	svc        Services
	logger     *slog.Logger
}

// NewServer creates the gateway HTTP server.
func NewServer(addr string, svc Services, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// Locate may walk every geolocation tier before answering.
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		svc:    svc,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.withSession(s.handleSnapshot))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/locate", s.withSession(s.handleLocate))
	mux.HandleFunc("PUT /api/sessions/{id}/position", s.withSession(s.handleMovePin))
	mux.HandleFunc("POST /api/sessions/{id}/address", s.withSession(s.handleSearchAddress))
	mux.HandleFunc("PATCH /api/sessions/{id}/form", s.withSession(s.handleUpdateForm))
	mux.HandleFunc("PUT /api/sessions/{id}/image", s.withSession(s.handleAttachImage))
	mux.HandleFunc("DELETE /api/sessions/{id}/image", s.withSession(s.handleRemoveImage))
	mux.HandleFunc("POST /api/sessions/{id}/submit", s.withSession(s.handleSubmit))
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.withSession(s.handleReset))
	mux.HandleFunc("GET /api/sessions/{id}/map", s.withSession(s.handleMap))

	mux.HandleFunc("GET /api/nearby", s.handleNearby)
	mux.HandleFunc("GET /api/flagged", s.handleFlagged)
	mux.HandleFunc("GET /api/flagged/{pharmacy}/reports", s.handlePharmacyReports)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/history", s.handleHistory)
	mux.HandleFunc("DELETE /api/chat/history", s.handleClearHistory)
	mux.HandleFunc("POST /api/feedback", s.handleFeedback)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
