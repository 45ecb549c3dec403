// Package session holds the report form controller: one Session per form-fill,
// owning the active position, the map presenter and the form binder.
//
// A Session is safe for concurrent use. Its mutex is never held across a
// network call; every locate, drag and address search takes a request id, and
// a result is applied only if its id is still the latest.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/nexahealth-reporter/internal/adapter/backend"
	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
	"github.com/couchcryptid/nexahealth-reporter/internal/observability"
)

// State is the form's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateLocating   State = "locating"
	StateLocated    State = "located"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

var (
	// ErrBusy is returned when a submission is already in flight.
	ErrBusy = errors.New("submission already in progress")
	// ErrSuperseded is returned when a newer request replaced this one's result.
	ErrSuperseded = errors.New("superseded by a newer request")
)

// Status texts shown with the map.
const (
	LabelCustomLocation = "Custom location set"
	LabelLookupFailed   = "Location found but address lookup failed"
	LabelFromAddress    = "Location updated from address"
)

// MinSearchLength is the shortest street address that triggers a search.
const MinSearchLength = 6

// Submitter sends a multipart report body to the backend.
type Submitter interface {
	SubmitReport(ctx context.Context, body io.Reader, contentType string) (backend.SubmitResult, error)
}

// ReportPublisher announces accepted reports.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report domain.SubmittedReport) error
}

// RejectedError is a submission the backend answered with a non-success status.
type RejectedError struct {
	Status  string
	Message string
}

func (e *RejectedError) Error() string {
	return "report rejected: " + e.Message
}

func (e *RejectedError) Unwrap() error { return domain.ErrServerError }

// Options parameterize behavior that differed between form variants.
type Options struct {
	// GeocodeOnDrag reverse geocodes the new pin position after a drag.
	GeocodeOnDrag bool
	Tiers         []domain.Tier
	TileURL       string
}

// DefaultOptions returns the standard form behavior.
func DefaultOptions() Options {
	return Options{
		GeocodeOnDrag: true,
		Tiers:         domain.DefaultTiers,
		TileURL:       DefaultTileURL,
	}
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Geocoder  domain.Geocoder
	Coarse    domain.CoarseLocator
	Submitter Submitter
	Publisher ReportPublisher // optional
	Clock     clockwork.Clock
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Session is one form-fill session.
type Session struct {
	id   string
	opts Options
	deps Deps

	mu        sync.Mutex
	state     State
	seq       uint64
	position  *domain.Position
	form      Form
	mapView   *MapView
	lastErr   error
	lastSent  *domain.SubmittedReport
	updatedAt time.Time
}

// New creates an idle session.
func New(id string, opts Options, deps Deps) *Session {
	if len(opts.Tiers) == 0 {
		opts.Tiers = domain.DefaultTiers
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Session{
		id:        id,
		opts:      opts,
		deps:      deps,
		state:     StateIdle,
		mapView:   NewMapView(opts.TileURL),
		updatedAt: deps.Clock.Now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// begin starts a position request and returns its id.
func (s *Session) begin(state State) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if s.state != StateSubmitting && state != "" {
		s.state = state
	}
	s.touch()
	return s.seq
}

// current reports whether id is still the latest request. Callers hold mu.
func (s *Session) current(id uint64, op string) bool {
	if id == s.seq {
		return true
	}
	s.deps.Metrics.StaleResults.WithLabelValues(op).Inc()
	s.deps.Logger.Debug("dropping stale result", "session", s.id, "operation", op, "request", id, "latest", s.seq)
	return false
}

func (s *Session) touch() {
	s.updatedAt = s.deps.Clock.Now()
}

// settle returns the state after a failed position request. Callers hold mu.
func (s *Session) settle() {
	if s.state == StateSubmitting {
		return
	}
	if s.position != nil {
		s.state = StateLocated
	} else {
		s.state = StateIdle
	}
}

// setPosition replaces the active position, the hidden inputs and the marker.
// Callers hold mu.
func (s *Session) setPosition(pos domain.Position, popup string) {
	p := pos
	s.position = &p
	s.form.SetPosition(pos)
	s.form.LocationLabel = popup
	s.mapView.PlaceMarker(pos, popup)
	if s.state != StateSubmitting {
		s.state = StateLocated
	}
}

// Locate acquires a position through the tier cascade and the IP fallback,
// reverse geocodes it and fills the form. A nil src means geolocation is
// unavailable.
func (s *Session) Locate(ctx context.Context, src domain.PositionSource) (Snapshot, error) {
	id := s.begin(StateLocating)

	onAttempt := func(tier domain.Tier, err error) {
		outcome := "success"
		if err != nil {
			outcome = string(domain.Classify(err))
		}
		s.deps.Metrics.LocateAttempts.WithLabelValues(tier.Name, outcome).Inc()
	}
	out, err := domain.LocateWithFallback(ctx, src, s.deps.Coarse, s.opts.Tiers, onAttempt)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.current(id, "locate") {
			return s.snapshotLocked(), ErrSuperseded
		}
		s.lastErr = err
		s.settle()
		s.deps.Logger.Warn("locate failed", "session", s.id, "kind", domain.Classify(err), "error", err)
		return s.snapshotLocked(), err
	}
	// An IP fix is a city centroid: its label stands in for the address and
	// nothing is reverse geocoded into the form.
	if out.Fallback {
		s.deps.Metrics.LocateFallbacks.Inc()
		s.deps.Logger.Info("using ip location", "session", s.id, "cause", out.Cause)
		label := out.Label
		if label == "" {
			label = out.Position.Near()
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.current(id, "locate") {
			return s.snapshotLocked(), ErrSuperseded
		}
		s.lastErr = nil
		s.setPosition(out.Position, label)
		s.form.StreetAddress = label
		s.touch()
		return s.snapshotLocked(), nil
	}

	res := domain.ResolveAddress(ctx, out.Position, s.deps.Geocoder, s.deps.Logger)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(id, "locate") {
		return s.snapshotLocked(), ErrSuperseded
	}
	s.lastErr = nil
	s.setPosition(out.Position, res.DisplayAddress)
	s.form.ApplyGeocode(res)
	if res.Synthetic {
		s.form.LocationLabel = LabelLookupFailed
	}
	s.touch()
	return s.snapshotLocked(), nil
}

// MovePin handles a marker drag. The new position replaces the old one at
// once; the address is refreshed afterwards when GeocodeOnDrag is set.
func (s *Session) MovePin(ctx context.Context, pos domain.Position) (Snapshot, error) {
	if !pos.Valid() {
		return s.Snapshot(), fmt.Errorf("invalid coordinates %v,%v: %w", pos.Lat, pos.Lon, domain.ErrValidation)
	}
	pos.Source = domain.SourcePin

	s.mu.Lock()
	s.seq++
	id := s.seq
	s.lastErr = nil
	s.setPosition(pos, LabelCustomLocation)
	s.touch()
	if !s.opts.GeocodeOnDrag {
		defer s.mu.Unlock()
		return s.snapshotLocked(), nil
	}
	s.mu.Unlock()

	res := domain.ResolveAddress(ctx, pos, s.deps.Geocoder, s.deps.Logger)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(id, "move") {
		return s.snapshotLocked(), ErrSuperseded
	}
	s.form.ApplyGeocode(res)
	s.mapView.SetPopup(res.DisplayAddress)
	if res.Synthetic {
		s.form.LocationLabel = LabelLookupFailed
	}
	return s.snapshotLocked(), nil
}

// SearchAddress forward geocodes a typed street address and moves the pin.
func (s *Session) SearchAddress(ctx context.Context, query string) (Snapshot, error) {
	query = strings.TrimSpace(query)
	if len(query) < MinSearchLength {
		return s.Snapshot(), &domain.ValidationError{Fields: []string{"street-address"}}
	}
	if s.deps.Geocoder == nil {
		return s.Snapshot(), fmt.Errorf("address search unavailable: %w", domain.ErrNetworkUnreachable)
	}

	id := s.begin("")
	pos, res, err := s.deps.Geocoder.Search(ctx, query)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(id, "search") {
		return s.snapshotLocked(), ErrSuperseded
	}
	if err != nil {
		s.lastErr = err
		s.form.StreetAddress = query
		return s.snapshotLocked(), fmt.Errorf("search address: %w", err)
	}
	pos.Source = domain.SourceAddress
	s.lastErr = nil
	s.setPosition(pos, res.DisplayAddress)
	s.form.ApplyGeocode(res)
	if res.DisplayAddress == "" {
		s.form.StreetAddress = query
	}
	s.form.LocationLabel = LabelFromAddress
	return s.snapshotLocked(), nil
}

// UpdateFields sets user-entered form values.
func (s *Session) UpdateFields(in FormFields) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.form.Apply(in)
	if s.state == StateFailed {
		s.lastErr = nil
		s.settle()
	}
	s.touch()
	return s.snapshotLocked()
}

// AttachImage sets the single report image, replacing any previous one.
func (s *Session) AttachImage(img domain.Attachment) error {
	if err := img.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.form.Image = &img
	s.touch()
	return nil
}

// RemoveImage drops the attached image.
func (s *Session) RemoveImage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.form.Image = nil
	s.touch()
}

// SubmitOutcome is an accepted submission.
type SubmitOutcome struct {
	Report  domain.SubmittedReport `json:"report"`
	Message string                 `json:"message"`
}

// Submit validates the form, posts it and, on success, resets the session.
// Validation failures make no network call. A second Submit while one is in
// flight returns ErrBusy.
func (s *Session) Submit(ctx context.Context) (SubmitOutcome, error) {
	s.mu.Lock()
	if s.state == StateSubmitting {
		s.mu.Unlock()
		return SubmitOutcome{}, ErrBusy
	}
	if err := s.form.Validate(); err != nil {
		s.lastErr = err
		s.mu.Unlock()
		s.deps.Metrics.ValidationFailures.Inc()
		return SubmitOutcome{}, err
	}
	var body bytes.Buffer
	contentType, err := s.form.Multipart(&body)
	if err != nil {
		s.mu.Unlock()
		return SubmitOutcome{}, err
	}
	draft := s.form.Draft()
	s.state = StateSubmitting
	s.touch()
	s.mu.Unlock()

	res, err := s.deps.Submitter.SubmitReport(ctx, &body, contentType)
	if err == nil && !res.Accepted() {
		msg := res.Message
		if msg == "" {
			msg = "Error submitting report"
		}
		err = &RejectedError{Status: res.Status, Message: msg}
	}

	s.mu.Lock()
	if err != nil {
		s.state = StateFailed
		s.lastErr = err
		s.touch()
		s.mu.Unlock()
		outcome := "error"
		var rej *RejectedError
		if errors.As(err, &rej) {
			outcome = "rejected"
		}
		s.deps.Metrics.Submissions.WithLabelValues(outcome).Inc()
		s.deps.Logger.Warn("report submission failed", "session", s.id, "kind", domain.Classify(err), "error", err)
		return SubmitOutcome{}, err
	}

	report := domain.NewSubmittedReport(uuid.NewString(), draft, res.Message, s.deps.Clock.Now())
	s.state = StateSuccess
	s.lastSent = &report
	s.clearLocked()
	s.state = StateIdle
	s.mu.Unlock()

	s.deps.Metrics.Submissions.WithLabelValues("success").Inc()
	s.deps.Logger.Info("report submitted", "session", s.id, "report", report.ID)
	s.publish(ctx, report)
	return SubmitOutcome{Report: report, Message: res.Message}, nil
}

func (s *Session) publish(ctx context.Context, report domain.SubmittedReport) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.PublishReport(ctx, report); err != nil {
		s.deps.Metrics.EventsPublished.WithLabelValues("error").Inc()
		s.deps.Logger.Error("failed to publish submitted report", "report", report.ID, "error", err)
		return
	}
	s.deps.Metrics.EventsPublished.WithLabelValues("success").Inc()
}

// Reset clears the form and the marker and cancels pending position results.
func (s *Session) Reset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.state = StateIdle
	s.lastErr = nil
	return s.snapshotLocked()
}

// clearLocked empties the form and marker and invalidates in-flight requests.
func (s *Session) clearLocked() {
	s.seq++
	s.form.Reset()
	s.position = nil
	s.mapView.RemoveMarker()
	s.touch()
}

// MapGeoJSON renders the map presenter.
func (s *Session) MapGeoJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapView.GeoJSON()
}

// UpdatedAt is the time of the last change.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}
