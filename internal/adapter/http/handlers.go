package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/nexahealth-reporter/internal/adapter/backend"
	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
	"github.com/couchcryptid/nexahealth-reporter/internal/nearby"
	"github.com/couchcryptid/nexahealth-reporter/internal/session"
)

// NearbyLookup finds places around a position.
type NearbyLookup interface {
	Lookup(ctx context.Context, pos domain.Position, device backend.Device) (nearby.Result, error)
}

// FlaggedLister reads the flagged-pharmacy listing.
type FlaggedLister interface {
	GetFlagged(ctx context.Context, q backend.FlaggedQuery) (backend.FlaggedPage, error)
	GetPharmacyReports(ctx context.Context, pharmacy string) (backend.PharmacyReports, error)
}

// Companion is the AI chat and feedback surface.
type Companion interface {
	Ask(ctx context.Context, message, language string) (string, error)
	History(ctx context.Context) ([]backend.HistoryEntry, error)
	ClearHistory(ctx context.Context) error
	SendFeedback(ctx context.Context, fb backend.Feedback) (backend.FeedbackReceipt, error)
}

var validate = newValidator()

// newValidator reports request fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// maxBody bounds JSON request bodies.
const maxBody = 64 << 10

type errorBody struct {
	Error  string           `json:"error"`
	Kind   domain.ErrorKind `json:"kind,omitempty"`
	Fields []string         `json:"fields,omitempty"`
}

// statusFor maps an error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoResults):
		return http.StatusNotFound
	}
	switch domain.Classify(err) {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindPermissionDenied:
		return http.StatusForbidden
	case domain.KindPositionUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindNetworkUnreachable, domain.KindServerError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error(), Kind: domain.Classify(err)}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v as is.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &domain.ValidationError{Fields: []string{"body"}}
}

// validateStruct runs validator tags and reports failures by JSON field name.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &domain.ValidationError{}
	for _, fe := range fieldErrs {
		verr.Fields = append(verr.Fields, fe.Field())
	}
	return verr
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.svc.Sessions.Get(r.PathValue("id"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		h(w, r, sess)
	}
}

// writeSnapshot answers with the snapshot, or with err's status and the
// snapshot's error fields when err is set.
func (s *Server) writeSnapshot(w http.ResponseWriter, snap session.Snapshot, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// --- sessions ---

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.svc.Sessions.Create()
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Sessions.Delete(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// locateRequest carries the device's answer to a geolocation prompt. An empty
// body means the device has no geolocation.
type locateRequest struct {
	Lat      *float64 `json:"lat" validate:"omitnil,gte=-90,lte=90"`
	Lng      *float64 `json:"lng" validate:"omitnil,gte=-180,lte=180"`
	Accuracy float64  `json:"accuracy" validate:"gte=0"`
	Error    string   `json:"error" validate:"omitempty,oneof=permission_denied position_unavailable timeout"`
}

func (req locateRequest) source() domain.PositionSource {
	switch req.Error {
	case string(domain.KindPermissionDenied):
		return domain.StaticSource{Err: domain.ErrPermissionDenied}
	case string(domain.KindPositionUnavailable):
		return domain.StaticSource{Err: domain.ErrPositionUnavailable}
	case string(domain.KindTimeout):
		return domain.StaticSource{Err: domain.ErrTimeout}
	}
	if req.Lat != nil && req.Lng != nil {
		return domain.StaticSource{Fix: domain.Position{Lat: *req.Lat, Lon: *req.Lng, Accuracy: req.Accuracy}}
	}
	return nil
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req locateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		s.writeError(w, err)
		return
	}
	if (req.Lat == nil) != (req.Lng == nil) {
		s.writeError(w, &domain.ValidationError{Fields: []string{"lat", "lng"}})
		return
	}
	snap, err := sess.Locate(r.Context(), req.source())
	s.writeSnapshot(w, snap, err)
}

type moveRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

func (s *Server) handleMovePin(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		s.writeError(w, err)
		return
	}
	snap, err := sess.MovePin(r.Context(), domain.Position{Lat: *req.Lat, Lon: *req.Lng})
	s.writeSnapshot(w, snap, err)
}

type addressRequest struct {
	Query string `json:"query" validate:"required"`
}

func (s *Server) handleSearchAddress(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		s.writeError(w, err)
		return
	}
	snap, err := sess.SearchAddress(r.Context(), req.Query)
	s.writeSnapshot(w, snap, err)
}

func (s *Server) handleUpdateForm(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req session.FormFields
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.UpdateFields(req))
}

func (s *Server) handleAttachImage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxImageBytes+(1<<20))
	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, &domain.ValidationError{Fields: []string{"image-upload"}})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, domain.MaxImageBytes+1))
	if err != nil {
		s.writeError(w, &domain.ValidationError{Fields: []string{"image-upload"}})
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if err := sess.AttachImage(domain.Attachment{Filename: header.Filename, ContentType: contentType, Data: data}); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleRemoveImage(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	sess.RemoveImage()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	out, err := sess.Submit(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Reset())
}

func (s *Server) handleMap(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	data, err := sess.MapGeoJSON()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// --- lookups ---

func notConfigured(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotImplemented, errorBody{Error: what + " is not configured"})
}

type nearbyResponse struct {
	Places   []backend.Place `json:"places"`
	Source   nearby.Source   `json:"source"`
	StoredAt string          `json:"stored_at"`
	Warning  string          `json:"warning,omitempty"`
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	if s.svc.Nearby == nil {
		notConfigured(w, "nearby lookup")
		return
	}
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	pos := domain.Position{Lat: lat, Lon: lng}
	if errLat != nil || errLng != nil || !pos.Valid() {
		s.writeError(w, &domain.ValidationError{Fields: []string{"lat", "lng"}})
		return
	}

	device := nearby.DeviceFromUserAgent(r.UserAgent())
	if d := r.Header.Get("X-Device-Type"); d == string(backend.DeviceMobile) || d == string(backend.DeviceDesktop) {
		device = backend.Device(d)
	}

	res, err := s.svc.Nearby.Lookup(r.Context(), pos, device)
	if err != nil {
		s.writeError(w, err)
		return
	}
	body := nearbyResponse{Places: res.Places, Source: res.Source, StoredAt: res.StoredAt.UTC().Format(time.RFC3339)}
	if res.Source == nearby.SourceStale {
		body.Warning = "Showing cached results. Data might not be current."
	}
	if body.Places == nil {
		body.Places = []backend.Place{}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleFlagged(w http.ResponseWriter, r *http.Request) {
	if s.svc.Flagged == nil {
		notConfigured(w, "flagged listing")
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	res, err := s.svc.Flagged.GetFlagged(r.Context(), backend.FlaggedQuery{
		Pharmacy:  q.Get("pharmacy"),
		State:     q.Get("state"),
		LGA:       q.Get("lga"),
		Drug:      q.Get("drug"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePharmacyReports(w http.ResponseWriter, r *http.Request) {
	if s.svc.Flagged == nil {
		notConfigured(w, "flagged listing")
		return
	}
	res, err := s.svc.Flagged.GetPharmacyReports(r.Context(), r.PathValue("pharmacy"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- companion ---

type chatRequest struct {
	Message  string `json:"message" validate:"required"`
	Language string `json:"language"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.svc.Companion == nil {
		notConfigured(w, "companion")
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		s.writeError(w, err)
		return
	}
	reply, err := s.svc.Companion.Ask(r.Context(), req.Message, req.Language)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.svc.Companion == nil {
		notConfigured(w, "companion")
		return
	}
	hist, err := s.svc.Companion.History(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if hist == nil {
		hist = []backend.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": hist})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if s.svc.Companion == nil {
		notConfigured(w, "companion")
		return
	}
	if err := s.svc.Companion.ClearHistory(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.svc.Companion == nil {
		notConfigured(w, "companion")
		return
	}
	var fb backend.Feedback
	if err := decodeJSON(r, &fb); err != nil {
		s.writeError(w, err)
		return
	}
	if fb.PageURL == "" {
		fb.PageURL = r.Referer()
	}
	rec, err := s.svc.Companion.SendFeedback(r.Context(), fb)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}
