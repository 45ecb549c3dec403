package session

import (
	"errors"

	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
)

// FormView is the form as rendered to a client. Image bytes are omitted.
type FormView struct {
	DrugName       string `json:"drug_name"`
	NafdacRegNo    string `json:"nafdac_reg_no"`
	PharmacyName   string `json:"pharmacy_name"`
	Description    string `json:"description"`
	State          string `json:"state"`
	LGA            string `json:"lga"`
	LGAPlaceholder string `json:"lga_placeholder"`
	StreetAddress  string `json:"street_address"`
	Latitude       string `json:"latitude"`
	Longitude      string `json:"longitude"`
	Image          string `json:"image,omitempty"`
	LocationLabel  string `json:"location_label"`
}

// Snapshot is a consistent copy of a session's observable state.
type Snapshot struct {
	ID             string                  `json:"id"`
	State          State                   `json:"state"`
	Position       *domain.Position        `json:"position,omitempty"`
	Form           FormView                `json:"form"`
	Marker         *Marker                 `json:"marker,omitempty"`
	MapInitialized bool                    `json:"map_initialized"`
	Center         *domain.Position        `json:"center,omitempty"`
	Zoom           int                     `json:"zoom,omitempty"`
	Error          string                  `json:"error,omitempty"`
	ErrorKind      domain.ErrorKind        `json:"error_kind,omitempty"`
	InvalidFields  []string                `json:"invalid_fields,omitempty"`
	LastSubmitted  *domain.SubmittedReport `json:"last_submitted,omitempty"`
	Request        uint64                  `json:"request"`
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:    s.id,
		State: s.state,
		Form: FormView{
			DrugName:       s.form.DrugName,
			NafdacRegNo:    s.form.NafdacRegNo,
			PharmacyName:   s.form.PharmacyName,
			Description:    s.form.Description,
			State:          s.form.State,
			LGA:            s.form.LGA,
			LGAPlaceholder: s.form.LGAPlaceholder(),
			StreetAddress:  s.form.StreetAddress,
			Latitude:       s.form.Latitude,
			Longitude:      s.form.Longitude,
			LocationLabel:  s.form.LocationLabel,
		},
		MapInitialized: s.mapView.Initialized(),
		LastSubmitted:  s.lastSent,
		Request:        s.seq,
	}
	if s.form.Image != nil {
		snap.Form.Image = s.form.Image.Filename
	}
	if s.position != nil {
		p := *s.position
		snap.Position = &p
	}
	if m, ok := s.mapView.Marker(); ok {
		snap.Marker = &m
	}
	if snap.MapInitialized {
		center, zoom := s.mapView.View()
		snap.Center = &center
		snap.Zoom = zoom
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
		snap.ErrorKind = domain.Classify(s.lastErr)
		var verr *domain.ValidationError
		if errors.As(s.lastErr, &verr) {
			snap.InvalidFields = append([]string(nil), verr.Fields...)
		}
	}
	return snap
}
