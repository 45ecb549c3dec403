package domain

import "time"

// SubmittedReport is the event emitted once the backend accepts a report.
type SubmittedReport struct {
	ID            string    `json:"id"`
	DrugName      string    `json:"drug_name"`
	NafdacRegNo   string    `json:"nafdac_reg_no,omitempty"`
	PharmacyName  string    `json:"pharmacy_name"`
	Description   string    `json:"description"`
	State         string    `json:"state"`
	LGA           string    `json:"lga"`
	StreetAddress string    `json:"street_address,omitempty"`
	Position      *Position `json:"position,omitempty"`
	HasImage      bool      `json:"has_image"`
	ServerMessage string    `json:"server_message,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// NewSubmittedReport snapshots a draft at submission time.
func NewSubmittedReport(id string, d ReportDraft, serverMessage string, at time.Time) SubmittedReport {
	d = d.Trimmed()
	ev := SubmittedReport{
		ID:            id,
		DrugName:      d.DrugName,
		NafdacRegNo:   d.NafdacRegNo,
		PharmacyName:  d.PharmacyName,
		Description:   d.Description,
		State:         d.State,
		LGA:           d.LGA,
		StreetAddress: d.StreetAddress,
		HasImage:      d.Image != nil,
		ServerMessage: serverMessage,
		SubmittedAt:   at.UTC(),
	}
	if d.Position != nil {
		p := *d.Position
		ev.Position = &p
	}
	return ev
}
