package session

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
)

// NigerianStates are the values offered by the state selector.
var NigerianStates = []string{
	"Abia", "Adamawa", "Akwa Ibom", "Anambra", "Bauchi", "Bayelsa", "Benue",
	"Borno", "Cross River", "Delta", "Ebonyi", "Edo", "Ekiti", "Enugu",
	"Federal Capital Territory", "Gombe", "Imo", "Jigawa", "Kaduna", "Kano",
	"Katsina", "Kebbi", "Kogi", "Kwara", "Lagos", "Nasarawa", "Niger", "Ogun",
	"Ondo", "Osun", "Oyo", "Plateau", "Rivers", "Sokoto", "Taraba", "Yobe",
	"Zamfara",
}

func squash(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// MatchState returns the selector value equal to name, ignoring case and
// whitespace.
func MatchState(name string) (string, bool) {
	want := squash(name)
	if want == "" {
		return "", false
	}
	for _, s := range NigerianStates {
		if squash(s) == want {
			return s, true
		}
	}
	return "", false
}

// LGAHint is the placeholder shown in the LGA field for a selected state.
func LGAHint(state string) string {
	switch state {
	case "Lagos":
		return "e.g. Ikeja, Surulere, Lagos Island"
	case "Federal Capital Territory":
		return "e.g. Municipal, Bwari, Gwagwalada"
	default:
		return "e.g. Enter your LGA"
	}
}

// Form is the report form as the user sees it: the visible fields, the hidden
// latitude/longitude inputs and the location label under the map.
type Form struct {
	DrugName      string
	NafdacRegNo   string
	PharmacyName  string
	Description   string
	State         string
	LGA           string
	StreetAddress string
	Image         *domain.Attachment

	// Latitude and Longitude are the hidden inputs, empty until a position is set.
	Latitude  string
	Longitude string

	// LocationLabel is the status text shown with the map.
	LocationLabel string
}

// FormFields carries user-entered values. Nil pointers leave a field unchanged.
type FormFields struct {
	DrugName      *string `json:"drug_name,omitempty"`
	NafdacRegNo   *string `json:"nafdac_reg_no,omitempty"`
	PharmacyName  *string `json:"pharmacy_name,omitempty"`
	Description   *string `json:"description,omitempty"`
	State         *string `json:"state,omitempty"`
	LGA           *string `json:"lga,omitempty"`
	StreetAddress *string `json:"street_address,omitempty"`
}

// Apply copies the set fields into the form.
func (f *Form) Apply(in FormFields) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&f.DrugName, in.DrugName)
	set(&f.NafdacRegNo, in.NafdacRegNo)
	set(&f.PharmacyName, in.PharmacyName)
	set(&f.Description, in.Description)
	set(&f.State, in.State)
	set(&f.LGA, in.LGA)
	set(&f.StreetAddress, in.StreetAddress)
}

// SetPosition writes the hidden coordinate inputs.
func (f *Form) SetPosition(pos domain.Position) {
	f.Latitude = domain.FormatCoordinate(pos.Lat)
	f.Longitude = domain.FormatCoordinate(pos.Lon)
}

// Position parses the hidden inputs. It returns nil unless both are set.
func (f *Form) Position() *domain.Position {
	if f.Latitude == "" || f.Longitude == "" {
		return nil
	}
	lat, err := strconv.ParseFloat(f.Latitude, 64)
	if err != nil {
		return nil
	}
	lon, err := strconv.ParseFloat(f.Longitude, 64)
	if err != nil {
		return nil
	}
	return &domain.Position{Lat: lat, Lon: lon}
}

// ApplyGeocode fills state, LGA and street address from a lookup. The state
// is only set when it matches a selector value.
func (f *Form) ApplyGeocode(res domain.GeocodeResult) {
	if state, ok := MatchState(res.State); ok {
		f.State = state
	}
	if res.LGA != "" {
		f.LGA = res.LGA
	}
	if res.DisplayAddress != "" {
		f.StreetAddress = res.DisplayAddress
		f.LocationLabel = res.DisplayAddress
	}
}

// LGAPlaceholder is LGAHint for the current state.
func (f *Form) LGAPlaceholder() string {
	return LGAHint(f.State)
}

// Draft returns the form as a report draft.
func (f *Form) Draft() domain.ReportDraft {
	return domain.ReportDraft{
		DrugName:      f.DrugName,
		NafdacRegNo:   f.NafdacRegNo,
		PharmacyName:  f.PharmacyName,
		Description:   f.Description,
		State:         f.State,
		LGA:           f.LGA,
		StreetAddress: f.StreetAddress,
		Position:      f.Position(),
		Image:         f.Image,
	}
}

// Validate checks the required fields.
func (f *Form) Validate() error {
	return f.Draft().Validate()
}

// Reset clears every field.
func (f *Form) Reset() {
	*f = Form{}
}

// Multipart writes the submission body and returns its content type. Text
// fields are trimmed; coordinates are sent only when both are set.
func (f *Form) Multipart(w io.Writer) (string, error) {
	mw := multipart.NewWriter(w)
	d := f.Draft().Trimmed()

	fields := []struct{ name, value string }{
		{"drug_name", d.DrugName},
		{"nafdac_reg_no", d.NafdacRegNo},
		{"pharmacy_name", d.PharmacyName},
		{"description", d.Description},
		{"state", d.State},
		{"lga", d.LGA},
		{"street_address", d.StreetAddress},
	}
	if f.Latitude != "" && f.Longitude != "" {
		fields = append(fields,
			struct{ name, value string }{"latitude", f.Latitude},
			struct{ name, value string }{"longitude", f.Longitude},
		)
	}
	for _, fld := range fields {
		if err := mw.WriteField(fld.name, fld.value); err != nil {
			return "", fmt.Errorf("write field %s: %w", fld.name, err)
		}
	}

	if img := f.Image; img != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", multipart.FileContentDisposition("image", img.Filename))
		h.Set("Content-Type", img.ContentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return "", fmt.Errorf("create image part: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return "", fmt.Errorf("write image: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}
	return mw.FormDataContentType(), nil
}
