package domain

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxImageBytes is the largest accepted report image (5 MB).
const MaxImageBytes = 5 << 20

// Attachment is an optional image uploaded with a report.
type Attachment struct {
	Filename    string `field:"image-upload" validate:"required"`
	ContentType string `field:"image-upload" validate:"startswith=image/"`
	Data        []byte `field:"image-upload" validate:"min=1,max=5242880"`
}

// ReportDraft is the field set of one form-fill session. The field tag is the
// form field id reported back on validation failure.
type ReportDraft struct {
	DrugName      string      `field:"drug-name" validate:"required"`
	NafdacRegNo   string      `field:"nafdac-number"`
	PharmacyName  string      `field:"pharmacy-name" validate:"required"`
	Description   string      `field:"description" validate:"required"`
	State         string      `field:"state" validate:"required"`
	LGA           string      `field:"lga" validate:"required"`
	StreetAddress string      `field:"street-address"`
	Position      *Position   `field:"-"`
	Image         *Attachment `field:"image-upload" validate:"omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("field"); name != "" && name != "-" {
			return name
		}
		return f.Name
	})
	return v
}

// Trimmed returns a copy with surrounding whitespace removed from text fields.
func (d ReportDraft) Trimmed() ReportDraft {
	d.DrugName = strings.TrimSpace(d.DrugName)
	d.NafdacRegNo = strings.TrimSpace(d.NafdacRegNo)
	d.PharmacyName = strings.TrimSpace(d.PharmacyName)
	d.Description = strings.TrimSpace(d.Description)
	d.State = strings.TrimSpace(d.State)
	d.LGA = strings.TrimSpace(d.LGA)
	d.StreetAddress = strings.TrimSpace(d.StreetAddress)
	return d
}

// Validate checks required fields on the trimmed draft. It returns a
// *ValidationError naming every invalid field id, or nil.
func (d ReportDraft) Validate() error {
	err := validate.Struct(d.Trimmed())
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	seen := make(map[string]bool, len(fieldErrs))
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		if seen[fe.Field()] {
			continue
		}
		seen[fe.Field()] = true
		verr.Fields = append(verr.Fields, fe.Field())
	}
	return verr
}

// Validate checks the attachment limits: an image/* type, non-empty, at most
// MaxImageBytes.
func (a Attachment) Validate() error {
	if err := validate.Struct(a); err != nil {
		return &ValidationError{Fields: []string{"image-upload"}}
	}
	return nil
}
