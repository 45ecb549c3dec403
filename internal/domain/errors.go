package domain

import (
	"context"
	"errors"
	"strings"
)

// Failure taxonomy shared by the location flow and the backend clients.
var (
	ErrPermissionDenied    = errors.New("permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("timeout")
	ErrNetworkUnreachable  = errors.New("network unreachable")
	ErrServerError         = errors.New("server error")
	ErrValidation          = errors.New("validation error")
)

// ErrorKind is the user-facing class of a failure.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindPermissionDenied    ErrorKind = "permission_denied"
	KindPositionUnavailable ErrorKind = "position_unavailable"
	KindTimeout             ErrorKind = "timeout"
	KindNetworkUnreachable  ErrorKind = "network_unreachable"
	KindServerError         ErrorKind = "server_error"
	KindValidation          ErrorKind = "validation_error"
	KindUnknown             ErrorKind = "unknown"
)

// Classify maps an error onto the taxonomy. A context deadline counts as a timeout.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrPositionUnavailable):
		return KindPositionUnavailable
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrNetworkUnreachable):
		return KindNetworkUnreachable
	case errors.Is(err, ErrServerError):
		return KindServerError
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindUnknown
	}
}

// ValidationError lists the form field ids that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Has reports whether the field id is among the invalid fields.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f == field {
			return true
		}
	}
	return false
}
