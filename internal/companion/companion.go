// Package companion wraps the AI companion chat and the feedback widget.
package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/nexahealth-reporter/internal/adapter/backend"
	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
)

// DefaultLanguage is used when no language was chosen.
const DefaultLanguage = "english"

// Languages lists the supported reply languages.
var Languages = []string{"english", "pidgin", "yoruba", "hausa", "igbo"}

// ErrUnsupportedLanguage is returned for a language outside Languages.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// NormalizeLanguage lowercases lang and checks it is supported. Empty selects
// DefaultLanguage.
func NormalizeLanguage(lang string) (string, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return DefaultLanguage, nil
	}
	for _, l := range Languages {
		if l == lang {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w %q: %w", ErrUnsupportedLanguage, lang, domain.ErrValidation)
}

// API is the backend surface used by the companion.
type API interface {
	Chat(ctx context.Context, in backend.ChatRequest) (string, error)
	History(ctx context.Context, userID string) ([]backend.HistoryEntry, error)
	ClearHistory(ctx context.Context, userID string) error
	SubmitFeedback(ctx context.Context, fb backend.Feedback) (backend.FeedbackReceipt, error)
}

// Identity supplies the persisted anonymous user id.
type Identity interface {
	UserID(ctx context.Context) (string, error)
}

// Service sends chat messages and feedback on behalf of the local user.
type Service struct {
	api      API
	identity Identity
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService creates a companion service.
func NewService(api API, identity Identity, logger *slog.Logger) *Service {
	return &Service{
		api:      api,
		identity: identity,
		validate: newValidator(),
		logger:   logger,
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Ask sends a message in the given language and returns the reply.
func (s *Service) Ask(ctx context.Context, message, language string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", &domain.ValidationError{Fields: []string{"message"}}
	}
	lang, err := NormalizeLanguage(language)
	if err != nil {
		return "", err
	}
	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve user id: %w", err)
	}

	reply, err := s.api.Chat(ctx, backend.ChatRequest{UserID: userID, Message: message, Language: lang})
	if err != nil {
		return "", fmt.Errorf("ask companion: %w", err)
	}
	s.logger.Debug("companion replied", "language", lang, "chars", len(reply))
	return reply, nil
}

// History returns the local user's past exchanges.
func (s *Service) History(ctx context.Context) ([]backend.HistoryEntry, error) {
	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve user id: %w", err)
	}
	return s.api.History(ctx, userID)
}

// ClearHistory deletes the local user's past exchanges.
func (s *Service) ClearHistory(ctx context.Context) error {
	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return fmt.Errorf("resolve user id: %w", err)
	}
	return s.api.ClearHistory(ctx, userID)
}

// SendFeedback validates and posts a feedback entry.
func (s *Service) SendFeedback(ctx context.Context, fb backend.Feedback) (backend.FeedbackReceipt, error) {
	lang, err := NormalizeLanguage(fb.Language)
	if err != nil {
		return backend.FeedbackReceipt{}, err
	}
	fb.Language = lang
	fb.Message = strings.TrimSpace(fb.Message)

	if err := s.validate.Struct(fb); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return backend.FeedbackReceipt{}, err
		}
		verr := &domain.ValidationError{}
		for _, fe := range fieldErrs {
			verr.Fields = append(verr.Fields, fe.Field())
		}
		return backend.FeedbackReceipt{}, verr
	}
	return s.api.SubmitFeedback(ctx, fb)
}
