package companion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/nexahealth-reporter/internal/adapter/backend"
	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
)

type mockAPI struct {
	lastChat     backend.ChatRequest
	lastFeedback backend.Feedback
	chatCalls    int
	clearedFor   string
	err          error
}

func (m *mockAPI) Chat(_ context.Context, in backend.ChatRequest) (string, error) {
	m.chatCalls++
	m.lastChat = in
	return "reply", m.err
}

func (m *mockAPI) History(_ context.Context, userID string) ([]backend.HistoryEntry, error) {
	return []backend.HistoryEntry{{Question: "q", Answer: "a", Language: "english"}}, m.err
}

func (m *mockAPI) ClearHistory(_ context.Context, userID string) error {
	m.clearedFor = userID
	return m.err
}

func (m *mockAPI) SubmitFeedback(_ context.Context, fb backend.Feedback) (backend.FeedbackReceipt, error) {
	m.lastFeedback = fb
	return backend.FeedbackReceipt{ID: "fb-1"}, m.err
}

type staticIdentity string

func (s staticIdentity) UserID(context.Context) (string, error) { return string(s), nil }

func newTestService(api API) *Service {
	return NewService(api, staticIdentity("user_abc123def"), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "english", false},
		{"Pidgin", "pidgin", false},
		{" yoruba ", "yoruba", false},
		{"igbo", "igbo", false},
		{"french", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeLanguage(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedLanguage)
				assert.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAsk_SendsUserIDAndLanguage(t *testing.T) {
	api := &mockAPI{}
	reply, err := newTestService(api).Ask(context.Background(), "  Is this drug fake? ", "")
	require.NoError(t, err)

	assert.Equal(t, "reply", reply)
	assert.Equal(t, backend.ChatRequest{UserID: "user_abc123def", Message: "Is this drug fake?", Language: "english"}, api.lastChat)
}

func TestAsk_EmptyMessageNoNetworkCall(t *testing.T) {
	api := &mockAPI{}
	_, err := newTestService(api).Ask(context.Background(), "   ", "english")

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, api.chatCalls)
}

func TestAsk_BackendError(t *testing.T) {
	api := &mockAPI{err: &backend.APIError{Endpoint: "ai-companion-chat", Status: 500}}
	_, err := newTestService(api).Ask(context.Background(), "hello", "hausa")
	assert.ErrorIs(t, err, domain.ErrServerError)
}

func TestHistoryAndClear(t *testing.T) {
	api := &mockAPI{}
	svc := newTestService(api)

	hist, err := svc.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	require.NoError(t, svc.ClearHistory(context.Background()))
	assert.Equal(t, "user_abc123def", api.clearedFor)
}

func TestSendFeedback_Validates(t *testing.T) {
	api := &mockAPI{}
	svc := newTestService(api)

	_, err := svc.SendFeedback(context.Background(), backend.Feedback{Rating: 0, FeedbackType: "bug"})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("rating"))

	rec, err := svc.SendFeedback(context.Background(), backend.Feedback{Rating: 4, FeedbackType: "general", Language: "Igbo"})
	require.NoError(t, err)
	assert.Equal(t, "fb-1", rec.ID)
	assert.Equal(t, "igbo", api.lastFeedback.Language)
}
