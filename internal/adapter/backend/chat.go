package backend

import (
	"context"
	"net/http"
	"net/url"
)

// ChatRequest is one message to the AI companion.
type ChatRequest struct {
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
	Language string `json:"language"`
}

// HistoryEntry is one stored exchange. Older backends return role/content
// pairs instead of question/answer.
type HistoryEntry struct {
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer,omitempty"`
	Language string `json:"language,omitempty"`
	Role     string `json:"role,omitempty"`
	Content  string `json:"content,omitempty"`
}

// Chat sends a message and returns the companion's reply.
func (c *Client) Chat(ctx context.Context, in ChatRequest) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/ai-companion/chat", nil, in)
	if err != nil {
		return "", err
	}
	var out struct {
		Response string `json:"response"`
	}
	if err := c.do(req, "ai-companion-chat", &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// History returns the stored conversation for a user.
func (c *Client) History(ctx context.Context, userID string) ([]HistoryEntry, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/ai-companion/history", url.Values{"user_id": {userID}}, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		History []HistoryEntry `json:"history"`
	}
	if err := c.do(req, "ai-companion-history", &out); err != nil {
		return nil, err
	}
	return out.History, nil
}

// ClearHistory deletes the stored conversation for a user.
func (c *Client) ClearHistory(ctx context.Context, userID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/ai-companion/history", url.Values{"user_id": {userID}}, nil)
	if err != nil {
		return err
	}
	return c.do(req, "ai-companion-history", nil)
}
