package backend

import (
	"context"
	"net/http"
)

// Feedback is a rating left through the feedback widget.
type Feedback struct {
	Rating       int    `json:"rating" validate:"min=1,max=5"`
	FeedbackType string `json:"feedback_type" validate:"required"`
	Message      string `json:"message,omitempty"`
	Language     string `json:"language" validate:"required"`
	PageURL      string `json:"page_url"`
}

// FeedbackReceipt is the stored feedback record.
type FeedbackReceipt struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

// SubmitFeedback posts a feedback entry.
func (c *Client) SubmitFeedback(ctx context.Context, fb Feedback) (FeedbackReceipt, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/feedback", nil, fb)
	if err != nil {
		return FeedbackReceipt{}, err
	}
	var out FeedbackReceipt
	if err := c.do(req, "feedback", &out); err != nil {
		return FeedbackReceipt{}, err
	}
	return out, nil
}
