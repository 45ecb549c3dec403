package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// StatusSuccess is the status value of an accepted report.
const StatusSuccess = "success"

// SubmitResult is the backend's answer to a report submission.
type SubmitResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Accepted reports whether the backend stored the report.
func (r SubmitResult) Accepted() bool {
	return r.Status == StatusSuccess
}

// SubmitReport posts a multipart report body. contentType must carry the
// multipart boundary.
func (c *Client) SubmitReport(ctx context.Context, body io.Reader, contentType string) (SubmitResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submit-report", body)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	var res SubmitResult
	if err := c.do(req, "submit-report", &res); err != nil {
		return SubmitResult{}, err
	}
	c.logger.Debug("report submitted", "status", res.Status)
	return res, nil
}
