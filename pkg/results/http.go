package results

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPReporter posts outcomes to {baseURL}/games
type HTTPReporter struct {
	endpoint string
	client   *http.Client
}

// NewHTTPReporter creates a reporter for the stats API at baseURL. The timeout
// bounds every request.
func NewHTTPReporter(baseURL string, timeout time.Duration) *HTTPReporter {
	return &HTTPReporter{
		endpoint: strings.TrimRight(baseURL, "/") + "/games",
		client:   &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the URL outcomes are posted to
func (r *HTTPReporter) Endpoint() string {
	return r.endpoint
}

// Report posts the outcome. Any non-2xx response is an error.
func (r *HTTPReporter) Report(ctx context.Context, outcome Outcome) error {
	body, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post outcome: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("stats api responded %d", resp.StatusCode)
	}

	return nil
}
