package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// submitPath is the AI service's submission endpoint.
const submitPath = "/api/stub/submit"

// Client submits conversion requests to the external AI service. It waits only
// for acceptance of the request; results arrive later on the callback URL.
type Client struct {
	client     *http.Client
	aiBaseURL  string
	appBaseURL string
}

func NewClient(aiBaseURL, appBaseURL string, timeout time.Duration) *Client {
	return &Client{
		client:     &http.Client{Timeout: timeout},
		aiBaseURL:  strings.TrimRight(aiBaseURL, "/"),
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
	}
}

// Submit posts one conversion request. Any failure to get the request accepted
// (missing configuration, transport error, non-2xx) is returned as an error;
// the caller converts it into the job's failed state.
func (c *Client) Submit(ctx context.Context, jobID, inputRef string) error {
	if c.aiBaseURL == "" {
		return fmt.Errorf("AI_BASE_URL is not configured")
	}
	if c.appBaseURL == "" {
		return fmt.Errorf("APP_BASE_URL is not configured")
	}

	callbackURL := fmt.Sprintf("%s/jobs/%s/callback", c.appBaseURL, jobID)

	reqBody := map[string]string{
		"jobId":       jobID,
		"inputPath":   inputRef,
		"callbackUrl": callbackURL,
	}
	jsonBody, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, "POST", c.aiBaseURL+submitPath, bytes.NewBuffer(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ai service rejected dispatch: %d", resp.StatusCode)
	}
	return nil
}
