package newsletter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/pixeltrack/internal/pkg/httpretry"
)

// Client posts a subscribe request to the configured newsletter API,
// the same bearer-auth-header shape internal/crm/client.go uses
// against the CRM.
type Client struct {
	apiURL     string
	authToken  string
	httpClient httpretry.HTTPDoer
}

// NewClient returns nil if apiURL is empty. Wiring code nil-checks the
// result before storing it as an ingest.NewsletterClient, since a nil
// *Client inside the interface would not compare equal to nil.
func NewClient(apiURL, authToken string) *Client {
	if apiURL == "" {
		return nil
	}
	return &Client{
		apiURL:     apiURL,
		authToken:  authToken,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: 5 * time.Second}, 2),
	}
}

type subscribeRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Subscribe fires the newsletter side-effect. Failures never reach the
// ingest response — the handler only ever calls this through
// internal/pkg/spawn (spec §4.4 step 11).
func (c *Client) Subscribe(ctx context.Context, email, firstName, lastName string) error {
	if email == "" {
		return nil
	}
	body, err := json.Marshal(subscribeRequest{Email: email, FirstName: firstName, LastName: lastName})
	if err != nil {
		return fmt.Errorf("newsletter: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/subscribe", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("newsletter: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("newsletter: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("newsletter: unexpected status %d", resp.StatusCode)
	}
	return nil
}
