package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/pixeltrack/internal/pkg/httpretry"
)

// Client is the CRM HTTP client: contact search and custom-field update,
// grounded on internal/ongage/client.go's request-building idiom (an
// auth header set once in a shared doRequest, uniform error wraps, a
// SetHTTPClient test seam).
type Client struct {
	baseURL    string
	apiToken   string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a CRM client against baseURL, authenticating with
// apiToken. The HTTP client retries per spec §4.5's network contract: 5s
// per-call deadline, up to 2 retries.
func NewClient(baseURL, apiToken string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 5 * time.Second,
		}, 2),
	}
}

// SetHTTPClient overrides the HTTP transport, for tests.
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("crm: marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("crm: read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("crm: API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// search performs GET /persons/search, restricting to the given field
// (e.g. "email" or "name"; empty searches all fields) and requiring an
// exact match when asked.
func (c *Client) search(ctx context.Context, term string, field string, exact bool) ([]person, error) {
	q := url.Values{}
	q.Set("term", term)
	if field != "" {
		q.Set("fields", field)
	}
	if exact {
		q.Set("exact_match", "true")
	}

	respBody, err := c.doRequest(ctx, http.MethodGet, "/persons/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("crm: parse search response: %w", err)
	}

	out := make([]person, 0, len(parsed.Data.Items))
	for _, item := range parsed.Data.Items {
		out = append(out, item.Item)
	}
	return out, nil
}

// searchByEmailExact is step 2 of FindAndUpdate: exact match on email.
func (c *Client) searchByEmailExact(ctx context.Context, email string) ([]person, error) {
	return c.search(ctx, email, "email", true)
}

// searchByEmailBroad is step 2a: same term, no exact-match constraint
// and no field restriction, relying on client-side matching against
// every email-like attribute a result may carry.
func (c *Client) searchByEmailBroad(ctx context.Context, email string) ([]person, error) {
	return c.search(ctx, email, "", false)
}

// searchByName is step 3: "first + last" as a single search term.
func (c *Client) searchByName(ctx context.Context, fullName string) ([]person, error) {
	return c.search(ctx, fullName, "name", false)
}

// updatePerson is step 5: PUT the opaque-keyed custom fields. Identity
// fields are never sent here — callers only pass BuildPayload's output.
func (c *Client) updatePerson(ctx context.Context, id int, fields map[string]string) error {
	_, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/persons/%d", id), fields)
	return err
}
