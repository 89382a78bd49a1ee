// Package whop is a small client for the Whop REST API: identity lookup,
// company memberships and checkout sessions.
package whop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flowmail/dashboard/internal/pkg/httpretry"
)

// ErrUnauthorized is returned when Whop rejects a user token.
var ErrUnauthorized = errors.New("whop: token rejected")

// Client is the Whop API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new Whop API client. Retries are off unless
// MaxRetries is set.
func NewClient(config Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		httpClient: httpretry.NewRetryClient(nil, time.Duration(config.Timeout)*time.Second, config.MaxRetries),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// Me returns the identity behind a user access token or iframe token.
func (c *Client) Me(ctx context.Context, token string) (*Identity, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/me", token, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
		}
		return nil, err
	}
	var id Identity
	if err := json.Unmarshal(body, &id); err != nil {
		return nil, fmt.Errorf("failed to decode whop identity: %w", err)
	}
	if id.ID == "" {
		return nil, fmt.Errorf("%w: identity without id", ErrUnauthorized)
	}
	return &id, nil
}

// ListMemberships returns the memberships Whop includes in a single
// response for the company. Further pages are not requested.
func (c *Client) ListMemberships(ctx context.Context, companyID string) ([]Membership, error) {
	q := url.Values{}
	if companyID != "" {
		q.Set("company_id", companyID)
	}
	endpoint := "/memberships"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	body, err := c.doRequest(ctx, http.MethodGet, endpoint, c.apiKey, nil)
	if err != nil {
		return nil, err
	}
	var list membershipList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode memberships: %w", err)
	}
	return list.Data, nil
}

// CreateCheckoutSession requests a hosted checkout for a plan.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/checkout_sessions", c.apiKey, req)
	if err != nil {
		return nil, err
	}
	var session CheckoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	return session, nil
}

// doRequest performs an authenticated request to the Whop API
func (c *Client) doRequest(ctx context.Context, method, endpoint, bearer string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whop request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}
	return respBody, nil
}

// errorMessage extracts Whop's error text, falling back to the raw body.
func errorMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return strings.TrimSpace(string(body))
}
