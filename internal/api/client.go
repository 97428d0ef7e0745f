// Package api is the thin client for the remote server's authentication
// endpoints. Domain endpoints (issues, projects, organizations) live behind
// their own clients; this package only covers what login and status need.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// validatePath is the endpoint that checks whether a bearer token is
// accepted by the server.
const validatePath = "/api/authentication/validate"

// DefaultHTTPTimeout is the default timeout for API requests.
const DefaultHTTPTimeout = 30 * time.Second

// Client talks to one server.
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for serverURL.
func NewClient(serverURL string, opts ...Option) *Client {
	c := &Client{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// validateResponse is the body of the validate endpoint.
type validateResponse struct {
	Valid bool `json:"valid"`
}

// ValidateToken reports whether the server accepts token. A token counts as
// valid only when the endpoint is reachable, the response parses, and the
// validity flag is set. Network failures and malformed responses are treated
// as invalid, not as errors; the detail is logged for debugging.
func (c *Client) ValidateToken(ctx context.Context, token string) bool {
	endpoint, err := url.JoinPath(c.serverURL, validatePath)
	if err != nil {
		slog.Debug("token validation skipped: invalid server URL", "server_url", c.serverURL, "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		slog.Debug("token validation request could not be built", "error", err)
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Debug("token validation request failed", "server_url", c.serverURL, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("token validation returned non-OK status", "server_url", c.serverURL, "status", resp.StatusCode)
		return false
	}

	var body validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		slog.Debug("token validation response is malformed", "server_url", c.serverURL, "error", err)
		return false
	}
	return body.Valid
}
