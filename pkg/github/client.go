// Package github provides the GitHub API calls the reviewer assigner needs.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

// ErrNotFound is returned when GitHub answers 404.
var ErrNotFound = errors.New("not found")

// Client handles all GitHub API interactions.
// Views returned by ForOrg share credentials with the client they came from.
type Client struct {
	auth          *authState
	httpClient    *http.Client
	baseURL       string
	org           string
	retryAttempts uint
	retryDelay    time.Duration
}

// authState holds credentials shared by every org view of a Client.
type authState struct {
	tokenExpiry        time.Time
	installationTokens map[string]string
	installationExpiry map[string]time.Time
	installationIDs    map[string]int
	installationTypes  map[string]string
	appID              string
	token              string
	privateKeyPath     string
	privateKeyContent  []byte
	mu                 sync.RWMutex
	isAppAuth          bool
}

// Config holds configuration for creating a new GitHub client.
type Config struct {
	BaseURL     string // REST endpoint (empty = DefaultBaseURL)
	AppID       string
	AppKeyPath  string
	Token       string // Personal access token (for non-app auth)
	HTTPTimeout time.Duration
	UseAppAuth  bool
}

// New creates a new GitHub API client using a token or GitHub App authentication.
func New(ctx context.Context, cfg Config) (*Client, error) {
	var c *Client
	var err error
	if cfg.UseAppAuth {
		c, err = newAppAuthClient(ctx, cfg.AppID, cfg.AppKeyPath, cfg.HTTPTimeout)
	} else {
		c, err = newPersonalTokenClient(ctx, cfg.Token, cfg.HTTPTimeout)
	}
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL != "" {
		c.baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	return c, nil
}

// ForOrg returns a view of the client that authenticates as the App
// installation for org. With token auth the view behaves like c.
func (c *Client) ForOrg(org string) *Client {
	view := *c
	view.org = org
	return &view
}

// IsUserAccount checks if the given installation account is a user account (not an organization).
func (c *Client) IsUserAccount(account string) bool {
	c.auth.mu.RLock()
	defer c.auth.mu.RUnlock()
	return c.auth.installationTypes[account] == "User"
}

// Token returns the current GitHub token for external use (e.g., sprinkler).
// For App authentication on an org view, returns the installation token.
func (c *Client) Token(ctx context.Context) (string, error) {
	if c.auth.isAppAuth && c.org != "" {
		return c.getInstallationToken(ctx, c.org)
	}
	c.auth.mu.RLock()
	defer c.auth.mu.RUnlock()
	return c.auth.token, nil
}

// drainAndCloseBody drains and closes an HTTP response body to prevent resource leaks.
func drainAndCloseBody(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		slog.Warn("Failed to drain response body", "error", err)
	}
	if err := body.Close(); err != nil {
		slog.Warn("Failed to close response body", "error", err)
	}
}

// endpoint joins the base URL with an API path.
func (c *Client) endpoint(format string, args ...any) string {
	return c.baseURL + fmt.Sprintf(format, args...)
}

// doRequest makes an HTTP request to the GitHub API with retry logic.
// The caller owns the response body.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body any, accept string) (*http.Response, error) {
	if c.auth.isAppAuth {
		if err := c.refreshJWTIfNeeded(); err != nil {
			return nil, fmt.Errorf("failed to refresh JWT: %w", err)
		}
	}
	if accept == "" {
		accept = "application/vnd.github+json"
	}

	sanitizedURL := sanitizeURLForLogging(apiURL)
	slog.Debug("HTTP request", "component", "http", "method", method, "url", sanitizedURL)

	var resp *http.Response
	err := c.retryWithBackoff(ctx, method+" "+sanitizedURL, func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyBytes, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("failed to marshal request body: %w", err)
			}
			bodyReader = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		authToken, err := c.Token(ctx)
		if err != nil {
			// Graceful degradation: the JWT may still have enough access.
			slog.Warn("Failed to get installation token, attempting with base token", "org", c.org, "error", err)
			c.auth.mu.RLock()
			authToken = c.auth.token
			c.auth.mu.RUnlock()
		}

		if c.auth.isAppAuth {
			req.Header.Set("Authorization", "Bearer "+authToken)
		} else {
			req.Header.Set("Authorization", "token "+authToken)
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		localResp, err := c.httpClient.Do(req) //nolint:bodyclose // body is closed below or passed to caller
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if localResp.StatusCode == http.StatusTooManyRequests {
			drainAndCloseBody(localResp.Body)
			slog.Warn("Rate limited - will retry with backoff", "method", method, "url", sanitizedURL, "status", localResp.StatusCode)
			return fmt.Errorf("http %d: rate limited", localResp.StatusCode)
		}
		if localResp.StatusCode >= http.StatusInternalServerError && localResp.StatusCode < 600 {
			drainAndCloseBody(localResp.Body)
			slog.Warn("Server error - will retry with backoff", "method", method, "url", sanitizedURL, "status", localResp.StatusCode)
			return fmt.Errorf("http %d: server error", localResp.StatusCode)
		}

		resp = localResp
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("HTTP response", "component", "http", "method", method, "url", sanitizedURL, "status", resp.StatusCode)
	return resp, nil
}

// getJSON GETs apiURL and decodes a 200 response into out.
func (c *Client) getJSON(ctx context.Context, apiURL string, out any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil, "")
	if err != nil {
		return err
	}
	defer drainAndCloseBody(resp.Body)

	if err := checkStatus(resp, http.StatusOK); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// checkStatus turns an unexpected status into an error, mapping 404 to ErrNotFound.
func checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("unexpected status %d (could not read body: %w)", resp.StatusCode, err)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// Retry constants.
const (
	maxRetryAttempts  = 25              // Maximum retry attempts for API calls
	initialRetryDelay = 1 * time.Second // Initial delay for retry attempts
	maxRetryDelay     = 2 * time.Minute // Maximum delay cap
)

// retryWithBackoff executes fn with exponential backoff and jitter.
func (c *Client) retryWithBackoff(ctx context.Context, operation string, fn func() error) error {
	attempts, delay := c.retryAttempts, c.retryDelay
	if attempts == 0 {
		attempts = maxRetryAttempts
	}
	if delay == 0 {
		delay = initialRetryDelay
	}

	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(delay/4),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("Retry attempt", "component", "retry", "operation", operation, "attempt", n+1, "max_attempts", attempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
	)
}

// isRetryable reports whether err is worth another attempt.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "rate limited") ||
		strings.Contains(errStr, "server error") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "EOF")
}

// sanitizeURLForLogging drops query parameters that could carry credentials.
func sanitizeURLForLogging(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[unparseable url]"
	}
	q := u.Query()
	for _, key := range []string{"access_token", "token", "client_secret", "code"} {
		if q.Has(key) {
			q.Set(key, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
