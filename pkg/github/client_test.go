package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var testToken = "ghp_" + strings.Repeat("a", 36)

// newTestClient returns a token-auth client pointed at an httptest server.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{
		auth:          &authState{token: testToken},
		httpClient:    srv.Client(),
		baseURL:       srv.URL,
		retryAttempts: 1,
	}
}

func TestClient_IsUserAccount(t *testing.T) {
	c := &Client{auth: &authState{
		installationTypes: map[string]string{
			"user1": "User",
			"org1":  "Organization",
		},
	}}

	tests := []struct {
		account string
		want    bool
	}{
		{"user1", true},
		{"org1", false},
		{"unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.account, func(t *testing.T) {
			if got := c.IsUserAccount(tt.account); got != tt.want {
				t.Errorf("IsUserAccount(%q) = %v, want %v", tt.account, got, tt.want)
			}
		})
	}
}

func TestClient_Token_PersonalToken(t *testing.T) {
	c := &Client{auth: &authState{token: "test-token"}}

	token, err := c.ForOrg("some-org").Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "test-token" {
		t.Errorf("expected 'test-token', got %q", token)
	}
}

func TestClient_Token_AppAuthNoOrg(t *testing.T) {
	c := &Client{auth: &authState{isAppAuth: true, token: "jwt-token"}}

	token, err := c.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "jwt-token" {
		t.Errorf("expected 'jwt-token', got %q", token)
	}
}

func TestClient_ForOrg_SharesCredentials(t *testing.T) {
	c := &Client{auth: &authState{
		isAppAuth:          true,
		token:              "jwt-token",
		tokenExpiry:        time.Now().Add(time.Hour),
		installationTokens: map[string]string{"acme": "inst-acme"},
		installationExpiry: map[string]time.Time{"acme": time.Now().Add(time.Hour)},
		installationIDs:    map[string]int{},
		installationTypes:  map[string]string{},
	}}

	acme := c.ForOrg("acme")
	if c.org != "" {
		t.Errorf("ForOrg mutated the parent client: org=%q", c.org)
	}
	token, err := acme.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "inst-acme" {
		t.Errorf("expected cached installation token, got %q", token)
	}

	// Other org with no installation fails rather than borrowing acme's token.
	if _, err := c.ForOrg("other").Token(context.Background()); err == nil {
		t.Error("expected error for org without installation")
	}
}

func TestDoRequest_Headers(t *testing.T) {
	var gotAuth, gotAccept, gotVersion, gotContentType string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotVersion = r.Header.Get("X-GitHub-Api-Version")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	})

	resp, err := c.doRequest(context.Background(), http.MethodPost, c.endpoint("/x"), map[string]string{"a": "b"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drainAndCloseBody(resp.Body)

	if gotAuth != "token "+testToken {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAccept != "application/vnd.github+json" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if gotVersion != "2022-11-28" {
		t.Errorf("X-GitHub-Api-Version = %q", gotVersion)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
}

func TestDoRequest_AppAuthUsesBearer(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})
	c.auth = &authState{
		isAppAuth:          true,
		token:              "jwt-token",
		tokenExpiry:        time.Now().Add(time.Hour),
		installationTokens: map[string]string{"acme": "inst-acme"},
		installationExpiry: map[string]time.Time{"acme": time.Now().Add(time.Hour)},
	}

	resp, err := c.ForOrg("acme").doRequest(context.Background(), http.MethodGet, c.endpoint("/x"), nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drainAndCloseBody(resp.Body)

	if gotAuth != "Bearer inst-acme" {
		t.Errorf("Authorization = %q, want installation token as Bearer", gotAuth)
	}
}

func TestDoRequest_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	c.retryAttempts = 5
	c.retryDelay = time.Millisecond

	resp, err := c.doRequest(context.Background(), http.MethodGet, c.endpoint("/x"), nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drainAndCloseBody(resp.Body)

	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestDoRequest_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c.retryAttempts = 2
	c.retryDelay = time.Millisecond

	if _, err := c.doRequest(context.Background(), http.MethodGet, c.endpoint("/x"), nil, ""); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestDoRequest_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	c.retryAttempts = 5
	c.retryDelay = time.Millisecond

	resp, err := c.doRequest(context.Background(), http.MethodGet, c.endpoint("/x"), nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drainAndCloseBody(resp.Body)
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestGetJSON_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})

	var out map[string]any
	err := c.getJSON(context.Background(), c.endpoint("/missing"), &out)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCheckStatus_IncludesBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusForbidden,
		Body:       io.NopCloser(strings.NewReader(`{"message":"Resource not accessible by integration"}`)),
	}
	err := checkStatus(resp, http.StatusOK)
	if err == nil || !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "not accessible") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("http 429: rate limited"), true},
		{errors.New("http 503: server error"), true},
		{errors.New("dial tcp: connection refused"), true},
		{io.ErrUnexpectedEOF, true},
		{context.Canceled, false},
		{ErrNotFound, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSanitizeURLForLogging(t *testing.T) {
	got := sanitizeURLForLogging("https://api.github.com/x?access_token=secret&page=2")
	if strings.Contains(got, "secret") {
		t.Errorf("token leaked: %s", got)
	}
	if !strings.Contains(got, "page=2") {
		t.Errorf("non-sensitive parameter dropped: %s", got)
	}
}

type errorReader struct{}

func (e *errorReader) Read([]byte) (int, error) { return 0, errors.New("read error") }
func (e *errorReader) Close() error             { return nil }

type errorCloser struct {
	reader io.Reader
}

func (e *errorCloser) Read(p []byte) (int, error) { return e.reader.Read(p) }
func (e *errorCloser) Close() error               { return errors.New("close error") }

func TestDrainAndCloseBody_Errors(t *testing.T) {
	// Neither case should panic.
	drainAndCloseBody(&errorReader{})
	drainAndCloseBody(&errorCloser{reader: strings.NewReader("test")})
}
