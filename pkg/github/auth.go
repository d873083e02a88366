package github

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/gsm"
	"github.com/golang-jwt/jwt/v5"
)

// Authentication constants.
const (
	maxTokenLength     = 255 // Fine-grained tokens are longer than classic ones
	minTokenLength     = 40  // Minimum expected length for GitHub tokens
	classicTokenLength = 40  // Length of classic GitHub tokens
	maxAppID           = 999999999
	filePermReadOnly   = 0o400 // Read-only file permissions
	filePermOwnerRW    = 0o600 // Owner read-write file permissions
	jwtLifetime        = 10 * time.Minute
	jwtRefreshAfter    = 9 * time.Minute
	appKeySecretName   = "GITHUB_APP_KEY"
)

// fetchSecret reads a secret from Google Secret Manager. Swapped in tests.
var fetchSecret = func(ctx context.Context, name string) (string, error) {
	return gsm.Secret(ctx, name)
}

// generateJWT generates a JWT token for GitHub App authentication.
func generateJWT(appID string, privateKey []byte, now time.Time) (string, error) {
	block, _ := pem.Decode(privateKey)
	if block == nil {
		return "", errors.New("failed to parse PEM block containing the private key")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		parsedKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return "", fmt.Errorf("failed to parse private key: %w", err)
		}
		var ok bool
		key, ok = parsedKey.(*rsa.PrivateKey)
		if !ok {
			return "", errors.New("private key is not RSA")
		}
	}

	claims := jwt.MapClaims{
		"iat": now.Add(-30 * time.Second).Unix(), // clock drift allowance
		"exp": now.Add(jwtLifetime).Unix(),
		"iss": appID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

// newAppAuthClient creates a GitHub client with App authentication.
func newAppAuthClient(ctx context.Context, appID, appKeyPath string, httpTimeout time.Duration) (*Client, error) {
	creds, err := resolveAppCredentials(ctx, appID, appKeyPath)
	if err != nil {
		return nil, err
	}
	if err := validateAppID(creds.appID); err != nil {
		return nil, err
	}

	privateKey, err := loadPrivateKey(creds.privateKeyContent, creds.keyPath)
	if err != nil {
		return nil, err
	}

	jwtToken, err := generateJWT(creds.appID, privateKey, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}
	slog.Info("Generated JWT for GitHub App", "component", "auth", "app_id", creds.appID)

	return &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		baseURL:    DefaultBaseURL,
		auth: &authState{
			token:              jwtToken,
			isAppAuth:          true,
			appID:              creds.appID,
			privateKeyPath:     creds.keyPath,
			privateKeyContent:  creds.privateKeyContent,
			tokenExpiry:        time.Now().Add(jwtRefreshAfter),
			installationTokens: make(map[string]string),
			installationExpiry: make(map[string]time.Time),
			installationIDs:    make(map[string]int),
			installationTypes:  make(map[string]string),
		},
	}, nil
}

// newPersonalTokenClient creates a GitHub client with personal token authentication.
// An empty token falls back to GITHUB_TOKEN, then to the gh CLI.
func newPersonalTokenClient(ctx context.Context, token string, httpTimeout time.Duration) (*Client, error) {
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		cmd := exec.CommandContext(ctx, "gh", "auth", "token")
		output, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("failed to get GitHub token: %w", err)
		}
		token = strings.TrimSpace(string(output))
	}

	if err := validateToken(token); err != nil {
		return nil, err
	}
	slog.Debug("Using personal access token authentication", "component", "auth")

	return &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		baseURL:    DefaultBaseURL,
		auth:       &authState{token: token},
	}, nil
}

// appCredentials holds GitHub App authentication details.
type appCredentials struct {
	appID             string
	keyPath           string
	privateKeyContent []byte
}

// resolveAppCredentials resolves app credentials from flags, environment
// variables, or Google Secret Manager, in that order.
func resolveAppCredentials(ctx context.Context, appID, appKeyPath string) (*appCredentials, error) {
	if appID == "" {
		appID = os.Getenv("GITHUB_APP_ID")
	}
	if appID == "" {
		return nil, errors.New("GitHub App ID is required: use --app-id or set GITHUB_APP_ID")
	}

	creds := &appCredentials{appID: appID, keyPath: appKeyPath}
	switch {
	case appKeyPath != "":
		slog.Info("Using private key file from command line", "component", "auth", "path", appKeyPath)
	case os.Getenv("GITHUB_APP_KEY") != "":
		creds.privateKeyContent = []byte(os.Getenv("GITHUB_APP_KEY"))
		slog.Info("Using GITHUB_APP_KEY environment variable", "component", "auth", "bytes", len(creds.privateKeyContent))
	case os.Getenv("GITHUB_APP_KEY_PATH") != "":
		creds.keyPath = os.Getenv("GITHUB_APP_KEY_PATH")
		slog.Info("Using private key file", "component", "auth", "path", creds.keyPath)
	default:
		key, err := fetchSecret(ctx, appKeySecretName)
		if err != nil {
			return nil, fmt.Errorf("GitHub App private key is required: use --app-key-path, "+
				"set GITHUB_APP_KEY or GITHUB_APP_KEY_PATH, or store %s in Secret Manager: %w", appKeySecretName, err)
		}
		creds.privateKeyContent = []byte(key)
		slog.Info("Using private key from Secret Manager", "component", "auth", "secret", appKeySecretName)
	}
	return creds, nil
}

// validateAppID validates the GitHub App ID.
func validateAppID(appID string) error {
	appIDNum, err := strconv.Atoi(appID)
	if err != nil {
		return fmt.Errorf("GITHUB_APP_ID must be numeric: %w", err)
	}
	if appIDNum <= 0 || appIDNum > maxAppID {
		return errors.New("GITHUB_APP_ID out of valid range")
	}
	return nil
}

// loadPrivateKey loads the private key from content or file path.
func loadPrivateKey(privateKeyContent []byte, keyPath string) ([]byte, error) {
	var privateKey []byte
	switch {
	case len(privateKeyContent) > 0:
		privateKey = privateKeyContent
	case keyPath != "":
		var err error
		privateKey, err = readPrivateKeyFile(keyPath)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("no private key provided (neither content nor path)")
	}

	if !bytes.Contains(privateKey, []byte("BEGIN RSA PRIVATE KEY")) &&
		!bytes.Contains(privateKey, []byte("BEGIN PRIVATE KEY")) {
		return nil, errors.New("private key does not appear to be a valid PEM private key")
	}
	return privateKey, nil
}

// readPrivateKeyFile reads and validates a private key file.
func readPrivateKeyFile(keyPath string) ([]byte, error) {
	cleanPath := filepath.Clean(keyPath)
	if !filepath.IsAbs(cleanPath) {
		return nil, errors.New("private key path must be absolute")
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("cannot access private key file: %w", err)
	}
	if fileInfo.IsDir() {
		return nil, errors.New("private key path must be a file, not a directory")
	}

	perm := fileInfo.Mode().Perm()
	if perm != filePermOwnerRW && perm != filePermReadOnly {
		return nil, fmt.Errorf("private key file has insecure permissions %04o (must be 0600 or 0400)", perm)
	}
	return os.ReadFile(cleanPath)
}

// validateToken validates a GitHub personal access token.
func validateToken(token string) error {
	if token == "" {
		return errors.New("no GitHub token found")
	}
	if len(token) > maxTokenLength || len(token) < minTokenLength {
		return errors.New("invalid token length")
	}

	for _, prefix := range []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_"} {
		if strings.HasPrefix(token, prefix) {
			return nil
		}
	}

	// Could be a classic token (40 hex chars)
	if len(token) != classicTokenLength {
		return errors.New("invalid token format")
	}
	for _, r := range token {
		if (r < 'a' || r > 'f') && (r < '0' || r > '9') {
			return errors.New("invalid classic token format")
		}
	}
	return nil
}

// refreshJWTIfNeeded refreshes the JWT token if it's close to expiry.
func (c *Client) refreshJWTIfNeeded() error {
	a := c.auth
	if !a.isAppAuth {
		return nil
	}

	a.mu.RLock()
	needsRefresh := time.Now().After(a.tokenExpiry)
	a.mu.RUnlock()
	if !needsRefresh {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Double-check after acquiring write lock
	if time.Now().Before(a.tokenExpiry) {
		return nil
	}

	privateKey, err := loadPrivateKey(a.privateKeyContent, a.privateKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load private key for refresh: %w", err)
	}
	newToken, err := generateJWT(a.appID, privateKey, time.Now())
	if err != nil {
		return fmt.Errorf("failed to generate JWT for refresh: %w", err)
	}

	a.token = newToken
	a.tokenExpiry = time.Now().Add(jwtRefreshAfter)
	slog.Info("Refreshed GitHub App JWT", "component", "auth")
	return nil
}

// getInstallationToken gets or refreshes an installation access token for an organization.
func (c *Client) getInstallationToken(ctx context.Context, org string) (string, error) {
	a := c.auth
	if !a.isAppAuth {
		return a.token, nil
	}
	if org == "" {
		return "", errors.New("organization name cannot be empty")
	}

	a.mu.RLock()
	if token, ok := a.installationTokens[org]; ok && time.Now().Before(a.installationExpiry[org]) {
		a.mu.RUnlock()
		return token, nil
	}
	a.mu.RUnlock()

	if err := c.refreshJWTIfNeeded(); err != nil {
		return "", fmt.Errorf("failed to refresh JWT: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if token, ok := a.installationTokens[org]; ok && time.Now().Before(a.installationExpiry[org]) {
		return token, nil
	}

	installationID, ok := a.installationIDs[org]
	if !ok {
		return "", fmt.Errorf("no installation ID found for organization %s (is the app installed?)", org)
	}

	slog.Info("Creating installation access token", "component", "auth", "org", org, "installation_id", installationID)
	apiURL := c.endpoint("/app/installations/%d/access_tokens", installationID)

	// This request must use the JWT, not an installation token.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get installation token: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if err := checkStatus(resp, http.StatusCreated); err != nil {
		return "", fmt.Errorf("failed to create installation token for %s: %w", org, err)
	}

	var tokenResp struct {
		ExpiresAt time.Time `json:"expires_at"`
		Token     string    `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.Token == "" {
		return "", errors.New("received empty installation token")
	}

	// Expire 5 minutes early so in-flight requests never carry a stale token.
	a.installationTokens[org] = tokenResp.Token
	a.installationExpiry[org] = tokenResp.ExpiresAt.Add(-5 * time.Minute)

	slog.Info("Created installation access token", "component", "auth", "org", org, "expires_at", tokenResp.ExpiresAt.Format(time.RFC3339))
	return tokenResp.Token, nil
}

// installation represents a GitHub App installation.
type installation struct {
	Account struct {
		Login string `json:"login"`
		Type  string `json:"type"`
	} `json:"account"`
	ID int `json:"id"`
}

// ListAppInstallations returns all accounts where this GitHub App is installed.
func (c *Client) ListAppInstallations(ctx context.Context) ([]string, error) {
	if !c.auth.isAppAuth {
		return nil, errors.New("app installations can only be listed with GitHub App authentication")
	}

	// Installation listing must be done with the JWT, so drop any org binding.
	var installations []installation
	if err := c.ForOrg("").getJSON(ctx, c.endpoint("/app/installations?per_page=%d", perPageLimit), &installations); err != nil {
		return nil, fmt.Errorf("failed to list app installations: %w", err)
	}

	c.auth.mu.Lock()
	defer c.auth.mu.Unlock()

	accounts := make([]string, 0, len(installations))
	for _, inst := range installations {
		accounts = append(accounts, inst.Account.Login)
		c.auth.installationIDs[inst.Account.Login] = inst.ID
		c.auth.installationTypes[inst.Account.Login] = inst.Account.Type
		slog.Info("Found installation", "component", "app", "account", inst.Account.Login, "type", inst.Account.Type, "id", inst.ID)
	}
	return accounts, nil
}
