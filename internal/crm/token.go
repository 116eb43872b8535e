// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package crm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/casesync/internal/logging"
	"github.com/tomtom215/casesync/internal/metrics"
)

const (
	// TokenSafetyMargin is subtracted from a token's expiry; inside the
	// margin the cached token is treated as expired.
	TokenSafetyMargin = 5 * time.Minute

	// DefaultTokenLifetime applies when the identity service omits expires_in.
	DefaultTokenLifetime = 3600 * time.Second

	// tokenPath is appended to the identity service URL.
	tokenPath = "/connect/token"

	// maxErrorBodySize limits how much of an error body is read.
	maxErrorBodySize = 64 * 1024
)

// Credentials identify one tenant to the identity service.
type Credentials struct {
	IdentityURL  string
	ClientID     string
	ClientSecret string
}

func (c Credentials) validate() error {
	var missing []string
	if strings.TrimSpace(c.IdentityURL) == "" {
		missing = append(missing, "identity URL")
	}
	if c.ClientID == "" {
		missing = append(missing, "client id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Msg: "missing " + strings.Join(missing, ", ")}
	}
	return nil
}

// Token is a bearer token and its absolute expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// usableAt reports whether the token may still be handed out at now.
func (t Token) usableAt(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-TokenSafetyMargin))
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   *int64 `json:"expires_in"`
}

// TokenManager acquires and caches an OAuth2 client-credentials token for
// one tenant. It is safe for concurrent use; concurrent callers that find
// no usable token wait for a single fetch.
type TokenManager struct {
	creds  Credentials
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	current Token
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithTokenHTTPClient sets the HTTP client used for the identity service.
func WithTokenHTTPClient(c *http.Client) TokenOption {
	return func(m *TokenManager) { m.client = c }
}

// WithClock sets the time source used for expiry decisions.
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

// NewTokenManager creates a TokenManager for one tenant.
func NewTokenManager(creds Credentials, opts ...TokenOption) *TokenManager {
	creds.IdentityURL = strings.TrimRight(strings.TrimSpace(creds.IdentityURL), "/")
	m := &TokenManager{
		creds:  creds,
		client: &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns a bearer token, fetching a new one when the cached token
// is missing or inside the safety margin.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if err := m.creds.validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.usableAt(m.now()) {
		return m.current.AccessToken, nil
	}

	tok, err := m.fetch(ctx)
	metrics.RecordTokenFetch(err)
	if err != nil {
		return "", err
	}
	m.current = tok

	logging.Ctx(ctx).Debug().
		Str("token", logging.SanitizeToken(tok.AccessToken)).
		Time("expires_at", tok.ExpiresAt).
		Msg("Obtained CRM access token")
	return tok.AccessToken, nil
}

// Invalidate drops the cached token so the next Token call re-authenticates.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.AccessToken != "" {
		metrics.TokenInvalidations.Inc()
	}
	m.current = Token{}
}

func (m *TokenManager) fetch(ctx context.Context) (Token, error) {
	form := url.Values{}
	form.Set("client_id", m.creds.ClientID)
	form.Set("client_secret", m.creds.ClientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.creds.IdentityURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, &ConfigurationError{Msg: "invalid identity URL", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	issuedAt := m.now()
	resp, err := m.client.Do(req)
	if err != nil {
		return Token{}, &AuthenticationError{Msg: "identity service unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Token{}, &AuthenticationError{
			StatusCode: resp.StatusCode,
			Msg:        string(readBodyForError(resp.Body)),
		}
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Token{}, &AuthenticationError{Msg: "malformed token response", Err: err}
	}
	if body.AccessToken == "" {
		return Token{}, &AuthenticationError{Msg: "token response has no access_token"}
	}

	lifetime := DefaultTokenLifetime
	if body.ExpiresIn != nil && *body.ExpiresIn > 0 {
		lifetime = time.Duration(*body.ExpiresIn) * time.Second
	}

	return Token{AccessToken: body.AccessToken, ExpiresAt: issuedAt.Add(lifetime)}, nil
}

// readBodyForError reads a bounded amount of an error response body.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// String hides the credentials when a manager ends up in a log line.
func (m *TokenManager) String() string {
	return fmt.Sprintf("TokenManager{identity=%s client=%s}", m.creds.IdentityURL, m.creds.ClientID)
}
