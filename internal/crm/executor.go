// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package crm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/casesync/internal/logging"
	"github.com/tomtom215/casesync/internal/metrics"
)

// maxResponseBodySize bounds successful response bodies.
const maxResponseBodySize = 32 << 20

// Request describes one data call.
type Request struct {
	Style     AddressingStyle
	Method    string
	Operation string
	Query     url.Values

	// Body is JSON-encoded when non-nil.
	Body interface{}

	// RawURL overrides Style/Operation/Query with an absolute URL returned
	// by the remote (OData next links).
	RawURL string
}

func (r Request) target(baseURL string) string {
	if r.RawURL != "" {
		return r.RawURL
	}
	u := r.Style.URL(baseURL, r.Operation)
	if len(r.Query) > 0 {
		// OData system options must keep their literal '$'.
		u += "?" + strings.ReplaceAll(r.Query.Encode(), "%24", "$")
	}
	return u
}

// ExecutorConfig configures an Executor for one tenant.
type ExecutorConfig struct {
	BaseURL   string
	CSRFToken string

	// Timeout bounds each HTTP call. Default: 30s
	Timeout time.Duration

	// RateLimit in requests per second; 0 disables limiting.
	RateLimit float64
	RateBurst int

	// BreakerName labels circuit breaker metrics. Default: "crm"
	BreakerName string

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Executor performs authenticated data calls against one tenant's CRM.
type Executor struct {
	baseURL string
	csrf    string
	tokens  *TokenManager
	client  *http.Client
	limiter *rate.Limiter
	breaker *circuitBreaker
}

// NewExecutor creates an Executor that authenticates through tokens.
func NewExecutor(cfg ExecutorConfig, tokens *TokenManager) (*Executor, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, &ConfigurationError{Msg: "missing base URL"}
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, &ConfigurationError{Msg: "invalid base URL", Err: err}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "crm"
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Executor{
		baseURL: base,
		csrf:    cfg.CSRFToken,
		tokens:  tokens,
		client:  client,
		limiter: limiter,
		breaker: newCircuitBreaker(cfg.BreakerName),
	}, nil
}

// BaseURL returns the tenant base URL.
func (e *Executor) BaseURL() string { return e.baseURL }

// Tokens returns the tenant's token manager.
func (e *Executor) Tokens() *TokenManager { return e.tokens }

// BreakerState returns the circuit breaker state name.
func (e *Executor) BreakerState() string { return e.breaker.State() }

// Do performs req and decodes a JSON response body into out (when non-nil).
// A 401/403 response invalidates the cached token before returning.
func (e *Executor) Do(ctx context.Context, req Request, out interface{}) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return &RemoteRequestError{Operation: req.Operation, Method: req.Method, Err: err}
	}

	// Token failures come from the identity service and stay outside the
	// data-call breaker.
	token, err := e.tokens.Token(ctx)
	if err != nil {
		return err
	}

	err = e.breaker.execute(func() error {
		return e.do(ctx, req, token, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &RemoteRequestError{Operation: req.Operation, Method: req.Method, Err: err}
	}
	return err
}

func (e *Executor) do(ctx context.Context, req Request, token string, out interface{}) error {
	var body io.Reader = http.NoBody
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", req.Operation, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.target(e.baseURL), body)
	if err != nil {
		return &ConfigurationError{Msg: "cannot build request for " + req.Operation, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("ForceUseSession", "true")
	if e.csrf != "" {
		httpReq.Header.Set("BPMCSRF", e.csrf)
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		metrics.RecordCRMRequest(req.Style.String(), req.Method, 0, time.Since(start))
		return &RemoteRequestError{Operation: req.Operation, Method: req.Method, Err: err}
	}
	defer resp.Body.Close()
	metrics.RecordCRMRequest(req.Style.String(), req.Method, resp.StatusCode, time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		e.tokens.Invalidate()
		logging.Ctx(ctx).Warn().Int("status", resp.StatusCode).Str("operation", req.Operation).
			Msg("CRM rejected bearer token, cached token invalidated")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteRequestError{
			Operation:  req.Operation,
			Method:     req.Method,
			StatusCode: resp.StatusCode,
			Body:       string(readBodyForError(resp.Body)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return &RemoteRequestError{Operation: req.Operation, Method: req.Method, Err: fmt.Errorf("read response: %w", err)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RemoteRequestError{
			Operation: req.Operation,
			Method:    req.Method,
			Err:       fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}
