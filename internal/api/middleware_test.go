// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/casesync/internal/config"
	"github.com/tomtom215/casesync/internal/metrics"
)

func TestHealth_IsPublic(t *testing.T) {
	a := newTestAPI(t)
	rec := a.doWithToken(http.MethodGet, "/healthz", nil, "")

	var body map[string]string
	env := decode(t, rec, http.StatusOK, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
	if env.Metadata.CorrelationID == "" {
		t.Error("metadata correlation_id is empty")
	}
	if rec.Header().Get("X-Correlation-ID") != env.Metadata.CorrelationID {
		t.Errorf("X-Correlation-ID = %q, want %q", rec.Header().Get("X-Correlation-ID"), env.Metadata.CorrelationID)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	a := newTestAPI(t)
	_ = a.store.Close()

	if code := errorCode(t, a.doWithToken(http.MethodGet, "/healthz", nil, ""), http.StatusServiceUnavailable); code != "UNHEALTHY" {
		t.Errorf("code = %q, want UNHEALTHY", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	rec := a.doWithToken(http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequireOperator(t *testing.T) {
	a := newTestAPI(t)
	path := "/api/v1/lookups/priority"

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic b3BzOm9wcw=="},
		{"empty bearer", "Bearer "},
		{"invalid token", "Bearer not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			a.router.ServeHTTP(rec, req)
			if code := errorCode(t, rec, http.StatusUnauthorized); code != "UNAUTHORIZED" {
				t.Errorf("code = %q, want UNAUTHORIZED", code)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("WWW-Authenticate header missing")
			}
		})
	}

	decode(t, a.do(http.MethodGet, path, nil), http.StatusOK, nil)
}

func TestRateLimit(t *testing.T) {
	a := newTestAPI(t, withMiddleware(MiddlewareConfig{RateLimitRequests: 2, RateLimitWindow: time.Minute}))

	for i := 0; i < 2; i++ {
		decode(t, a.doWithToken(http.MethodGet, "/healthz", nil, ""), http.StatusOK, nil)
	}
	if code := errorCode(t, a.doWithToken(http.MethodGet, "/healthz", nil, ""), http.StatusTooManyRequests); code != "RATE_LIMITED" {
		t.Errorf("code = %q, want RATE_LIMITED", code)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	a := newTestAPI(t, withMiddleware(MiddlewareConfig{RateLimitRequests: 1, RateLimitWindow: time.Minute, RateLimitDisabled: true}))
	for i := 0; i < 5; i++ {
		decode(t, a.doWithToken(http.MethodGet, "/healthz", nil, ""), http.StatusOK, nil)
	}
}

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	a := newTestAPI(t, withMiddleware(MiddlewareConfig{
		CORSAllowedOrigins: []string{"https://tracker.example.com"},
		RateLimitDisabled:  true,
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/lookups/priority", nil)
	req.Header.Set("Origin", "https://tracker.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://tracker.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q, want configured origin", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/lookups/priority", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q for unknown origin, want empty", got)
	}
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	a := newTestAPI(t)
	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/lookups/{kind}", "200")
	before := testutil.ToFloat64(counter)

	decode(t, a.do(http.MethodGet, "/api/v1/lookups/status", nil), http.StatusOK, nil)

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("api requests delta = %v, want 1", got)
	}
}

func TestMiddlewareConfigFrom_Defaults(t *testing.T) {
	mc := MiddlewareConfigFrom(config.SecurityConfig{CORSOrigins: []string{"https://a.example"}})
	if mc.RateLimitRequests != 100 || mc.RateLimitWindow != time.Minute {
		t.Errorf("rate limit = %d/%v, want 100/1m", mc.RateLimitRequests, mc.RateLimitWindow)
	}
	if len(mc.CORSAllowedOrigins) != 1 {
		t.Errorf("CORS origins = %v, want 1", mc.CORSAllowedOrigins)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	if got := sanitizeLogValue("a\nb\x7f"); got != `a\x0ab\x7f` {
		t.Errorf("sanitizeLogValue() = %q", got)
	}
}
