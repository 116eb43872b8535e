// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/casesync/internal/config"
	"github.com/tomtom215/casesync/internal/logging"
	"github.com/tomtom215/casesync/internal/metrics"
)

// MiddlewareConfig holds CORS and rate limit settings.
type MiddlewareConfig struct {
	CORSAllowedOrigins []string
	CORSMaxAge         int // seconds

	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// MiddlewareConfigFrom builds a MiddlewareConfig from the security settings.
// Zero rate limit values fall back to 100 requests per minute.
func MiddlewareConfigFrom(sec config.SecurityConfig) MiddlewareConfig {
	mc := MiddlewareConfig{
		CORSAllowedOrigins: sec.CORSOrigins,
		CORSMaxAge:         86400,
		RateLimitRequests:  sec.RateLimitReqs,
		RateLimitWindow:    sec.RateLimitWindow,
		RateLimitDisabled:  sec.RateLimitDisabled,
	}
	if mc.RateLimitRequests <= 0 {
		mc.RateLimitRequests = 100
	}
	if mc.RateLimitWindow <= 0 {
		mc.RateLimitWindow = time.Minute
	}
	return mc
}

// CORS returns the go-chi/cors handler. No origins are allowed unless
// configured.
func CORS(mc MiddlewareConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: mc.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Correlation-ID"},
		MaxAge:         mc.CORSMaxAge,
	})
}

// RateLimit returns an IP-keyed httprate limiter, or a no-op when disabled.
func RateLimit(mc MiddlewareConfig) func(http.Handler) http.Handler {
	if mc.RateLimitDisabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(
		mc.RateLimitRequests,
		mc.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
		}),
	)
}

// RequestIDWithLogging wraps chi's RequestID and starts a correlation id for
// the request, so sync passes triggered by it log under the same id.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return chimiddleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logging.ContextWithNewCorrelationID(r.Context())
			ctx = logging.ContextWithLogger(ctx, logging.WithComponent("api"))
			w.Header().Set("X-Correlation-ID", logging.CorrelationIDFromContext(ctx))
			if reqID := chimiddleware.GetReqID(ctx); reqID != "" {
				w.Header().Set("X-Request-ID", reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		}))
	}
}

// Metrics records request counts and latency by route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordAPIRequest(r.Method, route, strconv.Itoa(status), time.Since(start))
	})
}

type claimsKey struct{}

// ClaimsFromContext returns the verified operator claims of the request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// RequireOperator rejects requests without a valid operator bearer token.
func RequireOperator(jwtManager *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="casesync"`)
				respondError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Bearer token required", nil)
				return
			}

			claims, err := jwtManager.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logging.Ctx(r.Context()).Warn().Str("error", sanitizeLogValue(err.Error())).Msg("Rejected bearer token")
				w.Header().Set("WWW-Authenticate", `Bearer realm="casesync", error="invalid_token"`)
				respondError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token", nil)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
