// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the chi router.
//
// Middleware order matters: request ids and correlation ids come first so
// every later log line carries them, then panic recovery, then metrics so
// rejected requests are counted too, then CORS and rate limiting.
func NewRouter(h *Handler, jwtManager *JWTManager, mc MiddlewareConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(Metrics)
	r.Use(CORS(mc))
	r.Use(RateLimit(mc))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireOperator(jwtManager))

		r.Route("/companies/{companyID}", func(r chi.Router) {
			r.Post("/sync", h.TriggerSync)
			r.Get("/connection", h.TestConnection)
			r.Get("/crm-config", h.GetCRMConfig)
			r.Put("/crm-config", h.PutCRMConfig)
			r.Get("/cases", h.ListCases)
			r.Post("/cases", h.CreateCase)
		})

		r.Route("/cases/{caseID}", func(r chi.Router) {
			r.Get("/", h.GetCase)
			r.Patch("/", h.EditCase)
			r.Post("/push", h.PushCase)
			r.Post("/refresh", h.RefreshCase)
			r.Post("/notes", h.AddNote)
		})

		r.Post("/notes/{noteID}/push", h.PushNote)
		r.Get("/lookups/{kind}", h.ListLookups)
	})

	return r
}
