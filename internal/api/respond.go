// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/casesync/internal/crm"
	"github.com/tomtom215/casesync/internal/logging"
	"github.com/tomtom215/casesync/internal/models"
	"github.com/tomtom215/casesync/internal/store"
	syncpkg "github.com/tomtom215/casesync/internal/sync"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// sanitizeLogValue escapes control characters so request-derived values
// cannot forge log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeEnvelope(w, r, status, &models.APIResponse{Status: "success", Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Error().
			Str("code", sanitizeLogValue(code)).
			Str("path", sanitizeLogValue(r.URL.Path)).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API error")
	}
	writeEnvelope(w, r, status, &models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: code, Message: message},
	})
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, resp *models.APIResponse) {
	resp.Metadata = models.Metadata{
		Timestamp:     time.Now().UTC(),
		CorrelationID: logging.CorrelationIDFromContext(r.Context()),
	}

	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// decodeBody reads a JSON body into v and validates it.
func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("body exceeds %d bytes", maxBodyBytes)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return validateRequest(v)
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, sanitizeLogValue(raw))
	}
	return id, nil
}

// respondSyncError maps store, sync and CRM errors to HTTP statuses.
func respondSyncError(w http.ResponseWriter, r *http.Request, err error) {
	var remoteErr *crm.RemoteRequestError
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, crm.ErrRemoteCaseNotFound):
		respondError(w, r, http.StatusNotFound, "REMOTE_NOT_FOUND", "Case no longer exists in the CRM", err)
	case errors.Is(err, syncpkg.ErrWrongCompany):
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Resource not found", err)
	case errors.Is(err, syncpkg.ErrPassInProgress):
		respondError(w, r, http.StatusConflict, "SYNC_IN_PROGRESS", "A sync pass is already running for this company", nil)
	case errors.Is(err, syncpkg.ErrCaseClaimed), errors.Is(err, store.ErrCaseBusy), errors.Is(err, store.ErrClaimLost):
		respondError(w, r, http.StatusConflict, "CASE_BUSY", "Case is being synchronized", nil)
	case errors.Is(err, syncpkg.ErrNoRemote):
		respondError(w, r, http.StatusConflict, "NOT_SYNCED", "Case has not been pushed to the CRM yet", nil)
	case errors.Is(err, syncpkg.ErrLocalChangesPending):
		respondError(w, r, http.StatusConflict, "LOCAL_CHANGES_PENDING", "Case has local changes that have not been pushed", nil)
	case errors.Is(err, syncpkg.ErrSystemNote):
		respondError(w, r, http.StatusBadRequest, "SYSTEM_NOTE", "System notes are not posted to the CRM", nil)
	case crm.IsConfigurationError(err):
		respondError(w, r, http.StatusUnprocessableEntity, "CRM_NOT_CONFIGURED", err.Error(), err)
	case crm.IsAuthFailure(err):
		respondError(w, r, http.StatusBadGateway, "CRM_AUTH_FAILED", "CRM authentication failed", err)
	case errors.As(err, &remoteErr):
		respondError(w, r, http.StatusBadGateway, "CRM_REQUEST_FAILED", "CRM request failed", err)
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "Operation timed out", err)
	default:
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", err)
	}
}
