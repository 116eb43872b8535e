// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/tomtom215/casesync/internal/logging"
	"github.com/tomtom215/casesync/internal/models"
	syncpkg "github.com/tomtom215/casesync/internal/sync"
)

// TriggerSync runs a manual pass for one company. The connection is checked
// first; a failing check is reported without starting the pass.
//
// Query: full=true runs a full pass instead of an incremental one.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "companyID")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
		return
	}
	mode := syncpkg.ModeIncremental
	if full, _ := strconv.ParseBool(r.URL.Query().Get("full")); full {
		mode = syncpkg.ModeFull
	}

	// The pass deadline bounds the work; a client disconnect does not abort it.
	ctx := context.WithoutCancel(r.Context())

	if _, err := h.store.GetCompany(ctx, companyID); err != nil {
		respondSyncError(w, r, err)
		return
	}

	probe := h.sync.TestConnection(ctx, companyID)
	if !probe.OK {
		respondError(w, r, http.StatusBadGateway, "CONNECTION_FAILED", probe.Message, nil)
		return
	}

	result, err := h.sync.RunPass(ctx, companyID, mode)
	if err != nil && (result == nil || !result.Interrupted) {
		respondSyncError(w, r, err)
		return
	}

	summary := models.SyncSummary{
		SyncedCount: result.Synced,
		FailedCount: result.Failed,
		Message:     result.Message(),
		Interrupted: result.Interrupted,
		Result:      result,
	}
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Int64("company_id", companyID).Msg("Manual sync interrupted")
	}
	respondJSON(w, r, http.StatusOK, summary)
}

// TestConnection reports whether a company can authenticate and read from
// its CRM. Failures are described in the result, not the status code.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "companyID")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
		return
	}
	if _, err := h.store.GetCompany(r.Context(), companyID); err != nil {
		respondSyncError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, h.sync.TestConnection(r.Context(), companyID))
}

// PushCase pushes one case to the CRM now. A failed push returns the case to
// pending with its sync error recorded and answers 502.
func (h *Handler) PushCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
		return
	}
	c, err := h.sync.PushCase(context.WithoutCancel(r.Context()), caseID)
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, c)
}

// RefreshCase pulls one case from the CRM now.
func (h *Handler) RefreshCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
		return
	}
	c, err := h.sync.RefreshCase(r.Context(), caseID)
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, c)
}

// PushNote posts a user note as a comment on the remote case.
func (h *Handler) PushNote(w http.ResponseWriter, r *http.Request) {
	noteID, err := pathID(r, "noteID")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
		return
	}
	n, err := h.sync.PushNote(context.WithoutCancel(r.Context()), noteID)
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, n)
}
