// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/casesync/internal/config"
	"github.com/tomtom215/casesync/internal/logging"
	"github.com/tomtom215/casesync/internal/models"
	"github.com/tomtom215/casesync/internal/store"
)

type crmConfigRequest struct {
	BaseURL      string `json:"base_url" validate:"required,url"`
	IdentityURL  string `json:"identity_url" validate:"required,url"`
	ClientID     string `json:"client_id" validate:"required,max=255"`
	ClientSecret string `json:"client_secret" validate:"required"`
	IsActive     *bool  `json:"is_active"`
}

type crmConfigResponse struct {
	*models.CompanyConfig
	ClientSecret string `json:"client_secret,omitempty"`
	SecretSet    bool   `json:"client_secret_set"`
}

type createCaseRequest struct {
	Subject           string `json:"subject" validate:"required,max=255"`
	Description       string `json:"description" validate:"required"`
	ReproductionSteps string `json:"reproduction_steps"`
	Priority          string `json:"priority" validate:"required"`
	Status            string `json:"status"`
	Environment       string `json:"environment" validate:"required"`
	CaseType          string `json:"case_type" validate:"required"`
	RequestorID       int64  `json:"requestor_id" validate:"required,gt=0"`
	AssigneeID        *int64 `json:"assignee_id" validate:"omitempty,gt=0"`
}

type editCaseRequest struct {
	Subject     *string `json:"subject" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
}

type addNoteRequest struct {
	Author  string `json:"author" validate:"required,max=100"`
	Content string `json:"content" validate:"required"`
}

type caseDetail struct {
	*models.LocalCase
	Notes []models.Note `json:"notes"`
}

// GetCRMConfig returns a company's stored CRM settings without the secret.
func (h *Handler) GetCRMConfig(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "companyID")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
		return
	}
	cfg, err := h.store.GetCompanyConfig(r.Context(), companyID)
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, crmConfigResponse{CompanyConfig: cfg, SecretSet: cfg.EncryptedSecret != ""})
}

// PutCRMConfig stores a company's CRM settings. The client secret is
// encrypted before it reaches the store; the next pass picks up the change.
func (h *Handler) PutCRMConfig(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "companyID")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
		return
	}
	if h.secrets == nil {
		respondError(w, r, http.StatusServiceUnavailable, "ENCRYPTION_UNAVAILABLE",
			"No encryption key is configured; CRM credentials cannot be stored", nil)
		return
	}

	var req crmConfigRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	if _, err := h.store.GetCompany(r.Context(), companyID); err != nil {
		respondSyncError(w, r, err)
		return
	}

	encrypted, err := h.secrets.Encrypt(req.ClientSecret)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "ENCRYPTION_FAILED", "Failed to encrypt client secret", err)
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	cfg := models.CompanyConfig{
		CompanyID:       companyID,
		BaseURL:         strings.TrimRight(strings.TrimSpace(req.BaseURL), "/"),
		IdentityURL:     strings.TrimRight(strings.TrimSpace(req.IdentityURL), "/"),
		ClientID:        req.ClientID,
		EncryptedSecret: encrypted,
		IsActive:        active,
	}
	if err := h.store.UpsertCompanyConfig(r.Context(), cfg); err != nil {
		respondSyncError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Int64("company_id", companyID).
		Str("base_url", cfg.BaseURL).
		Str("client_id", cfg.ClientID).
		Str("client_secret", config.MaskCredential(req.ClientSecret)).
		Bool("active", active).
		Msg("CRM configuration updated")

	stored, err := h.store.GetCompanyConfig(r.Context(), companyID)
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, crmConfigResponse{
		CompanyConfig: stored,
		ClientSecret:  config.MaskCredential(req.ClientSecret),
		SecretSet:     true,
	})
}

// ListCases lists a company's cases, newest first.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "companyID")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
		return
	}
	if _, err := h.store.GetCompany(r.Context(), companyID); err != nil {
		respondSyncError(w, r, err)
		return
	}
	cases, err := h.store.ListCases(r.Context(), companyID)
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	if cases == nil {
		cases = []models.LocalCase{}
	}
	respondJSON(w, r, http.StatusOK, cases)
}

// CreateCase records a new case. It starts pending and is pushed by the
// next pass.
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "companyID")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
		return
	}
	var req createCaseRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	if req.Status == "" {
		req.Status = "new"
	}
	if _, err := h.store.GetCompany(r.Context(), companyID); err != nil {
		respondSyncError(w, r, err)
		return
	}
	if err := h.checkLookups(r.Context(), map[models.LookupKind]string{
		models.LookupPriority:    req.Priority,
		models.LookupStatus:      req.Status,
		models.LookupEnvironment: req.Environment,
		models.LookupCaseType:    req.CaseType,
	}); err != nil {
		respondLookupError(w, r, err)
		return
	}

	c, err := h.store.CreateCase(r.Context(), models.NewCase{
		CompanyID:         companyID,
		Subject:           strings.TrimSpace(req.Subject),
		Description:       req.Description,
		ReproductionSteps: req.ReproductionSteps,
		Priority:          req.Priority,
		Status:            req.Status,
		Environment:       req.Environment,
		CaseType:          req.CaseType,
		RequestorID:       req.RequestorID,
		AssigneeID:        req.AssigneeID,
	})
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, c)
}

// GetCase returns a case with its notes.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
		return
	}
	c, err := h.store.GetCase(r.Context(), caseID)
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	notes, err := h.store.ListNotes(r.Context(), caseID)
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	if notes == nil {
		notes = []models.Note{}
	}
	respondJSON(w, r, http.StatusOK, caseDetail{LocalCase: c, Notes: notes})
}

// EditCase applies a local edit. The case becomes pending so the next pass
// pushes the change.
func (h *Handler) EditCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
		return
	}
	var req editCaseRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	if req.Subject == nil && req.Description == nil && req.Status == "" && req.Priority == "" {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "no fields to update", nil)
		return
	}

	refs := map[models.LookupKind]string{}
	if req.Status != "" {
		refs[models.LookupStatus] = req.Status
	}
	if req.Priority != "" {
		refs[models.LookupPriority] = req.Priority
	}
	if err := h.checkLookups(r.Context(), refs); err != nil {
		respondLookupError(w, r, err)
		return
	}

	c, err := h.store.EditCase(r.Context(), caseID, models.CaseUpdate{
		Subject:     req.Subject,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
	})
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, c)
}

// AddNote appends a user note to a case.
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	caseID, err := pathID(r, "caseID")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
		return
	}
	var req addNoteRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	if _, err := h.store.GetCase(r.Context(), caseID); err != nil {
		respondSyncError(w, r, err)
		return
	}
	n, err := h.store.AddNote(r.Context(), models.Note{CaseID: caseID, Author: req.Author, Content: req.Content})
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, n)
}

// ListLookups returns the values of one lookup kind.
func (h *Handler) ListLookups(w http.ResponseWriter, r *http.Request) {
	kind := models.LookupKind(chi.URLParam(r, "kind"))
	switch kind {
	case models.LookupPriority, models.LookupStatus, models.LookupEnvironment, models.LookupCaseType:
	default:
		respondError(w, r, http.StatusBadRequest, "INVALID_LOOKUP_KIND",
			fmt.Sprintf("unknown lookup kind %q", sanitizeLogValue(string(kind))), nil)
		return
	}
	lookups, err := h.store.ListLookups(r.Context(), kind)
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, lookups)
}

// errUnknownLookup marks a request naming a lookup value that does not exist.
var errUnknownLookup = errors.New("unknown lookup value")

func (h *Handler) checkLookups(ctx context.Context, refs map[models.LookupKind]string) error {
	for kind, value := range refs {
		_, err := h.store.GetLookup(ctx, kind, value)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s %q", errUnknownLookup, kind, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func respondLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errUnknownLookup) {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", sanitizeLogValue(err.Error()), nil)
		return
	}
	respondSyncError(w, r, err)
}
