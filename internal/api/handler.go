// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/casesync/internal/crm"
	"github.com/tomtom215/casesync/internal/models"
	syncpkg "github.com/tomtom215/casesync/internal/sync"
)

// SyncService is the part of sync.Manager the API drives.
type SyncService interface {
	RunPass(ctx context.Context, companyID int64, mode syncpkg.Mode) (*syncpkg.PassResult, error)
	TestConnection(ctx context.Context, companyID int64) crm.ProbeResult
	PushCase(ctx context.Context, caseID int64) (*models.LocalCase, error)
	RefreshCase(ctx context.Context, caseID int64) (*models.LocalCase, error)
	PushNote(ctx context.Context, noteID int64) (*models.Note, error)
}

// Store is the case store surface the API reads and edits.
type Store interface {
	Ping(ctx context.Context) error
	GetCompany(ctx context.Context, id int64) (*models.Company, error)
	GetCompanyConfig(ctx context.Context, companyID int64) (*models.CompanyConfig, error)
	UpsertCompanyConfig(ctx context.Context, cfg models.CompanyConfig) error
	ListCases(ctx context.Context, companyID int64) ([]models.LocalCase, error)
	GetCase(ctx context.Context, id int64) (*models.LocalCase, error)
	CreateCase(ctx context.Context, nc models.NewCase) (*models.LocalCase, error)
	EditCase(ctx context.Context, id int64, u models.CaseUpdate) (*models.LocalCase, error)
	ListNotes(ctx context.Context, caseID int64) ([]models.Note, error)
	AddNote(ctx context.Context, n models.Note) (*models.Note, error)
	ListLookups(ctx context.Context, kind models.LookupKind) ([]models.Lookup, error)
	GetLookup(ctx context.Context, kind models.LookupKind, value string) (*models.Lookup, error)
}

// SecretEncrypter encrypts tenant client secrets before they are stored.
type SecretEncrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Handler serves the API endpoints.
type Handler struct {
	sync    SyncService
	store   Store
	secrets SecretEncrypter

	healthTimeout time.Duration
}

// NewHandler creates a Handler. secrets may be nil, in which case tenant
// CRM configuration cannot be written.
func NewHandler(svc SyncService, st Store, secrets SecretEncrypter) *Handler {
	return &Handler{
		sync:          svc,
		store:         st,
		secrets:       secrets,
		healthTimeout: 2 * time.Second,
	}
}

// Health reports whether the case store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.healthTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		respondError(w, r, http.StatusServiceUnavailable, "UNHEALTHY", "Database unreachable", err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
