// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/tomtom215/casesync/internal/config"
	"github.com/tomtom215/casesync/internal/crm"
	"github.com/tomtom215/casesync/internal/logging"
	"github.com/tomtom215/casesync/internal/models"
	"github.com/tomtom215/casesync/internal/store"
)

// Store is everything the Manager needs from the case store.
type Store interface {
	CaseStore
	GetCompanyConfig(ctx context.Context, companyID int64) (*models.CompanyConfig, error)
	ListActiveCompanies(ctx context.Context) ([]models.Company, error)
}

// SecretDecrypter decrypts stored company client secrets.
type SecretDecrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// endpoint is the effective CRM configuration of one company.
type endpoint struct {
	BaseURL      string
	IdentityURL  string
	ClientID     string
	ClientSecret string
	Fallback     bool
}

// session holds the CRM objects of one company. It lives until the
// company's effective configuration changes.
type session struct {
	endpoint     endpoint
	tokens       *crm.TokenManager
	probe        *crm.Probe
	orchestrator *Orchestrator
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithHTTPClient sets the HTTP client used for all CRM calls.
func WithHTTPClient(c *http.Client) ManagerOption {
	return func(m *Manager) { m.httpClient = c }
}

// WithLookupCache shares a lookup cache across tenants. Keys carry the
// tenant base URL.
func WithLookupCache(c crm.LookupCache) ManagerOption {
	return func(m *Manager) { m.lookupCache = c }
}

// Manager routes sync work to per-company sessions.
type Manager struct {
	crmCfg  config.CRMConfig
	syncCfg config.SyncConfig
	store   Store
	secrets SecretDecrypter
	events  EventSink

	httpClient  *http.Client
	lookupCache crm.LookupCache
	locks       *companyLocks

	mu       sync.Mutex
	sessions map[int64]*session
}

// NewManager creates a Manager. secrets may be nil when no company stores
// its own credentials; sink may be nil.
func NewManager(cfg *config.Config, st Store, secrets SecretDecrypter, sink EventSink, opts ...ManagerOption) *Manager {
	m := &Manager{
		crmCfg:   cfg.CRM,
		syncCfg:  cfg.Sync,
		store:    st,
		secrets:  secrets,
		events:   sink,
		locks:    newCompanyLocks(),
		sessions: make(map[int64]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// resolveEndpoint returns the company's active stored configuration, or the
// process-wide fallback when it has none.
func (m *Manager) resolveEndpoint(ctx context.Context, companyID int64) (endpoint, error) {
	cc, err := m.store.GetCompanyConfig(ctx, companyID)
	switch {
	case err == nil && cc.IsActive:
		if m.secrets == nil {
			return endpoint{}, &crm.ConfigurationError{
				Msg: fmt.Sprintf("company %d stores credentials but no encryption key is configured", companyID),
			}
		}
		secret, derr := m.secrets.Decrypt(cc.EncryptedSecret)
		if derr != nil {
			return endpoint{}, &crm.ConfigurationError{
				Msg: fmt.Sprintf("cannot decrypt client secret of company %d", companyID),
				Err: derr,
			}
		}
		return endpoint{
			BaseURL:      cc.BaseURL,
			IdentityURL:  cc.IdentityURL,
			ClientID:     cc.ClientID,
			ClientSecret: secret,
		}, nil
	case err == nil, errors.Is(err, store.ErrNotFound):
		// Inactive or absent: fall back.
	default:
		return endpoint{}, err
	}

	if !m.crmCfg.Configured() {
		return endpoint{}, &crm.ConfigurationError{Msg: fmt.Sprintf("no CRM configuration for company %d", companyID)}
	}
	return endpoint{
		BaseURL:      m.crmCfg.BaseURL,
		IdentityURL:  m.crmCfg.IdentityURL,
		ClientID:     m.crmCfg.ClientID,
		ClientSecret: m.crmCfg.ClientSecret,
		Fallback:     true,
	}, nil
}

func (m *Manager) session(ctx context.Context, companyID int64) (*session, error) {
	ep, err := m.resolveEndpoint(ctx, companyID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[companyID]; ok && s.endpoint == ep {
		return s, nil
	}

	var tokenOpts []crm.TokenOption
	if m.httpClient != nil {
		tokenOpts = append(tokenOpts, crm.WithTokenHTTPClient(m.httpClient))
	}
	tokens := crm.NewTokenManager(crm.Credentials{
		IdentityURL:  ep.IdentityURL,
		ClientID:     ep.ClientID,
		ClientSecret: ep.ClientSecret,
	}, tokenOpts...)

	exec, err := crm.NewExecutor(crm.ExecutorConfig{
		BaseURL:     ep.BaseURL,
		CSRFToken:   m.crmCfg.CSRFToken,
		Timeout:     m.crmCfg.RequestTimeout,
		RateLimit:   m.crmCfg.RateLimit,
		RateBurst:   m.crmCfg.RateBurst,
		BreakerName: fmt.Sprintf("company-%d", companyID),
		HTTPClient:  m.httpClient,
	}, tokens)
	if err != nil {
		return nil, err
	}

	cases := crm.NewCaseAPI(exec)
	resolver := crm.NewResolver(exec, crm.ParseMatchMode(m.syncCfg.LookupMatch), m.lookupCache)
	orch := newOrchestrator(companyID, m.store, cases, crm.NewTranslator(resolver), tokens, m.events, Options{
		PassTimeout: m.syncCfg.PassTimeout,
		ClaimLease:  m.syncCfg.ClaimLease,
		NoteAuthor:  m.syncCfg.NoteAuthor,
	}, m.locks)

	s := &session{
		endpoint:     ep,
		tokens:       tokens,
		probe:        crm.NewProbe(tokens, cases),
		orchestrator: orch,
	}
	if _, replaced := m.sessions[companyID]; replaced {
		logging.Info().Int64("company_id", companyID).Msg("CRM configuration changed, session rebuilt")
	}
	m.sessions[companyID] = s
	return s, nil
}

// Orchestrator returns the orchestrator of a company.
func (m *Manager) Orchestrator(ctx context.Context, companyID int64) (*Orchestrator, error) {
	s, err := m.session(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return s.orchestrator, nil
}

// RunPass runs one pass for a company.
func (m *Manager) RunPass(ctx context.Context, companyID int64, mode Mode) (*PassResult, error) {
	o, err := m.Orchestrator(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return o.RunPass(ctx, mode)
}

// CompanyPass is the outcome of one company's pass within RunAll.
type CompanyPass struct {
	CompanyID int64
	Result    *PassResult
	Err       error
}

// RunAll runs a pass for every active company in turn. A failing company
// does not stop the others.
func (m *Manager) RunAll(ctx context.Context, mode Mode) ([]CompanyPass, error) {
	companies, err := m.store.ListActiveCompanies(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]CompanyPass, 0, len(companies))
	for _, c := range companies {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := m.RunPass(ctx, c.ID, mode)
		if err != nil {
			logging.Error().Err(err).Int64("company_id", c.ID).Str("company", c.Name).Msg("Sync pass failed")
		}
		out = append(out, CompanyPass{CompanyID: c.ID, Result: res, Err: err})
	}
	return out, nil
}

// TestConnection checks that a company can authenticate and read from its
// CRM. Configuration problems are reported in the result.
func (m *Manager) TestConnection(ctx context.Context, companyID int64) crm.ProbeResult {
	s, err := m.session(ctx, companyID)
	if err != nil {
		return crm.ProbeResult{OK: false, Message: "Connection test failed: " + err.Error()}
	}
	return s.probe.Test(logging.ContextWithCompanyID(ctx, companyID))
}

// PushCase pushes one case to its company's CRM.
func (m *Manager) PushCase(ctx context.Context, caseID int64) (*models.LocalCase, error) {
	c, err := m.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	o, err := m.Orchestrator(ctx, c.CompanyID)
	if err != nil {
		return nil, err
	}
	return o.PushOne(ctx, caseID)
}

// RefreshCase pulls one case from its company's CRM.
func (m *Manager) RefreshCase(ctx context.Context, caseID int64) (*models.LocalCase, error) {
	c, err := m.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	o, err := m.Orchestrator(ctx, c.CompanyID)
	if err != nil {
		return nil, err
	}
	return o.RefreshCase(ctx, caseID)
}

// PushNote posts a user note as a CRM comment.
func (m *Manager) PushNote(ctx context.Context, noteID int64) (*models.Note, error) {
	n, err := m.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	c, err := m.store.GetCase(ctx, n.CaseID)
	if err != nil {
		return nil, err
	}
	o, err := m.Orchestrator(ctx, c.CompanyID)
	if err != nil {
		return nil, err
	}
	return o.PushNote(ctx, noteID)
}
