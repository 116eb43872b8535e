// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/casesync/internal/config"
	"github.com/tomtom215/casesync/internal/crm"
	"github.com/tomtom215/casesync/internal/models"
	"github.com/tomtom215/casesync/internal/store"
	syncpkg "github.com/tomtom215/casesync/internal/sync"
)

const (
	testJWTSecret     = "test-jwt-secret-that-is-long-enough-123"
	testEncryptionKey = "test-encryption-key-with-enough-entropy"
)

var dbSeq atomic.Int64

// fakeSync stands in for sync.Manager.
type fakeSync struct {
	mu     sync.Mutex
	store  *store.Store
	probe  crm.ProbeResult
	result *syncpkg.PassResult
	err    error
	modes  []syncpkg.Mode
	probes int

	caseErr error
	pushed  []int64
	notes   []int64
}

func (f *fakeSync) RunPass(_ context.Context, companyID int64, mode syncpkg.Mode) (*syncpkg.PassResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, mode)
	if f.result != nil {
		res := *f.result
		res.CompanyID = companyID
		res.Mode = mode
		return &res, f.err
	}
	return nil, f.err
}

func (f *fakeSync) TestConnection(context.Context, int64) crm.ProbeResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.probe
}

func (f *fakeSync) PushCase(ctx context.Context, caseID int64) (*models.LocalCase, error) {
	f.mu.Lock()
	f.pushed = append(f.pushed, caseID)
	err := f.caseErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.store.GetCase(ctx, caseID)
}

func (f *fakeSync) RefreshCase(ctx context.Context, caseID int64) (*models.LocalCase, error) {
	f.mu.Lock()
	err := f.caseErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.store.GetCase(ctx, caseID)
}

func (f *fakeSync) PushNote(ctx context.Context, noteID int64) (*models.Note, error) {
	f.mu.Lock()
	f.notes = append(f.notes, noteID)
	err := f.caseErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.store.GetNote(ctx, noteID)
}

type testAPI struct {
	t       *testing.T
	router  http.Handler
	store   *store.Store
	sync    *fakeSync
	jwt     *JWTManager
	token   string
	company int64
}

type apiOption func(*apiSetup)

type apiSetup struct {
	mc      MiddlewareConfig
	secrets SecretEncrypter
}

func withMiddleware(mc MiddlewareConfig) apiOption {
	return func(s *apiSetup) { s.mc = mc }
}

func withoutEncryption() apiOption {
	return func(s *apiSetup) { s.secrets = nil }
}

func newTestAPI(t *testing.T, opts ...apiOption) *testAPI {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    fmt.Sprintf("file:api_test_%d?mode=memory&cache=shared", dbSeq.Add(1)),
	})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	company, err := st.CreateCompany(ctx, "ACME Corporation")
	if err != nil {
		t.Fatalf("CreateCompany() error = %v", err)
	}

	enc, err := config.NewCredentialEncryptor(testEncryptionKey)
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error = %v", err)
	}
	setup := apiSetup{
		mc:      MiddlewareConfig{RateLimitDisabled: true},
		secrets: enc,
	}
	for _, opt := range opts {
		opt(&setup)
	}

	jwtManager, err := NewJWTManager(testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}
	token, err := jwtManager.GenerateToken("ops")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	fs := &fakeSync{store: st, probe: crm.ProbeResult{OK: true, Message: crm.ProbeSuccessMessage}}
	return &testAPI{
		t:       t,
		router:  NewRouter(NewHandler(fs, st, setup.secrets), jwtManager, setup.mc),
		store:   st,
		sync:    fs,
		jwt:     jwtManager,
		token:   token,
		company: company.ID,
	}
}

// do sends an authenticated request. body is JSON-encoded when non-nil.
func (a *testAPI) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	return a.doWithToken(method, path, body, a.token)
}

func (a *testAPI) doWithToken(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) seedCase(subject string) *models.LocalCase {
	a.t.Helper()
	c, err := a.store.CreateCase(context.Background(), models.NewCase{
		CompanyID:   a.company,
		Subject:     subject,
		Description: "description of " + subject,
		Priority:    "high",
		Status:      "new",
		Environment: "staging",
		CaseType:    "bug",
		RequestorID: 1,
	})
	if err != nil {
		a.t.Fatalf("CreateCase() error = %v", err)
	}
	return c
}

type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

// decode parses the response envelope, checks the status code and decodes
// data into out when out is non-nil.
func decode(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, out interface{}) envelope {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, wantStatus, rec.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v; body = %s", err, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode data: %v; data = %s", err, env.Data)
		}
	}
	return env
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int) string {
	t.Helper()
	env := decode(t, rec, wantStatus, nil)
	if env.Status != "error" || env.Error == nil {
		t.Fatalf("envelope = %+v, want error", env)
	}
	return env.Error.Code
}
