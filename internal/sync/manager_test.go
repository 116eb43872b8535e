// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/casesync/internal/config"
	"github.com/tomtom215/casesync/internal/crm"
	"github.com/tomtom215/casesync/internal/models"
	"github.com/tomtom215/casesync/internal/store"
)

// fakeCreatio serves the identity endpoint and the handful of data
// endpoints a pass touches.
type fakeCreatio struct {
	srv *httptest.Server

	mu          sync.Mutex
	tokenCalls  map[string]int
	inserts     []map[string]interface{}
	insertedIDs []string
}

func newFakeCreatio(t *testing.T) *fakeCreatio {
	t.Helper()
	f := &fakeCreatio{tokenCalls: map[string]int{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCreatio) serve(w http.ResponseWriter, r *http.Request) {
	writeJSON := func(v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	switch {
	case r.URL.Path == "/connect/token":
		_ = r.ParseForm()
		f.mu.Lock()
		f.tokenCalls[r.PostForm.Get("client_id")]++
		f.mu.Unlock()
		writeJSON(map[string]interface{}{"access_token": "tok-" + r.PostForm.Get("client_id"), "expires_in": 3600})

	case r.URL.Path == "/0/DataService/json/SyncReply/InsertQuery":
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.inserts = append(f.inserts, body)
		id := "R-42"
		f.insertedIDs = append(f.insertedIDs, id)
		f.mu.Unlock()
		writeJSON(map[string]interface{}{"success": true, "id": id})

	case strings.HasPrefix(r.URL.Path, "/0/odata/Case") && r.URL.Path != "/0/odata/Case":
		// Lookup collections: CasePriority, CaseStatus, CaseCategory.
		writeJSON(map[string]interface{}{"value": []map[string]string{{"Id": "id-" + strings.TrimPrefix(r.URL.Path, "/0/odata/"), "Name": "x"}}})

	case r.URL.Path == "/0/odata/Case":
		writeJSON(map[string]interface{}{"value": []interface{}{}})

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeCreatio) tokenCallsFor(clientID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls[clientID]
}

func testConfig(crmURL string) *config.Config {
	return &config.Config{
		CRM: config.CRMConfig{
			BaseURL:        crmURL,
			IdentityURL:    crmURL,
			ClientID:       "global",
			ClientSecret:   "global-secret",
			RequestTimeout: 5 * time.Second,
			RateBurst:      1,
		},
		Sync: config.SyncConfig{
			PassTimeout: time.Minute,
			ClaimLease:  10 * time.Minute,
			LookupMatch: config.LookupMatchPrefix,
			NoteAuthor:  "sync-bot",
		},
	}
}

func newEncryptor(t *testing.T) *config.CredentialEncryptor {
	t.Helper()
	enc, err := config.NewCredentialEncryptor("test-encryption-key-with-enough-entropy")
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error = %v", err)
	}
	return enc
}

func storeCompanyConfig(t *testing.T, st *store.Store, enc *config.CredentialEncryptor, companyID int64, url, clientID string) {
	t.Helper()
	secret, err := enc.Encrypt(clientID + "-secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if err := st.UpsertCompanyConfig(context.Background(), models.CompanyConfig{
		CompanyID:       companyID,
		BaseURL:         url,
		IdentityURL:     url,
		ClientID:        clientID,
		EncryptedSecret: secret,
		IsActive:        true,
	}); err != nil {
		t.Fatalf("UpsertCompanyConfig() error = %v", err)
	}
}

func TestManager_EndToEndWithFallbackConfig(t *testing.T) {
	fc := newFakeCreatio(t)
	st := newTestStore(t)
	companyID := seedCompany(t, st, "Acme")
	c := seedCase(t, st, companyID, "Login fails")

	m := NewManager(testConfig(fc.srv.URL), st, nil, nil, WithHTTPClient(fc.srv.Client()))
	res, err := m.RunPass(context.Background(), companyID, ModeIncremental)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if res.Synced != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}

	got := getCase(t, st, c.ID)
	if got.RemoteID != "R-42" || got.SyncStatus != models.SyncSynced {
		t.Errorf("case remote=%q status=%q, want R-42 synced", got.RemoteID, got.SyncStatus)
	}
	notes := noteContents(t, st, c.ID)
	if len(notes) != 1 || notes[0] != "Case synchronized with Creatio. Creatio ID: R-42" {
		t.Errorf("notes = %q", notes)
	}

	if len(fc.inserts) != 1 {
		t.Fatalf("inserts = %d, want 1", len(fc.inserts))
	}
	items, _ := fc.inserts[0]["columnValues"].(map[string]interface{})
	for _, col := range []string{"Subject", "PriorityId", "StatusId", "CategoryId", "Origin"} {
		if _, ok := items[col]; !ok {
			t.Errorf("insert payload lacks %s: %v", col, items)
		}
	}
	if fc.tokenCallsFor("global") != 1 {
		t.Errorf("token calls = %d, want 1", fc.tokenCallsFor("global"))
	}
}

func TestManager_TokensArePerTenant(t *testing.T) {
	fc := newFakeCreatio(t)
	st := newTestStore(t)
	enc := newEncryptor(t)
	a := seedCompany(t, st, "A")
	b := seedCompany(t, st, "B")
	storeCompanyConfig(t, st, enc, a, fc.srv.URL, "client-a")
	storeCompanyConfig(t, st, enc, b, fc.srv.URL, "client-b")

	m := NewManager(testConfig(fc.srv.URL), st, enc, nil, WithHTTPClient(fc.srv.Client()))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		for _, id := range []int64{a, b} {
			if _, err := m.RunPass(ctx, id, ModeFull); err != nil {
				t.Fatalf("RunPass(%d) error = %v", id, err)
			}
		}
	}

	if got := fc.tokenCallsFor("client-a"); got != 1 {
		t.Errorf("client-a token calls = %d, want 1", got)
	}
	if got := fc.tokenCallsFor("client-b"); got != 1 {
		t.Errorf("client-b token calls = %d, want 1", got)
	}
	if got := fc.tokenCallsFor("global"); got != 0 {
		t.Errorf("fallback credentials used %d times", got)
	}
}

func TestManager_UndecryptableSecretIsConfigurationError(t *testing.T) {
	fc := newFakeCreatio(t)
	st := newTestStore(t)
	companyID := seedCompany(t, st, "Acme")
	if err := st.UpsertCompanyConfig(context.Background(), models.CompanyConfig{
		CompanyID:       companyID,
		BaseURL:         fc.srv.URL,
		IdentityURL:     fc.srv.URL,
		ClientID:        "client",
		EncryptedSecret: "plaintext-secret",
		IsActive:        true,
	}); err != nil {
		t.Fatalf("UpsertCompanyConfig() error = %v", err)
	}

	m := NewManager(testConfig(fc.srv.URL), st, newEncryptor(t), nil, WithHTTPClient(fc.srv.Client()))
	_, err := m.RunPass(context.Background(), companyID, ModeFull)
	if !crm.IsConfigurationError(err) {
		t.Fatalf("RunPass() error = %v, want ConfigurationError", err)
	}
	if got := fc.tokenCallsFor("client"); got != 0 {
		t.Errorf("identity service called %d times", got)
	}
}

func TestManager_NoConfiguration(t *testing.T) {
	st := newTestStore(t)
	companyID := seedCompany(t, st, "Acme")
	cfg := testConfig("")

	m := NewManager(cfg, st, nil, nil)
	if _, err := m.RunPass(context.Background(), companyID, ModeFull); !crm.IsConfigurationError(err) {
		t.Errorf("RunPass() error = %v, want ConfigurationError", err)
	}

	res := m.TestConnection(context.Background(), companyID)
	if res.OK || !strings.HasPrefix(res.Message, "Connection test failed: ") {
		t.Errorf("TestConnection() = %+v", res)
	}
}

func TestManager_InactiveCompanyConfigFallsBack(t *testing.T) {
	fc := newFakeCreatio(t)
	st := newTestStore(t)
	companyID := seedCompany(t, st, "Acme")
	if err := st.UpsertCompanyConfig(context.Background(), models.CompanyConfig{
		CompanyID: companyID, BaseURL: "https://disabled.example.com", IdentityURL: "https://disabled.example.com",
		ClientID: "disabled", EncryptedSecret: "x", IsActive: false,
	}); err != nil {
		t.Fatalf("UpsertCompanyConfig() error = %v", err)
	}

	m := NewManager(testConfig(fc.srv.URL), st, nil, nil, WithHTTPClient(fc.srv.Client()))
	res := m.TestConnection(context.Background(), companyID)
	if !res.OK || res.Message != crm.ProbeSuccessMessage {
		t.Errorf("TestConnection() = %+v", res)
	}
	if fc.tokenCallsFor("global") != 1 {
		t.Errorf("fallback token calls = %d, want 1", fc.tokenCallsFor("global"))
	}
}

func TestManager_SessionRebuiltOnConfigChange(t *testing.T) {
	fc := newFakeCreatio(t)
	st := newTestStore(t)
	enc := newEncryptor(t)
	companyID := seedCompany(t, st, "Acme")
	storeCompanyConfig(t, st, enc, companyID, fc.srv.URL, "client-1")

	m := NewManager(testConfig(fc.srv.URL), st, enc, nil)
	ctx := context.Background()

	first, err := m.Orchestrator(ctx, companyID)
	if err != nil {
		t.Fatalf("Orchestrator() error = %v", err)
	}
	again, _ := m.Orchestrator(ctx, companyID)
	if first != again {
		t.Error("unchanged configuration rebuilt the session")
	}

	storeCompanyConfig(t, st, enc, companyID, fc.srv.URL, "client-2")
	rebuilt, _ := m.Orchestrator(ctx, companyID)
	if rebuilt == first {
		t.Error("changed configuration reused the old session")
	}
}

func TestManager_RunAllContinuesAfterFailure(t *testing.T) {
	fc := newFakeCreatio(t)
	st := newTestStore(t)
	enc := newEncryptor(t)
	broken := seedCompany(t, st, "Broken")
	healthy := seedCompany(t, st, "Healthy")
	if err := st.UpsertCompanyConfig(context.Background(), models.CompanyConfig{
		CompanyID: broken, BaseURL: fc.srv.URL, IdentityURL: fc.srv.URL, ClientID: "b",
		EncryptedSecret: "not-ciphertext", IsActive: true,
	}); err != nil {
		t.Fatalf("UpsertCompanyConfig() error = %v", err)
	}
	seedCase(t, st, healthy, "works")

	m := NewManager(testConfig(fc.srv.URL), st, enc, nil, WithHTTPClient(fc.srv.Client()))
	passes, err := m.RunAll(context.Background(), ModeIncremental)
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if len(passes) != 2 {
		t.Fatalf("passes = %d, want 2", len(passes))
	}
	if passes[0].CompanyID != broken || !crm.IsConfigurationError(passes[0].Err) {
		t.Errorf("first pass = %+v, want configuration error", passes[0])
	}
	if passes[1].Err != nil || passes[1].Result.Synced != 1 {
		t.Errorf("second pass = %+v, err %v", passes[1].Result, passes[1].Err)
	}
}

func TestManager_RoutesCaseOperationsByCompany(t *testing.T) {
	fc := newFakeCreatio(t)
	st := newTestStore(t)
	companyID := seedCompany(t, st, "Acme")
	c := seedCase(t, st, companyID, "push me")

	m := NewManager(testConfig(fc.srv.URL), st, nil, nil, WithHTTPClient(fc.srv.Client()))
	got, err := m.PushCase(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("PushCase() error = %v", err)
	}
	if got.RemoteID != "R-42" {
		t.Errorf("RemoteID = %q, want R-42", got.RemoteID)
	}
}
