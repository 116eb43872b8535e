// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/casesync/internal/config"
	"github.com/tomtom215/casesync/internal/crm"
	"github.com/tomtom215/casesync/internal/events"
	"github.com/tomtom215/casesync/internal/models"
	"github.com/tomtom215/casesync/internal/store"
)

var dbSeq atomic.Int64

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    fmt.Sprintf("file:sync_test_%d?mode=memory&cache=shared", dbSeq.Add(1)),
	})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedCompany(t *testing.T, s *store.Store, name string) int64 {
	t.Helper()
	c, err := s.CreateCompany(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateCompany() error = %v", err)
	}
	return c.ID
}

func seedCase(t *testing.T, s *store.Store, companyID int64, subject string) *models.LocalCase {
	t.Helper()
	c, err := s.CreateCase(context.Background(), models.NewCase{
		CompanyID:   companyID,
		Subject:     subject,
		Description: "description of " + subject,
		Priority:    "high",
		Status:      "new",
		Environment: "staging",
		CaseType:    "bug",
		RequestorID: 1,
	})
	if err != nil {
		t.Fatalf("CreateCase() error = %v", err)
	}
	return c
}

// markSynced puts a case into the synced state with the given remote id.
func markSynced(t *testing.T, s *store.Store, caseID int64, remoteID string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	if ok, err := s.ClaimForPush(ctx, caseID, at, at.Add(-time.Minute)); err != nil || !ok {
		t.Fatalf("ClaimForPush(%d) = %v, %v", caseID, ok, err)
	}
	if err := s.MarkSynced(ctx, caseID, at, remoteID, at); err != nil {
		t.Fatalf("MarkSynced() error = %v", err)
	}
}

func getCase(t *testing.T, s *store.Store, id int64) *models.LocalCase {
	t.Helper()
	c, err := s.GetCase(context.Background(), id)
	if err != nil {
		t.Fatalf("GetCase(%d) error = %v", id, err)
	}
	return c
}

func noteContents(t *testing.T, s *store.Store, caseID int64) []string {
	t.Helper()
	notes, err := s.ListNotes(context.Background(), caseID)
	if err != nil {
		t.Fatalf("ListNotes() error = %v", err)
	}
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.Content)
	}
	return out
}

type pushCall struct {
	RemoteID string
	Fields   map[string]interface{}
}

// fakeRemote is an in-memory CRM case API.
type fakeRemote struct {
	mu sync.Mutex

	nextID   int
	creates  []pushCall
	updates  []pushCall
	comments []crm.Comment
	since    []*time.Time
	listed   int

	// failSubjects makes pushes of cases with these subjects fail.
	failSubjects map[string]bool
	records      []crm.RemoteCase
	listErr      error
	byID         map[string]*crm.RemoteCase

	// afterPush runs after every successful create or update.
	afterPush func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{failSubjects: map[string]bool{}, byID: map[string]*crm.RemoteCase{}}
}

func (f *fakeRemote) CreateCase(ctx context.Context, fields map[string]interface{}) (string, error) {
	f.mu.Lock()
	if f.failSubjects[fmt.Sprint(fields["Subject"])] {
		f.mu.Unlock()
		return "", &crm.RemoteRequestError{Operation: "InsertQuery", Method: "POST", StatusCode: 500, Body: "boom"}
	}
	f.nextID++
	id := fmt.Sprintf("R-%d", f.nextID)
	f.creates = append(f.creates, pushCall{RemoteID: id, Fields: fields})
	hook := f.afterPush
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return id, nil
}

func (f *fakeRemote) UpdateCase(ctx context.Context, id string, fields map[string]interface{}) error {
	f.mu.Lock()
	if f.failSubjects[fmt.Sprint(fields["Subject"])] {
		f.mu.Unlock()
		return &crm.RemoteRequestError{Operation: "UpdateQuery", Method: "POST", StatusCode: 500, Body: "boom"}
	}
	f.updates = append(f.updates, pushCall{RemoteID: id, Fields: fields})
	hook := f.afterPush
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeRemote) GetCase(ctx context.Context, id string) (*crm.RemoteCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.byID[id]
	if !ok {
		return nil, crm.ErrRemoteCaseNotFound
	}
	cp := *rc
	return &cp, nil
}

func (f *fakeRemote) AddComment(ctx context.Context, c crm.Comment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, c)
	return fmt.Sprintf("C-%d", len(f.comments)), nil
}

func (f *fakeRemote) ListModifiedSince(ctx context.Context, since *time.Time) ([]crm.RemoteCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	f.since = append(f.since, since)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]crm.RemoteCase(nil), f.records...), nil
}

// nameResolver resolves lookup names from a fixed table.
type nameResolver map[string]string

func (r nameResolver) Resolve(_ context.Context, kind crm.LookupKind, name string) (string, bool) {
	id, ok := r[string(kind)+"/"+name]
	return id, ok
}

var allLookups = nameResolver{
	"priority/High": "prio-high",
	"status/New":    "status-new",
	"category/Bug":  "cat-bug",
}

type fakeAuth struct{ err error }

func (a fakeAuth) Token(context.Context) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return "token", nil
}

// recordingSink collects emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Emit(_ context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.TopicSuffix())
	}
	return out
}

type harness struct {
	store     *store.Store
	remote    *fakeRemote
	sink      *recordingSink
	orch      *Orchestrator
	companyID int64
}

func newHarness(t *testing.T, resolver nameResolver) *harness {
	t.Helper()
	s := newTestStore(t)
	companyID := seedCompany(t, s, "Acme")
	remote := newFakeRemote()
	sink := &recordingSink{}

	o := NewOrchestrator(companyID, s, remote, crm.NewTranslator(resolver), fakeAuth{}, sink, Options{
		ClaimLease: 10 * time.Minute,
		NoteAuthor: "sync-bot",
	})
	o.now = func() time.Time { return testNow }
	return &harness{store: s, remote: remote, sink: sink, orch: o, companyID: companyID}
}

func mustRun(t *testing.T, o *Orchestrator, mode Mode) *PassResult {
	t.Helper()
	res, err := o.RunPass(context.Background(), mode)
	if err != nil {
		t.Fatalf("RunPass(%s) error = %v", mode, err)
	}
	return res
}

func ptr(s string) *string { return &s }
