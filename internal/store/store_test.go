// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/casesync/internal/config"
	"github.com/tomtom215/casesync/internal/models"
)

var dbSeq atomic.Int64

// testClock is a settable clock shared with the store under test.
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	dsn := fmt.Sprintf("file:store_test_%d?mode=memory&cache=shared&_time_format=sqlite", dbSeq.Add(1))
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s := New(db, config.DriverSQLite)
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.now = clock.Now
	require.NoError(t, s.Migrate(context.Background()))
	return s, clock
}

func seedCompany(t *testing.T, s *Store, name string) *models.Company {
	t.Helper()
	c, err := s.CreateCompany(context.Background(), name)
	require.NoError(t, err)
	return c
}

// markSynced claims a case at the given time and records a push of it.
func markSynced(t *testing.T, s *Store, caseID int64, remoteID string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	claimed, err := s.ClaimForPush(ctx, caseID, at, at.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, claimed, "claim case %d", caseID)
	require.NoError(t, s.MarkSynced(ctx, caseID, at, remoteID, at))
}

func seedCase(t *testing.T, s *Store, companyID int64, subject string) *models.LocalCase {
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
	require.NoError(t, err)
	return c
}

func TestMigrate_SeedsLookups(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	priorities, err := s.ListLookups(ctx, models.LookupPriority)
	require.NoError(t, err)
	require.Len(t, priorities, 4)
	assert.Equal(t, []string{"low", "medium", "high", "critical"},
		[]string{priorities[0].Value, priorities[1].Value, priorities[2].Value, priorities[3].Value})

	status, err := s.GetLookup(ctx, models.LookupStatus, "in-progress")
	require.NoError(t, err)
	assert.Equal(t, "In Progress", status.Name)

	_, err = s.GetLookup(ctx, models.LookupStatus, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMigrate_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestRebind(t *testing.T) {
	sqlite := New(nil, config.DriverSQLite)
	pg := New(nil, config.DriverPostgres)
	q := `UPDATE cases SET a = ?, b = ? WHERE id = ?`

	assert.Equal(t, q, sqlite.rebind(q))
	assert.Equal(t, `UPDATE cases SET a = $1, b = $2 WHERE id = $3`, pg.rebind(q))
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "file:x.db?_time_format=sqlite", sqliteDSN("file:x.db"))
	assert.Equal(t, "file:x.db?_pragma=foreign_keys(1)&_time_format=sqlite", sqliteDSN("file:x.db?_pragma=foreign_keys(1)"))
	assert.Equal(t, "file:x.db?_time_format=sqlite", sqliteDSN("file:x.db?_time_format=sqlite"))
}

func TestOpen_SQLiteFile(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    "file:" + t.TempDir() + "/casesync.db",
	})
	require.NoError(t, err)
	defer s.Close()

	company := seedCompany(t, s, "ACME Corporation")
	companies, err := s.ListActiveCompanies(ctx)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, company.ID, companies[0].ID)
}
