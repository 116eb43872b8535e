// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/tomtom215/casesync/internal/models"
)

// caseNumberAttempts bounds retries when concurrent inserts race for the
// same case number.
const caseNumberAttempts = 3

const caseColumns = `
	c.id, c.case_number, c.company_id, c.subject, c.description, c.reproduction_steps,
	c.priority, COALESCE(lp.name, c.priority), COALESCE(lp.color, ''), COALESCE(lp.sort_order, 0),
	c.status, COALESCE(ls.name, c.status), COALESCE(ls.color, ''), COALESCE(ls.sort_order, 0),
	c.environment, COALESCE(le.name, c.environment), COALESCE(le.color, ''), COALESCE(le.sort_order, 0),
	c.case_type, COALESCE(lt.name, c.case_type), COALESCE(lt.color, ''), COALESCE(lt.sort_order, 0),
	c.requestor_id, c.assignee_id, c.remote_id, c.sync_status, c.sync_error, c.last_synced,
	c.created_at, c.updated_at`

const caseJoins = `
	FROM cases c
	LEFT JOIN lookups lp ON lp.kind = 'priority' AND lp.value = c.priority
	LEFT JOIN lookups ls ON ls.kind = 'status' AND ls.value = c.status
	LEFT JOIN lookups le ON le.kind = 'environment' AND le.value = c.environment
	LEFT JOIN lookups lt ON lt.kind = 'case_type' AND lt.value = c.case_type`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(r rowScanner) (*models.LocalCase, error) {
	var (
		c          models.LocalCase
		assignee   sql.NullInt64
		remoteID   sql.NullString
		status     string
		lastSynced sql.NullTime
	)
	err := r.Scan(
		&c.ID, &c.CaseNumber, &c.CompanyID, &c.Subject, &c.Description, &c.ReproductionSteps,
		&c.Priority.Value, &c.Priority.Name, &c.Priority.Color, &c.Priority.Order,
		&c.Status.Value, &c.Status.Name, &c.Status.Color, &c.Status.Order,
		&c.Environment.Value, &c.Environment.Name, &c.Environment.Color, &c.Environment.Order,
		&c.CaseType.Value, &c.CaseType.Name, &c.CaseType.Color, &c.CaseType.Order,
		&c.RequestorID, &assignee, &remoteID, &status, &c.SyncError, &lastSynced,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Priority.Kind, c.Priority.IsActive = models.LookupPriority, true
	c.Status.Kind, c.Status.IsActive = models.LookupStatus, true
	c.Environment.Kind, c.Environment.IsActive = models.LookupEnvironment, true
	c.CaseType.Kind, c.CaseType.IsActive = models.LookupCaseType, true

	if assignee.Valid {
		id := assignee.Int64
		c.AssigneeID = &id
	}
	c.RemoteID = remoteID.String
	c.SyncStatus = models.SyncStatus(status)
	c.LastSynced = nullTime(lastSynced)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (s *Store) queryCases(ctx context.Context, q DBTX, where string, args ...any) ([]models.LocalCase, error) {
	rows, err := q.QueryContext(ctx, s.rebind(`SELECT `+caseColumns+caseJoins+` `+where), args...)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	var out []models.LocalCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) getCase(ctx context.Context, q DBTX, where string, args ...any) (*models.LocalCase, error) {
	c, err := scanCase(q.QueryRowContext(ctx, s.rebind(`SELECT `+caseColumns+caseJoins+` `+where), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	return c, nil
}

// CreateCase inserts a pending case and assigns it the next case number of
// the current year (UAT-YYYY-NNNN).
func (s *Store) CreateCase(ctx context.Context, nc models.NewCase) (*models.LocalCase, error) {
	if strings.TrimSpace(nc.Subject) == "" {
		return nil, fmt.Errorf("create case: subject is required")
	}

	var id int64
	var err error
	for attempt := 1; attempt <= caseNumberAttempts; attempt++ {
		err = s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
			if err := s.checkLookups(ctx, tx, nc); err != nil {
				return err
			}

			now := timestamp(s.now())
			number, err := s.nextCaseNumber(ctx, tx, now.Year())
			if err != nil {
				return err
			}

			var assignee any
			if nc.AssigneeID != nil {
				assignee = *nc.AssigneeID
			}
			return tx.QueryRowContext(ctx, s.rebind(`
				INSERT INTO cases (case_number, company_id, subject, description, reproduction_steps,
					priority, status, environment, case_type, requestor_id, assignee_id,
					sync_status, sync_error, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)
				RETURNING id`),
				number, nc.CompanyID, nc.Subject, nc.Description, nc.ReproductionSteps,
				nc.Priority, nc.Status, nc.Environment, nc.CaseType, nc.RequestorID, assignee,
				string(models.SyncPending), now, now,
			).Scan(&id)
		})
		if err == nil || !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}
	return s.GetCase(ctx, id)
}

func (s *Store) checkLookups(ctx context.Context, tx DBTX, nc models.NewCase) error {
	refs := []struct {
		kind  models.LookupKind
		value string
	}{
		{models.LookupPriority, nc.Priority},
		{models.LookupStatus, nc.Status},
		{models.LookupEnvironment, nc.Environment},
		{models.LookupCaseType, nc.CaseType},
	}
	for _, ref := range refs {
		var n int
		err := tx.QueryRowContext(ctx,
			s.rebind(`SELECT COUNT(*) FROM lookups WHERE kind = ? AND value = ?`),
			string(ref.kind), ref.value).Scan(&n)
		if err != nil {
			return fmt.Errorf("check %s lookup: %w", ref.kind, err)
		}
		if n == 0 {
			return fmt.Errorf("unknown %s %q", ref.kind, ref.value)
		}
	}
	return nil
}

func (s *Store) nextCaseNumber(ctx context.Context, tx DBTX, year int) (string, error) {
	prefix := fmt.Sprintf("UAT-%d-", year)

	var last string
	err := tx.QueryRowContext(ctx, s.rebind(`
		SELECT case_number FROM cases WHERE case_number LIKE ?
		ORDER BY LENGTH(case_number) DESC, case_number DESC LIMIT 1`),
		prefix+"%").Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("read last case number: %w", err)
	}

	seq := 0
	if last != "" {
		seq, err = strconv.Atoi(strings.TrimPrefix(last, prefix))
		if err != nil {
			return "", fmt.Errorf("parse case number %q: %w", last, err)
		}
	}
	return fmt.Sprintf("%s%04d", prefix, seq+1), nil
}

// GetCase returns a case by id.
func (s *Store) GetCase(ctx context.Context, id int64) (*models.LocalCase, error) {
	return s.getCase(ctx, s.db, `WHERE c.id = ?`, id)
}

// ListCases returns the cases of a company, newest first.
func (s *Store) ListCases(ctx context.Context, companyID int64) ([]models.LocalCase, error) {
	return s.queryCases(ctx, s.db, `WHERE c.company_id = ? ORDER BY c.created_at DESC, c.id DESC`, companyID)
}

// EditCase applies a local edit and marks the case pending so the next pass
// pushes it.
func (s *Store) EditCase(ctx context.Context, id int64, u models.CaseUpdate) (*models.LocalCase, error) {
	sets, args := caseUpdateSets(u)
	sets = append(sets, "sync_status = ?", "updated_at = ?")
	args = append(args, string(models.SyncPending), timestamp(s.now()), id)

	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE cases SET `+strings.Join(sets, ", ")+` WHERE id = ? AND sync_status <> 'in_flight'`),
		args...)
	if err != nil {
		return nil, fmt.Errorf("edit case %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		c, err := s.GetCase(ctx, id)
		if err != nil {
			return nil, err
		}
		if c.SyncStatus == models.SyncInFlight {
			return nil, fmt.Errorf("edit case %d: %w", id, ErrCaseBusy)
		}
	}
	return s.GetCase(ctx, id)
}

// ErrCaseBusy is returned when a case is claimed by a running push.
var ErrCaseBusy = errors.New("case is being synchronized")

func caseUpdateSets(u models.CaseUpdate) ([]string, []any) {
	var sets []string
	var args []any
	if u.Subject != nil {
		sets = append(sets, "subject = ?")
		args = append(args, *u.Subject)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.Status != "" {
		sets = append(sets, "status = ?")
		args = append(args, u.Status)
	}
	if u.Priority != "" {
		sets = append(sets, "priority = ?")
		args = append(args, u.Priority)
	}
	return sets, args
}

// ListPushable returns the company's cases awaiting a push: pending or
// failed, plus in-flight claims taken before staleBefore.
func (s *Store) ListPushable(ctx context.Context, companyID int64, staleBefore time.Time) ([]models.LocalCase, error) {
	return s.queryCases(ctx, s.db, `
		WHERE c.company_id = ?
		  AND (c.sync_status IN ('pending', 'failed')
		       OR (c.sync_status = 'in_flight' AND c.sync_claimed_at < ?))
		ORDER BY c.id`, companyID, timestamp(staleBefore))
}

// ClaimForPush atomically moves a pushable case to in_flight. It reports
// false when another worker holds a live claim or the case is no longer
// pushable.
func (s *Store) ClaimForPush(ctx context.Context, id int64, now, staleBefore time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE cases SET sync_status = 'in_flight', sync_claimed_at = ?
		WHERE id = ?
		  AND (sync_status IN ('pending', 'failed')
		       OR (sync_status = 'in_flight' AND sync_claimed_at < ?))`),
		timestamp(now), id, timestamp(staleBefore))
	if err != nil {
		return false, fmt.Errorf("claim case %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim case %d: %w", id, err)
	}
	return n == 1, nil
}

// MarkPending makes a synced case pushable again.
func (s *Store) MarkPending(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE cases SET sync_status = 'pending' WHERE id = ? AND sync_status = 'synced'`), id)
	if err != nil {
		return fmt.Errorf("mark case %d pending: %w", id, err)
	}
	return nil
}

// MarkSynced records a successful push and releases the claim taken at
// claimedAt. It returns ErrClaimLost when that claim is no longer held.
func (s *Store) MarkSynced(ctx context.Context, id int64, claimedAt time.Time, remoteID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE cases SET remote_id = ?, sync_status = 'synced', sync_error = '',
			sync_claimed_at = NULL, last_synced = ?
		WHERE id = ? AND sync_status = 'in_flight' AND sync_claimed_at = ?`),
		remoteID, timestamp(at), id, timestamp(claimedAt))
	if err != nil {
		return fmt.Errorf("mark case %d synced: %w", id, err)
	}
	return s.checkClaimHeld(ctx, res, id)
}

// MarkPushFailed records a failed push under the claim taken at claimedAt.
// The case returns to pending so the next pass retries it.
func (s *Store) MarkPushFailed(ctx context.Context, id int64, claimedAt time.Time, errText string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE cases SET sync_status = 'pending', sync_error = ?, sync_claimed_at = NULL
		WHERE id = ? AND sync_status = 'in_flight' AND sync_claimed_at = ?`),
		errText, id, timestamp(claimedAt))
	if err != nil {
		return fmt.Errorf("mark case %d failed: %w", id, err)
	}
	return s.checkClaimHeld(ctx, res, id)
}

func (s *Store) checkClaimHeld(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("case %d: %w", id, err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetCase(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("case %d: %w", id, ErrClaimLost)
}

// ErrClaimLost is returned when a push finishes after its claim expired and
// was taken over, or the case left in_flight some other way.
var ErrClaimLost = errors.New("push claim no longer held")

// FindByRemoteID returns the company's case correlated with remoteID.
func (s *Store) FindByRemoteID(ctx context.Context, companyID int64, remoteID string) (*models.LocalCase, error) {
	return s.getCase(ctx, s.db, `WHERE c.company_id = ? AND c.remote_id = ? ORDER BY c.id LIMIT 1`, companyID, remoteID)
}

// ApplyRemoteUpdate overwrites local fields from a pulled remote record. Only
// synced cases are touched; applied is false when the case has local
// changes awaiting push.
func (s *Store) ApplyRemoteUpdate(ctx context.Context, id int64, u models.CaseUpdate, at time.Time) (bool, error) {
	sets, args := caseUpdateSets(u)
	sets = append(sets, "last_synced = ?", "updated_at = ?")
	ts := timestamp(at)
	args = append(args, ts, ts, id)

	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE cases SET `+strings.Join(sets, ", ")+` WHERE id = ? AND sync_status = 'synced'`),
		args...)
	if err != nil {
		return false, fmt.Errorf("apply remote update to case %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("apply remote update to case %d: %w", id, err)
	}
	return n == 1, nil
}

// MaxLastSynced returns the latest last_synced of the company's cases, or
// nil when none has ever synced.
func (s *Store) MaxLastSynced(ctx context.Context, companyID int64) (*time.Time, error) {
	var t sql.NullTime
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT last_synced FROM cases
		WHERE company_id = ? AND last_synced IS NOT NULL
		ORDER BY last_synced DESC LIMIT 1`), companyID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read max last_synced: %w", err)
	}
	return nullTime(t), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
