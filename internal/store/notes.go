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

	"github.com/tomtom215/casesync/internal/models"
)

const noteColumns = `id, case_id, author, content, is_system, remote_id, created_at`

func scanNote(r rowScanner) (*models.Note, error) {
	var (
		n        models.Note
		remoteID sql.NullString
	)
	if err := r.Scan(&n.ID, &n.CaseID, &n.Author, &n.Content, &n.IsSystem, &remoteID, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.RemoteID = remoteID.String
	n.CreatedAt = n.CreatedAt.UTC()
	return &n, nil
}

// AddNote appends a note to a case. CreatedAt defaults to now.
func (s *Store) AddNote(ctx context.Context, n models.Note) (*models.Note, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.CreatedAt = timestamp(n.CreatedAt)

	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO notes (case_id, author, content, is_system, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`),
		n.CaseID, n.Author, n.Content, n.IsSystem, n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return nil, fmt.Errorf("insert note for case %d: %w", n.CaseID, err)
	}
	return &n, nil
}

// GetNote returns a note by id.
func (s *Store) GetNote(ctx context.Context, id int64) (*models.Note, error) {
	n, err := scanNote(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+noteColumns+` FROM notes WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get note %d: %w", id, err)
	}
	return n, nil
}

// ListNotes returns the notes of a case in creation order.
func (s *Store) ListNotes(ctx context.Context, caseID int64) ([]models.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+noteColumns+` FROM notes WHERE case_id = ? ORDER BY created_at, id`), caseID)
	if err != nil {
		return nil, fmt.Errorf("list notes for case %d: %w", caseID, err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// SetNoteRemoteID records the CRM comment id of a mirrored note.
func (s *Store) SetNoteRemoteID(ctx context.Context, id int64, remoteID string) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE notes SET remote_id = ? WHERE id = ?`), remoteID, id)
	if err != nil {
		return fmt.Errorf("set remote id of note %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
