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

// ListLookups returns the active values of one lookup kind in display order.
func (s *Store) ListLookups(ctx context.Context, kind models.LookupKind) ([]models.Lookup, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT kind, value, name, color, sort_order, is_active
		FROM lookups WHERE kind = ? AND is_active = ? ORDER BY sort_order, value`),
		string(kind), true)
	if err != nil {
		return nil, fmt.Errorf("list %s lookups: %w", kind, err)
	}
	defer rows.Close()

	var out []models.Lookup
	for rows.Next() {
		var l models.Lookup
		var k string
		if err := rows.Scan(&k, &l.Value, &l.Name, &l.Color, &l.Order, &l.IsActive); err != nil {
			return nil, fmt.Errorf("scan lookup: %w", err)
		}
		l.Kind = models.LookupKind(k)
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetLookup returns one lookup value.
func (s *Store) GetLookup(ctx context.Context, kind models.LookupKind, value string) (*models.Lookup, error) {
	l := models.Lookup{Kind: kind}
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT value, name, color, sort_order, is_active FROM lookups WHERE kind = ? AND value = ?`),
		string(kind), value,
	).Scan(&l.Value, &l.Name, &l.Color, &l.Order, &l.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s lookup %q: %w", kind, value, err)
	}
	return &l, nil
}
