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
	"time"

	"github.com/tomtom215/casesync/internal/models"
)

// CreateCompany inserts a company and returns it with its id.
func (s *Store) CreateCompany(ctx context.Context, name string) (*models.Company, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		s.rebind(`INSERT INTO companies (name, is_active) VALUES (?, ?) RETURNING id`),
		name, true,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert company: %w", err)
	}
	return &models.Company{ID: id, Name: name, IsActive: true}, nil
}

// GetCompany returns a company by id.
func (s *Store) GetCompany(ctx context.Context, id int64) (*models.Company, error) {
	var c models.Company
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, name, is_active FROM companies WHERE id = ?`), id,
	).Scan(&c.ID, &c.Name, &c.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get company %d: %w", id, err)
	}
	return &c, nil
}

// ListActiveCompanies returns active companies ordered by id.
func (s *Store) ListActiveCompanies(ctx context.Context) ([]models.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, name, is_active FROM companies WHERE is_active = ? ORDER BY id`), true)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var out []models.Company
	for rows.Next() {
		var c models.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.IsActive); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCompanyConfig returns the CRM configuration of a company, or
// ErrNotFound when the company has none.
func (s *Store) GetCompanyConfig(ctx context.Context, companyID int64) (*models.CompanyConfig, error) {
	var (
		cfg      models.CompanyConfig
		lastSync sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT company_id, base_url, identity_url, client_id, client_secret, is_active, last_sync, updated_at
		FROM company_configs WHERE company_id = ?`), companyID,
	).Scan(&cfg.CompanyID, &cfg.BaseURL, &cfg.IdentityURL, &cfg.ClientID, &cfg.EncryptedSecret,
		&cfg.IsActive, &lastSync, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get company config %d: %w", companyID, err)
	}
	cfg.LastSync = nullTime(lastSync)
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return &cfg, nil
}

// UpsertCompanyConfig creates or replaces a company's CRM configuration.
// EncryptedSecret must already be encrypted. LastSync is preserved.
func (s *Store) UpsertCompanyConfig(ctx context.Context, cfg models.CompanyConfig) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO company_configs (company_id, base_url, identity_url, client_id, client_secret, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_id) DO UPDATE SET
			base_url = excluded.base_url,
			identity_url = excluded.identity_url,
			client_id = excluded.client_id,
			client_secret = excluded.client_secret,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`),
		cfg.CompanyID, cfg.BaseURL, cfg.IdentityURL, cfg.ClientID, cfg.EncryptedSecret, cfg.IsActive,
		timestamp(s.now()),
	)
	if err != nil {
		return fmt.Errorf("upsert company config %d: %w", cfg.CompanyID, err)
	}
	return nil
}

// TouchCompanySync records the end of a pass for a company. Companies
// without a stored configuration are ignored.
func (s *Store) TouchCompanySync(ctx context.Context, companyID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE company_configs SET last_sync = ? WHERE company_id = ?`),
		timestamp(at), companyID)
	if err != nil {
		return fmt.Errorf("update last sync for company %d: %w", companyID, err)
	}
	return nil
}
