// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package models

import "time"

// Company is a tenant owning cases.
type Company struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// CompanyConfig is the per-tenant CRM endpoint configuration.
// EncryptedSecret is only ever decrypted when a tenant session is built.
type CompanyConfig struct {
	CompanyID       int64      `json:"company_id"`
	BaseURL         string     `json:"base_url"`
	IdentityURL     string     `json:"identity_url"`
	ClientID        string     `json:"client_id"`
	EncryptedSecret string     `json:"-"`
	IsActive        bool       `json:"is_active"`
	LastSync        *time.Time `json:"last_sync,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
