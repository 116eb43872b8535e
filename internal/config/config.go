// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

// Package config provides configuration management for CaseSync.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any setting
//
// Configuration Categories:
//
//   - CRM: process-wide fallback endpoint and credentials, used for any
//     company that has no active per-tenant configuration of its own
//   - Sync: pass deadline, schedule, claim lease, lookup matching and caching
//   - Database: case store driver and DSN
//   - Server, Security: HTTP API listener, operator JWT, CORS, rate limits
//   - Events: optional sync event publishing (in-process or NATS)
//   - Logging: log levels and output formats
//
// Per-tenant CRM settings live in the case store (see models.CompanyConfig);
// their client secrets are encrypted with CredentialEncryptor.
package config

import (
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	CRM      CRMConfig      `koanf:"crm"`
	Sync     SyncConfig     `koanf:"sync"`
	Database DatabaseConfig `koanf:"database"`
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Events   EventsConfig   `koanf:"events"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// CRMConfig is the process-wide fallback CRM configuration.
// An empty BaseURL means no fallback is configured.
type CRMConfig struct {
	BaseURL      string `koanf:"base_url" validate:"omitempty,url"`
	IdentityURL  string `koanf:"identity_url" validate:"omitempty,url"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`

	// CSRFToken is sent as the BPMCSRF header when non-empty.
	CSRFToken string `koanf:"csrf_token"`

	// RequestTimeout bounds every individual HTTP call to the CRM.
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`

	// RateLimit is the client-side request budget per tenant in requests
	// per second. 0 disables client-side limiting.
	RateLimit float64 `koanf:"rate_limit" validate:"gte=0"`
	RateBurst int     `koanf:"rate_burst" validate:"gte=1"`
}

// Configured reports whether a fallback CRM endpoint is present.
func (c CRMConfig) Configured() bool {
	return strings.TrimSpace(c.BaseURL) != ""
}

// Lookup matching modes for RemoteSchemaResolver.
const (
	LookupMatchPrefix = "prefix"
	LookupMatchExact  = "exact"
)

// Lookup cache backends.
const (
	LookupCacheNone   = "none"
	LookupCacheMemory = "memory"
	LookupCacheBadger = "badger"
)

// SyncConfig controls sync passes.
type SyncConfig struct {
	// PassTimeout is the overall deadline for one pass of one company.
	PassTimeout time.Duration `koanf:"pass_timeout" validate:"gt=0"`

	// ScheduleInterval is the period of scheduled incremental passes in the
	// server process. 0 disables scheduling.
	ScheduleInterval time.Duration `koanf:"schedule_interval" validate:"gte=0"`

	// ClaimLease is how long an in-flight claim on a case is honoured before
	// another worker may reclaim it.
	ClaimLease time.Duration `koanf:"claim_lease" validate:"gt=0"`

	LookupMatch     string        `koanf:"lookup_match" validate:"oneof=prefix exact"`
	LookupCache     string        `koanf:"lookup_cache" validate:"oneof=none memory badger"`
	LookupCacheTTL  time.Duration `koanf:"lookup_cache_ttl" validate:"gte=0"`
	LookupCachePath string        `koanf:"lookup_cache_path"`

	// NoteAuthor is the author recorded on audit notes written by passes.
	NoteAuthor string `koanf:"note_author" validate:"required"`
}

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig holds case store settings.
type DatabaseConfig struct {
	Driver       string `koanf:"driver" validate:"oneof=sqlite postgres"`
	DSN          string `koanf:"dsn" validate:"required"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"gte=0"`
}

// ServerConfig holds HTTP API listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// SecurityConfig holds secrets and HTTP protection settings.
type SecurityConfig struct {
	// EncryptionKey derives the key for stored company client secrets.
	// Falls back to JWTSecret when empty.
	EncryptionKey string `koanf:"encryption_key"`

	// JWTSecret verifies operator bearer tokens on the HTTP API.
	JWTSecret string `koanf:"jwt_secret"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// CredentialKey returns the secret used to derive the credential encryption key.
func (s SecurityConfig) CredentialKey() string {
	if s.EncryptionKey != "" {
		return s.EncryptionKey
	}
	return s.JWTSecret
}

// Event backends.
const (
	EventsNone   = "none"
	EventsMemory = "memory"
	EventsNATS   = "nats"
)

// EventsConfig controls sync event publishing.
type EventsConfig struct {
	Backend       string `koanf:"backend" validate:"oneof=none memory nats"`
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix" validate:"required"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}
