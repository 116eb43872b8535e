// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared; validator caches struct metadata internally.
var validate = validator.New()

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	if err := c.validateCRM(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	return c.validateEvents()
}

// ValidateServer checks settings only the long-running server needs.
func (c *Config) ValidateServer() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required to run the HTTP API")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	return nil
}

// validateCRM requires the fallback configuration to be complete when it is present at all.
func (c *Config) validateCRM() error {
	if !c.CRM.Configured() {
		return nil
	}
	var missing []string
	if c.CRM.IdentityURL == "" {
		missing = append(missing, "CREATIO_IDENTITY_URL")
	}
	if c.CRM.ClientID == "" {
		missing = append(missing, "CREATIO_CLIENT_ID")
	}
	if c.CRM.ClientSecret == "" {
		missing = append(missing, "CREATIO_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("CREATIO_BASE_URL is set but %s missing", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.LookupCache == LookupCacheBadger && c.Sync.LookupCachePath == "" {
		return fmt.Errorf("SYNC_LOOKUP_CACHE_PATH is required when SYNC_LOOKUP_CACHE=badger")
	}
	if c.Sync.LookupCache != LookupCacheNone && c.Sync.LookupCacheTTL == 0 {
		return fmt.Errorf("SYNC_LOOKUP_CACHE_TTL must be positive when lookup caching is enabled")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if c.Events.Backend == EventsNATS && c.Events.NATSURL == "" {
		return fmt.Errorf("NATS_URL is required when EVENTS_BACKEND=nats")
	}
	return nil
}

// formatValidationError flattens validator errors into one readable error.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
