// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

// Package app wires the components shared by the casesync CLI and the
// server: case store, lookup cache, event publisher, credential encryptor
// and the tenant sync manager.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/casesync/internal/cache"
	"github.com/tomtom215/casesync/internal/config"
	"github.com/tomtom215/casesync/internal/events"
	"github.com/tomtom215/casesync/internal/logging"
	"github.com/tomtom215/casesync/internal/store"
	syncpkg "github.com/tomtom215/casesync/internal/sync"
)

// Runtime holds the opened components. Close releases them in reverse order.
type Runtime struct {
	Config  *config.Config
	Store   *store.Store
	Events  *events.Publisher
	Manager *syncpkg.Manager

	// Encryptor is nil when neither an encryption key nor a JWT secret is
	// configured; stored company secrets then cannot be used.
	Encryptor *config.CredentialEncryptor

	lookupCache cache.Store
}

// Open initializes every component from cfg. On error, anything already
// opened is closed.
func Open(ctx context.Context, cfg *config.Config) (_ *Runtime, err error) {
	rt := &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.Store, err = store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open case store: %w", err)
	}
	logging.Info().Str("driver", cfg.Database.Driver).Msg("Case store ready")

	rt.lookupCache, err = cache.Open(cache.Options{
		Backend: cfg.Sync.LookupCache,
		TTL:     cfg.Sync.LookupCacheTTL,
		Path:    cfg.Sync.LookupCachePath,
	})
	if err != nil {
		return nil, fmt.Errorf("open lookup cache: %w", err)
	}

	rt.Events, err = events.New(cfg.Events)
	if err != nil {
		return nil, fmt.Errorf("open event publisher: %w", err)
	}

	var secrets syncpkg.SecretDecrypter
	if key := cfg.Security.CredentialKey(); key != "" {
		rt.Encryptor, err = config.NewCredentialEncryptor(key)
		if err != nil {
			return nil, fmt.Errorf("create credential encryptor: %w", err)
		}
		secrets = rt.Encryptor
	} else {
		logging.Warn().Msg("No encryption key configured; companies with stored CRM credentials cannot sync")
	}

	var sink syncpkg.EventSink
	if rt.Events != nil {
		sink = rt.Events
	}
	var opts []syncpkg.ManagerOption
	if rt.lookupCache != nil {
		opts = append(opts, syncpkg.WithLookupCache(rt.lookupCache))
	}
	rt.Manager = syncpkg.NewManager(cfg, rt.Store, secrets, sink, opts...)

	logging.Info().
		Str("lookup_cache", cfg.Sync.LookupCache).
		Str("lookup_match", cfg.Sync.LookupMatch).
		Str("events", cfg.Events.Backend).
		Bool("fallback_crm", cfg.CRM.Configured()).
		Msg("Sync manager ready")
	return rt, nil
}

// Close releases all components.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Events != nil {
		errs = append(errs, rt.Events.Close())
	}
	if rt.lookupCache != nil {
		errs = append(errs, rt.lookupCache.Close())
	}
	if rt.Store != nil {
		errs = append(errs, rt.Store.Close())
	}
	return errors.Join(errs...)
}
