// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package cache

import (
	"context"
	"fmt"
	"time"
)

// Backend names accepted by Open.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Store is a closable lookup-id cache.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
	Close() error
}

// Options selects and configures a cache backend.
type Options struct {
	Backend string
	TTL     time.Duration
	Path    string
}

// Open creates the configured cache. BackendNone returns a nil Store and no
// error; callers then resolve every lookup remotely.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendNone:
		return nil, nil
	case "", BackendMemory:
		return NewMemory(opts.TTL), nil
	case BackendBadger:
		if opts.Path == "" {
			return nil, fmt.Errorf("badger lookup cache requires a path")
		}
		b, err := OpenBadger(opts.Path, opts.TTL)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown lookup cache backend %q", opts.Backend)
	}
}
