// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/casesync/internal/logging"
)

// lookupKeyPrefix namespaces lookup ids inside the Badger keyspace.
const lookupKeyPrefix = "lookup:"

// Badger stores lookup ids in BadgerDB using native key TTLs.
type Badger struct {
	db     *badger.DB
	ttl    time.Duration
	ownsDB bool
}

// OpenBadger opens (or creates) a BadgerDB at path.
func OpenBadger(path string, ttl time.Duration) (*Badger, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for lookup cache: %w", err)
	}
	return &Badger{db: db, ttl: ttl, ownsDB: true}, nil
}

// NewBadgerFromDB wraps an already open database. Close does not close db.
func NewBadgerFromDB(db *badger.DB, ttl time.Duration) *Badger {
	return &Badger{db: db, ttl: ttl}
}

// Get returns the value for key. Read errors are logged and reported as a miss.
func (b *Badger) Get(_ context.Context, key string) (string, bool) {
	var value string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lookupKeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false
	}
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Lookup cache read failed")
		return "", false
	}
	return value, true
}

// Set stores value under key. Write errors are logged; the next resolution
// simply goes to the CRM again.
func (b *Badger) Set(_ context.Context, key, value string) {
	err := b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(lookupKeyPrefix+key), []byte(value))
		if b.ttl > 0 {
			e = e.WithTTL(b.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Lookup cache write failed")
	}
}

// Delete removes key.
func (b *Badger) Delete(_ context.Context, key string) {
	err := b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(lookupKeyPrefix + key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Lookup cache delete failed")
	}
}

// Clear removes all lookup entries.
func (b *Badger) Clear() error {
	return b.db.DropPrefix([]byte(lookupKeyPrefix))
}

// Close closes the database when it was opened by OpenBadger.
func (b *Badger) Close() error {
	if b.ownsDB {
		return b.db.Close()
	}
	return nil
}
