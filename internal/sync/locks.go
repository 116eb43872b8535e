// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package sync

import "sync"

// companyLocks is a set of non-blocking per-company locks.
type companyLocks struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func newCompanyLocks() *companyLocks {
	return &companyLocks{held: make(map[int64]struct{})}
}

// TryLock acquires the lock for companyID and reports whether it succeeded.
func (l *companyLocks) TryLock(companyID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[companyID]; busy {
		return false
	}
	l.held[companyID] = struct{}{}
	return true
}

// Unlock releases the lock for companyID.
func (l *companyLocks) Unlock(companyID int64) {
	l.mu.Lock()
	delete(l.held, companyID)
	l.mu.Unlock()
}
