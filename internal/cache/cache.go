// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package cache

import (
	"context"
	"sync"
	"time"
)

// cleanupInterval is how often expired memory entries are swept.
const cleanupInterval = 5 * time.Minute

// Entry is a cached value with its expiry.
type Entry struct {
	Value     string
	ExpiresAt time.Time
}

// Stats tracks cache performance.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	TotalKeys   int64
	LastCleanup time.Time
}

// Memory is a thread-safe in-memory cache with TTL support.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time

	statsMu sync.Mutex
	stats   Stats

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemory creates a memory cache whose entries live for ttl. A background
// goroutine removes expired entries until Close is called.
func NewMemory(ttl time.Duration) *Memory {
	m := &Memory{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
		stats:   Stats{LastCleanup: time.Now()},
		stop:    make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Get returns the value for key. Expired entries are removed and count as
// misses.
func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	entry, exists := m.entries[key]
	m.mu.RUnlock()

	if !exists {
		m.record(func(s *Stats) { s.Misses++ })
		return "", false
	}

	if m.now().After(entry.ExpiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		m.record(func(s *Stats) { s.Misses++; s.Evictions++ })
		return "", false
	}

	m.record(func(s *Stats) { s.Hits++ })
	return entry.Value, true
}

// Set stores value under key with the default TTL.
func (m *Memory) Set(_ context.Context, key, value string) {
	m.mu.Lock()
	m.entries[key] = Entry{Value: value, ExpiresAt: m.now().Add(m.ttl)}
	n := int64(len(m.entries))
	m.mu.Unlock()

	m.record(func(s *Stats) { s.TotalKeys = n })
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) {
	m.mu.Lock()
	delete(m.entries, key)
	n := int64(len(m.entries))
	m.mu.Unlock()

	m.record(func(s *Stats) { s.Evictions++; s.TotalKeys = n })
}

// Clear removes all entries.
func (m *Memory) Clear() {
	m.mu.Lock()
	evictions := int64(len(m.entries))
	m.entries = make(map[string]Entry)
	m.mu.Unlock()

	m.record(func(s *Stats) { s.Evictions += evictions; s.TotalKeys = 0 })
}

// GetStats returns a snapshot of the cache statistics.
func (m *Memory) GetStats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// HitRate returns the hit rate as a percentage.
func (m *Memory) HitRate() float64 {
	stats := m.GetStats()
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0.0
	}
	return float64(stats.Hits) / float64(total) * 100.0
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

func (m *Memory) cleanup() {
	now := m.now()
	m.mu.Lock()
	evictions := int64(0)
	for key, entry := range m.entries {
		if now.After(entry.ExpiresAt) {
			delete(m.entries, key)
			evictions++
		}
	}
	n := int64(len(m.entries))
	m.mu.Unlock()

	m.record(func(s *Stats) {
		s.Evictions += evictions
		s.TotalKeys = n
		s.LastCleanup = now
	})
}

func (m *Memory) record(fn func(*Stats)) {
	m.statsMu.Lock()
	fn(&m.stats)
	m.statsMu.Unlock()
}
