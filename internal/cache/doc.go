// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

/*
Package cache provides the lookup-id caches used by CRM lookup resolution.

Two backends are available:

  - Memory: a thread-safe in-process map with TTL expiry and background
    cleanup. Entries are lost on restart.
  - Badger: a BadgerDB-backed store using native key TTLs, so resolved ids
    survive restarts and are shared by every tenant session in the process.

Only positive resolutions are stored; a missing or failed lookup is always
retried against the CRM.

Usage:

	c, err := cache.Open(cache.Options{Backend: "memory", TTL: time.Hour})
	if err != nil {
	    return err
	}
	defer c.Close()

	resolver := crm.NewResolver(exec, crm.MatchPrefix, c)
*/
package cache
