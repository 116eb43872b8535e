// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

/*
Package sync drives bidirectional synchronization between the local case store
and a tenant's Creatio CRM.

A pass pushes every pushable case (pending, or in flight past its claim lease)
and then pulls remote cases for reconciliation:

	pending --(push succeeds)--> synced
	pending --(push fails)-----> pending   (sync_error and a failure note recorded)
	synced  --(pull reconciles)-> synced   (local fields overwritten from remote)

Full passes pull every remote case. Incremental passes pull only cases modified
after the latest last_synced of the company's cases, or everything when no case
has synced yet.

Concurrency:
  - A company runs at most one pass per process (ErrPassInProgress otherwise).
  - Each push first claims its case in the store (pending -> in_flight), so
    passes in other processes never push the same case twice. Claims older
    than the configured lease may be taken over.
  - Each pass runs under an overall deadline. Cases not reached before the
    deadline stay pending and the partial result is returned with the
    context error.

Manager owns one tenant session per company: a TokenManager, an Executor and an
Orchestrator built from the company's stored CRM configuration, or from the
process-wide fallback when the company has none.
*/
package sync
