// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package sync

import "errors"

var (
	// ErrPassInProgress is returned when the company already has a pass
	// running in this process.
	ErrPassInProgress = errors.New("sync pass already in progress for company")

	// ErrNotFoundLocally marks a pulled remote record with no local case.
	// Reconciliation skips such records.
	ErrNotFoundLocally = errors.New("remote case not found locally")

	// ErrCaseClaimed is returned by an on-demand push when another worker
	// holds a live claim on the case.
	ErrCaseClaimed = errors.New("case is being pushed by another worker")

	// ErrNoRemote is returned for operations that need a remote case when
	// the local case has never been pushed.
	ErrNoRemote = errors.New("case has no remote record yet")

	// ErrLocalChangesPending is returned by a refresh when the case has
	// local changes that have not been pushed.
	ErrLocalChangesPending = errors.New("case has unpushed local changes")

	// ErrSystemNote is returned when posting an audit note as a comment.
	ErrSystemNote = errors.New("system notes are not posted to the CRM")

	// ErrWrongCompany is returned when a case does not belong to the
	// orchestrator's company.
	ErrWrongCompany = errors.New("case belongs to another company")
)
