// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

// Package models defines the local case records and tenant configuration
// shared by the store, the sync orchestrator and the HTTP API.
package models

import "time"

// SyncStatus is the CRM synchronization state of a local case.
type SyncStatus string

const (
	// SyncPending marks a case whose local state still has to be pushed.
	SyncPending SyncStatus = "pending"

	// SyncInFlight marks a case claimed by a running pass. Claims expire
	// after the configured lease so a crashed worker cannot strand a case.
	SyncInFlight SyncStatus = "in_flight"

	// SyncSynced marks a case whose last push or pull against its remote
	// record succeeded.
	SyncSynced SyncStatus = "synced"

	// SyncFailed is accepted from older data; passes treat it like pending.
	SyncFailed SyncStatus = "failed"
)

// LookupKind names one of the lookup enumerations a case references.
type LookupKind string

const (
	LookupPriority    LookupKind = "priority"
	LookupStatus      LookupKind = "status"
	LookupEnvironment LookupKind = "environment"
	LookupCaseType    LookupKind = "case_type"
)

// Lookup is a named, colored, ordered enumeration value.
// Value is the stable canonical key ("in-progress"); Name is the display
// name sent to the CRM ("In Progress").
type Lookup struct {
	Kind     LookupKind `json:"kind"`
	Value    string     `json:"value"`
	Name     string     `json:"name"`
	Color    string     `json:"color"`
	Order    int        `json:"order"`
	IsActive bool       `json:"is_active"`
}

// LocalCase is the authoritative local case record.
type LocalCase struct {
	ID                int64  `json:"id"`
	CaseNumber        string `json:"case_number"`
	CompanyID         int64  `json:"company_id"`
	Subject           string `json:"subject"`
	Description       string `json:"description"`
	ReproductionSteps string `json:"reproduction_steps,omitempty"`

	Priority    Lookup `json:"priority"`
	Status      Lookup `json:"status"`
	Environment Lookup `json:"environment"`
	CaseType    Lookup `json:"case_type"`

	RequestorID int64  `json:"requestor_id"`
	AssigneeID  *int64 `json:"assignee_id,omitempty"`

	// RemoteID is empty until the case has been created in the CRM.
	RemoteID   string     `json:"remote_id,omitempty"`
	SyncStatus SyncStatus `json:"sync_status"`
	SyncError  string     `json:"sync_error,omitempty"`
	LastSynced *time.Time `json:"last_synced,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasRemote reports whether the case has been created remotely.
func (c *LocalCase) HasRemote() bool {
	return c.RemoteID != ""
}

// Note is an append-only entry on a case. System notes are written by the
// sync subsystem; user notes may be mirrored to the CRM as case comments.
type Note struct {
	ID       int64  `json:"id"`
	CaseID   int64  `json:"case_id"`
	Author   string `json:"author"`
	Content  string `json:"content"`
	IsSystem bool   `json:"is_system"`

	// RemoteID is set once a user note has been posted as a CRM comment.
	RemoteID  string    `json:"remote_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewCase carries the fields needed to create a local case. Lookup fields
// hold canonical lookup values.
type NewCase struct {
	CompanyID         int64
	Subject           string
	Description       string
	ReproductionSteps string
	Priority          string
	Status            string
	Environment       string
	CaseType          string
	RequestorID       int64
	AssigneeID        *int64
}

// CaseUpdate holds local field overwrites produced by pull reconciliation.
// Nil text fields leave the local value unchanged.
type CaseUpdate struct {
	Subject     *string
	Description *string
	Status      string
	Priority    string
}
