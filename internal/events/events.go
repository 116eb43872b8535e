// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

// Package events publishes synchronization events through Watermill, either
// in-process (gochannel) or to NATS JetStream.
//
// Topics are single NATS tokens ("<prefix>_case_synced") so JetStream can
// auto-provision one stream per topic.
package events

import "time"

// Topic suffixes.
const (
	TopicCaseSynced     = "case_synced"
	TopicCaseSyncFailed = "case_sync_failed"
	TopicPassCompleted  = "pass_completed"
)

// Event is a publishable sync event.
type Event interface {
	TopicSuffix() string
}

// CaseSynced is emitted after a case push succeeded.
type CaseSynced struct {
	CompanyID  int64     `json:"company_id"`
	CaseID     int64     `json:"case_id"`
	CaseNumber string    `json:"case_number"`
	RemoteID   string    `json:"remote_id"`
	Created    bool      `json:"created"`
	At         time.Time `json:"at"`
}

func (CaseSynced) TopicSuffix() string { return TopicCaseSynced }

// CaseSyncFailed is emitted after a case push failed.
type CaseSyncFailed struct {
	CompanyID  int64     `json:"company_id"`
	CaseID     int64     `json:"case_id"`
	CaseNumber string    `json:"case_number"`
	Error      string    `json:"error"`
	At         time.Time `json:"at"`
}

func (CaseSyncFailed) TopicSuffix() string { return TopicCaseSyncFailed }

// PassCompleted is emitted at the end of every pass, including interrupted
// and failed ones.
type PassCompleted struct {
	CompanyID     int64     `json:"company_id"`
	Mode          string    `json:"mode"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Synced        int       `json:"synced"`
	Failed        int       `json:"failed"`
	Pulled        int       `json:"pulled"`
	Reconciled    int       `json:"reconciled"`
	Skipped       int       `json:"skipped"`
	DurationMs    int64     `json:"duration_ms"`
	Error         string    `json:"error,omitempty"`
	At            time.Time `json:"at"`
}

func (PassCompleted) TopicSuffix() string { return TopicPassCompleted }
