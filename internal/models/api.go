// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package models

import (
	"time"
)

// APIResponse is the envelope of every HTTP API response.
//
// Status is "success" with Data populated, or "error" with Error populated:
//
//	{
//	  "status": "success",
//	  "data": {"synced_count": 2, "failed_count": 0, "message": "Synced 2 cases, 0 failed"},
//	  "metadata": {"timestamp": "2026-03-01T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata accompanies every response.
type Metadata struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SyncSummary is returned by the manual sync endpoint.
type SyncSummary struct {
	SyncedCount int    `json:"synced_count"`
	FailedCount int    `json:"failed_count"`
	Message     string `json:"message"`
	Interrupted bool   `json:"interrupted,omitempty"`
	Result      any    `json:"result,omitempty"`
}
