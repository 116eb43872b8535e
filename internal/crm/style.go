// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package crm

import "strings"

// AddressingStyle selects which Creatio sub-API a request targets.
// Each style owns its URL layout; callers pick one explicitly per call.
type AddressingStyle int

const (
	// OData addresses entity collections: {base}/0/odata/{entity}.
	OData AddressingStyle = iota

	// DataService addresses JSON commands (InsertQuery, UpdateQuery,
	// SelectQuery): {base}/0/DataService/json/SyncReply/{command}.
	DataService

	// ServiceModel addresses configuration web services:
	// {base}/0/ServiceModel/{service}.
	ServiceModel
)

// String returns the style name used in logs and metric labels.
func (s AddressingStyle) String() string {
	switch s {
	case OData:
		return "odata"
	case DataService:
		return "dataservice"
	case ServiceModel:
		return "servicemodel"
	default:
		return "unknown"
	}
}

// URL builds the absolute endpoint for operation under baseURL.
func (s AddressingStyle) URL(baseURL, operation string) string {
	base := strings.TrimRight(baseURL, "/")
	op := strings.TrimLeft(operation, "/")

	switch s {
	case DataService:
		return base + "/0/DataService/json/SyncReply/" + op
	case ServiceModel:
		return base + "/0/ServiceModel/" + op
	default:
		return base + "/0/odata/" + op
	}
}
