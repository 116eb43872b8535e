// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package crm

import (
	"context"
	"time"

	"github.com/tomtom215/casesync/internal/models"
)

// CaseOrigin is recorded on cases created from the tracker.
const CaseOrigin = "UAT Tracker"

// Default local values for remote names missing from the mapping tables.
const (
	DefaultStatusValue   = "new"
	DefaultPriorityValue = "medium"
)

// statusFromRemote maps remote status display names to local status values.
var statusFromRemote = map[string]string{
	"New":         "new",
	"In Progress": "in-progress",
	"Resolved":    "resolved",
	"Closed":      "closed",
}

// priorityFromRemote maps remote priority display names to local priority values.
var priorityFromRemote = map[string]string{
	"Low":    "low",
	"Medium": "medium",
	"High":   "high",
}

// LookupResolver resolves lookup names to remote ids.
type LookupResolver interface {
	Resolve(ctx context.Context, kind LookupKind, name string) (string, bool)
}

// Translator maps cases between the local and remote representations.
type Translator struct {
	resolver LookupResolver
}

// NewTranslator creates a Translator using resolver for outbound lookups.
func NewTranslator(resolver LookupResolver) *Translator {
	return &Translator{resolver: resolver}
}

// ToRemote builds the outbound field map for c. Create payloads also carry
// Origin and RegisteredOn. Lookups that do not resolve are omitted so the
// remote keeps its current value.
func (t *Translator) ToRemote(ctx context.Context, c *models.LocalCase, create bool) map[string]interface{} {
	fields := map[string]interface{}{
		"Subject":     c.Subject,
		"Description": c.Description,
		"Symptoms":    c.ReproductionSteps,
		"PriorityId":  t.resolve(ctx, LookupPriority, c.Priority.Name),
		"StatusId":    t.resolve(ctx, LookupStatus, c.Status.Name),
		"CategoryId":  t.resolve(ctx, LookupCategory, c.CaseType.Name),
	}
	if create {
		fields["Origin"] = CaseOrigin
		if !c.CreatedAt.IsZero() {
			fields["RegisteredOn"] = c.CreatedAt.UTC().Format(time.RFC3339)
		}
	}
	return stripNil(fields)
}

// FromRemote maps a remote record to local field updates through the fixed
// status and priority tables.
func (t *Translator) FromRemote(r *RemoteCase) models.CaseUpdate {
	return models.CaseUpdate{
		Subject:     r.Subject,
		Description: r.Description,
		Status:      mapOrDefault(statusFromRemote, string(r.Status), DefaultStatusValue),
		Priority:    mapOrDefault(priorityFromRemote, string(r.Priority), DefaultPriorityValue),
	}
}

// resolve returns nil (an omitted field) when the name does not resolve.
func (t *Translator) resolve(ctx context.Context, kind LookupKind, name string) interface{} {
	if name == "" || t.resolver == nil {
		return nil
	}
	if id, ok := t.resolver.Resolve(ctx, kind, name); ok {
		return id
	}
	return nil
}

func stripNil(fields map[string]interface{}) map[string]interface{} {
	for k, v := range fields {
		if v == nil {
			delete(fields, k)
		}
	}
	return fields
}

func mapOrDefault(table map[string]string, key, def string) string {
	if v, ok := table[key]; ok {
		return v
	}
	return def
}
