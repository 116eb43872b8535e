// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package crm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/tomtom215/casesync/internal/logging"
	"github.com/tomtom215/casesync/internal/metrics"
)

// LookupKind is a remote lookup collection that case fields reference.
type LookupKind string

const (
	LookupPriority LookupKind = "priority"
	LookupStatus   LookupKind = "status"
	LookupCategory LookupKind = "category"
)

// collection returns the OData entity set holding the lookup values.
func (k LookupKind) collection() string {
	switch k {
	case LookupPriority:
		return "CasePriority"
	case LookupStatus:
		return "CaseStatus"
	case LookupCategory:
		return "CaseCategory"
	default:
		return ""
	}
}

// MatchMode selects how lookup names are compared.
type MatchMode int

const (
	// MatchPrefix accepts the first remote value whose name starts with
	// the local name.
	MatchPrefix MatchMode = iota

	// MatchExact requires equal names.
	MatchExact
)

// ParseMatchMode maps a configuration value to a MatchMode.
// Anything other than "exact" selects prefix matching.
func ParseMatchMode(s string) MatchMode {
	if strings.EqualFold(s, "exact") {
		return MatchExact
	}
	return MatchPrefix
}

func (m MatchMode) String() string {
	if m == MatchExact {
		return "exact"
	}
	return "prefix"
}

// LookupCache stores resolved lookup ids. Implementations must be safe for
// concurrent use. Keys are namespaced by tenant base URL.
type LookupCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, remoteID string)
}

// Resolver resolves lookup display names to remote identifiers.
type Resolver struct {
	exec  *Executor
	mode  MatchMode
	cache LookupCache
}

// NewResolver creates a Resolver. cache may be nil.
func NewResolver(exec *Executor, mode MatchMode, cache LookupCache) *Resolver {
	return &Resolver{exec: exec, mode: mode, cache: cache}
}

// Resolve returns the remote id for name, or ok=false when there is no
// match or the lookup call failed. Failures are logged, never returned.
func (r *Resolver) Resolve(ctx context.Context, kind LookupKind, name string) (string, bool) {
	name = strings.TrimSpace(name)
	collection := kind.collection()
	if name == "" || collection == "" {
		return "", false
	}

	key := r.cacheKey(kind, name)
	if r.cache != nil {
		if id, ok := r.cache.Get(ctx, key); ok {
			metrics.LookupResolutions.WithLabelValues(string(kind), "cache_hit").Inc()
			return id, true
		}
	}

	q := url.Values{}
	q.Set("$filter", r.filter(name))
	q.Set("$select", "Id,Name")
	q.Set("$top", "1")

	var resp struct {
		Value []struct {
			ID   string `json:"Id"`
			Name string `json:"Name"`
		} `json:"value"`
	}
	err := r.exec.Do(ctx, Request{Style: OData, Method: http.MethodGet, Operation: collection, Query: q}, &resp)
	if err != nil {
		metrics.LookupResolutions.WithLabelValues(string(kind), "error").Inc()
		logging.Ctx(ctx).Error().Err(err).Str("kind", string(kind)).Str("name", name).
			Msg("Lookup resolution failed")
		return "", false
	}
	if len(resp.Value) == 0 || resp.Value[0].ID == "" {
		metrics.LookupResolutions.WithLabelValues(string(kind), "unresolved").Inc()
		logging.Ctx(ctx).Warn().Str("kind", string(kind)).Str("name", name).Str("match", r.mode.String()).
			Msg("Lookup value not found in CRM")
		return "", false
	}

	id := resp.Value[0].ID
	metrics.LookupResolutions.WithLabelValues(string(kind), "resolved").Inc()
	if r.cache != nil {
		r.cache.Set(ctx, key, id)
	}
	return id, true
}

func (r *Resolver) filter(name string) string {
	// OData string literals escape a single quote by doubling it.
	literal := "'" + strings.ReplaceAll(name, "'", "''") + "'"
	if r.mode == MatchExact {
		return "Name eq " + literal
	}
	return "startswith(Name," + literal + ")"
}

func (r *Resolver) cacheKey(kind LookupKind, name string) string {
	return r.exec.BaseURL() + "|" + r.mode.String() + "|" + string(kind) + "|" + strings.ToLower(name)
}
