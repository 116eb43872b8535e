// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package crm

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
)

// mapCache is a minimal LookupCache for resolver tests.
type mapCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *mapCache) Set(_ context.Context, key, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = map[string]string{}
	}
	c.m[key] = id
}

// lookupHandler answers OData lookup queries from names, honoring prefix and
// exact filters the way the CRM does.
func lookupHandler(names map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("$filter")
		var rows []map[string]string
		for name, id := range names {
			var matched bool
			switch {
			case strings.HasPrefix(filter, "startswith(Name,'"):
				arg := strings.TrimSuffix(strings.TrimPrefix(filter, "startswith(Name,'"), "')")
				matched = strings.HasPrefix(name, strings.ReplaceAll(arg, "''", "'"))
			case strings.HasPrefix(filter, "Name eq '"):
				arg := strings.TrimSuffix(strings.TrimPrefix(filter, "Name eq '"), "'")
				matched = name == strings.ReplaceAll(arg, "''", "'")
			}
			if matched {
				rows = append(rows, map[string]string{"Id": id, "Name": name})
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"value": rows})
	}
}

func TestResolver_PrefixMatch(t *testing.T) {
	f := newFakeCRM(t)
	f.handle("/0/odata/CasePriority", lookupHandler(map[string]string{"High priority": "P-HIGH"}))

	r := NewResolver(f.executor(t), MatchPrefix, nil)
	id, ok := r.Resolve(context.Background(), LookupPriority, "High")
	if !ok || id != "P-HIGH" {
		t.Fatalf("Resolve() = %q, %v; want P-HIGH, true", id, ok)
	}

	q := f.recorded()[0]
	if !strings.Contains(q.Query, "$top=1") || !strings.Contains(q.Query, "$select=Id%2CName") {
		t.Errorf("lookup query = %q, want $top=1 and $select=Id,Name", q.Query)
	}
}

func TestResolver_ExactMatch(t *testing.T) {
	f := newFakeCRM(t)
	f.handle("/0/odata/CasePriority", lookupHandler(map[string]string{"High priority": "P-HIGH"}))

	r := NewResolver(f.executor(t), MatchExact, nil)
	if id, ok := r.Resolve(context.Background(), LookupPriority, "High"); ok {
		t.Errorf("Resolve() = %q, true; want no match in exact mode", id)
	}
	if id, ok := r.Resolve(context.Background(), LookupPriority, "High priority"); !ok || id != "P-HIGH" {
		t.Errorf("Resolve() = %q, %v; want P-HIGH, true", id, ok)
	}
}

func TestResolver_Filter(t *testing.T) {
	tests := []struct {
		mode MatchMode
		name string
		want string
	}{
		{MatchPrefix, "High", "startswith(Name,'High')"},
		{MatchExact, "High", "Name eq 'High'"},
		{MatchPrefix, "O'Brien", "startswith(Name,'O''Brien')"},
	}

	for _, tt := range tests {
		r := &Resolver{mode: tt.mode}
		if got := r.filter(tt.name); got != tt.want {
			t.Errorf("filter(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestResolver_Collections(t *testing.T) {
	f := newFakeCRM(t)
	f.handle("/0/odata/CaseStatus", lookupHandler(map[string]string{"New": "S-NEW"}))
	f.handle("/0/odata/CaseCategory", lookupHandler(map[string]string{"Bug": "C-BUG"}))

	r := NewResolver(f.executor(t), MatchPrefix, nil)
	ctx := context.Background()
	if id, _ := r.Resolve(ctx, LookupStatus, "New"); id != "S-NEW" {
		t.Errorf("status id = %q, want S-NEW", id)
	}
	if id, _ := r.Resolve(ctx, LookupCategory, "Bug"); id != "C-BUG" {
		t.Errorf("category id = %q, want C-BUG", id)
	}
}

func TestResolver_FailuresAreAbsence(t *testing.T) {
	f := newFakeCRM(t)
	f.handle("/0/odata/CasePriority", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	r := NewResolver(f.executor(t), MatchPrefix, nil)
	ctx := context.Background()

	if id, ok := r.Resolve(ctx, LookupPriority, "High"); ok || id != "" {
		t.Errorf("Resolve() on 500 = %q, %v; want \"\", false", id, ok)
	}
	if _, ok := r.Resolve(ctx, LookupPriority, ""); ok {
		t.Error("Resolve() on empty name = true")
	}
	if _, ok := r.Resolve(ctx, LookupKind("unknown"), "x"); ok {
		t.Error("Resolve() on unknown kind = true")
	}
}

func TestResolver_CachesPositiveResults(t *testing.T) {
	f := newFakeCRM(t)
	f.handle("/0/odata/CasePriority", lookupHandler(map[string]string{"High": "P-HIGH"}))

	cache := &mapCache{}
	r := NewResolver(f.executor(t), MatchPrefix, cache)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if id, ok := r.Resolve(ctx, LookupPriority, "High"); !ok || id != "P-HIGH" {
			t.Fatalf("Resolve() = %q, %v", id, ok)
		}
	}
	_, _ = r.Resolve(ctx, LookupPriority, "Missing")
	_, _ = r.Resolve(ctx, LookupPriority, "Missing")

	if n := len(f.recorded()); n != 3 {
		t.Errorf("remote lookups = %d, want 3 (1 cached hit + 2 uncached misses)", n)
	}
}

func TestParseMatchMode(t *testing.T) {
	if ParseMatchMode("EXACT") != MatchExact {
		t.Error("ParseMatchMode(EXACT) != MatchExact")
	}
	if ParseMatchMode("") != MatchPrefix || ParseMatchMode("prefix") != MatchPrefix {
		t.Error("ParseMatchMode default != MatchPrefix")
	}
}
