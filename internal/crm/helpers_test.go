// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package crm

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

// fakeCRM serves the identity endpoint and lets each test register data
// handlers by path.
type fakeCRM struct {
	srv        *httptest.Server
	tokenCalls atomic.Int32

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests []recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

func newFakeCRM(t *testing.T) *fakeCRM {
	t.Helper()
	f := &fakeCRM{handlers: map[string]http.HandlerFunc{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCRM) handle(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = h
}

func (f *fakeCRM) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/connect/token" {
		n := f.tokenCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": fmt.Sprintf("token-%d", n),
			"expires_in":   3600,
		})
		return
	}

	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	h, ok := f.handlers[r.URL.Path]
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	r.Body = io.NopCloser(&byteReader{data: body})
	h(w, r)
}

func (f *fakeCRM) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeCRM) credentials() Credentials {
	return Credentials{IdentityURL: f.srv.URL, ClientID: "client", ClientSecret: "secret"}
}

func (f *fakeCRM) executor(t *testing.T) *Executor {
	t.Helper()
	exec, err := NewExecutor(ExecutorConfig{
		BaseURL:     f.srv.URL,
		CSRFToken:   "csrf-token",
		Timeout:     5 * time.Second,
		BreakerName: "test-" + t.Name(),
	}, NewTokenManager(f.credentials()))
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	return exec
}

type byteReader struct {
	data []byte
	off  int
}

func (b *byteReader) Read(p []byte) (int, error) {
	if b.off >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.off:])
	b.off += n
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("decode request body: %v (%s)", err, body)
	}
	return m
}

// fixedClock is an adjustable clock for token expiry tests.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
