// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/casesync/internal/config"
	"github.com/tomtom215/casesync/internal/logging"
)

func newMemoryPublisher(t *testing.T) *Publisher {
	t.Helper()
	p, err := New(config.EventsConfig{Backend: config.EventsMemory, SubjectPrefix: "casesync"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestPublisher_EmitCaseSynced(t *testing.T) {
	p := newMemoryPublisher(t)
	ctx := context.Background()

	ch, err := p.Subscribe(ctx, TopicCaseSynced)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ctx = logging.ContextWithCorrelationID(ctx, "abcd1234")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := p.Emit(ctx, CaseSynced{CompanyID: 1, CaseID: 7, CaseNumber: "UAT-2026-0001", RemoteID: "R-42", Created: true, At: at}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	msg := receive(t, ch)
	var got CaseSynced
	if err := json.Unmarshal(msg.Payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.RemoteID != "R-42" || !got.Created || got.CaseNumber != "UAT-2026-0001" {
		t.Errorf("payload = %+v", got)
	}
	if cid := msg.Metadata.Get("correlation_id"); cid != "abcd1234" {
		t.Errorf("correlation_id = %q, want abcd1234", cid)
	}
}

func TestPublisher_Topic(t *testing.T) {
	p := NewWithPublisher(nil, "casesync")
	if got := p.Topic(TopicPassCompleted); got != "casesync_pass_completed" {
		t.Errorf("Topic() = %q", got)
	}
	p = NewWithPublisher(nil, "")
	if got := p.Topic(TopicPassCompleted); got != "pass_completed" {
		t.Errorf("Topic() without prefix = %q", got)
	}
}

func TestPublisher_NoneBackend(t *testing.T) {
	p, err := New(config.EventsConfig{Backend: config.EventsNone})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p != nil {
		t.Fatal("New(none) should return a nil publisher")
	}
	if err := p.Emit(context.Background(), PassCompleted{}); err != nil {
		t.Errorf("nil Emit() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestPublisher_UnknownBackend(t *testing.T) {
	if _, err := New(config.EventsConfig{Backend: "kafka"}); err == nil {
		t.Error("New(kafka) error = nil")
	}
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	p := newMemoryPublisher(t)
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Emit(context.Background(), PassCompleted{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Emit() after Close error = %v, want ErrClosed", err)
	}
}
