// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/casesync/internal/config"
	"github.com/tomtom215/casesync/internal/logging"
	"github.com/tomtom215/casesync/internal/metrics"
)

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("publisher is closed")

// Publisher emits sync events to a Watermill publisher.
type Publisher struct {
	publisher message.Publisher
	prefix    string
	logger    watermill.LoggerAdapter

	// channel is set for the in-process backend so tests and local
	// consumers can subscribe.
	channel *gochannel.GoChannel

	mu     sync.RWMutex
	closed bool
}

// New creates the publisher selected by cfg.Backend. The "none" backend
// returns a nil *Publisher, on which Emit is a no-op.
func New(cfg config.EventsConfig) (*Publisher, error) {
	logger := logging.NewWatermillAdapter()

	switch cfg.Backend {
	case config.EventsNone, "":
		return nil, nil
	case config.EventsMemory:
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		return &Publisher{publisher: ch, channel: ch, prefix: cfg.SubjectPrefix, logger: logger}, nil
	case config.EventsNATS:
		pub, err := newNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			return nil, err
		}
		return &Publisher{publisher: pub, prefix: cfg.SubjectPrefix, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}

// NewWithPublisher wraps an existing Watermill publisher.
func NewWithPublisher(pub message.Publisher, prefix string) *Publisher {
	p := &Publisher{publisher: pub, prefix: prefix, logger: logging.NewWatermillAdapter()}
	if ch, ok := pub.(*gochannel.GoChannel); ok {
		p.channel = ch
	}
	return p
}

func newNATSPublisher(url string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill nats publisher: %w", err)
	}
	return pub, nil
}

// Topic returns the full topic name for a suffix.
func (p *Publisher) Topic(suffix string) string {
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "_" + suffix
}

// Emit serializes e and publishes it. A nil Publisher discards events.
func (p *Publisher) Emit(ctx context.Context, e Event) error {
	if p == nil {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("serialize %s event: %w", e.TopicSuffix(), err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set("correlation_id", id)
	}

	topic := p.Topic(e.TopicSuffix())
	if err := p.publisher.Publish(topic, msg); err != nil {
		metrics.EventsPublished.WithLabelValues(e.TopicSuffix(), "error").Inc()
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	metrics.EventsPublished.WithLabelValues(e.TopicSuffix(), "success").Inc()
	return nil
}

// Subscribe returns messages of a topic suffix. Only the in-process backend
// supports it.
func (p *Publisher) Subscribe(ctx context.Context, suffix string) (<-chan *message.Message, error) {
	if p == nil || p.channel == nil {
		return nil, errors.New("subscribe requires the in-process events backend")
	}
	return p.channel.Subscribe(ctx, p.Topic(suffix))
}

// Close shuts the publisher down. It is safe to call on a nil Publisher.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
