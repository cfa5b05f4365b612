// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/courier-rt/courier/internal/config"
	"github.com/courier-rt/courier/internal/metrics"
	"github.com/courier-rt/courier/internal/models"
)

// NATSBus is the cross-process bus implementation. It runs on core NATS,
// not JetStream: broadcast envelopes are transient and a subscriber that was
// down simply never sees them, which matches at-most-once delivery.
type NATSBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	breaker    *gobreaker.CircuitBreaker[any]

	mu     sync.RWMutex
	closed bool
}

// NewNATS connects to the given NATS server and prepares the publisher and
// subscriber for the broadcast topic.
func NewNATS(cfg *config.BusConfig) (*NATSBus, error) {
	logger := newWatermillLogger()

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("nats disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("nats reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:          cfg.URL,
		NatsOptions:  natsOpts,
		Unmarshaler:  &wmNats.NATSMarshaler{},
		CloseTimeout: cfg.CloseTimeout,
		JetStream:    wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}

	return &NATSBus{
		publisher:  pub,
		subscriber: sub,
		topic:      cfg.Topic,
		breaker:    newPublishBreaker(),
	}, nil
}

// newPublishBreaker trips after consecutive publish failures so a dead
// broker costs callers a fast rejection instead of a connect timeout each.
func newPublishBreaker() *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "bus-publish",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// Publish sends one envelope to the broadcast topic.
func (b *NATSBus) Publish(_ context.Context, env *models.Envelope) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}
	b.mu.RUnlock()

	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)

	_, err = b.breaker.Execute(func() (any, error) {
		return nil, b.publisher.Publish(b.topic, msg)
	})
	if err != nil {
		metrics.BusPublishErrors.Inc()
		return fmt.Errorf("publish envelope: %w", err)
	}
	metrics.BusPublished.Inc()
	return nil
}

// Subscribe returns the broadcast message stream.
func (b *NATSBus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.subscriber.Subscribe(ctx, b.topic)
}

// Close shuts down publisher and subscriber.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	pubErr := b.publisher.Close()
	subErr := b.subscriber.Close()
	if pubErr != nil {
		return fmt.Errorf("close publisher: %w", pubErr)
	}
	if subErr != nil {
		return fmt.Errorf("close subscriber: %w", subErr)
	}
	return nil
}
