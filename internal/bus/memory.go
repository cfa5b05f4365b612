// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/courier-rt/courier/internal/metrics"
	"github.com/courier-rt/courier/internal/models"
)

// MemoryBus is the single-process bus implementation, used when NATS is
// disabled and in tests. It goes through the same envelope encoding as the
// NATS bus so the relay cannot tell them apart.
type MemoryBus struct {
	pubsub *gochannel.GoChannel
	topic  string

	mu     sync.RWMutex
	closed bool
}

// NewMemory creates an in-memory bus for the given topic.
func NewMemory(topic string) *MemoryBus {
	return &MemoryBus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			newWatermillLogger(),
		),
		topic: topic,
	}
}

// Publish sends one envelope to the broadcast topic.
func (b *MemoryBus) Publish(_ context.Context, env *models.Envelope) error {
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
	if err := b.pubsub.Publish(b.topic, message.NewMessage(watermill.NewUUID(), data)); err != nil {
		metrics.BusPublishErrors.Inc()
		return fmt.Errorf("publish envelope: %w", err)
	}
	metrics.BusPublished.Inc()
	return nil
}

// Subscribe returns the broadcast message stream.
func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, b.topic)
}

// Close shuts down the channel pub/sub.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	return b.pubsub.Close()
}
