// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

// Package bus carries notification envelopes between processes. Every process
// publishes to and subscribes from one fixed topic; delivery is at-most-once
// because a missed realtime event is always recoverable from the store.
package bus

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/courier-rt/courier/internal/models"
)

// Bus publishes envelopes to, and consumes them from, the broadcast topic.
// Two implementations exist: NATS for multi-process deployments and an
// in-memory channel for single-process runs and tests.
type Bus interface {
	// Publish sends one envelope to the broadcast topic.
	Publish(ctx context.Context, env *models.Envelope) error

	// Subscribe returns the stream of raw broadcast messages. The channel is
	// closed when the context is canceled or the bus is closed.
	Subscribe(ctx context.Context) (<-chan *message.Message, error)

	// Close shuts the bus down. Publish returns an error afterwards.
	Close() error
}
