// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

// Package relay bridges the broadcast bus to local WebSocket sessions.
// Exactly one relay runs per process. It consumes the broadcast topic,
// decodes each envelope, and pushes the resulting session frame to every
// local session of the target user. Users without local sessions are
// skipped; other processes handle their own.
package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/courier-rt/courier/internal/bus"
	"github.com/courier-rt/courier/internal/logging"
	"github.com/courier-rt/courier/internal/metrics"
	"github.com/courier-rt/courier/internal/models"
	"github.com/courier-rt/courier/internal/registry"
)

// Relay consumes the broadcast topic and fans envelopes out to the local
// registry. Start and Stop are idempotent; Stop waits for the consume loop
// to drain before returning.
type Relay struct {
	bus      bus.Bus
	registry *registry.Registry

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a relay over the given bus and registry.
func New(b bus.Bus, r *registry.Registry) *Relay {
	return &Relay{bus: b, registry: r}
}

// Start subscribes to the broadcast topic and begins forwarding. Calling
// Start on a running relay is a no-op. Fresh stop channels are made on each
// start so the relay can run again after Stop.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	messages, err := r.bus.Subscribe(ctx)
	if err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return err
	}

	go r.consume(ctx, messages, stopCh, doneCh)

	logging.Info().Msg("broadcast relay started")
	return nil
}

// Stop halts forwarding and waits for the consume loop to exit. Calling
// Stop on a stopped relay is a no-op.
func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
	logging.Info().Msg("broadcast relay stopped")
}

// ErrStreamClosed is returned by Serve when the bus subscription ends
// without the relay being stopped. The supervisor restarts the relay, which
// re-subscribes.
var ErrStreamClosed = errors.New("broadcast subscription stream closed")

// Serve runs the relay under a supervisor: it starts, waits for context
// cancellation or stream failure, then stops. Restartable because Start
// re-subscribes.
func (r *Relay) Serve(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	doneCh := r.doneCh
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		r.Stop()
		return ctx.Err()
	case <-doneCh:
		r.Stop()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrStreamClosed
	}
}

// String identifies the relay in supervisor logs.
func (r *Relay) String() string {
	return "broadcast-relay"
}

func (r *Relay) consume(ctx context.Context, messages <-chan *message.Message, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case msg, ok := <-messages:
			if !ok {
				logging.Warn().Msg("broadcast subscription stream closed")
				return
			}
			r.handle(msg)
		}
	}
}

// handle forwards one bus message. Every message is acked: broadcast
// envelopes are transient, so redelivering an undecodable or undeliverable
// one would never improve the outcome.
func (r *Relay) handle(msg *message.Message) {
	defer msg.Ack()

	env, err := models.DecodeEnvelope(msg.Payload)
	if err != nil {
		metrics.RelaySkipped.WithLabelValues("decode_error").Inc()
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("skipping undecodable broadcast message")
		return
	}

	frame, err := json.Marshal(models.SessionMessage{Event: env.Event, Data: env.Data})
	if err != nil {
		metrics.RelaySkipped.WithLabelValues("decode_error").Inc()
		logging.Warn().Err(err).Str("event", env.Event).Msg("skipping unencodable session frame")
		return
	}

	delivered := r.registry.PushToUser(env.UserID, frame)
	if delivered == 0 {
		metrics.RelaySkipped.WithLabelValues("no_local_sessions").Inc()
		return
	}
	metrics.RelayDelivered.Add(float64(delivered))
	logging.Debug().
		Str("user_id", env.UserID.String()).
		Str("event", env.Event).
		Int("sessions", delivered).
		Msg("envelope delivered to local sessions")
}
