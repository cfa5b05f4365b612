// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courier-rt/courier/internal/bus"
	"github.com/courier-rt/courier/internal/models"
	"github.com/courier-rt/courier/internal/registry"
)

type captureSession struct {
	id     string
	userID uuid.UUID

	mu     sync.Mutex
	frames [][]byte
}

func newCaptureSession(userID uuid.UUID) *captureSession {
	return &captureSession{id: uuid.NewString(), userID: userID}
}

func (c *captureSession) ID() string        { return c.id }
func (c *captureSession) UserID() uuid.UUID { return c.userID }
func (c *captureSession) Close()            {}

func (c *captureSession) Enqueue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

func (c *captureSession) waitForFrame(t *testing.T) []byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.frames) > 0 {
			frame := c.frames[0]
			c.mu.Unlock()
			return frame
		}
		c.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for session frame")
	return nil
}

func (c *captureSession) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func newTestRelay(t *testing.T) (*Relay, *bus.MemoryBus, *registry.Registry) {
	t.Helper()
	b := bus.NewMemory("notifications.broadcast")
	t.Cleanup(func() { _ = b.Close() })
	reg := registry.New()
	return New(b, reg), b, reg
}

func TestRelayDeliversToTargetUser(t *testing.T) {
	r, b, reg := newTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userID := uuid.New()
	session := newCaptureSession(userID)
	bystander := newCaptureSession(uuid.New())
	reg.Register(session)
	reg.Register(bystander)

	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	n := &models.Notification{ID: uuid.New(), UserID: userID, Kind: models.KindInfo, Title: "deploy done"}
	env, err := models.NewEnvelope(userID, models.EventNewNotification, n)
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, env))

	frame := session.waitForFrame(t)

	var sm struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &sm))
	assert.Equal(t, models.EventNewNotification, sm.Event)

	var decoded models.Notification
	require.NoError(t, json.Unmarshal(sm.Data, &decoded))
	assert.Equal(t, n.ID, decoded.ID)
	assert.Equal(t, "deploy done", decoded.Title)

	assert.Equal(t, 0, bystander.frameCount())
}

func TestRelayFansOutToAllUserSessions(t *testing.T) {
	r, b, reg := newTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userID := uuid.New()
	first := newCaptureSession(userID)
	second := newCaptureSession(userID)
	reg.Register(first)
	reg.Register(second)

	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	env, err := models.NewEnvelope(userID, models.EventNotificationCount, models.UnreadPayload{UnreadCount: 3})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, env))

	first.waitForFrame(t)
	second.waitForFrame(t)
}

func TestRelaySkipsUndecodableMessages(t *testing.T) {
	r, b, reg := newTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userID := uuid.New()
	session := newCaptureSession(userID)
	reg.Register(session)

	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	// An envelope with no user id fails decoding and must not kill the loop.
	bad, err := models.NewEnvelope(userID, models.EventNewNotification, nil)
	require.NoError(t, err)
	bad.UserID = uuid.Nil
	require.NoError(t, b.Publish(ctx, bad))

	good, err := models.NewEnvelope(userID, models.EventNotificationCount, models.UnreadPayload{UnreadCount: 1})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, good))

	frame := session.waitForFrame(t)
	var sm models.SessionMessage
	require.NoError(t, json.Unmarshal(frame, &sm))
	assert.Equal(t, models.EventNotificationCount, sm.Event)
	assert.Equal(t, 1, session.frameCount())
}

func TestRelayStartIdempotent(t *testing.T) {
	r, _, _ := newTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, r.Start(ctx))
	require.NoError(t, r.Start(ctx))
	r.Stop()
}

func TestRelayStopIdempotent(t *testing.T) {
	r, _, _ := newTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, r.Start(ctx))
	r.Stop()
	r.Stop()
}

func TestRelayStopWithoutStart(t *testing.T) {
	r, _, _ := newTestRelay(t)
	r.Stop()
}

func TestRelayServeStopsOnContextCancel(t *testing.T) {
	r, _, _ := newTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestRelayServeFailsWhenStreamCloses(t *testing.T) {
	r, b, _ := newTestRelay(t)

	done := make(chan error, 1)
	go func() { done <- r.Serve(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, b.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the stream closed")
	}
}
