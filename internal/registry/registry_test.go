// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession records enqueued frames and can be told to fail.
type fakeSession struct {
	id     string
	userID uuid.UUID

	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed int
}

func newFakeSession(userID uuid.UUID) *fakeSession {
	return &fakeSession{id: uuid.NewString(), userID: userID}
}

func (f *fakeSession) ID() string        { return f.id }
func (f *fakeSession) UserID() uuid.UUID { return f.userID }

func (f *fakeSession) Enqueue(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send buffer full")
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeSession) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeSession) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestRegisterAndPush(t *testing.T) {
	r := New()
	userID := uuid.New()
	s1 := newFakeSession(userID)
	s2 := newFakeSession(userID)

	r.Register(s1)
	r.Register(s2)

	assert.True(t, r.IsConnected(userID))
	assert.Equal(t, 2, r.SessionCount())
	assert.Equal(t, 1, r.UserCount())

	delivered := r.PushToUser(userID, []byte(`{"event":"x"}`))
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 1, s1.frameCount())
	assert.Equal(t, 1, s2.frameCount())
}

func TestPushToUnknownUser(t *testing.T) {
	r := New()
	assert.Equal(t, 0, r.PushToUser(uuid.New(), []byte("frame")))
}

func TestPushDoesNotCrossUsers(t *testing.T) {
	r := New()
	alice := newFakeSession(uuid.New())
	bob := newFakeSession(uuid.New())
	r.Register(alice)
	r.Register(bob)

	delivered := r.PushToUser(alice.UserID(), []byte("frame"))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, alice.frameCount())
	assert.Equal(t, 0, bob.frameCount())
}

func TestDeregisterExactlyOnce(t *testing.T) {
	r := New()
	s := newFakeSession(uuid.New())
	r.Register(s)

	assert.True(t, r.Deregister(s))
	assert.False(t, r.Deregister(s))
	assert.False(t, r.IsConnected(s.UserID()))
	assert.Equal(t, 0, r.UserCount())
}

func TestDeregisterUnknownSession(t *testing.T) {
	r := New()
	assert.False(t, r.Deregister(newFakeSession(uuid.New())))
}

func TestPushEvictsDeadSessions(t *testing.T) {
	r := New()
	userID := uuid.New()
	healthy := newFakeSession(userID)
	dead := newFakeSession(userID)
	dead.fail = true

	r.Register(healthy)
	r.Register(dead)

	delivered := r.PushToUser(userID, []byte("frame"))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, r.SessionCount())
	assert.Equal(t, 1, dead.closeCount())

	// Dead session is gone; a second push only reaches the healthy one.
	delivered = r.PushToUser(userID, []byte("frame"))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 2, healthy.frameCount())
}

func TestEvictingLastSessionRemovesUser(t *testing.T) {
	r := New()
	userID := uuid.New()
	dead := newFakeSession(userID)
	dead.fail = true
	r.Register(dead)

	assert.Equal(t, 0, r.PushToUser(userID, []byte("frame")))
	assert.False(t, r.IsConnected(userID))
	assert.Equal(t, 0, r.UserCount())
}

func TestCloseAll(t *testing.T) {
	r := New()
	sessions := make([]*fakeSession, 0, 4)
	for i := 0; i < 4; i++ {
		s := newFakeSession(uuid.New())
		sessions = append(sessions, s)
		r.Register(s)
	}

	r.CloseAll()

	assert.Equal(t, 0, r.SessionCount())
	assert.Equal(t, 0, r.UserCount())
	for _, s := range sessions {
		assert.Equal(t, 1, s.closeCount())
	}
}

func TestConcurrentRegisterPushDeregister(t *testing.T) {
	r := New()
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := newFakeSession(userID)
			r.Register(s)
			r.PushToUser(userID, []byte("frame"))
			require.True(t, r.Deregister(s))
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.SessionCount())
	assert.Equal(t, 0, r.UserCount())
}
