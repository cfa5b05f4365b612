// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

// Package registry tracks which users have live WebSocket sessions in this
// process. It is purely local state; cross-process fan-out happens on the
// broadcast bus and every process consults only its own registry.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/courier-rt/courier/internal/logging"
	"github.com/courier-rt/courier/internal/metrics"
)

// Session is one live client connection. The gateway's client type implements
// it; the registry never touches the underlying socket directly.
type Session interface {
	// ID identifies the session for logging.
	ID() string

	// UserID is the authenticated owner of the session.
	UserID() uuid.UUID

	// Enqueue hands a pre-encoded frame to the session's writer. It must not
	// block; a full or closed session returns an error, which the registry
	// treats as the session being dead.
	Enqueue(frame []byte) error

	// Close tears down the session. Safe to call more than once.
	Close()
}

// userEntry holds one user's sessions behind its own lock, so pushes to
// different users never contend with each other.
type userEntry struct {
	mu       sync.Mutex
	sessions map[Session]struct{}
}

// Registry maps user ids to their live sessions. The outer lock guards only
// the user map; per-user operations take the entry lock.
type Registry struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*userEntry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{users: make(map[uuid.UUID]*userEntry)}
}

// Register adds a session under its user id.
func (r *Registry) Register(s Session) {
	userID := s.UserID()

	// The outer lock is held across the insert so a concurrent deregister of
	// the user's last other session cannot orphan the entry we add to.
	r.mu.Lock()
	entry, ok := r.users[userID]
	if !ok {
		entry = &userEntry{sessions: make(map[Session]struct{})}
		r.users[userID] = entry
		metrics.ConnectedUsers.Inc()
	}
	entry.mu.Lock()
	entry.sessions[s] = struct{}{}
	total := len(entry.sessions)
	entry.mu.Unlock()
	r.mu.Unlock()

	metrics.LiveSessions.Inc()
	logging.Info().
		Str("session_id", s.ID()).
		Str("user_id", userID.String()).
		Int("user_sessions", total).
		Msg("session registered")
}

// Deregister removes a session. It reports whether the session was present,
// so callers with multiple teardown paths can make removal exactly-once.
func (r *Registry) Deregister(s Session) bool {
	userID := s.UserID()

	r.mu.Lock()
	entry, ok := r.users[userID]
	if !ok {
		r.mu.Unlock()
		return false
	}

	entry.mu.Lock()
	if _, present := entry.sessions[s]; !present {
		entry.mu.Unlock()
		r.mu.Unlock()
		return false
	}
	delete(entry.sessions, s)
	remaining := len(entry.sessions)
	entry.mu.Unlock()

	if remaining == 0 {
		delete(r.users, userID)
		metrics.ConnectedUsers.Dec()
	}
	r.mu.Unlock()

	metrics.LiveSessions.Dec()
	logging.Info().
		Str("session_id", s.ID()).
		Str("user_id", userID.String()).
		Int("user_sessions", remaining).
		Msg("session deregistered")
	return true
}

// PushToUser delivers a frame to every live session of a user and returns the
// number of sessions that accepted it. Sessions that refuse the frame are
// closed and dropped on the spot rather than waiting for their read loop to
// notice the dead socket.
func (r *Registry) PushToUser(userID uuid.UUID, frame []byte) int {
	r.mu.RLock()
	entry, ok := r.users[userID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	entry.mu.Lock()
	var dead []Session
	delivered := 0
	for s := range entry.sessions {
		if err := s.Enqueue(frame); err != nil {
			dead = append(dead, s)
			continue
		}
		delivered++
	}
	for _, s := range dead {
		delete(entry.sessions, s)
	}
	entry.mu.Unlock()

	for _, s := range dead {
		metrics.LiveSessions.Dec()
		metrics.SessionSendFailures.Inc()
		logging.Warn().
			Str("session_id", s.ID()).
			Str("user_id", userID.String()).
			Msg("evicting unresponsive session")
		s.Close()
	}
	if len(dead) > 0 {
		r.pruneUser(userID)
	}
	return delivered
}

// pruneUser removes the user's entry if its session set emptied out.
func (r *Registry) pruneUser(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.users[userID]
	if !ok {
		return
	}
	entry.mu.Lock()
	empty := len(entry.sessions) == 0
	entry.mu.Unlock()
	if empty {
		delete(r.users, userID)
		metrics.ConnectedUsers.Dec()
	}
}

// IsConnected reports whether a user has at least one live session here.
func (r *Registry) IsConnected(userID uuid.UUID) bool {
	r.mu.RLock()
	entry, ok := r.users[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return len(entry.sessions) > 0
}

// SessionCount returns the total number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, entry := range r.users {
		entry.mu.Lock()
		total += len(entry.sessions)
		entry.mu.Unlock()
	}
	return total
}

// UserCount returns the number of distinct users with live sessions.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// CloseAll tears down every session, used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	users := r.users
	r.users = make(map[uuid.UUID]*userEntry)
	r.mu.Unlock()

	closed := 0
	for _, entry := range users {
		entry.mu.Lock()
		for s := range entry.sessions {
			s.Close()
			closed++
			metrics.LiveSessions.Dec()
		}
		entry.sessions = make(map[Session]struct{})
		entry.mu.Unlock()
		metrics.ConnectedUsers.Dec()
	}
	if closed > 0 {
		logging.Info().Int("sessions_closed", closed).Msg("closed all sessions during shutdown")
	}
}
