// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/courier-rt/courier/internal/config"
	"github.com/courier-rt/courier/internal/logging"
)

// Literal ping/pong text frames. These are application-level, distinct from
// the WebSocket control frames the pumps also exchange, so that browser
// clients without control-frame access can still probe liveness.
const (
	textPing = "ping"
	textPong = "pong"
)

var (
	errSessionClosed  = errors.New("session closed")
	errSendBufferFull = errors.New("session send buffer full")
)

// session is one live WebSocket connection. All writes go through the send
// channel so a single goroutine owns the socket's write side.
type session struct {
	id     string
	userID uuid.UUID
	conn   *websocket.Conn
	cfg    *config.GatewayConfig

	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, userID uuid.UUID, cfg *config.GatewayConfig) *session {
	return &session{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		cfg:    cfg,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// ID implements registry.Session.
func (s *session) ID() string { return s.id }

// UserID implements registry.Session.
func (s *session) UserID() uuid.UUID { return s.userID }

// Enqueue hands a frame to the write pump without blocking. A closed session
// or a full buffer is an error; the registry evicts the session either way.
func (s *session) Enqueue(frame []byte) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}
	select {
	case s.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close tears the session down. Safe to call from any goroutine, any number
// of times. The send channel is never closed; the write pump exits via done.
func (s *session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// writePump owns the socket's write side: queued frames plus keepalive pings.
func (s *session) writePump() {
	pingPeriod := s.cfg.PongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case <-s.done:
			return

		case frame := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.Debug().Err(err).Str("session_id", s.id).Msg("session write failed")
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes inbound frames. Clients only ever send the literal ping
// probe; everything else is ignored. Returns when the connection dies.
func (s *session) readPump() {
	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait)); err != nil {
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Str("session_id", s.id).Msg("unexpected websocket close")
			}
			return
		}
		// Any inbound traffic proves liveness.
		if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait)); err != nil {
			return
		}

		if msgType == websocket.TextMessage && string(data) == textPing {
			if err := s.Enqueue([]byte(textPong)); err != nil {
				return
			}
		}
	}
}
