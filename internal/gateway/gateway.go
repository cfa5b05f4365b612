// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

// Package gateway accepts WebSocket sessions, authenticates them, and binds
// them to the connection registry.
//
// The credential travels in the connection query parameters because browser
// WebSocket clients cannot set request headers. The handshake upgrades
// first and then closes with a distinguishable code on auth failure, since
// an HTTP status on a failed upgrade is invisible to browser JavaScript.
package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/courier-rt/courier/internal/auth"
	"github.com/courier-rt/courier/internal/config"
	"github.com/courier-rt/courier/internal/logging"
	"github.com/courier-rt/courier/internal/metrics"
	"github.com/courier-rt/courier/internal/models"
	"github.com/courier-rt/courier/internal/registry"
	"github.com/courier-rt/courier/internal/service"
)

// Application close codes, in the 4000-4999 private range. Clients branch on
// these: 4001 and 4002 mean re-authenticate, 4003 means the token itself is
// wrong for this service.
const (
	CloseMissingToken     = 4001
	CloseInvalidToken     = 4002
	CloseMalformedSubject = 4003
)

// tokenParam is the query parameter carrying the credential.
const tokenParam = "token"

// Gateway upgrades HTTP requests into registered notification sessions.
type Gateway struct {
	registry *registry.Registry
	verifier *auth.JWTManager
	service  *service.Service
	cfg      *config.GatewayConfig
	upgrader websocket.Upgrader
}

// New creates a gateway. Origin checking is left open: the credential in the
// query parameters is the access control, and tokens never live in cookies
// where cross-origin requests could ride them.
func New(reg *registry.Registry, verifier *auth.JWTManager, svc *service.Service, cfg *config.GatewayConfig) *Gateway {
	return &Gateway{
		registry: reg,
		verifier: verifier,
		service:  svc,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles the WebSocket handshake.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		logging.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	token := r.URL.Query().Get(tokenParam)
	if token == "" {
		g.reject(conn, CloseMissingToken, "missing token", "missing_token")
		return
	}

	id, err := g.verifier.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrMalformedSubject) {
			g.reject(conn, CloseMalformedSubject, "malformed subject", "malformed_subject")
		} else {
			g.reject(conn, CloseInvalidToken, "invalid token", "invalid_token")
		}
		return
	}

	s := newSession(conn, id.UserID, g.cfg)
	g.registry.Register(s)
	metrics.SessionsOpened.Inc()

	go s.writePump()
	go g.runSession(s)

	g.sendConnected(r, s)
}

// runSession blocks on the read pump and deregisters exactly once when it
// exits, regardless of which side closed the connection.
func (g *Gateway) runSession(s *session) {
	s.readPump()
	if g.registry.Deregister(s) {
		s.Close()
	}
}

// sendConnected pushes the post-register greeting carrying the unread count,
// so clients can render the badge without an immediate REST call.
func (g *Gateway) sendConnected(r *http.Request, s *session) {
	unread, err := g.service.UnreadCount(r.Context(), s.userID)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", s.userID.String()).Msg("failed to load unread count for greeting")
		unread = 0
	}

	frame, err := json.Marshal(models.SessionMessage{
		Event: models.EventConnected,
		Data:  models.UnreadPayload{UnreadCount: unread},
	})
	if err != nil {
		logging.Error().Err(err).Msg("failed to encode connected event")
		return
	}
	if err := s.Enqueue(frame); err != nil {
		logging.Warn().Err(err).Str("session_id", s.id).Msg("failed to queue connected event")
	}
}

// reject closes a just-upgraded connection with an application close code.
func (g *Gateway) reject(conn *websocket.Conn, code int, reason, metricLabel string) {
	metrics.SessionsRejected.WithLabelValues(metricLabel).Inc()
	logging.Debug().Int("close_code", code).Str("reason", reason).Msg("rejected websocket session")

	deadline := time.Now().Add(g.cfg.WriteTimeout)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = conn.Close()
}
