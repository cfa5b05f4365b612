// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

package models

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Event names carried by broadcast envelopes and session messages.
const (
	// EventConnected is sent once per session immediately after
	// registration; its payload is the current unread count.
	EventConnected = "connected"

	// EventNewNotification carries a full notification record.
	EventNewNotification = "new_notification"

	// EventNotificationCount carries the current unread count, pushed after
	// mark-read operations so other sessions of the same user converge.
	EventNotificationCount = "notification_count"
)

// Envelope is the transient unit carried over the broadcast bus. It is
// produced by the notification service, relayed verbatim by the bus, and
// consumed once per subscribing process. It is never persisted.
type Envelope struct {
	UserID uuid.UUID       `json:"user_id"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// NewEnvelope builds an envelope, serializing the payload.
func NewEnvelope(userID uuid.UUID, event string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope payload: %w", err)
	}
	return &Envelope{UserID: userID, Event: event, Data: data}, nil
}

// Encode serializes the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses a wire-format envelope. A zero user id is rejected
// so that a malformed message can never fan out to nobody silently.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if e.UserID == uuid.Nil {
		return nil, fmt.Errorf("envelope has no user id")
	}
	if e.Event == "" {
		return nil, fmt.Errorf("envelope has no event name")
	}
	return &e, nil
}

// SessionMessage is the outbound unit written to a live session:
// `{"event": ..., "data": ...}`.
type SessionMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// UnreadPayload is the payload for connected and notification_count events.
type UnreadPayload struct {
	UnreadCount int64 `json:"unread_count"`
}
