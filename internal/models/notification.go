// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

// Package models defines the data shapes shared across Courier's packages:
// the persisted notification record, the transient broadcast envelope, and
// the REST response envelopes.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a notification for client-side presentation.
type Kind string

// The fixed notification kind enumeration. CreateNotification rejects
// anything outside this set.
const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Valid reports whether k is a member of the kind enumeration.
func (k Kind) Valid() bool {
	switch k {
	case KindInfo, KindSuccess, KindWarning, KindError:
		return true
	}
	return false
}

// ParseKind converts a string into a Kind, defaulting empty input to info.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return KindInfo, nil
	}
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("invalid notification kind %q", s)
	}
	return k, nil
}

// Notification is a durable notification row. Rows are created once, mutated
// only by mark-read operations scoped to the owning user, and never deleted
// by this service.
//
// Invariant: ReadAt is non-nil iff IsRead is true.
type Notification struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	Kind      Kind           `json:"kind"`
	Title     string         `json:"title"`
	Message   *string        `json:"message"`
	Link      *string        `json:"link"`
	IsRead    bool           `json:"is_read"`
	Extra     map[string]any `json:"extra,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ReadAt    *time.Time     `json:"read_at"`
}

// NotificationList is the paginated list response shape, bundling the unread
// and total counts the badge UI needs alongside the page itself.
type NotificationList struct {
	Notifications []*Notification `json:"notifications"`
	UnreadCount   int64           `json:"unread_count"`
	Total         int64           `json:"total"`
}
