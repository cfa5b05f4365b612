// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

package models

import "time"

// APIResponse is the uniform REST response envelope. Status is "success" or
// "error"; Error is populated only on failure.
type APIResponse struct {
	Status   string    `json:"status"`
	Data     any       `json:"data"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata carries response observability fields.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms"`
}

// APIError is a machine-readable error with an optional human detail.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MarkReadResult is returned by the mark-read endpoints: how many rows
// actually changed and the unread count after the update.
type MarkReadResult struct {
	Updated     int64 `json:"updated"`
	UnreadCount int64 `json:"unread_count"`
}
