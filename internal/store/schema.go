// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

package store

// schema is applied on every start. CREATE IF NOT EXISTS keeps it idempotent;
// there is no migration framework because the table has had one shape so far.
const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	kind       TEXT NOT NULL DEFAULT 'info',
	title      TEXT NOT NULL,
	message    TEXT,
	link       TEXT,
	is_read    INTEGER NOT NULL DEFAULT 0,
	extra      TEXT,
	created_at TEXT NOT NULL,
	read_at    TEXT
);

CREATE INDEX IF NOT EXISTS idx_notifications_user
	ON notifications (user_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_notifications_user_unread
	ON notifications (user_id)
	WHERE is_read = 0;
`
