// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

// Package store persists notification rows in SQLite via database/sql.
//
// The store is the source of truth for unread counts: the realtime channel is
// an optimization layered on top, and every count or list read goes to the
// database directly. There is no locally cached unread count that could
// drift.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/courier-rt/courier/internal/config"
	"github.com/courier-rt/courier/internal/models"
)

// ErrNotFound is returned when a notification does not exist or belongs to
// a different user.
var ErrNotFound = errors.New("notification not found")

// Store wraps the SQLite connection pool.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) the notification database and applies
// the schema.
func New(cfg *config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Path, err)
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateParams carries the caller-supplied fields of a new notification.
type CreateParams struct {
	UserID  uuid.UUID
	Kind    models.Kind
	Title   string
	Message *string
	Link    *string
	Extra   map[string]any
}

// CreateNotification inserts a new unread notification and returns the
// persisted record.
func (s *Store) CreateNotification(ctx context.Context, p *CreateParams) (*models.Notification, error) {
	n := &models.Notification{
		ID:        uuid.New(),
		UserID:    p.UserID,
		Kind:      p.Kind,
		Title:     p.Title,
		Message:   p.Message,
		Link:      p.Link,
		Extra:     p.Extra,
		CreatedAt: time.Now().UTC(),
	}

	var extra sql.NullString
	if n.Extra != nil {
		data, err := json.Marshal(n.Extra)
		if err != nil {
			return nil, fmt.Errorf("marshal extra: %w", err)
		}
		extra = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, title, message, link, is_read, extra, created_at, read_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, NULL)`,
		n.ID.String(), n.UserID.String(), string(n.Kind), n.Title,
		nullable(n.Message), nullable(n.Link), extra,
		n.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// ListForUser returns a user's notifications ordered newest-first.
func (s *Store) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]*models.Notification, error) {
	query := `
		SELECT id, user_id, kind, title, message, link, is_read, extra, created_at, read_at
		FROM notifications
		WHERE user_id = ?`
	if unreadOnly {
		query += " AND is_read = 0"
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"

	rows, err := s.db.QueryContext(ctx, query, userID.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	notifications := make([]*models.Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// GetNotification fetches a single notification scoped to its owner.
// Returns ErrNotFound if the row does not exist or belongs to someone else.
func (s *Store) GetNotification(ctx context.Context, id, userID uuid.UUID) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, kind, title, message, link, is_read, extra, created_at, read_at
		FROM notifications
		WHERE id = ? AND user_id = ?`,
		id.String(), userID.String())

	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// UnreadCount returns the number of unread notifications for a user.
func (s *Store) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0", userID)
}

// TotalCount returns the total number of notifications for a user.
func (s *Store) TotalCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM notifications WHERE user_id = ?", userID)
}

func (s *Store) count(ctx context.Context, query string, userID uuid.UUID) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query, userID.String()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

// MarkRead marks the given notifications read, scoped to the owning user.
// Already-read rows are untouched, so re-marking is a harmless no-op and the
// returned count reflects only rows actually changed.
func (s *Store) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+2)
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano), userID.String())
	for _, id := range ids {
		args = append(args, id.String())
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1, read_at = ?
		WHERE user_id = ? AND is_read = 0 AND id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.RowsAffected()
}

// MarkAllRead marks every unread notification of a user as read.
func (s *Store) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1, read_at = ?
		WHERE user_id = ? AND is_read = 0`,
		time.Now().UTC().Format(time.RFC3339Nano), userID.String())
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.RowsAffected()
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner) (*models.Notification, error) {
	var (
		n                    models.Notification
		idStr, userStr, kind string
		message, link, extra sql.NullString
		isRead               int
		createdAt            string
		readAt               sql.NullString
	)
	if err := row.Scan(&idStr, &userStr, &kind, &n.Title, &message, &link, &isRead, &extra, &createdAt, &readAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}

	var err error
	if n.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parse notification id: %w", err)
	}
	if n.UserID, err = uuid.Parse(userStr); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	n.Kind = models.Kind(kind)
	n.IsRead = isRead != 0
	if message.Valid {
		n.Message = &message.String
	}
	if link.Valid {
		n.Link = &link.String
	}
	if extra.Valid {
		if err := json.Unmarshal([]byte(extra.String), &n.Extra); err != nil {
			return nil, fmt.Errorf("unmarshal extra: %w", err)
		}
	}
	if n.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if readAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, readAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse read_at: %w", err)
		}
		n.ReadAt = &t
	}
	return &n, nil
}
