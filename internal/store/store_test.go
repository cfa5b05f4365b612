// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courier-rt/courier/internal/config"
	"github.com/courier-rt/courier/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(&config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "courier.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestCreateAndGetNotification(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	created, err := s.CreateNotification(ctx, &CreateParams{
		UserID:  userID,
		Kind:    models.KindSuccess,
		Title:   "Export finished",
		Message: strPtr("Your export is ready"),
		Link:    strPtr("/exports/42"),
		Extra:   map[string]any{"export_id": "42"},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.IsRead)
	assert.Nil(t, created.ReadAt)

	got, err := s.GetNotification(ctx, created.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, models.KindSuccess, got.Kind)
	assert.Equal(t, "Export finished", got.Title)
	require.NotNil(t, got.Message)
	assert.Equal(t, "Your export is ready", *got.Message)
	require.NotNil(t, got.Link)
	assert.Equal(t, "/exports/42", *got.Link)
	assert.Equal(t, "42", got.Extra["export_id"])
	assert.False(t, got.IsRead)
	assert.Nil(t, got.ReadAt)
}

func TestGetNotificationScopedToOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := uuid.New()

	n, err := s.CreateNotification(ctx, &CreateParams{UserID: owner, Kind: models.KindInfo, Title: "hello"})
	require.NoError(t, err)

	_, err = s.GetNotification(ctx, n.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetNotification(ctx, uuid.New(), owner)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListForUserOrderingAndPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()
	other := uuid.New()

	for i := 0; i < 5; i++ {
		_, err := s.CreateNotification(ctx, &CreateParams{UserID: userID, Kind: models.KindInfo, Title: "mine"})
		require.NoError(t, err)
	}
	_, err := s.CreateNotification(ctx, &CreateParams{UserID: other, Kind: models.KindInfo, Title: "theirs"})
	require.NoError(t, err)

	page, err := s.ListForUser(ctx, userID, 3, 0, false)
	require.NoError(t, err)
	require.Len(t, page, 3)
	for _, n := range page {
		assert.Equal(t, userID, n.UserID)
	}
	// Newest first.
	assert.True(t, !page[0].CreatedAt.Before(page[1].CreatedAt))
	assert.True(t, !page[1].CreatedAt.Before(page[2].CreatedAt))

	rest, err := s.ListForUser(ctx, userID, 3, 3, false)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestListForUserUnreadOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	read, err := s.CreateNotification(ctx, &CreateParams{UserID: userID, Kind: models.KindInfo, Title: "seen"})
	require.NoError(t, err)
	_, err = s.CreateNotification(ctx, &CreateParams{UserID: userID, Kind: models.KindWarning, Title: "unseen"})
	require.NoError(t, err)

	changed, err := s.MarkRead(ctx, userID, []uuid.UUID{read.ID})
	require.NoError(t, err)
	require.Equal(t, int64(1), changed)

	unread, err := s.ListForUser(ctx, userID, 10, 0, true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "unseen", unread[0].Title)
}

func TestCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := s.CreateNotification(ctx, &CreateParams{UserID: userID, Kind: models.KindError, Title: "boom"})
		require.NoError(t, err)
	}

	unread, err := s.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread)

	total, err := s.TotalCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	_, err = s.MarkAllRead(ctx, userID)
	require.NoError(t, err)

	unread, err = s.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)

	total, err = s.TotalCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestMarkReadIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	n, err := s.CreateNotification(ctx, &CreateParams{UserID: userID, Kind: models.KindInfo, Title: "once"})
	require.NoError(t, err)

	changed, err := s.MarkRead(ctx, userID, []uuid.UUID{n.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	changed, err = s.MarkRead(ctx, userID, []uuid.UUID{n.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), changed)

	got, err := s.GetNotification(ctx, n.ID, userID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	require.NotNil(t, got.ReadAt)
}

func TestMarkReadScopedToUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := uuid.New()

	n, err := s.CreateNotification(ctx, &CreateParams{UserID: owner, Kind: models.KindInfo, Title: "private"})
	require.NoError(t, err)

	changed, err := s.MarkRead(ctx, uuid.New(), []uuid.UUID{n.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), changed)

	got, err := s.GetNotification(ctx, n.ID, owner)
	require.NoError(t, err)
	assert.False(t, got.IsRead)
}

func TestMarkReadEmptyIDs(t *testing.T) {
	s := newTestStore(t)

	changed, err := s.MarkRead(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), changed)
}

func TestMarkAllReadIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		_, err := s.CreateNotification(ctx, &CreateParams{UserID: userID, Kind: models.KindInfo, Title: "t"})
		require.NoError(t, err)
	}

	changed, err := s.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	changed, err = s.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), changed)
}
