// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

// Package service implements notification business logic on top of the store
// and the broadcast bus. The store write always happens first; the realtime
// publish is best-effort and its failure never fails the operation, because
// clients recover the same state from the REST API.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/courier-rt/courier/internal/bus"
	"github.com/courier-rt/courier/internal/logging"
	"github.com/courier-rt/courier/internal/metrics"
	"github.com/courier-rt/courier/internal/models"
	"github.com/courier-rt/courier/internal/store"
)

// Validation failures surfaced to the API as 400s.
var (
	ErrInvalidKind = errors.New("invalid notification kind")
	ErrEmptyTitle  = errors.New("notification title is required")
)

// Service coordinates persistence and realtime delivery.
type Service struct {
	store *store.Store
	bus   bus.Bus
}

// New creates a notification service.
func New(st *store.Store, b bus.Bus) *Service {
	return &Service{store: st, bus: b}
}

// SendParams describes a notification to create and deliver. An empty Kind
// defaults to info.
type SendParams struct {
	UserID  uuid.UUID
	Kind    string
	Title   string
	Message *string
	Link    *string
	Extra   map[string]any
}

// Send persists a notification and broadcasts it to the user's live
// sessions everywhere. The broadcast is fire-and-forget.
func (s *Service) Send(ctx context.Context, p *SendParams) (*models.Notification, error) {
	kind, err := models.ParseKind(p.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, p.Kind)
	}
	if p.Title == "" {
		return nil, ErrEmptyTitle
	}

	n, err := s.store.CreateNotification(ctx, &store.CreateParams{
		UserID:  p.UserID,
		Kind:    kind,
		Title:   p.Title,
		Message: p.Message,
		Link:    p.Link,
		Extra:   p.Extra,
	})
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(kind)).Inc()

	s.broadcast(ctx, p.UserID, models.EventNewNotification, n)
	return n, nil
}

// List returns a page of the user's notifications along with the counts the
// client needs to render a badge without a second round trip.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) (*models.NotificationList, error) {
	notifications, err := s.store.ListForUser(ctx, userID, limit, offset, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	total, err := s.store.TotalCount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count total: %w", err)
	}
	return &models.NotificationList{
		Notifications: notifications,
		UnreadCount:   unread,
		Total:         total,
	}, nil
}

// Get fetches one notification scoped to its owner.
func (s *Service) Get(ctx context.Context, id, userID uuid.UUID) (*models.Notification, error) {
	return s.store.GetNotification(ctx, id, userID)
}

// UnreadCount returns the user's unread count.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.UnreadCount(ctx, userID)
}

// MarkRead marks the given notifications read. Re-marking already-read ids
// is a no-op reflected in the returned Updated count. When anything changed,
// the new unread count is broadcast so the user's other sessions converge.
func (s *Service) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (*models.MarkReadResult, error) {
	updated, err := s.store.MarkRead(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return s.finishMarkRead(ctx, userID, updated)
}

// MarkAllRead marks every unread notification of the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (*models.MarkReadResult, error) {
	updated, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("mark all read: %w", err)
	}
	return s.finishMarkRead(ctx, userID, updated)
}

func (s *Service) finishMarkRead(ctx context.Context, userID uuid.UUID, updated int64) (*models.MarkReadResult, error) {
	unread, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	if updated > 0 {
		s.broadcast(ctx, userID, models.EventNotificationCount, models.UnreadPayload{UnreadCount: unread})
	}
	return &models.MarkReadResult{Updated: updated, UnreadCount: unread}, nil
}

// broadcast publishes an envelope, logging and swallowing any failure.
func (s *Service) broadcast(ctx context.Context, userID uuid.UUID, event string, payload any) {
	env, err := models.NewEnvelope(userID, event, payload)
	if err != nil {
		logging.Error().Err(err).Str("event", event).Msg("failed to build broadcast envelope")
		return
	}
	if err := s.bus.Publish(ctx, env); err != nil {
		logging.Warn().Err(err).
			Str("event", event).
			Str("user_id", userID.String()).
			Msg("broadcast publish failed, clients will catch up over REST")
	}
}
