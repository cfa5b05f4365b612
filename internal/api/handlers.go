// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/courier-rt/courier/internal/auth"
	"github.com/courier-rt/courier/internal/models"
	"github.com/courier-rt/courier/internal/service"
	"github.com/courier-rt/courier/internal/store"
)

// Handler holds the dependencies of the REST endpoints.
type Handler struct {
	service  *service.Service
	store    *store.Store
	validate *validator.Validate

	defaultPageSize int
	maxPageSize     int
}

// NewHandler creates the REST handler set.
func NewHandler(svc *service.Service, st *store.Store, defaultPageSize, maxPageSize int) *Handler {
	return &Handler{
		service:         svc,
		store:           st,
		validate:        validator.New(),
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"}, time.Now())
}

// HealthReady reports readiness: the store must answer.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := h.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "database unavailable", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"}, start)
}

// SendRequest is the admin request body for creating a notification.
type SendRequest struct {
	UserID  string         `json:"user_id" validate:"required,uuid_rfc4122"`
	Kind    string         `json:"kind" validate:"omitempty,oneof=info success warning error"`
	Title   string         `json:"title" validate:"required,max=500"`
	Message *string        `json:"message" validate:"omitempty,max=4000"`
	Link    *string        `json:"link" validate:"omitempty,max=2000"`
	Extra   map[string]any `json:"extra"`
}

// Send creates and delivers a notification. Admin only.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "user_id must be a UUID", nil)
		return
	}

	n, err := h.service.Send(r.Context(), &service.SendParams{
		UserID:  userID,
		Kind:    req.Kind,
		Title:   req.Title,
		Message: req.Message,
		Link:    req.Link,
		Extra:   req.Extra,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidKind) || errors.Is(err, service.ErrEmptyTitle) {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create notification", err)
		return
	}
	respondJSON(w, http.StatusCreated, n, start)
}

// List returns the caller's notifications with unread and total counts.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := auth.IdentityFromContext(r.Context())

	limit := getIntParam(r, "limit", h.defaultPageSize)
	if limit < 1 || limit > h.maxPageSize {
		limit = h.defaultPageSize
	}
	offset := getIntParam(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	list, err := h.service.List(r.Context(), id.UserID, limit, offset, getBoolParam(r, "unread_only"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list notifications", err)
		return
	}
	respondJSON(w, http.StatusOK, list, start)
}

// UnreadCount returns the caller's unread count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := auth.IdentityFromContext(r.Context())

	unread, err := h.service.UnreadCount(r.Context(), id.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to count notifications", err)
		return
	}
	respondJSON(w, http.StatusOK, models.UnreadPayload{UnreadCount: unread}, start)
}

// Get returns a single notification owned by the caller.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := auth.IdentityFromContext(r.Context())

	notifID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be a UUID", nil)
		return
	}

	n, err := h.service.Get(r.Context(), notifID, id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "notification not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load notification", err)
		return
	}
	respondJSON(w, http.StatusOK, n, start)
}

// MarkReadRequest is the body for marking specific notifications read.
type MarkReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,uuid_rfc4122"`
}

// MarkRead marks the given notifications read for the caller.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := auth.IdentityFromContext(r.Context())

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "ids must be UUIDs", nil)
			return
		}
		ids = append(ids, parsed)
	}

	res, err := h.service.MarkRead(r.Context(), id.UserID, ids)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to mark notifications read", err)
		return
	}
	respondJSON(w, http.StatusOK, res, start)
}

// MarkAllRead marks every unread notification of the caller read.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := auth.IdentityFromContext(r.Context())

	res, err := h.service.MarkAllRead(r.Context(), id.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to mark notifications read", err)
		return
	}
	respondJSON(w, http.StatusOK, res, start)
}
