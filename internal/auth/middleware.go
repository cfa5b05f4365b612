// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/courier-rt/courier/internal/logging"
	"github.com/courier-rt/courier/internal/models"
)

type contextKey string

// identityContextKey carries the verified caller through the request context.
const identityContextKey contextKey = "identity"

// IdentityFromContext returns the verified caller, or nil outside the
// authenticated route group.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey).(*Identity)
	return id
}

// WithIdentity returns a context carrying the identity. Exported for handler
// tests that bypass the middleware.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// Middleware enforces bearer authentication on REST routes.
type Middleware struct {
	manager *JWTManager
}

// NewMiddleware wraps a JWTManager for use in a chi route group.
func NewMiddleware(manager *JWTManager) *Middleware {
	return &Middleware{manager: manager}
}

// Authenticate rejects requests without a valid bearer token and stores the
// verified identity in the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		id, err := m.manager.Verify(token)
		if err != nil {
			logging.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected request credential")
			unauthorized(w, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireAdmin rejects authenticated callers that lack the admin role. Must
// run inside Authenticate.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromContext(r.Context())
		if !m.manager.IsAdmin(id) {
			forbidden(w, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(w http.ResponseWriter, detail string) {
	writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", detail)
}

func forbidden(w http.ResponseWriter, detail string) {
	writeAuthError(w, http.StatusForbidden, "FORBIDDEN", detail)
}

func writeAuthError(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: code, Message: http.StatusText(status), Details: detail},
	})
}
