// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

// Package auth verifies the bearer credentials that identify users on both
// the REST API and the WebSocket handshake. Courier does not issue sessions
// itself; tokens come from the surrounding platform and are validated here.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/courier-rt/courier/internal/config"
)

// Verification failure categories. The gateway maps these onto distinct
// close codes so a client can tell "log in again" from "fix your client".
var (
	// ErrInvalidToken covers bad signatures, expiry, and malformed tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMalformedSubject means the token verified but its subject is not a
	// user id we can route notifications to.
	ErrMalformedSubject = errors.New("token subject is not a valid user id")
)

// Claims are the token claims Courier cares about. The subject registered
// claim carries the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is a verified caller: the parsed user id plus the role used for
// admin-only endpoints.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

// JWTManager validates (and, for tests and tooling, mints) HS256 tokens.
type JWTManager struct {
	secret    []byte
	adminRole string
}

// NewJWTManager builds a manager from the security configuration.
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required but was empty")
	}
	return &JWTManager{
		secret:    []byte(cfg.JWTSecret),
		adminRole: cfg.AdminRole,
	}, nil
}

// GenerateToken mints a signed token for the given user. Used by tests and
// the token helper command; production tokens come from the identity
// provider sharing the same secret.
func (m *JWTManager) GenerateToken(userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token string and resolves it to an identity.
// Signature, expiry, and algorithm failures return ErrInvalidToken; a valid
// token whose subject does not parse as a UUID returns ErrMalformedSubject.
func (m *JWTManager) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return nil, ErrMalformedSubject
	}

	return &Identity{UserID: userID, Role: claims.Role}, nil
}

// IsAdmin reports whether the identity carries the configured admin role.
func (m *JWTManager) IsAdmin(id *Identity) bool {
	return id != nil && id.Role == m.adminRole
}
