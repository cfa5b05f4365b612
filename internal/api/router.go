// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

// Package api provides HTTP routing with chi.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/courier-rt/courier/internal/auth"
	"github.com/courier-rt/courier/internal/config"
)

// Router assembles the HTTP surface: health, metrics, the notification REST
// API, and the WebSocket entry point.
type Router struct {
	handler *Handler
	authMW  *auth.Middleware
	gateway http.Handler
	cfg     *config.Config
}

// NewRouter wires the handler set, auth middleware, and WebSocket gateway.
func NewRouter(handler *Handler, authMW *auth.Middleware, gateway http.Handler, cfg *config.Config) *Router {
	return &Router{handler: handler, authMW: authMW, gateway: gateway, cfg: cfg}
}

// Setup builds the route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Use(httprate.LimitByIP(router.cfg.Security.RateLimitReqs, router.cfg.Security.RateLimitWindow))
		r.Use(prometheusMiddleware)
		r.Use(router.authMW.Authenticate)

		r.Get("/", router.handler.List)
		r.Get("/unread-count", router.handler.UnreadCount)
		r.Get("/{id}", router.handler.Get)
		r.Post("/mark-read", router.handler.MarkRead)
		r.Post("/mark-all-read", router.handler.MarkAllRead)

		r.With(router.authMW.RequireAdmin).Post("/send", router.handler.Send)
	})

	// The WebSocket handshake authenticates via query parameter inside the
	// gateway, not through the bearer middleware.
	r.Get("/api/v1/ws", router.gateway.ServeHTTP)

	return r
}
