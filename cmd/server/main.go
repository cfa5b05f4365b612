// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

// Package main is the entry point for the Courier server.
//
// Courier delivers per-user notifications to connected WebSocket sessions in
// near real time, fanning events out across processes over a broadcast bus.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered Koanf v2 sources (defaults, config.yaml, environment)
//  2. Store: SQLite-backed notification persistence and unread counts
//  3. Bus: NATS broadcast bus (optionally an embedded server), or in-memory fallback
//  4. Registry and relay: per-process session registry fed by the bus
//  5. HTTP surface: REST API, WebSocket gateway, health, and Prometheus metrics
//
// The relay and HTTP server run under a suture supervisor tree so a crash in
// one layer restarts that layer without taking down the other.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/courier-rt/courier/internal/api"
	"github.com/courier-rt/courier/internal/auth"
	"github.com/courier-rt/courier/internal/bus"
	"github.com/courier-rt/courier/internal/config"
	"github.com/courier-rt/courier/internal/gateway"
	"github.com/courier-rt/courier/internal/logging"
	"github.com/courier-rt/courier/internal/registry"
	"github.com/courier-rt/courier/internal/relay"
	"github.com/courier-rt/courier/internal/service"
	"github.com/courier-rt/courier/internal/store"
	"github.com/courier-rt/courier/internal/supervisor"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("version", Version).Msg("Starting Courier server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === STORE ===

	st, err := store.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to open notification store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close notification store")
		}
	}()
	logging.Info().Str("path", cfg.Database.Path).Msg("Notification store ready")

	// === BROADCAST BUS ===

	var embedded *bus.EmbeddedServer
	var broadcastBus bus.Bus
	if cfg.Bus.NATSEnabled {
		busCfg := cfg.Bus
		if busCfg.EmbeddedServer {
			embedded, err = bus.NewEmbeddedServer()
			if err != nil {
				logging.Fatal().Err(err).Msg("Failed to start embedded bus server")
			}
			busCfg.URL = embedded.ClientURL()
			logging.Info().Str("url", busCfg.URL).Msg("Embedded bus server started")
		}
		broadcastBus, err = bus.NewNATS(&busCfg)
		if err != nil {
			logging.Fatal().Err(err).Str("url", busCfg.URL).Msg("Failed to connect to broadcast bus")
		}
		logging.Info().Str("topic", cfg.Bus.Topic).Msg("NATS broadcast bus connected")
	} else {
		broadcastBus = bus.NewMemory(cfg.Bus.Topic)
		logging.Warn().Msg("NATS disabled, using in-memory bus (single-process only)")
	}
	defer func() {
		if err := broadcastBus.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close broadcast bus")
		}
	}()

	// === SESSION REGISTRY AND RELAY ===

	reg := registry.New()
	broadcastRelay := relay.New(broadcastBus, reg)

	// === AUTH, SERVICE, GATEWAY ===

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}
	authMW := auth.NewMiddleware(jwtManager)

	svc := service.New(st, broadcastBus)
	gw := gateway.New(reg, jwtManager, svc, &cfg.Gateway)

	// === HTTP SERVER ===

	handler := api.NewHandler(svc, st, cfg.API.DefaultPageSize, cfg.API.MaxPageSize)
	router := api.NewRouter(handler, authMW, gw, cfg).Setup()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// === SUPERVISOR TREE ===

	treeCfg := supervisor.DefaultTreeConfig()
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)

	tree.AddMessagingService(broadcastRelay)
	tree.AddAPIService(supervisor.NewHTTPService(server, treeCfg.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("Relay and HTTP server added to supervisor tree")

	// === SIGNAL HANDLING AND RUN ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	// Drop any sessions still attached before the deferred bus and store close.
	reg.CloseAll()

	if embedded != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Bus.CloseTimeout)
		if err := embedded.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("Embedded bus server shutdown incomplete")
		}
		shutdownCancel()
	}

	logging.Info().Msg("Courier stopped gracefully")
}
