// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

// Package metrics exposes Prometheus instrumentation for the delivery path:
// live sessions, bus traffic, relay fan-out, and REST latency.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session Gateway metrics
	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_live_sessions",
			Help: "Current number of open WebSocket sessions",
		},
	)

	ConnectedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_connected_users",
			Help: "Current number of distinct users with at least one session",
		},
	)

	SessionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_sessions_opened_total",
			Help: "Total number of WebSocket sessions accepted",
		},
	)

	SessionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_sessions_rejected_total",
			Help: "Total number of WebSocket handshakes rejected",
		},
		[]string{"reason"}, // "missing_token", "invalid_token", "malformed_subject"
	)

	// Broadcast bus metrics
	BusPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_bus_published_total",
			Help: "Total number of envelopes published to the broadcast bus",
		},
	)

	BusPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_bus_publish_errors_total",
			Help: "Total number of failed bus publishes (swallowed, not retried)",
		},
	)

	// Relay metrics
	RelayDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_relay_delivered_total",
			Help: "Total number of envelope deliveries to local sessions",
		},
	)

	RelaySkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_relay_skipped_total",
			Help: "Total number of bus messages skipped by the relay",
		},
		[]string{"reason"}, // "decode_error", "no_local_sessions"
	)

	SessionSendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_session_send_failures_total",
			Help: "Total number of session pushes that failed and evicted the session",
		},
	)

	// REST API metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_notifications_created_total",
			Help: "Total number of notifications persisted",
		},
		[]string{"kind"},
	)
)

// ObserveHTTPRequest records one completed HTTP request.
func ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}
