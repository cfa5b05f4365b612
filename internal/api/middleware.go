// Courier - Cross-process realtime notification delivery
// Copyright 2026 Dan R. (courier-rt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/courier-rt/courier

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/courier-rt/courier/internal/metrics"
)

// prometheusMiddleware records request duration per route pattern, so path
// parameters do not explode the label cardinality.
func prometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.ObserveHTTPRequest(r.Method, pattern, ww.Status(), time.Since(start))
	})
}
