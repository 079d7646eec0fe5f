// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

/*
Package middleware provides HTTP middleware components for the API.

Key Components:

  - Request ID: assigns X-Request-ID and stores request and correlation ids
    on the context for logging.Ctx
  - Prometheus Metrics: request count, duration and in-flight gauge,
    labelled by chi route pattern
  - Compression: gzip for JSON responses

All middleware uses the func(http.HandlerFunc) http.HandlerFunc shape; the
api package adapts it for chi's r.Use.

Middleware Stack:

	r.Use(chiMiddleware(middleware.RequestID))
	r.Route("/api/v1", func(r chi.Router) {
	    r.Use(chiMiddleware(middleware.PrometheusMetrics))
	    r.Use(chiMiddleware(middleware.Compression))
	    ...
	})

The metrics wrapper forwards Hijack, so websocket upgrades work behind it,
and is recorded as status 101. Compression skips upgrade requests.
*/
package middleware
