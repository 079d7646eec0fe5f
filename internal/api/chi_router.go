// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/nowserving/internal/middleware"
)

// Router wires the handlers into a Chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. A nil mw uses DefaultChiMiddlewareConfig.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw}
}

// chiMiddleware adapts http.HandlerFunc middleware to Chi's func(http.Handler) http.Handler.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight is answered

	h := router.handler

	// ========================
	// Health Endpoints
	// ========================
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	// ========================
	// Queue API
	// ========================
	r.Route("/api/v1/clinics", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chiMiddleware(middleware.Compression))

		r.Post("/", h.CreateClinic)
		r.Route("/{slug}", func(r chi.Router) {
			r.Get("/", h.GetClinic)
			r.Get("/active", h.ActiveSession)
			r.Get("/sessions", h.ListSessions)
			r.Post("/sessions", h.CreateSession)

			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Post("/start", h.StartSession)
				r.Post("/end", h.EndSession)
				r.Get("/token", h.TokenState)
				r.Post("/token/advance", h.Advance)
				r.Post("/token/next", h.NextPatient)
				r.Post("/token/no-show", h.MarkNoShow)
				r.Post("/token/requeue", h.RequeueNoShow)
				r.Post("/token/manual", h.ManualSet)
			})
		})
	})

	// ========================
	// Display WebSocket
	// ========================
	r.With(chiMiddleware(middleware.PrometheusMetrics)).Get("/ws/clinics/{slug}", h.QueueDisplay)

	r.Handle("/metrics", promhttp.Handler())

	return r
}
