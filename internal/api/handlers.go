// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package api

import (
	"context"
	"time"

	"github.com/tomtom215/nowserving/internal/config"
	"github.com/tomtom215/nowserving/internal/queue"
	"github.com/tomtom215/nowserving/internal/viewer"
	ws "github.com/tomtom215/nowserving/internal/websocket"
)

// Pinger reports store reachability. store.Store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NotifierStatus reports the change notifier's connection state.
// *notifier.Broker implements it.
type NotifierStatus interface {
	Status() string
	Backend() string
}

// Dependencies are the components the handlers call into.
type Dependencies struct {
	Queue    *queue.Service
	Store    Pinger
	Notifier NotifierStatus
	Hub      *ws.Hub
	Viewer   viewer.Deps
	Config   *config.Config
}

// Handler contains dependencies for API handlers
//
// Handler methods are split across files:
//   - handlers_health.go: liveness and readiness
//   - handlers_clinics.go: clinic directory and session lifecycle
//   - handlers_token.go: token state reads and mutations
//   - handlers_ws.go: display websocket upgrade
type Handler struct {
	queue     *queue.Service
	store     Pinger
	notifier  NotifierStatus
	wsHub     *ws.Hub
	viewer    viewer.Deps
	config    *config.Config
	startTime time.Time
}

// NewHandler creates a new API handler.
//
// Example:
//
//	handler := api.NewHandler(api.Dependencies{Queue: svc, Store: st, Notifier: broker, Hub: hub, Viewer: deps, Config: cfg})
//	router := api.NewRouter(handler, api.NewChiMiddlewareFromConfig(cfg))
//	http.ListenAndServe(":8080", router.SetupChi())
func NewHandler(d Dependencies) *Handler {
	return &Handler{
		queue:     d.Queue,
		store:     d.Store,
		notifier:  d.Notifier,
		wsHub:     d.Hub,
		viewer:    d.Viewer,
		config:    d.Config,
		startTime: time.Now(),
	}
}
