// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/nowserving/internal/logging"
	"github.com/tomtom215/nowserving/internal/validation"
	"github.com/tomtom215/nowserving/internal/viewer"
	ws "github.com/tomtom215/nowserving/internal/websocket"
)

// getUpgrader creates a WebSocket upgrader with proper origin checking and timeouts.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Browsers always send Origin on a websocket handshake.
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	if h.config == nil {
		return true
	}

	for _, allowedOrigin := range h.config.Security.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// QueueDisplay handles GET /ws/clinics/{slug}?role=customer|admin. It
// upgrades the connection and mounts a viewer session on the clinic; the
// client then receives a queue_state message on every view change.
func (h *Handler) QueueDisplay(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		logging.Warn().Msg("WebSocket connection rejected: hub not initialized")
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "WebSocket service unavailable", nil)
		return
	}

	slug := chi.URLParam(r, "slug")
	if !validation.IsSlug(slug) {
		respondError(w, http.StatusBadRequest, CodeValidation, "Invalid clinic slug", nil)
		return
	}
	role, err := viewer.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.wsHub, conn, role, h.viewer)
	select {
	case h.wsHub.Register <- client:
	case <-h.wsHub.Done():
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}

	// The request context ends when this handler returns; the viewer lives
	// as long as the socket.
	if err := client.Start(context.WithoutCancel(r.Context()), slug); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("slug", slug).Msg("Viewer mount failed")
	}
}
