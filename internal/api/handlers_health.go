// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/nowserving/internal/models"
)

// readyPingTimeout bounds the store ping in the readiness probe.
const readyPingTimeout = 2 * time.Second

// HealthLive handles liveness probe requests. It never touches the store.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: models.HealthResponse{
			Status: "alive",
			Uptime: time.Since(h.startTime).Round(time.Second).String(),
		},
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
		},
	})
}

// HealthReady handles readiness probe requests. The service is ready when
// the store answers a ping. A disconnected notifier is reported but does not
// fail readiness: writes still land and viewers resync on reconnect.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	storeStatus := "unavailable"
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyPingTimeout)
		err := h.store.Ping(ctx)
		cancel()
		if err == nil {
			storeStatus = "ok"
		}
	}

	notifierStatus := "unavailable"
	if h.notifier != nil {
		notifierStatus = h.notifier.Backend() + ":" + h.notifier.Status()
	}

	statusCode := http.StatusOK
	status := "ready"
	if storeStatus != "ok" {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	respondJSON(w, statusCode, &models.APIResponse{
		Status: status,
		Data: models.HealthResponse{
			Status:   status,
			Store:    storeStatus,
			Notifier: notifierStatus,
			Uptime:   time.Since(h.startTime).Round(time.Second).String(),
		},
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
		},
	})
}
