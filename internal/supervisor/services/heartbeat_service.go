// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package services

import (
	"context"
	"time"
)

// DefaultHeartbeatInterval is used when the configured interval is not positive.
const DefaultHeartbeatInterval = 15 * time.Second

// Heartbeater is satisfied by *websocket.Hub.
type Heartbeater interface {
	BroadcastHeartbeat(now time.Time)
}

// HeartbeatService broadcasts a heartbeat to every display on a fixed
// interval. Displays use it to detect a silent connection.
type HeartbeatService struct {
	hub      Heartbeater
	interval time.Duration
	now      func() time.Time
	name     string
}

// NewHeartbeatService creates a heartbeat ticker for hub.
func NewHeartbeatService(hub Heartbeater, interval time.Duration) *HeartbeatService {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &HeartbeatService{
		hub:      hub,
		interval: interval,
		now:      time.Now,
		name:     "display-heartbeat",
	}
}

// Serve implements suture.Service.
func (h *HeartbeatService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.hub.BroadcastHeartbeat(h.now())
		}
	}
}

// String implements fmt.Stringer for suture's log events.
func (h *HeartbeatService) String() string {
	return h.name
}
