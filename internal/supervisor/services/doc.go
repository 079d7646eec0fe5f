// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

// Package services adapts the long-running components to suture.Service.
//
// Each wrapper takes a small interface instead of the concrete type so the
// supervisor does not import the websocket or net/http packages it runs:
//
//   - WebSocketHubService: runs websocket.Hub.RunWithContext
//   - HeartbeatService: broadcasts a display heartbeat on an interval
//   - HTTPServerService: ListenAndServe with a bounded graceful drain
//
// Every wrapper returns ctx.Err() on shutdown and implements fmt.Stringer so
// suture's event log names the service.
package services
