// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

/*
Package websocket pushes live queue views to clinic displays.

Every connection is a Client that owns one viewer.Session. The session
resolves the clinic, follows its active session and calls back on every
view change; the Client turns each change into a queue_state message
carrying the complete viewer.View. Closing the socket tears the viewer
down and releases its subscriptions.

The Hub tracks connected clients and broadcasts hub-wide messages such as
the periodic heartbeat. It runs under the supervisor via RunWithContext and
closes every client on shutdown.

Message Types:

  - queue_state: full viewer.View after a change (state, clinic, active
    session, queue snapshot, stale flag)
  - heartbeat: server liveness, sent every viewer.heartbeat_interval
  - ping / pong: application-level keepalive initiated by the display

Each client has two goroutines:
  - readPump: reads control messages and answers pings
  - writePump: writes queued messages and protocol pings

Slow displays never block the viewer: queue_state messages replace the
oldest queued message when the buffer is full, and a client that cannot
take a broadcast is disconnected.

Usage Example - Server:

	hub := websocket.NewHub()
	go hub.RunWithContext(ctx)

	client := websocket.NewClient(hub, conn, viewer.RoleCustomer, deps)
	hub.Register <- client
	if err := client.Start(context.WithoutCancel(r.Context()), slug); err != nil {
	    conn.Close()
	}

Usage Example - Client (JavaScript):

	const ws = new WebSocket('ws://localhost:3857/ws/clinics/city-health?role=customer');
	ws.onmessage = (event) => {
	    const msg = JSON.parse(event.data);
	    if (msg.type === 'queue_state' && msg.data.queue) {
	        render(msg.data.queue.current_token, msg.data.queue.no_shows, msg.data.stale);
	    }
	};
*/
package websocket
