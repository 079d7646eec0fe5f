// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/nowserving/internal/logging"
	"github.com/tomtom215/nowserving/internal/metrics"
	"github.com/tomtom215/nowserving/internal/viewer"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBufferSize = 32
)

// clientIDCounter gives clients monotonically increasing ids so broadcasts
// iterate in a stable order.
var clientIDCounter atomic.Uint64

// Client is one display connection. It owns a viewer.Session and streams
// a queue_state message after every change of that viewer's View.
type Client struct {
	id     uint64
	hub    *Hub
	conn   *websocket.Conn
	role   viewer.Role
	viewer *viewer.Session

	sendMu     sync.Mutex
	send       chan Message
	sendClosed bool

	closeOnce sync.Once
}

// NewClient creates a Client whose viewer reads through deps.
func NewClient(hub *Hub, conn *websocket.Conn, role viewer.Role, deps viewer.Deps) *Client {
	c := &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		conn: conn,
		role: role,
		send: make(chan Message, sendBufferSize),
	}
	c.viewer = viewer.NewSession(role, deps, c.pushView)
	return c
}

// ID returns the client's unique identifier
func (c *Client) ID() uint64 {
	return c.id
}

// Role returns the viewer role of the connection.
func (c *Client) Role() viewer.Role {
	return c.role
}

// Start mounts the viewer on slug and starts the pumps. ctx must outlive
// the HTTP handler; the viewer is torn down when the socket closes. On
// error the connection is already released.
func (c *Client) Start(ctx context.Context, slug string) error {
	metrics.TrackWSConnection(string(c.role), true)
	if err := c.viewer.Mount(ctx, slug); err != nil {
		c.shutdown()
		return err
	}
	go c.writePump()
	go c.readPump()
	return nil
}

// pushView queues the latest view. Views are complete, so when the buffer
// is full the oldest queued message is dropped instead of the newest.
func (c *Client) pushView(v viewer.View) {
	msg := Message{Type: MessageTypeQueueState, Data: v}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- msg:
		return
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- msg:
	default:
	}
}

// trySend queues msg without blocking. It reports false when the buffer is
// full; a closed client swallows the message.
func (c *Client) trySend(msg Message) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel once; the write pump then sends a close
// frame.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// shutdown releases everything the connection holds. Safe to call twice.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.Done():
			c.closeSend()
		}
		_ = c.conn.Close() // best-effort cleanup
		c.viewer.Close()
		metrics.TrackWSConnection(string(c.role), false)
	})
}

// readPump reads control traffic until the peer goes away.
func (c *Client) readPump() {
	defer c.shutdown()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("unexpected websocket close error")
			}
			return
		}

		if msg.Type == MessageTypePing {
			c.trySend(Message{Type: MessageTypePong})
		}
	}
}

// writePump writes queued messages and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // best-effort cleanup
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// Hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}

			payload, err := MarshalMessage(message)
			if err != nil {
				logging.Error().Err(err).Str("message_type", message.Type).Msg("failed to marshal websocket message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("websocket write failed")
				return
			}
			metrics.WSMessagesSent.Inc()

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
