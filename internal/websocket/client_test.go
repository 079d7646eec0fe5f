// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/nowserving/internal/models"
	"github.com/tomtom215/nowserving/internal/notifier"
	"github.com/tomtom215/nowserving/internal/queue"
	"github.com/tomtom215/nowserving/internal/store"
	"github.com/tomtom215/nowserving/internal/viewer"
)

// countingFeed tracks how many subscriptions are open.
type countingFeed struct {
	next viewer.Feed
	open atomic.Int64
}

type countedStream struct {
	notifier.Stream
	once sync.Once
	feed *countingFeed
}

func (s *countedStream) Close() {
	s.Stream.Close()
	s.once.Do(func() { s.feed.open.Add(-1) })
}

func (f *countingFeed) wrap(s notifier.Stream, err error) (notifier.Stream, error) {
	if err != nil {
		return nil, err
	}
	f.open.Add(1)
	return &countedStream{Stream: s, feed: f}, nil
}

func (f *countingFeed) SubscribeTokenState(ctx context.Context, sessionID string) (notifier.Stream, error) {
	return f.wrap(f.next.SubscribeTokenState(ctx, sessionID))
}

func (f *countingFeed) SubscribeSessions(ctx context.Context, clinicID string) (notifier.Stream, error) {
	return f.wrap(f.next.SubscribeSessions(ctx, clinicID))
}

type wsHarness struct {
	hub     *Hub
	stopHub context.CancelFunc
	svc     *queue.Service
	feed    *countingFeed
	clinic  *models.Clinic
	server  *httptest.Server
}

func newWSHarness(t *testing.T) *wsHarness {
	t.Helper()
	broker := notifier.NewMemory(16)
	t.Cleanup(func() { _ = broker.Close() })

	svc := queue.NewService(store.NewMemory(), broker)
	clinic, err := svc.CreateClinic(context.Background(), "city-health", "City Health Clinic")
	if err != nil {
		t.Fatal(err)
	}

	h := &wsHarness{
		hub:    NewHub(),
		svc:    svc,
		feed:   &countingFeed{next: broker},
		clinic: clinic,
	}
	h.stopHub = runHub(t, h.hub)

	deps := viewer.Deps{
		Backend: svc,
		Feed:    h.feed,
		Backoff: viewer.Backoff{Base: 5 * time.Millisecond, Max: 20 * time.Millisecond},
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, err := viewer.ParseRole(r.URL.Query().Get("role"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(h.hub, conn, role, deps)
		h.hub.Register <- client
		if err := client.Start(context.WithoutCancel(r.Context()), "city-health"); err != nil {
			t.Errorf("Start: %v", err)
		}
	}))
	t.Cleanup(h.server.Close)
	return h
}

func (h *wsHarness) dial(t *testing.T, role string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/?role=" + role
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, what string, match func(wireMessage) bool) wireMessage {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("bad message %s: %v", data, err)
		}
		if match(msg) {
			return msg
		}
	}
}

func viewMatches(t *testing.T, pred func(viewer.View) bool) func(wireMessage) bool {
	return func(msg wireMessage) bool {
		if msg.Type != MessageTypeQueueState {
			return false
		}
		var v viewer.View
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			t.Fatalf("bad view %s: %v", msg.Data, err)
		}
		return pred(v)
	}
}

func atToken(current int) func(viewer.View) bool {
	return func(v viewer.View) bool {
		return v.State == viewer.StateSubscribed && v.Queue != nil && !v.Queue.Loading && v.Queue.CurrentToken == current
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestClient_StreamsQueueState(t *testing.T) {
	h := newWSHarness(t)
	ctx := context.Background()
	conn := h.dial(t, "customer")

	readUntil(t, conn, "no active session", viewMatches(t, func(v viewer.View) bool {
		return v.State == viewer.StateNoActiveSession && v.Clinic != nil && v.Clinic.Slug == "city-health"
	}))

	sess, err := h.svc.AddSession(ctx, h.clinic.ID, "Morning")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.StartSession(ctx, h.clinic.ID, sess.ID); err != nil {
		t.Fatal(err)
	}
	readUntil(t, conn, "token 1", viewMatches(t, atToken(1)))

	if _, err := h.svc.NextPatient(ctx, h.clinic.ID, sess.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.MarkNoShow(ctx, h.clinic.ID, sess.ID); err != nil {
		t.Fatal(err)
	}
	readUntil(t, conn, "(3, [2])", viewMatches(t, func(v viewer.View) bool {
		return atToken(3)(v) && len(v.Queue.NoShows) == 1 && v.Queue.NoShows[0] == 2
	}))
}

func TestClient_AdminReceivesSessionList(t *testing.T) {
	h := newWSHarness(t)
	if _, err := h.svc.AddSession(context.Background(), h.clinic.ID, "Morning"); err != nil {
		t.Fatal(err)
	}
	conn := h.dial(t, "admin")
	readUntil(t, conn, "session list", viewMatches(t, func(v viewer.View) bool {
		return v.Role == viewer.RoleAdmin && len(v.Sessions) == 1 && v.Sessions[0].Name == "Morning"
	}))
}

func TestClient_DisconnectTearsDownViewer(t *testing.T) {
	h := newWSHarness(t)
	ctx := context.Background()
	sess, err := h.svc.AddSession(ctx, h.clinic.ID, "Morning")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.StartSession(ctx, h.clinic.ID, sess.ID); err != nil {
		t.Fatal(err)
	}

	conn := h.dial(t, "customer")
	readUntil(t, conn, "subscribed", viewMatches(t, atToken(1)))
	if got := h.feed.open.Load(); got != 2 {
		t.Fatalf("open subscriptions = %d, want 2", got)
	}
	if h.hub.GetClientCount() != 1 {
		t.Fatalf("client count = %d", h.hub.GetClientCount())
	}

	_ = conn.Close()
	eventually(t, "client unregistered", func() bool { return h.hub.GetClientCount() == 0 })
	eventually(t, "subscriptions released", func() bool { return h.feed.open.Load() == 0 })
}

func TestClient_PingPong(t *testing.T) {
	h := newWSHarness(t)
	conn := h.dial(t, "customer")

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatal(err)
	}
	readUntil(t, conn, "pong", func(msg wireMessage) bool { return msg.Type == MessageTypePong })
}

func TestClient_Heartbeat(t *testing.T) {
	h := newWSHarness(t)
	conn := h.dial(t, "customer")
	eventually(t, "registered", func() bool { return h.hub.GetClientCount() == 1 })

	h.hub.BroadcastHeartbeat(time.Now())
	msg := readUntil(t, conn, "heartbeat", func(msg wireMessage) bool { return msg.Type == MessageTypeHeartbeat })

	var data HeartbeatData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Clients != 1 || data.Timestamp == "" {
		t.Errorf("heartbeat = %+v", data)
	}
}

func TestClient_HubShutdownClosesConnection(t *testing.T) {
	h := newWSHarness(t)
	conn := h.dial(t, "customer")
	readUntil(t, conn, "first view", func(msg wireMessage) bool { return msg.Type == MessageTypeQueueState })

	h.stopHub()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Errorf("read error = %v, want going away close", err)
			}
			break
		}
	}
	eventually(t, "subscriptions released", func() bool { return h.feed.open.Load() == 0 })
}

func TestClient_Constants(t *testing.T) {
	if pingPeriod >= pongWait {
		t.Errorf("pingPeriod %v must be shorter than pongWait %v", pingPeriod, pongWait)
	}
	if sendBufferSize < 2 {
		t.Errorf("sendBufferSize = %d", sendBufferSize)
	}
}
