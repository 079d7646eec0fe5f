// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package viewer

import (
	"context"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/nowserving/internal/logging"
	"github.com/tomtom215/nowserving/internal/models"
	"github.com/tomtom215/nowserving/internal/notifier"
	"github.com/tomtom215/nowserving/internal/queue"
	"github.com/tomtom215/nowserving/internal/store"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

var testBackoff = Backoff{Base: 5 * time.Millisecond, Max: 20 * time.Millisecond}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	store  *store.Memory
	svc    *queue.Service
	broker *notifier.Broker
	deps   Deps
	clinic *models.Clinic
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	broker := notifier.NewMemory(16)
	t.Cleanup(func() { _ = broker.Close() })

	st := store.NewMemory()
	svc := queue.NewService(st, broker)
	clinic, err := svc.CreateClinic(context.Background(), "city-health", "City Health Clinic")
	if err != nil {
		t.Fatal(err)
	}
	return &harness{
		store:  st,
		svc:    svc,
		broker: broker,
		deps:   Deps{Backend: svc, Feed: broker, Backoff: testBackoff},
		clinic: clinic,
	}
}

func (h *harness) started(t *testing.T, name string) *models.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := h.svc.AddSession(ctx, h.clinic.ID, name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.StartSession(ctx, h.clinic.ID, sess.ID); err != nil {
		t.Fatal(err)
	}
	return sess
}

func snapshotIs(q *QueueState, current int, noShows ...int) func() bool {
	return func() bool {
		s := q.Snapshot()
		if noShows == nil {
			noShows = []int{}
		}
		return !s.Loading && s.CurrentToken == current && slices.Equal(s.NoShows, noShows)
	}
}

func TestQueueState_SeedThenEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.started(t, "Morning")
	if _, err := h.svc.NextPatient(ctx, h.clinic.ID, sess.ID); err != nil {
		t.Fatal(err)
	}

	q := NewQueueState(ctx, h.clinic.ID, sess.ID, h.deps, nil)
	defer q.Close()
	waitFor(t, "seed", snapshotIs(q, 2))

	if _, err := h.svc.MarkNoShow(ctx, h.clinic.ID, sess.ID); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "no-show event", snapshotIs(q, 3, 2))

	if _, err := q.Advance(ctx, 10, []int{2, 7}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "advance through the view", snapshotIs(q, 10, 2, 7))
}

func TestQueueState_EmptyIdentifiers(t *testing.T) {
	h := newHarness(t)
	for _, ids := range [][2]string{{"", ""}, {h.clinic.ID, ""}, {"", "sess"}} {
		q := NewQueueState(context.Background(), ids[0], ids[1], h.deps, nil)
		snap := q.Snapshot()
		if snap.Loading {
			t.Errorf("ids %v: loading should be false", ids)
		}
		if snap.CurrentToken != models.InitialToken || len(snap.NoShows) != 0 {
			t.Errorf("ids %v: view = (%d, %v), want (1, [])", ids, snap.CurrentToken, snap.NoShows)
		}
		if _, err := q.Advance(context.Background(), 2, nil); err == nil {
			t.Errorf("ids %v: Advance should fail", ids)
		}
		q.Close()
	}
}

func TestQueueState_LoadingUntilSeed(t *testing.T) {
	feed := newFakeFeed()
	backend := &gatedBackend{gate: make(chan struct{})}
	deps := Deps{Backend: backend, Feed: feed, Backoff: testBackoff}

	q := NewQueueState(context.Background(), "c", "s", deps, nil)
	defer q.Close()
	before := q.Snapshot()
	if !before.Loading {
		t.Fatal("should be loading before the seed read completes")
	}
	if before.CurrentToken != models.InitialToken {
		t.Errorf("current token before seed = %d, want %d", before.CurrentToken, models.InitialToken)
	}
	close(backend.gate)
	waitFor(t, "seed", snapshotIs(q, 4, 1))
}

func TestQueueState_NeverStartedSessionShowsReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.AddSession(ctx, h.clinic.ID, "Evening")
	if err != nil {
		t.Fatal(err)
	}

	var views []Snapshot
	var mu sync.Mutex
	q := NewQueueState(ctx, h.clinic.ID, sess.ID, h.deps, func(s Snapshot) {
		mu.Lock()
		views = append(views, s)
		mu.Unlock()
	})
	defer q.Close()
	waitFor(t, "seed without token state", snapshotIs(q, models.InitialToken))

	mu.Lock()
	defer mu.Unlock()
	for i, v := range views {
		if v.CurrentToken < models.InitialToken {
			t.Errorf("view %d has current token %d", i, v.CurrentToken)
		}
	}
}

func TestQueueState_TeardownStopsUpdates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.started(t, "Morning")

	var changes atomic.Int64
	q := NewQueueState(ctx, h.clinic.ID, sess.ID, h.deps, func(Snapshot) { changes.Add(1) })
	waitFor(t, "seed", snapshotIs(q, 1))

	q.Close()
	after := changes.Load()
	for range 5 {
		if _, err := h.svc.NextPatient(ctx, h.clinic.ID, sess.ID); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(30 * time.Millisecond)

	if got := changes.Load(); got != after {
		t.Errorf("view changed %d times after teardown", got-after)
	}
	if s := q.Snapshot(); s.CurrentToken != 1 {
		t.Errorf("snapshot moved after teardown: %d", s.CurrentToken)
	}
}

func TestQueueState_ResyncReseeds(t *testing.T) {
	feed := newFakeFeed()
	backend := &gatedBackend{gate: make(chan struct{})}
	close(backend.gate)
	q := NewQueueState(context.Background(), "c", "s", Deps{Backend: backend, Feed: feed, Backoff: testBackoff}, nil)
	defer q.Close()

	waitFor(t, "seed", snapshotIs(q, 4, 1))
	backend.set(9, 3)

	feed.token(t, 0).send(notifier.Event{Kind: notifier.KindResync})
	waitFor(t, "reseed after resync", snapshotIs(q, 9, 3))
	if got := backend.reads.Load(); got < 2 {
		t.Errorf("reads = %d, want a second point read", got)
	}
}

func TestQueueState_DroppedStreamResubscribesAndReseeds(t *testing.T) {
	feed := newFakeFeed()
	backend := &gatedBackend{gate: make(chan struct{})}
	close(backend.gate)
	q := NewQueueState(context.Background(), "c", "s", Deps{Backend: backend, Feed: feed, Backoff: testBackoff}, nil)
	defer q.Close()
	waitFor(t, "seed", snapshotIs(q, 4, 1))

	backend.set(6)
	feed.token(t, 0).drop()

	waitFor(t, "stale flag or recovery", func() bool {
		return feed.tokenCount() >= 2
	})
	waitFor(t, "reseed after resubscribe", snapshotIs(q, 6))
	if q.Snapshot().Stale {
		t.Error("view should not be stale after reseeding")
	}
}

func TestQueueState_OutOfOrderEventsOverwrite(t *testing.T) {
	feed := newFakeFeed()
	backend := &gatedBackend{gate: make(chan struct{})}
	close(backend.gate)
	q := NewQueueState(context.Background(), "c", "s", Deps{Backend: backend, Feed: feed, Backoff: testBackoff}, nil)
	defer q.Close()
	waitFor(t, "seed", snapshotIs(q, 4, 1))

	stream := feed.token(t, 0)
	for _, current := range []int{8, 5, 7} {
		stream.send(notifier.Event{
			Kind:       notifier.KindTokenState,
			TokenState: &models.TokenState{ClinicID: "c", SessionID: "s", CurrentToken: current, NoShows: []int{}},
		})
	}
	// An event for another clinic is ignored.
	stream.send(notifier.Event{
		Kind:       notifier.KindTokenState,
		TokenState: &models.TokenState{ClinicID: "other", SessionID: "s", CurrentToken: 99},
	})
	waitFor(t, "last payload", snapshotIs(q, 7))
	time.Sleep(20 * time.Millisecond)
	if q.Snapshot().CurrentToken != 7 {
		t.Errorf("current = %d, want 7", q.Snapshot().CurrentToken)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Millisecond},
		{1, 20 * time.Millisecond},
		{2, 40 * time.Millisecond},
		{3, 50 * time.Millisecond},
		{100, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := b.delay(tt.attempt); got != tt.want {
			t.Errorf("delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if (Backoff{Base: time.Hour, Max: time.Hour}).wait(ctx, 0) {
		t.Error("wait should return false on a cancelled context")
	}
}

// gatedBackend serves a fixed token state once gate is closed.
type gatedBackend struct {
	gate  chan struct{}
	reads atomic.Int64

	mu      sync.Mutex
	current int
	noShows []int
}

func (g *gatedBackend) set(current int, noShows ...int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = current
	g.noShows = noShows
}

func (g *gatedBackend) TokenState(ctx context.Context, clinicID, sessionID string) (*models.TokenState, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	g.reads.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == 0 {
		g.current, g.noShows = 4, []int{1}
	}
	return &models.TokenState{
		ClinicID:     clinicID,
		SessionID:    sessionID,
		CurrentToken: g.current,
		NoShows:      models.NormalizeNoShows(g.noShows),
	}, nil
}

func (g *gatedBackend) ResolveClinic(context.Context, string) (*models.Clinic, error) {
	return nil, queue.ErrNotFound
}

func (g *gatedBackend) ListSessions(context.Context, string) ([]*models.Session, error) {
	return nil, nil
}

func (g *gatedBackend) ActiveSession(context.Context, string) (*models.Session, *models.TokenState, error) {
	return nil, nil, nil
}

func (g *gatedBackend) Advance(context.Context, string, string, int, []int) (*models.TokenState, error) {
	return nil, queue.ErrPersistence
}

// fakeStream is a Stream the test drives by hand.
type fakeStream struct {
	mu     sync.Mutex
	ch     chan notifier.Event
	closed bool
}

func (f *fakeStream) Events() <-chan notifier.Event { return f.ch }

func (f *fakeStream) Close() { f.drop() }

func (f *fakeStream) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

func (f *fakeStream) send(ev notifier.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.ch <- ev
	}
}

type fakeFeed struct {
	mu       sync.Mutex
	tokens   []*fakeStream
	sessions []*fakeStream
}

func newFakeFeed() *fakeFeed { return &fakeFeed{} }

func (f *fakeFeed) open(ctx context.Context, into *[]*fakeStream) notifier.Stream {
	s := &fakeStream{ch: make(chan notifier.Event, 16)}
	f.mu.Lock()
	*into = append(*into, s)
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		s.drop()
	}()
	return s
}

func (f *fakeFeed) SubscribeTokenState(ctx context.Context, _ string) (notifier.Stream, error) {
	return f.open(ctx, &f.tokens), nil
}

func (f *fakeFeed) SubscribeSessions(ctx context.Context, _ string) (notifier.Stream, error) {
	return f.open(ctx, &f.sessions), nil
}

func (f *fakeFeed) tokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

func (f *fakeFeed) token(t *testing.T, i int) *fakeStream {
	t.Helper()
	waitFor(t, "token subscription", func() bool { return f.tokenCount() > i })
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[i]
}
