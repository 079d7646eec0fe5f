// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package viewer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/nowserving/internal/logging"
	"github.com/tomtom215/nowserving/internal/metrics"
	"github.com/tomtom215/nowserving/internal/models"
	"github.com/tomtom215/nowserving/internal/notifier"
	"github.com/tomtom215/nowserving/internal/queue"
)

// ErrNoSession is returned by QueueState.Advance when either identifier is empty.
var ErrNoSession = errors.New("no session selected")

// Feed opens change subscriptions. *notifier.Broker implements it.
type Feed interface {
	SubscribeTokenState(ctx context.Context, sessionID string) (notifier.Stream, error)
	SubscribeSessions(ctx context.Context, clinicID string) (notifier.Stream, error)
}

// Backend reads the directory and token state and performs writes.
// *queue.Service implements it.
type Backend interface {
	ResolveClinic(ctx context.Context, slug string) (*models.Clinic, error)
	ListSessions(ctx context.Context, clinicID string) ([]*models.Session, error)
	ActiveSession(ctx context.Context, clinicID string) (*models.Session, *models.TokenState, error)
	TokenState(ctx context.Context, clinicID, sessionID string) (*models.TokenState, error)
	Advance(ctx context.Context, clinicID, sessionID string, newCurrent int, newNoShows []int) (*models.TokenState, error)
}

// Deps are shared by every viewer of a process.
type Deps struct {
	Backend Backend
	Feed    Feed
	Backoff Backoff
}

// Snapshot is the local view of one session's token state.
type Snapshot struct {
	ClinicID     string    `json:"clinic_id"`
	SessionID    string    `json:"session_id"`
	CurrentToken int       `json:"current_token"`
	NoShows      []int     `json:"no_shows"`
	LastUpdated  time.Time `json:"last_updated"`

	// Loading is true from subscription start until the first seed read
	// completes.
	Loading bool `json:"loading"`

	// Stale is true while the subscription is being re-established.
	Stale bool `json:"stale"`
}

func (s Snapshot) clone() Snapshot {
	s.NoShows = models.NormalizeNoShows(s.NoShows)
	return s
}

// QueueState keeps a local copy of one session's token state current.
//
// It subscribes first and then seeds with a point read, so no commit can
// fall between the two. Every event then overwrites the view. Whenever the
// subscription is lost or the transport reports a gap, it is re-opened and
// followed by a fresh point read.
type QueueState struct {
	clinicID  string
	sessionID string
	deps      Deps
	onChange  func(Snapshot)
	logger    zerolog.Logger

	mu     sync.RWMutex
	snap   Snapshot
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewQueueState starts following (clinicID, sessionID). onChange, if set, is
// called from a single goroutine after every view change and never after
// Close returns. When either identifier is empty nothing is followed and the
// snapshot stays at (1, []) without loading.
func NewQueueState(ctx context.Context, clinicID, sessionID string, deps Deps, onChange func(Snapshot)) *QueueState {
	q := &QueueState{
		clinicID:  clinicID,
		sessionID: sessionID,
		deps:      deps,
		onChange:  onChange,
		logger: logging.WithComponent("viewer").With().
			Str("clinic_id", clinicID).
			Str("session_id", sessionID).
			Logger(),
		snap: Snapshot{
			ClinicID:     clinicID,
			SessionID:    sessionID,
			CurrentToken: models.InitialToken,
			NoShows:      []int{},
			Loading:      clinicID != "" && sessionID != "",
		},
		done: make(chan struct{}),
	}

	if !q.snap.Loading {
		q.cancel = func() {}
		close(q.done)
		return q
	}

	ctx, q.cancel = context.WithCancel(ctx)
	go q.run(ctx)
	return q
}

// SessionID returns the followed session.
func (q *QueueState) SessionID() string {
	return q.sessionID
}

// Snapshot returns the current view.
func (q *QueueState) Snapshot() Snapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.snap.clone()
}

// Advance writes through the Backend. The view follows via the
// subscription, not from the return value.
func (q *QueueState) Advance(ctx context.Context, newCurrent int, newNoShows []int) (*models.TokenState, error) {
	if q.clinicID == "" || q.sessionID == "" {
		return nil, ErrNoSession
	}
	return q.deps.Backend.Advance(ctx, q.clinicID, q.sessionID, newCurrent, newNoShows)
}

// Close releases the subscription. No view change happens after it returns.
func (q *QueueState) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	<-q.done
}

func (q *QueueState) run(ctx context.Context) {
	defer close(q.done)

	for attempt := 0; ctx.Err() == nil; {
		stream, err := q.deps.Feed.SubscribeTokenState(ctx, q.sessionID)
		if err != nil {
			q.logger.Warn().Err(err).Int("attempt", attempt).Msg("Token state subscription failed")
			q.markStale()
			if !q.deps.Backoff.wait(ctx, attempt) {
				return
			}
			attempt++
			continue
		}

		if q.follow(ctx, stream) {
			attempt = 0
		}
		stream.Close()
		if ctx.Err() != nil {
			return
		}

		q.markStale()
		if !q.deps.Backoff.wait(ctx, attempt) {
			return
		}
		attempt++
	}
}

// follow seeds the view and applies events until the stream ends. It
// reports whether the seed read succeeded.
func (q *QueueState) follow(ctx context.Context, stream notifier.Stream) bool {
	if !q.seed(ctx) {
		return false
	}

	for ev := range stream.Events() {
		switch ev.Kind {
		case notifier.KindTokenState:
			if ev.TokenState.ClinicID != q.clinicID {
				continue
			}
			q.apply(ev.TokenState)
		case notifier.KindResync:
			metrics.RecordResync("reconnect")
			q.markStale()
			if !q.seed(ctx) {
				return true
			}
		}
	}

	if ctx.Err() == nil {
		metrics.RecordResync("dropped")
		q.logger.Info().Msg("Token state subscription dropped, resubscribing")
	}
	return true
}

func (q *QueueState) seed(ctx context.Context) bool {
	ts, err := q.deps.Backend.TokenState(ctx, q.clinicID, q.sessionID)
	switch {
	case err == nil:
		q.apply(ts)
		return true
	case errors.Is(err, queue.ErrNotFound):
		// Never started: show the reset state until StartSession publishes.
		q.update(func(s *Snapshot) {
			s.CurrentToken = models.InitialToken
			s.NoShows = []int{}
			s.Loading = false
			s.Stale = false
		})
		return true
	default:
		if ctx.Err() == nil {
			q.logger.Warn().Err(err).Msg("Seed read failed")
		}
		return false
	}
}

func (q *QueueState) apply(ts *models.TokenState) {
	q.update(func(s *Snapshot) {
		s.CurrentToken = ts.CurrentToken
		s.NoShows = models.NormalizeNoShows(ts.NoShows)
		s.LastUpdated = ts.LastUpdated
		s.Loading = false
		s.Stale = false
	})
}

func (q *QueueState) markStale() {
	q.mu.RLock()
	already := q.snap.Stale
	q.mu.RUnlock()
	if already {
		return
	}
	q.update(func(s *Snapshot) { s.Stale = true })
}

// update applies fn to the view and notifies. Both fields of the view
// change together under the lock.
func (q *QueueState) update(fn func(*Snapshot)) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	fn(&q.snap)
	snap := q.snap.clone()
	q.mu.Unlock()

	if q.onChange != nil {
		q.onChange(snap)
	}
}
