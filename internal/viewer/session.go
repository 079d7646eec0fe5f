// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/nowserving/internal/logging"
	"github.com/tomtom215/nowserving/internal/metrics"
	"github.com/tomtom215/nowserving/internal/models"
	"github.com/tomtom215/nowserving/internal/notifier"
	"github.com/tomtom215/nowserving/internal/queue"
)

// Role selects what a viewer loads and shows.
type Role string

const (
	// RoleAdmin also loads the clinic's session list.
	RoleAdmin Role = "admin"

	// RoleCustomer only follows the active session.
	RoleCustomer Role = "customer"
)

// ParseRole accepts "admin" or "customer"; empty means customer.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleCustomer, "":
		return RoleCustomer, nil
	default:
		return "", fmt.Errorf("unknown viewer role %q", s)
	}
}

// State is the lifecycle state of a Session.
type State string

const (
	StateUninitialized    State = "uninitialized"
	StateResolvingClinic  State = "resolving_clinic"
	StateResolvingSession State = "resolving_session"
	StateNoActiveSession  State = "no_active_session"
	StateSubscribed       State = "subscribed"
	StateTornDown         State = "torn_down"
)

var (
	errAlreadyMounted = errors.New("viewer already mounted")
	errEmptySlug      = errors.New("clinic slug is required")
)

// View is everything a display needs to render.
type View struct {
	State    State             `json:"state"`
	Role     Role              `json:"role"`
	Clinic   *models.Clinic    `json:"clinic,omitempty"`
	Sessions []*models.Session `json:"sessions,omitempty"`
	Active   *models.Session   `json:"active_session,omitempty"`
	Queue    *Snapshot         `json:"queue,omitempty"`
	Stale    bool              `json:"stale"`
}

// Session is one admin or customer screen bound to a clinic slug.
//
// Transitions:
//
//	Uninitialized -> ResolvingClinic            Mount
//	ResolvingClinic -> ResolvingSession         clinic resolved
//	ResolvingSession -> NoActiveSession         no session active
//	ResolvingSession -> Subscribed              active session found
//	Subscribed <-> NoActiveSession              session change events
//	any -> TornDown                             Close
//
// The clinic's session channel is subscribed before the active session is
// looked up, and every session event or reconnect looks it up again.
type Session struct {
	role     Role
	deps     Deps
	onChange func(View)
	logger   zerolog.Logger

	// emitMu orders onChange calls coming from the session and queue goroutines.
	emitMu sync.Mutex

	mu        sync.Mutex
	state     State
	clinic    *models.Clinic
	sessions  []*models.Session
	active    *models.Session
	queue     *QueueState
	queueSnap *Snapshot
	stale     bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession returns an Uninitialized viewer. onChange is called after every
// view change and never after Close returns; it must not call Close.
func NewSession(role Role, deps Deps, onChange func(View)) *Session {
	return &Session{
		role:     role,
		deps:     deps,
		onChange: onChange,
		logger:   logging.WithComponent("viewer").With().Str("role", string(role)).Logger(),
		state:    StateUninitialized,
	}
}

// Mount binds the viewer to a clinic slug and starts resolving it.
func (s *Session) Mount(ctx context.Context, slug string) error {
	if slug == "" {
		return errEmptySlug
	}

	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return errAlreadyMounted
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.state = StateResolvingClinic
	s.mu.Unlock()

	s.logger = s.logger.With().Str("slug", slug).Logger()
	s.emit()

	go s.run(ctx, slug)
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns the current view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Close tears the viewer down. Subscriptions are released before it returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return
	}
	s.state = StateTornDown
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	// Wait out an emission that passed its state check before teardown.
	s.emitMu.Lock()
	s.emitMu.Unlock() //nolint:staticcheck // barrier
}

func (s *Session) run(ctx context.Context, slug string) {
	defer close(s.done)
	defer s.releaseQueue()

	clinic := s.resolveClinic(ctx, slug)
	if clinic == nil {
		return
	}

	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return
	}
	s.clinic = clinic
	s.state = StateResolvingSession
	s.stale = false
	s.mu.Unlock()
	s.emit()

	for attempt := 0; ctx.Err() == nil; {
		stream, err := s.deps.Feed.SubscribeSessions(ctx, clinic.ID)
		if err != nil {
			s.logger.Warn().Err(err).Int("attempt", attempt).Msg("Session subscription failed")
			s.markStale()
			if !s.deps.Backoff.wait(ctx, attempt) {
				return
			}
			attempt++
			continue
		}

		if s.follow(ctx, clinic, stream) {
			attempt = 0
		}
		stream.Close()
		if ctx.Err() != nil {
			return
		}

		s.markStale()
		if !s.deps.Backoff.wait(ctx, attempt) {
			return
		}
		attempt++
	}
}

// follow resolves the active session and re-resolves on every event until
// the stream ends or a lookup fails. It reports whether the first lookup
// succeeded.
func (s *Session) follow(ctx context.Context, clinic *models.Clinic, stream notifier.Stream) bool {
	if err := s.resolveSession(ctx, clinic); err != nil {
		if ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("Active session lookup failed")
		}
		return false
	}

	for ev := range stream.Events() {
		if ev.Kind == notifier.KindResync {
			metrics.RecordResync("reconnect")
		}
		if err := s.resolveSession(ctx, clinic); err != nil {
			if ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("Active session lookup failed")
			}
			return true
		}
	}

	if ctx.Err() == nil {
		metrics.RecordResync("dropped")
		s.logger.Info().Msg("Session subscription dropped, resubscribing")
	}
	return true
}

func (s *Session) resolveClinic(ctx context.Context, slug string) *models.Clinic {
	for attempt := 0; ; attempt++ {
		clinic, err := s.deps.Backend.ResolveClinic(ctx, slug)
		if err == nil {
			return clinic
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, queue.ErrNotFound) {
			// Rendered like loading; the clinic may be created later.
			s.logger.Debug().Msg("Clinic not found")
		} else {
			s.logger.Warn().Err(err).Msg("Clinic lookup failed")
			s.markStale()
		}
		if !s.deps.Backoff.wait(ctx, attempt) {
			return nil
		}
	}
}

// resolveSession looks the active session up and moves to Subscribed or
// NoActiveSession. A QueueState for a session that is no longer active is
// closed before another is opened.
func (s *Session) resolveSession(ctx context.Context, clinic *models.Clinic) error {
	var sessions []*models.Session
	if s.role == RoleAdmin {
		var err error
		if sessions, err = s.deps.Backend.ListSessions(ctx, clinic.ID); err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
	}
	active, _, err := s.deps.Backend.ActiveSession(ctx, clinic.ID)
	if err != nil {
		return fmt.Errorf("active session: %w", err)
	}

	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return nil
	}
	s.sessions = sessions
	s.stale = false
	release := s.queue
	keep := active != nil && release != nil && release.SessionID() == active.ID
	if keep {
		release = nil
	} else {
		s.queue = nil
		s.queueSnap = nil
	}
	s.active = active
	if active == nil {
		s.state = StateNoActiveSession
	} else {
		s.state = StateSubscribed
	}
	s.mu.Unlock()

	if release != nil {
		release.Close()
	}

	if active != nil && !keep {
		activeID := active.ID
		q := NewQueueState(ctx, clinic.ID, activeID, s.deps, func(snap Snapshot) {
			s.onQueueChange(activeID, snap)
		})

		s.mu.Lock()
		if s.state == StateTornDown || s.active == nil || s.active.ID != activeID {
			s.mu.Unlock()
			q.Close()
			return nil
		}
		s.queue = q
		if s.queueSnap == nil {
			snap := q.Snapshot()
			s.queueSnap = &snap
		}
		s.mu.Unlock()

		s.logger.Info().Str("session_id", activeID).Msg("Following active session")
	}

	s.emit()
	return nil
}

func (s *Session) onQueueChange(sessionID string, snap Snapshot) {
	s.mu.Lock()
	if s.state == StateTornDown || s.active == nil || s.active.ID != sessionID {
		s.mu.Unlock()
		return
	}
	s.queueSnap = &snap
	s.mu.Unlock()
	s.emit()
}

func (s *Session) releaseQueue() {
	s.mu.Lock()
	q := s.queue
	s.queue = nil
	s.mu.Unlock()
	if q != nil {
		q.Close()
	}
}

func (s *Session) markStale() {
	s.mu.Lock()
	if s.stale || s.state == StateTornDown {
		s.mu.Unlock()
		return
	}
	s.stale = true
	s.mu.Unlock()
	s.emit()
}

func (s *Session) emit() {
	if s.onChange == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return
	}
	v := s.viewLocked()
	s.mu.Unlock()

	s.onChange(v)
}

func (s *Session) viewLocked() View {
	v := View{
		State:  s.state,
		Role:   s.role,
		Clinic: s.clinic,
		Active: s.active.Clone(),
		Stale:  s.stale,
	}
	if s.role == RoleAdmin && s.sessions != nil {
		v.Sessions = make([]*models.Session, len(s.sessions))
		for i, sess := range s.sessions {
			v.Sessions[i] = sess.Clone()
		}
	}
	if s.queueSnap != nil && s.state == StateSubscribed {
		snap := s.queueSnap.clone()
		v.Queue = &snap
		v.Stale = v.Stale || snap.Stale
	}
	return v
}
