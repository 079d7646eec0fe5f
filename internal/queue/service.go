// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package queue

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/nowserving/internal/logging"
	"github.com/tomtom215/nowserving/internal/metrics"
	"github.com/tomtom215/nowserving/internal/models"
	"github.com/tomtom215/nowserving/internal/store"
	"github.com/tomtom215/nowserving/internal/validation"
)

// MaxSessionNameLength bounds session names.
const MaxSessionNameLength = 64

// Notifier receives every committed row change.
type Notifier interface {
	PublishTokenState(ctx context.Context, ts *models.TokenState) error
	PublishSession(ctx context.Context, s *models.Session) error
}

// Service is the only writer of session activation and token state.
// Every mutation commits to the store first and is then handed to the
// Notifier; a failed broadcast is logged and does not fail the call.
type Service struct {
	store    store.Store
	notifier Notifier

	// Serialises read-modify-write per session within this process.
	// Writers in other processes still race with last-write-wins.
	locks sync.Map // session id -> *sync.Mutex
}

// NewService creates a Service.
func NewService(st store.Store, n Notifier) *Service {
	return &Service{store: st, notifier: n}
}

func (s *Service) lock(sessionID string) func() {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// StartSession deactivates every session of the clinic, activates sessionID
// and resets its token state to (1, {}). Calling it again on the active
// session resets it again.
func (s *Service) StartSession(ctx context.Context, clinicID, sessionID string) (ts *models.TokenState, err error) {
	defer func() { metrics.RecordMutation("start_session", result(err)) }()

	unlock := s.lock(sessionID)
	defer unlock()

	reset := models.NewTokenState(clinicID, sessionID, time.Now().UTC())
	changed, err := s.store.ActivateSession(ctx, clinicID, sessionID, reset)
	if err != nil {
		return nil, storeError("activate session", err)
	}

	for _, sess := range changed {
		s.publishSession(ctx, sess)
	}
	s.publishTokenState(ctx, reset)

	logging.Ctx(ctx).Info().
		Str("component", "queue").
		Str("clinic_id", clinicID).
		Str("session_id", sessionID).
		Int("deactivated", len(changed)-1).
		Msg("Session started")
	return reset.Clone(), nil
}

// EndSession marks the session inactive. The token state row is kept.
// confirm must be true; the caller is expected to have asked the operator.
func (s *Service) EndSession(ctx context.Context, clinicID, sessionID string, confirm bool) (sess *models.Session, err error) {
	defer func() { metrics.RecordMutation("end_session", result(err)) }()

	if !confirm {
		return nil, ErrConfirmationRequired
	}
	if _, err := s.Session(ctx, clinicID, sessionID); err != nil {
		return nil, err
	}

	sess, err = s.store.DeactivateSession(ctx, sessionID)
	if err != nil {
		return nil, storeError("deactivate session", err)
	}
	s.publishSession(ctx, sess)

	logging.Ctx(ctx).Info().
		Str("component", "queue").
		Str("clinic_id", clinicID).
		Str("session_id", sessionID).
		Msg("Session ended")
	return sess, nil
}

// AddSession creates an inactive session in the clinic.
func (s *Service) AddSession(ctx context.Context, clinicID, name string) (sess *models.Session, err error) {
	defer func() { metrics.RecordMutation("add_session", result(err)) }()

	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return nil, validationError("session name is required")
	case len(name) > MaxSessionNameLength:
		return nil, validationError("session name exceeds %d characters", MaxSessionNameLength)
	}

	if _, err := s.store.GetClinic(ctx, clinicID); err != nil {
		return nil, storeError("get clinic", err)
	}
	sess, err = s.store.CreateSession(ctx, clinicID, name)
	if err != nil {
		return nil, storeError("create session", err)
	}
	s.publishSession(ctx, sess)
	return sess, nil
}

// Advance replaces the token state with newCurrent and newNoShows. A nil
// newNoShows keeps the stored set.
//
// newCurrent must be at least 1. Every no-show not already in the stored set
// must be non-negative and below newCurrent.
func (s *Service) Advance(ctx context.Context, clinicID, sessionID string, newCurrent int, newNoShows []int) (*models.TokenState, error) {
	return s.advance(ctx, "advance", clinicID, sessionID, func(*models.TokenState) (int, []int, error) {
		return newCurrent, newNoShows, nil
	})
}

// NextPatient moves to the next token.
func (s *Service) NextPatient(ctx context.Context, clinicID, sessionID string) (*models.TokenState, error) {
	return s.advance(ctx, "next_patient", clinicID, sessionID, func(prev *models.TokenState) (int, []int, error) {
		return prev.CurrentToken + 1, nil, nil
	})
}

// MarkNoShow records the current token as a no-show and moves to the next.
func (s *Service) MarkNoShow(ctx context.Context, clinicID, sessionID string) (*models.TokenState, error) {
	return s.advance(ctx, "mark_no_show", clinicID, sessionID, func(prev *models.TokenState) (int, []int, error) {
		return prev.CurrentToken + 1, models.WithNoShow(prev.NoShows, prev.CurrentToken), nil
	})
}

// ManualSet jumps to the token in raw. A value that is not an integer is
// rejected with ErrValidation. No-shows are never touched.
func (s *Service) ManualSet(ctx context.Context, clinicID, sessionID, raw string) (*models.TokenState, error) {
	return s.advance(ctx, "manual_set", clinicID, sessionID, func(*models.TokenState) (int, []int, error) {
		value, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return 0, nil, validationError("%q is not a token number", raw)
		}
		return value, nil, nil
	})
}

// RequeueNoShow removes token from the no-show set. The current token never
// changes, and requeueing a token that is not a no-show is a no-op write.
func (s *Service) RequeueNoShow(ctx context.Context, clinicID, sessionID string, token int) (*models.TokenState, error) {
	return s.advance(ctx, "requeue_no_show", clinicID, sessionID, func(prev *models.TokenState) (int, []int, error) {
		return prev.CurrentToken, models.WithoutNoShow(prev.NoShows, token), nil
	})
}

func (s *Service) advance(
	ctx context.Context,
	op, clinicID, sessionID string,
	next func(prev *models.TokenState) (int, []int, error),
) (ts *models.TokenState, err error) {
	defer func() { metrics.RecordMutation(op, result(err)) }()

	unlock := s.lock(sessionID)
	defer unlock()

	prev, err := s.store.ReadTokenState(ctx, clinicID, sessionID)
	if err != nil {
		return nil, storeError("read token state", err)
	}

	current, noShows, err := next(prev)
	if err != nil {
		return nil, err
	}
	noShows, err = checkAdvance(prev, current, noShows)
	if err != nil {
		return nil, err
	}

	updated := &models.TokenState{
		ClinicID:     clinicID,
		SessionID:    sessionID,
		CurrentToken: current,
		NoShows:      noShows,
		LastUpdated:  time.Now().UTC(),
	}
	if err := s.store.ReplaceTokenState(ctx, updated); err != nil {
		return nil, storeError("replace token state", err)
	}
	s.publishTokenState(ctx, updated)

	logging.Ctx(ctx).Debug().
		Str("component", "queue").
		Str("op", op).
		Str("session_id", sessionID).
		Int("current_token", current).
		Ints("no_shows", noShows).
		Msg("Token state replaced")
	return updated.Clone(), nil
}

// checkAdvance validates a replacement and returns the no-show set to store.
func checkAdvance(prev *models.TokenState, current int, noShows []int) ([]int, error) {
	if current < models.InitialToken {
		return nil, validationError("current token must be at least %d, got %d", models.InitialToken, current)
	}
	if current > models.MaxToken {
		return nil, validationError("current token must be at most %d, got %d", models.MaxToken, current)
	}
	if noShows == nil {
		return models.NormalizeNoShows(prev.NoShows), nil
	}

	next := models.NormalizeNoShows(noShows)
	for _, t := range next {
		if t < 0 {
			return nil, validationError("no-show %d is negative", t)
		}
		if t > models.MaxToken {
			return nil, validationError("no-show %d exceeds %d", t, models.MaxToken)
		}
		if !prev.HasNoShow(t) && t >= current {
			return nil, validationError("no-show %d must be below current token %d", t, current)
		}
	}
	return next, nil
}

// CreateClinic registers a clinic under a unique slug.
func (s *Service) CreateClinic(ctx context.Context, slug, name string) (c *models.Clinic, err error) {
	defer func() { metrics.RecordMutation("create_clinic", result(err)) }()

	if !validation.IsSlug(slug) {
		return nil, validationError("invalid clinic slug %q", slug)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("clinic name is required")
	}

	c, err = s.store.CreateClinic(ctx, slug, name)
	if err != nil {
		return nil, storeError("create clinic", err)
	}
	logging.Ctx(ctx).Info().Str("component", "queue").Str("slug", slug).Msg("Clinic created")
	return c, nil
}

// ResolveClinic looks a clinic up by slug.
func (s *Service) ResolveClinic(ctx context.Context, slug string) (*models.Clinic, error) {
	c, err := s.store.ResolveClinic(ctx, slug)
	return c, storeError("resolve clinic", err)
}

// ListSessions returns the clinic's sessions ordered by name.
func (s *Service) ListSessions(ctx context.Context, clinicID string) ([]*models.Session, error) {
	sessions, err := s.store.ListSessions(ctx, clinicID)
	return sessions, storeError("list sessions", err)
}

// Session returns the session, or ErrNotFound when it belongs to another clinic.
func (s *Service) Session(ctx context.Context, clinicID, sessionID string) (*models.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storeError("get session", err)
	}
	if sess.ClinicID != clinicID {
		return nil, storeError("get session", store.ErrNotFound)
	}
	return sess, nil
}

// ActiveSession returns the clinic's active session and its token state.
// Both are nil when no session is active.
func (s *Service) ActiveSession(ctx context.Context, clinicID string) (*models.Session, *models.TokenState, error) {
	sess, err := s.store.GetActiveSession(ctx, clinicID)
	if err != nil {
		return nil, nil, storeError("get active session", err)
	}
	if sess == nil {
		return nil, nil, nil
	}
	ts, err := s.store.ReadTokenState(ctx, clinicID, sess.ID)
	if errors.Is(err, store.ErrNotFound) {
		return sess, nil, nil
	}
	if err != nil {
		return nil, nil, storeError("read token state", err)
	}
	return sess, ts, nil
}

// TokenState is a point read of the session's token state.
func (s *Service) TokenState(ctx context.Context, clinicID, sessionID string) (*models.TokenState, error) {
	ts, err := s.store.ReadTokenState(ctx, clinicID, sessionID)
	return ts, storeError("read token state", err)
}

func (s *Service) publishTokenState(ctx context.Context, ts *models.TokenState) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishTokenState(context.WithoutCancel(ctx), ts); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("component", "queue").
			Str("session_id", ts.SessionID).
			Msg("Token state committed but not broadcast")
	}
}

func (s *Service) publishSession(ctx context.Context, sess *models.Session) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishSession(context.WithoutCancel(ctx), sess); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("component", "queue").
			Str("session_id", sess.ID).
			Msg("Session change committed but not broadcast")
	}
}
