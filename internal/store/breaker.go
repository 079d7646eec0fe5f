// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/nowserving/internal/logging"
	"github.com/tomtom215/nowserving/internal/metrics"
	"github.com/tomtom215/nowserving/internal/models"
)

// BreakerConfig configures the store circuit breaker.
type BreakerConfig struct {
	Name string

	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold uint32

	// Timeout is how long the circuit stays open before a trial request.
	Timeout time.Duration
}

// Breaker wraps a Store with a circuit breaker. While the circuit is open
// every call fails fast with ErrUnavailable.
//
// The breaker uses real time (via sony/gobreaker) for its timeout.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// NewBreaker wraps next.
func NewBreaker(next Store, cfg BreakerConfig) *Breaker {
	name := cfg.Name
	if name == "" {
		name = "store"
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 5
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= cfg.Threshold
			if trip {
				logging.Warn().
					Str("breaker", name).
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return trip
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrConflict) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Breaker{next: next, cb: cb, name: name}
}

// State returns the current breaker state name.
func (b *Breaker) State() string {
	return stateToString(b.cb.State())
}

func (b *Breaker) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}
	return result, err
}

// castResult type-asserts a breaker result. A nil interface yields the zero value.
func castResult[T any](result any, err error) (T, error) {
	var zero T
	if err != nil || result == nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CreateClinic implements Directory.
func (b *Breaker) CreateClinic(ctx context.Context, slug, name string) (*models.Clinic, error) {
	return castResult[*models.Clinic](b.execute(func() (any, error) {
		return b.next.CreateClinic(ctx, slug, name)
	}))
}

// ResolveClinic implements Directory.
func (b *Breaker) ResolveClinic(ctx context.Context, slug string) (*models.Clinic, error) {
	return castResult[*models.Clinic](b.execute(func() (any, error) {
		return b.next.ResolveClinic(ctx, slug)
	}))
}

// GetClinic implements Directory.
func (b *Breaker) GetClinic(ctx context.Context, id string) (*models.Clinic, error) {
	return castResult[*models.Clinic](b.execute(func() (any, error) {
		return b.next.GetClinic(ctx, id)
	}))
}

// ListSessions implements Directory.
func (b *Breaker) ListSessions(ctx context.Context, clinicID string) ([]*models.Session, error) {
	return castResult[[]*models.Session](b.execute(func() (any, error) {
		return b.next.ListSessions(ctx, clinicID)
	}))
}

// GetSession implements Directory.
func (b *Breaker) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return castResult[*models.Session](b.execute(func() (any, error) {
		return b.next.GetSession(ctx, id)
	}))
}

// GetActiveSession implements Directory.
func (b *Breaker) GetActiveSession(ctx context.Context, clinicID string) (*models.Session, error) {
	return castResult[*models.Session](b.execute(func() (any, error) {
		return b.next.GetActiveSession(ctx, clinicID)
	}))
}

// CreateSession implements Directory.
func (b *Breaker) CreateSession(ctx context.Context, clinicID, name string) (*models.Session, error) {
	return castResult[*models.Session](b.execute(func() (any, error) {
		return b.next.CreateSession(ctx, clinicID, name)
	}))
}

// ActivateSession implements Directory.
func (b *Breaker) ActivateSession(ctx context.Context, clinicID, sessionID string, reset *models.TokenState) ([]*models.Session, error) {
	return castResult[[]*models.Session](b.execute(func() (any, error) {
		return b.next.ActivateSession(ctx, clinicID, sessionID, reset)
	}))
}

// DeactivateSession implements Directory.
func (b *Breaker) DeactivateSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return castResult[*models.Session](b.execute(func() (any, error) {
		return b.next.DeactivateSession(ctx, sessionID)
	}))
}

// ReadTokenState implements TokenStore.
func (b *Breaker) ReadTokenState(ctx context.Context, clinicID, sessionID string) (*models.TokenState, error) {
	return castResult[*models.TokenState](b.execute(func() (any, error) {
		return b.next.ReadTokenState(ctx, clinicID, sessionID)
	}))
}

// ReplaceTokenState implements TokenStore.
func (b *Breaker) ReplaceTokenState(ctx context.Context, state *models.TokenState) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.ReplaceTokenState(ctx, state)
	})
	return err
}

// DeleteTokenState implements TokenStore.
func (b *Breaker) DeleteTokenState(ctx context.Context, sessionID string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.DeleteTokenState(ctx, sessionID)
	})
	return err
}

// Ping implements Store.
func (b *Breaker) Ping(ctx context.Context) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.Ping(ctx)
	})
	return err
}

// Close closes the wrapped store. It bypasses the breaker.
func (b *Breaker) Close() error {
	return b.next.Close()
}
