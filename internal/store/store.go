// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package store

import (
	"context"
	"errors"

	"github.com/tomtom215/nowserving/internal/models"
)

var (
	// ErrNotFound is returned when a clinic, session or token state row does
	// not exist, or exists under a different clinic.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a clinic slug is already taken.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("store unavailable")
)

// Directory resolves clinics and tracks which session of a clinic is active.
type Directory interface {
	CreateClinic(ctx context.Context, slug, name string) (*models.Clinic, error)
	ResolveClinic(ctx context.Context, slug string) (*models.Clinic, error)
	GetClinic(ctx context.Context, id string) (*models.Clinic, error)

	// ListSessions returns the sessions of a clinic ordered by name.
	ListSessions(ctx context.Context, clinicID string) ([]*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)

	// GetActiveSession returns nil, nil when no session of the clinic is active.
	GetActiveSession(ctx context.Context, clinicID string) (*models.Session, error)

	// CreateSession creates an inactive session.
	CreateSession(ctx context.Context, clinicID, name string) (*models.Session, error)

	// ActivateSession atomically deactivates every session of the clinic,
	// activates sessionID and replaces its token state with reset. It returns
	// the sessions whose is_active flag changed, the activated one last.
	ActivateSession(ctx context.Context, clinicID, sessionID string, reset *models.TokenState) ([]*models.Session, error)

	// DeactivateSession clears is_active. The token state row is kept.
	DeactivateSession(ctx context.Context, sessionID string) (*models.Session, error)
}

// TokenStore holds one TokenState row per session.
type TokenStore interface {
	// ReadTokenState returns ErrNotFound when the row is missing or belongs
	// to another clinic.
	ReadTokenState(ctx context.Context, clinicID, sessionID string) (*models.TokenState, error)

	// ReplaceTokenState overwrites the whole row. It never merges.
	ReplaceTokenState(ctx context.Context, state *models.TokenState) error

	DeleteTokenState(ctx context.Context, sessionID string) error
}

// Store is the full persistence surface used by the server.
type Store interface {
	Directory
	TokenStore

	Ping(ctx context.Context) error
	Close() error
}
