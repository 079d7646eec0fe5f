// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package queue

import (
	"errors"
	"fmt"

	"github.com/tomtom215/nowserving/internal/store"
)

var (
	// ErrNotFound is returned for an unknown clinic or session, or a session
	// addressed under a clinic it does not belong to.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when a mutation would break a token state
	// invariant. The stored state is unchanged.
	ErrValidation = errors.New("validation error")

	// ErrPersistence is returned when the store fails. The stored state is
	// unchanged.
	ErrPersistence = errors.New("persistence error")

	// ErrConflict is returned when a clinic slug is already taken.
	ErrConflict = errors.New("conflict")

	// ErrConfirmationRequired is returned by EndSession without confirmation.
	ErrConfirmationRequired = errors.New("confirmation required")
)

// storeError maps a store error onto the queue taxonomy.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	default:
		return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
	}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// result is the metrics label for err.
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrConfirmationRequired):
		return "confirmation_required"
	default:
		return "persistence"
	}
}
