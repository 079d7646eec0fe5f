// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/nowserving/internal/logging"
	"github.com/tomtom215/nowserving/internal/models"
)

// Seed ensures the clinic with the given slug exists and owns a session for
// every name in sessions. Existing clinics and sessions are left untouched,
// so Seed can run on every start.
func Seed(ctx context.Context, d Directory, slug, name string, sessions []string) (*models.Clinic, error) {
	clinic, err := d.ResolveClinic(ctx, slug)
	if errors.Is(err, ErrNotFound) {
		clinic, err = d.CreateClinic(ctx, slug, name)
		if errors.Is(err, ErrConflict) {
			// Another instance created it first.
			clinic, err = d.ResolveClinic(ctx, slug)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("seed clinic %q: %w", slug, err)
	}

	existing, err := d.ListSessions(ctx, clinic.ID)
	if err != nil {
		return nil, fmt.Errorf("seed sessions: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, s := range existing {
		have[s.Name] = true
	}

	created := 0
	for _, sessionName := range sessions {
		if have[sessionName] {
			continue
		}
		if _, err := d.CreateSession(ctx, clinic.ID, sessionName); err != nil {
			return nil, fmt.Errorf("seed session %q: %w", sessionName, err)
		}
		have[sessionName] = true
		created++
	}

	logging.Info().
		Str("clinic", clinic.Slug).
		Int("sessions_created", created).
		Msg("Demo clinic seeded")
	return clinic, nil
}
