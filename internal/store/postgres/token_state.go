// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tomtom215/nowserving/internal/models"
	"github.com/tomtom215/nowserving/internal/store"
)

func toInt32s(tokens []int) []int32 {
	norm := models.NormalizeNoShows(tokens)
	out := make([]int32, len(norm))
	for i, t := range norm {
		out[i] = int32(t) //nolint:gosec // bounded by models.MaxToken
	}
	return out
}

func fromInt32s(tokens []int32) []int {
	out := make([]int, len(tokens))
	for i, t := range tokens {
		out[i] = int(t)
	}
	return models.NormalizeNoShows(out)
}

// ReadTokenState implements store.TokenStore.
func (s *Store) ReadTokenState(ctx context.Context, clinicID, sessionID string) (ts *models.TokenState, err error) {
	start := time.Now()
	defer func() { observe("read", "token_state", start, err) }()

	query := `
		SELECT clinic_id, session_id, current_token, no_shows, last_updated
		FROM token_state
		WHERE session_id = $1 AND clinic_id = $2
	`
	var noShows []int32
	ts = &models.TokenState{}
	err = s.pool.QueryRow(ctx, query, sessionID, clinicID).
		Scan(&ts.ClinicID, &ts.SessionID, &ts.CurrentToken, &noShows, &ts.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("token state for session %s: %w", sessionID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read token state: %w", err)
	}
	ts.NoShows = fromInt32s(noShows)
	return ts, nil
}

// ReplaceTokenState implements store.TokenStore. Nothing is written unless
// the session belongs to state.ClinicID.
func (s *Store) ReplaceTokenState(ctx context.Context, state *models.TokenState) (err error) {
	start := time.Now()
	defer func() { observe("replace", "token_state", start, err) }()

	query := `
		INSERT INTO token_state (session_id, clinic_id, current_token, no_shows, last_updated)
		SELECT $1::text, $2::text, $3::integer, $4::integer[], $5::timestamptz
		WHERE EXISTS (SELECT 1 FROM sessions WHERE id = $1 AND clinic_id = $2)
		ON CONFLICT (session_id) DO UPDATE SET
			clinic_id = EXCLUDED.clinic_id,
			current_token = EXCLUDED.current_token,
			no_shows = EXCLUDED.no_shows,
			last_updated = EXCLUDED.last_updated
	`
	tag, err := s.pool.Exec(ctx, query,
		state.SessionID, state.ClinicID, state.CurrentToken, toInt32s(state.NoShows), state.LastUpdated)
	if err != nil {
		return fmt.Errorf("replace token state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", state.SessionID, store.ErrNotFound)
	}
	return nil
}

// DeleteTokenState implements store.TokenStore.
func (s *Store) DeleteTokenState(ctx context.Context, sessionID string) (err error) {
	start := time.Now()
	defer func() { observe("delete", "token_state", start, err) }()

	if _, err := s.pool.Exec(ctx, `DELETE FROM token_state WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete token state: %w", err)
	}
	return nil
}
