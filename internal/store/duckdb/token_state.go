// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/nowserving/internal/models"
	"github.com/tomtom215/nowserving/internal/store"
)

const upsertTokenState = `
INSERT INTO token_state (session_id, clinic_id, current_token, no_shows, last_updated)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (session_id) DO UPDATE SET
	clinic_id = excluded.clinic_id,
	current_token = excluded.current_token,
	no_shows = excluded.no_shows,
	last_updated = excluded.last_updated`

func encodeNoShows(tokens []int) (string, error) {
	data, err := json.Marshal(models.NormalizeNoShows(tokens))
	if err != nil {
		return "", fmt.Errorf("encode no_shows: %w", err)
	}
	return string(data), nil
}

func decodeNoShows(raw string) ([]int, error) {
	var tokens []int
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return nil, fmt.Errorf("decode no_shows: %w", err)
	}
	return models.NormalizeNoShows(tokens), nil
}

// ReadTokenState implements store.TokenStore.
func (s *Store) ReadTokenState(ctx context.Context, clinicID, sessionID string) (ts *models.TokenState, err error) {
	start := time.Now()
	defer func() { observe("read", "token_state", start, err) }()

	var raw string
	ts = &models.TokenState{}
	err = s.conn.QueryRowContext(ctx, `
		SELECT clinic_id, session_id, current_token, no_shows, last_updated
		FROM token_state WHERE session_id = ? AND clinic_id = ?`, sessionID, clinicID).
		Scan(&ts.ClinicID, &ts.SessionID, &ts.CurrentToken, &raw, &ts.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token state for session %s: %w", sessionID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read token state: %w", err)
	}
	if ts.NoShows, err = decodeNoShows(raw); err != nil {
		return nil, err
	}
	return ts, nil
}

// ReplaceTokenState implements store.TokenStore. The row is written only
// when the session belongs to state.ClinicID.
func (s *Store) ReplaceTokenState(ctx context.Context, state *models.TokenState) (err error) {
	start := time.Now()
	defer func() { observe("replace", "token_state", start, err) }()

	noShows, err := encodeNoShows(state.NoShows)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var owned bool
	if err := s.conn.QueryRowContext(ctx,
		`SELECT count(*) > 0 FROM sessions WHERE id = ? AND clinic_id = ?`,
		state.SessionID, state.ClinicID).Scan(&owned); err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if !owned {
		return fmt.Errorf("session %s: %w", state.SessionID, store.ErrNotFound)
	}

	if _, err := s.conn.ExecContext(ctx, upsertTokenState,
		state.SessionID, state.ClinicID, state.CurrentToken, noShows, state.LastUpdated.UTC()); err != nil {
		return fmt.Errorf("replace token state: %w", err)
	}
	return nil
}

// DeleteTokenState implements store.TokenStore.
func (s *Store) DeleteTokenState(ctx context.Context, sessionID string) (err error) {
	start := time.Now()
	defer func() { observe("delete", "token_state", start, err) }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.conn.ExecContext(ctx, `DELETE FROM token_state WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete token state: %w", err)
	}
	return nil
}
