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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tomtom215/nowserving/internal/models"
	"github.com/tomtom215/nowserving/internal/store"
)

const sessionColumns = `id, clinic_id, name, is_active, created_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	if err := row.Scan(&s.ID, &s.ClinicID, &s.Name, &s.IsActive, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanClinic(row pgx.Row) (*models.Clinic, error) {
	var c models.Clinic
	if err := row.Scan(&c.ID, &c.Slug, &c.Name, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateClinic implements store.Directory.
func (s *Store) CreateClinic(ctx context.Context, slug, name string) (c *models.Clinic, err error) {
	start := time.Now()
	defer func() { observe("create", "clinics", start, err) }()

	query := `
		INSERT INTO clinics (id, slug, name)
		VALUES ($1, $2, $3)
		RETURNING id, slug, name, created_at
	`
	c, err = scanClinic(s.pool.QueryRow(ctx, query, uuid.NewString(), slug, name))
	if pgCode(err) == codeUniqueViolation {
		return nil, fmt.Errorf("clinic slug %q: %w", slug, store.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("create clinic: %w", err)
	}
	return c, nil
}

// ResolveClinic implements store.Directory.
func (s *Store) ResolveClinic(ctx context.Context, slug string) (c *models.Clinic, err error) {
	start := time.Now()
	defer func() { observe("resolve", "clinics", start, err) }()

	c, err = scanClinic(s.pool.QueryRow(ctx,
		`SELECT id, slug, name, created_at FROM clinics WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("clinic %q: %w", slug, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve clinic: %w", err)
	}
	return c, nil
}

// GetClinic implements store.Directory.
func (s *Store) GetClinic(ctx context.Context, id string) (c *models.Clinic, err error) {
	start := time.Now()
	defer func() { observe("get", "clinics", start, err) }()

	c, err = scanClinic(s.pool.QueryRow(ctx,
		`SELECT id, slug, name, created_at FROM clinics WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("clinic %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get clinic: %w", err)
	}
	return c, nil
}

// ListSessions implements store.Directory.
func (s *Store) ListSessions(ctx context.Context, clinicID string) (out []*models.Session, err error) {
	start := time.Now()
	defer func() { observe("list", "sessions", start, err) }()

	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE clinic_id = $1 ORDER BY name, id`, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out = make([]*models.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// GetSession implements store.Directory.
func (s *Store) GetSession(ctx context.Context, id string) (sess *models.Session, err error) {
	start := time.Now()
	defer func() { observe("get", "sessions", start, err) }()

	sess, err = scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// GetActiveSession implements store.Directory.
func (s *Store) GetActiveSession(ctx context.Context, clinicID string) (sess *models.Session, err error) {
	start := time.Now()
	defer func() { observe("active", "sessions", start, err) }()

	sess, err = scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE clinic_id = $1 AND is_active`, clinicID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return sess, nil
}

// CreateSession implements store.Directory.
func (s *Store) CreateSession(ctx context.Context, clinicID, name string) (sess *models.Session, err error) {
	start := time.Now()
	defer func() { observe("create", "sessions", start, err) }()

	query := `
		INSERT INTO sessions (id, clinic_id, name, is_active)
		VALUES ($1, $2, $3, false)
		RETURNING ` + sessionColumns
	sess, err = scanSession(s.pool.QueryRow(ctx, query, uuid.NewString(), clinicID, name))
	if pgCode(err) == codeForeignKeyViolation {
		return nil, fmt.Errorf("clinic %s: %w", clinicID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// ActivateSession implements store.Directory. Rows of the clinic are locked
// so concurrent activations of the same clinic serialize.
func (s *Store) ActivateSession(ctx context.Context, clinicID, sessionID string, reset *models.TokenState) (changed []*models.Session, err error) {
	start := time.Now()
	defer func() { observe("activate", "sessions", start, err) }()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE clinic_id = $1 ORDER BY name, id FOR UPDATE`, clinicID)
	if err != nil {
		return nil, fmt.Errorf("lock sessions: %w", err)
	}
	var target *models.Session
	for rows.Next() {
		sess, scanErr := scanSession(rows)
		if scanErr != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session: %w", scanErr)
		}
		switch {
		case sess.ID == sessionID:
			target = sess
		case sess.IsActive:
			sess.IsActive = false
			changed = append(changed, sess)
		}
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	if target == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
	}

	if _, err = tx.Exec(ctx,
		`UPDATE sessions SET is_active = false WHERE clinic_id = $1 AND is_active AND id <> $2`,
		clinicID, sessionID); err != nil {
		return nil, fmt.Errorf("deactivate sessions: %w", err)
	}
	if _, err = tx.Exec(ctx, `UPDATE sessions SET is_active = true WHERE id = $1`, sessionID); err != nil {
		return nil, fmt.Errorf("activate session: %w", err)
	}
	target.IsActive = true

	if _, err = tx.Exec(ctx, `DELETE FROM token_state WHERE session_id = $1`, sessionID); err != nil {
		return nil, fmt.Errorf("delete token state: %w", err)
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO token_state (session_id, clinic_id, current_token, no_shows, last_updated)
		VALUES ($1, $2, $3, $4, $5)`,
		sessionID, clinicID, reset.CurrentToken, toInt32s(reset.NoShows), reset.LastUpdated); err != nil {
		return nil, fmt.Errorf("insert token state: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit activation: %w", err)
	}
	return append(changed, target), nil
}

// DeactivateSession implements store.Directory.
func (s *Store) DeactivateSession(ctx context.Context, sessionID string) (sess *models.Session, err error) {
	start := time.Now()
	defer func() { observe("deactivate", "sessions", start, err) }()

	sess, err = scanSession(s.pool.QueryRow(ctx,
		`UPDATE sessions SET is_active = false WHERE id = $1 RETURNING `+sessionColumns, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("deactivate session: %w", err)
	}
	return sess, nil
}
