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

	"github.com/google/uuid"

	"github.com/tomtom215/nowserving/internal/models"
	"github.com/tomtom215/nowserving/internal/store"
)

const sessionColumns = `id, clinic_id, name, is_active, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	if err := row.Scan(&s.ID, &s.ClinicID, &s.Name, &s.IsActive, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanClinic(row rowScanner) (*models.Clinic, error) {
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

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var exists bool
	if err := s.conn.QueryRowContext(ctx, `SELECT count(*) > 0 FROM clinics WHERE slug = ?`, slug).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check clinic slug: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("clinic slug %q: %w", slug, store.ErrConflict)
	}

	c = &models.Clinic{ID: uuid.NewString(), Slug: slug, Name: name, CreatedAt: time.Now().UTC()}
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO clinics (id, slug, name, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Slug, c.Name, c.CreatedAt)
	if isConstraintViolation(err) {
		return nil, fmt.Errorf("clinic slug %q: %w", slug, store.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("insert clinic: %w", err)
	}
	return c, nil
}

// ResolveClinic implements store.Directory.
func (s *Store) ResolveClinic(ctx context.Context, slug string) (*models.Clinic, error) {
	start := time.Now()
	c, err := scanClinic(s.conn.QueryRowContext(ctx,
		`SELECT id, slug, name, created_at FROM clinics WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		observe("resolve", "clinics", start, nil)
		return nil, fmt.Errorf("clinic %q: %w", slug, store.ErrNotFound)
	}
	observe("resolve", "clinics", start, err)
	if err != nil {
		return nil, fmt.Errorf("resolve clinic: %w", err)
	}
	return c, nil
}

// GetClinic implements store.Directory.
func (s *Store) GetClinic(ctx context.Context, id string) (*models.Clinic, error) {
	start := time.Now()
	c, err := scanClinic(s.conn.QueryRowContext(ctx,
		`SELECT id, slug, name, created_at FROM clinics WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		observe("get", "clinics", start, nil)
		return nil, fmt.Errorf("clinic %s: %w", id, store.ErrNotFound)
	}
	observe("get", "clinics", start, err)
	if err != nil {
		return nil, fmt.Errorf("get clinic: %w", err)
	}
	return c, nil
}

// ListSessions implements store.Directory.
func (s *Store) ListSessions(ctx context.Context, clinicID string) (out []*models.Session, err error) {
	start := time.Now()
	defer func() { observe("list", "sessions", start, err) }()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE clinic_id = ? ORDER BY name, id`, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer closeQuietly(rows)

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
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	start := time.Now()
	sess, err := scanSession(s.conn.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		observe("get", "sessions", start, nil)
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	observe("get", "sessions", start, err)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// GetActiveSession implements store.Directory.
func (s *Store) GetActiveSession(ctx context.Context, clinicID string) (*models.Session, error) {
	start := time.Now()
	sess, err := scanSession(s.conn.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE clinic_id = ? AND is_active ORDER BY name LIMIT 1`, clinicID))
	if errors.Is(err, sql.ErrNoRows) {
		observe("active", "sessions", start, nil)
		return nil, nil
	}
	observe("active", "sessions", start, err)
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return sess, nil
}

// CreateSession implements store.Directory.
func (s *Store) CreateSession(ctx context.Context, clinicID, name string) (sess *models.Session, err error) {
	start := time.Now()
	defer func() { observe("create", "sessions", start, err) }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.GetClinic(ctx, clinicID); err != nil {
		return nil, err
	}

	sess = &models.Session{ID: uuid.NewString(), ClinicID: clinicID, Name: name, CreatedAt: time.Now().UTC()}
	if _, err := s.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, clinic_id, name, is_active, created_at) VALUES (?, ?, ?, false, ?)`,
		sess.ID, sess.ClinicID, sess.Name, sess.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// ActivateSession implements store.Directory. The deactivate-all,
// activate-one and token reset run in one transaction.
func (s *Store) ActivateSession(ctx context.Context, clinicID, sessionID string, reset *models.TokenState) (changed []*models.Session, err error) {
	start := time.Now()
	defer func() { observe("activate", "sessions", start, err) }()

	noShows, err := encodeNoShows(reset.NoShows)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	target, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ? AND clinic_id = ?`, sessionID, clinicID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE clinic_id = ? AND is_active AND id <> ? ORDER BY name, id`,
		clinicID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load active sessions: %w", err)
	}
	for rows.Next() {
		sess, scanErr := scanSession(rows)
		if scanErr != nil {
			closeQuietly(rows)
			return nil, fmt.Errorf("scan session: %w", scanErr)
		}
		sess.IsActive = false
		changed = append(changed, sess)
	}
	closeQuietly(rows)
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE sessions SET is_active = false WHERE clinic_id = ? AND is_active AND id <> ?`,
		clinicID, sessionID); err != nil {
		return nil, fmt.Errorf("deactivate sessions: %w", err)
	}
	if !target.IsActive {
		if _, err = tx.ExecContext(ctx, `UPDATE sessions SET is_active = true WHERE id = ?`, sessionID); err != nil {
			return nil, fmt.Errorf("activate session: %w", err)
		}
	}
	target.IsActive = true

	// Upsert rather than DELETE+INSERT: DuckDB checks the primary key eagerly
	// within a transaction.
	if _, err = tx.ExecContext(ctx, upsertTokenState,
		sessionID, clinicID, reset.CurrentToken, noShows, reset.LastUpdated.UTC()); err != nil {
		return nil, fmt.Errorf("reset token state: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit activation: %w", err)
	}
	return append(changed, target), nil
}

// DeactivateSession implements store.Directory.
func (s *Store) DeactivateSession(ctx context.Context, sessionID string) (sess *models.Session, err error) {
	start := time.Now()
	defer func() { observe("deactivate", "sessions", start, err) }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.conn.ExecContext(ctx, `UPDATE sessions SET is_active = false WHERE id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("deactivate session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
	}
	return s.GetSession(ctx, sessionID)
}
