// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/nowserving/internal/models"
)

// Memory is an in-process Store. State is lost on restart.
type Memory struct {
	mu       sync.RWMutex
	clinics  map[string]*models.Clinic // by id
	slugs    map[string]string         // slug -> clinic id
	sessions map[string]*models.Session
	tokens   map[string]*models.TokenState // by session id
	closed   bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		clinics:  make(map[string]*models.Clinic),
		slugs:    make(map[string]string),
		sessions: make(map[string]*models.Session),
		tokens:   make(map[string]*models.TokenState),
	}
}

func (m *Memory) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.closed {
		return fmt.Errorf("memory store is closed")
	}
	return nil
}

// CreateClinic implements Directory.
func (m *Memory) CreateClinic(ctx context.Context, slug, name string) (*models.Clinic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	if _, taken := m.slugs[slug]; taken {
		return nil, fmt.Errorf("clinic slug %q: %w", slug, ErrConflict)
	}
	c := &models.Clinic{
		ID:        uuid.NewString(),
		Slug:      slug,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	m.clinics[c.ID] = c
	m.slugs[slug] = c.ID
	cp := *c
	return &cp, nil
}

// ResolveClinic implements Directory.
func (m *Memory) ResolveClinic(ctx context.Context, slug string) (*models.Clinic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	id, ok := m.slugs[slug]
	if !ok {
		return nil, fmt.Errorf("clinic %q: %w", slug, ErrNotFound)
	}
	cp := *m.clinics[id]
	return &cp, nil
}

// GetClinic implements Directory.
func (m *Memory) GetClinic(ctx context.Context, id string) (*models.Clinic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	c, ok := m.clinics[id]
	if !ok {
		return nil, fmt.Errorf("clinic %s: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

// ListSessions implements Directory.
func (m *Memory) ListSessions(ctx context.Context, clinicID string) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	out := make([]*models.Session, 0)
	for _, s := range m.sessions {
		if s.ClinicID == clinicID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetSession implements Directory.
func (m *Memory) GetSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s.Clone(), nil
}

// GetActiveSession implements Directory.
func (m *Memory) GetActiveSession(ctx context.Context, clinicID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	for _, s := range m.sessions {
		if s.ClinicID == clinicID && s.IsActive {
			return s.Clone(), nil
		}
	}
	return nil, nil
}

// CreateSession implements Directory.
func (m *Memory) CreateSession(ctx context.Context, clinicID, name string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	if _, ok := m.clinics[clinicID]; !ok {
		return nil, fmt.Errorf("clinic %s: %w", clinicID, ErrNotFound)
	}
	s := &models.Session{
		ID:        uuid.NewString(),
		ClinicID:  clinicID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	m.sessions[s.ID] = s
	return s.Clone(), nil
}

// ActivateSession implements Directory.
func (m *Memory) ActivateSession(ctx context.Context, clinicID, sessionID string, reset *models.TokenState) ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	target, ok := m.sessions[sessionID]
	if !ok || target.ClinicID != clinicID {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	changed := make([]*models.Session, 0, 2)
	for _, s := range m.sessions {
		if s.ClinicID == clinicID && s.IsActive && s.ID != sessionID {
			s.IsActive = false
			changed = append(changed, s.Clone())
		}
	}
	target.IsActive = true
	changed = append(changed, target.Clone())

	delete(m.tokens, sessionID)
	m.tokens[sessionID] = reset.Clone()

	return changed, nil
}

// DeactivateSession implements Directory.
func (m *Memory) DeactivateSession(ctx context.Context, sessionID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	s.IsActive = false
	return s.Clone(), nil
}

// ReadTokenState implements TokenStore.
func (m *Memory) ReadTokenState(ctx context.Context, clinicID, sessionID string) (*models.TokenState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	ts, ok := m.tokens[sessionID]
	if !ok || ts.ClinicID != clinicID {
		return nil, fmt.Errorf("token state for session %s: %w", sessionID, ErrNotFound)
	}
	return ts.Clone(), nil
}

// ReplaceTokenState implements TokenStore.
func (m *Memory) ReplaceTokenState(ctx context.Context, state *models.TokenState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}

	s, ok := m.sessions[state.SessionID]
	if !ok || s.ClinicID != state.ClinicID {
		return fmt.Errorf("session %s: %w", state.SessionID, ErrNotFound)
	}
	m.tokens[state.SessionID] = state.Clone()
	return nil
}

// DeleteTokenState implements TokenStore. Deleting a missing row is a no-op.
func (m *Memory) DeleteTokenState(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	delete(m.tokens, sessionID)
	return nil
}

// Ping implements Store.
func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check(ctx)
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
