// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

// Package storetest holds the behaviour every store.Store implementation
// must share. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/tomtom215/nowserving/internal/models"
	"github.com/tomtom215/nowserving/internal/store"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"ClinicLifecycle", testClinicLifecycle},
		{"SessionsOrderedByName", testSessionsOrderedByName},
		{"ActivateResetsTokenState", testActivateResetsTokenState},
		{"SingleActiveSession", testSingleActiveSession},
		{"ActivateForeignSession", testActivateForeignSession},
		{"DeactivateKeepsTombstone", testDeactivateKeepsTombstone},
		{"ReplaceIsFullOverwrite", testReplaceIsFullOverwrite},
		{"TokenStateKeyScoping", testTokenStateKeyScoping},
		{"DeleteTokenState", testDeleteTokenState},
		{"SeedIsIdempotent", testSeedIsIdempotent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return c
}

func mustClinic(t *testing.T, s store.Store, slug string) *models.Clinic {
	t.Helper()
	c, err := s.CreateClinic(ctx(t), slug, "Clinic "+slug)
	if err != nil {
		t.Fatalf("CreateClinic(%q): %v", slug, err)
	}
	return c
}

func mustSession(t *testing.T, s store.Store, clinicID, name string) *models.Session {
	t.Helper()
	sess, err := s.CreateSession(ctx(t), clinicID, name)
	if err != nil {
		t.Fatalf("CreateSession(%q): %v", name, err)
	}
	return sess
}

func mustActivate(t *testing.T, s store.Store, clinicID, sessionID string) []*models.Session {
	t.Helper()
	changed, err := s.ActivateSession(ctx(t), clinicID, sessionID, models.NewTokenState(clinicID, sessionID, time.Now().UTC()))
	if err != nil {
		t.Fatalf("ActivateSession: %v", err)
	}
	return changed
}

func testClinicLifecycle(t *testing.T, s store.Store) {
	c := mustClinic(t, s, "city-health")
	if c.ID == "" {
		t.Fatal("clinic id should be assigned")
	}

	got, err := s.ResolveClinic(ctx(t), "city-health")
	if err != nil {
		t.Fatalf("ResolveClinic: %v", err)
	}
	if got.ID != c.ID || got.Name != "Clinic city-health" {
		t.Errorf("ResolveClinic = %+v, want id %s", got, c.ID)
	}

	byID, err := s.GetClinic(ctx(t), c.ID)
	if err != nil || byID.Slug != "city-health" {
		t.Errorf("GetClinic = %+v, %v", byID, err)
	}

	if _, err := s.ResolveClinic(ctx(t), "nowhere"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ResolveClinic(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := s.CreateClinic(ctx(t), "city-health", "Duplicate"); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate slug error = %v, want ErrConflict", err)
	}
	if err := s.Ping(ctx(t)); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func testSessionsOrderedByName(t *testing.T, s store.Store) {
	c := mustClinic(t, s, "ordered")
	other := mustClinic(t, s, "other")
	mustSession(t, s, c.ID, "Morning")
	mustSession(t, s, c.ID, "Afternoon")
	mustSession(t, s, c.ID, "Evening")
	mustSession(t, s, other.ID, "Night")

	list, err := s.ListSessions(ctx(t), c.ID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	var names []string
	for _, sess := range list {
		names = append(names, sess.Name)
		if sess.IsActive {
			t.Errorf("session %q should be created inactive", sess.Name)
		}
		if sess.ClinicID != c.ID {
			t.Errorf("session %q belongs to %s", sess.Name, sess.ClinicID)
		}
	}
	if !slices.Equal(names, []string{"Afternoon", "Evening", "Morning"}) {
		t.Errorf("ListSessions order = %v", names)
	}

	empty := mustClinic(t, s, "empty")
	list, err = s.ListSessions(ctx(t), empty.ID)
	if err != nil || len(list) != 0 {
		t.Errorf("ListSessions(empty) = %v, %v", list, err)
	}

	if _, err := s.CreateSession(ctx(t), "missing-clinic", "X"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("CreateSession(unknown clinic) error = %v, want ErrNotFound", err)
	}
}

func testActivateResetsTokenState(t *testing.T, s store.Store) {
	c := mustClinic(t, s, "reset")
	sess := mustSession(t, s, c.ID, "Morning")

	if _, err := s.ReadTokenState(ctx(t), c.ID, sess.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("token state before activation: %v, want ErrNotFound", err)
	}

	mustActivate(t, s, c.ID, sess.ID)
	if err := s.ReplaceTokenState(ctx(t), &models.TokenState{
		ClinicID: c.ID, SessionID: sess.ID, CurrentToken: 9, NoShows: []int{3, 5}, LastUpdated: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("ReplaceTokenState: %v", err)
	}

	mustActivate(t, s, c.ID, sess.ID)
	ts, err := s.ReadTokenState(ctx(t), c.ID, sess.ID)
	if err != nil {
		t.Fatalf("ReadTokenState: %v", err)
	}
	if ts.CurrentToken != 1 || len(ts.NoShows) != 0 || ts.NoShows == nil {
		t.Errorf("after re-activation = (%d, %#v), want (1, [])", ts.CurrentToken, ts.NoShows)
	}
}

func testSingleActiveSession(t *testing.T, s store.Store) {
	c := mustClinic(t, s, "single")
	other := mustClinic(t, s, "neighbour")
	a := mustSession(t, s, c.ID, "A")
	b := mustSession(t, s, c.ID, "B")
	n := mustSession(t, s, other.ID, "N")

	active, err := s.GetActiveSession(ctx(t), c.ID)
	if err != nil || active != nil {
		t.Fatalf("GetActiveSession before start = %+v, %v; want nil, nil", active, err)
	}

	mustActivate(t, s, other.ID, n.ID)
	mustActivate(t, s, c.ID, a.ID)
	changed := mustActivate(t, s, c.ID, b.ID)

	if len(changed) != 2 || changed[0].ID != a.ID || changed[0].IsActive || changed[1].ID != b.ID || !changed[1].IsActive {
		t.Errorf("changed sessions = %+v, want [A inactive, B active]", changed)
	}

	list, _ := s.ListSessions(ctx(t), c.ID)
	activeCount := 0
	for _, sess := range list {
		if sess.IsActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Errorf("active sessions = %d, want 1", activeCount)
	}

	active, err = s.GetActiveSession(ctx(t), c.ID)
	if err != nil || active == nil || active.ID != b.ID {
		t.Errorf("GetActiveSession = %+v, %v; want B", active, err)
	}

	// Activation in one clinic never touches another.
	otherActive, _ := s.GetActiveSession(ctx(t), other.ID)
	if otherActive == nil || otherActive.ID != n.ID {
		t.Errorf("neighbour clinic active = %+v, want N", otherActive)
	}
}

func testActivateForeignSession(t *testing.T, s store.Store) {
	c := mustClinic(t, s, "home")
	other := mustClinic(t, s, "away")
	foreign := mustSession(t, s, other.ID, "Foreign")

	_, err := s.ActivateSession(ctx(t), c.ID, foreign.ID, models.NewTokenState(c.ID, foreign.ID, time.Now().UTC()))
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ActivateSession(foreign) error = %v, want ErrNotFound", err)
	}
	got, _ := s.GetSession(ctx(t), foreign.ID)
	if got == nil || got.IsActive {
		t.Errorf("foreign session should stay inactive: %+v", got)
	}
}

func testDeactivateKeepsTombstone(t *testing.T, s store.Store) {
	c := mustClinic(t, s, "tombstone")
	sess := mustSession(t, s, c.ID, "Morning")
	mustActivate(t, s, c.ID, sess.ID)

	updated, err := s.DeactivateSession(ctx(t), sess.ID)
	if err != nil {
		t.Fatalf("DeactivateSession: %v", err)
	}
	if updated.IsActive {
		t.Error("DeactivateSession should return the inactive row")
	}

	active, err := s.GetActiveSession(ctx(t), c.ID)
	if err != nil || active != nil {
		t.Errorf("GetActiveSession after end = %+v, %v", active, err)
	}
	if _, err := s.ReadTokenState(ctx(t), c.ID, sess.ID); err != nil {
		t.Errorf("token state should survive deactivation: %v", err)
	}

	if _, err := s.DeactivateSession(ctx(t), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("DeactivateSession(unknown) error = %v, want ErrNotFound", err)
	}
}

func testReplaceIsFullOverwrite(t *testing.T, s store.Store) {
	c := mustClinic(t, s, "overwrite")
	sess := mustSession(t, s, c.ID, "Morning")
	mustActivate(t, s, c.ID, sess.ID)

	stamp := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	first := &models.TokenState{ClinicID: c.ID, SessionID: sess.ID, CurrentToken: 5, NoShows: []int{4, 2}, LastUpdated: stamp}
	if err := s.ReplaceTokenState(ctx(t), first); err != nil {
		t.Fatalf("ReplaceTokenState: %v", err)
	}

	got, err := s.ReadTokenState(ctx(t), c.ID, sess.ID)
	if err != nil {
		t.Fatalf("ReadTokenState: %v", err)
	}
	if got.CurrentToken != 5 || !slices.Equal(got.NoShows, []int{2, 4}) {
		t.Errorf("read = (%d, %v), want (5, [2 4])", got.CurrentToken, got.NoShows)
	}
	if d := got.LastUpdated.Sub(stamp); d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, stamp)
	}

	second := &models.TokenState{ClinicID: c.ID, SessionID: sess.ID, CurrentToken: 6, NoShows: []int{}, LastUpdated: stamp.Add(time.Minute)}
	if err := s.ReplaceTokenState(ctx(t), second); err != nil {
		t.Fatalf("ReplaceTokenState: %v", err)
	}
	got, _ = s.ReadTokenState(ctx(t), c.ID, sess.ID)
	if got.CurrentToken != 6 || len(got.NoShows) != 0 || got.NoShows == nil {
		t.Errorf("second read = (%d, %#v), want (6, [])", got.CurrentToken, got.NoShows)
	}
}

func testTokenStateKeyScoping(t *testing.T, s store.Store) {
	c := mustClinic(t, s, "scoped")
	other := mustClinic(t, s, "intruder")
	sess := mustSession(t, s, c.ID, "Morning")
	mustActivate(t, s, c.ID, sess.ID)

	if _, err := s.ReadTokenState(ctx(t), other.ID, sess.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ReadTokenState(wrong clinic) error = %v, want ErrNotFound", err)
	}
	err := s.ReplaceTokenState(ctx(t), &models.TokenState{ClinicID: other.ID, SessionID: sess.ID, CurrentToken: 3, NoShows: []int{}})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ReplaceTokenState(wrong clinic) error = %v, want ErrNotFound", err)
	}
	got, _ := s.ReadTokenState(ctx(t), c.ID, sess.ID)
	if got == nil || got.CurrentToken != 1 {
		t.Errorf("state changed through a foreign clinic: %+v", got)
	}
}

func testDeleteTokenState(t *testing.T, s store.Store) {
	c := mustClinic(t, s, "deleted")
	sess := mustSession(t, s, c.ID, "Morning")
	mustActivate(t, s, c.ID, sess.ID)

	if err := s.DeleteTokenState(ctx(t), sess.ID); err != nil {
		t.Fatalf("DeleteTokenState: %v", err)
	}
	if _, err := s.ReadTokenState(ctx(t), c.ID, sess.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ReadTokenState after delete error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteTokenState(ctx(t), sess.ID); err != nil {
		t.Errorf("second DeleteTokenState should be a no-op, got %v", err)
	}
}

func testSeedIsIdempotent(t *testing.T, s store.Store) {
	for i := 0; i < 2; i++ {
		c, err := store.Seed(ctx(t), s, "city-health", "City Health Clinic", []string{"Morning", "Evening"})
		if err != nil {
			t.Fatalf("Seed run %d: %v", i, err)
		}
		list, err := s.ListSessions(ctx(t), c.ID)
		if err != nil {
			t.Fatalf("ListSessions: %v", err)
		}
		if len(list) != 2 {
			t.Errorf("run %d: %d sessions, want 2", i, len(list))
		}
	}
}
