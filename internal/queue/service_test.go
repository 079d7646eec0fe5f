// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package queue

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/tomtom215/nowserving/internal/logging"
	"github.com/tomtom215/nowserving/internal/models"
	"github.com/tomtom215/nowserving/internal/store"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

type recordingNotifier struct {
	mu       sync.Mutex
	tokens   []*models.TokenState
	sessions []*models.Session
	err      error
}

func (n *recordingNotifier) PublishTokenState(_ context.Context, ts *models.TokenState) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens = append(n.tokens, ts.Clone())
	return n.err
}

func (n *recordingNotifier) PublishSession(_ context.Context, s *models.Session) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessions = append(n.sessions, s.Clone())
	return n.err
}

func (n *recordingNotifier) lastToken() *models.TokenState {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.tokens) == 0 {
		return nil
	}
	return n.tokens[len(n.tokens)-1]
}

// failingStore fails token state writes.
type failingStore struct {
	*store.Memory
	fail bool
}

func (f *failingStore) ReplaceTokenState(ctx context.Context, ts *models.TokenState) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Memory.ReplaceTokenState(ctx, ts)
}

type fixture struct {
	svc    *Service
	store  *failingStore
	notes  *recordingNotifier
	clinic *models.Clinic
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := &failingStore{Memory: store.NewMemory()}
	notes := &recordingNotifier{}
	svc := NewService(st, notes)

	clinic, err := svc.CreateClinic(context.Background(), "city-health", "City Health Clinic")
	if err != nil {
		t.Fatalf("CreateClinic: %v", err)
	}
	return &fixture{svc: svc, store: st, notes: notes, clinic: clinic}
}

func (f *fixture) startedSession(t *testing.T, name string) *models.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := f.svc.AddSession(ctx, f.clinic.ID, name)
	if err != nil {
		t.Fatalf("AddSession: %v", err)
	}
	if _, err := f.svc.StartSession(ctx, f.clinic.ID, sess.ID); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return sess
}

func assertState(t *testing.T, ts *models.TokenState, current int, noShows ...int) {
	t.Helper()
	if noShows == nil {
		noShows = []int{}
	}
	if ts.CurrentToken != current || !slices.Equal(ts.NoShows, noShows) {
		t.Fatalf("state = (%d, %v), want (%d, %v)", ts.CurrentToken, ts.NoShows, current, noShows)
	}
}

func TestCityHealthScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cid := f.clinic.ID

	morning, err := f.svc.AddSession(ctx, cid, "Morning")
	if err != nil {
		t.Fatal(err)
	}
	if morning.IsActive {
		t.Fatal("new sessions must be inactive")
	}

	ts, err := f.svc.StartSession(ctx, cid, morning.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertState(t, ts, 1)

	for range 3 {
		if ts, err = f.svc.NextPatient(ctx, cid, morning.ID); err != nil {
			t.Fatal(err)
		}
	}
	assertState(t, ts, 4)

	ts, err = f.svc.MarkNoShow(ctx, cid, morning.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertState(t, ts, 5, 4)

	ts, err = f.svc.RequeueNoShow(ctx, cid, morning.ID, 4)
	if err != nil {
		t.Fatal(err)
	}
	assertState(t, ts, 5)

	ended, err := f.svc.EndSession(ctx, cid, morning.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if ended.IsActive {
		t.Error("EndSession left the session active")
	}

	active, _, err := f.svc.ActiveSession(ctx, cid)
	if err != nil || active != nil {
		t.Fatalf("ActiveSession = %v, %v; want none", active, err)
	}

	// Token state survives as a tombstone.
	stored, err := f.svc.TokenState(ctx, cid, morning.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertState(t, stored, 5)

	// Every committed write was broadcast, last one matches the store.
	assertState(t, f.notes.lastToken(), 5)
	last := f.notes.sessions[len(f.notes.sessions)-1]
	if last.ID != morning.ID || last.IsActive {
		t.Errorf("last session event = %+v", last)
	}
}

func TestStartSession_SingleActiveAndReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cid := f.clinic.ID

	a := f.startedSession(t, "Afternoon")
	if _, err := f.svc.NextPatient(ctx, cid, a.ID); err != nil {
		t.Fatal(err)
	}

	b, _ := f.svc.AddSession(ctx, cid, "Morning")
	f.notes.sessions = nil
	ts, err := f.svc.StartSession(ctx, cid, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertState(t, ts, 1)

	sessions, _ := f.svc.ListSessions(ctx, cid)
	activeCount := 0
	for _, s := range sessions {
		if s.IsActive {
			activeCount++
			if s.ID != b.ID {
				t.Errorf("wrong session active: %s", s.Name)
			}
		}
	}
	if activeCount != 1 {
		t.Fatalf("active sessions = %d, want 1", activeCount)
	}

	// Deactivation is announced before activation.
	if len(f.notes.sessions) != 2 || f.notes.sessions[0].ID != a.ID || f.notes.sessions[1].ID != b.ID {
		t.Errorf("session events = %+v", f.notes.sessions)
	}

	// Restarting resets.
	if _, err := f.svc.NextPatient(ctx, cid, b.ID); err != nil {
		t.Fatal(err)
	}
	ts, err = f.svc.StartSession(ctx, cid, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertState(t, ts, 1)
}

func TestMarkNoShowAtK(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.startedSession(t, "Morning")

	for k := 1; k <= 4; k++ {
		ts, err := f.svc.MarkNoShow(ctx, f.clinic.ID, sess.ID)
		if err != nil {
			t.Fatal(err)
		}
		if ts.CurrentToken != k+1 || !ts.HasNoShow(k) {
			t.Fatalf("MarkNoShow at %d gave %+v", k, ts)
		}
	}
}

func TestRequeueNoShow_IdempotentAndKeepsCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.startedSession(t, "Morning")

	if _, err := f.svc.Advance(ctx, f.clinic.ID, sess.ID, 9, []int{2, 5}); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		ts, err := f.svc.RequeueNoShow(ctx, f.clinic.ID, sess.ID, 5)
		if err != nil {
			t.Fatal(err)
		}
		assertState(t, ts, 9, 2)
	}
	ts, err := f.svc.RequeueNoShow(ctx, f.clinic.ID, sess.ID, 42)
	if err != nil {
		t.Fatal(err)
	}
	assertState(t, ts, 9, 2)
}

func TestManualSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.startedSession(t, "Morning")
	if _, err := f.svc.MarkNoShow(ctx, f.clinic.ID, sess.ID); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr error
	}{
		{"integer", "12", 12, nil},
		{"surrounding space", " 7 ", 7, nil},
		{"lower than before", "3", 3, nil},
		{"not a number", "abc", 0, ErrValidation},
		{"empty", "", 0, ErrValidation},
		{"float", "4.5", 0, ErrValidation},
		{"zero", "0", 0, ErrValidation},
		{"negative", "-2", 0, ErrValidation},
		{"largest storable", "2147483647", models.MaxToken, nil},
		{"beyond store range", "3000000000", 0, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, _ := f.svc.TokenState(ctx, f.clinic.ID, sess.ID)
			ts, err := f.svc.ManualSet(ctx, f.clinic.ID, sess.ID, tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				after, _ := f.svc.TokenState(ctx, f.clinic.ID, sess.ID)
				assertState(t, after, before.CurrentToken, before.NoShows...)
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			// No-shows are never touched.
			assertState(t, ts, tt.want, 1)
		})
	}
}

func TestAdvanceValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.startedSession(t, "Morning")
	if _, err := f.svc.Advance(ctx, f.clinic.ID, sess.ID, 6, []int{3}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		current  int
		noShows  []int
		wantErr  bool
		wantNoSh []int
	}{
		{"keep set when omitted", 7, nil, false, []int{3}},
		{"explicit empty clears", 7, []int{}, false, []int{}},
		{"duplicates collapse", 8, []int{5, 3, 5}, false, []int{3, 5}},
		{"existing entry may exceed current", 2, []int{3}, false, []int{3}},
		{"current below one", 0, nil, true, nil},
		{"negative no-show", 9, []int{-1}, true, nil},
		{"new no-show at current", 9, []int{3, 9}, true, nil},
		{"new no-show above current", 9, []int{12}, true, nil},
		{"current beyond store range", models.MaxToken + 1, nil, true, nil},
		{"no-show beyond store range", models.MaxToken, []int{models.MaxToken + 1}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, _ := f.svc.TokenState(ctx, f.clinic.ID, sess.ID)
			ts, err := f.svc.Advance(ctx, f.clinic.ID, sess.ID, tt.current, tt.noShows)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("err = %v, want ErrValidation", err)
				}
				after, _ := f.svc.TokenState(ctx, f.clinic.ID, sess.ID)
				assertState(t, after, before.CurrentToken, before.NoShows...)
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			assertState(t, ts, tt.current, tt.wantNoSh...)
		})
	}
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.startedSession(t, "Morning")
	never, _ := f.svc.AddSession(ctx, f.clinic.ID, "Evening")

	other, err := f.svc.CreateClinic(ctx, "elsewhere", "Elsewhere")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"advance unknown session", func() error {
			_, err := f.svc.NextPatient(ctx, f.clinic.ID, "missing")
			return err
		}},
		{"advance under other clinic", func() error {
			_, err := f.svc.NextPatient(ctx, other.ID, sess.ID)
			return err
		}},
		{"advance never-started session", func() error {
			_, err := f.svc.NextPatient(ctx, f.clinic.ID, never.ID)
			return err
		}},
		{"start under other clinic", func() error {
			_, err := f.svc.StartSession(ctx, other.ID, sess.ID)
			return err
		}},
		{"end under other clinic", func() error {
			_, err := f.svc.EndSession(ctx, other.ID, sess.ID, true)
			return err
		}},
		{"add to unknown clinic", func() error {
			_, err := f.svc.AddSession(ctx, "missing", "Morning")
			return err
		}},
		{"resolve unknown slug", func() error {
			_, err := f.svc.ResolveClinic(ctx, "nope")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}

	// The session under its own clinic is untouched.
	ts, _ := f.svc.TokenState(ctx, f.clinic.ID, sess.ID)
	assertState(t, ts, 1)
	if s, _ := f.svc.Session(ctx, f.clinic.ID, sess.ID); !s.IsActive {
		t.Error("session should still be active")
	}
}

func TestEndSessionRequiresConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.startedSession(t, "Morning")

	if _, err := f.svc.EndSession(ctx, f.clinic.ID, sess.ID, false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("err = %v, want ErrConfirmationRequired", err)
	}
	active, _, _ := f.svc.ActiveSession(ctx, f.clinic.ID)
	if active == nil || active.ID != sess.ID {
		t.Fatal("unconfirmed EndSession must not deactivate")
	}
}

func TestPersistenceError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.startedSession(t, "Morning")
	published := len(f.notes.tokens)

	f.store.fail = true
	if _, err := f.svc.NextPatient(ctx, f.clinic.ID, sess.ID); !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
	f.store.fail = false

	ts, _ := f.svc.TokenState(ctx, f.clinic.ID, sess.ID)
	assertState(t, ts, 1)
	if len(f.notes.tokens) != published {
		t.Error("failed writes must not be broadcast")
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.startedSession(t, "Morning")

	f.notes.err = errors.New("bus down")
	ts, err := f.svc.NextPatient(ctx, f.clinic.ID, sess.ID)
	if err != nil {
		t.Fatalf("NextPatient: %v", err)
	}
	assertState(t, ts, 2)
}

func TestAddSessionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	long := make([]byte, MaxSessionNameLength+1)
	for i := range long {
		long[i] = 'x'
	}
	for _, name := range []string{"", "   ", string(long)} {
		if _, err := f.svc.AddSession(ctx, f.clinic.ID, name); !errors.Is(err, ErrValidation) {
			t.Errorf("AddSession(%q) err = %v, want ErrValidation", name, err)
		}
	}

	sess, err := f.svc.AddSession(ctx, f.clinic.ID, "  Evening ")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Name != "Evening" {
		t.Errorf("name = %q, want trimmed", sess.Name)
	}
}

func TestCreateClinicConflict(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.CreateClinic(context.Background(), "city-health", "Again"); !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}

	for _, tc := range []struct{ slug, name string }{
		{"City Health", "x"},
		{"city_health", "x"},
		{"", "x"},
		{"north", "   "},
	} {
		if _, err := f.svc.CreateClinic(context.Background(), tc.slug, tc.name); !errors.Is(err, ErrValidation) {
			t.Errorf("CreateClinic(%q, %q) = %v, want ErrValidation", tc.slug, tc.name, err)
		}
	}
}

func TestConcurrentNextPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.startedSession(t, "Morning")

	const n = 20
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.NextPatient(ctx, f.clinic.ID, sess.ID); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	ts, _ := f.svc.TokenState(ctx, f.clinic.ID, sess.ID)
	assertState(t, ts, n+1)
}

func TestResultLabels(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{storeError("x", store.ErrNotFound), "not_found"},
		{validationError("bad"), "validation"},
		{storeError("x", store.ErrConflict), "conflict"},
		{ErrConfirmationRequired, "confirmation_required"},
		{storeError("x", errors.New("boom")), "persistence"},
		{storeError("x", store.ErrUnavailable), "persistence"},
	}
	for _, tt := range tests {
		if got := result(tt.err); got != tt.want {
			t.Errorf("result(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestNextPatientAtMaxToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.startedSession(t, "Morning")
	if _, err := f.svc.ManualSet(ctx, f.clinic.ID, sess.ID, "2147483647"); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.NextPatient(ctx, f.clinic.ID, sess.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("NextPatient at max: err = %v, want ErrValidation", err)
	}
	if _, err := f.svc.MarkNoShow(ctx, f.clinic.ID, sess.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("MarkNoShow at max: err = %v, want ErrValidation", err)
	}
	ts, err := f.svc.TokenState(ctx, f.clinic.ID, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertState(t, ts, models.MaxToken)
}

// checkTokenInvariants verifies a stored state against the one before it.
func checkTokenInvariants(t *testing.T, step string, prev, ts *models.TokenState) {
	t.Helper()
	if ts.CurrentToken < models.InitialToken || ts.CurrentToken > models.MaxToken {
		t.Fatalf("%s: current token %d out of range", step, ts.CurrentToken)
	}
	if !slices.IsSorted(ts.NoShows) || len(slices.Compact(slices.Clone(ts.NoShows))) != len(ts.NoShows) {
		t.Fatalf("%s: no-shows %v not a sorted set", step, ts.NoShows)
	}
	for _, n := range ts.NoShows {
		if n < 0 {
			t.Fatalf("%s: negative no-show %d", step, n)
		}
		if !prev.HasNoShow(n) && n >= ts.CurrentToken {
			t.Fatalf("%s: new no-show %d not below current %d", step, n, ts.CurrentToken)
		}
	}
}

type tokenStep struct {
	op    string
	value int
	set   []int
	raw   string
}

func (f *fixture) applyStep(ctx context.Context, sessionID string, st tokenStep) (*models.TokenState, error) {
	switch st.op {
	case "next":
		return f.svc.NextPatient(ctx, f.clinic.ID, sessionID)
	case "no-show":
		return f.svc.MarkNoShow(ctx, f.clinic.ID, sessionID)
	case "requeue":
		return f.svc.RequeueNoShow(ctx, f.clinic.ID, sessionID, st.value)
	case "advance":
		return f.svc.Advance(ctx, f.clinic.ID, sessionID, st.value, st.set)
	case "manual":
		return f.svc.ManualSet(ctx, f.clinic.ID, sessionID, st.raw)
	}
	panic("unknown op " + st.op)
}

func TestTokenInvariantsHoldAcrossSequences(t *testing.T) {
	tests := []struct {
		name  string
		steps []tokenStep
		want  []int // final current token followed by no-shows
	}{
		{
			name: "no-shows then requeue",
			steps: []tokenStep{
				{op: "no-show"}, {op: "no-show"}, {op: "next"}, {op: "requeue", value: 1},
				{op: "requeue", value: 1}, {op: "no-show"},
			},
			want: []int{5, 2, 4},
		},
		{
			name: "manual jumps keep no-shows",
			steps: []tokenStep{
				{op: "no-show"}, {op: "manual", raw: "50"}, {op: "manual", raw: "x"},
				{op: "manual", raw: "0"}, {op: "no-show"}, {op: "manual", raw: "3"},
			},
			want: []int{3, 1, 50},
		},
		{
			name: "advance rejections leave state",
			steps: []tokenStep{
				{op: "advance", value: 10, set: []int{2, 8}}, {op: "advance", value: 0},
				{op: "advance", value: 11, set: []int{-4}}, {op: "advance", value: 11, set: []int{2, 8, 11}},
				{op: "next"}, {op: "requeue", value: 8},
			},
			want: []int{11, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			sess := f.startedSession(t, "Morning")
			prev, err := f.svc.TokenState(ctx, f.clinic.ID, sess.ID)
			if err != nil {
				t.Fatal(err)
			}

			for i, st := range tt.steps {
				step := st.op + " #" + strconv.Itoa(i)
				if _, err := f.applyStep(ctx, sess.ID, st); err != nil && !errors.Is(err, ErrValidation) {
					t.Fatalf("%s: %v", step, err)
				}
				ts, err := f.svc.TokenState(ctx, f.clinic.ID, sess.ID)
				if err != nil {
					t.Fatal(err)
				}
				checkTokenInvariants(t, step, prev, ts)
				prev = ts
			}
			assertState(t, prev, tt.want[0], tt.want[1:]...)
		})
	}
}

func TestTokenInvariantsHoldForGeneratedSequences(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		t.Run("seed "+strconv.FormatUint(seed, 10), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, seed*7919))
			f := newFixture(t)
			ctx := context.Background()
			sess := f.startedSession(t, "Morning")
			prev, err := f.svc.TokenState(ctx, f.clinic.ID, sess.ID)
			if err != nil {
				t.Fatal(err)
			}

			for i := range 60 {
				var st tokenStep
				switch rng.IntN(5) {
				case 0:
					st = tokenStep{op: "next"}
				case 1:
					st = tokenStep{op: "no-show"}
				case 2:
					st = tokenStep{op: "requeue", value: rng.IntN(prev.CurrentToken + 2)}
				case 3:
					set := make([]int, rng.IntN(3))
					for j := range set {
						set[j] = rng.IntN(prev.CurrentToken+4) - 1
					}
					st = tokenStep{op: "advance", value: rng.IntN(prev.CurrentToken+5) - 1, set: set}
				default:
					st = tokenStep{op: "manual", raw: strconv.Itoa(rng.IntN(40) - 5)}
				}

				step := st.op + " #" + strconv.Itoa(i)
				if _, err := f.applyStep(ctx, sess.ID, st); err != nil && !errors.Is(err, ErrValidation) {
					t.Fatalf("%s: %v", step, err)
				}
				ts, err := f.svc.TokenState(ctx, f.clinic.ID, sess.ID)
				if err != nil {
					t.Fatal(err)
				}
				checkTokenInvariants(t, step, prev, ts)
				prev = ts
			}
		})
	}
}
