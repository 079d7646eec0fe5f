// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package models

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestNewTokenState(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ts := NewTokenState("c1", "s1", now)

	if ts.CurrentToken != 1 {
		t.Errorf("CurrentToken = %d, want 1", ts.CurrentToken)
	}
	if ts.NoShows == nil || len(ts.NoShows) != 0 {
		t.Errorf("NoShows = %#v, want empty non-nil slice", ts.NoShows)
	}
	if !ts.LastUpdated.Equal(now) {
		t.Errorf("LastUpdated = %v, want %v", ts.LastUpdated, now)
	}
}

func TestTokenStateClone(t *testing.T) {
	orig := &TokenState{ClinicID: "c1", SessionID: "s1", CurrentToken: 5, NoShows: []int{4, 2}}
	clone := orig.Clone()

	clone.NoShows[0] = 99
	if orig.NoShows[0] != 4 {
		t.Error("Clone() shares the NoShows backing array")
	}
	if !slices.Equal(orig.Clone().NoShows, []int{2, 4}) {
		t.Errorf("Clone() should normalize no-shows, got %v", orig.Clone().NoShows)
	}

	var nilState *TokenState
	if nilState.Clone() != nil {
		t.Error("nil.Clone() should be nil")
	}
}

func TestNormalizeNoShows(t *testing.T) {
	tests := []struct {
		name string
		in   []int
		want []int
	}{
		{"nil", nil, []int{}},
		{"empty", []int{}, []int{}},
		{"sorted", []int{1, 2, 3}, []int{1, 2, 3}},
		{"unsorted duplicates", []int{7, 3, 7, 1, 3}, []int{1, 3, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeNoShows(tt.in)
			if got == nil {
				t.Fatal("NormalizeNoShows returned nil")
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("NormalizeNoShows(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNoShowSetOps(t *testing.T) {
	set := []int{2, 4}

	if got := WithNoShow(set, 3); !slices.Equal(got, []int{2, 3, 4}) {
		t.Errorf("WithNoShow = %v", got)
	}
	if got := WithNoShow(set, 4); !slices.Equal(got, []int{2, 4}) {
		t.Errorf("WithNoShow duplicate = %v", got)
	}
	if got := WithoutNoShow(set, 4); !slices.Equal(got, []int{2}) {
		t.Errorf("WithoutNoShow = %v", got)
	}
	if got := WithoutNoShow(set, 9); !slices.Equal(got, []int{2, 4}) {
		t.Errorf("WithoutNoShow missing = %v", got)
	}
	if !slices.Equal(set, []int{2, 4}) {
		t.Errorf("input mutated: %v", set)
	}

	ts := &TokenState{NoShows: set}
	if !ts.HasNoShow(2) || ts.HasNoShow(3) {
		t.Error("HasNoShow mismatch")
	}
}

func TestTokenStateJSONShape(t *testing.T) {
	ts := NewTokenState("c1", "s1", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	data, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"clinic_id":"c1"`, `"session_id":"s1"`, `"current_token":1`, `"no_shows":[]`, `"last_updated":`} {
		if !strings.Contains(s, want) {
			t.Errorf("JSON %s missing %s", s, want)
		}
	}
}

func TestAdvanceRequestNoShowsPresence(t *testing.T) {
	var absent AdvanceRequest
	if err := json.Unmarshal([]byte(`{"current_token":3}`), &absent); err != nil {
		t.Fatal(err)
	}
	if absent.NoShows != nil {
		t.Errorf("absent no_shows should decode to nil, got %#v", absent.NoShows)
	}

	var empty AdvanceRequest
	if err := json.Unmarshal([]byte(`{"current_token":3,"no_shows":[]}`), &empty); err != nil {
		t.Fatal(err)
	}
	if empty.NoShows == nil {
		t.Error("explicit empty no_shows should decode to a non-nil slice")
	}
}
