// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package models

import (
	"math"
	"slices"
	"time"
)

// InitialToken is the current token of a freshly started session.
const InitialToken = 1

// MaxToken is the largest token a store column can hold.
const MaxToken = math.MaxInt32

// Clinic is immutable after creation.
type Clinic struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Session belongs to exactly one clinic. Sessions are created inactive and
// are never deleted.
type Session struct {
	ID        string    `json:"id"`
	ClinicID  string    `json:"clinic_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a copy of s. A nil session clones to nil.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// TokenState is the live queue position of a session.
//
// CurrentToken is always >= 1. Every member of NoShows is non-negative and
// was strictly below CurrentToken when it was recorded. LastUpdated changes on
// every write and is informational only.
type TokenState struct {
	ClinicID     string    `json:"clinic_id"`
	SessionID    string    `json:"session_id"`
	CurrentToken int       `json:"current_token"`
	NoShows      []int     `json:"no_shows"`
	LastUpdated  time.Time `json:"last_updated"`
}

// NewTokenState returns the reset state written when a session starts.
func NewTokenState(clinicID, sessionID string, now time.Time) *TokenState {
	return &TokenState{
		ClinicID:     clinicID,
		SessionID:    sessionID,
		CurrentToken: InitialToken,
		NoShows:      []int{},
		LastUpdated:  now,
	}
}

// Clone returns a deep copy of t. A nil state clones to nil.
func (t *TokenState) Clone() *TokenState {
	if t == nil {
		return nil
	}
	c := *t
	c.NoShows = NormalizeNoShows(t.NoShows)
	return &c
}

// HasNoShow reports whether token is in the no-show set.
func (t *TokenState) HasNoShow(token int) bool {
	return slices.Contains(t.NoShows, token)
}

// NormalizeNoShows returns a sorted, de-duplicated copy of tokens. The result
// is never nil so it always serializes as a JSON array.
func NormalizeNoShows(tokens []int) []int {
	out := make([]int, len(tokens))
	copy(out, tokens)
	slices.Sort(out)
	return slices.Compact(out)
}

// WithoutNoShow returns tokens minus token, normalized.
func WithoutNoShow(tokens []int, token int) []int {
	out := make([]int, 0, len(tokens))
	for _, t := range tokens {
		if t != token {
			out = append(out, t)
		}
	}
	return NormalizeNoShows(out)
}

// WithNoShow returns tokens plus token, normalized.
func WithNoShow(tokens []int, token int) []int {
	out := make([]int, 0, len(tokens)+1)
	out = append(out, tokens...)
	out = append(out, token)
	return NormalizeNoShows(out)
}
