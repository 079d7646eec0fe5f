// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package models

import (
	"time"
)

// APIResponse is the standard wrapper for every HTTP response.
//
// Status is "success" (see Data) or "error" (see Error).
//
//	{
//	  "status": "success",
//	  "data": {"clinic_id": "...", "current_token": 4, "no_shows": [2]},
//	  "metadata": {"timestamp": "2026-03-02T09:15:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError carries a machine-readable code and a human-readable message.
//
// Codes in use:
//   - VALIDATION_ERROR: malformed or out-of-range input
//   - CONFIRMATION_REQUIRED: a destructive action was sent without confirm=true
//   - NOT_FOUND: unknown clinic or session, or a session outside the clinic
//   - CONFLICT: clinic slug already taken
//   - PERSISTENCE_ERROR: the store rejected or failed the operation
//   - RATE_LIMIT_EXCEEDED: too many requests
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// CreateClinicRequest is the body of POST /api/v1/clinics.
type CreateClinicRequest struct {
	Slug string `json:"slug" validate:"required,max=64,slug"`
	Name string `json:"name" validate:"required,max=128"`
}

// CreateSessionRequest is the body of POST /api/v1/clinics/{slug}/sessions.
type CreateSessionRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

// EndSessionRequest is the body of POST .../sessions/{id}/end.
type EndSessionRequest struct {
	Confirm bool `json:"confirm"`
}

// AdvanceRequest is the body of POST .../token/advance. A missing no_shows
// keeps the stored set; an empty array clears it.
type AdvanceRequest struct {
	CurrentToken int   `json:"current_token" validate:"min=1,max=2147483647"`
	NoShows      []int `json:"no_shows,omitempty" validate:"omitempty,dive,min=0,max=2147483647"`
}

// ManualSetRequest is the body of POST .../token/manual. Value is free text
// from the operator's input box.
type ManualSetRequest struct {
	Value string `json:"value"`
}

// RequeueRequest is the body of POST .../token/requeue.
type RequeueRequest struct {
	Token int `json:"token" validate:"min=0,max=2147483647"`
}

// ActiveSessionResponse describes the active session of a clinic. Both fields
// are null when no session is active.
type ActiveSessionResponse struct {
	Session    *Session    `json:"session"`
	TokenState *TokenState `json:"token_state"`
}

// ManualSetResponse reports whether a manual set was applied. When Applied
// is false TokenState is the unchanged stored state.
type ManualSetResponse struct {
	Applied    bool        `json:"applied"`
	TokenState *TokenState `json:"token_state"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status   string `json:"status"`
	Store    string `json:"store,omitempty"`
	Notifier string `json:"notifier,omitempty"`
	Uptime   string `json:"uptime,omitempty"`
}
