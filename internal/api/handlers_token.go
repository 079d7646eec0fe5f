// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/nowserving/internal/logging"
	"github.com/tomtom215/nowserving/internal/models"
	"github.com/tomtom215/nowserving/internal/queue"
)

// tokenOp is a token state read or write scoped to one clinic and session.
type tokenOp func(ctx context.Context, clinicID, sessionID string) (*models.TokenState, error)

// runTokenOp resolves the clinic and applies op, responding with the new
// token state.
func (h *Handler) runTokenOp(w http.ResponseWriter, r *http.Request, op tokenOp) {
	start := time.Now()
	clinic, ok := h.clinicFromPath(w, r)
	if !ok {
		return
	}

	ts, err := op(r.Context(), clinic.ID, sessionParam(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, ts, start)
}

// TokenState handles GET .../sessions/{sessionID}/token.
func (h *Handler) TokenState(w http.ResponseWriter, r *http.Request) {
	h.runTokenOp(w, r, h.queue.TokenState)
}

// Advance handles POST .../token/advance. A missing no_shows keeps the
// stored set.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	var req models.AdvanceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.runTokenOp(w, r, func(ctx context.Context, clinicID, sessionID string) (*models.TokenState, error) {
		return h.queue.Advance(ctx, clinicID, sessionID, req.CurrentToken, req.NoShows)
	})
}

// NextPatient handles POST .../token/next.
func (h *Handler) NextPatient(w http.ResponseWriter, r *http.Request) {
	h.runTokenOp(w, r, h.queue.NextPatient)
}

// MarkNoShow handles POST .../token/no-show.
func (h *Handler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	h.runTokenOp(w, r, h.queue.MarkNoShow)
}

// RequeueNoShow handles POST .../token/requeue.
func (h *Handler) RequeueNoShow(w http.ResponseWriter, r *http.Request) {
	var req models.RequeueRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.runTokenOp(w, r, func(ctx context.Context, clinicID, sessionID string) (*models.TokenState, error) {
		return h.queue.RequeueNoShow(ctx, clinicID, sessionID, req.Token)
	})
}

// ManualSet handles POST .../token/manual. Operator input that is rejected
// is not an HTTP error: the response is 200 with applied=false and the
// unchanged token state, so the admin screen simply keeps showing it.
func (h *Handler) ManualSet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	clinic, ok := h.clinicFromPath(w, r)
	if !ok {
		return
	}
	var req models.ManualSetRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	sessionID := sessionParam(r)

	ts, err := h.queue.ManualSet(r.Context(), clinic.ID, sessionID, req.Value)
	if err == nil {
		respondSuccess(w, http.StatusOK, models.ManualSetResponse{Applied: true, TokenState: ts}, start)
		return
	}
	if !errors.Is(err, queue.ErrValidation) {
		respondServiceError(w, err)
		return
	}

	logging.Ctx(r.Context()).Debug().Err(err).Str("session_id", sessionID).Msg("Manual set ignored")
	current, readErr := h.queue.TokenState(r.Context(), clinic.ID, sessionID)
	if readErr != nil {
		respondServiceError(w, readErr)
		return
	}
	respondSuccess(w, http.StatusOK, models.ManualSetResponse{Applied: false, TokenState: current}, start)
}
