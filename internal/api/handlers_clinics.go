// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/nowserving/internal/models"
)

// clinicFromPath resolves the {slug} path parameter, writing the error
// response when it cannot.
func (h *Handler) clinicFromPath(w http.ResponseWriter, r *http.Request) (*models.Clinic, bool) {
	clinic, err := h.queue.ResolveClinic(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondServiceError(w, err)
		return nil, false
	}
	return clinic, true
}

// CreateClinic handles POST /api/v1/clinics.
func (h *Handler) CreateClinic(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req models.CreateClinicRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	clinic, err := h.queue.CreateClinic(r.Context(), req.Slug, req.Name)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, http.StatusCreated, clinic, start)
}

// GetClinic handles GET /api/v1/clinics/{slug}.
func (h *Handler) GetClinic(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	clinic, ok := h.clinicFromPath(w, r)
	if !ok {
		return
	}
	respondSuccess(w, http.StatusOK, clinic, start)
}

// ListSessions handles GET /api/v1/clinics/{slug}/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	clinic, ok := h.clinicFromPath(w, r)
	if !ok {
		return
	}

	sessions, err := h.queue.ListSessions(r.Context(), clinic.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	respondSuccess(w, http.StatusOK, sessions, start)
}

// CreateSession handles POST /api/v1/clinics/{slug}/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	clinic, ok := h.clinicFromPath(w, r)
	if !ok {
		return
	}
	var req models.CreateSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sess, err := h.queue.AddSession(r.Context(), clinic.ID, req.Name)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, http.StatusCreated, sess, start)
}

// ActiveSession handles GET /api/v1/clinics/{slug}/active. Both fields are
// null when no session is active.
func (h *Handler) ActiveSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	clinic, ok := h.clinicFromPath(w, r)
	if !ok {
		return
	}

	sess, ts, err := h.queue.ActiveSession(r.Context(), clinic.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, models.ActiveSessionResponse{Session: sess, TokenState: ts}, start)
}

// StartSession handles POST .../sessions/{sessionID}/start.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	clinic, ok := h.clinicFromPath(w, r)
	if !ok {
		return
	}

	ts, err := h.queue.StartSession(r.Context(), clinic.ID, sessionParam(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, ts, start)
}

// EndSession handles POST .../sessions/{sessionID}/end. The body must carry
// {"confirm": true}.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	clinic, ok := h.clinicFromPath(w, r)
	if !ok {
		return
	}
	var req models.EndSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sess, err := h.queue.EndSession(r.Context(), clinic.ID, sessionParam(r), req.Confirm)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, sess, start)
}
