// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/nowserving/internal/queue"
)

// Error codes returned in models.APIError.Code.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeValidation           = "VALIDATION_ERROR"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeConflict             = "CONFLICT"
	CodePersistence          = "PERSISTENCE_ERROR"
	CodeInternal             = "INTERNAL_ERROR"
)

// errorStatus maps a queue error to its HTTP status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, queue.ErrConfirmationRequired):
		return http.StatusBadRequest, CodeConfirmationRequired
	case errors.Is(err, queue.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, queue.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, queue.ErrPersistence):
		return http.StatusServiceUnavailable, CodePersistence
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// respondServiceError writes the envelope for an error from the queue
// service. Client errors keep their message; server errors are generic.
func respondServiceError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		message = "The queue store is unavailable, try again"
	case http.StatusInternalServerError:
		message = "Internal server error"
	}
	respondError(w, status, code, message, err)
}
