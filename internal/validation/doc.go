// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

// Package validation provides struct validation using go-playground/validator v10.
//
// A thread-safe singleton validator is initialized once with the custom
// validators the API needs. Errors are reported by JSON field name and
// convert to the VALIDATION_ERROR envelope used by every handler.
//
// # Quick Start
//
//	var req models.CreateClinicRequest
//	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
//	    // handle decode error
//	}
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	    return
//	}
//
// # Custom Validators
//
//   - slug: lowercase letters and digits in hyphen-separated words
//     (`^[a-z0-9]+(?:-[a-z0-9]+)*$`), used for clinic slugs. IsSlug exposes
//     the same check to code that does not validate a struct.
//
// # Thread Safety
//
// GetValidator and ValidateStruct are safe for concurrent use. The
// underlying validator caches struct metadata after first use.
package validation
