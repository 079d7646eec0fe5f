// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

// Package queue implements the mutation API of the now-serving queue.
//
// Every change to session activation or token state goes through Service.
// Advance is the single write primitive; NextPatient, MarkNoShow, ManualSet
// and RequeueNoShow are expressed in terms of it:
//
//	NextPatient     Advance(current+1)
//	MarkNoShow      Advance(current+1, no_shows ∪ {current})
//	ManualSet(v)    Advance(v)                  v must parse as an integer
//	RequeueNoShow   Advance(current, no_shows \ {token})
//
// Each write fully replaces the stored row. Concurrent writers are
// last-write-wins; there is no version check.
//
// Errors are ErrNotFound, ErrValidation, ErrPersistence, ErrConflict and
// ErrConfirmationRequired, tested with errors.Is. Store failures never
// leave a partial write behind.
package queue
