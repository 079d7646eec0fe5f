// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

/*
Package store defines persistence for clinics, sessions and token state.

Implementations:

  - Memory: process-local maps, used by tests and DATABASE_DRIVER=memory
  - duckdb.Store: embedded DuckDB file (subpackage duckdb)
  - postgres.Store: PostgreSQL through pgxpool with goose migrations (subpackage postgres)

Breaker wraps any Store with a sony/gobreaker circuit breaker. ErrNotFound and
ErrConflict are treated as successful calls so that lookups of unknown slugs
never open the circuit.

Seed creates the demo clinic and its sessions at startup. It is idempotent.

All implementations return clones; callers own what they receive.
*/
package store
