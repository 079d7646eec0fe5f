// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

/*
Package models defines data structures shared across NowServing.

Key Components:

  - Clinic: a clinic addressed by a URL-stable slug
  - Session: a named queue period of a clinic; at most one is active per clinic
  - TokenState: the "now serving" number plus the no-show set of a session
  - APIResponse: standardized HTTP response wrapper
  - Request types: JSON bodies accepted by the HTTP API, with validator tags

Persisted row shapes:

	Session    {id, clinic_id, name, is_active}
	TokenState {clinic_id, session_id, current_token, no_shows: array<int>, last_updated}

TokenState is always replaced as a whole. NoShows is kept sorted and free of
duplicates so that two states with the same members compare equal.

Thread Safety:

Model values are not synchronized. Stores and the notifier hand out clones, so
callers may modify what they receive.
*/
package models
