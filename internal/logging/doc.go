// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

// Package logging provides the process-wide zerolog logger for NowServing.
//
// JSON output is the default; console output is available for development.
// The package also bridges zerolog into the two other logging interfaces
// used by the service's dependencies:
//
//   - SlogHandler / NewSlogLogger for suture's sutureslog event hook
//   - WatermillAdapter for the notifier's Watermill publishers and subscribers
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("clinic", "city-health").Msg("Session started")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Advance rejected")
//
// Always terminate event chains with .Msg() or .Send(); an unterminated
// chain is silently dropped.
package logging
