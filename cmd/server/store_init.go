// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/nowserving/internal/config"
	"github.com/tomtom215/nowserving/internal/logging"
	"github.com/tomtom215/nowserving/internal/store"
	"github.com/tomtom215/nowserving/internal/store/duckdb"
	"github.com/tomtom215/nowserving/internal/store/postgres"
)

// openStore opens the configured driver and prepares its schema. External
// drivers are wrapped in the circuit breaker.
func openStore(ctx context.Context, cfg *config.DatabaseConfig) (store.Store, error) {
	breaker := store.BreakerConfig{
		Threshold: cfg.BreakerThreshold,
		Timeout:   cfg.BreakerTimeout,
	}

	switch cfg.Driver {
	case config.DriverMemory, "":
		logging.Warn().Msg("Using in-memory store, queue state is lost on restart")
		return store.NewMemory(), nil

	case config.DriverDuckDB:
		db, err := duckdb.Open(ctx, duckdb.Config{Path: cfg.Path, MaxMemory: cfg.MaxMemory})
		if err != nil {
			return nil, fmt.Errorf("open duckdb store: %w", err)
		}
		logging.Info().Str("path", cfg.Path).Msg("DuckDB store opened")
		breaker.Name = "duckdb"
		return store.NewBreaker(db, breaker), nil

	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, postgres.Config{URL: cfg.URL, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("migrate postgres store: %w", err)
		}
		logging.Info().Msg("PostgreSQL store opened and migrated")
		breaker.Name = "postgres"
		return store.NewBreaker(pg, breaker), nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// seedStore creates the demo clinic when seeding is enabled.
func seedStore(ctx context.Context, st store.Store, cfg *config.SeedConfig) error {
	if !cfg.Enabled {
		return nil
	}
	clinic, err := store.Seed(ctx, st, cfg.ClinicSlug, cfg.ClinicName, cfg.Sessions)
	if err != nil {
		return err
	}
	logging.Info().
		Str("clinic_id", clinic.ID).
		Str("slug", clinic.Slug).
		Strs("sessions", cfg.Sessions).
		Msg("Seed clinic ready")
	return nil
}
