// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

// Package duckdb implements store.Store on an embedded DuckDB database.
//
// no_shows is kept as a JSON array in a VARCHAR column. Writes are serialized
// through a process-wide mutex because DuckDB reports concurrent updates of
// the same rows as transaction conflicts instead of waiting.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/nowserving/internal/logging"
	"github.com/tomtom215/nowserving/internal/metrics"
	"github.com/tomtom215/nowserving/internal/store"
)

// Config holds DuckDB connection settings.
type Config struct {
	// Path is the database file. ":memory:" opens a private in-memory database.
	Path      string
	MaxMemory string
	Threads   int
}

// Store is a DuckDB-backed store.Store.
type Store struct {
	conn    *sql.DB
	path    string
	writeMu sync.Mutex
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS clinics (
	id         VARCHAR PRIMARY KEY,
	slug       VARCHAR NOT NULL UNIQUE,
	name       VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS sessions (
	id         VARCHAR PRIMARY KEY,
	clinic_id  VARCHAR NOT NULL,
	name       VARCHAR NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_clinic ON sessions (clinic_id)`, `
CREATE TABLE IF NOT EXISTS token_state (
	session_id    VARCHAR PRIMARY KEY,
	clinic_id     VARCHAR NOT NULL,
	current_token INTEGER NOT NULL CHECK (current_token >= 1),
	no_shows      VARCHAR NOT NULL DEFAULT '[]',
	last_updated  TIMESTAMP NOT NULL
)`,
}

// Open opens (or creates) the database and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	// Use 0750 permissions (owner: rwx, group: rx, other: none) per gosec G301
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	params := []string{
		fmt.Sprintf("threads=%d", threads),
		"autoinstall_known_extensions=false",
		"autoload_known_extensions=false",
	}
	if cfg.MaxMemory != "" {
		params = append(params, "max_memory="+cfg.MaxMemory)
	}
	connStr := path + "?" + strings.Join(params, "&")

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(runtime.NumCPU())
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	s := &Store{conn: conn, path: path}
	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			closeQuietly(conn)
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	logging.Info().Str("path", path).Msg("DuckDB store ready")
	return s, nil
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.conn.PingContext(ctx)
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if s.path != ":memory:" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, err := s.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
			logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
		}
		cancel()
	}
	return s.conn.Close()
}

// observe records a store operation. Missing rows and slug conflicts are
// expected outcomes and are not counted as errors.
func observe(operation, table string, start time.Time, err error) {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
		err = nil
	}
	metrics.RecordDBQuery(operation, table, time.Since(start), err)
}

func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key") || strings.Contains(msg, "unique constraint")
}
