// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package config

import (
	"fmt"
	"time"
)

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

// Notifier backends.
const (
	NotifierMemory = "memory"
	NotifierNATS   = "nats"
)

// Config is the root configuration for the server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Notifier NotifierConfig `koanf:"notifier"`
	Viewer   ViewerConfig   `koanf:"viewer"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
	Seed     SeedConfig     `koanf:"seed"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig selects and tunes the Token State Store backend.
type DatabaseConfig struct {
	Driver    string `koanf:"driver"`     // memory, duckdb or postgres
	Path      string `koanf:"path"`       // DuckDB file path (":memory:" allowed)
	MaxMemory string `koanf:"max_memory"` // DuckDB max_memory setting
	URL       string `koanf:"url"`        // PostgreSQL connection string
	MaxConns  int32  `koanf:"max_conns"`  // pgxpool max connections

	// Circuit breaker around the store. Threshold 0 disables the breaker.
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

// NotifierConfig selects the Change Notifier transport.
type NotifierConfig struct {
	Backend        string        `koanf:"backend"` // memory or nats
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	EmbeddedHost   string        `koanf:"embedded_host"`
	EmbeddedPort   int           `koanf:"embedded_port"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
	MaxReconnects  int           `koanf:"max_reconnects"` // -1 retries forever
	BufferSize     int           `koanf:"buffer_size"`    // per-subscription event buffer
}

// ViewerConfig tunes viewer sessions and the websocket heartbeat.
type ViewerConfig struct {
	HeartbeatInterval     time.Duration `koanf:"heartbeat_interval"`
	ResubscribeBackoff    time.Duration `koanf:"resubscribe_backoff"`
	ResubscribeMaxBackoff time.Duration `koanf:"resubscribe_max_backoff"`
}

// SecurityConfig holds CORS and rate limiting settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`
}

// SeedConfig describes the demo clinic created at startup.
type SeedConfig struct {
	Enabled    bool     `koanf:"enabled"`
	ClinicSlug string   `koanf:"clinic_slug"`
	ClinicName string   `koanf:"clinic_name"`
	Sessions   []string `koanf:"sessions"`
}

// Load reads configuration from defaults, config file, .env and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
