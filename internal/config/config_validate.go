// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateNotifier(); err != nil {
		return err
	}
	if err := c.validateViewer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateSeed(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverMemory:
		return nil
	case DriverDuckDB:
		if c.Database.Path == "" {
			return fmt.Errorf("DUCKDB_PATH is required when DATABASE_DRIVER=duckdb")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER=postgres")
		}
		if c.Database.MaxConns < 1 {
			return fmt.Errorf("DATABASE_MAX_CONNS must be at least 1")
		}
	default:
		return fmt.Errorf("DATABASE_DRIVER must be one of memory, duckdb, postgres, got %q", c.Database.Driver)
	}
	if c.Database.BreakerThreshold > 0 && c.Database.BreakerTimeout <= 0 {
		return fmt.Errorf("DB_BREAKER_TIMEOUT must be positive when the circuit breaker is enabled")
	}
	return nil
}

func (c *Config) validateNotifier() error {
	if c.Notifier.BufferSize < 1 {
		return fmt.Errorf("NOTIFIER_BUFFER_SIZE must be at least 1")
	}
	switch c.Notifier.Backend {
	case NotifierMemory:
		return nil
	case NotifierNATS:
	default:
		return fmt.Errorf("NOTIFIER_BACKEND must be memory or nats, got %q", c.Notifier.Backend)
	}

	if c.Notifier.EmbeddedServer {
		if c.Notifier.EmbeddedPort < 1 || c.Notifier.EmbeddedPort > 65535 {
			return fmt.Errorf("NATS_EMBEDDED_PORT must be between 1 and 65535")
		}
		return nil
	}

	u, err := url.Parse(c.Notifier.URL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("NATS_URL is invalid: %q", c.Notifier.URL)
	}
	if u.Scheme != "nats" && u.Scheme != "tls" {
		return fmt.Errorf("NATS_URL must use nats:// or tls://, got %q", u.Scheme)
	}
	return nil
}

func (c *Config) validateViewer() error {
	if c.Viewer.HeartbeatInterval <= 0 {
		return fmt.Errorf("VIEWER_HEARTBEAT must be positive")
	}
	if c.Viewer.ResubscribeBackoff <= 0 {
		return fmt.Errorf("VIEWER_RESUBSCRIBE_WAIT must be positive")
	}
	if c.Viewer.ResubscribeMaxBackoff < c.Viewer.ResubscribeBackoff {
		return fmt.Errorf("VIEWER_RESUBSCRIBE_MAX must not be lower than VIEWER_RESUBSCRIBE_WAIT")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQS must be at least 1")
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateSeed() error {
	if !c.Seed.Enabled {
		return nil
	}
	if !slugPattern.MatchString(c.Seed.ClinicSlug) {
		return fmt.Errorf("SEED_CLINIC_SLUG %q must be lowercase letters, digits and single dashes", c.Seed.ClinicSlug)
	}
	if strings.TrimSpace(c.Seed.ClinicName) == "" {
		return fmt.Errorf("SEED_CLINIC_NAME is required when SEED_DEMO=true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}
