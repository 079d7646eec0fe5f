// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/nowserving/config.yaml",
	"/etc/nowserving/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DotEnvPath is the optional dotenv file loaded into the process environment
// before environment variables are read. Existing variables win.
var DotEnvPath = ".env"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:           DriverDuckDB,
			Path:             "/data/nowserving.duckdb",
			MaxMemory:        "256MB",
			URL:              "",
			MaxConns:         10,
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		Notifier: NotifierConfig{
			Backend:        NotifierMemory,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			EmbeddedHost:   "127.0.0.1",
			EmbeddedPort:   4222,
			ReconnectWait:  2 * time.Second,
			MaxReconnects:  -1,
			BufferSize:     64,
		},
		Viewer: ViewerConfig{
			HeartbeatInterval:     15 * time.Second,
			ResubscribeBackoff:    500 * time.Millisecond,
			ResubscribeMaxBackoff: 30 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{},
			RateLimitReqs:     300,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Seed: SeedConfig{
			Enabled:    false,
			ClinicSlug: "city-health",
			ClinicName: "City Health Clinic",
			Sessions:   []string{"Morning"},
		},
	}
}

// LoadWithKoanf loads configuration in layers, later layers overriding earlier ones:
//
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (after loading an optional .env file)
//
// The result is validated before it is returned.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := loadDotEnv(DotEnvPath); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads path into the environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when they come from env vars.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"seed.sessions",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored so unrelated environment does not leak into config.
var envMappings = map[string]string{
	"http_host":               "server.host",
	"http_port":               "server.port",
	"http_read_timeout":       "server.read_timeout",
	"http_write_timeout":      "server.write_timeout",
	"http_shutdown_timeout":   "server.shutdown_timeout",
	"database_driver":         "database.driver",
	"duckdb_path":             "database.path",
	"duckdb_max_memory":       "database.max_memory",
	"database_url":            "database.url",
	"database_max_conns":      "database.max_conns",
	"db_breaker_threshold":    "database.breaker_threshold",
	"db_breaker_timeout":      "database.breaker_timeout",
	"notifier_backend":        "notifier.backend",
	"nats_url":                "notifier.url",
	"nats_embedded":           "notifier.embedded_server",
	"nats_embedded_host":      "notifier.embedded_host",
	"nats_embedded_port":      "notifier.embedded_port",
	"nats_reconnect_wait":     "notifier.reconnect_wait",
	"nats_max_reconnects":     "notifier.max_reconnects",
	"notifier_buffer_size":    "notifier.buffer_size",
	"viewer_heartbeat":        "viewer.heartbeat_interval",
	"viewer_resubscribe_wait": "viewer.resubscribe_backoff",
	"viewer_resubscribe_max":  "viewer.resubscribe_max_backoff",
	"cors_origins":            "security.cors_origins",
	"rate_limit_reqs":         "security.rate_limit_reqs",
	"rate_limit_window":       "security.rate_limit_window",
	"disable_rate_limit":      "security.rate_limit_disabled",
	"log_level":               "logging.level",
	"log_format":              "logging.format",
	"log_caller":              "logging.caller",
	"seed_demo":               "seed.enabled",
	"seed_clinic_slug":        "seed.clinic_slug",
	"seed_clinic_name":        "seed.clinic_name",
	"seed_sessions":           "seed.sessions",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - DATABASE_URL -> database.url
//   - NATS_EMBEDDED -> notifier.embedded_server
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
