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
	"github.com/tomtom215/nowserving/internal/notifier"
)

// notifierComponents owns the broker and, for the embedded NATS setup, the
// server it connects to.
type notifierComponents struct {
	broker   *notifier.Broker
	embedded *notifier.EmbeddedServer
}

// initNotifier builds the configured broker. With embedded_server set the
// NATS server is started first and the broker connects to its client URL.
func initNotifier(cfg *config.NotifierConfig) (*notifierComponents, error) {
	switch cfg.Backend {
	case config.NotifierMemory, "":
		logging.Info().Msg("Using in-process change notifier")
		return &notifierComponents{broker: notifier.NewMemory(cfg.BufferSize)}, nil

	case config.NotifierNATS:
		c := &notifierComponents{}
		url := cfg.URL
		if cfg.EmbeddedServer {
			srv, err := notifier.NewEmbeddedServer(notifier.ServerConfig{
				Host: cfg.EmbeddedHost,
				Port: cfg.EmbeddedPort,
			})
			if err != nil {
				return nil, fmt.Errorf("start embedded NATS server: %w", err)
			}
			c.embedded = srv
			url = srv.ClientURL()
			logging.Info().Str("url", url).Msg("Embedded NATS server started")
		}

		natsCfg := notifier.DefaultNATSConfig(url)
		natsCfg.ReconnectWait = cfg.ReconnectWait
		natsCfg.MaxReconnects = cfg.MaxReconnects
		if cfg.BufferSize > 0 {
			natsCfg.BufferSize = cfg.BufferSize
		}

		broker, err := notifier.NewNATS(natsCfg)
		if err != nil {
			c.close(context.Background())
			return nil, fmt.Errorf("connect NATS notifier: %w", err)
		}
		c.broker = broker
		logging.Info().Str("url", url).Msg("NATS change notifier connected")
		return c, nil

	default:
		return nil, fmt.Errorf("unknown notifier backend %q", cfg.Backend)
	}
}

// close shuts the broker down before the server it is connected to.
func (c *notifierComponents) close(ctx context.Context) {
	if c.broker != nil {
		if err := c.broker.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing change notifier")
		}
	}
	if c.embedded != nil {
		if err := c.embedded.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("Error shutting down embedded NATS server")
		}
	}
}
