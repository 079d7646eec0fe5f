// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package notifier

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/nowserving/internal/logging"
)

// NATSConfig configures the NATS backend.
type NATSConfig struct {
	URL           string
	ReconnectWait time.Duration
	MaxReconnects int // -1 retries forever
	BufferSize    int

	AckWaitTimeout time.Duration
	CloseTimeout   time.Duration
}

// DefaultNATSConfig returns production defaults for url.
func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:            url,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		BufferSize:     DefaultBufferSize,
		AckWaitTimeout: 30 * time.Second,
		CloseTimeout:   5 * time.Second,
	}
}

// NewNATS returns a Broker that publishes over core NATS, so every process
// connected to the same server sees every change. JetStream is not used:
// events are not replayed, and a reconnect is surfaced to subscribers as a
// KindResync event instead.
func NewNATS(cfg NATSConfig) (*Broker, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats notifier: url is required")
	}
	if cfg.AckWaitTimeout <= 0 {
		cfg.AckWaitTimeout = 30 * time.Second
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 5 * time.Second
	}

	// The broker does not exist yet when the connection handlers are built.
	var ref atomic.Pointer[Broker]
	logger := logging.NewWatermillAdapter("notifier")
	zl := logging.WithComponent("notifier")

	connOpts := func(role string) []natsgo.Option {
		return []natsgo.Option{
			natsgo.Name("nowserving-" + role),
			natsgo.RetryOnFailedConnect(true),
			natsgo.MaxReconnects(cfg.MaxReconnects),
			natsgo.ReconnectWait(cfg.ReconnectWait),
			natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
				if b := ref.Load(); b != nil {
					b.setConnected(false)
				}
				if err != nil {
					zl.Warn().Err(err).Str("role", role).Msg("NATS disconnected")
				}
			}),
			natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
				zl.Info().Str("role", role).Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
				b := ref.Load()
				if b == nil {
					return
				}
				b.setConnected(true)
				// Core NATS drops whatever was published while this
				// connection was away.
				if role == "subscriber" {
					b.Resync()
				}
			}),
			natsgo.ErrorHandler(func(nc *natsgo.Conn, sub *natsgo.Subscription, err error) {
				subject := ""
				if sub != nil {
					subject = sub.Subject
				}
				zl.Error().Err(err).Str("role", role).Str("subject", subject).Msg("NATS error")
			}),
		}
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: connOpts("publisher"),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled: true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL: cfg.URL,
		// No queue group: every process receives every event.
		QueueGroupPrefix: "",
		SubscribersCount: 1,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      connOpts("subscriber"),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled: true,
		},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	broker := newBroker("nats", pub, sub, cfg.BufferSize, sub.Close, pub.Close)
	ref.Store(broker)
	zl.Info().Str("url", cfg.URL).Msg("NATS notifier connected")
	return broker, nil
}
