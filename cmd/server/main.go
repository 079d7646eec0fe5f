// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/nowserving/internal/api"
	"github.com/tomtom215/nowserving/internal/config"
	"github.com/tomtom215/nowserving/internal/logging"
	"github.com/tomtom215/nowserving/internal/queue"
	"github.com/tomtom215/nowserving/internal/supervisor"
	"github.com/tomtom215/nowserving/internal/supervisor/services"
	"github.com/tomtom215/nowserving/internal/viewer"
	ws "github.com/tomtom215/nowserving/internal/websocket"
)

// closeTimeout bounds closing the notifier and embedded server after the
// tree has stopped.
const closeTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("driver", cfg.Database.Driver).
		Str("notifier", cfg.Notifier.Backend).
		Str("addr", cfg.Server.Addr()).
		Msg("Starting NowServing with supervisor tree")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server stopped with error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

// run owns every resource so deferred closes happen before main exits.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	if err := seedStore(ctx, st, &cfg.Seed); err != nil {
		return err
	}

	notif, err := initNotifier(&cfg.Notifier)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
		defer closeCancel()
		notif.close(closeCtx)
	}()

	svc := queue.NewService(st, notif.broker)
	hub := ws.NewHub()

	handler := api.NewHandler(api.Dependencies{
		Queue:    svc,
		Store:    st,
		Notifier: notif.broker,
		Hub:      hub,
		Viewer: viewer.Deps{
			Backend: svc,
			Feed:    notif.broker,
			Backoff: viewer.Backoff{
				Base: cfg.Viewer.ResubscribeBackoff,
				Max:  cfg.Viewer.ResubscribeMaxBackoff,
			},
		},
		Config: cfg,
	})
	router := api.NewRouter(handler, api.NewChiMiddlewareFromConfig(cfg))

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(services.NewHeartbeatService(hub, cfg.Viewer.HeartbeatInterval))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	errCh := tree.ServeBackground(ctx)

	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			treeErr = err
		}
		cancel()
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}
	return treeErr
}
