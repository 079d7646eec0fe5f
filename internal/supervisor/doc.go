// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

/*
Package supervisor provides process supervision for the queue display
service using suture v4.

# Overview

Long-running services are organized into two layers for failure isolation:

	RootSupervisor ("nowserving")
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocketHubService
	│   └── HeartbeatService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crashed hub is restarted without touching the HTTP listener. Displays that
were connected to the crashed hub are closed and reconnect on their own; the
queue API keeps accepting mutations meanwhile.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(services.NewHeartbeatService(hub, cfg.Viewer.HeartbeatInterval))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	errCh := tree.ServeBackground(ctx)
	<-ctx.Done()
	<-errCh

# Configuration

TreeConfig zero values take suture's defaults: 5 failures before backoff,
30s failure decay, 15s backoff and a 10s per-service shutdown timeout.

# What Is NOT Supervised

The store, the change notifier and the embedded NATS server are opened
before the tree starts and closed after it stops. The notifier reconnects on
its own and viewers resubscribe with backoff, so none of them has a Serve
loop to restart.

# Debugging Shutdown Issues

	report, _ := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    logging.Warn().Str("service", svc.Name).Msg("Service did not stop")
	}
*/
package supervisor
