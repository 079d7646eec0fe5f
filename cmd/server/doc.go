// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

/*
Package main is the entry point for the NowServing server.

NowServing drives the "now serving" displays of a clinic: an admin screen
where staff advance the token queue and customer screens in the waiting room
that follow it live.

# Application Architecture

	RootSupervisor ("nowserving")
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocket Hub (display connections)
	│   └── Heartbeat (keeps idle displays alive)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (queue API, display websocket, /metrics)

Startup order:

 1. Configuration: Koanf v2 (defaults, config.yaml, .env, environment)
 2. Logging: zerolog
 3. Store: memory, DuckDB or PostgreSQL (goose migrations), the last two
    behind a circuit breaker
 4. Seed clinic (SEED_DEMO=true)
 5. Change notifier: in-process, or NATS with an optional embedded server
 6. Queue service, websocket hub and router
 7. Supervisor tree

# Signal Handling

SIGINT and SIGTERM cancel the tree. The HTTP server drains for
HTTP_SHUTDOWN_TIMEOUT, the hub closes every display, and then the
notifier, the embedded NATS server and the store are closed in that order.

# Example Usage

Single node with DuckDB:

	export DATABASE_DRIVER=duckdb
	export DUCKDB_PATH=/data/nowserving.duckdb
	export CORS_ORIGINS=https://display.example.org
	./nowserving

Several API nodes sharing PostgreSQL and NATS:

	export DATABASE_DRIVER=postgres
	export DATABASE_URL=postgres://queue:secret@db:5432/queue
	export NOTIFIER_BACKEND=nats
	export NATS_URL=nats://nats:4222
	./nowserving
*/
package main
