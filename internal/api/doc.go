// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

/*
Package api provides the HTTP layer of the queue display service.

Routes (Chi router):

	GET  /api/v1/health/live
	GET  /api/v1/health/ready
	POST /api/v1/clinics
	GET  /api/v1/clinics/{slug}
	GET  /api/v1/clinics/{slug}/active
	GET  /api/v1/clinics/{slug}/sessions
	POST /api/v1/clinics/{slug}/sessions
	POST /api/v1/clinics/{slug}/sessions/{sessionID}/start
	POST /api/v1/clinics/{slug}/sessions/{sessionID}/end
	GET  /api/v1/clinics/{slug}/sessions/{sessionID}/token
	POST /api/v1/clinics/{slug}/sessions/{sessionID}/token/{advance,next,no-show,manual,requeue}
	GET  /ws/clinics/{slug}?role=customer|admin
	GET  /metrics

Every JSON response uses the models.APIResponse envelope. Queue errors map
to HTTP statuses in errors.go: NOT_FOUND 404, VALIDATION_ERROR and
CONFIRMATION_REQUIRED 400, CONFLICT 409, PERSISTENCE_ERROR 503.

A session addressed under a clinic it does not belong to is not found. A
manual set with a value that is not a token number is answered with 200
and applied=false so the admin display keeps the stored state.

Middleware order: request ID, real IP, panic recovery and CORS globally;
rate limiting, Prometheus metrics and gzip on the queue API.
*/
package api
