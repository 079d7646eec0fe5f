// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

/*
Package metrics provides Prometheus metrics for NowServing.

Collectors are registered on the default registry with promauto and exposed at
/metrics through promhttp.

# Available Metrics

HTTP:
  - api_requests_total{method,endpoint,status}
  - api_request_duration_seconds{method,endpoint}
  - api_active_requests

Store:
  - store_query_duration_seconds{operation,table}
  - store_query_errors_total{operation,table,error_type}
  - store_circuit_breaker_state{name}: 0 closed, 1 half-open, 2 open
  - store_circuit_breaker_requests_total{name,result}

Queue and realtime:
  - queue_mutations_total{operation,result}
  - notifier_events_published_total{kind,result}
  - notifier_events_delivered_total{kind}
  - notifier_active_subscriptions
  - viewer_resyncs_total{reason}
  - websocket_connections{role}
  - websocket_messages_sent_total

# Example Queries

Mutation error rate:

	sum(rate(queue_mutations_total{result!="ok"}[5m])) / sum(rate(queue_mutations_total[5m]))

Viewers currently reconnecting:

	increase(viewer_resyncs_total{reason="dropped"}[5m])
*/
package metrics
