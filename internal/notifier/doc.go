// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

/*
Package notifier broadcasts committed queue changes to live viewers.

Two keyed channels exist:

  - queue.token_state.<session_id> carries the full TokenState row after
    every write to it.
  - queue.sessions.<clinic_id> carries the full Session row after every
    activation or deactivation in the clinic.

# Backends

The Broker runs on any watermill Publisher/Subscriber pair. Two are wired:

	memory  watermill GoChannel, single process (default)
	nats    core NATS via watermill-nats, optionally against EmbeddedServer

Delivery is at-least-once and best-effort ordered: events for one key arrive
in publish order for a connected subscriber. Nothing is replayed. When the
NATS connection comes back after a drop, every open Stream receives a
KindResync event and the receiver is expected to re-read the store.

# Usage

	b := notifier.NewMemory(16)
	defer b.Close()

	stream, err := b.SubscribeTokenState(ctx, sessionID)
	if err != nil {
	    return err
	}
	defer stream.Close()

	for ev := range stream.Events() {
	    switch ev.Kind {
	    case notifier.KindTokenState:
	        apply(ev.TokenState)
	    case notifier.KindResync:
	        reseed()
	    }
	}

A slow receiver never blocks publishers: when its buffer is full the oldest
pending event is discarded.
*/
package notifier
