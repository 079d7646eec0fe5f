// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

/*
Package viewer keeps admin and customer displays converged on the live queue.

QueueState follows one session's token state: it subscribes, seeds with a
point read, then overwrites its view with every event. A lost subscription
or a transport resync marks the view stale and is always followed by a
fresh point read, because nothing is replayed across a reconnect.

Session is the per-screen state machine. It resolves a clinic slug, finds
the active session, and owns at most one QueueState at a time:

	s := viewer.NewSession(viewer.RoleCustomer, deps, func(v viewer.View) {
	    render(v)
	})
	if err := s.Mount(ctx, "city-health"); err != nil {
	    return err
	}
	defer s.Close()

Customer screens flip to StateNoActiveSession as soon as the active session
is ended, without a reload.
*/
package viewer
