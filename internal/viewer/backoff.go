// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package viewer

import (
	"context"
	"math"
	"time"
)

// Backoff is the delay schedule between resubscribe attempts.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff returns the production schedule.
func DefaultBackoff() Backoff {
	return Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second}
}

// delay returns Base * 2^attempt, capped at Max.
func (b Backoff) delay(attempt int) time.Duration {
	base, maxDelay := b.Base, b.Max
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if maxDelay < base {
		maxDelay = base
	}
	if attempt > 30 {
		return maxDelay
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d <= 0 || d > maxDelay {
		return maxDelay
	}
	return d
}

// wait sleeps for the attempt's delay. It returns false when ctx ends first.
func (b Backoff) wait(ctx context.Context, attempt int) bool {
	t := time.NewTimer(b.delay(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
