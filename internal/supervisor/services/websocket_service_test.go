// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/nowserving/internal/websocket"
)

type fakeHub struct {
	runErr error
}

func (f *fakeHub) RunWithContext(ctx context.Context) error {
	if f.runErr != nil {
		return f.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestWebSocketHubService_Serve(t *testing.T) {
	t.Run("returns context error on shutdown", func(t *testing.T) {
		svc := NewWebSocketHubService(&fakeHub{})
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
	})

	t.Run("propagates hub errors", func(t *testing.T) {
		hubErr := errors.New("hub crashed")
		svc := NewWebSocketHubService(&fakeHub{runErr: hubErr})

		if err := svc.Serve(context.Background()); !errors.Is(err, hubErr) {
			t.Errorf("expected %v, got %v", hubErr, err)
		}
	})

	if got := NewWebSocketHubService(&fakeHub{}).String(); got != "websocket-hub" {
		t.Errorf("String() = %q", got)
	}
}

func TestWebSocketHubService_RealHubRestarts(t *testing.T) {
	hub := websocket.NewHub()
	var _ suture.Service = NewWebSocketHubService(hub)

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- NewWebSocketHubService(hub).Serve(ctx) }()

		time.Sleep(10 * time.Millisecond)
		cancel()
		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("run %d: expected context.Canceled, got %v", i, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("run %d: hub did not stop", i)
		}
		select {
		case <-hub.Done():
		default:
			t.Errorf("run %d: Done not closed after stop", i)
		}
	}
}
