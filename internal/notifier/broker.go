// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/tomtom215/nowserving/internal/logging"
	"github.com/tomtom215/nowserving/internal/metrics"
	"github.com/tomtom215/nowserving/internal/models"
)

var (
	// ErrSubscription is returned when a subscription cannot be opened.
	ErrSubscription = errors.New("subscription failed")

	// ErrClosed is returned by a Broker after Close.
	ErrClosed = errors.New("notifier closed")
)

// DefaultBufferSize is the per-subscription event buffer when none is configured.
const DefaultBufferSize = 16

// Stream is one open subscription. Events is closed when the subscription
// ends for any reason: Close, cancellation of the subscribe context, or the
// transport dropping it.
type Stream interface {
	Events() <-chan Event
	Close()
}

// Broker fans change events out to subscribers keyed by session or clinic.
// It is transport agnostic: any watermill Publisher/Subscriber pair works.
type Broker struct {
	backend    string
	pub        message.Publisher
	sub        message.Subscriber
	closers    []func() error
	bufferSize int
	logger     zerolog.Logger

	connected atomic.Bool

	mu      sync.Mutex
	closed  bool
	streams map[*stream]struct{}
}

func newBroker(backend string, pub message.Publisher, sub message.Subscriber, bufferSize int, closers ...func() error) *Broker {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	b := &Broker{
		backend:    backend,
		pub:        pub,
		sub:        sub,
		closers:    closers,
		bufferSize: bufferSize,
		logger:     logging.WithComponent("notifier").With().Str("backend", backend).Logger(),
		streams:    make(map[*stream]struct{}),
	}
	b.connected.Store(true)
	return b
}

// Backend names the transport ("memory" or "nats").
func (b *Broker) Backend() string {
	return b.backend
}

// Status reports "ok", "disconnected" or "closed".
func (b *Broker) Status() string {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	switch {
	case closed:
		return "closed"
	case !b.connected.Load():
		return "disconnected"
	default:
		return "ok"
	}
}

// PublishTokenState broadcasts the full row to subscribers of its session.
func (b *Broker) PublishTokenState(ctx context.Context, ts *models.TokenState) error {
	if ts == nil {
		return errors.New("publish token state: nil row")
	}
	return b.publish(ctx, TokenStateTopic(ts.SessionID), Event{
		Kind:       KindTokenState,
		ClinicID:   ts.ClinicID,
		SessionID:  ts.SessionID,
		TokenState: ts.Clone(),
	})
}

// PublishSession broadcasts the full row to subscribers of its clinic.
func (b *Broker) PublishSession(ctx context.Context, s *models.Session) error {
	if s == nil {
		return errors.New("publish session: nil row")
	}
	return b.publish(ctx, SessionsTopic(s.ClinicID), Event{
		Kind:      KindSession,
		ClinicID:  s.ClinicID,
		SessionID: s.ID,
		Session:   s.Clone(),
	})
}

func (b *Broker) publish(ctx context.Context, topic string, ev Event) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	ev.EmittedAt = time.Now().UTC()
	msg, err := encodeEvent(ev)
	if err != nil {
		metrics.RecordPublish(string(ev.Kind), err)
		return err
	}
	msg.SetContext(ctx)

	err = b.pub.Publish(topic, msg)
	metrics.RecordPublish(string(ev.Kind), err)
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", ev.Kind, topic, err)
	}

	b.logger.Debug().
		Str("topic", topic).
		Str("kind", string(ev.Kind)).
		Str("message_uuid", msg.UUID).
		Msg("Event published")
	return nil
}

// SubscribeTokenState opens a subscription to TokenState changes of sessionID.
func (b *Broker) SubscribeTokenState(ctx context.Context, sessionID string) (Stream, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrSubscription)
	}
	return b.subscribe(ctx, TokenStateTopic(sessionID))
}

// SubscribeSessions opens a subscription to Session changes of clinicID.
func (b *Broker) SubscribeSessions(ctx context.Context, clinicID string) (Stream, error) {
	if clinicID == "" {
		return nil, fmt.Errorf("%w: empty clinic id", ErrSubscription)
	}
	return b.subscribe(ctx, SessionsTopic(clinicID))
}

func (b *Broker) subscribe(ctx context.Context, topic string) (Stream, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := b.sub.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %s: %w", ErrSubscription, topic, err)
	}

	s := &stream{
		broker: b,
		topic:  topic,
		cancel: cancel,
		out:    make(chan Event, b.bufferSize),
		resync: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	b.streams[s] = struct{}{}
	b.mu.Unlock()

	metrics.TrackSubscription(true)
	go s.pump(subCtx, msgs)

	b.logger.Debug().Str("topic", topic).Msg("Subscription opened")
	return s, nil
}

// Resync tells every open subscription that deliveries may have been lost.
// Each receives a KindResync event.
func (b *Broker) Resync() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.streams {
		select {
		case s.resync <- struct{}{}:
		default:
		}
	}
	b.logger.Info().Int("subscriptions", len(b.streams)).Msg("Resync requested")
}

func (b *Broker) setConnected(ok bool) {
	b.connected.Store(ok)
}

func (b *Broker) forget(s *stream) {
	b.mu.Lock()
	_, ok := b.streams[s]
	delete(b.streams, s)
	b.mu.Unlock()
	if ok {
		metrics.TrackSubscription(false)
	}
}

// Close ends every open subscription and shuts the transport down.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	open := make([]*stream, 0, len(b.streams))
	for s := range b.streams {
		open = append(open, s)
	}
	b.mu.Unlock()

	for _, s := range open {
		s.Close()
	}

	var errs []error
	for _, closeFn := range b.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	b.logger.Info().Int("subscriptions_closed", len(open)).Msg("Notifier closed")
	return errors.Join(errs...)
}

type stream struct {
	broker *Broker
	topic  string
	cancel context.CancelFunc
	out    chan Event
	resync chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *stream) Events() <-chan Event {
	return s.out
}

// Close cancels the subscription and returns once no further event can be
// delivered on Events.
func (s *stream) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.broker.forget(s)
	})
}

func (s *stream) pump(ctx context.Context, msgs <-chan *message.Message) {
	defer close(s.done)
	defer close(s.out)
	defer s.broker.forget(s)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.resync:
			s.deliver(Event{Kind: KindResync, EmittedAt: time.Now().UTC()})
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() == nil {
					s.broker.logger.Warn().Str("topic", s.topic).Msg("Subscription dropped by transport")
				}
				return
			}
			ev, err := decodeEvent(msg)
			if err != nil {
				msg.Ack()
				s.broker.logger.Warn().Err(err).Str("topic", s.topic).Msg("Discarding undecodable event")
				continue
			}
			s.deliver(ev)
			msg.Ack()
		}
	}
}

// deliver never blocks. When the buffer is full the oldest pending event is
// dropped; every payload is a full row, so the newest one is sufficient.
func (s *stream) deliver(ev Event) {
	select {
	case s.out <- ev:
		metrics.RecordDelivery(string(ev.Kind))
		return
	default:
	}

	select {
	case dropped := <-s.out:
		s.broker.logger.Debug().
			Str("topic", s.topic).
			Str("dropped_kind", string(dropped.Kind)).
			Msg("Subscriber buffer full, dropped oldest event")
	default:
	}

	select {
	case s.out <- ev:
		metrics.RecordDelivery(string(ev.Kind))
	default:
	}
}
