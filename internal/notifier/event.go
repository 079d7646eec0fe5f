// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package notifier

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/nowserving/internal/models"
)

// Kind identifies what an Event carries.
type Kind string

const (
	// KindTokenState carries the full TokenState row after a write.
	KindTokenState Kind = "token_state"

	// KindSession carries the full Session row after a write.
	KindSession Kind = "session"

	// KindResync is synthesised locally when deliveries may have been lost
	// (transport reconnect). Receivers must re-read the store.
	KindResync Kind = "resync"
)

const (
	tokenStateTopicPrefix = "queue.token_state."
	sessionsTopicPrefix   = "queue.sessions."

	metadataKind = "kind"
)

// TokenStateTopic is the topic TokenState changes for sessionID are published on.
func TokenStateTopic(sessionID string) string {
	return tokenStateTopicPrefix + sessionID
}

// SessionsTopic is the topic Session changes for clinicID are published on.
func SessionsTopic(clinicID string) string {
	return sessionsTopicPrefix + clinicID
}

// Event is a change notification. Payloads are full row values, never deltas.
type Event struct {
	Kind       Kind               `json:"kind"`
	ClinicID   string             `json:"clinic_id"`
	SessionID  string             `json:"session_id,omitempty"`
	TokenState *models.TokenState `json:"token_state,omitempty"`
	Session    *models.Session    `json:"session,omitempty"`
	EmittedAt  time.Time          `json:"emitted_at"`
}

func encodeEvent(ev Event) (*message.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", ev.Kind, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataKind, string(ev.Kind))
	return msg, nil
}

func decodeEvent(msg *message.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal event %s: %w", msg.UUID, err)
	}
	switch ev.Kind {
	case KindTokenState:
		if ev.TokenState == nil {
			return Event{}, fmt.Errorf("event %s: token_state payload missing", msg.UUID)
		}
	case KindSession:
		if ev.Session == nil {
			return Event{}, fmt.Errorf("event %s: session payload missing", msg.UUID)
		}
	default:
		return Event{}, fmt.Errorf("event %s: unknown kind %q", msg.UUID, ev.Kind)
	}
	return ev, nil
}
