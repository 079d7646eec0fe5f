// NowServing - Live Clinic Queue Display
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nowserving

package notifier

import (
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/nowserving/internal/logging"
)

// NewMemory returns a Broker backed by an in-process watermill GoChannel.
// Publish waits until every current subscriber has taken the event, which
// keeps events for one topic in publish order.
func NewMemory(bufferSize int) *Broker {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            int64(bufferSize),
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: true,
	}, logging.NewWatermillAdapter("notifier"))

	return newBroker("memory", pubsub, pubsub, bufferSize, pubsub.Close)
}
