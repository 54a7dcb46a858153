/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus bridges the in-process event bus to NATS so other
// plant systems (due-date recalculation, alerting) can consume
// scheduling events without linking this process.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/forgeplan/internal/events"
)

const subjectPrefix = "forgeplan.events."

// Bus publishes events both to local subscribers and to NATS. When no
// NATS URL is configured, or the connection drops, events still flow
// through the in-memory bus.
type Bus struct {
	local  *events.Bus
	conn   *nats.Conn
	logger zerolog.Logger
}

type message struct {
	Type       string         `json:"type"`
	Payload    events.Payload `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// New connects to NATS and wraps the given local bus. An empty URL
// means local-only operation.
func New(natsURL string, local *events.Bus, logger zerolog.Logger) (*Bus, error) {
	b := &Bus{
		local:  local,
		logger: logger.With().Str("component", "eventbus").Logger(),
	}

	if natsURL == "" {
		b.logger.Info().Msg("no NATS URL configured, events stay in-process")
		return b, nil
	}

	conn, err := nats.Connect(natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %q: %w", natsURL, err)
	}

	b.conn = conn
	b.logger.Info().Str("url", natsURL).Msg("connected to NATS")
	return b, nil
}

// Subscribe registers a local subscriber for an event type.
func (b *Bus) Subscribe(eventType events.EventType) events.Subscriber {
	return b.local.Subscribe(eventType)
}

// Unsubscribe removes a local subscriber.
func (b *Bus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	b.local.Unsubscribe(eventType, sub)
}

// Publish fans out locally and, when connected, to NATS. A NATS
// publish failure is logged and never fails the caller; scheduling
// correctness does not depend on event delivery.
func (b *Bus) Publish(eventType events.EventType, payload events.Payload) {
	b.local.Publish(eventType, payload)

	if b.conn == nil {
		return
	}

	data, err := json.Marshal(message{
		Type:       string(eventType),
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		b.logger.Error().Err(err).Str("event", string(eventType)).Msg("marshal event")
		return
	}

	if err := b.conn.Publish(subjectPrefix+string(eventType), data); err != nil {
		b.logger.Warn().Err(err).Str("event", string(eventType)).Msg("NATS publish failed")
	}
}

// Close drains the NATS connection.
func (b *Bus) Close() error {
	if b.conn == nil {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}
