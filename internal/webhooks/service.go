/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webhooks delivers scheduling events to registered HTTP
// endpoints. Payloads are signed with HMAC-SHA256 when a target has a
// secret, and every attempt is recorded for operator review.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/forgeplan/internal/events"
	"github.com/friendsincode/forgeplan/internal/models"
	"github.com/friendsincode/forgeplan/internal/store"
)

// Envelope is the JSON body posted to webhook targets.
type Envelope struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      events.Payload `json:"data,omitempty"`
}

// subscribedEvents are the bus events forwarded to targets.
var subscribedEvents = []events.EventType{
	events.EventBookingCommitted,
	events.EventBatchScheduled,
	events.EventStageStarted,
	events.EventStageCompleted,
	events.EventStageOverdue,
	events.EventBottleneckAlert,
}

// Service forwards bus events to webhook targets.
type Service struct {
	store  *store.Store
	bus    *events.Bus
	logger zerolog.Logger
	client *http.Client
}

// New creates the webhook delivery service.
func New(st *store.Store, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		bus:    bus,
		logger: logger.With().Str("component", "webhooks").Logger(),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Run subscribes to scheduling events and forwards them until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) {
	type subscription struct {
		eventType events.EventType
		ch        events.Subscriber
	}

	subs := make([]subscription, 0, len(subscribedEvents))
	for _, et := range subscribedEvents {
		subs = append(subs, subscription{eventType: et, ch: s.bus.Subscribe(et)})
	}
	defer func() {
		for _, sub := range subs {
			s.bus.Unsubscribe(sub.eventType, sub.ch)
		}
	}()

	// Fan the typed channels into one stream so a single loop serves
	// every subscription.
	type tagged struct {
		eventType events.EventType
		payload   events.Payload
	}
	merged := make(chan tagged, 32)
	for _, sub := range subs {
		go func(et events.EventType, ch events.Subscriber) {
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-ch:
					if !ok {
						return
					}
					select {
					case merged <- tagged{eventType: et, payload: payload}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(sub.eventType, sub.ch)
	}

	s.logger.Info().Int("events", len(subscribedEvents)).Msg("webhook delivery started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("webhook delivery stopped")
			return
		case ev := <-merged:
			s.Dispatch(ctx, ev.eventType, ev.payload)
		}
	}
}

// Dispatch sends one event to every active target subscribed to it.
func (s *Service) Dispatch(ctx context.Context, eventType events.EventType, payload events.Payload) {
	targets, err := s.store.ListWebhookTargets(ctx, true)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list webhook targets")
		return
	}

	for _, target := range targets {
		if !targetHandlesEvent(target, eventType) {
			continue
		}
		s.deliver(ctx, target, eventType, payload)
	}
}

// targetHandlesEvent reports whether a target subscribes to the event.
// An empty Events list subscribes to everything.
func targetHandlesEvent(target models.WebhookTarget, eventType events.EventType) bool {
	if target.Events == "" {
		return true
	}
	for _, e := range strings.Split(target.Events, ",") {
		if strings.TrimSpace(e) == string(eventType) {
			return true
		}
	}
	return false
}

func (s *Service) deliver(ctx context.Context, target models.WebhookTarget, eventType events.EventType, payload events.Payload) {
	envelope := Envelope{
		Event:     string(eventType),
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}

	status, err := s.post(ctx, target, envelope)

	record := &models.WebhookDelivery{
		TargetID:   target.ID,
		Event:      string(eventType),
		StatusCode: status,
	}
	if err != nil {
		record.Error = err.Error()
		s.logger.Warn().Err(err).
			Str("target", target.Name).
			Str("event", string(eventType)).
			Msg("webhook delivery failed")
	} else {
		s.logger.Debug().
			Str("target", target.Name).
			Str("event", string(eventType)).
			Int("status", status).
			Msg("webhook delivered")
	}

	if err := s.store.RecordWebhookDelivery(ctx, record); err != nil {
		s.logger.Error().Err(err).Msg("failed to record webhook delivery")
	}
}

// post marshals and sends the envelope, returning the response status.
func (s *Service) post(ctx context.Context, target models.WebhookTarget, envelope Envelope) (int, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Forgeplan-Webhook/1.0")
	req.Header.Set("X-Forgeplan-Event", envelope.Event)
	req.Header.Set("X-Forgeplan-Timestamp", fmt.Sprintf("%d", envelope.Timestamp.Unix()))

	if target.Secret != "" {
		req.Header.Set("X-Forgeplan-Signature", signPayload(body, target.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("target returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// TestTarget sends a synthetic event so operators can verify a new
// endpoint before relying on it.
func (s *Service) TestTarget(ctx context.Context, target *models.WebhookTarget) error {
	envelope := Envelope{
		Event:     "test",
		Timestamp: time.Now().UTC(),
		Data: events.Payload{
			"message": "forgeplan webhook test delivery",
		},
	}
	if _, err := s.post(ctx, *target, envelope); err != nil {
		return err
	}
	return nil
}

// signPayload creates the sha256= HMAC header value.
func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
