/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// Scheduling events
	EventBookingCommitted EventType = "booking.committed"
	EventBatchScheduled   EventType = "batch.scheduled"
	EventBatchFailure     EventType = "batch.failure"

	// Progression events
	EventStageOverdue   EventType = "stage.overdue"
	EventStageStarted   EventType = "stage.started"
	EventStageCompleted EventType = "stage.completed"

	// Analytics events
	EventBottleneckAlert EventType = "bottleneck.alert"

	// Cache invalidation events
	EventStageUpdated   EventType = "cache.stage_updated"
	EventProfileUpdated EventType = "cache.profile_updated"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers drop events
// rather than blocking the publisher.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[eventType]
	for i, s := range subs {
		if s == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(s)
			return
		}
	}
}
