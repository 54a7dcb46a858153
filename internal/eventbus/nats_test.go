/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/forgeplan/internal/events"
)

func TestLocalOnlyMode(t *testing.T) {
	bus, err := New("", events.NewBus(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = bus.Close() }()

	sub := bus.Subscribe(events.EventBatchScheduled)
	bus.Publish(events.EventBatchScheduled, events.Payload{"scheduled": 3})

	select {
	case payload := <-sub:
		if payload["scheduled"] != 3 {
			t.Errorf("payload = %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("local delivery failed without NATS")
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	bus, err := New("", events.NewBus(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
