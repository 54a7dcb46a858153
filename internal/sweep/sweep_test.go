/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/forgeplan/internal/events"
	"github.com/friendsincode/forgeplan/internal/models"
	"github.com/friendsincode/forgeplan/internal/store"
)

type capturingBus struct {
	payloads []events.Payload
}

func (b *capturingBus) Publish(eventType events.EventType, payload events.Payload) {
	if eventType == events.EventStageOverdue {
		b.payloads = append(b.payloads, payload)
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Job{}, &models.Stage{}, &models.CapacityProfile{}, &models.JobStage{}, &models.StageBooking{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(db, nil, zerolog.Nop())
}

func TestTickPublishesOverdueStages(t *testing.T) {
	st := newTestStore(t)
	stage := &models.Stage{Name: "Curing", Sequence: 1, DailyCapacityHours: 8, WorkStartMinute: 480, WorkEndMinute: 1020}
	if err := st.CreateStage(context.Background(), stage); err != nil {
		t.Fatalf("create stage: %v", err)
	}

	started := time.Now().UTC().Add(-4 * time.Hour)
	if err := st.PersistBookings(context.Background(), []models.StageBooking{{
		StageID:         stage.ID,
		JobID:           "job-late",
		StartsAt:        started,
		EndsAt:          started.Add(2 * time.Hour),
		DurationMinutes: 120,
		Status:          models.BookingActive,
		StartedAt:       &started,
	}}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	bus := &capturingBus{}
	svc := New(st, bus, time.Minute, zerolog.Nop())
	svc.Tick(context.Background())

	if len(bus.payloads) != 1 {
		t.Fatalf("published = %d, want 1 overdue event", len(bus.payloads))
	}
	if bus.payloads[0]["job_id"] != "job-late" {
		t.Errorf("payload = %+v", bus.payloads[0])
	}
}

func TestTickQuietWhenNothingOverdue(t *testing.T) {
	st := newTestStore(t)
	bus := &capturingBus{}
	svc := New(st, bus, time.Minute, zerolog.Nop())

	svc.Tick(context.Background())
	if len(bus.payloads) != 0 {
		t.Errorf("published = %d, want none", len(bus.payloads))
	}
}

func TestTickSkippedWhenGateClosed(t *testing.T) {
	st := newTestStore(t)
	stage := &models.Stage{Name: "Curing", Sequence: 1, DailyCapacityHours: 8, WorkStartMinute: 480, WorkEndMinute: 1020}
	if err := st.CreateStage(context.Background(), stage); err != nil {
		t.Fatalf("create stage: %v", err)
	}

	started := time.Now().UTC().Add(-4 * time.Hour)
	if err := st.PersistBookings(context.Background(), []models.StageBooking{{
		StageID:         stage.ID,
		JobID:           "job-late",
		StartsAt:        started,
		EndsAt:          started.Add(2 * time.Hour),
		DurationMinutes: 120,
		Status:          models.BookingActive,
		StartedAt:       &started,
	}}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	bus := &capturingBus{}
	svc := New(st, bus, time.Minute, zerolog.Nop())
	svc.SetGate(func() bool { return false })

	svc.Tick(context.Background())
	if len(bus.payloads) != 0 {
		t.Errorf("published = %d, want none while not leader", len(bus.payloads))
	}

	svc.SetGate(func() bool { return true })
	svc.Tick(context.Background())
	if len(bus.payloads) != 1 {
		t.Errorf("published = %d, want 1 once leading", len(bus.payloads))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	st := newTestStore(t)
	svc := New(st, nil, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
