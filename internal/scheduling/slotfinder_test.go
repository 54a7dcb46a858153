/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/forgeplan/internal/models"
	"github.com/friendsincode/forgeplan/internal/store"
	"github.com/friendsincode/forgeplan/internal/workcal"
)

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

func newCalendar(t *testing.T, tz string, holidays []string) *workcal.Calendar {
	t.Helper()
	cal, err := workcal.New(tz, holidays)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	return cal
}

func makeStage(t *testing.T, st *store.Store, name string, startMinute, endMinute int) *models.Stage {
	t.Helper()
	stage := &models.Stage{
		Name:               name,
		Sequence:           1,
		DailyCapacityHours: 8,
		WorkStartMinute:    startMinute,
		WorkEndMinute:      endMinute,
	}
	if err := st.CreateStage(context.Background(), stage); err != nil {
		t.Fatalf("create stage: %v", err)
	}
	return stage
}

func fullProfile(stageID string, hours float64) models.CapacityProfile {
	return models.CapacityProfile{StageID: stageID, DailyCapacityHours: hours, EfficiencyFactor: 1}
}

func seedBooking(t *testing.T, st *store.Store, cal *workcal.Calendar, stageID string, start time.Time, minutes int) {
	t.Helper()
	err := st.PersistBookings(context.Background(), []models.StageBooking{{
		StageID:         stageID,
		JobID:           "seed-job",
		StartsAt:        cal.ToAbsolute(start),
		EndsAt:          cal.ToAbsolute(start.Add(time.Duration(minutes) * time.Minute)),
		DurationMinutes: minutes,
		Status:          models.BookingPending,
	}})
	if err != nil {
		t.Fatalf("seed booking: %v", err)
	}
}

func TestFindSlotEmptyStageStartsAtEarliest(t *testing.T) {
	st := newTestStore(t)
	cal := newCalendar(t, "UTC", nil)
	finder := NewFinder(st, cal, zerolog.Nop())
	stage := makeStage(t, st, "Milling", 480, 1020)

	earliest := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) // Wednesday
	slot, err := finder.FindSlot(context.Background(), stage, fullProfile(stage.ID, 8), 120, earliest, 30, nil)
	if err != nil {
		t.Fatalf("FindSlot: %v", err)
	}
	if !slot.Start.Equal(earliest) {
		t.Errorf("Start = %v, want %v", slot.Start, earliest)
	}
	if slot.End.Sub(slot.Start) != 2*time.Hour {
		t.Errorf("slot length = %v, want 2h", slot.End.Sub(slot.Start))
	}
}

func TestFindSlotFridayAfternoonRollsToMonday(t *testing.T) {
	st := newTestStore(t)
	cal := newCalendar(t, "Africa/Johannesburg", nil)
	finder := NewFinder(st, cal, zerolog.Nop())
	stage := makeStage(t, st, "Welding", 480, 1020) // 08:00-17:00 SAST

	// Friday 16:00 SAST leaves only 60 minutes; a 90 minute job must
	// wait for Monday 08:00.
	earliest := time.Date(2026, 3, 6, 14, 0, 0, 0, time.UTC) // 16:00 SAST
	slot, err := finder.FindSlot(context.Background(), stage, fullProfile(stage.ID, 8), 90, earliest, 30, nil)
	if err != nil {
		t.Fatalf("FindSlot: %v", err)
	}

	want := time.Date(2026, 3, 9, 8, 0, 0, 0, cal.Location())
	if !slot.Start.Equal(want) {
		t.Errorf("Start = %v, want Monday 08:00 local (%v)", slot.Start, want)
	}
}

func TestFindSlotSkipsHoliday(t *testing.T) {
	st := newTestStore(t)
	cal := newCalendar(t, "UTC", []string{"2026-03-05"}) // Thursday holiday
	finder := NewFinder(st, cal, zerolog.Nop())
	stage := makeStage(t, st, "Painting", 480, 1020)

	// Wednesday at window end: Thursday is a holiday, so Friday 08:00.
	earliest := time.Date(2026, 3, 4, 17, 0, 0, 0, time.UTC)
	slot, err := finder.FindSlot(context.Background(), stage, fullProfile(stage.ID, 8), 60, earliest, 30, nil)
	if err != nil {
		t.Fatalf("FindSlot: %v", err)
	}
	want := time.Date(2026, 3, 6, 8, 0, 0, 0, time.UTC)
	if !slot.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", slot.Start, want)
	}
}

func TestFindSlotPacksAroundBookings(t *testing.T) {
	st := newTestStore(t)
	cal := newCalendar(t, "UTC", nil)
	finder := NewFinder(st, cal, zerolog.Nop())
	stage := makeStage(t, st, "Assembly", 480, 1020)

	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	// 08:00-10:00 and 11:00-12:00 are taken; a 60 minute job fits the
	// 10:00-11:00 gap.
	seedBooking(t, st, cal, stage.ID, day.Add(8*time.Hour), 120)
	seedBooking(t, st, cal, stage.ID, day.Add(11*time.Hour), 60)

	slot, err := finder.FindSlot(context.Background(), stage, fullProfile(stage.ID, 8), 60, day, 30, nil)
	if err != nil {
		t.Fatalf("FindSlot: %v", err)
	}
	want := day.Add(10 * time.Hour)
	if !slot.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", slot.Start, want)
	}
}

func TestFindSlotCapacityPreCheckRollsDay(t *testing.T) {
	st := newTestStore(t)
	cal := newCalendar(t, "UTC", nil)
	finder := NewFinder(st, cal, zerolog.Nop())
	stage := makeStage(t, st, "Inspection", 480, 1020)

	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	// 3 of 4 capacity hours booked; a 2 hour job has window room left
	// but would exceed daily capacity, so it moves to Thursday.
	seedBooking(t, st, cal, stage.ID, day.Add(8*time.Hour), 180)

	slot, err := finder.FindSlot(context.Background(), stage, fullProfile(stage.ID, 4), 120, day, 30, nil)
	if err != nil {
		t.Fatalf("FindSlot: %v", err)
	}
	want := day.AddDate(0, 0, 1).Add(8 * time.Hour)
	if !slot.Start.Equal(want) {
		t.Errorf("Start = %v, want next day %v", slot.Start, want)
	}
}

func TestFindSlotDurationExceedingDayFailsImmediately(t *testing.T) {
	st := newTestStore(t)
	cal := newCalendar(t, "UTC", nil)
	finder := NewFinder(st, cal, zerolog.Nop())
	stage := makeStage(t, st, "Anodizing", 480, 1020)

	_, err := finder.FindSlot(context.Background(), stage, fullProfile(stage.ID, 8), 10*60, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), 30, nil)
	if !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("err = %v, want ErrNoCapacity", err)
	}
	var ncErr *NoCapacityError
	if !errors.As(err, &ncErr) {
		t.Fatalf("err type = %T, want *NoCapacityError", err)
	}
	if ncErr.StageID != stage.ID || ncErr.DurationMinutes != 600 {
		t.Errorf("NoCapacityError = %+v", ncErr)
	}
}

func TestFindSlotHorizonExhaustion(t *testing.T) {
	st := newTestStore(t)
	cal := newCalendar(t, "UTC", nil)
	finder := NewFinder(st, cal, zerolog.Nop())
	stage := makeStage(t, st, "Packing", 480, 1020)

	// Fill every working day of a short horizon.
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // Monday
	for i := 0; i < 5; i++ {
		seedBooking(t, st, cal, stage.ID, day.AddDate(0, 0, i).Add(8*time.Hour), 9*60)
	}

	_, err := finder.FindSlot(context.Background(), stage, fullProfile(stage.ID, 9), 120, day, 2, nil)
	if !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("err = %v, want ErrNoCapacity", err)
	}
}

func TestFindSlotInvalidStage(t *testing.T) {
	st := newTestStore(t)
	cal := newCalendar(t, "UTC", nil)
	finder := NewFinder(st, cal, zerolog.Nop())

	stage := &models.Stage{ID: "bad", Name: "Backwards", WorkStartMinute: 1020, WorkEndMinute: 480}
	_, err := finder.FindSlot(context.Background(), stage, fullProfile("bad", 8), 60, time.Now(), 30, nil)
	if !errors.Is(err, ErrInvalidStageConfig) {
		t.Fatalf("err = %v, want ErrInvalidStageConfig", err)
	}

	stage2 := &models.Stage{ID: "zero", Name: "Idle", WorkStartMinute: 480, WorkEndMinute: 1020}
	_, err = finder.FindSlot(context.Background(), stage2, models.CapacityProfile{StageID: "zero", DailyCapacityHours: -1, EfficiencyFactor: -1}, 0, time.Now(), 30, nil)
	if !errors.Is(err, ErrInvalidStageConfig) {
		t.Fatalf("err = %v, want ErrInvalidStageConfig for non-positive duration", err)
	}
}

func TestFindSlotSeesOverlayReservations(t *testing.T) {
	st := newTestStore(t)
	cal := newCalendar(t, "UTC", nil)
	finder := NewFinder(st, cal, zerolog.Nop())
	stage := makeStage(t, st, "Milling", 480, 1020)

	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	overlay := NewOverlay()
	overlay.Add(stage.ID, day, Interval{Start: day.Add(8 * time.Hour), End: day.Add(10 * time.Hour)})

	slot, err := finder.FindSlot(context.Background(), stage, fullProfile(stage.ID, 8), 60, day, 30, overlay)
	if err != nil {
		t.Fatalf("FindSlot: %v", err)
	}
	want := day.Add(10 * time.Hour)
	if !slot.Start.Equal(want) {
		t.Errorf("Start = %v, want %v after overlay reservation", slot.Start, want)
	}
}
