/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduling places job work onto stages: slot discovery within
// working windows and capacity limits, and capacity-aware batch
// scheduling over a shared reservation overlay.
package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/forgeplan/internal/models"
	"github.com/friendsincode/forgeplan/internal/store"
	"github.com/friendsincode/forgeplan/internal/telemetry"
	"github.com/friendsincode/forgeplan/internal/workcal"
)

// Slot is a feasible [Start, End) interval in local business time.
type Slot struct {
	StageID         string
	Start           time.Time
	End             time.Time
	DurationMinutes int
}

// Finder scans a stage's calendar forward for the earliest free
// contiguous interval of the requested length.
type Finder struct {
	store  *store.Store
	cal    *workcal.Calendar
	logger zerolog.Logger
}

// NewFinder creates a slot finder.
func NewFinder(st *store.Store, cal *workcal.Calendar, logger zerolog.Logger) *Finder {
	return &Finder{
		store:  st,
		cal:    cal,
		logger: logger.With().Str("component", "slot_finder").Logger(),
	}
}

// FindSlot returns the earliest feasible slot for durationMinutes on
// the stage, no earlier than earliest (an absolute instant), searching
// at most horizonDays working days. Committed bookings and the batch
// overlay both count against each day's capacity. A duration that can
// never fit in one working day fails immediately; slots are atomic and
// never split across days.
func (f *Finder) FindSlot(ctx context.Context, stage *models.Stage, profile models.CapacityProfile, durationMinutes int, earliest time.Time, horizonDays int, overlay *Overlay) (Slot, error) {
	if durationMinutes <= 0 {
		return Slot{}, &InvalidStageError{StageID: stage.ID, Reason: "non-positive duration requested"}
	}

	win := store.StageWindow(stage)
	if !win.Valid() {
		return Slot{}, &InvalidStageError{StageID: stage.ID, Reason: "working window end must be after start"}
	}

	capacityMinutes := profile.EffectiveDailyMinutes()
	if capacityMinutes <= 0 {
		return Slot{}, &InvalidStageError{StageID: stage.ID, Reason: "zero effective daily capacity"}
	}

	if durationMinutes > capacityMinutes || durationMinutes > win.Minutes() {
		return Slot{}, &NoCapacityError{
			StageID:         stage.ID,
			StageName:       stage.Name,
			DurationMinutes: durationMinutes,
			HorizonDays:     horizonDays,
		}
	}

	cursor := f.cal.ClampToWindow(f.cal.ToLocal(earliest), win)

	for scanned := 0; scanned <= horizonDays; scanned++ {
		day := f.cal.DayStart(cursor)
		winStart := f.cal.AtMinute(day, win.StartMinute)
		winEnd := f.cal.AtMinute(day, win.EndMinute)

		// The caller's earliest-allowed time only constrains day 0; every
		// later day opens at the window start.
		earliestAllowed := winStart
		if scanned == 0 && cursor.After(winStart) {
			earliestAllowed = cursor
		}

		intervals, err := f.dayIntervals(ctx, stage.ID, day, winStart, winEnd, overlay)
		if err != nil {
			return Slot{}, err
		}

		booked := 0
		for _, iv := range intervals {
			booked += iv.Minutes()
		}

		// Cheap capacity pre-check before any gap search.
		if booked+durationMinutes <= capacityMinutes {
			if start, ok := firstFit(intervals, winStart, winEnd, earliestAllowed, durationMinutes); ok {
				telemetry.SlotSearchDays.Observe(float64(scanned))
				return Slot{
					StageID:         stage.ID,
					Start:           start,
					End:             start.Add(time.Duration(durationMinutes) * time.Minute),
					DurationMinutes: durationMinutes,
				}, nil
			}
		}

		cursor = f.cal.AtMinute(f.cal.NextWorkingDay(day), win.StartMinute)
	}

	return Slot{}, &NoCapacityError{
		StageID:         stage.ID,
		StageName:       stage.Name,
		DurationMinutes: durationMinutes,
		HorizonDays:     horizonDays,
	}
}

// dayIntervals merges the stage's committed bookings with the batch
// overlay for one local day, clipped to the working window and ordered
// by start time.
func (f *Finder) dayIntervals(ctx context.Context, stageID string, day, winStart, winEnd time.Time, overlay *Overlay) ([]Interval, error) {
	bookings, err := f.store.ListBookings(ctx, stageID, f.cal.ToAbsolute(winStart), f.cal.ToAbsolute(winEnd))
	if err != nil {
		return nil, err
	}

	intervals := make([]Interval, 0, len(bookings)+4)
	for _, b := range bookings {
		iv := clip(Interval{Start: f.cal.ToLocal(b.StartsAt), End: f.cal.ToLocal(b.EndsAt)}, winStart, winEnd)
		if iv.Minutes() > 0 {
			intervals = append(intervals, iv)
		}
	}
	if overlay != nil {
		for _, iv := range overlay.Intervals(stageID, day) {
			iv = clip(iv, winStart, winEnd)
			if iv.Minutes() > 0 {
				intervals = append(intervals, iv)
			}
		}
	}

	sort.Slice(intervals, func(i, j int) bool { return intervals[i].Start.Before(intervals[j].Start) })
	return intervals, nil
}

// firstFit walks the free gaps between window bounds and booked
// intervals and returns the start of the first gap that holds
// durationMinutes, no earlier than earliestAllowed.
func firstFit(intervals []Interval, winStart, winEnd, earliestAllowed time.Time, durationMinutes int) (time.Time, bool) {
	need := time.Duration(durationMinutes) * time.Minute
	gapStart := winStart

	consider := func(gapEnd time.Time) (time.Time, bool) {
		start := gapStart
		if start.Before(earliestAllowed) {
			start = earliestAllowed
		}
		if !start.Add(need).After(gapEnd) {
			return start, true
		}
		return time.Time{}, false
	}

	for _, iv := range intervals {
		if iv.Start.After(gapStart) {
			if start, ok := consider(iv.Start); ok {
				return start, true
			}
		}
		if iv.End.After(gapStart) {
			gapStart = iv.End
		}
	}
	return consider(winEnd)
}

func clip(iv Interval, winStart, winEnd time.Time) Interval {
	if iv.Start.Before(winStart) {
		iv.Start = winStart
	}
	if iv.End.After(winEnd) {
		iv.End = winEnd
	}
	if iv.End.Before(iv.Start) {
		iv.End = iv.Start
	}
	return iv
}
