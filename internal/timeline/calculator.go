/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package timeline composes a job's full multi-stage schedule by
// chaining per-stage slot and queue calculations in routing order.
package timeline

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/forgeplan/internal/models"
	"github.com/friendsincode/forgeplan/internal/scheduling"
	"github.com/friendsincode/forgeplan/internal/store"
	"github.com/friendsincode/forgeplan/internal/workcal"
	"github.com/friendsincode/forgeplan/internal/workload"
)

// workingDayMinutes is the 8-hour-equivalent day used to express total
// effort as working days.
const workingDayMinutes = 8 * 60

// StageEntry is one stage's projected window within a job timeline.
type StageEntry struct {
	StageID       string    `json:"stage_id"`
	StageName     string    `json:"stage_name"`
	Sequence      int       `json:"sequence"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	DurationHours float64   `json:"duration_hours"`
	QueueDays     int       `json:"queue_days"`
	IsBottleneck  bool      `json:"is_bottleneck"`
}

// JobTimeline is the composed schedule for one job. It is derived on
// demand, never persisted.
type JobTimeline struct {
	JobID             string       `json:"job_id"`
	Stages            []StageEntry `json:"stages"`
	TotalWorkingDays  int          `json:"total_working_days"`
	TotalCalendarDays int          `json:"total_calendar_days"`
	BottleneckStage   string       `json:"bottleneck_stage"`
	CriticalPath      []string     `json:"critical_path"`
}

// Calculator builds job timelines.
type Calculator struct {
	store       *store.Store
	finder      *scheduling.Finder
	analyzer    *workload.Analyzer
	cal         *workcal.Calendar
	horizonDays int
	logger      zerolog.Logger
	now         func() time.Time
}

// NewCalculator creates a timeline calculator.
func NewCalculator(st *store.Store, finder *scheduling.Finder, analyzer *workload.Analyzer, cal *workcal.Calendar, horizonDays int, logger zerolog.Logger) *Calculator {
	if horizonDays <= 0 {
		horizonDays = 60
	}
	return &Calculator{
		store:       st,
		finder:      finder,
		analyzer:    analyzer,
		cal:         cal,
		horizonDays: horizonDays,
		logger:      logger.With().Str("component", "timeline").Logger(),
		now:         time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (c *Calculator) SetNow(now func() time.Time) {
	c.now = now
}

// Calculate walks the job's non-completed stages in order, propagating
// each stage's completion as the next stage's earliest start. Work that
// fits within one day gets a precise slot; longer work is spread across
// successive working days after the stage's queue clears.
func (c *Calculator) Calculate(ctx context.Context, jobID string) (JobTimeline, error) {
	instances, err := c.store.ListStageInstancesForJob(ctx, jobID)
	if err != nil {
		return JobTimeline{}, err
	}

	tl := JobTimeline{JobID: jobID, Stages: make([]StageEntry, 0, len(instances))}

	now := c.now().UTC()
	cursor := now
	overlay := scheduling.NewOverlay()
	totalMinutes := 0

	for _, inst := range instances {
		stage, err := c.store.GetStage(ctx, inst.StageID)
		if err != nil {
			return JobTimeline{}, err
		}

		profile, err := c.store.GetCapacityProfile(ctx, inst.StageID)
		if err != nil {
			c.logger.Warn().Err(err).Str("stage", inst.StageID).Msg("capacity profile lookup failed, using defaults")
		}

		snap, err := c.analyzer.StageWorkload(ctx, inst.StageID)
		if err != nil {
			return JobTimeline{}, err
		}

		startLocal, endLocal, err := c.placeStage(ctx, stage, profile, snap, inst.EstimatedDurationMinutes, cursor, overlay)
		if err != nil {
			return JobTimeline{}, err
		}

		entry := StageEntry{
			StageID:       stage.ID,
			StageName:     stage.Name,
			Sequence:      inst.Sequence,
			Start:         c.cal.ToAbsolute(startLocal),
			End:           c.cal.ToAbsolute(endLocal),
			DurationHours: float64(inst.EstimatedDurationMinutes) / 60,
			QueueDays:     snap.QueueDays,
			IsBottleneck:  snap.QueueDays > 1,
		}
		tl.Stages = append(tl.Stages, entry)

		totalMinutes += inst.EstimatedDurationMinutes
		cursor = entry.End
	}

	for _, entry := range tl.Stages {
		if entry.IsBottleneck {
			tl.CriticalPath = append(tl.CriticalPath, entry.StageName)
		}
	}

	maxQueue := -1
	for _, entry := range tl.Stages {
		if entry.QueueDays > maxQueue {
			maxQueue = entry.QueueDays
			tl.BottleneckStage = entry.StageName
		}
	}

	if totalMinutes > 0 {
		tl.TotalWorkingDays = int(math.Ceil(float64(totalMinutes) / workingDayMinutes))
	}
	if len(tl.Stages) > 0 {
		span := tl.Stages[len(tl.Stages)-1].End.Sub(now)
		tl.TotalCalendarDays = int(math.Ceil(span.Hours() / 24))
	}

	return tl, nil
}

// placeStage finds the stage's window for the given duration starting
// no earlier than cursor (absolute). Atomic placements go through the
// slot finder; work longer than a day falls back to spreading across
// working days once the stage queue clears.
func (c *Calculator) placeStage(ctx context.Context, stage *models.Stage, profile models.CapacityProfile, snap workload.Snapshot, durationMinutes int, cursor time.Time, overlay *scheduling.Overlay) (time.Time, time.Time, error) {
	slot, err := c.finder.FindSlot(ctx, stage, profile, durationMinutes, cursor, c.horizonDays, overlay)
	if err == nil {
		overlay.Add(stage.ID, c.cal.DayStart(slot.Start), scheduling.Interval{Start: slot.Start, End: slot.End})
		return slot.Start, slot.End, nil
	}
	if !errors.Is(err, scheduling.ErrNoCapacity) {
		return time.Time{}, time.Time{}, err
	}

	// Multi-day work: start after the queue clears and consume capacity
	// day by day.
	win := store.StageWindow(stage)
	start := c.cal.ClampToWindow(c.cal.ToLocal(cursor), win)
	if snap.QueueDays > 0 {
		start = c.cal.ClampToWindow(c.cal.AddWorkingDays(start, snap.QueueDays), win)
	}

	dayCapacity := profile.EffectiveDailyMinutes()
	if dayCapacity <= 0 {
		return time.Time{}, time.Time{}, &scheduling.InvalidStageError{StageID: stage.ID, Reason: "zero effective daily capacity"}
	}
	if dayCapacity > win.Minutes() {
		dayCapacity = win.Minutes()
	}

	remaining := durationMinutes
	cursorLocal := start
	for remaining > 0 {
		dayEnd := c.cal.AtMinute(c.cal.DayStart(cursorLocal), win.EndMinute)
		available := int(dayEnd.Sub(cursorLocal) / time.Minute)
		if available > dayCapacity {
			available = dayCapacity
		}
		if available >= remaining {
			cursorLocal = cursorLocal.Add(time.Duration(remaining) * time.Minute)
			remaining = 0
			break
		}
		remaining -= available
		cursorLocal = c.cal.AtMinute(c.cal.NextWorkingDay(cursorLocal), win.StartMinute)
	}

	return start, cursorLocal, nil
}
