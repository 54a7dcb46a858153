/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package workload computes read-time projections over committed
// bookings: per-stage queue depth, bottleneck ranking, and the
// capacity impact of prospective work.
package workload

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/friendsincode/forgeplan/internal/cache"
	"github.com/friendsincode/forgeplan/internal/models"
	"github.com/friendsincode/forgeplan/internal/store"
	"github.com/friendsincode/forgeplan/internal/telemetry"
)

// Snapshot is a stage's workload as of now. It is recomputed on demand
// and never stored authoritatively.
type Snapshot struct {
	StageID            string  `json:"stage_id"`
	StageName          string  `json:"stage_name"`
	PendingHours       float64 `json:"pending_hours"`
	ActiveHours        float64 `json:"active_hours"`
	PendingJobs        int     `json:"pending_jobs"`
	ActiveJobs         int     `json:"active_jobs"`
	DailyCapacityHours float64 `json:"daily_capacity_hours"` // effective, after efficiency factor
	QueueDays          int     `json:"queue_days"`
}

// Analyzer derives workload snapshots from the store.
type Analyzer struct {
	store  *store.Store
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewAnalyzer creates a workload analyzer. The cache may be nil.
func NewAnalyzer(st *store.Store, c *cache.Cache, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		store:  st,
		cache:  c,
		logger: logger.With().Str("component", "workload_analyzer").Logger(),
	}
}

// StageWorkload computes the snapshot for one stage.
func (a *Analyzer) StageWorkload(ctx context.Context, stageID string) (Snapshot, error) {
	if a.cache != nil {
		var cached Snapshot
		if a.cache.GetWorkload(ctx, stageID, &cached) {
			return cached, nil
		}
	}

	stage, err := a.store.GetStage(ctx, stageID)
	if err != nil {
		return Snapshot{}, err
	}
	return a.snapshot(ctx, stage)
}

func (a *Analyzer) snapshot(ctx context.Context, stage *models.Stage) (Snapshot, error) {
	profile, err := a.store.GetCapacityProfile(ctx, stage.ID)
	if err != nil {
		a.logger.Warn().Err(err).Str("stage", stage.ID).Msg("capacity profile lookup failed, using defaults")
	}

	totals, err := a.store.StageWorkloadTotals(ctx, stage.ID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stage %s workload: %w", stage.ID, err)
	}

	snap := Snapshot{
		StageID:            stage.ID,
		StageName:          stage.Name,
		PendingHours:       float64(totals.PendingMinutes) / 60,
		ActiveHours:        float64(totals.ActiveMinutes) / 60,
		PendingJobs:        totals.PendingJobs,
		ActiveJobs:         totals.ActiveJobs,
		DailyCapacityHours: profile.EffectiveDailyHours(),
	}
	snap.QueueDays = QueueDays(snap.PendingHours, snap.DailyCapacityHours)

	telemetry.StageQueueDays.WithLabelValues(stage.Name).Set(float64(snap.QueueDays))

	if a.cache != nil {
		a.cache.SetWorkload(ctx, stage.ID, snap)
	}
	return snap, nil
}

// QueueDays converts pending hours into whole working days at the
// given effective daily capacity. The ceiling is deliberate: a
// partial-day remainder still occupies a full additional day before
// the queue clears.
func QueueDays(pendingHours, effectiveDailyHours float64) int {
	if pendingHours <= 0 {
		return 0
	}
	if effectiveDailyHours <= 0 {
		effectiveDailyHours = models.DefaultCapacityProfile("").EffectiveDailyHours()
	}
	return int(math.Ceil(pendingHours / effectiveDailyHours))
}

// AllStageWorkloads returns every stage's snapshot, busiest queue first.
func (a *Analyzer) AllStageWorkloads(ctx context.Context) ([]Snapshot, error) {
	stages, err := a.store.ListStages(ctx)
	if err != nil {
		return nil, err
	}

	snapshots := make([]Snapshot, 0, len(stages))
	for i := range stages {
		snap, err := a.snapshot(ctx, &stages[i])
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].QueueDays > snapshots[j].QueueDays
	})
	return snapshots, nil
}

// BottleneckStages returns stages whose queue exceeds one working day,
// busiest first, truncated to limit (limit <= 0 means no truncation).
func (a *Analyzer) BottleneckStages(ctx context.Context, limit int) ([]Snapshot, error) {
	snapshots, err := a.AllStageWorkloads(ctx)
	if err != nil {
		return nil, err
	}

	bottlenecks := snapshots[:0:0]
	for _, snap := range snapshots {
		if snap.QueueDays > 1 {
			bottlenecks = append(bottlenecks, snap)
		}
	}
	if limit > 0 && len(bottlenecks) > limit {
		bottlenecks = bottlenecks[:limit]
	}
	return bottlenecks, nil
}
