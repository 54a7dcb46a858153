/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/forgeplan/internal/events"
	"github.com/friendsincode/forgeplan/internal/models"
	"github.com/friendsincode/forgeplan/internal/store"
	"github.com/friendsincode/forgeplan/internal/telemetry"
	"github.com/friendsincode/forgeplan/internal/workcal"
)

// Request asks for one job/stage placement within a batch.
type Request struct {
	JobID           string
	StageID         string
	DurationMinutes int
	EarliestStart   time.Time // absolute
	Priority        int       // lower schedules first
}

// Result is the outcome for one request. Start/End are absolute (UTC)
// when Err is nil.
type Result struct {
	JobID           string
	StageID         string
	Start           time.Time
	End             time.Time
	DurationMinutes int
	Err             error
}

// Publisher is the event sink for scheduling outcomes.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// Scheduler packs a batch of requests onto stages. One Scheduler value
// is constructed by the composition root and shared; each ScheduleBatch
// call owns its overlay, and batches are expected to run one at a time
// per scheduling authority.
type Scheduler struct {
	store       *store.Store
	finder      *Finder
	cal         *workcal.Calendar
	bus         Publisher
	horizonDays int
	logger      zerolog.Logger
}

// NewScheduler creates a batch scheduler.
func NewScheduler(st *store.Store, finder *Finder, cal *workcal.Calendar, bus Publisher, horizonDays int, logger zerolog.Logger) *Scheduler {
	if horizonDays <= 0 {
		horizonDays = 60
	}
	return &Scheduler{
		store:       st,
		finder:      finder,
		cal:         cal,
		bus:         bus,
		horizonDays: horizonDays,
		logger:      logger.With().Str("component", "scheduler").Logger(),
	}
}

// HorizonDays returns the configured search horizon.
func (s *Scheduler) HorizonDays() int {
	return s.horizonDays
}

// ScheduleBatch resolves every request in priority order against a
// shared overlay, so slots chosen for earlier requests are occupied for
// later ones before anything is persisted. A request that cannot be
// placed yields a per-request error and the batch continues; nothing is
// written to the store.
func (s *Scheduler) ScheduleBatch(ctx context.Context, requests []Request) []Result {
	ordered := make([]Request, len(requests))
	copy(ordered, requests)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].EarliestStart.Before(ordered[j].EarliestStart)
	})

	overlay := NewOverlay()
	results := make([]Result, 0, len(ordered))

	for _, req := range ordered {
		results = append(results, s.scheduleOne(ctx, req, overlay))
	}
	return results
}

func (s *Scheduler) scheduleOne(ctx context.Context, req Request, overlay *Overlay) Result {
	result := Result{
		JobID:           req.JobID,
		StageID:         req.StageID,
		DurationMinutes: req.DurationMinutes,
	}

	stage, err := s.store.GetStage(ctx, req.StageID)
	if err != nil {
		telemetry.BatchRequestsTotal.WithLabelValues("invalid_stage").Inc()
		if errors.Is(err, store.ErrStageNotFound) {
			result.Err = fmt.Errorf("stage %s: %w", req.StageID, err)
		} else {
			result.Err = &InvalidStageError{StageID: req.StageID, Reason: err.Error()}
		}
		return result
	}

	profile, err := s.store.GetCapacityProfile(ctx, req.StageID)
	if err != nil {
		// The store already fell back to the default profile; degrade
		// rather than failing the request.
		s.logger.Warn().Err(err).Str("stage", req.StageID).Msg("capacity profile lookup failed, using defaults")
	}

	slot, err := s.finder.FindSlot(ctx, stage, profile, req.DurationMinutes, req.EarliestStart, s.horizonDays, overlay)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoCapacity):
			telemetry.BatchRequestsTotal.WithLabelValues("no_capacity").Inc()
		case errors.Is(err, ErrInvalidStageConfig):
			telemetry.BatchRequestsTotal.WithLabelValues("invalid_stage").Inc()
		default:
			telemetry.BatchRequestsTotal.WithLabelValues("error").Inc()
		}
		s.logger.Warn().Err(err).
			Str("job", req.JobID).
			Str("stage", req.StageID).
			Int("duration_minutes", req.DurationMinutes).
			Msg("request could not be placed")
		result.Err = err
		return result
	}

	overlay.Add(stage.ID, s.cal.DayStart(slot.Start), Interval{Start: slot.Start, End: slot.End})

	result.Start = s.cal.ToAbsolute(slot.Start)
	result.End = s.cal.ToAbsolute(slot.End)
	telemetry.BatchRequestsTotal.WithLabelValues("scheduled").Inc()
	return result
}

// CommitBatch schedules the batch and persists the successful
// placements, one transaction per job. In-memory scheduling does not
// depend on persistence, so on a write failure the computed results are
// still returned alongside the error; the caller owns retries.
func (s *Scheduler) CommitBatch(ctx context.Context, requests []Request) ([]Result, error) {
	results := s.ScheduleBatch(ctx, requests)

	byJob := make(map[string][]models.StageBooking)
	var jobOrder []string
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if _, seen := byJob[r.JobID]; !seen {
			jobOrder = append(jobOrder, r.JobID)
		}
		byJob[r.JobID] = append(byJob[r.JobID], models.StageBooking{
			StageID:         r.StageID,
			JobID:           r.JobID,
			StartsAt:        r.Start,
			EndsAt:          r.End,
			DurationMinutes: r.DurationMinutes,
			Status:          models.BookingPending,
		})
	}

	var persistErr error
	for _, jobID := range jobOrder {
		bookings := byJob[jobID]
		if err := s.store.PersistBookings(ctx, bookings); err != nil {
			s.logger.Error().Err(err).Str("job", jobID).Msg("failed to persist bookings")
			if persistErr == nil {
				persistErr = fmt.Errorf("persist bookings for job %s: %w", jobID, err)
			}
			continue
		}
		telemetry.BookingsCommittedTotal.Add(float64(len(bookings)))
		if s.bus != nil {
			for _, b := range bookings {
				s.bus.Publish(events.EventBookingCommitted, events.Payload{
					"job_id":           b.JobID,
					"stage_id":         b.StageID,
					"starts_at":        b.StartsAt,
					"ends_at":          b.EndsAt,
					"duration_minutes": b.DurationMinutes,
				})
			}
		}
	}

	if s.bus != nil {
		s.bus.Publish(events.EventBatchScheduled, events.Payload{
			"requested": len(requests),
			"scheduled": len(byJob),
		})
	}

	return results, persistErr
}
