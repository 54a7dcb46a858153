/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sweep periodically flags active stage bookings running past
// their estimated completion so downstream systems can recalculate due
// dates.
package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/forgeplan/internal/events"
	"github.com/friendsincode/forgeplan/internal/store"
	"github.com/friendsincode/forgeplan/internal/telemetry"
)

// Publisher is the event sink for overdue notifications.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// Service runs the progression sweep loop.
type Service struct {
	store    *store.Store
	bus      Publisher
	interval time.Duration
	gate     func() bool
	logger   zerolog.Logger
}

// New constructs the sweep service.
func New(st *store.Store, bus Publisher, interval time.Duration, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Service{
		store:    st,
		bus:      bus,
		interval: interval,
		logger:   logger.With().Str("component", "sweep").Logger(),
	}
}

// SetGate installs a predicate consulted before each pass. When it
// returns false the tick is skipped; used to restrict sweeping to the
// elected leader replica.
func (s *Service) SetGate(gate func() bool) {
	s.gate = gate
}

// Run executes the sweep loop until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("progression sweep started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("progression sweep stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one sweep pass.
func (s *Service) Tick(ctx context.Context) {
	if s.gate != nil && !s.gate() {
		return
	}
	telemetry.SweepTicksTotal.Inc()

	overdue, err := s.store.ListActiveStagesOverdue(ctx, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep failed to list overdue stages")
		return
	}

	telemetry.SweepOverdueStages.Set(float64(len(overdue)))
	if len(overdue) == 0 {
		return
	}

	for _, o := range overdue {
		s.logger.Warn().
			Str("job", o.JobID).
			Str("stage", o.StageID).
			Time("started_at", o.StartedAt).
			Int("estimated_minutes", o.EstimatedDurationMinutes).
			Msg("stage running past estimate")

		if s.bus != nil {
			s.bus.Publish(events.EventStageOverdue, events.Payload{
				"booking_id":        o.BookingID,
				"job_id":            o.JobID,
				"stage_id":          o.StageID,
				"started_at":        o.StartedAt,
				"estimated_minutes": o.EstimatedDurationMinutes,
			})
		}
	}
}
