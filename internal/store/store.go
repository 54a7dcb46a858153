/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store is the persistence collaborator for the scheduler: all
// reads of stages, capacity profiles and committed bookings, and the
// single write path that commits a batch's bookings.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/forgeplan/internal/cache"
	"github.com/friendsincode/forgeplan/internal/models"
	"github.com/friendsincode/forgeplan/internal/workcal"
)

// ErrStageNotFound indicates an unknown stage ID.
var ErrStageNotFound = errors.New("stage not found")

// ErrBookingNotFound indicates an unknown booking ID.
var ErrBookingNotFound = errors.New("booking not found")

// ErrWebhookNotFound indicates an unknown webhook target ID.
var ErrWebhookNotFound = errors.New("webhook target not found")

// Store wraps database access with optional Redis caching.
type Store struct {
	db     *gorm.DB
	cache  *cache.Cache
	logger zerolog.Logger
}

// New creates a store. The cache may be nil.
func New(db *gorm.DB, c *cache.Cache, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		cache:  c,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// DB exposes the underlying handle for composition-root wiring.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// GetStage loads a stage by ID.
func (s *Store) GetStage(ctx context.Context, stageID string) (*models.Stage, error) {
	if s.cache != nil {
		if stage, ok := s.cache.GetStage(ctx, stageID); ok {
			return stage, nil
		}
	}

	var stage models.Stage
	err := s.db.WithContext(ctx).Where("id = ?", stageID).First(&stage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query stage: %w", err)
	}

	if s.cache != nil {
		s.cache.SetStage(ctx, stage)
	}
	return &stage, nil
}

// ListStages returns all stages in routing order.
func (s *Store) ListStages(ctx context.Context) ([]models.Stage, error) {
	if s.cache != nil {
		if stages, ok := s.cache.GetStageList(ctx); ok {
			return stages, nil
		}
	}

	var stages []models.Stage
	if err := s.db.WithContext(ctx).Order("sequence ASC").Find(&stages).Error; err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}

	if s.cache != nil {
		s.cache.SetStageList(ctx, stages)
	}
	return stages, nil
}

// GetCapacityProfile returns the stage's capacity profile, or the
// default profile when none is stored. On a read error the default is
// returned alongside the error so callers can degrade instead of
// aborting a batch.
func (s *Store) GetCapacityProfile(ctx context.Context, stageID string) (models.CapacityProfile, error) {
	if s.cache != nil {
		if profile, ok := s.cache.GetProfile(ctx, stageID); ok {
			return *profile, nil
		}
	}

	var profile models.CapacityProfile
	err := s.db.WithContext(ctx).Where("stage_id = ?", stageID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DefaultCapacityProfile(stageID), nil
	}
	if err != nil {
		return models.DefaultCapacityProfile(stageID), fmt.Errorf("query capacity profile: %w", err)
	}

	if s.cache != nil {
		s.cache.SetProfile(ctx, profile)
	}
	return profile, nil
}

// UpsertCapacityProfile stores a stage's capacity override.
func (s *Store) UpsertCapacityProfile(ctx context.Context, profile models.CapacityProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).
		Where("stage_id = ?", profile.StageID).
		Assign(map[string]any{
			"daily_capacity_hours": profile.DailyCapacityHours,
			"efficiency_factor":    profile.EfficiencyFactor,
			"max_parallel_jobs":    profile.MaxParallelJobs,
		}).
		FirstOrCreate(&models.CapacityProfile{}, models.CapacityProfile{ID: profile.ID, StageID: profile.StageID}).Error
	if err != nil {
		return fmt.Errorf("upsert capacity profile: %w", err)
	}
	if s.cache != nil {
		s.cache.InvalidateStages(ctx, profile.StageID)
	}
	return nil
}

// ListBookings returns pending and active bookings for a stage that
// overlap [from, to), ordered by start time.
func (s *Store) ListBookings(ctx context.Context, stageID string, from, to time.Time) ([]models.StageBooking, error) {
	var bookings []models.StageBooking
	err := s.db.WithContext(ctx).
		Where("stage_id = ?", stageID).
		Where("status IN ?", []models.BookingStatus{models.BookingPending, models.BookingActive}).
		Where("starts_at < ? AND ends_at > ?", to.UTC(), from.UTC()).
		Order("starts_at ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	return bookings, nil
}

// ListStageInstancesForJob returns a job's non-completed stage
// instances in routing order.
func (s *Store) ListStageInstancesForJob(ctx context.Context, jobID string) ([]models.JobStage, error) {
	var instances []models.JobStage
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Where("status <> ?", models.JobStageCompleted).
		Order("sequence ASC").
		Find(&instances).Error
	if err != nil {
		return nil, fmt.Errorf("query job stages: %w", err)
	}
	return instances, nil
}

// PersistBookings writes a set of bookings in one transaction. IDs are
// assigned when empty; status defaults to pending.
func (s *Store) PersistBookings(ctx context.Context, bookings []models.StageBooking) error {
	if len(bookings) == 0 {
		return nil
	}
	for i := range bookings {
		if bookings[i].ID == "" {
			bookings[i].ID = uuid.NewString()
		}
		if bookings[i].Status == "" {
			bookings[i].Status = models.BookingPending
		}
		bookings[i].StartsAt = bookings[i].StartsAt.UTC()
		bookings[i].EndsAt = bookings[i].EndsAt.UTC()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&bookings).Error
	})
	if err != nil {
		return fmt.Errorf("persist bookings: %w", err)
	}

	if s.cache != nil {
		for _, b := range bookings {
			s.cache.InvalidateWorkload(ctx, b.StageID)
		}
	}
	return nil
}

// WorkloadTotals aggregates a stage's open bookings by status.
type WorkloadTotals struct {
	PendingMinutes int
	ActiveMinutes  int
	PendingJobs    int
	ActiveJobs     int
}

// StageWorkloadTotals sums pending and active booking minutes and
// distinct job counts for a stage.
func (s *Store) StageWorkloadTotals(ctx context.Context, stageID string) (WorkloadTotals, error) {
	var rows []struct {
		Status  models.BookingStatus
		Minutes int
		Jobs    int
	}
	err := s.db.WithContext(ctx).
		Model(&models.StageBooking{}).
		Select("status, COALESCE(SUM(duration_minutes), 0) AS minutes, COUNT(DISTINCT job_id) AS jobs").
		Where("stage_id = ?", stageID).
		Where("status IN ?", []models.BookingStatus{models.BookingPending, models.BookingActive}).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return WorkloadTotals{}, fmt.Errorf("aggregate stage workload: %w", err)
	}

	var totals WorkloadTotals
	for _, row := range rows {
		switch row.Status {
		case models.BookingPending:
			totals.PendingMinutes = row.Minutes
			totals.PendingJobs = row.Jobs
		case models.BookingActive:
			totals.ActiveMinutes = row.Minutes
			totals.ActiveJobs = row.Jobs
		}
	}
	return totals, nil
}

// OverdueStage describes an active booking running past its estimate.
type OverdueStage struct {
	BookingID                string
	JobID                    string
	StageID                  string
	StartedAt                time.Time
	EstimatedDurationMinutes int
}

// ListActiveStagesOverdue returns active bookings whose scheduled end
// has passed as of now.
func (s *Store) ListActiveStagesOverdue(ctx context.Context, now time.Time) ([]OverdueStage, error) {
	var bookings []models.StageBooking
	err := s.db.WithContext(ctx).
		Where("status = ?", models.BookingActive).
		Where("ends_at < ?", now.UTC()).
		Order("ends_at ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("query overdue bookings: %w", err)
	}

	overdue := make([]OverdueStage, 0, len(bookings))
	for _, b := range bookings {
		started := b.StartsAt
		if b.StartedAt != nil {
			started = *b.StartedAt
		}
		overdue = append(overdue, OverdueStage{
			BookingID:                b.ID,
			JobID:                    b.JobID,
			StageID:                  b.StageID,
			StartedAt:                started,
			EstimatedDurationMinutes: b.DurationMinutes,
		})
	}
	return overdue, nil
}

// StartBooking marks a booking (and its job stage) active.
func (s *Store) StartBooking(ctx context.Context, bookingID string, now time.Time) error {
	return s.transitionBooking(ctx, bookingID, models.BookingActive, models.JobStageActive, now)
}

// CompleteBooking marks a booking (and its job stage) completed.
func (s *Store) CompleteBooking(ctx context.Context, bookingID string, now time.Time) error {
	return s.transitionBooking(ctx, bookingID, models.BookingCompleted, models.JobStageCompleted, now)
}

func (s *Store) transitionBooking(ctx context.Context, bookingID string, status models.BookingStatus, stageStatus models.JobStageStatus, now time.Time) error {
	now = now.UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var booking models.StageBooking
		if err := tx.Where("id = ?", bookingID).First(&booking).Error; err != nil {
			return err
		}

		updates := map[string]any{"status": status}
		switch status {
		case models.BookingActive:
			updates["started_at"] = now
		case models.BookingCompleted:
			updates["completed_at"] = now
		}
		if err := tx.Model(&models.StageBooking{}).Where("id = ?", bookingID).Updates(updates).Error; err != nil {
			return err
		}

		return tx.Model(&models.JobStage{}).
			Where("job_id = ? AND stage_id = ?", booking.JobID, booking.StageID).
			Update("status", stageStatus).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrBookingNotFound
	}
	if err != nil {
		return fmt.Errorf("transition booking %s: %w", bookingID, err)
	}
	return nil
}

// Seed helpers used by the seed command and tests.

// CreateStage inserts a stage.
func (s *Store) CreateStage(ctx context.Context, stage *models.Stage) error {
	if stage.ID == "" {
		stage.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(stage).Error; err != nil {
		return fmt.Errorf("create stage: %w", err)
	}
	if s.cache != nil {
		s.cache.InvalidateStages(ctx, stage.ID)
	}
	return nil
}

// CreateJob inserts a job with its stage instances.
func (s *Store) CreateJob(ctx context.Context, job *models.Job, stages []models.JobStage) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.JobPending
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("create job: %w", err)
		}
		for i := range stages {
			if stages[i].ID == "" {
				stages[i].ID = uuid.NewString()
			}
			stages[i].JobID = job.ID
			if stages[i].Status == "" {
				stages[i].Status = models.JobStagePending
			}
		}
		if len(stages) == 0 {
			return nil
		}
		if err := tx.Create(&stages).Error; err != nil {
			return fmt.Errorf("create job stages: %w", err)
		}
		return nil
	})
}

// CreateWebhookTarget registers an outbound delivery endpoint.
func (s *Store) CreateWebhookTarget(ctx context.Context, target *models.WebhookTarget) error {
	if target.ID == "" {
		target.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(target).Error; err != nil {
		return fmt.Errorf("create webhook target: %w", err)
	}
	return nil
}

// GetWebhookTarget loads one target by ID.
func (s *Store) GetWebhookTarget(ctx context.Context, id string) (*models.WebhookTarget, error) {
	var target models.WebhookTarget
	err := s.db.WithContext(ctx).First(&target, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook target %s: %w", id, err)
	}
	return &target, nil
}

// ListWebhookTargets returns targets, optionally only active ones.
func (s *Store) ListWebhookTargets(ctx context.Context, activeOnly bool) ([]models.WebhookTarget, error) {
	query := s.db.WithContext(ctx).Order("name")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var targets []models.WebhookTarget
	if err := query.Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("list webhook targets: %w", err)
	}
	return targets, nil
}

// RecordWebhookDelivery stores the outcome of one delivery attempt.
func (s *Store) RecordWebhookDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	if delivery.ID == "" {
		delivery.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(delivery).Error; err != nil {
		return fmt.Errorf("record webhook delivery: %w", err)
	}
	return nil
}

// StageWindow converts a stage's working-hours columns into a calendar window.
func StageWindow(stage *models.Stage) workcal.Window {
	return workcal.Window{StartMinute: stage.WorkStartMinute, EndMinute: stage.WorkEndMinute}
}
