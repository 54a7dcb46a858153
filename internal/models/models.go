/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// JobStatus tracks a production job through its lifecycle.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
)

// Job is a production order passing through an ordered set of stages.
type Job struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Reference string `gorm:"uniqueIndex"`
	Name      string `gorm:"index"`
	Priority  int    `gorm:"index"`
	DueAt     *time.Time
	Status    JobStatus `gorm:"type:varchar(16);index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stage is a discrete production step with bounded daily capacity and a
// fixed working-hours window in local business time.
type Stage struct {
	ID                 string `gorm:"type:uuid;primaryKey"`
	Name               string `gorm:"uniqueIndex"`
	Sequence           int    `gorm:"index"`
	DailyCapacityHours float64
	// Working window, minutes since local midnight. End must exceed start.
	WorkStartMinute int
	WorkEndMinute   int
	MaxParallelJobs int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CapacityProfile overrides a stage's nominal capacity. Effective daily
// capacity is DailyCapacityHours multiplied by EfficiencyFactor.
type CapacityProfile struct {
	ID                 string `gorm:"type:uuid;primaryKey"`
	StageID            string `gorm:"type:uuid;uniqueIndex"`
	DailyCapacityHours float64
	EfficiencyFactor   float64 // 0..1
	MaxParallelJobs    int     // 0 = unbounded
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Defaults applied when a stage has no stored capacity profile.
const (
	DefaultDailyCapacityHours = 8.5
	DefaultEfficiencyFactor   = 0.85
)

// DefaultCapacityProfile returns the fallback profile for a stage.
func DefaultCapacityProfile(stageID string) CapacityProfile {
	return CapacityProfile{
		StageID:            stageID,
		DailyCapacityHours: DefaultDailyCapacityHours,
		EfficiencyFactor:   DefaultEfficiencyFactor,
	}
}

// EffectiveDailyHours returns capacity hours after the efficiency factor.
func (p CapacityProfile) EffectiveDailyHours() float64 {
	eff := p.EfficiencyFactor
	if eff <= 0 || eff > 1 {
		eff = DefaultEfficiencyFactor
	}
	hours := p.DailyCapacityHours
	if hours <= 0 {
		hours = DefaultDailyCapacityHours
	}
	return hours * eff
}

// EffectiveDailyMinutes returns effective capacity in whole minutes.
func (p CapacityProfile) EffectiveDailyMinutes() int {
	return int(p.EffectiveDailyHours() * 60)
}

// BookingStatus tracks a scheduled slot through execution.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
)

// StageBooking is a committed [start, end) slot for a job at a stage.
// Start and end are stored in UTC; a booking always lies inside one
// local working day's window and never spans midnight.
type StageBooking struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	StageID         string `gorm:"type:uuid;index:idx_stage_bookings_stage_time"`
	JobID           string `gorm:"type:uuid;index"`
	StartsAt        time.Time `gorm:"index:idx_stage_bookings_stage_time"`
	EndsAt          time.Time
	DurationMinutes int
	Status          BookingStatus `gorm:"type:varchar(16);index"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// JobStageStatus tracks a job's stage instance.
type JobStageStatus string

const (
	JobStagePending   JobStageStatus = "pending"
	JobStageActive    JobStageStatus = "active"
	JobStageCompleted JobStageStatus = "completed"
)

// JobStage is one step of a job's routing: the work the job needs at a
// given stage, in stage order.
type JobStage struct {
	ID                       string `gorm:"type:uuid;primaryKey"`
	JobID                    string `gorm:"type:uuid;index:idx_job_stages_job_seq"`
	StageID                  string `gorm:"type:uuid;index"`
	Sequence                 int    `gorm:"index:idx_job_stages_job_seq"`
	EstimatedDurationMinutes int
	Status                   JobStageStatus `gorm:"type:varchar(16);index"`
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// WebhookTarget is a registered endpoint for outbound event delivery.
// Events holds a comma separated list of event types; empty subscribes
// to everything.
type WebhookTarget struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	URL       string
	Secret    string
	Events    string
	Active    bool `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WebhookDelivery records one delivery attempt to a target.
type WebhookDelivery struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	TargetID   string `gorm:"type:uuid;index"`
	Event      string
	StatusCode int
	Error      string
	CreatedAt  time.Time
}
