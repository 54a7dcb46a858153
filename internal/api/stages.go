/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/friendsincode/forgeplan/internal/models"
	"github.com/friendsincode/forgeplan/internal/store"
)

func (a *API) handleStagesList(w http.ResponseWriter, r *http.Request) {
	stages, err := a.store.ListStages(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("stage listing failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, stages)
}

func (a *API) handleStagesGet(w http.ResponseWriter, r *http.Request) {
	stageID := chi.URLParam(r, "stageID")
	if stageID == "" {
		writeError(w, http.StatusBadRequest, "stage_id_required")
		return
	}

	stage, err := a.store.GetStage(r.Context(), stageID)
	if err != nil {
		if errors.Is(err, store.ErrStageNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		a.logger.Error().Err(err).Str("stage", stageID).Msg("stage lookup failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, stage)
}

type stageCreateRequest struct {
	Name               string  `json:"name"`
	Sequence           int     `json:"sequence"`
	DailyCapacityHours float64 `json:"daily_capacity_hours"`
	WorkStartMinute    int     `json:"work_start_minute"`
	WorkEndMinute      int     `json:"work_end_minute"`
	MaxParallelJobs    int     `json:"max_parallel_jobs"`
}

func (a *API) handleStagesCreate(w http.ResponseWriter, r *http.Request) {
	var req stageCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}
	if req.WorkEndMinute <= req.WorkStartMinute {
		writeError(w, http.StatusBadRequest, "work_window_invalid")
		return
	}
	if req.DailyCapacityHours <= 0 {
		req.DailyCapacityHours = models.DefaultDailyCapacityHours
	}

	stage := models.Stage{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		Sequence:           req.Sequence,
		DailyCapacityHours: req.DailyCapacityHours,
		WorkStartMinute:    req.WorkStartMinute,
		WorkEndMinute:      req.WorkEndMinute,
		MaxParallelJobs:    req.MaxParallelJobs,
	}
	if err := a.store.CreateStage(r.Context(), &stage); err != nil {
		a.logger.Error().Err(err).Str("name", req.Name).Msg("stage creation failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusCreated, stage)
}

func (a *API) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	stageID := chi.URLParam(r, "stageID")
	if stageID == "" {
		writeError(w, http.StatusBadRequest, "stage_id_required")
		return
	}

	if _, err := a.store.GetStage(r.Context(), stageID); err != nil {
		if errors.Is(err, store.ErrStageNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	profile, err := a.store.GetCapacityProfile(r.Context(), stageID)
	if err != nil {
		a.logger.Error().Err(err).Str("stage", stageID).Msg("profile lookup failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type profileUpsertRequest struct {
	DailyCapacityHours float64 `json:"daily_capacity_hours"`
	EfficiencyFactor   float64 `json:"efficiency_factor"`
	MaxParallelJobs    int     `json:"max_parallel_jobs"`
}

func (a *API) handleProfileUpsert(w http.ResponseWriter, r *http.Request) {
	stageID := chi.URLParam(r, "stageID")
	if stageID == "" {
		writeError(w, http.StatusBadRequest, "stage_id_required")
		return
	}

	var req profileUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.DailyCapacityHours <= 0 {
		writeError(w, http.StatusBadRequest, "capacity_must_be_positive")
		return
	}
	if req.EfficiencyFactor <= 0 || req.EfficiencyFactor > 1 {
		writeError(w, http.StatusBadRequest, "efficiency_out_of_range")
		return
	}

	if _, err := a.store.GetStage(r.Context(), stageID); err != nil {
		if errors.Is(err, store.ErrStageNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	profile := models.CapacityProfile{
		StageID:            stageID,
		DailyCapacityHours: req.DailyCapacityHours,
		EfficiencyFactor:   req.EfficiencyFactor,
		MaxParallelJobs:    req.MaxParallelJobs,
	}
	if err := a.store.UpsertCapacityProfile(r.Context(), profile); err != nil {
		a.logger.Error().Err(err).Str("stage", stageID).Msg("profile upsert failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type jobCreateRequest struct {
	Reference string     `json:"reference"`
	Name      string     `json:"name"`
	Priority  int        `json:"priority"`
	DueAt     *time.Time `json:"due_at,omitempty"`
	Stages    []struct {
		StageID                  string `json:"stage_id"`
		EstimatedDurationMinutes int    `json:"estimated_duration_minutes"`
	} `json:"stages"`
}

func (a *API) handleJobsCreate(w http.ResponseWriter, r *http.Request) {
	var req jobCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Reference == "" {
		writeError(w, http.StatusBadRequest, "reference_required")
		return
	}
	if len(req.Stages) == 0 {
		writeError(w, http.StatusBadRequest, "stages_required")
		return
	}

	job := models.Job{
		ID:        uuid.NewString(),
		Reference: req.Reference,
		Name:      req.Name,
		Priority:  req.Priority,
		DueAt:     req.DueAt,
		Status:    models.JobPending,
	}

	instances := make([]models.JobStage, 0, len(req.Stages))
	for i, js := range req.Stages {
		if js.StageID == "" {
			writeError(w, http.StatusBadRequest, "stage_id_required")
			return
		}
		if js.EstimatedDurationMinutes <= 0 {
			writeError(w, http.StatusBadRequest, "duration_must_be_positive")
			return
		}
		stage, err := a.store.GetStage(r.Context(), js.StageID)
		if err != nil {
			if errors.Is(err, store.ErrStageNotFound) {
				writeError(w, http.StatusBadRequest, "unknown_stage")
				return
			}
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		instances = append(instances, models.JobStage{
			JobID:                    job.ID,
			StageID:                  stage.ID,
			Sequence:                 i + 1,
			EstimatedDurationMinutes: js.EstimatedDurationMinutes,
			Status:                   models.JobStagePending,
		})
	}

	if err := a.store.CreateJob(r.Context(), &job, instances); err != nil {
		a.logger.Error().Err(err).Str("reference", req.Reference).Msg("job creation failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusCreated, job)
}
