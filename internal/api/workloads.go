/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/forgeplan/internal/store"
	"github.com/friendsincode/forgeplan/internal/workload"
)

func (a *API) handleWorkloadsList(w http.ResponseWriter, r *http.Request) {
	snapshots, err := a.analyzer.AllStageWorkloads(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("workload listing failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (a *API) handleWorkloadGet(w http.ResponseWriter, r *http.Request) {
	stageID := chi.URLParam(r, "stageID")
	if stageID == "" {
		writeError(w, http.StatusBadRequest, "stage_id_required")
		return
	}

	snap, err := a.analyzer.StageWorkload(r.Context(), stageID)
	if err != nil {
		if errors.Is(err, store.ErrStageNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		a.logger.Error().Err(err).Str("stage", stageID).Msg("workload lookup failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleBottlenecks(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = n
	}

	snapshots, err := a.analyzer.BottleneckStages(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("bottleneck listing failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

type impactRequest struct {
	Stages []workload.StageLoad `json:"stages"`
}

func (a *API) handleImpact(w http.ResponseWriter, r *http.Request) {
	var req impactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(req.Stages) == 0 {
		writeError(w, http.StatusBadRequest, "stages_required")
		return
	}
	for _, load := range req.Stages {
		if load.StageID == "" {
			writeError(w, http.StatusBadRequest, "stage_id_required")
			return
		}
		if load.EstimatedHours < 0 {
			writeError(w, http.StatusBadRequest, "hours_must_be_non_negative")
			return
		}
	}

	impacts, err := a.analyzer.EstimateImpact(r.Context(), req.Stages)
	if err != nil {
		if errors.Is(err, store.ErrStageNotFound) {
			writeError(w, http.StatusNotFound, "stage_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("impact estimate failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, impacts)
}
