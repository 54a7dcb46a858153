/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/forgeplan/internal/scheduling"
	"github.com/friendsincode/forgeplan/internal/store"
)

func (a *API) handleJobTimeline(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job_id_required")
		return
	}

	tl, err := a.timeline.Calculate(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrStageNotFound):
			writeError(w, http.StatusNotFound, "stage_not_found")
		case errors.Is(err, scheduling.ErrNoCapacity):
			writeError(w, http.StatusConflict, "no_capacity")
		case errors.Is(err, scheduling.ErrInvalidStageConfig):
			writeError(w, http.StatusConflict, "invalid_stage_config")
		default:
			a.logger.Error().Err(err).Str("job", jobID).Msg("timeline calculation failed")
			writeError(w, http.StatusInternalServerError, "db_error")
		}
		return
	}

	if len(tl.Stages) == 0 {
		writeError(w, http.StatusNotFound, "no_pending_stages")
		return
	}
	writeJSON(w, http.StatusOK, tl)
}
