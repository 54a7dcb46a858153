/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/forgeplan/internal/events"
	"github.com/friendsincode/forgeplan/internal/scheduling"
	"github.com/friendsincode/forgeplan/internal/store"
)

type batchRequestItem struct {
	JobID           string    `json:"job_id"`
	StageID         string    `json:"stage_id"`
	DurationMinutes int       `json:"duration_minutes"`
	EarliestStart   time.Time `json:"earliest_start"`
	Priority        int       `json:"priority"`
}

type batchRequest struct {
	Commit   bool               `json:"commit"`
	Requests []batchRequestItem `json:"requests"`
}

type batchResultitem struct {
	JobID           string     `json:"job_id"`
	StageID         string     `json:"stage_id"`
	Start           *time.Time `json:"start,omitempty"`
	End             *time.Time `json:"end,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Error           string     `json:"error,omitempty"`
	ErrorCode       string     `json:"error_code,omitempty"`
}

type batchResponse struct {
	Results      []batchResultitem `json:"results"`
	Scheduled    int               `json:"scheduled"`
	Failed       int               `json:"failed"`
	Committed    bool              `json:"committed"`
	PersistError string            `json:"persist_error,omitempty"`
}

// handleScheduleBatch resolves a batch of placement requests. With
// commit=false the response is a dry run: nothing is written.
func (a *API) handleScheduleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "requests_required")
		return
	}

	requests := make([]scheduling.Request, 0, len(req.Requests))
	for _, item := range req.Requests {
		if item.JobID == "" || item.StageID == "" {
			writeError(w, http.StatusBadRequest, "job_id_and_stage_id_required")
			return
		}
		if item.DurationMinutes <= 0 {
			writeError(w, http.StatusBadRequest, "duration_must_be_positive")
			return
		}
		requests = append(requests, scheduling.Request{
			JobID:           item.JobID,
			StageID:         item.StageID,
			DurationMinutes: item.DurationMinutes,
			EarliestStart:   item.EarliestStart,
			Priority:        item.Priority,
		})
	}

	var (
		results    []scheduling.Result
		persistErr error
	)
	if req.Commit {
		results, persistErr = a.scheduler.CommitBatch(r.Context(), requests)
	} else {
		results = a.scheduler.ScheduleBatch(r.Context(), requests)
	}

	resp := batchResponse{
		Results:   make([]batchResultitem, 0, len(results)),
		Committed: req.Commit && persistErr == nil,
	}
	for _, res := range results {
		item := batchResultitem{
			JobID:           res.JobID,
			StageID:         res.StageID,
			DurationMinutes: res.DurationMinutes,
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
			item.ErrorCode = errorCode(res.Err)
			resp.Failed++
		} else {
			start, end := res.Start, res.End
			item.Start = &start
			item.End = &end
			resp.Scheduled++
		}
		resp.Results = append(resp.Results, item)
	}

	status := http.StatusOK
	if persistErr != nil {
		resp.PersistError = persistErr.Error()
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, scheduling.ErrNoCapacity):
		return "no_capacity"
	case errors.Is(err, scheduling.ErrInvalidStageConfig):
		return "invalid_stage_config"
	case errors.Is(err, store.ErrStageNotFound):
		return "stage_not_found"
	default:
		return "internal_error"
	}
}

func (a *API) handleBookingStart(w http.ResponseWriter, r *http.Request) {
	a.transitionBooking(w, r, a.store.StartBooking, events.EventStageStarted)
}

func (a *API) handleBookingComplete(w http.ResponseWriter, r *http.Request) {
	a.transitionBooking(w, r, a.store.CompleteBooking, events.EventStageCompleted)
}

func (a *API) transitionBooking(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, bookingID string, now time.Time) error, eventType events.EventType) {
	bookingID := chi.URLParam(r, "bookingID")
	if bookingID == "" {
		writeError(w, http.StatusBadRequest, "booking_id_required")
		return
	}

	if err := fn(r.Context(), bookingID, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrBookingNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		a.logger.Error().Err(err).Str("booking", bookingID).Msg("booking transition failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if a.bus != nil {
		a.bus.Publish(eventType, events.Payload{"booking_id": bookingID})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
