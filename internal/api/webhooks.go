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

	"github.com/friendsincode/forgeplan/internal/models"
	"github.com/friendsincode/forgeplan/internal/store"
)

// webhookResponse never exposes the target secret.
type webhookResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Events    string    `json:"events,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func toWebhookResponse(target models.WebhookTarget) webhookResponse {
	return webhookResponse{
		ID:        target.ID,
		Name:      target.Name,
		URL:       target.URL,
		Events:    target.Events,
		Active:    target.Active,
		CreatedAt: target.CreatedAt,
	}
}

func (a *API) handleWebhooksList(w http.ResponseWriter, r *http.Request) {
	targets, err := a.store.ListWebhookTargets(r.Context(), false)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to list webhook targets")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	out := make([]webhookResponse, 0, len(targets))
	for _, t := range targets {
		out = append(out, toWebhookResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

type webhookCreateRequest struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Secret string `json:"secret"`
	Events string `json:"events"`
}

func (a *API) handleWebhooksCreate(w http.ResponseWriter, r *http.Request) {
	var req webhookCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "name_and_url_required")
		return
	}

	target := &models.WebhookTarget{
		Name:   req.Name,
		URL:    req.URL,
		Secret: req.Secret,
		Events: req.Events,
		Active: true,
	}
	if err := a.store.CreateWebhookTarget(r.Context(), target); err != nil {
		a.logger.Error().Err(err).Msg("failed to create webhook target")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusCreated, toWebhookResponse(*target))
}

func (a *API) handleWebhookTest(w http.ResponseWriter, r *http.Request) {
	if a.hooks == nil {
		writeError(w, http.StatusServiceUnavailable, "webhooks_disabled")
		return
	}

	target, err := a.store.GetWebhookTarget(r.Context(), chi.URLParam(r, "webhookID"))
	if err != nil {
		if errors.Is(err, store.ErrWebhookNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if err := a.hooks.TestTarget(r.Context(), target); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":  "delivery_failed",
			"detail": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}
