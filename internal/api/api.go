/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/forgeplan/internal/auth"
	"github.com/friendsincode/forgeplan/internal/events"
	"github.com/friendsincode/forgeplan/internal/scheduling"
	"github.com/friendsincode/forgeplan/internal/store"
	"github.com/friendsincode/forgeplan/internal/timeline"
	"github.com/friendsincode/forgeplan/internal/webhooks"
	"github.com/friendsincode/forgeplan/internal/workload"
)

// Publisher is the event sink for handler-side notifications.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// API exposes HTTP handlers.
type API struct {
	store     *store.Store
	scheduler *scheduling.Scheduler
	analyzer  *workload.Analyzer
	timeline  *timeline.Calculator
	hooks     *webhooks.Service
	bus       Publisher
	jwtSecret []byte
	logger    zerolog.Logger
}

// New creates the API router wrapper. hooks and bus may be nil when
// webhook delivery or eventing is disabled.
func New(st *store.Store, sched *scheduling.Scheduler, analyzer *workload.Analyzer, tl *timeline.Calculator, hooks *webhooks.Service, bus Publisher, jwtSecret []byte, logger zerolog.Logger) *API {
	return &API{
		store:     st,
		scheduler: sched,
		analyzer:  analyzer,
		timeline:  tl,
		hooks:     hooks,
		bus:       bus,
		jwtSecret: jwtSecret,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts all API routes on the given router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Route("/stages", func(r chi.Router) {
				r.Get("/", a.handleStagesList)
				r.With(auth.RequireRole(auth.RolePlanner)).Post("/", a.handleStagesCreate)
				r.Route("/{stageID}", func(r chi.Router) {
					r.Get("/", a.handleStagesGet)
					r.Get("/profile", a.handleProfileGet)
					r.With(auth.RequireRole(auth.RolePlanner)).Put("/profile", a.handleProfileUpsert)
					r.Get("/workload", a.handleWorkloadGet)
				})
			})

			pr.Route("/jobs", func(r chi.Router) {
				r.With(auth.RequireRole(auth.RolePlanner)).Post("/", a.handleJobsCreate)
				r.Get("/{jobID}/timeline", a.handleJobTimeline)
			})

			pr.Route("/schedule", func(r chi.Router) {
				r.With(auth.RequireRole(auth.RolePlanner)).Post("/batch", a.handleScheduleBatch)
			})

			pr.Route("/bookings", func(r chi.Router) {
				r.With(auth.RequireRole(auth.RolePlanner)).Post("/{bookingID}/start", a.handleBookingStart)
				r.With(auth.RequireRole(auth.RolePlanner)).Post("/{bookingID}/complete", a.handleBookingComplete)
			})

			pr.Route("/webhooks", func(r chi.Router) {
				r.With(auth.RequireRole(auth.RolePlanner)).Get("/", a.handleWebhooksList)
				r.With(auth.RequireRole(auth.RolePlanner)).Post("/", a.handleWebhooksCreate)
				r.With(auth.RequireRole(auth.RolePlanner)).Post("/{webhookID}/test", a.handleWebhookTest)
			})

			pr.Get("/workloads", a.handleWorkloadsList)
			pr.Get("/bottlenecks", a.handleBottlenecks)
			pr.With(auth.RequireRole(auth.RolePlanner)).Post("/impact", a.handleImpact)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
