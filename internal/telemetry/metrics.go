/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics and OpenTelemetry
// tracing for the scheduler.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgeplan_api_requests_total",
		Help: "Total API requests by method, endpoint and status code.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forgeplan_api_request_duration_seconds",
		Help:    "API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forgeplan_api_active_connections",
		Help: "In-flight API requests.",
	})

	// Scheduling metrics
	BatchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgeplan_batch_requests_total",
		Help: "Batch scheduling requests by outcome (scheduled, no_capacity, invalid_stage).",
	}, []string{"outcome"})

	SlotSearchDays = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forgeplan_slot_search_days",
		Help:    "Working days scanned before a slot was found.",
		Buckets: []float64{0, 1, 2, 3, 5, 10, 20, 40, 60},
	})

	BookingsCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forgeplan_bookings_committed_total",
		Help: "Stage bookings persisted after batch scheduling.",
	})

	// Workload metrics
	StageQueueDays = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "forgeplan_stage_queue_days",
		Help: "Working days needed to clear a stage's pending workload.",
	}, []string{"stage"})

	// Sweep metrics
	SweepTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forgeplan_sweep_ticks_total",
		Help: "Progression sweep iterations.",
	})

	SweepOverdueStages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forgeplan_sweep_overdue_stages",
		Help: "Active stage bookings running past their estimate, as of the last sweep.",
	})

	// Database metrics
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forgeplan_db_query_duration_seconds",
		Help:    "Database operation latency by operation and table.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgeplan_db_errors_total",
		Help: "Database errors by operation and kind.",
	}, []string{"operation", "kind"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forgeplan_db_connections_active",
		Help: "Open database connections.",
	})

	// Cache metrics
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgeplan_cache_hits_total",
		Help: "Cache hits by key kind.",
	}, []string{"kind"})

	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgeplan_cache_misses_total",
		Help: "Cache misses by key kind.",
	}, []string{"kind"})

	// Leader election metrics
	LeaderStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "forgeplan_leader_status",
		Help: "Whether this instance currently holds the sweep leader lease (1) or not (0).",
	}, []string{"instance_id"})

	LeaderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgeplan_leader_transitions_total",
		Help: "Leadership acquisitions and losses by this instance.",
	}, []string{"instance_id", "transition"})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
