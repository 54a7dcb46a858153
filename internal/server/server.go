/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"github.com/friendsincode/forgeplan/internal/api"
	"github.com/friendsincode/forgeplan/internal/cache"
	"github.com/friendsincode/forgeplan/internal/config"
	"github.com/friendsincode/forgeplan/internal/db"
	"github.com/friendsincode/forgeplan/internal/eventbus"
	"github.com/friendsincode/forgeplan/internal/events"
	"github.com/friendsincode/forgeplan/internal/leadership"
	"github.com/friendsincode/forgeplan/internal/scheduling"
	"github.com/friendsincode/forgeplan/internal/store"
	"github.com/friendsincode/forgeplan/internal/sweep"
	"github.com/friendsincode/forgeplan/internal/telemetry"
	"github.com/friendsincode/forgeplan/internal/timeline"
	"github.com/friendsincode/forgeplan/internal/webhooks"
	"github.com/friendsincode/forgeplan/internal/workcal"
	"github.com/friendsincode/forgeplan/internal/workload"
)

// Server bundles the HTTP API and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	metricsSrv *http.Server
	closers    []func() error

	db        *gorm.DB
	cache     *cache.Cache
	store     *store.Store
	calendar  *workcal.Calendar
	scheduler *scheduling.Scheduler
	analyzer  *workload.Analyzer
	timeline  *timeline.Calculator
	sweeper   *sweep.Service
	election  *leadership.Election
	bus       *eventbus.Bus
	hooks     *webhooks.Service
	api       *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(srv.router, "forgeplan-api"),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := db.RegisterCallbacks(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	entityCache, err := cache.New(cacheCfg, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
	} else {
		s.cache = entityCache
		s.DeferClose(func() error { return s.cache.Close() })
	}

	s.store = store.New(database, s.cache, s.logger)

	holidays, err := workcal.LoadHolidays(s.cfg.HolidayFile)
	if err != nil {
		return fmt.Errorf("load holiday calendar: %w", err)
	}
	s.calendar, err = workcal.New(s.cfg.Timezone, holidays)
	if err != nil {
		return fmt.Errorf("build business calendar: %w", err)
	}
	s.logger.Info().
		Str("timezone", s.cfg.Timezone).
		Int("holidays", len(holidays)).
		Msg("business calendar ready")

	localBus := events.NewBus()
	s.bus, err = eventbus.New(s.cfg.NATSURL, localBus, s.logger)
	if err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}
	s.DeferClose(func() error { return s.bus.Close() })

	s.hooks = webhooks.New(s.store, localBus, s.logger)

	finder := scheduling.NewFinder(s.store, s.calendar, s.logger)
	s.scheduler = scheduling.NewScheduler(s.store, finder, s.calendar, s.bus, s.cfg.HorizonDays, s.logger)
	s.analyzer = workload.NewAnalyzer(s.store, s.cache, s.logger)
	s.timeline = timeline.NewCalculator(s.store, finder, s.analyzer, s.calendar, s.cfg.HorizonDays, s.logger)

	if s.cfg.SweepInterval > 0 {
		s.sweeper = sweep.New(s.store, s.bus, time.Duration(s.cfg.SweepInterval)*time.Second, s.logger)

		if s.cfg.LeaderElection {
			leaseClient := redis.NewClient(&redis.Options{
				Addr:     s.cfg.RedisAddr,
				Password: s.cfg.RedisPassword,
				DB:       s.cfg.RedisDB,
			})
			s.election = leadership.New(leadership.Config{}, leaseClient, s.logger)
			s.sweeper.SetGate(s.election.IsLeader)
			s.DeferClose(func() error {
				if err := s.election.Stop(); err != nil {
					s.logger.Error().Err(err).Msg("leader election stop failed")
				}
				return leaseClient.Close()
			})
		}
	}

	s.api = api.New(s.store, s.scheduler, s.analyzer, s.timeline, s.hooks, s.bus, []byte(s.cfg.JWTSigningKey), s.logger)

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.election != nil {
		s.election.Start(ctx)
	}

	if s.hooks != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.hooks.Run(ctx)
		}()
	}

	if s.sweeper != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("progression sweep exited")
			}
		}()
	}

	if s.cfg.MetricsBind != "" {
		s.metricsSrv = &http.Server{
			Addr:              s.cfg.MetricsBind,
			Handler:           telemetry.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.logger.Info().Str("addr", s.cfg.MetricsBind).Msg("metrics listener started")
			if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Msg("metrics listener exited")
			}
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.metricsSrv.Shutdown(ctx)
		cancel()
		s.metricsSrv = nil
	}
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.api.Routes(s.router)
}
