/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for frequently
// accessed scheduling data: the stage list, capacity profiles, and
// workload snapshots.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/forgeplan/internal/models"
	"github.com/friendsincode/forgeplan/internal/telemetry"
)

// Default TTL values for different cache types
const (
	DefaultStageListTTL = 5 * time.Minute
	DefaultProfileTTL   = 10 * time.Minute
	DefaultWorkloadTTL  = 30 * time.Second
)

// Key prefixes for Redis cache
const (
	KeyStageList = "forgeplan:cache:stages"
	KeyStage     = "forgeplan:cache:stage:"    // + stage_id
	KeyProfile   = "forgeplan:cache:profile:"  // + stage_id
	KeyWorkload  = "forgeplan:cache:workload:" // + stage_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL overrides
	StageListTTL time.Duration
	ProfileTTL   time.Duration
	WorkloadTTL  time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		StageListTTL:   DefaultStageListTTL,
		ProfileTTL:     DefaultProfileTTL,
		WorkloadTTL:    DefaultWorkloadTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// delete removes a key from cache.
func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// Stage caching methods

// GetStageList retrieves the cached list of stages.
func (c *Cache) GetStageList(ctx context.Context) ([]models.Stage, bool) {
	var stages []models.Stage
	found, err := c.get(ctx, KeyStageList, &stages)
	if err != nil || !found {
		telemetry.CacheMissesTotal.WithLabelValues("stage_list").Inc()
		return nil, false
	}
	telemetry.CacheHitsTotal.WithLabelValues("stage_list").Inc()
	return stages, true
}

// SetStageList caches the list of stages.
func (c *Cache) SetStageList(ctx context.Context, stages []models.Stage) {
	_ = c.set(ctx, KeyStageList, stages, c.ttl(c.config.StageListTTL, DefaultStageListTTL))
}

// GetStage retrieves a cached stage.
func (c *Cache) GetStage(ctx context.Context, stageID string) (*models.Stage, bool) {
	var stage models.Stage
	found, err := c.get(ctx, KeyStage+stageID, &stage)
	if err != nil || !found {
		telemetry.CacheMissesTotal.WithLabelValues("stage").Inc()
		return nil, false
	}
	telemetry.CacheHitsTotal.WithLabelValues("stage").Inc()
	return &stage, true
}

// SetStage caches a stage.
func (c *Cache) SetStage(ctx context.Context, stage models.Stage) {
	_ = c.set(ctx, KeyStage+stage.ID, stage, c.ttl(c.config.StageListTTL, DefaultStageListTTL))
}

// InvalidateStages clears stage-level cache entries.
func (c *Cache) InvalidateStages(ctx context.Context, stageIDs ...string) {
	_ = c.delete(ctx, KeyStageList)
	for _, id := range stageIDs {
		_ = c.delete(ctx, KeyStage+id)
		_ = c.delete(ctx, KeyProfile+id)
		_ = c.delete(ctx, KeyWorkload+id)
	}
}

// Capacity profile caching methods

// GetProfile retrieves a cached capacity profile.
func (c *Cache) GetProfile(ctx context.Context, stageID string) (*models.CapacityProfile, bool) {
	var profile models.CapacityProfile
	found, err := c.get(ctx, KeyProfile+stageID, &profile)
	if err != nil || !found {
		telemetry.CacheMissesTotal.WithLabelValues("profile").Inc()
		return nil, false
	}
	telemetry.CacheHitsTotal.WithLabelValues("profile").Inc()
	return &profile, true
}

// SetProfile caches a capacity profile.
func (c *Cache) SetProfile(ctx context.Context, profile models.CapacityProfile) {
	_ = c.set(ctx, KeyProfile+profile.StageID, profile, c.ttl(c.config.ProfileTTL, DefaultProfileTTL))
}

// Workload snapshot caching methods. Snapshots are read-time
// projections, so the TTL is short.

// GetWorkload retrieves a cached workload snapshot into dest.
func (c *Cache) GetWorkload(ctx context.Context, stageID string, dest any) bool {
	found, err := c.get(ctx, KeyWorkload+stageID, dest)
	if err != nil || !found {
		telemetry.CacheMissesTotal.WithLabelValues("workload").Inc()
		return false
	}
	telemetry.CacheHitsTotal.WithLabelValues("workload").Inc()
	return true
}

// SetWorkload caches a workload snapshot.
func (c *Cache) SetWorkload(ctx context.Context, stageID string, snapshot any) {
	_ = c.set(ctx, KeyWorkload+stageID, snapshot, c.ttl(c.config.WorkloadTTL, DefaultWorkloadTTL))
}

// InvalidateWorkload clears a stage's workload snapshot.
func (c *Cache) InvalidateWorkload(ctx context.Context, stageID string) {
	_ = c.delete(ctx, KeyWorkload+stageID)
}

func (c *Cache) ttl(configured, def time.Duration) time.Duration {
	if configured > 0 {
		return configured
	}
	return def
}
