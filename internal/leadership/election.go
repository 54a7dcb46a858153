/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects a single sweep authority across forgeplan
// replicas using a Redis lease. Only the leader runs the progression
// sweep so overdue events are published exactly once per pass.
package leadership

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/forgeplan/internal/telemetry"
)

const (
	defaultLeaseKey      = "forgeplan:leader:sweep"
	defaultLeaseDuration = 15 * time.Second
	defaultRetryInterval = 2 * time.Second
)

// Config controls the lease parameters. Zero values fall back to
// defaults in New.
type Config struct {
	// LeaseKey is the Redis key holding the leader's instance ID.
	LeaseKey string

	// LeaseDuration is how long a lease lives without renewal.
	LeaseDuration time.Duration

	// RetryInterval is how often this instance renews or contests the lease.
	RetryInterval time.Duration

	// InstanceID identifies this replica in the lease and in metrics.
	InstanceID string
}

// Election campaigns for the sweep lease. Construct with New, call
// Start once, and consult IsLeader before doing leader-only work.
type Election struct {
	client *redis.Client
	logger zerolog.Logger
	cfg    Config

	isLeader atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	leaderCh chan bool
}

// New builds an Election on an existing Redis client. The connection
// is not probed here; acquisition failures are logged and retried by
// the campaign loop.
func New(cfg Config, client *redis.Client, logger zerolog.Logger) *Election {
	if cfg.LeaseKey == "" {
		cfg.LeaseKey = defaultLeaseKey
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = defaultLeaseDuration
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.New().String()
	}

	return &Election{
		client:   client,
		logger:   logger.With().Str("component", "leader_election").Logger(),
		cfg:      cfg,
		done:     make(chan struct{}),
		leaderCh: make(chan bool, 1),
	}
}

// Start launches the campaign loop. It returns immediately; leadership
// changes arrive on LeaderCh.
func (e *Election) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.logger.Info().
		Str("instance_id", e.cfg.InstanceID).
		Dur("lease_duration", e.cfg.LeaseDuration).
		Msg("leader election started")

	go e.campaign(ctx)
}

// Stop ends the campaign and releases the lease if held. The Redis
// client is left open for its owner to close.
func (e *Election) Stop() error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()
	<-e.done

	if e.isLeader.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.release(ctx); err != nil {
			return fmt.Errorf("release lease: %w", err)
		}
	}
	return nil
}

// IsLeader reports whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	return e.isLeader.Load()
}

// LeaderCh delivers leadership transitions. Sends are non-blocking, so
// slow consumers only see the most recent change.
func (e *Election) LeaderCh() <-chan bool {
	return e.leaderCh
}

// CurrentLeader returns the instance ID holding the lease, or empty
// when no leader is elected.
func (e *Election) CurrentLeader(ctx context.Context) (string, error) {
	id, err := e.client.Get(ctx, e.cfg.LeaseKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read lease: %w", err)
	}
	return id, nil
}

func (e *Election) campaign(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.contest(ctx)
		}
	}
}

func (e *Election) contest(ctx context.Context) {
	held, err := e.acquireOrRenew(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("lease attempt failed")
		e.setLeader(false)
		return
	}
	e.setLeader(held)
}

// acquireOrRenew takes the lease if free and renews it if we already
// own it. A lease held by another instance is left alone.
func (e *Election) acquireOrRenew(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.cfg.LeaseKey, e.cfg.InstanceID, e.cfg.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if ok {
		return true, nil
	}

	holder, err := e.client.Get(ctx, e.cfg.LeaseKey).Result()
	if err == redis.Nil {
		// Lease expired between SetNX and Get; next tick contests it.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read lease: %w", err)
	}

	if holder != e.cfg.InstanceID {
		return false, nil
	}

	if err := e.client.Expire(ctx, e.cfg.LeaseKey, e.cfg.LeaseDuration).Err(); err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return true, nil
}

// release deletes the lease only while we still own it.
func (e *Election) release(ctx context.Context) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	if err := e.client.Eval(ctx, script, []string{e.cfg.LeaseKey}, e.cfg.InstanceID).Err(); err != nil {
		return err
	}
	e.logger.Info().Msg("released sweep lease")
	return nil
}

func (e *Election) setLeader(held bool) {
	if !e.isLeader.CompareAndSwap(!held, held) {
		return
	}

	if held {
		e.logger.Info().Str("instance_id", e.cfg.InstanceID).Msg("acquired sweep lease")
		telemetry.LeaderStatus.WithLabelValues(e.cfg.InstanceID).Set(1)
		telemetry.LeaderTransitionsTotal.WithLabelValues(e.cfg.InstanceID, "acquired").Inc()
	} else {
		e.logger.Warn().Str("instance_id", e.cfg.InstanceID).Msg("lost sweep lease")
		telemetry.LeaderStatus.WithLabelValues(e.cfg.InstanceID).Set(0)
		telemetry.LeaderTransitionsTotal.WithLabelValues(e.cfg.InstanceID, "lost").Inc()
	}

	select {
	case e.leaderCh <- held:
	default:
	}
}
