/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package leadership

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestElection(cfg Config) *Election {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	return New(cfg, client, zerolog.Nop())
}

func TestNewFillsDefaults(t *testing.T) {
	e := newTestElection(Config{})

	if e.cfg.LeaseKey != "forgeplan:leader:sweep" {
		t.Errorf("lease key = %q", e.cfg.LeaseKey)
	}
	if e.cfg.LeaseDuration != 15*time.Second {
		t.Errorf("lease duration = %v", e.cfg.LeaseDuration)
	}
	if e.cfg.RetryInterval != 2*time.Second {
		t.Errorf("retry interval = %v", e.cfg.RetryInterval)
	}
	if e.cfg.InstanceID == "" {
		t.Error("instance ID not generated")
	}
}

func TestNewKeepsExplicitConfig(t *testing.T) {
	e := newTestElection(Config{
		LeaseKey:      "forgeplan:leader:test",
		LeaseDuration: time.Minute,
		RetryInterval: 10 * time.Second,
		InstanceID:    "replica-1",
	})

	if e.cfg.LeaseKey != "forgeplan:leader:test" || e.cfg.InstanceID != "replica-1" {
		t.Errorf("config overridden: %+v", e.cfg)
	}
}

func TestNotLeaderUntilElected(t *testing.T) {
	e := newTestElection(Config{})
	if e.IsLeader() {
		t.Error("fresh election claims leadership")
	}
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	e := newTestElection(Config{})
	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestSetLeaderNotifiesOnTransition(t *testing.T) {
	e := newTestElection(Config{InstanceID: "replica-2"})

	e.setLeader(true)
	select {
	case held := <-e.LeaderCh():
		if !held {
			t.Error("expected acquisition notification")
		}
	default:
		t.Fatal("no notification on acquisition")
	}
	if !e.IsLeader() {
		t.Error("IsLeader false after acquisition")
	}

	// Repeating the same state must not notify again.
	e.setLeader(true)
	select {
	case <-e.LeaderCh():
		t.Fatal("duplicate notification for unchanged state")
	default:
	}

	e.setLeader(false)
	select {
	case held := <-e.LeaderCh():
		if held {
			t.Error("expected loss notification")
		}
	default:
		t.Fatal("no notification on loss")
	}
}
