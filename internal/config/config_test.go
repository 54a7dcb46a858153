/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import "testing"

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("FORGEPLAN_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("FORGEPLAN_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("FORGEPLAN_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.JWTSigningKey != "supersecret" {
		t.Fatalf("unexpected jwt signing key: %q", cfg.JWTSigningKey)
	}
	if cfg.HorizonDays != 60 {
		t.Fatalf("unexpected default horizon: %d", cfg.HorizonDays)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("FORGEPLAN_DB_DSN", "forgeplan.db")
	t.Setenv("FORGEPLAN_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("FORGEPLAN_DB_BACKEND", "oracle")

	if _, err := Load(); err == nil {
		t.Fatal("expected load to fail for unknown backend")
	}
}

func TestLoadRejectsInvertedWorkingWindow(t *testing.T) {
	t.Setenv("FORGEPLAN_DB_DSN", "forgeplan.db")
	t.Setenv("FORGEPLAN_DB_BACKEND", "sqlite")
	t.Setenv("FORGEPLAN_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("FORGEPLAN_WORK_START_MINUTE", "600")
	t.Setenv("FORGEPLAN_WORK_END_MINUTE", "480")

	if _, err := Load(); err == nil {
		t.Fatal("expected load to fail for inverted working window")
	}
}

func TestReloadReturnsFreshConfig(t *testing.T) {
	t.Setenv("FORGEPLAN_DB_DSN", "forgeplan.db")
	t.Setenv("FORGEPLAN_DB_BACKEND", "sqlite")
	t.Setenv("FORGEPLAN_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("FORGEPLAN_HORIZON_DAYS", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	t.Setenv("FORGEPLAN_HORIZON_DAYS", "90")
	fresh, err := cfg.Reload()
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if cfg.HorizonDays != 30 {
		t.Fatalf("reload mutated original config: %d", cfg.HorizonDays)
	}
	if fresh.HorizonDays != 90 {
		t.Fatalf("reload did not pick up new horizon: %d", fresh.HorizonDays)
	}
}
