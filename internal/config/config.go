/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment
// variables. A Config is immutable after Load; use Reload to pick up
// changed environment values as a fresh instance.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string

	DBBackend DatabaseBackend
	DBDSN     string

	// Business calendar
	Timezone    string // IANA name, e.g. "Africa/Johannesburg"
	HolidayFile string // optional YAML holiday calendar

	// Scheduling
	HorizonDays            int // working days searched before giving up
	DefaultWorkStartMinute int // fallback stage window start (minutes from midnight)
	DefaultWorkEndMinute   int // fallback stage window end

	// Progression sweep
	SweepInterval  int  // seconds between overdue sweeps, 0 disables
	LeaderElection bool // restrict sweeping to the elected replica

	JWTSigningKey string

	// Cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Events
	NATSURL string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("FORGEPLAN_ENV", "development"),
		HTTPBind:    getEnv("FORGEPLAN_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("FORGEPLAN_HTTP_PORT", 8080),
		MetricsBind: getEnv("FORGEPLAN_METRICS_BIND", "127.0.0.1:9000"),

		DBBackend: DatabaseBackend(getEnv("FORGEPLAN_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:     getEnv("FORGEPLAN_DB_DSN", ""),

		Timezone:    getEnv("FORGEPLAN_TIMEZONE", "Africa/Johannesburg"),
		HolidayFile: getEnv("FORGEPLAN_HOLIDAY_FILE", ""),

		HorizonDays:            getEnvInt("FORGEPLAN_HORIZON_DAYS", 60),
		DefaultWorkStartMinute: getEnvInt("FORGEPLAN_WORK_START_MINUTE", 8*60),
		DefaultWorkEndMinute:   getEnvInt("FORGEPLAN_WORK_END_MINUTE", 17*60+30),

		SweepInterval:  getEnvInt("FORGEPLAN_SWEEP_INTERVAL_SECONDS", 300),
		LeaderElection: getEnvBool("FORGEPLAN_LEADER_ELECTION", false),

		JWTSigningKey: getEnv("FORGEPLAN_JWT_SIGNING_KEY", ""),

		RedisAddr:     getEnv("FORGEPLAN_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("FORGEPLAN_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("FORGEPLAN_REDIS_DB", 0),

		NATSURL: getEnv("FORGEPLAN_NATS_URL", ""),

		TracingEnabled:    getEnvBool("FORGEPLAN_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("FORGEPLAN_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("FORGEPLAN_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("FORGEPLAN_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("FORGEPLAN_JWT_SIGNING_KEY must be provided")
	}

	if cfg.HorizonDays <= 0 {
		return nil, fmt.Errorf("FORGEPLAN_HORIZON_DAYS must be positive")
	}

	if cfg.DefaultWorkEndMinute <= cfg.DefaultWorkStartMinute {
		return nil, fmt.Errorf("working window end must be after start")
	}

	return cfg, nil
}

// Reload re-reads the environment and returns a new Config. The
// receiver is never mutated; callers swap the pointer themselves.
func (c *Config) Reload() (*Config, error) {
	return Load()
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}
