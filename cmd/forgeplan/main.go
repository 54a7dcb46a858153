package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/forgeplan/internal/auth"
	"github.com/friendsincode/forgeplan/internal/config"
	"github.com/friendsincode/forgeplan/internal/db"
	"github.com/friendsincode/forgeplan/internal/logging"
	"github.com/friendsincode/forgeplan/internal/models"
	"github.com/friendsincode/forgeplan/internal/server"
	"github.com/friendsincode/forgeplan/internal/store"
	"github.com/friendsincode/forgeplan/internal/telemetry"
	"github.com/friendsincode/forgeplan/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "forgeplan",
	Short: "Forgeplan - Production capacity scheduler",
	Long:  "Forgeplan schedules production jobs across finite-capacity stages, tracks stage workloads, and surfaces bottlenecks.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Forgeplan server",
	Long:  "Start the HTTP API server, metrics listener, and progression sweep",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	RunE:  runMigrate,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo stage routing",
	Long:  "Insert a small set of production stages for local development",
	RunE:  runSeed,
}

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Issue an API token",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

var (
	tokenRoles []string
	tokenTTL   time.Duration
)

func init() {
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "roles", []string{auth.RoleViewer}, "roles to embed in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("Forgeplan starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "forgeplan",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Forgeplan stopped")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(database) }()

	if err := db.Migrate(database); err != nil {
		return err
	}
	logger.Info().Msg("migrations applied")
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(database) }()

	if err := db.Migrate(database); err != nil {
		return err
	}

	st := store.New(database, nil, logger)
	ctx := context.Background()

	stages := []models.Stage{
		{Name: "Cutting", Sequence: 1, DailyCapacityHours: 8.5},
		{Name: "Machining", Sequence: 2, DailyCapacityHours: 8.5},
		{Name: "Welding", Sequence: 3, DailyCapacityHours: 8.5},
		{Name: "Painting", Sequence: 4, DailyCapacityHours: 8.5},
		{Name: "Assembly", Sequence: 5, DailyCapacityHours: 8.5},
	}
	for i := range stages {
		stages[i].WorkStartMinute = cfg.DefaultWorkStartMinute
		stages[i].WorkEndMinute = cfg.DefaultWorkEndMinute
		if err := st.CreateStage(ctx, &stages[i]); err != nil {
			return fmt.Errorf("seed stage %s: %w", stages[i].Name, err)
		}
		logger.Info().Str("stage", stages[i].Name).Str("id", stages[i].ID).Msg("stage created")
	}
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	token, err := auth.Issue([]byte(cfg.JWTSigningKey), auth.Claims{
		UserID: args[0],
		Roles:  tokenRoles,
	}, tokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Println(token)
	return nil
}
