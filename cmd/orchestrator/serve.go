package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sparesparrow/mia-sub000/internal/config"
	"github.com/sparesparrow/mia-sub000/internal/orchestrator"
)

const shutdownTimeout = 10 * time.Second

// buildServeCmd creates the "serve" command that starts the orchestrator's
// HTTP surface and background maintenance loops.
//
// The server will:
//  1. Load configuration from the specified file
//  2. Open the context store and construct the NLP engine
//  3. Register and connect every configured downstream service
//  4. Start the HTTP server (command, analytics, services, health, metrics)
//  5. Start the session-cleanup and health-check maintenance loops
//
// Graceful shutdown is handled on SIGINT/SIGTERM.
func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator server",
		Example: `  # Start with default config
  orchestrator serve --config orchestrator.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "orchestrator.yaml", "Path to YAML configuration file")

	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	orchestrator.Version = version

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logLevel := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	logger = logger.With("component", "main")

	srv, err := orchestrator.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(runCtx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	logger.Info("orchestrator started", "addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort))

	<-runCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
