package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cellar/internal/logging"
	"cellar/internal/server"
	"cellar/internal/store"
)

var (
	// Serve flags
	addr       string
	dbPath     string
	minAgeDays int
)

// serveCmd runs the HTTP server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cellar HTTP server",
	Long: `Starts the API server backed by the SQLite store.

The server exposes:
  GET    /api/items      list items, newest first
  POST   /api/items      create an item
  DELETE /api/items/:id  delete an item (5-day age gate)
  GET    /healthz        liveness probe

Debug logging and the audit trail are controlled by the logging section of
the config file and can be toggled while the server runs.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	serveCmd.Flags().IntVar(&minAgeDays, "min-age-days", -1, "Whole days an item must rest before deletion (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if minAgeDays >= 0 {
		cfg.Store.MinAgeDays = minAgeDays
	}

	// Categorized file logging plus the audit trail, both config-driven.
	if err := logging.Initialize(resolvedConfigPath(), cfg.LogsDir()); err != nil {
		logger.Warn("File logging unavailable", zap.Error(err))
	}
	defer logging.CloseAll()
	if err := logging.InitAudit(); err != nil {
		logger.Warn("Audit trail unavailable", zap.Error(err))
	}
	defer logging.CloseAudit()

	st, err := store.New(store.Config{
		Path:       cfg.Store.Path,
		MinAgeDays: cfg.Store.MinAgeDays,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	srv, err := server.New(st, server.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.GetShutdownTimeout(),
		ConfigPath:      resolvedConfigPath(),
	})
	if err != nil {
		return err
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	logger.Info("Starting server",
		zap.String("addr", cfg.Server.Addr),
		zap.String("db", cfg.Store.Path),
		zap.Int("min_age_days", cfg.Store.MinAgeDays))

	return srv.Run(ctx)
}
