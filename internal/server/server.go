// Package server exposes the item store over HTTP. Routes, status codes, and
// error bodies form the wire contract the client package depends on; the
// bodies are exact strings, not formats.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"cellar/internal/logging"
	"cellar/internal/store"
)

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address. Empty means ":8080".
	Addr string

	// ShutdownTimeout bounds graceful shutdown. Zero means 5s.
	ShutdownTimeout time.Duration

	// ConfigPath, when set, enables the watcher that re-applies logging
	// settings while the server runs.
	ConfigPath string
}

func (c *Config) validate() error {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	return nil
}

// Server serves the items API from an ItemStore.
type Server struct {
	store *store.ItemStore
	cfg   Config
}

// New creates a Server for the given store.
func New(st *store.ItemStore, cfg Config) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("server: store required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Server{store: st, cfg: cfg}, nil
}

// Handler returns the full HTTP handler, middleware included. Tests drive
// this directly through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/items", s.handleListItems)
	mux.HandleFunc("POST /api/items", s.handleCreateItem)
	// A delete without an id is a validation error, not a routing miss.
	mux.HandleFunc("DELETE /api/items", s.handleDeleteMissingID)
	mux.HandleFunc("DELETE /api/items/{$}", s.handleDeleteMissingID)
	mux.HandleFunc("DELETE /api/items/{id}", s.handleDeleteItem)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return withRequestID(withRequestLog(withRecovery(mux)))
}

// Run serves until ctx is cancelled, then shuts down gracefully. The caller
// owns signal handling; cancelling ctx is the only stop mechanism.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
	}

	var watcher *ConfigWatcher
	if s.cfg.ConfigPath != "" {
		w, err := NewConfigWatcher(s.cfg.ConfigPath, logging.ReloadConfig)
		if err != nil {
			logging.BootError("Config watcher unavailable: %v", err)
		} else {
			watcher = w
			if err := watcher.Start(ctx); err != nil {
				logging.BootError("Config watcher failed to start: %v", err)
			}
		}
	}

	logging.Boot("HTTP server listening on %s", s.cfg.Addr)
	logging.Audit().ServerStart(s.cfg.Addr)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	})

	err := eg.Wait()

	if watcher != nil {
		watcher.Stop()
	}
	logging.Audit().ServerStop()
	logging.Boot("HTTP server stopped")
	return err
}
