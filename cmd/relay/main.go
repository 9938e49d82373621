// Command relay runs the development backend: message history over HTTP
// and workspace rooms over WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/workspace-chat/backend/api"
	"github.com/workspace-chat/backend/api/handlers"
	"github.com/workspace-chat/backend/internal/config"
	"github.com/workspace-chat/backend/internal/db"
	"github.com/workspace-chat/backend/internal/metrics"
	"github.com/workspace-chat/backend/internal/ws"
)

func main() {
	if err := run(); err != nil {
		config.NewLogger(os.Stderr, "info", false).Error("relay stopped", "err", err)
		os.Exit(1)
	}
}

// run serves until a signal arrives or the listener fails. Deferred
// cleanup always runs before it returns.
func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.LoadRelay()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel, false)

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}

	// Initialize database
	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database %s: %w", cfg.DBPath, err)
	}
	defer db.CloseDB()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	relayMetrics := metrics.NewRelay(reg)

	ws.SetCheckOrigin(ws.AllowOrigins(cfg.AllowedOrigins))

	// Initialize WebSocket service
	wsService := ws.NewService(relayMetrics, logger)
	defer wsService.Close()

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Deps{
		DB:       database,
		WS:       wsService,
		Limiter:  handlers.NewRateLimiter(cfg.SendRPS, cfg.SendBurst),
		Metrics:  relayMetrics,
		Gatherer: reg,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting relay", "port", cfg.Port, "db", cfg.DBPath, "allowed_origins", cfg.AllowedOrigins)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down relay")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Hijacked WebSocket connections are not tracked by Shutdown.
		wsService.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
