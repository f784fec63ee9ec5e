// Package main is the entry point for the backoffice API server.
//
// main stays minimal: load configuration, build the logger, start tracing,
// then hand everything to internal/server.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/blockful/backoffice/internal/config"
	"github.com/blockful/backoffice/internal/server"
	"github.com/blockful/backoffice/internal/telemetry"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code. Deferred cleanup (the tracing flush in
// particular) runs before main calls os.Exit.
func run() int {
	// === 1. READ CONFIGURATION ===
	// .env (if present) is loaded first; real environment variables win.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}

	// === 2. SET UP LOGGING ===
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// === 3. TRACING ===
	// Opt-in: without OTEL_ENDPOINT this is a no-op.
	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.OTelEndpoint)
	if err != nil {
		logger.Error("failed to set up tracing", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown", slog.String("error", err.Error()))
		}
	}()

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return 1
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
