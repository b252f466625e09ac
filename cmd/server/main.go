// Package main is the entry point for the newsroom server.
//
// The main package is kept minimal. Its job is to:
//  1. Read configuration (.env and the environment)
//  2. Create the logger
//  3. Hand both to internal/server and start it
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/newsroom/internal/config"
	"github.com/sakif/newsroom/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// Loaded before the logger so LOG_LEVEL applies from the first line.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if cfg.InsecureSecret {
		logger.Warn("SESSION_SECRET not set, using the built-in development secret")
	}

	// === 3. RESOLVE FILE PATHS ===
	// With `go run`, the working directory is usually the project root, so
	// the relative defaults ("web/templates", "web/static") work directly.
	if abs, err := filepath.Abs(cfg.TemplateDir); err == nil {
		cfg.TemplateDir = abs
	}
	if abs, err := filepath.Abs(cfg.StaticDir); err == nil {
		cfg.StaticDir = abs
	}

	// === 4. DATABASE DIRECTORY ===
	// Only the SQLite store needs a directory on disk.
	if cfg.DatabaseURL == "" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
