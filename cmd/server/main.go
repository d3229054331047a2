package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/grovekeeper/intervention-uploader/internal/config"
	"github.com/grovekeeper/intervention-uploader/internal/core"
	"github.com/grovekeeper/intervention-uploader/internal/logging"
	"github.com/grovekeeper/intervention-uploader/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"api_url", cfg.API.URL,
		"request_delay", cfg.Upload.RequestDelay,
		"bearer_configured", cfg.API.BearerToken != "",
	)

	// Create service with config
	service := core.NewService(core.ServiceOptions{
		Run: core.RunConfig{
			Endpoint:     cfg.API.URL,
			BearerToken:  cfg.API.BearerToken,
			TenantKey:    cfg.API.TenantKey,
			PlantProject: cfg.API.PlantProject,
		},
		RequestDelay:   cfg.Upload.RequestDelay,
		RequestTimeout: cfg.API.RequestTimeout,
		RunTimeout:     cfg.Upload.Timeout,
	})

	// Create server with config
	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for an active submission run to complete (with timeout)
		if active := service.ActiveRuns(); active > 0 {
			slog.Info("waiting for submission run to complete", "active", active)
			if err := service.WaitForRuns(shutdownCtx); err != nil {
				slog.Warn("submission run did not complete in time", "error", err)
			} else {
				slog.Info("submission run completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
