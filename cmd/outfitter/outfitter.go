package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outfitter/internal/ai"
	"outfitter/internal/api"
	"outfitter/internal/backup"
	"outfitter/internal/board"
	"outfitter/internal/config"
	"outfitter/internal/identity"
	"outfitter/internal/logger"
	"outfitter/internal/observability"
	"outfitter/internal/ratelimit"
	"outfitter/internal/storage"
	"outfitter/internal/suggest"
	"outfitter/internal/version"
)

var configFile = flag.String("config", "", "Path to configuration file")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ver := version.GetInfo()

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	slog.Info("Starting", "version", ver.String(), "instance_id", ver.InstanceID)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize storage
	store, err := storage.NewFactory().Create(context.Background(), cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Wrap storage with instrumentation if metrics are enabled
	var activeStorage storage.Storage = store
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStorage(store)
		if err != nil {
			slog.Error("Failed to create instrumented storage", "error", err)
			os.Exit(1)
		}
		activeStorage = instrumented
	}

	// Restore the board from its GitHub backup and keep it backed up.
	var backupService *backup.Service
	if cfg.Backup.Enabled {
		ghClient := backup.NewClient(cfg.Backup.Token, cfg.Backup.Repo, cfg.Backup.Branch)
		backupService = backup.NewService(ghClient, activeStorage, cfg.Backup.Path)

		restoreCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := backupService.Restore(restoreCtx); err != nil {
			slog.Error("Failed to restore board from backup", "error", err)
		}
		cancel()
	}

	// Admission layer for the AI endpoint
	cooldown := ratelimit.NewCooldownLimiter(ratelimit.CooldownConfig{
		InitialWait:   cfg.Suggest.Limits.InitialWait,
		MaxWait:       cfg.Suggest.Limits.MaxWait,
		Window:        cfg.Suggest.Limits.Window,
		MaxPerWindow:  cfg.Suggest.Limits.MaxPerWindow,
		SweepInterval: cfg.Suggest.Limits.SweepInterval,
	})
	defer cooldown.Close()

	gate := ratelimit.NewGate(ratelimit.GateConfig{
		MaxConcurrent: cfg.Suggest.Limits.MaxConcurrent,
		MaxQueue:      cfg.Suggest.Limits.MaxQueue,
	})

	// AI collaborator
	aiClient, err := ai.NewClient(cfg.Suggest.AI)
	if err != nil {
		slog.Error("Failed to create AI client", "error", err)
		os.Exit(1)
	}

	var collaborator suggest.Collaborator = aiClient
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedCollaborator(aiClient)
		if err != nil {
			slog.Error("Failed to instrument AI client", "error", err)
			os.Exit(1)
		}
		collaborator = instrumented

		if err := observability.RegisterGateMetrics(gate); err != nil {
			slog.Error("Failed to register gate metrics", "error", err)
			os.Exit(1)
		}
	}

	resolver := identity.NewResolver(cfg.Security.RequireDeviceID)
	suggestService := suggest.NewService(resolver, cooldown, gate, collaborator, cfg.Suggest.Limits.WaitTimeout)
	boardService := board.NewService(activeStorage, cfg.Board)

	// Initialize HTTP handlers
	handlers := api.NewHandlers(suggestService, boardService, resolver, ver.Version)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	// Initialize transport rate limiter if enabled
	if cfg.Security.RateLimit.Enabled {
		rlCfg := cfg.Security.RateLimit
		limiter := ratelimit.NewBucketLimiter(rlCfg.RequestsPerMinute, rlCfg.BurstSize, rlCfg.CleanupInterval)
		defer limiter.Close()

		routeOpts = append(routeOpts, api.WithRateLimiter(ratelimit.Middleware(limiter)))
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Start periodic board backups
	backupCtx, stopBackups := context.WithCancel(context.Background())
	defer stopBackups()
	if backupService != nil {
		go backupService.Run(backupCtx, cfg.Backup.Interval)
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "addr", server.Addr)

		var err error
		if cfg.Server.TLSEnabled {
			if cfg.Server.TLSCertFile == "" || cfg.Server.TLSKeyFile == "" {
				slog.Error("TLS is enabled but cert file or key file is not specified")
				os.Exit(1)
			}
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	// Create a deadline to wait for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop periodic backups and take a final snapshot before exit.
	stopBackups()
	if backupService != nil {
		if err := backupService.Backup(ctx); err != nil {
			slog.Error("Final backup failed", "error", err)
		}
	}

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}
