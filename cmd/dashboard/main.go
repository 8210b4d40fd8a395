// Package main provides the entry point for the dashboard service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/config"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/crm"
	apierrors "github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/errors"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/handler"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/health"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/metrics"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/server"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/service"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/store"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Initialize logger
	logger := initLogger()
	defer logger.Sync()

	logger.Info("starting dashboard service")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("snapshot_backend", cfg.Snapshot.Backend),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Int("tenants", len(cfg.Tenants)),
	)

	// Initialize snapshot store
	snapshots, err := buildSnapshotStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create snapshot store", zap.Error(err))
	}
	defer snapshots.Close()

	// Initialize range cache
	cache, err := buildRangeCache(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create range cache", zap.Error(err))
	}
	defer cache.Close()

	// Initialize metrics
	m := metrics.NewMetrics()

	// Start metrics server if enabled
	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
		logger.Info("metrics server started",
			zap.Int("port", cfg.Metrics.Port),
			zap.String("path", cfg.Metrics.Path),
		)
	}

	// Assemble the refresh pipeline
	client := crm.NewClient(cfg.CRM, logger)
	fetcher := crm.NewFetcher(client, cfg.CRM, m, logger)
	refresher := service.NewRefreshService(snapshots, fetcher, cfg.Refresh, m, logger)
	budgeter := service.NewBudgetService(snapshots, refresher, cfg.Refresh.SnapshotTTL, m, logger)
	dashboards := service.NewDashboardService(cache, budgeter, tenantsFromConfig(cfg.Tenants), cfg.Cache, cfg.Refresh, m, logger)

	// Initialize HTTP server
	errorHandler := apierrors.NewHandler(m, logger)
	handlers := handler.NewHandlers(dashboards, errorHandler, logger)
	adminHandlers := handler.NewAdminHandlers(snapshots, refresher, dashboards, errorHandler, logger)
	healthCheck := health.NewChecker(snapshots, cache, logger)

	httpServer := server.NewServer(cfg, handlers, adminHandlers, healthCheck, errorHandler, logger)
	httpServer.SetupRoutes()

	// Start HTTP server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info("HTTP server started", zap.Int("port", cfg.Server.Port))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("server error", zap.Error(err))
	}

	// Graceful shutdown
	logger.Info("initiating graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown HTTP server", zap.Error(err))
	}

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}

	logger.Info("dashboard service shutdown complete")
}

// buildSnapshotStore selects the durable snapshot backend.
func buildSnapshotStore(cfg *config.Config, logger *zap.Logger) (store.SnapshotStore, error) {
	if cfg.Snapshot.Backend == "postgres" {
		return store.NewPostgresSnapshotStore(cfg.Database, logger)
	}
	return store.NewFileSnapshotStore(cfg.Snapshot.Dir, logger)
}

// buildRangeCache selects the response cache backend.
func buildRangeCache(cfg *config.Config, logger *zap.Logger) (store.RangeCache, error) {
	if cfg.Cache.Backend == "redis" {
		return store.NewRedisCache(cfg.Redis, logger)
	}
	return store.NewInMemoryCache(cfg.Cache.MaxSize, logger), nil
}

func tenantsFromConfig(tcs []config.TenantConfig) []model.Tenant {
	tenants := make([]model.Tenant, 0, len(tcs))
	for _, tc := range tcs {
		tenants = append(tenants, model.Tenant{ID: tc.ID, Name: tc.Name, APIToken: tc.APIToken})
	}
	return tenants
}

// initLogger initializes the zap logger.
func initLogger() *zap.Logger {
	// Get log level from environment
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	var level zapcore.Level
	switch logLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// Get log format from environment
	logFormat := os.Getenv("LOG_FORMAT")

	var config zap.Config
	if logFormat == "console" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}

	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		// Fallback to basic logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
