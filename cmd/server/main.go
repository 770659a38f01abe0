package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/nccn-uat-mcp-server/internal/api"
	"github.com/nccn-uat-mcp-server/internal/config"
	"github.com/nccn-uat-mcp-server/internal/database"
	"github.com/nccn-uat-mcp-server/internal/domain"
	"github.com/nccn-uat-mcp-server/internal/repository"
	"github.com/nccn-uat-mcp-server/internal/service"
	"github.com/nccn-uat-mcp-server/internal/store"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
	}).Info("Starting NCCN UAT notation server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := api.Dependencies{Logger: logger}

	// Optional shared report cache
	var sharedCache service.ReportCache
	if cfg.Cache.RedisURL != "" {
		redisCache, err := service.NewRedisReportCache(cfg.Cache, logger)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisCache.Close()
		sharedCache = redisCache
	}

	notationService, err := service.NewNotationService(service.ServiceConfig{
		MemoryMaxItems: cfg.Cache.MemoryMaxItems,
		Workers:        cfg.Batch.Workers,
	}, sharedCache, logger)
	if err != nil {
		log.Fatalf("Failed to create notation service: %v", err)
	}
	deps.Notation = notationService

	// Persistence is enabled when a database host is configured
	if cfg.Database.Host != "" {
		db, err := database.NewConnection(ctx, database.ConfigFromDomain(cfg.Database), logger)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		runner, err := database.NewMigrationRunner(configManager.GetDatabaseURL(), cfg.Database.MigrationsPath, logger)
		if err != nil {
			log.Fatalf("Failed to prepare migrations: %v", err)
		}
		if err := runner.Up(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		runner.Close()

		results, err := store.NewPostgresStoreFromURL(configManager.GetDatabaseURL(), cfg.Database)
		if err != nil {
			log.Fatalf("Failed to open result store: %v", err)
		}
		defer results.Close()

		deps.Results = results
		deps.Cycles = repository.NewCycleRepository(db.Pool, logger)
	} else {
		logger.Warn("No database host configured; results and cycles endpoints are disabled")
	}

	server := api.NewServer(configManager, deps)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		return
	}

	logger.Info("Server stopped")
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetOutput(os.Stdout)
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
