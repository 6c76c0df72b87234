package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KevinKickass/IOLinkBridge/internal/config"
	"github.com/KevinKickass/IOLinkBridge/internal/storage"
	"github.com/KevinKickass/IOLinkBridge/internal/system"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", envOr("IOLINK_CONFIG", "configs/config.yaml"), "path to config file")
	flag.Parse()

	// Config laden
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Logger initialisieren
	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully",
		zap.String("path", *configPath),
		zap.String("master", cfg.Master.Host))

	// PostgreSQL nur wenn aktiviert
	var db *storage.PostgresClient
	if cfg.Database.Enabled {
		connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		db, err = storage.NewPostgresClient(connectCtx, cfg.Database)
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		logger.Info("Database connected successfully")
	}

	// Lifecycle Manager
	lifecycle, err := system.NewLifecycleManager(db, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create system", zap.Error(err))
	}

	// System starten
	if err := lifecycle.Start(); err != nil {
		logger.Fatal("Failed to start system", zap.Error(err))
	}

	logger.Info("IO-Link bridge started successfully")

	// Graceful Shutdown auf Signal, fatalen Poller-Fehler oder API-Shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received")
	case err := <-lifecycle.Errors():
		logger.Error("Poller stopped on fatal error", zap.Error(err))
		exitCode = 1
	case <-lifecycle.Done():
		logger.Info("Shutdown requested via API")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := lifecycle.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		exitCode = 1
	}

	logger.Info("IO-Link bridge stopped")
	if exitCode != 0 {
		logger.Sync()
		os.Exit(exitCode)
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
