package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reelfetch/internal/config"
	apihttp "reelfetch/internal/http"
	"reelfetch/internal/http/handlers"
	"reelfetch/internal/pkg/logger"
	"reelfetch/internal/repository/postgres"
	"reelfetch/internal/repository/redis"
	"reelfetch/internal/service/api"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Validate API-specific configuration
	if err := cfg.ValidateForAPI(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	log := logger.New(cfg.LogLevel)
	log.Info("Starting API service...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run database migrations
	if err := postgres.RunMigrations(ctx, db, log); err != nil {
		log.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	deps := apihttp.Dependencies{
		Extractions: postgres.NewExtractionRepository(db, log),
		AdminAPIKey: cfg.AdminAPIKey,
		Checks: map[string]handlers.HealthCheck{
			"postgres": db.PingContext,
		},
	}

	// Redis is optional for the API; without it queue stats and admin enqueue are off
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		deps.Queue = redis.NewQueueRepository(redisClient, log)
		deps.Checks["redis"] = func(ctx context.Context) error {
			return redis.HealthCheck(ctx, redisClient)
		}
	} else {
		log.Warn("REDIS_URL not set - queue stats and admin enqueue disabled")
	}

	apiService := api.New(cfg, log, deps)

	// Create a channel to track shutdown completion
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := apiService.Start(); err != nil {
			log.Error("API service failed", "error", err)
		}
	}()

	// Wait for either shutdown signal or service completion
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received, stopping API service...")
	case <-done:
		log.Info("API service completed")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiService.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping API service", "error", err)
	}

	log.Info("API service shutdown complete")
}
