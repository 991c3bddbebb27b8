package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"reelfetch/internal/config"
	"reelfetch/internal/pkg/logger"
	"reelfetch/internal/repository/redis"
	"reelfetch/internal/service/bot"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Validate bot-specific configuration
	if err := cfg.ValidateForBot(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	log := logger.New(cfg.LogLevel)
	log.Info("Starting Discord bot service...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to Redis
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	queueRepo := redis.NewQueueRepository(redisClient, log)

	// Create bot service
	botService, err := bot.New(cfg, log, queueRepo)
	if err != nil {
		log.Error("Failed to create bot service", "error", err)
		os.Exit(1)
	}

	// Start blocks until the signal context is cancelled
	if err := botService.Start(ctx); err != nil {
		log.Error("Bot service failed", "error", err)
		os.Exit(1)
	}

	log.Info("Bot service shutdown complete")
}
