package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"

	"reelfetch/internal/config"
	"reelfetch/internal/pkg/logger"
	"reelfetch/internal/repository/postgres"
	"reelfetch/internal/repository/redis"
	"reelfetch/internal/service/extractor"
	"reelfetch/internal/service/worker"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Validate worker-specific configuration
	if err := cfg.ValidateForWorker(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	log := logger.New(cfg.LogLevel)
	log.Info("Starting worker service...")

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

	// Connect to Redis
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Create repositories
	queueRepo := redis.NewQueueRepository(redisClient, log)
	extractionRepo := postgres.NewExtractionRepository(db, log)

	// Extraction core
	pools := extractor.NewPools(extractor.PoolConfig{
		BrowserBin: cfg.Extraction.BrowserBin,
		Headless:   cfg.Extraction.BrowserHeadless,
		MaxPages:   cfg.Extraction.BrowserMaxPages,
	}, log)
	chain := extractor.NewDefaultChain(cfg.Extraction, pools, log)

	// Delivery back to Discord, or to the log when no token is configured
	var deliverer worker.Deliverer
	if cfg.DiscordToken != "" {
		session, err := discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			log.Error("Failed to create Discord session", "error", err)
			os.Exit(1)
		}
		deliverer = worker.NewDiscordDeliverer(session, worker.NewCaptionResolver(log), log)
	} else {
		log.Warn("DISCORD_TOKEN not set - results will only be logged")
		deliverer = worker.NewLogDeliverer(log)
	}

	processor := worker.NewJobProcessor(log, chain, extractionRepo, deliverer)
	workerService := worker.New(cfg, log, queueRepo, processor, pools)

	if err := workerService.Start(ctx); err != nil {
		log.Error("Failed to start worker service", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("Shutdown signal received, stopping worker service...")

	if err := workerService.Stop(); err != nil {
		log.Error("Error stopping worker service", "error", err)
	}

	log.Info("Worker service shutdown complete")
}
