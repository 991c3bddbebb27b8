package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         string
	DatabaseURL  string
	RedisURL     string
	DiscordToken string
	LogLevel     string
	AdminAPIKey  string

	Extraction ExtractionConfig
	Worker     WorkerConfig
}

// ExtractionConfig holds the knobs of the extraction core
type ExtractionConfig struct {
	BrowserBin        string
	BrowserHeadless   bool
	BrowserMaxPages   int           // concurrent pages per platform context
	NavigationTimeout time.Duration // page navigation budget
	SettleDelay       time.Duration // flat wait after network idle
	StrategyTimeout   time.Duration // budget for one strategy attempt
	FetchTimeout      time.Duration // HTTP budget for canonicalization and raw scraping
	StandardMaxHeight int           // target height for standard quality
	MaxPhotos         int
	TempDir           string
	BreakerFailures   uint32
	BreakerCooldown   time.Duration
}

// WorkerConfig controls job consumption
type WorkerConfig struct {
	Concurrency     int
	ShutdownTimeout time.Duration
}

// DefaultExtractionConfig returns the defaults used when no environment is set
func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		BrowserHeadless:   true,
		BrowserMaxPages:   4,
		NavigationTimeout: 30 * time.Second,
		SettleDelay:       5 * time.Second,
		StrategyTimeout:   90 * time.Second,
		FetchTimeout:      20 * time.Second,
		StandardMaxHeight: 720,
		MaxPhotos:         10,
		TempDir:           os.TempDir(),
		BreakerFailures:   5,
		BreakerCooldown:   time.Minute,
	}
}

// Load reads configuration from a .env file (if present), the environment and command line flags
func Load() *Config {
	config := LoadFromEnv()

	// Command line flags override environment
	flag.StringVar(&config.Port, "port", config.Port, "Server port")
	flag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level")
	flag.IntVar(&config.Worker.Concurrency, "concurrency", config.Worker.Concurrency, "Concurrent extraction jobs")
	flag.BoolVar(&config.Extraction.BrowserHeadless, "headless", config.Extraction.BrowserHeadless, "Run the browser headless")
	flag.Parse()

	return config
}

// LoadFromEnv reads configuration without parsing command line flags
func LoadFromEnv() *Config {
	// Missing .env is fine; real deployments use the environment
	_ = godotenv.Load()

	defaults := DefaultExtractionConfig()

	config := &Config{
		Port:         getEnvWithDefault("PORT", "8080"),
		LogLevel:     getEnvWithDefault("LOG_LEVEL", "info"),
		DatabaseURL:  getEnvWithDefault("DATABASE_URL", ""),
		RedisURL:     getEnvWithDefault("REDIS_URL", ""),
		DiscordToken: getEnvWithDefault("DISCORD_TOKEN", ""),
		AdminAPIKey:  getEnvWithDefault("ADMIN_API_KEY", ""),
		Extraction: ExtractionConfig{
			BrowserBin:        getEnvWithDefault("BROWSER_BIN", os.Getenv("ROD_BROWSER")),
			BrowserHeadless:   getBoolEnv("BROWSER_HEADLESS", defaults.BrowserHeadless),
			BrowserMaxPages:   getIntEnv("BROWSER_MAX_PAGES", defaults.BrowserMaxPages),
			NavigationTimeout: getDurationEnv("NAVIGATION_TIMEOUT", defaults.NavigationTimeout),
			SettleDelay:       getDurationEnv("SETTLE_DELAY", defaults.SettleDelay),
			StrategyTimeout:   getDurationEnv("STRATEGY_TIMEOUT", defaults.StrategyTimeout),
			FetchTimeout:      getDurationEnv("FETCH_TIMEOUT", defaults.FetchTimeout),
			StandardMaxHeight: getIntEnv("STANDARD_MAX_HEIGHT", defaults.StandardMaxHeight),
			MaxPhotos:         getIntEnv("MAX_PHOTOS", defaults.MaxPhotos),
			TempDir:           getEnvWithDefault("TEMP_DIR", defaults.TempDir),
			BreakerFailures:   uint32(getIntEnv("BREAKER_FAILURES", int(defaults.BreakerFailures))),
			BreakerCooldown:   getDurationEnv("BREAKER_COOLDOWN", defaults.BreakerCooldown),
		},
		Worker: WorkerConfig{
			Concurrency:     getIntEnv("WORKER_CONCURRENCY", 4),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
	}

	return config
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("Environment variable %s is required", key)
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Printf("Ignoring invalid %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Ignoring invalid %s=%q, using %t", key, value, defaultValue)
		return defaultValue
	}
	return b
}

// getDurationEnv accepts Go durations ("30s") or plain seconds ("30")
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Ignoring invalid %s=%q, using %s", key, value, defaultValue)
	return defaultValue
}

// ValidateForBot ensures all required fields for bot service are present
func (c *Config) ValidateForBot() error {
	c.DiscordToken = mustGetEnv("DISCORD_TOKEN")
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for bot service")
	}
	return nil
}

// ValidateForWorker ensures all required fields for worker service are present
func (c *Config) ValidateForWorker() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for worker service")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for worker service")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	return nil
}

// ValidateForAPI ensures all required fields for API service are present
func (c *Config) ValidateForAPI() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for API service")
	}
	return nil
}
