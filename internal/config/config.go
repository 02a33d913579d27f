package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/nodebyte/syncengine/internal/database"
)

// Config holds all configuration for the sync engine.
type Config struct {
	// Environment
	Env string

	// Database
	DatabaseURL string

	// Redis (asynq job queue transport)
	RedisURL string

	// Working directory for connector temp files and the file-backed state
	// store fallback.
	WorkingDir string

	// Scheduler
	MaxConcurrentJobs int
	SchedulesFile     string // optional schedules.yaml, hot-reloaded via fsnotify

	// Connector execution
	ConnectorTimeoutSeconds int
	DefaultBatchSize        int
	MaxBatchSize            int

	// Lineage sink
	LineageWebhookURL     string
	LineageTimeoutSeconds int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "localhost:6379"),
		WorkingDir:  getEnv("WORKING_DIR", "/tmp/syncengine"),

		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 5),
		SchedulesFile:     os.Getenv("SCHEDULES_FILE"),

		ConnectorTimeoutSeconds: getEnvInt("CONNECTOR_TIMEOUT_SECONDS", 3600),
		DefaultBatchSize:        getEnvInt("DEFAULT_BATCH_SIZE", 1000),
		MaxBatchSize:            getEnvInt("MAX_BATCH_SIZE", 10000),

		LineageWebhookURL:     os.Getenv("LINEAGE_WEBHOOK_URL"),
		LineageTimeoutSeconds: getEnvInt("LINEAGE_TIMEOUT_SECONDS", 5),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.DefaultBatchSize < 1 {
		return nil, errors.New("DEFAULT_BATCH_SIZE must be at least 1")
	}
	if cfg.DefaultBatchSize > cfg.MaxBatchSize {
		return nil, errors.New("DEFAULT_BATCH_SIZE cannot exceed MAX_BATCH_SIZE")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// MergeFromDB loads configuration overrides from the `config` table so an
// operator can tune batch size and concurrency without redeploying.
func (cfg *Config) MergeFromDB(db *database.DB) error {
	configs, err := db.GetAllConfigs(context.Background())
	if err != nil {
		return err
	}

	for key, value := range configs {
		if value == "" {
			continue
		}

		switch key {
		case "max_concurrent_jobs":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				cfg.MaxConcurrentJobs = n
			}
		case "connector_timeout_seconds":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				cfg.ConnectorTimeoutSeconds = n
			}
		case "default_batch_size":
			if n, err := strconv.Atoi(value); err == nil && n > 0 && n <= cfg.MaxBatchSize {
				cfg.DefaultBatchSize = n
			}
		case "lineage_webhook_url":
			cfg.LineageWebhookURL = value
		}
	}

	return nil
}
