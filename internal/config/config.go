// Package config handles environment variable loading for ports, database strings, etc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// Redis connection for the idempotency ledger
	RedisAddr     string
	RedisPassword string

	// HTTP server port for the controller
	HTTPPort int

	// Shared secret protecting /internal endpoints
	InternalAuthSecret string

	// Dispatcher configuration
	WorkerConcurrency  int
	WorkerPollInterval time.Duration

	// Reconciler sweep interval and failed-post retry lookback
	ReconcileInterval time.Duration
	RetryLookback     time.Duration

	// Identity override for sweep-injected jobs. When empty the reconciler
	// resolves the default actor from the users table.
	ActorEmail string

	// Business Profile API credentials
	GBPAccountID      string
	OAuthClientID     string
	OAuthClientSecret string

	// OTLP collector endpoint for traces
	OTELEndpoint string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	port := 7070 // Default
	if portStr := os.Getenv("PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		port = p
	}

	concurrency := 5 // Default
	if concurrencyStr := os.Getenv("WORKER_CONCURRENCY"); concurrencyStr != "" {
		c, err := strconv.Atoi(concurrencyStr)
		if err != nil {
			return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
		}
		concurrency = c
	}

	pollInterval := 1 * time.Second // Default
	if pollIntervalStr := os.Getenv("WORKER_POLL_INTERVAL"); pollIntervalStr != "" {
		pi, err := time.ParseDuration(pollIntervalStr)
		if err != nil {
			return nil, fmt.Errorf("invalid WORKER_POLL_INTERVAL: %w", err)
		}
		pollInterval = pi
	}

	reconcileInterval := 1 * time.Hour // Default
	if intervalStr := os.Getenv("RECONCILE_INTERVAL"); intervalStr != "" {
		ri, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("invalid RECONCILE_INTERVAL: %w", err)
		}
		reconcileInterval = ri
	}

	retryLookback := 24 * time.Hour // Default
	if lookbackStr := os.Getenv("RETRY_LOOKBACK"); lookbackStr != "" {
		rl, err := time.ParseDuration(lookbackStr)
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_LOOKBACK: %w", err)
		}
		retryLookback = rl
	}

	otelEndpoint := os.Getenv("OTEL_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}

	return &Config{
		DatabaseURL:        dbURL,
		RedisAddr:          redisAddr,
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		HTTPPort:           port,
		InternalAuthSecret: os.Getenv("INTERNAL_AUTH_SECRET"),
		WorkerConcurrency:  concurrency,
		WorkerPollInterval: pollInterval,
		ReconcileInterval:  reconcileInterval,
		RetryLookback:      retryLookback,
		ActorEmail:         os.Getenv("ACTOR_EMAIL"),
		GBPAccountID:       os.Getenv("GBP_ACCOUNT_ID"),
		OAuthClientID:      os.Getenv("OAUTH_CLIENT_ID"),
		OAuthClientSecret:  os.Getenv("OAUTH_CLIENT_SECRET"),
		OTELEndpoint:       otelEndpoint,
	}, nil
}
