// Package main is the entry point for the postpilot worker.
// The worker drains due publish jobs and pushes posts to the Business
// Profile API. It also runs the periodic reconciliation sweep.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"postpilot/internal/config"
	"postpilot/internal/logger"
	"postpilot/internal/observability"
	"postpilot/internal/publisher"
	"postpilot/internal/reconciler"
	"postpilot/internal/store/postgres"
	redisstore "postpilot/internal/store/redis"
	"postpilot/internal/worker"
)

func main() {
	// Local development convenience; a missing .env is fine.
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slogger := logger.New("worker")

	pg, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pg.Close()

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	ledger := redisstore.NewLedger(redisClient)

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "postpilot-worker", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	pub := publisher.New(publisher.Config{
		AccountID:    cfg.GBPAccountID,
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
	})

	agent := worker.New(pg, pg, ledger, pub, worker.AgentConfig{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
	}, slogger)

	log.Printf("Worker started with concurrency %d", cfg.WorkerConcurrency)
	go func() {
		if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Dispatcher stopped: %v", err)
		}
	}()

	// The sweep shares the worker process so a single deployment heals
	// missed schedules without a separate cron.
	sweeper := reconciler.New(pg, pg, ledger, reconciler.Config{
		Interval:      cfg.ReconcileInterval,
		RetryLookback: cfg.RetryLookback,
		ActorEmail:    cfg.ActorEmail,
	}, slogger)
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Reconciler stopped: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Start a dedicated metrics server on port 6162
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		log.Println("Worker metrics listening on :6162")
		if err := http.ListenAndServe(":6162", mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()

	<-agent.Done()
}
