// Package main is the entry point for the postpilot controller.
// The controller serves the scheduling API and the internal sweep endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"postpilot/internal/config"
	"postpilot/internal/controller"
	"postpilot/internal/logger"
	"postpilot/internal/observability"
	"postpilot/internal/reconciler"
	"postpilot/internal/scheduler"
	"postpilot/internal/store/postgres"
	redisstore "postpilot/internal/store/redis"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	// Local development convenience; a missing .env is fine.
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	slogger := logger.New("controller")

	// Connect to Postgres (posts + job queue)
	pg, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pg.Close()

	// Run migrations if requested
	if *migrateFlag {
		log.Println("Running database migrations...")
		if err := postgres.Migrate(pg.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
	}

	// Redis-backed idempotency ledger
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	ledger := redisstore.NewLedger(redisClient)

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "postpilot-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
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

	// Use an Observable Gauge (Async) that queries the DB only when scraped.
	meter := otel.Meter("postpilot-controller")
	_, err = meter.Int64ObservableGauge("postpilot.queue.pending",
		metric.WithDescription("Jobs waiting to be dispatched (delayed + ready)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			counts, err := pg.Counts(ctx)
			if err != nil {
				log.Printf("Failed to count queue depth: %v", err)
				return nil // Don't crash metrics scrape on DB error
			}
			obs.Observe(counts.Delayed + counts.Ready)
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register queue depth metric: %v", err)
	}

	sched := scheduler.New(pg, ledger, slogger)
	sweeper := reconciler.New(pg, pg, ledger, reconciler.Config{
		Interval:      cfg.ReconcileInterval,
		RetryLookback: cfg.RetryLookback,
		ActorEmail:    cfg.ActorEmail,
	}, slogger)

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(controller.Config{
		Addr:           addr,
		InternalSecret: cfg.InternalAuthSecret,
		RateLimitRPS:   10,
		RateLimitBurst: 20,
	}, pg, sched, sweeper, ledger, metricsHandler)

	go func() {
		log.Printf("Postpilot Controller starting on %s", addr)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down controller...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited properly")
}
