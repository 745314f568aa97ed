// FitStack Settlement Worker
//
// Expires memberships past their end date and reports payments stuck in
// pending, on the SWEEP_SCHEDULE recurrence.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitstack/fitstack-settlement/config"
	"github.com/fitstack/fitstack-settlement/internal/adapters/postgres"
	"github.com/fitstack/fitstack-settlement/internal/core/service"
	"github.com/fitstack/fitstack-settlement/internal/telemetry"
	"github.com/fitstack/fitstack-settlement/internal/worker"
)

func main() {
	cfg := config.Load()
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName+"-worker", cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Fatalf("Telemetry error: %v", err)
	}

	db, err := postgres.InitDB(cfg.Database.URL, postgres.PoolConfig{
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	memberships := service.NewMembershipService(
		postgres.NewMembershipRepository(db),
		postgres.NewPackageRepository(db),
		time.Now,
	)
	sweeper, err := worker.NewSweeper(cfg.Worker.Schedule, cfg.Worker.StalePendingAfter,
		memberships, postgres.NewPaymentRepository(db), time.Now)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down worker...")
		cancel()
	}()

	log.Printf("Worker started with schedule %s", cfg.Worker.Schedule)
	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Worker stopped: %v", err)
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Printf("Tracer shutdown error: %v", err)
	}
	log.Println("Worker exited")
}
