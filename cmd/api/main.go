// FitStack Settlement Service
//
// This is the main entry point for the payment settlement service.
// It wires up all dependencies and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitstack/fitstack-settlement/config"
	"github.com/fitstack/fitstack-settlement/internal/adapters/core"
	"github.com/fitstack/fitstack-settlement/internal/adapters/lock"
	"github.com/fitstack/fitstack-settlement/internal/adapters/momo"
	"github.com/fitstack/fitstack-settlement/internal/adapters/postgres"
	"github.com/fitstack/fitstack-settlement/internal/core/ports"
	"github.com/fitstack/fitstack-settlement/internal/core/service"
	"github.com/fitstack/fitstack-settlement/internal/handlers"
	"github.com/fitstack/fitstack-settlement/internal/telemetry"
)

func main() {
	log.Println("Starting FitStack Settlement Service...")

	// Load configuration
	cfg := config.Load()
	log.Printf("Configuration loaded: Port=%s, CoreURL=%s", cfg.Server.Port, cfg.Core.BaseURL)

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Fatalf("Telemetry error: %v", err)
	}

	// Wire up dependencies (manual dependency injection)
	//
	// Infrastructure Layer
	db, err := postgres.InitDB(cfg.Database.URL, postgres.PoolConfig{
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}

	paymentRepo := postgres.NewPaymentRepository(db)
	membershipRepo := postgres.NewMembershipRepository(db)
	packageRepo := postgres.NewPackageRepository(db)
	promotionRepo := postgres.NewPromotionRepository(db)
	txManager := postgres.NewTxManager(db)

	var locker ports.OrderLocker
	if cfg.Redis.URL != "" {
		rdb, err := lock.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.Redis.LockTTL)
		log.Println("Settlement locks: redis")
	} else {
		locker = lock.NewLocalLocker()
		log.Println("Settlement locks: in-process (single replica only)")
	}

	coreClient := core.NewClient(cfg.Core.BaseURL, cfg.Core.APIKey, cfg.Core.Timeout)
	momoClient := momo.NewClient(momo.Config{
		Endpoint:    cfg.Gateway.Endpoint,
		PartnerCode: cfg.Gateway.PartnerCode,
		PartnerName: cfg.Gateway.PartnerName,
		StoreID:     cfg.Gateway.StoreID,
		AccessKey:   cfg.Gateway.AccessKey,
		SecretKey:   cfg.Gateway.SecretKey,
		RedirectURL: cfg.Gateway.RedirectURL,
		IPNURL:      cfg.Gateway.IPNURL,
		RequestType: cfg.Gateway.RequestType,
		Lang:        cfg.Gateway.Lang,
		AutoCapture: cfg.Gateway.AutoCapture,
		Timeout:     cfg.Gateway.Timeout,
	})
	validator := momo.NewWebhookValidator(cfg.Gateway.AccessKey, cfg.Gateway.SecretKey)

	// Service Layer
	membershipService := service.NewMembershipService(membershipRepo, packageRepo, time.Now)
	checkoutService := service.NewCheckoutService(
		service.CheckoutConfig{
			OrderPrefix: cfg.Checkout.OrderPrefix,
			OrderInfo:   cfg.Gateway.OrderInfo,
			Method:      cfg.Gateway.RequestType,
		},
		momoClient, // implements ports.PaymentGateway
		paymentRepo,
		packageRepo,
		promotionRepo,
		coreClient, // implements ports.MemberDirectory
		time.Now,
	)
	settlementService := service.NewSettlementService(
		paymentRepo,
		membershipService,
		txManager,
		locker,
		coreClient, // implements ports.ActivationNotifier
	)

	// API Layer
	paymentHandler := handlers.NewPaymentHandler(checkoutService, settlementService, validator, handlers.FrontendURLs{
		SuccessURL: cfg.Frontend.SuccessURL,
		FailureURL: cfg.Frontend.FailureURL,
	})
	membershipHandler := handlers.NewMembershipHandler(membershipService)
	router := handlers.SetupRouter(handlers.RouterConfig{
		GinMode:        cfg.Server.GinMode,
		CORSOrigins:    cfg.Server.CORSOrigins,
		JWTSecret:      cfg.Security.JWTSecret,
		InternalAPIKey: cfg.Security.InternalAPIKey,
		CheckoutRPS:    cfg.Checkout.RateLimitRPS,
		CheckoutBurst:  cfg.Checkout.RateBurst,
	}, paymentHandler, membershipHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("Tracer shutdown error: %v", err)
	}
	log.Println("Server exited")
}
