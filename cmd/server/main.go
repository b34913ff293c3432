// Package main is the entry point for the inspection backend server.
// It serves the REST API for offers, appointments and their status history,
// and runs the daily follow-up scheduler and the audit integrity worker.
//
// Architecture:
//   - Every request is authorized by the role and branch scoped evaluator
//   - Offers and appointments move only through the lifecycle transitions
//   - Status history is hash chained and published as a Merkle root
//   - Follow-up reminders, escalation and expiry run once per day under a
//     Redis lease
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/besikta/inspection-server/internal/auth"
	"github.com/besikta/inspection-server/internal/config"
	"github.com/besikta/inspection-server/internal/database"
	"github.com/besikta/inspection-server/internal/handlers"
	"github.com/besikta/inspection-server/internal/lock"
	"github.com/besikta/inspection-server/internal/metrics"
	"github.com/besikta/inspection-server/internal/notify"
	"github.com/besikta/inspection-server/internal/services"
	"github.com/besikta/inspection-server/internal/store"
	"github.com/besikta/inspection-server/internal/store/postgres"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	sugar := logger.Sugar()

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("Failed to load config: %v", err)
	}

	sugar.Infow("Starting inspection server",
		"port", cfg.Port,
		"env", cfg.Environment,
		"storage", cfg.Storage,
		"timezone", cfg.Location.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence
	var st store.Store
	switch cfg.Storage {
	case config.StoragePostgres:
		pool, err := database.NewPool(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
		if err != nil {
			sugar.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			sugar.Fatalf("Failed to migrate database: %v", err)
		}
		st = postgres.NewStore(pool)
	default:
		sugar.Warn("Using in-memory storage, data is lost on restart")
		st = store.NewMemory()
	}

	// Canonical principals tokens are resolved against
	if cfg.PrincipalsFile != "" {
		seeded, err := auth.LoadPrincipalsFile(ctx, st, cfg.PrincipalsFile)
		if err != nil {
			sugar.Fatalf("Failed to load principals: %v", err)
		}
		sugar.Infow("Principals loaded", "file", cfg.PrincipalsFile, "count", len(seeded))
	} else if cfg.Storage == config.StorageMemory {
		sugar.Warn("PRINCIPALS_FILE not set, no token will authenticate against in-memory storage")
	}

	// Redis backs the scheduler lease and the notification stream
	var (
		locker     lock.Locker
		dispatcher notify.Dispatcher
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			sugar.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			sugar.Fatalf("Failed to connect to redis: %v", err)
		}
		locker = lock.NewRedis(rdb, "inspection:")
		dispatcher = notify.NewStream(rdb, cfg.NotifyStream, cfg.NotifyMaxLen)
	} else {
		sugar.Warn("REDIS_URL not set, scheduler lease is process local and notifications are only logged")
		locker = lock.NewMemory()
		dispatcher = notify.NewLog(sugar)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize services
	deps := services.Deps{
		Store:         st,
		Notifier:      dispatcher,
		Metrics:       m,
		Logger:        sugar,
		CommitRetries: cfg.CommitRetries,
	}
	offerSvc := services.NewOfferService(deps, cfg.FollowUpPolicy())
	appointmentSvc := services.NewAppointmentService(deps, cfg.AppointmentPolicy())
	customerSvc := services.NewCustomerService(deps)
	reportSvc := services.NewReportService(deps)
	historySvc := services.NewHistoryService(deps)
	integritySvc := services.NewIntegrityService(sugar)
	integrityWorker := services.NewIntegrityWorker(integritySvc, st, sugar)
	scheduler := services.NewFollowUpScheduler(offerSvc, locker,
		services.WithSchedule(cfg.FollowUpSchedule),
		services.WithLeaseTTL(cfg.LeaseTTL),
	)

	// Start background integrity worker (rebuilds Merkle tree periodically)
	go integrityWorker.Start(ctx, time.Duration(cfg.MerkleRebuildInterval)*time.Minute)

	if cfg.SchedulerEnabled {
		go func() {
			if err := scheduler.Run(ctx); err != nil {
				sugar.Errorw("Follow-up scheduler exited", "error", err)
			}
		}()
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL, cfg.JWTIssuer)

	router := handlers.NewRouter(handlers.RouterConfig{
		Context:        ctx,
		Logger:         logger,
		Metrics:        m,
		Gatherer:       registry,
		Auth:           auth.NewResolver(tokens, st),
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimitRPM:   cfg.RateLimitRPM,
		RequestTimeout: cfg.RequestTimeout,

		Health:       handlers.NewHealthHandler(st, integritySvc, sugar),
		Offers:       handlers.NewOfferHandler(offerSvc, sugar),
		Appointments: handlers.NewAppointmentHandler(appointmentSvc, sugar),
		Resources:    handlers.NewResourceHandler(customerSvc, reportSvc, sugar),
		History:      handlers.NewHistoryHandler(historySvc, sugar),
		Integrity:    handlers.NewIntegrityHandler(integritySvc, sugar),
		Scheduler:    handlers.NewSchedulerHandler(scheduler, sugar),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infof("Server listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	sugar.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Fatalf("Forced shutdown: %v", err)
	}

	sugar.Info("Server stopped")
}
