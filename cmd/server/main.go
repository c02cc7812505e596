package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/traffic-tracker/internal/ads"
	"github.com/Priya8975/traffic-tracker/internal/api"
	"github.com/Priya8975/traffic-tracker/internal/config"
	"github.com/Priya8975/traffic-tracker/internal/engine"
	"github.com/Priya8975/traffic-tracker/internal/fraud"
	"github.com/Priya8975/traffic-tracker/internal/geo"
	"github.com/Priya8975/traffic-tracker/internal/store"
	ws "github.com/Priya8975/traffic-tracker/internal/websocket"
	"github.com/Priya8975/traffic-tracker/internal/worker"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis when configured
	var redisClient *redis.Client
	var redisPinger api.Pinger
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		redisClient = redisStore.Client()
		redisPinger = redisStore
		logger.Info("connected to Redis")
	} else {
		logger.Warn("REDIS_URL not set, geolocation cache and ip exclusion disabled")
	}

	enricher := geo.NewEnricher(cfg.Geo, redisClient, logger)

	validator, err := fraud.NewValidator(cfg.Fraud, pgStore, logger)
	if err != nil {
		logger.Error("failed to create click validator", "error", err)
		os.Exit(1)
	}

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	// IP exclusion pipeline
	var exclusions api.ExclusionEnqueuer
	var pool *worker.Pool
	dispatcherDone := make(chan struct{})
	if cfg.Ads.ExclusionEnabled && redisClient != nil {
		queue := engine.NewExclusionQueue(redisClient, logger)
		limiter := engine.NewRateLimiter(redisClient, time.Second, logger)
		breaker := engine.NewCircuitBreaker(redisClient, logger)
		manager := ads.NewSimulatedManager(cfg.Ads.CustomerID, logger)
		excluder := worker.NewExcluder(manager, queue, limiter, cfg.Ads.RateLimitPerSecond, breaker, logger)

		pool = worker.NewPool(cfg.Ads.Workers, excluder, logger)
		pool.Start(ctx)

		dispatcher := worker.NewDispatcher(queue, pool, logger)
		go func() {
			defer close(dispatcherDone)
			dispatcher.Start(ctx)
		}()

		exclusions = queue
		logger.Info("ip exclusion enabled",
			"customer_id", cfg.Ads.CustomerID,
			"list_name", cfg.Ads.ListName,
			"workers", cfg.Ads.Workers,
		)
	} else {
		close(dispatcherDone)
	}

	// Setup router
	router := api.NewRouter(api.Deps{
		Store:             pgStore,
		Geo:               enricher,
		Validator:         validator,
		Hub:               hub,
		Exclusions:        exclusions,
		ExclusionListName: cfg.Ads.ListName,
		Redis:             redisPinger,
		Logger:            logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Stop background work: the dispatcher must exit before the pool's job
	// channel is closed.
	cancel()
	<-dispatcherDone
	if pool != nil {
		pool.Stop()
	}

	logger.Info("server stopped")
}
