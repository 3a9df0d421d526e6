package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/podbrief/podbrief/internal/billing"
	"github.com/podbrief/podbrief/internal/cache"
	"github.com/podbrief/podbrief/internal/config"
	"github.com/podbrief/podbrief/internal/database"
	"github.com/podbrief/podbrief/internal/limits"
	"github.com/podbrief/podbrief/internal/logging"
	"github.com/podbrief/podbrief/internal/metrics"
	"github.com/podbrief/podbrief/internal/middleware"
	"github.com/podbrief/podbrief/internal/notify"
	"github.com/podbrief/podbrief/internal/pipeline"
	"github.com/podbrief/podbrief/internal/provider"
	"github.com/podbrief/podbrief/internal/storage"
	"github.com/podbrief/podbrief/internal/subscription"
	"github.com/podbrief/podbrief/internal/tracing"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if _, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	middleware.SetJWTSecret(cfg.Auth.JWTSecret)

	if cfg.Tracing.Enabled {
		_, closer, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracing")
		}
		defer closer.Close()
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	repo := database.NewRepository(db)

	stor, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	redisCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisCache.Close()

	bus, err := notify.New(cfg.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to message bus")
	}
	defer bus.Close()

	billingSvc := billing.New(cfg.Billing, repo, bus)

	gate := limits.NewGate(repo)
	transcriber := provider.NewTranscriptionClient(cfg.Providers)
	generator := provider.NewGenerationClient(cfg.Providers)
	pipe := pipeline.New(repo, gate, transcriber, generator, bus)

	sessions := subscription.NewManager(repo, billingSvc, redisCache)

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	events, err := bus.Subscribe(watchCtx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe to change events")
	}
	go sessions.Watch(watchCtx, events)

	api := &API{
		repo:     repo,
		storage:  stor,
		cache:    redisCache,
		pipe:     pipe,
		billing:  billingSvc,
		sessions: sessions,
	}

	router := setupRouter(api)

	metricsServer := metrics.NewServer(cfg.Metrics.Port)
	go func() {
		if err := metricsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Metrics server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
