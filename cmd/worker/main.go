package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/podbrief/podbrief/internal/config"
	"github.com/podbrief/podbrief/internal/database"
	"github.com/podbrief/podbrief/internal/logging"
	"github.com/podbrief/podbrief/internal/notify"
	"github.com/podbrief/podbrief/internal/quota"
)

const resetInterval = time.Minute

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

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	repo := database.NewRepository(db)

	bus, err := notify.New(cfg.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to message bus")
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Shutting down worker")
		cancel()
	}()

	resetter := quota.New(repo, bus, resetInterval)

	log.Info().Dur("interval", resetInterval).Msg("Quota reset worker started")
	if err := resetter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Worker failed")
	}

	log.Info().Msg("Worker stopped")
}
