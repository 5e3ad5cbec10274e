// Package main is the entry point for the reward and access control engine.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"playguard/internal/config"
	"playguard/internal/content"
	"playguard/internal/model"
	"playguard/internal/pkg/db"
	"playguard/internal/remote"
	"playguard/internal/repository"
	"playguard/internal/service"
	"playguard/internal/worker"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Create the local store schema
	if err := repository.Bootstrap(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap database schema")
	}

	gw := repository.NewPostgres(dbPool.Pool)

	// Load the achievement and reward-rule catalog
	catalog, err := content.Load(cfg.Content.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load content catalog")
	}
	log.Info().Int("games", catalog.Games()).Msg("Content catalog loaded")

	// Start the sync queue draining toward the remote store
	sink := remote.NewHTTPSink(cfg.Remote.BaseURL, cfg.Remote.Timeout)
	queue := worker.NewQueue(gw, sink, cfg.Sync)
	queue.Start()

	engine := service.NewEngine(gw, catalog, catalog.Rules(), queue)

	// Surface notifications in the log until a UI bridge registers its own
	// listeners.
	engine.Listeners.OnAchievementUnlocked(func(gameID, childID string, a model.Achievement) {
		log.Info().
			Str("game_id", gameID).
			Str("child_id", childID).
			Str("achievement", a.Name).
			Msg("achievement celebration")
	})
	engine.Listeners.OnCurrencyUpdated(func(childID string, amount int64, reason string) {
		log.Debug().
			Str("child_id", childID).
			Int64("amount", amount).
			Str("reason", reason).
			Msg("balance changed")
	})

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("Engine is running")

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Flush what we can before exiting
	queue.Drain(ctx)
	queue.Stop()
	log.Info().Msg("Engine stopped gracefully")
}
