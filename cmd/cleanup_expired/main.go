package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"imagehost/internal/blob"
	"imagehost/internal/config"
	"imagehost/internal/database"
	"imagehost/internal/events"
	"imagehost/internal/expiry"
	"imagehost/internal/logger"
	"imagehost/internal/repository"
)

// Runs a single sweeper pass and prints {deleted, storageFailures, ms}.
// Viewers connected to a server process are not notified from here; they
// learn of the deletion from their own expiry timer or the next reload.
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "json")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}

	blobs, err := blob.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("blob store unavailable")
	}

	hub := events.NewHub(events.Options{}, log)
	scheduler := expiry.NewScheduler(hub, log)
	sweeper := expiry.NewSweeper(repository.NewImageRepository(db), blobs, hub, scheduler, expiry.SweeperConfig{
		BatchSize:     cfg.SweepBatchSize,
		BlobBatchSize: cfg.BlobDeleteBatchSize,
	}, log)

	res, err := sweeper.RunOnce(ctx)
	if err != nil {
		log.Fatal().Err(err).Int("deleted", res.Deleted).Msg("cleanup aborted")
	}

	_ = json.NewEncoder(os.Stdout).Encode(res)
	if len(res.StorageFailures) > 0 {
		os.Exit(2)
	}
}
