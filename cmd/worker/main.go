package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/ledger-ingest/internal/app"
	"github.com/dvloznov/ledger-ingest/internal/changefeed"
	"github.com/dvloznov/ledger-ingest/internal/config"
	"github.com/dvloznov/ledger-ingest/internal/logger"
	"github.com/dvloznov/ledger-ingest/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "Path to ledger.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.NewWithLevel(cfg.Log.Level, cfg.Log.Format)
	log.Info().
		Str("storage", cfg.Storage.Driver).
		Str("queue", cfg.Queue.Driver).
		Str("mode", cfg.Categorize.Mode).
		Bool("ai", cfg.AI.Enabled).
		Msg("Starting worker service")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize components")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close components")
		}
	}()

	if cfg.Categorize.Mode == "stream" && a.Feed == nil {
		log.Warn().
			Str("storage", cfg.Storage.Driver).
			Msg("Storage driver has no change feed, categorizing in the file worker instead")
	}

	files := worker.NewFileWorker(a.Queue, a.Pipeline(), a.Statuses, log, worker.FileWorkerOptions{
		BatchSize:    cfg.Queue.BatchSize,
		PollInterval: cfg.Queue.PollInterval,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return files.Run(gctx)
	})
	if !a.DirectMode() {
		runner := changefeed.NewRunner(a.Feed, log, cfg.Stream.BatchSize, cfg.Stream.PollInterval)
		stream := worker.NewStreamWorker(a.Categorizer, log)
		g.Go(func() error {
			return stream.Run(gctx, runner)
		})
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-gctx.Done():
	}

	log.Info().Msg("Shutting down worker service...")
	cancel()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Worker stopped with error")
		}
	case <-time.After(30 * time.Second):
		log.Error().Msg("Timed out waiting for in-flight jobs")
	}

	log.Info().Msg("Worker service exited")
}
