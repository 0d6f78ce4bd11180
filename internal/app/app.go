// Package app assembles the stores, queue, change feed and categorizer
// described by a config.Config. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-ingest/internal/ai"
	"github.com/dvloznov/ledger-ingest/internal/blob"
	"github.com/dvloznov/ledger-ingest/internal/categorize"
	"github.com/dvloznov/ledger-ingest/internal/changefeed"
	"github.com/dvloznov/ledger-ingest/internal/config"
	infrabq "github.com/dvloznov/ledger-ingest/internal/infra/bigquery"
	"github.com/dvloznov/ledger-ingest/internal/infra/sqlite"
	"github.com/dvloznov/ledger-ingest/internal/jobs"
	"github.com/dvloznov/ledger-ingest/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-ingest/internal/pipeline"
	"github.com/dvloznov/ledger-ingest/internal/rules"
	"github.com/dvloznov/ledger-ingest/internal/txstore"
)

// App holds the wired components. Feed is nil when the storage driver has
// no change feed (BigQuery) or when categorize.mode is "direct".
type App struct {
	Config       *config.Config
	Log          zerolog.Logger
	Blobs        blob.Store
	Rules        *rules.Store
	Transactions *txstore.Store
	Categorizer  *categorize.Orchestrator
	Queue        jobs.Queue
	Statuses     jobs.StatusStore
	Feed         changefeed.Source

	closers []func() error
}

// Options tweaks New for callers that do not need every component.
type Options struct {
	// SkipBlobs leaves Blobs as an in-memory store even when a bucket is
	// configured.
	SkipBlobs bool
	// SkipAI leaves the AI stage off regardless of ai.enabled.
	SkipAI bool
}

// New builds an App from cfg. Close releases every client it opened.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: log}
	if err := a.build(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg := a.Config

	var sdb *sqlite.DB
	if cfg.Storage.Driver == "sqlite" || cfg.Queue.Driver == "sqlite" {
		d, err := sqlite.OpenMigrated(ctx, cfg.Storage.SQLite.Path, a.Log)
		if err != nil {
			return fmt.Errorf("New: %w", err)
		}
		a.closers = append(a.closers, d.Close)
		sdb = d
	}

	var (
		ruleRepo rules.Repository
		txRepo   txstore.Repository
	)
	switch cfg.Storage.Driver {
	case "sqlite":
		ruleRepo = sqlite.NewRuleRepository(sdb)
		stream := cfg.Categorize.Mode != "direct"
		txRepo = sqlite.NewTransactionRepository(sdb, stream)
		if stream {
			a.Feed = sqlite.NewChangeFeed(sdb, cfg.Queue.VisibilityTimeout)
		}
	case "bigquery":
		client, err := infrabq.NewClient(ctx, cfg.Storage.BigQuery.Project, cfg.Storage.BigQuery.Dataset)
		if err != nil {
			return fmt.Errorf("New: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		ruleRepo = infrabq.NewRuleRepository(client)
		txRepo = infrabq.NewTransactionRepository(client)
	default:
		return fmt.Errorf("New: unknown storage driver %q", cfg.Storage.Driver)
	}

	a.Rules = rules.NewStore(ruleRepo, a.Log, cfg.Rules.DefaultTenant, cfg.Store.ChunkSize)
	a.Transactions = txstore.NewStore(txRepo, a.Log, cfg.Store.ChunkSize)

	switch cfg.Queue.Driver {
	case "sqlite":
		a.Queue = sqlite.NewQueue(sdb, cfg.Queue.VisibilityTimeout)
		a.Statuses = sqlite.NewJobStatusStore(sdb)
	default:
		q := inmemory.NewQueue(cfg.Queue.VisibilityTimeout)
		a.closers = append(a.closers, q.Close)
		a.Queue = q
		a.Statuses = inmemory.NewStore()
	}

	if cfg.Blob.Bucket != "" && !opts.SkipBlobs {
		gcs, err := blob.NewGCSStore(ctx, cfg.Blob.Bucket)
		if err != nil {
			return fmt.Errorf("New: %w", err)
		}
		a.closers = append(a.closers, gcs.Close)
		a.Blobs = gcs
	} else {
		a.Blobs = blob.NewMemoryStore()
	}

	var classifier categorize.AIClassifier
	if cfg.AI.Enabled && !opts.SkipAI {
		client, err := ai.NewGeminiClient(ctx, cfg.AI.Model, cfg.AI.EmbedModel)
		if err != nil {
			return fmt.Errorf("New: %w", err)
		}
		classifier = ai.NewClassifier(client, a.Log, ai.Options{
			Timeout:  cfg.AI.Timeout,
			CacheTTL: cfg.AI.CacheTTL,
		})
	}

	a.Categorizer = categorize.NewOrchestrator(a.Rules, classifier, a.Transactions, a.Log, categorize.Options{
		AIEnabled:     classifier != nil,
		MinConfidence: cfg.AI.MinConfidence,
		Tagger:        cfg.AI.Tagger,
		Embeddings:    cfg.AI.Embeddings,
	})
	return nil
}

// DirectMode reports whether the file worker should categorize right after
// saving. Stream mode without a change feed falls back to direct.
func (a *App) DirectMode() bool {
	return a.Config.Categorize.Mode == "direct" || a.Feed == nil
}

// Pipeline builds the ingestion pipeline for queued jobs.
func (a *App) Pipeline() *pipeline.Pipeline {
	return pipeline.NewIngestionPipeline(pipeline.Deps{
		Blobs:       a.Blobs,
		Store:       a.Transactions,
		Categorizer: a.Categorizer,
		Direct:      a.DirectMode(),
	})
}

// Close releases clients in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
