package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-ingest/internal/categorize"
	"github.com/dvloznov/ledger-ingest/internal/changefeed"
)

// Categorizer categorizes one transaction.
type Categorizer interface {
	Categorize(ctx context.Context, req categorize.Request) (bool, error)
}

// StreamWorker categorizes transactions as their change events arrive.
type StreamWorker struct {
	categorizer Categorizer
	log         zerolog.Logger
}

func NewStreamWorker(c Categorizer, log zerolog.Logger) *StreamWorker {
	return &StreamWorker{categorizer: c, log: log}
}

// HandleBatch categorizes each INSERT or MODIFY record that carries a
// description. A record that fails is reported in the returned list and does
// not stop the rest of the batch.
func (w *StreamWorker) HandleBatch(ctx context.Context, records []changefeed.Record) []changefeed.BatchItemFailure {
	var failures []changefeed.BatchItemFailure
	for _, rec := range records {
		if !actionable(rec) {
			continue
		}
		if err := w.handle(ctx, rec); err != nil {
			w.log.Error().
				Err(err).
				Str("item", rec.ID()).
				Str("transaction_id", rec.NewImage.TransactionID).
				Msg("stream record failed")
			failures = append(failures, changefeed.BatchItemFailure{ItemIdentifier: rec.ID()})
		}
	}
	return failures
}

func (w *StreamWorker) handle(ctx context.Context, rec changefeed.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic categorizing record %s: %v", rec.ID(), r)
		}
	}()
	_, err = w.categorizer.Categorize(ctx, categorize.RequestFor(*rec.NewImage))
	return err
}

func actionable(rec changefeed.Record) bool {
	if rec.EventName != changefeed.EventInsert && rec.EventName != changefeed.EventModify {
		return false
	}
	return rec.NewImage != nil && strings.TrimSpace(rec.NewImage.Description) != ""
}

// Run drives the worker from a change-feed runner until ctx is done.
func (w *StreamWorker) Run(ctx context.Context, runner *changefeed.Runner) error {
	w.log.Info().Msg("Stream worker started")
	return runner.Run(ctx, w)
}
