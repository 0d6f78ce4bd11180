// Package changefeed delivers transaction-table change events to a batch
// handler and acknowledges the records it processed.
package changefeed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// EventName is the kind of change recorded.
type EventName string

const (
	EventInsert EventName = "INSERT"
	EventModify EventName = "MODIFY"
	EventRemove EventName = "REMOVE"
)

// Record is one change event. NewImage is the row after the change; it is
// nil for REMOVE.
type Record struct {
	Seq       int64
	EventName EventName
	NewImage  *domain.Transaction
}

// ID identifies the record in a BatchItemFailure.
func (r Record) ID() string {
	return strconv.FormatInt(r.Seq, 10)
}

// BatchItemFailure names a record the handler failed to process.
type BatchItemFailure struct {
	ItemIdentifier string `json:"itemIdentifier"`
}

// Source is an ordered change feed. Poll leases up to max records; leased
// records are either acknowledged (removed) or released back to the feed.
type Source interface {
	Poll(ctx context.Context, max int) ([]Record, error)
	Ack(ctx context.Context, seqs []int64) error
	Release(ctx context.Context, seqs []int64) error
}

// BatchHandler processes a batch and reports the records that failed.
type BatchHandler interface {
	HandleBatch(ctx context.Context, records []Record) []BatchItemFailure
}

// Runner polls a Source and hands each batch to a BatchHandler.
type Runner struct {
	source       Source
	log          zerolog.Logger
	batchSize    int
	pollInterval time.Duration
}

// NewRunner creates a Runner. batchSize defaults to 25 and pollInterval to
// one second.
func NewRunner(source Source, log zerolog.Logger, batchSize int, pollInterval time.Duration) *Runner {
	if batchSize <= 0 {
		batchSize = 25
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Runner{source: source, log: log, batchSize: batchSize, pollInterval: pollInterval}
}

// RunOnce processes one batch and returns the number of records polled.
// Successful records are acknowledged; failed ones are released for
// redelivery.
func (r *Runner) RunOnce(ctx context.Context, h BatchHandler) (int, error) {
	records, err := r.source.Poll(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("RunOnce: poll: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	failures := h.HandleBatch(ctx, records)
	failed := make(map[string]bool, len(failures))
	for _, f := range failures {
		failed[f.ItemIdentifier] = true
	}

	var ack, release []int64
	for _, rec := range records {
		if failed[rec.ID()] {
			release = append(release, rec.Seq)
		} else {
			ack = append(ack, rec.Seq)
		}
	}

	if len(ack) > 0 {
		if err := r.source.Ack(ctx, ack); err != nil {
			return len(records), fmt.Errorf("RunOnce: ack: %w", err)
		}
	}
	if len(release) > 0 {
		if err := r.source.Release(ctx, release); err != nil {
			return len(records), fmt.Errorf("RunOnce: release: %w", err)
		}
	}

	r.log.Info().
		Int("records", len(records)).
		Int("acked", len(ack)).
		Int("failed", len(release)).
		Msg("change batch processed")
	return len(records), nil
}

// Run polls until ctx is done. Poll errors are logged and retried after the
// poll interval.
func (r *Runner) Run(ctx context.Context, h BatchHandler) error {
	for {
		n, err := r.RunOnce(ctx, h)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			r.log.Error().Err(err).Msg("change feed batch failed")
		}
		if n > 0 && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.pollInterval):
		}
	}
}
