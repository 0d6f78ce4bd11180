// Package worker holds the two ingestion workers: the file worker that
// drains statement jobs from the queue and the stream worker that
// categorizes transactions from the change feed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/jobs"
	"github.com/dvloznov/ledger-ingest/internal/logger"
	"github.com/dvloznov/ledger-ingest/internal/pipeline"
)

// FileWorker processes statement jobs. A message is deleted only after its
// job succeeded; a failed job stays on the queue and is redelivered once its
// visibility timeout expires.
type FileWorker struct {
	queue        jobs.Queue
	pipe         *pipeline.Pipeline
	statuses     jobs.StatusStore
	log          zerolog.Logger
	batchSize    int
	pollInterval time.Duration
	now          func() time.Time
}

// FileWorkerOptions tunes the poll loop.
type FileWorkerOptions struct {
	BatchSize    int
	PollInterval time.Duration
}

// NewFileWorker creates a FileWorker. statuses may be nil.
func NewFileWorker(queue jobs.Queue, pipe *pipeline.Pipeline, statuses jobs.StatusStore, log zerolog.Logger, opts FileWorkerOptions) *FileWorker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &FileWorker{
		queue:        queue,
		pipe:         pipe,
		statuses:     statuses,
		log:          log,
		batchSize:    opts.BatchSize,
		pollInterval: opts.PollInterval,
		now:          time.Now,
	}
}

// HandleMessage runs one job through the pipeline and acknowledges it on
// success.
func (w *FileWorker) HandleMessage(ctx context.Context, msg jobs.Message) error {
	if msg.Job == nil {
		return fmt.Errorf("HandleMessage: message %s has no job", msg.ID)
	}
	job := msg.Job
	log := w.log.With().
		Str("job_id", job.JobID).
		Str("message_id", msg.ID).
		Str("tenant_id", job.TenantID).
		Str("blob_key", job.BlobKey).
		Int("receive_count", msg.ReceiveCount).
		Logger()
	ctx = logger.WithContext(ctx, log)

	if err := job.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid job")
		return fmt.Errorf("HandleMessage: %w", err)
	}

	log.Info().Msg("Processing statement job")
	w.record(ctx, job, msg.ReceiveCount, jobs.JobStatusRunning, nil, nil)

	state := pipeline.NewState(job)
	if err := w.pipe.Execute(ctx, state); err != nil {
		ev := log.Error().Err(err)
		var hnf *domain.HeaderNotFoundError
		switch {
		case errors.As(err, &hnf):
			ev = ev.Str("failure", "structural")
		case domain.IsRetryable(err):
			ev = ev.Str("failure", "transport")
		}
		ev.Msg("Pipeline execution failed")
		w.record(ctx, job, msg.ReceiveCount, jobs.JobStatusFailed, state, err)
		return fmt.Errorf("HandleMessage: job %s: %w", job.JobID, err)
	}

	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		log.Error().Err(err).Msg("Failed to delete processed message")
		return fmt.Errorf("HandleMessage: delete %s: %w", msg.ID, err)
	}

	w.record(ctx, job, msg.ReceiveCount, jobs.JobStatusCompleted, state, nil)
	log.Info().
		Int("inserted", state.Summary.Inserted).
		Int("duplicates", state.Summary.Duplicates).
		Int("categorized", state.Categorized).
		Msg("Pipeline execution completed successfully")
	return nil
}

// HandleBatch processes msgs one at a time and returns the IDs of the
// messages that failed.
func (w *FileWorker) HandleBatch(ctx context.Context, msgs []jobs.Message) []string {
	var failed []string
	for _, msg := range msgs {
		if err := w.HandleMessage(ctx, msg); err != nil {
			failed = append(failed, msg.ID)
		}
	}
	return failed
}

// Run polls the queue until ctx is done.
func (w *FileWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("File worker started, waiting for jobs...")
	for {
		msgs, err := w.queue.Receive(ctx, w.batchSize)
		switch {
		case ctx.Err() != nil:
			w.log.Info().Msg("File worker stopped")
			return nil
		case err != nil:
			w.log.Error().Err(err).Msg("Failed to receive jobs")
		case len(msgs) > 0:
			if failed := w.HandleBatch(ctx, msgs); len(failed) > 0 {
				w.log.Warn().Strs("message_ids", failed).Msg("jobs left for redelivery")
			}
			continue
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("File worker stopped")
			return nil
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *FileWorker) record(ctx context.Context, job *jobs.StatementJob, attempts int, status jobs.JobStatus, state *pipeline.PipelineState, jobErr error) {
	if w.statuses == nil {
		return
	}
	rec := &jobs.Record{
		JobID:     job.JobID,
		TenantID:  job.TenantID,
		BlobKey:   job.BlobKey,
		Status:    status,
		Attempts:  attempts,
		UpdatedAt: w.now().UTC(),
	}
	if state != nil {
		rec.Parsed = len(state.Transactions)
		if state.Result != nil {
			rec.Skipped = state.Result.Skipped
		}
		rec.Inserted = state.Summary.Inserted
		rec.Duplicates = state.Summary.Duplicates
	}
	if jobErr != nil {
		rec.Error = jobErr.Error()
	}
	if err := w.statuses.SaveRecord(ctx, rec); err != nil {
		w.log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to save job status")
	}
}
