// Package pipeline runs one statement job through fetch, parse, save and
// (in direct mode) categorize steps.
package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/jobs"
	"github.com/dvloznov/ledger-ingest/internal/parser"
	"github.com/dvloznov/ledger-ingest/internal/txstore"
)

// PipelineStep represents a single step in the ingestion pipeline.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Job          *jobs.StatementJob
	Data         []byte
	Format       parser.Format
	Result       *parser.Result
	Transactions []domain.Transaction
	Summary      txstore.SaveSummary
	Categorized  int
}

// NewState creates the state for a job.
func NewState(job *jobs.StatementJob) *PipelineState {
	return &PipelineState{Job: job}
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for _, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %s failed: %w", step.Name(), err)
		}
	}
	return nil
}

// Deps are the collaborators of the standard ingestion pipeline.
// Categorizer is only used when Direct is set.
type Deps struct {
	Blobs       BlobFetcher
	Store       TransactionStore
	Categorizer Categorizer
	Direct      bool
}

// NewIngestionPipeline assembles fetch, parse and save, plus categorize
// when the deps ask for direct categorization. In stream mode the change
// feed drives categorization instead.
func NewIngestionPipeline(d Deps) *Pipeline {
	steps := []PipelineStep{
		&FetchBlobStep{Blobs: d.Blobs},
		&ParseStep{},
		&SaveStep{Store: d.Store},
	}
	if d.Direct && d.Categorizer != nil {
		steps = append(steps, &CategorizeStep{Store: d.Store, Categorizer: d.Categorizer})
	}
	return NewPipeline(steps...)
}

// NewLocalPipeline parses and saves a buffer already in memory, skipping
// the blob fetch.
func NewLocalPipeline(store TransactionStore, c Categorizer) *Pipeline {
	steps := []PipelineStep{&ParseStep{}, &SaveStep{Store: store}}
	if c != nil {
		steps = append(steps, &CategorizeStep{Store: store, Categorizer: c})
	}
	return NewPipeline(steps...)
}
