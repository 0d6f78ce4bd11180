package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-ingest/internal/categorize"
	"github.com/dvloznov/ledger-ingest/internal/logger"
	"github.com/dvloznov/ledger-ingest/internal/parser"
)

// FetchBlobStep downloads the statement file named by the job.
type FetchBlobStep struct {
	Blobs BlobFetcher
}

func (s *FetchBlobStep) Name() string { return "fetch" }

func (s *FetchBlobStep) Execute(ctx context.Context, state *PipelineState) error {
	data, err := s.Blobs.GetBlob(ctx, state.Job.BlobKey)
	if err != nil {
		return fmt.Errorf("FetchBlobStep: %w", err)
	}
	state.Data = data
	return nil
}

// ParseStep selects the parser for the job's bank, detecting the format when
// none is given, and parses the fetched bytes.
type ParseStep struct{}

func (s *ParseStep) Name() string { return "parse" }

func (s *ParseStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	format, err := resolveFormat(state.Job.Bank, state.Data)
	if err != nil {
		return fmt.Errorf("ParseStep: %w", err)
	}
	p, err := parser.New(format)
	if err != nil {
		return fmt.Errorf("ParseStep: %w", err)
	}

	res, err := p.ParseWithStats(state.Data, state.Job.UserID)
	if err != nil {
		return fmt.Errorf("ParseStep: %w", err)
	}

	if len(res.SkippedLines) > 0 {
		log.Debug().Ints("lines", res.SkippedLines).Msg("skipped unparseable rows")
	}
	log.Info().
		Str("format", string(format)).
		Int("parsed", len(res.Transactions)).
		Int("skipped", res.Skipped).
		Msg("statement parsed")

	state.Format = format
	state.Result = res
	state.Transactions = res.Transactions
	return nil
}

func resolveFormat(bank string, data []byte) (parser.Format, error) {
	if strings.TrimSpace(bank) == "" {
		return parser.Detect(data)
	}
	return parser.ParseFormat(bank)
}

// SaveStep stamps job ownership on the parsed transactions and saves them.
type SaveStep struct {
	Store TransactionStore
}

func (s *SaveStep) Name() string { return "save" }

func (s *SaveStep) Execute(ctx context.Context, state *PipelineState) error {
	for i := range state.Transactions {
		state.Transactions[i].TenantID = state.Job.TenantID
		if state.Job.AccountType != "" {
			state.Transactions[i].AccountType = state.Job.AccountType
		}
	}

	summary, err := s.Store.SaveTransactions(ctx, state.Job.TenantID, state.Transactions)
	if err != nil {
		return fmt.Errorf("SaveStep: %w", err)
	}
	state.Summary = summary
	return nil
}

// CategorizeStep categorizes every saved transaction in-process. It reads
// the stored record first so a re-ingested file never overrides an
// existing category.
type CategorizeStep struct {
	Store       TransactionStore
	Categorizer Categorizer
}

func (s *CategorizeStep) Name() string { return "categorize" }

func (s *CategorizeStep) Execute(ctx context.Context, state *PipelineState) error {
	for _, parsed := range state.Transactions {
		txn, err := s.Store.GetTransaction(ctx, state.Job.TenantID, parsed.TransactionID)
		if err != nil {
			return fmt.Errorf("CategorizeStep: %w", err)
		}
		ok, err := s.Categorizer.Categorize(ctx, categorize.RequestFor(*txn))
		if err != nil {
			return fmt.Errorf("CategorizeStep: %s: %w", txn.TransactionID, err)
		}
		if ok {
			state.Categorized++
		}
	}
	return nil
}
