package pipeline

import (
	"context"

	"github.com/dvloznov/ledger-ingest/internal/categorize"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/txstore"
)

// BlobFetcher fetches statement files.
type BlobFetcher interface {
	GetBlob(ctx context.Context, key string) ([]byte, error)
}

// TransactionStore persists parsed transactions idempotently and reads
// them back.
type TransactionStore interface {
	SaveTransactions(ctx context.Context, tenantID string, txns []domain.Transaction) (txstore.SaveSummary, error)
	GetTransaction(ctx context.Context, tenantID, transactionID string) (*domain.Transaction, error)
}

// Categorizer categorizes one stored transaction.
type Categorizer interface {
	Categorize(ctx context.Context, req categorize.Request) (bool, error)
}
