// Package txstore persists canonical transactions idempotently, keyed by
// tenant and transaction ID.
package txstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// DefaultChunkSize is the number of concurrent writes per SaveTransactions
// chunk.
const DefaultChunkSize = 25

// Repository is the persistence port. Insert is a conditional put that
// returns domain.ErrDuplicate when the key exists; Get, UpdateCategory and
// SoftDelete return domain.ErrNotFound for unknown keys.
type Repository interface {
	Insert(ctx context.Context, txn domain.Transaction) error
	Get(ctx context.Context, tenantID, transactionID string) (*domain.Transaction, error)
	ListByUser(ctx context.Context, tenantID, userID string) ([]domain.Transaction, error)
	ListByDateRange(ctx context.Context, tenantID string, from, to civil.Date) ([]domain.Transaction, error)
	UpdateCategory(ctx context.Context, tenantID, transactionID string, upd domain.CategoryUpdate, at time.Time) error
	SoftDelete(ctx context.Context, tenantID, transactionID string, at time.Time) error
}

// SaveSummary reports the outcome of a batch save.
type SaveSummary struct {
	Inserted   int
	Duplicates int
}

// Store is the transaction service.
type Store struct {
	repo      Repository
	log       zerolog.Logger
	chunkSize int
	now       func() time.Time
}

// NewStore creates a Store; chunkSize defaults to DefaultChunkSize when zero.
func NewStore(repo Repository, log zerolog.Logger, chunkSize int) *Store {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Store{repo: repo, log: log, chunkSize: chunkSize, now: time.Now}
}

// SaveTransaction stores txn under tenantID. A transaction that already
// exists is not an error: it is logged and reported as not inserted.
func (s *Store) SaveTransaction(ctx context.Context, tenantID string, txn domain.Transaction) (bool, error) {
	txn.TenantID = tenantID
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = s.now().UTC()
	}
	if err := txn.Validate(); err != nil {
		return false, fmt.Errorf("SaveTransaction: %w", err)
	}

	err := s.repo.Insert(ctx, txn)
	switch {
	case errors.Is(err, domain.ErrDuplicate):
		s.log.Warn().
			Str("tenant_id", tenantID).
			Str("transaction_id", txn.TransactionID).
			Msg("duplicate transaction ignored")
		return false, nil
	case err != nil:
		return false, fmt.Errorf("SaveTransaction: insert %s: %w", txn.TransactionID, err)
	}
	return true, nil
}

// SaveTransactions stores txns in chunks. Writes inside a chunk run
// concurrently; chunks run one after another. The first failing chunk stops
// the batch.
func (s *Store) SaveTransactions(ctx context.Context, tenantID string, txns []domain.Transaction) (SaveSummary, error) {
	var inserted, duplicates atomic.Int64

	for start := 0; start < len(txns); start += s.chunkSize {
		chunk := txns[start:min(start+s.chunkSize, len(txns))]

		g, gctx := errgroup.WithContext(ctx)
		for _, txn := range chunk {
			g.Go(func() error {
				ok, err := s.SaveTransaction(gctx, tenantID, txn)
				if err != nil {
					return err
				}
				if ok {
					inserted.Add(1)
				} else {
					duplicates.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return SaveSummary{Inserted: int(inserted.Load()), Duplicates: int(duplicates.Load())},
				fmt.Errorf("SaveTransactions: chunk at %d: %w", start, err)
		}
	}

	summary := SaveSummary{Inserted: int(inserted.Load()), Duplicates: int(duplicates.Load())}
	s.log.Info().
		Str("tenant_id", tenantID).
		Int("inserted", summary.Inserted).
		Int("duplicates", summary.Duplicates).
		Msg("transactions saved")
	return summary, nil
}

// GetTransaction returns one transaction.
func (s *Store) GetTransaction(ctx context.Context, tenantID, transactionID string) (*domain.Transaction, error) {
	txn, err := s.repo.Get(ctx, tenantID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %s/%s: %w", tenantID, transactionID, err)
	}
	return txn, nil
}

// GetUserTransactions returns every transaction of a user, soft-deleted
// ones included, ordered by date then ID.
func (s *Store) GetUserTransactions(ctx context.Context, tenantID, userID string) ([]domain.Transaction, error) {
	txns, err := s.repo.ListByUser(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("GetUserTransactions: %w", err)
	}
	return txns, nil
}

// GetTransactionsByDateRange returns the tenant's live transactions dated
// within [from, to].
func (s *Store) GetTransactionsByDateRange(ctx context.Context, tenantID string, from, to civil.Date) ([]domain.Transaction, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("GetTransactionsByDateRange: range end %s before start %s", to, from)
	}
	txns, err := s.repo.ListByDateRange(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("GetTransactionsByDateRange: %w", err)
	}
	live := txns[:0]
	for _, t := range txns {
		if !t.IsDeleted() {
			live = append(live, t)
		}
	}
	return live, nil
}

// UpdateTransactionCategory overwrites the categorization fields of one
// transaction and stamps updatedAt. Nothing else is touched.
func (s *Store) UpdateTransactionCategory(ctx context.Context, tenantID, transactionID string, upd domain.CategoryUpdate) error {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(transactionID) == "" {
		return fmt.Errorf("UpdateTransactionCategory: %w: tenant and transaction id are required", domain.ErrInvalidTransaction)
	}
	if err := s.repo.UpdateCategory(ctx, tenantID, transactionID, upd, s.now().UTC()); err != nil {
		return fmt.Errorf("UpdateTransactionCategory: %s/%s: %w", tenantID, transactionID, err)
	}
	return nil
}

// DeleteTransaction soft-deletes a transaction by setting deletedAt.
func (s *Store) DeleteTransaction(ctx context.Context, tenantID, transactionID string) error {
	if err := s.repo.SoftDelete(ctx, tenantID, transactionID, s.now().UTC()); err != nil {
		return fmt.Errorf("DeleteTransaction: %s/%s: %w", tenantID, transactionID, err)
	}
	return nil
}
