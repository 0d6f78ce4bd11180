package txstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// MemoryRepository is an in-memory Repository for tests and dry runs.
type MemoryRepository struct {
	mu   sync.RWMutex
	txns map[string]map[string]domain.Transaction
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{txns: make(map[string]map[string]domain.Transaction)}
}

func (m *MemoryRepository) Insert(_ context.Context, txn domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tenant := m.txns[txn.TenantID]
	if tenant == nil {
		tenant = make(map[string]domain.Transaction)
		m.txns[txn.TenantID] = tenant
	}
	if _, exists := tenant[txn.TransactionID]; exists {
		return domain.ErrDuplicate
	}
	tenant[txn.TransactionID] = txn
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, tenantID, transactionID string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txn, ok := m.txns[tenantID][transactionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &txn, nil
}

func (m *MemoryRepository) ListByUser(_ context.Context, tenantID, userID string) ([]domain.Transaction, error) {
	return m.filter(tenantID, func(t domain.Transaction) bool { return t.UserID == userID }), nil
}

func (m *MemoryRepository) ListByDateRange(_ context.Context, tenantID string, from, to civil.Date) ([]domain.Transaction, error) {
	return m.filter(tenantID, func(t domain.Transaction) bool {
		return !t.TxnDate.Before(from) && !t.TxnDate.After(to)
	}), nil
}

func (m *MemoryRepository) filter(tenantID string, keep func(domain.Transaction) bool) []domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Transaction
	for _, t := range m.txns[tenantID] {
		if keep(t) {
			out = append(out, t)
		}
	}
	SortTransactions(out)
	return out
}

func (m *MemoryRepository) UpdateCategory(_ context.Context, tenantID, transactionID string, upd domain.CategoryUpdate, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.txns[tenantID][transactionID]
	if !ok {
		return domain.ErrNotFound
	}
	txn.Category = upd.Category
	txn.SubCategory = upd.SubCategory
	txn.TaggedBy = upd.TaggedBy
	txn.Confidence = upd.Confidence
	txn.Reason = upd.Reason
	txn.Embedding = upd.Embedding
	txn.UpdatedAt = &at
	m.txns[tenantID][transactionID] = txn
	return nil
}

func (m *MemoryRepository) SoftDelete(_ context.Context, tenantID, transactionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.txns[tenantID][transactionID]
	if !ok {
		return domain.ErrNotFound
	}
	txn.DeletedAt = &at
	txn.UpdatedAt = &at
	m.txns[tenantID][transactionID] = txn
	return nil
}

// SortTransactions orders transactions by date, then transaction ID.
func SortTransactions(txns []domain.Transaction) {
	sort.Slice(txns, func(i, j int) bool {
		if txns[i].TxnDate != txns[j].TxnDate {
			return txns[i].TxnDate.Before(txns[j].TxnDate)
		}
		return txns[i].TransactionID < txns[j].TransactionID
	})
}

var _ Repository = (*MemoryRepository)(nil)
