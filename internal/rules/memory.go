package rules

import (
	"context"
	"sort"
	"sync"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// MemoryRepository is an in-memory Repository for tests and single-process
// runs. It is safe for concurrent use.
type MemoryRepository struct {
	mu    sync.RWMutex
	rules map[string]map[string]domain.Rule
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rules: make(map[string]map[string]domain.Rule)}
}

func (m *MemoryRepository) ListByTenant(_ context.Context, tenantID string) ([]domain.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Rule, 0, len(m.rules[tenantID]))
	for _, r := range m.rules[tenantID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out, nil
}

func (m *MemoryRepository) PutRules(_ context.Context, rules []domain.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range rules {
		tenant := m.rules[r.TenantID]
		if tenant == nil {
			tenant = make(map[string]domain.Rule)
			m.rules[r.TenantID] = tenant
		}
		if _, exists := tenant[r.RuleID]; exists {
			continue
		}
		tenant[r.RuleID] = r
	}
	return nil
}

func (m *MemoryRepository) DeleteRule(_ context.Context, tenantID, ruleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[tenantID][ruleID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.rules[tenantID], ruleID)
	return nil
}

func (m *MemoryRepository) DeletePatternExcept(_ context.Context, tenantID string, p domain.Pattern, keepRuleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	literal := domain.Pattern{Source: p.String()}
	for id, r := range m.rules[tenantID] {
		if id != keepRuleID && (r.Pattern == p || r.Pattern == literal) {
			delete(m.rules[tenantID], id)
		}
	}
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
