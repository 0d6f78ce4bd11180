package categorize

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/rules"
	"github.com/dvloznov/ledger-ingest/internal/txstore"
)

type fakeAI struct {
	result    *domain.ClassificationResult
	embedding []float32
	calls     int
}

func (f *fakeAI) Classify(_ context.Context, _ string) *domain.ClassificationResult {
	f.calls++
	if f.result == nil {
		return nil
	}
	r := *f.result
	return &r
}

func (f *fakeAI) Embed(_ context.Context, _ string) []float32 {
	return f.embedding
}

type failingRules struct{}

func (failingRules) GetRulesByTenant(context.Context, string) ([]rules.Compiled, error) {
	return nil, errors.New("rules unavailable")
}

type fixture struct {
	ruleStore *rules.Store
	txns      *txstore.Store
	ai        *fakeAI
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	rs := rules.NewStore(rules.NewMemoryRepository(), zerolog.Nop(), domain.GlobalTenant, 0)
	_, err := rs.SeedDefaults(ctx)
	require.NoError(t, err)

	ts := txstore.NewStore(txstore.NewMemoryRepository(), zerolog.Nop(), 0)
	return &fixture{ruleStore: rs, txns: ts, ai: &fakeAI{}}
}

func (f *fixture) save(t *testing.T, id, desc string, credit, debit float64) Request {
	t.Helper()
	txn := domain.Transaction{
		UserID:        "u1",
		TransactionID: id,
		Institution:   "HDFC",
		Description:   desc,
		TxnDate:       civil.Date{Year: 2025, Month: time.August, Day: 1},
		Credit:        credit,
		Debit:         debit,
	}
	_, err := f.txns.SaveTransaction(context.Background(), "t1", txn)
	require.NoError(t, err)
	txn.TenantID = "t1"
	return RequestFor(txn)
}

func (f *fixture) stored(t *testing.T, id string) *domain.Transaction {
	t.Helper()
	txn, err := f.txns.GetTransaction(context.Background(), "t1", id)
	require.NoError(t, err)
	return txn
}

func TestOrchestrator_RuleMatch(t *testing.T) {
	f := newFixture(t)
	o := NewOrchestrator(f.ruleStore, f.ai, f.txns, zerolog.Nop(), Options{AIEnabled: true})

	req := f.save(t, "id-1", "Salary credited via ACH", 1000, 0)
	ok, err := o.Categorize(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, ok)

	got := f.stored(t, "id-1")
	assert.Equal(t, domain.CategoryIncome, got.Category)
	assert.Equal(t, domain.SubSalary, got.SubCategory)
	assert.Equal(t, domain.TaggedByRuleEngine, got.TaggedBy)
	require.NotNil(t, got.Confidence)
	assert.Greater(t, *got.Confidence, 0.0)
	assert.Zero(t, f.ai.calls)
}

func TestOrchestrator_Skips(t *testing.T) {
	f := newFixture(t)
	o := NewOrchestrator(f.ruleStore, f.ai, f.txns, zerolog.Nop(), Options{})
	req := f.save(t, "id-1", "Salary credited via ACH", 1000, 0)

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"missing tenant", func(r *Request) { r.TenantID = "" }},
		{"missing transaction id", func(r *Request) { r.TransactionID = " " }},
		{"missing description", func(r *Request) { r.Description = "" }},
		{"already categorized", func(r *Request) { r.Category = domain.CategoryExpenses }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := req
			tt.mutate(&r)
			ok, err := o.Categorize(context.Background(), r)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
	assert.Empty(t, f.stored(t, "id-1").Category)
}

func TestOrchestrator_AIFallback(t *testing.T) {
	tests := []struct {
		name           string
		enabled        bool
		result         *domain.ClassificationResult
		minConfidence  float64
		wantCategory   domain.BaseCategory
		wantSub        string
		wantTaggedBy   string
		wantConfidence float64
		wantReason     string
	}{
		{
			name:           "ai disabled",
			enabled:        false,
			result:         &domain.ClassificationResult{Category: domain.CategoryExpenses, Confidence: 0.9},
			minConfidence:  0.5,
			wantCategory:   domain.CategoryUnclassified,
			wantConfidence: 0,
			wantReason:     domain.ReasonNoRuleMatched,
		},
		{
			name:           "ai no opinion",
			enabled:        true,
			result:         nil,
			minConfidence:  0.5,
			wantCategory:   domain.CategoryUnclassified,
			wantConfidence: 0,
			wantReason:     domain.ReasonNoRuleMatched,
		},
		{
			name:           "ai accepted",
			enabled:        true,
			result:         &domain.ClassificationResult{Category: domain.CategoryExpenses, SubCategory: domain.SubEntertainment, Confidence: 0.8, Reason: "movie"},
			minConfidence:  0.5,
			wantCategory:   domain.CategoryExpenses,
			wantSub:        domain.SubEntertainment,
			wantTaggedBy:   domain.TaggedByAI,
			wantConfidence: 0.8,
			wantReason:     "movie",
		},
		{
			name:           "ai defaults",
			enabled:        true,
			result:         &domain.ClassificationResult{Category: domain.CategoryExpenses},
			minConfidence:  0.5,
			wantCategory:   domain.CategoryExpenses,
			wantTaggedBy:   domain.TaggedByAI,
			wantConfidence: AIFallbackConfidence,
			wantReason:     AIFallbackReason,
		},
		{
			name:           "gate is inclusive",
			enabled:        true,
			result:         &domain.ClassificationResult{Category: domain.CategoryExpenses, Confidence: 0.5},
			minConfidence:  0.5,
			wantCategory:   domain.CategoryExpenses,
			wantTaggedBy:   domain.TaggedByAI,
			wantConfidence: 0.5,
			wantReason:     AIFallbackReason,
		},
		{
			name:           "explicit zero confidence is gated",
			enabled:        true,
			result:         &domain.ClassificationResult{Category: domain.CategoryExpenses, ConfidenceSet: true},
			minConfidence:  0.5,
			wantCategory:   domain.CategoryUnclassified,
			wantConfidence: 0,
			wantReason:     domain.ReasonNoRuleMatched,
		},
		{
			name:           "below gate",
			enabled:        true,
			result:         &domain.ClassificationResult{Category: domain.CategoryExpenses, Confidence: 0.4},
			minConfidence:  0.5,
			wantCategory:   domain.CategoryUnclassified,
			wantConfidence: 0,
			wantReason:     domain.ReasonNoRuleMatched,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ai.result = tt.result
			o := NewOrchestrator(f.ruleStore, f.ai, f.txns, zerolog.Nop(), Options{
				AIEnabled:     tt.enabled,
				MinConfidence: tt.minConfidence,
			})

			req := f.save(t, "id-1", "No rule applies here", 0, 120)
			ok, err := o.Categorize(context.Background(), req)
			require.NoError(t, err)
			assert.True(t, ok)

			got := f.stored(t, "id-1")
			assert.Equal(t, tt.wantCategory, got.Category)
			assert.Equal(t, tt.wantSub, got.SubCategory)
			assert.Equal(t, tt.wantTaggedBy, got.TaggedBy)
			assert.Equal(t, tt.wantReason, got.Reason)
			require.NotNil(t, got.Confidence)
			assert.InDelta(t, tt.wantConfidence, *got.Confidence, 1e-9)
		})
	}
}

func TestOrchestrator_CustomTaggerAndEmbedding(t *testing.T) {
	f := newFixture(t)
	f.ai.result = &domain.ClassificationResult{Category: domain.CategoryExpenses, Confidence: 0.9}
	f.ai.embedding = []float32{0.1, 0.2}
	o := NewOrchestrator(f.ruleStore, f.ai, f.txns, zerolog.Nop(), Options{
		AIEnabled:  true,
		Tagger:     "GEMINI",
		Embeddings: true,
	})

	req := f.save(t, "id-1", "No rule applies here", 0, 10)
	_, err := o.Categorize(context.Background(), req)
	require.NoError(t, err)

	got := f.stored(t, "id-1")
	assert.Equal(t, "GEMINI", got.TaggedBy)
	assert.Equal(t, []float32{0.1, 0.2}, got.Embedding)
}

func TestOrchestrator_Errors(t *testing.T) {
	f := newFixture(t)

	o := NewOrchestrator(failingRules{}, nil, f.txns, zerolog.Nop(), Options{})
	req := f.save(t, "id-1", "Salary credited via ACH", 1000, 0)
	_, err := o.Categorize(context.Background(), req)
	assert.Error(t, err)

	o = NewOrchestrator(f.ruleStore, nil, f.txns, zerolog.Nop(), Options{AIEnabled: true})
	req.TransactionID = "missing"
	_, err = o.Categorize(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrchestrator_Reclassify(t *testing.T) {
	f := newFixture(t)
	o := NewOrchestrator(f.ruleStore, f.ai, f.txns, zerolog.Nop(), Options{})
	ctx := context.Background()

	req := f.save(t, "id-1", "Salary credited via ACH", 1000, 0)
	_, err := o.Categorize(ctx, req)
	require.NoError(t, err)

	upd, err := o.Reclassify(ctx, "t1", "id-1", "investment", "real estate", "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.SubRealEstate, upd.SubCategory)

	got := f.stored(t, "id-1")
	assert.Equal(t, domain.CategoryInvestment, got.Category)
	assert.Equal(t, domain.SubRealEstate, got.SubCategory)
	assert.Equal(t, "user@example.com", got.TaggedBy)
	assert.Equal(t, ManualConfidence, *got.Confidence)

	// The pipeline never overrides a manual choice.
	ok, err := o.Categorize(ctx, RequestFor(*got))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = o.Reclassify(ctx, "t1", "id-1", "LUXURY", "", "user")
	assert.Error(t, err)
	_, err = o.Reclassify(ctx, "t1", "id-1", "INCOME", "FOOD", "user")
	assert.Error(t, err)
	_, err = o.Reclassify(ctx, "t1", "id-1", "INCOME", "", "")
	assert.Error(t, err)
}
