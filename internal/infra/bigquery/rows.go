package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// TransactionRow is the BigQuery shape of a transaction.
type TransactionRow struct {
	TenantID      string     `bigquery:"tenant_id"`      // REQUIRED
	TransactionID string     `bigquery:"transaction_id"` // REQUIRED
	UserID        string     `bigquery:"user_id"`        // REQUIRED
	Institution   string     `bigquery:"institution"`
	AccountType   string     `bigquery:"account_type"`
	Description   string     `bigquery:"description"`
	TxnDate       civil.Date `bigquery:"txn_date"` // REQUIRED

	Credit  float64              `bigquery:"credit"`
	Debit   float64              `bigquery:"debit"`
	Balance bigquery.NullFloat64 `bigquery:"balance"` // NULLABLE

	Category    string               `bigquery:"category"`
	SubCategory string               `bigquery:"sub_category"`
	TaggedBy    string               `bigquery:"tagged_by"`
	Reason      string               `bigquery:"reason"`
	Confidence  bigquery.NullFloat64 `bigquery:"confidence"` // NULLABLE
	Embedding   []float64            `bigquery:"embedding"`  // REPEATED FLOAT64

	CreatedAt time.Time              `bigquery:"created_at"` // REQUIRED
	UpdatedAt bigquery.NullTimestamp `bigquery:"updated_at"` // NULLABLE
	DeletedAt bigquery.NullTimestamp `bigquery:"deleted_at"` // NULLABLE
}

// RuleRow is the BigQuery shape of a rule. The pattern is kept as source
// and flags columns.
type RuleRow struct {
	TenantID      string               `bigquery:"tenant_id"`
	RuleID        string               `bigquery:"rule_id"`
	PatternSource string               `bigquery:"pattern_source"`
	PatternFlags  string               `bigquery:"pattern_flags"`
	Category      string               `bigquery:"category"`
	SubCategory   string               `bigquery:"sub_category"`
	Side          string               `bigquery:"side"`
	Reason        string               `bigquery:"reason"`
	Confidence    bigquery.NullFloat64 `bigquery:"confidence"`
	TaggedBy      string               `bigquery:"tagged_by"`
	CreatedAt     time.Time            `bigquery:"created_at"`
}

func nullFloat(f *float64) bigquery.NullFloat64 {
	if f == nil {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n bigquery.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullTime(t *time.Time) bigquery.NullTimestamp {
	if t == nil {
		return bigquery.NullTimestamp{}
	}
	return bigquery.NullTimestamp{Timestamp: t.UTC(), Valid: true}
}

func timePtr(n bigquery.NullTimestamp) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Timestamp.UTC()
	return &t
}

func toFloat64s(v []float32) []float64 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toFloat32s(v []float64) []float32 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// NewTransactionRow converts a transaction for storage.
func NewTransactionRow(t domain.Transaction) *TransactionRow {
	return &TransactionRow{
		TenantID:      t.TenantID,
		TransactionID: t.TransactionID,
		UserID:        t.UserID,
		Institution:   t.Institution,
		AccountType:   t.AccountType,
		Description:   t.Description,
		TxnDate:       t.TxnDate,
		Credit:        t.Credit,
		Debit:         t.Debit,
		Balance:       nullFloat(t.Balance),
		Category:      string(t.Category),
		SubCategory:   t.SubCategory,
		TaggedBy:      t.TaggedBy,
		Reason:        t.Reason,
		Confidence:    nullFloat(t.Confidence),
		Embedding:     toFloat64s(t.Embedding),
		CreatedAt:     t.CreatedAt.UTC(),
		UpdatedAt:     nullTime(t.UpdatedAt),
		DeletedAt:     nullTime(t.DeletedAt),
	}
}

// Transaction converts a stored row back to the domain type.
func (r *TransactionRow) Transaction() domain.Transaction {
	return domain.Transaction{
		TenantID:      r.TenantID,
		TransactionID: r.TransactionID,
		UserID:        r.UserID,
		Institution:   r.Institution,
		AccountType:   r.AccountType,
		Description:   r.Description,
		TxnDate:       r.TxnDate,
		Credit:        r.Credit,
		Debit:         r.Debit,
		Balance:       floatPtr(r.Balance),
		Category:      domain.BaseCategory(r.Category),
		SubCategory:   r.SubCategory,
		TaggedBy:      r.TaggedBy,
		Reason:        r.Reason,
		Confidence:    floatPtr(r.Confidence),
		Embedding:     toFloat32s(r.Embedding),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     timePtr(r.UpdatedAt),
		DeletedAt:     timePtr(r.DeletedAt),
	}
}

// NewRuleRow converts a rule for storage.
func NewRuleRow(r domain.Rule) *RuleRow {
	return &RuleRow{
		TenantID:      r.TenantID,
		RuleID:        r.RuleID,
		PatternSource: r.Pattern.Source,
		PatternFlags:  r.Pattern.Flags,
		Category:      string(r.Category),
		SubCategory:   r.SubCategory,
		Side:          string(r.Side),
		Reason:        r.Reason,
		Confidence:    nullFloat(r.Confidence),
		TaggedBy:      r.TaggedBy,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

// Rule converts a stored row back to the domain type.
func (r *RuleRow) Rule() domain.Rule {
	return domain.Rule{
		RuleID:      r.RuleID,
		TenantID:    r.TenantID,
		Pattern:     domain.Pattern{Source: r.PatternSource, Flags: r.PatternFlags},
		Category:    domain.BaseCategory(r.Category),
		SubCategory: r.SubCategory,
		Side:        domain.Side(r.Side),
		Reason:      r.Reason,
		Confidence:  floatPtr(r.Confidence),
		TaggedBy:    r.TaggedBy,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}
