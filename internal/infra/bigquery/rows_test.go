package bigquery

import (
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

func TestTransactionRowRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	txn := domain.Transaction{
		TenantID:      "t1",
		UserID:        "u1",
		TransactionID: "u1#20240301#0",
		Institution:   "HDFC",
		AccountType:   "savings",
		Description:   "NEFT SALARY ACME",
		TxnDate:       civil.Date{Year: 2024, Month: 3, Day: 1},
		Credit:        50000,
		Balance:       domain.Float64(61000.5),
		Category:      "INCOME",
		SubCategory:   "Salary",
		TaggedBy:      "RULE_ENGINE",
		Confidence:    domain.Float64(0.9),
		Embedding:     []float32{0.25, -0.5},
		CreatedAt:     created,
		UpdatedAt:     &updated,
	}

	row := NewTransactionRow(txn)
	assert.True(t, row.Balance.Valid)
	assert.Equal(t, 61000.5, row.Balance.Float64)
	assert.Equal(t, []float64{0.25, -0.5}, row.Embedding)
	assert.False(t, row.DeletedAt.Valid)

	got := row.Transaction()
	assert.Equal(t, txn, got)
}

func TestTransactionRowNulls(t *testing.T) {
	row := NewTransactionRow(domain.Transaction{
		TenantID:      "t1",
		TransactionID: "x",
		TxnDate:       civil.Date{Year: 2024, Month: 1, Day: 1},
		Debit:         10,
	})
	assert.False(t, row.Balance.Valid)
	assert.False(t, row.Confidence.Valid)
	assert.Nil(t, row.Embedding)

	got := row.Transaction()
	assert.Nil(t, got.Balance)
	assert.Nil(t, got.Confidence)
	assert.Nil(t, got.Embedding)
	assert.Nil(t, got.UpdatedAt)
	assert.Nil(t, got.DeletedAt)
}

func TestRuleRowRoundTrip(t *testing.T) {
	rule := domain.Rule{
		RuleID:      "r1",
		TenantID:    "GLOBAL",
		Pattern:     domain.Pattern{Source: `\bzomato\b`, Flags: "i"},
		Category:    "FOOD",
		SubCategory: "Delivery",
		Side:        domain.SideDebit,
		TaggedBy:    "SYSTEM",
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	row := NewRuleRow(rule)
	assert.Equal(t, `\bzomato\b`, row.PatternSource)
	assert.Equal(t, "i", row.PatternFlags)
	assert.False(t, row.Confidence.Valid)
	assert.Equal(t, rule, row.Rule())
}

func TestInsertStatements(t *testing.T) {
	table := tableRef("proj", "ledger", transactionsTable)
	assert.Equal(t, "`proj.ledger.transactions`", table)

	sql := insertTransactionSQL(table)
	assert.True(t, strings.HasPrefix(sql, "MERGE `proj.ledger.transactions` T"))
	assert.Contains(t, sql, "WHEN NOT MATCHED THEN")
	assert.NotContains(t, sql, "WHEN MATCHED")

	params := transactionParams(NewTransactionRow(domain.Transaction{TenantID: "t1", TransactionID: "x"}))
	names := make(map[string]bool, len(params))
	for _, p := range params {
		names[p.Name] = true
	}
	for _, col := range strings.Split(transactionColumns, ",") {
		col = strings.TrimSpace(col)
		require.True(t, names[col], "missing parameter %s", col)
		assert.Contains(t, sql, "@"+col)
	}

	for _, p := range params {
		if p.Name == "embedding" {
			assert.Equal(t, []float64{}, p.Value)
		}
	}

	ruleSQL := insertRuleSQL(tableRef("proj", "ledger", rulesTable))
	ruleParamsByName := make(map[string]bool)
	for _, p := range ruleParams(NewRuleRow(domain.Rule{RuleID: "r1"})) {
		ruleParamsByName[p.Name] = true
	}
	for _, col := range strings.Split(ruleColumns, ",") {
		col = strings.TrimSpace(col)
		assert.True(t, ruleParamsByName[col], "missing parameter %s", col)
		assert.Contains(t, ruleSQL, "@"+col)
	}
}
