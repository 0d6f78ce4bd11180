package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/txstore"
)

const transactionColumns = `tenant_id, transaction_id, user_id, institution, account_type, description, txn_date,
	credit, debit, balance, category, sub_category, tagged_by, reason, confidence, embedding,
	created_at, updated_at, deleted_at`

// TransactionRepository is a txstore.Repository backed by the transactions
// table. BigQuery has no conditional put, so Insert is a MERGE whose
// affected row count tells a new row from a duplicate.
type TransactionRepository struct {
	c *Client
}

func NewTransactionRepository(c *Client) *TransactionRepository {
	return &TransactionRepository{c: c}
}

func insertTransactionSQL(table string) string {
	return `MERGE ` + table + ` T
USING (SELECT @tenant_id AS tenant_id, @transaction_id AS transaction_id) S
ON T.tenant_id = S.tenant_id AND T.transaction_id = S.transaction_id
WHEN NOT MATCHED THEN
  INSERT (` + transactionColumns + `)
  VALUES (@tenant_id, @transaction_id, @user_id, @institution, @account_type, @description, @txn_date,
	@credit, @debit, @balance, @category, @sub_category, @tagged_by, @reason, @confidence, @embedding,
	@created_at, @updated_at, @deleted_at)`
}

// transactionParams binds every column of row as a named parameter.
func transactionParams(row *TransactionRow) []bigquery.QueryParameter {
	embedding := row.Embedding
	if embedding == nil {
		embedding = []float64{}
	}
	return []bigquery.QueryParameter{
		{Name: "tenant_id", Value: row.TenantID},
		{Name: "transaction_id", Value: row.TransactionID},
		{Name: "user_id", Value: row.UserID},
		{Name: "institution", Value: row.Institution},
		{Name: "account_type", Value: row.AccountType},
		{Name: "description", Value: row.Description},
		{Name: "txn_date", Value: row.TxnDate},
		{Name: "credit", Value: row.Credit},
		{Name: "debit", Value: row.Debit},
		{Name: "balance", Value: row.Balance},
		{Name: "category", Value: row.Category},
		{Name: "sub_category", Value: row.SubCategory},
		{Name: "tagged_by", Value: row.TaggedBy},
		{Name: "reason", Value: row.Reason},
		{Name: "confidence", Value: row.Confidence},
		{Name: "embedding", Value: embedding},
		{Name: "created_at", Value: row.CreatedAt},
		{Name: "updated_at", Value: row.UpdatedAt},
		{Name: "deleted_at", Value: row.DeletedAt},
	}
}

func (r *TransactionRepository) Insert(ctx context.Context, txn domain.Transaction) error {
	row := NewTransactionRow(txn)
	n, err := r.c.exec(ctx, insertTransactionSQL(r.c.table(transactionsTable)), transactionParams(row))
	if err != nil {
		return fmt.Errorf("Insert: %s: %w", txn.TransactionID, err)
	}
	if n == 0 {
		return fmt.Errorf("Insert: %s: %w", txn.TransactionID, domain.ErrDuplicate)
	}
	return nil
}

func (r *TransactionRepository) Get(ctx context.Context, tenantID, transactionID string) (*domain.Transaction, error) {
	sql := `SELECT ` + transactionColumns + ` FROM ` + r.c.table(transactionsTable) + `
WHERE tenant_id = @tenant_id AND transaction_id = @transaction_id
LIMIT 1`
	rows, err := readAll[TransactionRow](ctx, r.c, sql, []bigquery.QueryParameter{
		{Name: "tenant_id", Value: tenantID},
		{Name: "transaction_id", Value: transactionID},
	})
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("Get: %s: %w", transactionID, domain.ErrNotFound)
	}
	t := rows[0].Transaction()
	return &t, nil
}

func (r *TransactionRepository) list(ctx context.Context, where string, params []bigquery.QueryParameter) ([]domain.Transaction, error) {
	sql := `SELECT ` + transactionColumns + ` FROM ` + r.c.table(transactionsTable) + `
WHERE ` + where + `
ORDER BY txn_date, transaction_id`
	rows, err := readAll[TransactionRow](ctx, r.c, sql, params)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Transaction())
	}
	return out, nil
}

// ListByUser returns every transaction of a user, deleted ones included.
func (r *TransactionRepository) ListByUser(ctx context.Context, tenantID, userID string) ([]domain.Transaction, error) {
	out, err := r.list(ctx, "tenant_id = @tenant_id AND user_id = @user_id", []bigquery.QueryParameter{
		{Name: "tenant_id", Value: tenantID},
		{Name: "user_id", Value: userID},
	})
	if err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	return out, nil
}

// ListByDateRange returns transactions dated within [from, to].
func (r *TransactionRepository) ListByDateRange(ctx context.Context, tenantID string, from, to civil.Date) ([]domain.Transaction, error) {
	out, err := r.list(ctx, "tenant_id = @tenant_id AND txn_date BETWEEN @from AND @to", []bigquery.QueryParameter{
		{Name: "tenant_id", Value: tenantID},
		{Name: "from", Value: from},
		{Name: "to", Value: to},
	})
	if err != nil {
		return nil, fmt.Errorf("ListByDateRange: %w", err)
	}
	return out, nil
}

// UpdateCategory overwrites the categorization fields and updated_at.
func (r *TransactionRepository) UpdateCategory(ctx context.Context, tenantID, transactionID string, upd domain.CategoryUpdate, at time.Time) error {
	embedding := toFloat64s(upd.Embedding)
	if embedding == nil {
		embedding = []float64{}
	}
	sql := `UPDATE ` + r.c.table(transactionsTable) + `
SET category = @category, sub_category = @sub_category, tagged_by = @tagged_by,
	confidence = @confidence, reason = @reason, embedding = @embedding, updated_at = @updated_at
WHERE tenant_id = @tenant_id AND transaction_id = @transaction_id`

	n, err := r.c.exec(ctx, sql, []bigquery.QueryParameter{
		{Name: "category", Value: string(upd.Category)},
		{Name: "sub_category", Value: upd.SubCategory},
		{Name: "tagged_by", Value: upd.TaggedBy},
		{Name: "confidence", Value: nullFloat(upd.Confidence)},
		{Name: "reason", Value: upd.Reason},
		{Name: "embedding", Value: embedding},
		{Name: "updated_at", Value: at.UTC()},
		{Name: "tenant_id", Value: tenantID},
		{Name: "transaction_id", Value: transactionID},
	})
	if err != nil {
		return fmt.Errorf("UpdateCategory: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("UpdateCategory: %s: %w", transactionID, domain.ErrNotFound)
	}
	return nil
}

// SoftDelete sets deleted_at and updated_at.
func (r *TransactionRepository) SoftDelete(ctx context.Context, tenantID, transactionID string, at time.Time) error {
	sql := `UPDATE ` + r.c.table(transactionsTable) + `
SET deleted_at = @at, updated_at = @at
WHERE tenant_id = @tenant_id AND transaction_id = @transaction_id`

	n, err := r.c.exec(ctx, sql, []bigquery.QueryParameter{
		{Name: "at", Value: at.UTC()},
		{Name: "tenant_id", Value: tenantID},
		{Name: "transaction_id", Value: transactionID},
	})
	if err != nil {
		return fmt.Errorf("SoftDelete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("SoftDelete: %s: %w", transactionID, domain.ErrNotFound)
	}
	return nil
}

var _ txstore.Repository = (*TransactionRepository)(nil)
