package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-ingest/internal/changefeed"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/txstore"
)

// TransactionRepository is a txstore.Repository. When emitChanges is set,
// every insert, category update and delete appends a change_feed row in the
// same SQL transaction. Leave it off when nothing consumes the feed, or the
// change_feed table only grows.
type TransactionRepository struct {
	d           *DB
	emitChanges bool
}

func NewTransactionRepository(d *DB, emitChanges bool) *TransactionRepository {
	return &TransactionRepository{d: d, emitChanges: emitChanges}
}

func (r *TransactionRepository) appendChange(ctx context.Context, tx *sql.Tx, event changefeed.EventName, t *domain.Transaction) error {
	if !r.emitChanges {
		return nil
	}
	return r.d.appendChange(ctx, tx, event, t)
}

const transactionColumns = `tenant_id, transaction_id, user_id, institution, account_type,
	description, txn_date, credit, debit, balance, category, sub_category, tagged_by,
	reason, confidence, embedding, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (*domain.Transaction, error) {
	var (
		t          domain.Transaction
		date       string
		category   string
		balance    sql.NullFloat64
		confidence sql.NullFloat64
		embedding  sql.NullString
		createdAt  int64
		updatedAt  sql.NullInt64
		deletedAt  sql.NullInt64
	)
	err := s.Scan(&t.TenantID, &t.TransactionID, &t.UserID, &t.Institution, &t.AccountType,
		&t.Description, &date, &t.Credit, &t.Debit, &balance, &category, &t.SubCategory, &t.TaggedBy,
		&t.Reason, &confidence, &embedding, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	d, err := civil.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: txn_date %q: %w", t.TransactionID, date, err)
	}
	t.TxnDate = d
	t.Category = domain.BaseCategory(category)
	t.Balance = floatPtr(balance)
	t.Confidence = floatPtr(confidence)
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &t.Embedding); err != nil {
			return nil, fmt.Errorf("transaction %s: embedding: %w", t.TransactionID, err)
		}
	}
	t.CreatedAt = fromNanos(createdAt)
	t.UpdatedAt = timePtr(updatedAt)
	t.DeletedAt = timePtr(deletedAt)
	return &t, nil
}

func encodeEmbedding(v []float32) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode embedding: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// Insert adds txn unless its key exists, in which case it returns
// domain.ErrDuplicate.
func (r *TransactionRepository) Insert(ctx context.Context, txn domain.Transaction) error {
	embedding, err := encodeEmbedding(txn.Embedding)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	return r.d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (`+transactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (tenant_id, transaction_id) DO NOTHING`,
			txn.TenantID, txn.TransactionID, txn.UserID, txn.Institution, txn.AccountType,
			txn.Description, txn.TxnDate.String(), txn.Credit, txn.Debit, nullFloat(txn.Balance),
			string(txn.Category), txn.SubCategory, txn.TaggedBy, txn.Reason, nullFloat(txn.Confidence),
			embedding, nanos(txn.CreatedAt), nullNanos(txn.UpdatedAt), nullNanos(txn.DeletedAt),
		)
		if err != nil {
			return fmt.Errorf("Insert: %s: %w", txn.TransactionID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("Insert: rows affected: %w", err)
		}
		if n == 0 {
			return domain.ErrDuplicate
		}
		return r.appendChange(ctx, tx, changefeed.EventInsert, &txn)
	})
}

func (r *TransactionRepository) get(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, tenantID, transactionID string) (*domain.Transaction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transactionColumns+`
		FROM transactions WHERE tenant_id = ? AND transaction_id = ?`, tenantID, transactionID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return t, err
}

// Get returns one transaction or domain.ErrNotFound.
func (r *TransactionRepository) Get(ctx context.Context, tenantID, transactionID string) (*domain.Transaction, error) {
	t, err := r.get(ctx, r.d.db, tenantID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) list(ctx context.Context, where string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.d.db.QueryContext(ctx, `SELECT `+transactionColumns+`
		FROM transactions WHERE `+where+` ORDER BY txn_date, transaction_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ListByUser returns every transaction of a user, deleted ones included.
func (r *TransactionRepository) ListByUser(ctx context.Context, tenantID, userID string) ([]domain.Transaction, error) {
	out, err := r.list(ctx, "tenant_id = ? AND user_id = ?", tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	return out, nil
}

// ListByDateRange returns transactions dated within [from, to].
func (r *TransactionRepository) ListByDateRange(ctx context.Context, tenantID string, from, to civil.Date) ([]domain.Transaction, error) {
	out, err := r.list(ctx, "tenant_id = ? AND txn_date BETWEEN ? AND ?", tenantID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("ListByDateRange: %w", err)
	}
	return out, nil
}

// UpdateCategory overwrites the categorization fields and updated_at.
func (r *TransactionRepository) UpdateCategory(ctx context.Context, tenantID, transactionID string, upd domain.CategoryUpdate, at time.Time) error {
	embedding, err := encodeEmbedding(upd.Embedding)
	if err != nil {
		return fmt.Errorf("UpdateCategory: %w", err)
	}

	return r.d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE transactions
			SET category = ?, sub_category = ?, tagged_by = ?, confidence = ?,
			    reason = ?, embedding = ?, updated_at = ?
			WHERE tenant_id = ? AND transaction_id = ?`,
			string(upd.Category), upd.SubCategory, upd.TaggedBy, nullFloat(upd.Confidence),
			upd.Reason, embedding, nanos(at), tenantID, transactionID,
		)
		if err != nil {
			return fmt.Errorf("UpdateCategory: %w", err)
		}
		if err := requireRow(res); err != nil {
			return fmt.Errorf("UpdateCategory: %w", err)
		}
		if !r.emitChanges {
			return nil
		}
		t, err := r.get(ctx, tx, tenantID, transactionID)
		if err != nil {
			return fmt.Errorf("UpdateCategory: reload: %w", err)
		}
		return r.appendChange(ctx, tx, changefeed.EventModify, t)
	})
}

// SoftDelete sets deleted_at and, when emitting changes, a REMOVE event.
func (r *TransactionRepository) SoftDelete(ctx context.Context, tenantID, transactionID string, at time.Time) error {
	return r.d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE transactions SET deleted_at = ?, updated_at = ?
			WHERE tenant_id = ? AND transaction_id = ?`,
			nanos(at), nanos(at), tenantID, transactionID,
		)
		if err != nil {
			return fmt.Errorf("SoftDelete: %w", err)
		}
		if err := requireRow(res); err != nil {
			return fmt.Errorf("SoftDelete: %w", err)
		}
		return r.appendChange(ctx, tx, changefeed.EventRemove, &domain.Transaction{
			TenantID:      tenantID,
			TransactionID: transactionID,
		})
	})
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ txstore.Repository = (*TransactionRepository)(nil)
