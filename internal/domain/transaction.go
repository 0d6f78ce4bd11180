package domain

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Transaction is the canonical, institution-agnostic record produced by a
// statement parser and owned by the transaction store afterwards.
//
// Exactly one of Credit/Debit is non-zero for a real movement. Category
// related fields are only written by the categorization orchestrator or by
// an explicit reclassification.
type Transaction struct {
	TenantID      string     `json:"tenant_id"`
	UserID        string     `json:"user_id"`
	TransactionID string     `json:"transaction_id"`
	Institution   string     `json:"institution"`
	AccountType   string     `json:"account_type,omitempty"`
	Description   string     `json:"description"`
	TxnDate       civil.Date `json:"txn_date"`
	Credit        float64    `json:"credit"`
	Debit         float64    `json:"debit"`
	Balance       *float64   `json:"balance,omitempty"`

	Category    BaseCategory `json:"category,omitempty"`
	SubCategory string       `json:"sub_category,omitempty"`
	TaggedBy    string       `json:"tagged_by,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	Confidence  *float64     `json:"confidence,omitempty"`
	Embedding   []float32    `json:"embedding,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Side reports the credit/debit side of the transaction.
func (t *Transaction) Side() Side {
	return SideOf(t.Credit, t.Debit)
}

// IsCategorized reports whether a category has already been assigned.
func (t *Transaction) IsCategorized() bool {
	return strings.TrimSpace(string(t.Category)) != ""
}

// IsDeleted reports whether the transaction has been soft-deleted.
func (t *Transaction) IsDeleted() bool {
	return t.DeletedAt != nil
}

// Validate checks the invariants a transaction must satisfy before it is
// persisted.
func (t *Transaction) Validate() error {
	switch {
	case strings.TrimSpace(t.TenantID) == "":
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidTransaction)
	case strings.TrimSpace(t.TransactionID) == "":
		return fmt.Errorf("%w: transaction_id is required", ErrInvalidTransaction)
	case !t.TxnDate.IsValid():
		return fmt.Errorf("%w: %s: txn_date is missing or invalid", ErrInvalidTransaction, t.TransactionID)
	case t.Credit < 0 || t.Debit < 0:
		return fmt.Errorf("%w: %s: amounts must be non-negative", ErrInvalidTransaction, t.TransactionID)
	case t.Credit == 0 && t.Debit == 0:
		return fmt.Errorf("%w: %s: both credit and debit are zero", ErrInvalidTransaction, t.TransactionID)
	case t.Credit > 0 && t.Debit > 0:
		return fmt.Errorf("%w: %s: both credit and debit are set", ErrInvalidTransaction, t.TransactionID)
	}
	return nil
}

// CategoryUpdate carries the categorization fields written by
// UpdateTransactionCategory. Nil pointers leave the stored value cleared.
type CategoryUpdate struct {
	Category    BaseCategory
	SubCategory string
	TaggedBy    string
	Confidence  *float64
	Reason      string
	Embedding   []float32
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}
