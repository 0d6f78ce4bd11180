package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/rules"
)

// RuleRepository is a rules.Repository. Patterns are stored as source and
// flags columns, never as compiled matchers.
type RuleRepository struct {
	d *DB
}

func NewRuleRepository(d *DB) *RuleRepository {
	return &RuleRepository{d: d}
}

func (r *RuleRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.Rule, error) {
	rows, err := r.d.db.QueryContext(ctx, `
		SELECT tenant_id, rule_id, pattern_source, pattern_flags, category, sub_category,
		       side, reason, confidence, tagged_by, created_at
		FROM rules WHERE tenant_id = ?
		ORDER BY created_at, rule_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ListByTenant: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		var (
			rule       domain.Rule
			category   string
			side       string
			confidence sql.NullFloat64
			createdAt  int64
		)
		if err := rows.Scan(&rule.TenantID, &rule.RuleID, &rule.Pattern.Source, &rule.Pattern.Flags,
			&category, &rule.SubCategory, &side, &rule.Reason, &confidence, &rule.TaggedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("ListByTenant: scan: %w", err)
		}
		rule.Category = domain.BaseCategory(category)
		rule.Side = domain.Side(side)
		rule.Confidence = floatPtr(confidence)
		rule.CreatedAt = fromNanos(createdAt)
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByTenant: %w", err)
	}
	return out, nil
}

func (r *RuleRepository) PutRules(ctx context.Context, rs []domain.Rule) error {
	return r.d.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO rules (tenant_id, rule_id, pattern_source, pattern_flags, category,
			                   sub_category, side, reason, confidence, tagged_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (tenant_id, rule_id) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("PutRules: prepare: %w", err)
		}
		defer stmt.Close()

		for _, rule := range rs {
			if _, err := stmt.ExecContext(ctx,
				rule.TenantID, rule.RuleID, rule.Pattern.Source, rule.Pattern.Flags, string(rule.Category),
				rule.SubCategory, string(rule.Side), rule.Reason, nullFloat(rule.Confidence), rule.TaggedBy,
				nanos(rule.CreatedAt),
			); err != nil {
				return fmt.Errorf("PutRules: %s: %w", rule.RuleID, err)
			}
		}
		return nil
	})
}

func (r *RuleRepository) DeleteRule(ctx context.Context, tenantID, ruleID string) error {
	res, err := r.d.db.ExecContext(ctx, `DELETE FROM rules WHERE tenant_id = ? AND rule_id = ?`, tenantID, ruleID)
	if err != nil {
		return fmt.Errorf("DeleteRule: %w", err)
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("DeleteRule: %s: %w", ruleID, err)
	}
	return nil
}

func (r *RuleRepository) DeletePatternExcept(ctx context.Context, tenantID string, p domain.Pattern, keepRuleID string) error {
	_, err := r.d.db.ExecContext(ctx, `
		DELETE FROM rules
		WHERE tenant_id = ? AND rule_id <> ?
		  AND ((pattern_source = ? AND pattern_flags = ?) OR (pattern_source = ? AND pattern_flags = ''))`,
		tenantID, keepRuleID, p.Source, p.Flags, p.String())
	if err != nil {
		return fmt.Errorf("DeletePatternExcept: %w", err)
	}
	return nil
}

var _ rules.Repository = (*RuleRepository)(nil)
