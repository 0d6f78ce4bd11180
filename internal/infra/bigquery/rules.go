package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/rules"
)

const ruleColumns = `tenant_id, rule_id, pattern_source, pattern_flags, category, sub_category,
	side, reason, confidence, tagged_by, created_at`

// RuleRepository is a rules.Repository backed by the rules table.
type RuleRepository struct {
	c *Client
}

func NewRuleRepository(c *Client) *RuleRepository {
	return &RuleRepository{c: c}
}

func (r *RuleRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.Rule, error) {
	sql := `SELECT ` + ruleColumns + ` FROM ` + r.c.table(rulesTable) + `
WHERE tenant_id = @tenant_id
ORDER BY created_at, rule_id`
	rows, err := readAll[RuleRow](ctx, r.c, sql, []bigquery.QueryParameter{
		{Name: "tenant_id", Value: tenantID},
	})
	if err != nil {
		return nil, fmt.Errorf("ListByTenant: %w", err)
	}
	out := make([]domain.Rule, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Rule())
	}
	return out, nil
}

func insertRuleSQL(table string) string {
	return `MERGE ` + table + ` T
USING (SELECT @tenant_id AS tenant_id, @rule_id AS rule_id) S
ON T.tenant_id = S.tenant_id AND T.rule_id = S.rule_id
WHEN NOT MATCHED THEN
  INSERT (` + ruleColumns + `)
  VALUES (@tenant_id, @rule_id, @pattern_source, @pattern_flags, @category, @sub_category,
	@side, @reason, @confidence, @tagged_by, @created_at)`
}

func ruleParams(row *RuleRow) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "tenant_id", Value: row.TenantID},
		{Name: "rule_id", Value: row.RuleID},
		{Name: "pattern_source", Value: row.PatternSource},
		{Name: "pattern_flags", Value: row.PatternFlags},
		{Name: "category", Value: row.Category},
		{Name: "sub_category", Value: row.SubCategory},
		{Name: "side", Value: row.Side},
		{Name: "reason", Value: row.Reason},
		{Name: "confidence", Value: row.Confidence},
		{Name: "tagged_by", Value: row.TaggedBy},
		{Name: "created_at", Value: row.CreatedAt},
	}
}

// PutRules merges each rule in its own statement; existing rule IDs are
// left untouched.
func (r *RuleRepository) PutRules(ctx context.Context, rs []domain.Rule) error {
	sql := insertRuleSQL(r.c.table(rulesTable))
	for _, rule := range rs {
		if _, err := r.c.exec(ctx, sql, ruleParams(NewRuleRow(rule))); err != nil {
			return fmt.Errorf("PutRules: %s: %w", rule.RuleID, err)
		}
	}
	return nil
}

func (r *RuleRepository) DeleteRule(ctx context.Context, tenantID, ruleID string) error {
	sql := `DELETE FROM ` + r.c.table(rulesTable) + `
WHERE tenant_id = @tenant_id AND rule_id = @rule_id`
	n, err := r.c.exec(ctx, sql, []bigquery.QueryParameter{
		{Name: "tenant_id", Value: tenantID},
		{Name: "rule_id", Value: ruleID},
	})
	if err != nil {
		return fmt.Errorf("DeleteRule: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("DeleteRule: %s: %w", ruleID, domain.ErrNotFound)
	}
	return nil
}

func (r *RuleRepository) DeletePatternExcept(ctx context.Context, tenantID string, p domain.Pattern, keepRuleID string) error {
	sql := `DELETE FROM ` + r.c.table(rulesTable) + `
WHERE tenant_id = @tenant_id AND rule_id <> @keep
  AND ((pattern_source = @source AND pattern_flags = @flags) OR (pattern_source = @literal AND pattern_flags = ''))`
	_, err := r.c.exec(ctx, sql, []bigquery.QueryParameter{
		{Name: "tenant_id", Value: tenantID},
		{Name: "source", Value: p.Source},
		{Name: "flags", Value: p.Flags},
		{Name: "literal", Value: p.String()},
		{Name: "keep", Value: keepRuleID},
	})
	if err != nil {
		return fmt.Errorf("DeletePatternExcept: %w", err)
	}
	return nil
}

var _ rules.Repository = (*RuleRepository)(nil)
