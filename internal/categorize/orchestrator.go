// Package categorize runs the rule-then-AI categorization of a single stored
// transaction and writes the outcome back through the transaction store.
package categorize

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/ruleengine"
	"github.com/dvloznov/ledger-ingest/internal/rules"
)

// Defaults applied when the AI adapter accepts a transaction without
// reporting its own confidence or reason.
const (
	AIFallbackConfidence = 0.7
	AIFallbackReason     = "AI fallback"

	DefaultMinConfidence = 0.5
)

// RuleSource loads the ordered, compiled rule set of a tenant.
type RuleSource interface {
	GetRulesByTenant(ctx context.Context, tenantID string) ([]rules.Compiled, error)
}

// AIClassifier is the AI fallback. Both methods return nil when the
// service has no opinion.
type AIClassifier interface {
	Classify(ctx context.Context, description string) *domain.ClassificationResult
	Embed(ctx context.Context, text string) []float32
}

// CategoryWriter persists categorization fields.
type CategoryWriter interface {
	UpdateTransactionCategory(ctx context.Context, tenantID, transactionID string, upd domain.CategoryUpdate) error
}

// Request is the categorization input for one transaction.
type Request struct {
	TenantID      string
	TransactionID string
	Description   string
	Credit        float64
	Debit         float64
	Category      domain.BaseCategory
}

// RequestFor builds a Request from a stored transaction.
func RequestFor(t domain.Transaction) Request {
	return Request{
		TenantID:      t.TenantID,
		TransactionID: t.TransactionID,
		Description:   t.Description,
		Credit:        t.Credit,
		Debit:         t.Debit,
		Category:      t.Category,
	}
}

// Options configures the AI stage.
type Options struct {
	AIEnabled     bool
	MinConfidence float64
	Tagger        string
	Embeddings    bool
}

// Orchestrator is the categorization state machine.
type Orchestrator struct {
	rules  RuleSource
	ai     AIClassifier
	writer CategoryWriter
	opts   Options
	log    zerolog.Logger
}

// NewOrchestrator creates an Orchestrator. ai may be nil, which disables the
// AI stage regardless of opts.AIEnabled.
func NewOrchestrator(rs RuleSource, ai AIClassifier, writer CategoryWriter, log zerolog.Logger, opts Options) *Orchestrator {
	if opts.Tagger == "" {
		opts.Tagger = domain.TaggedByAI
	}
	if opts.MinConfidence < 0 || opts.MinConfidence > 1 {
		opts.MinConfidence = DefaultMinConfidence
	}
	if ai == nil {
		opts.AIEnabled = false
		opts.Embeddings = false
	}
	return &Orchestrator{rules: rs, ai: ai, writer: writer, opts: opts, log: log}
}

// Categorize classifies one transaction and persists the result. It returns
// false without error when the request is incomplete or the transaction is
// already categorized.
func (o *Orchestrator) Categorize(ctx context.Context, req Request) (bool, error) {
	log := o.log.With().
		Str("tenant_id", req.TenantID).
		Str("transaction_id", req.TransactionID).
		Logger()

	if strings.TrimSpace(req.TenantID) == "" ||
		strings.TrimSpace(req.TransactionID) == "" ||
		strings.TrimSpace(req.Description) == "" {
		log.Debug().Msg("categorize: missing required fields, skipping")
		return false, nil
	}
	if strings.TrimSpace(string(req.Category)) != "" {
		log.Debug().Str("category", string(req.Category)).Msg("categorize: already categorized, skipping")
		return false, nil
	}

	compiled, err := o.rules.GetRulesByTenant(ctx, req.TenantID)
	if err != nil {
		return false, fmt.Errorf("Categorize: load rules: %w", err)
	}

	result := ruleengine.Categorize(req.Description, req.Credit, req.Debit, compiled)
	if result.IsUnclassified() && o.opts.AIEnabled {
		if aiResult := o.classifyWithAI(ctx, log, req.Description); aiResult != nil {
			result = *aiResult
		}
	}

	upd := domain.CategoryUpdate{
		Category:    result.Category,
		SubCategory: result.SubCategory,
		TaggedBy:    result.TaggedBy,
		Confidence:  domain.Float64(result.Confidence),
		Reason:      result.Reason,
	}
	if o.opts.Embeddings {
		upd.Embedding = o.ai.Embed(ctx, req.Description)
	}

	if err := o.writer.UpdateTransactionCategory(ctx, req.TenantID, req.TransactionID, upd); err != nil {
		return false, fmt.Errorf("Categorize: persist: %w", err)
	}

	log.Info().
		Str("category", string(upd.Category)).
		Str("sub_category", upd.SubCategory).
		Str("tagged_by", upd.TaggedBy).
		Float64("confidence", result.Confidence).
		Msg("transaction categorized")
	return true, nil
}

// classifyWithAI returns an accepted AI result, or nil when the service has
// no opinion or its confidence is below the gate.
func (o *Orchestrator) classifyWithAI(ctx context.Context, log zerolog.Logger, description string) *domain.ClassificationResult {
	res := o.ai.Classify(ctx, description)
	if res == nil || res.IsUnclassified() {
		return nil
	}

	accepted := *res
	if accepted.Confidence <= 0 && !accepted.ConfidenceSet {
		accepted.Confidence = AIFallbackConfidence
	}
	if strings.TrimSpace(accepted.Reason) == "" {
		accepted.Reason = AIFallbackReason
	}
	if accepted.Confidence < o.opts.MinConfidence {
		log.Info().
			Float64("confidence", accepted.Confidence).
			Float64("min_confidence", o.opts.MinConfidence).
			Msg("AI result below confidence gate")
		return nil
	}
	accepted.TaggedBy = o.opts.Tagger
	return &accepted
}

// ManualConfidence is recorded for user-assigned categories.
const ManualConfidence = 1.0

// Reclassify applies a user's explicit category choice, bypassing the rule
// and AI stages. The category must belong to the taxonomy.
func (o *Orchestrator) Reclassify(ctx context.Context, tenantID, transactionID, category, subCategory, actor string) (domain.CategoryUpdate, error) {
	base, ok := domain.ParseBaseCategory(category)
	if !ok || base == domain.CategoryUnclassified {
		return domain.CategoryUpdate{}, fmt.Errorf("Reclassify: unknown category %q", category)
	}
	sub := ""
	if strings.TrimSpace(subCategory) != "" {
		sub = domain.NormalizeSubCategory(base, subCategory)
		if sub == "" {
			return domain.CategoryUpdate{}, fmt.Errorf("Reclassify: sub-category %q does not belong to %s", subCategory, base)
		}
	}
	if strings.TrimSpace(actor) == "" {
		return domain.CategoryUpdate{}, fmt.Errorf("Reclassify: actor is required")
	}

	upd := domain.CategoryUpdate{
		Category:    base,
		SubCategory: sub,
		TaggedBy:    actor,
		Confidence:  domain.Float64(ManualConfidence),
		Reason:      "manual reclassification",
	}
	if err := o.writer.UpdateTransactionCategory(ctx, tenantID, transactionID, upd); err != nil {
		return domain.CategoryUpdate{}, fmt.Errorf("Reclassify: %w", err)
	}
	o.log.Info().
		Str("tenant_id", tenantID).
		Str("transaction_id", transactionID).
		Str("category", string(base)).
		Str("sub_category", sub).
		Str("actor", actor).
		Msg("transaction reclassified")
	return upd, nil
}
