// Package rules owns tenant-scoped categorization rules and merges a tenant's
// rules with the global default tenant's rules for evaluation.
package rules

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// DefaultChunkSize bounds how many rules are written per repository call.
const DefaultChunkSize = 25

// Repository persists rules partitioned by tenant.
type Repository interface {
	// ListByTenant returns the tenant's rules in stored order (creation time,
	// then rule ID).
	ListByTenant(ctx context.Context, tenantID string) ([]domain.Rule, error)
	// PutRules inserts rules that do not exist yet. Existing rule IDs are left
	// untouched.
	PutRules(ctx context.Context, rules []domain.Rule) error
	// DeleteRule removes one rule; it returns domain.ErrNotFound if absent.
	DeleteRule(ctx context.Context, tenantID, ruleID string) error
	// DeletePatternExcept removes every rule of tenantID with pattern p whose
	// ID differs from keepRuleID. Rows that store p as a single /source/flags
	// literal count as the same pattern.
	DeletePatternExcept(ctx context.Context, tenantID string, p domain.Pattern, keepRuleID string) error
}

// Compiled is a rule with its pattern rebuilt into a matcher.
type Compiled struct {
	domain.Rule
	Matcher *regexp.Regexp
}

// Store is the rule service used by the orchestrator and the CLI.
type Store struct {
	repo         Repository
	log          zerolog.Logger
	globalTenant string
	chunkSize    int
	now          func() time.Time

	mu       sync.RWMutex
	compiled map[domain.Pattern]*regexp.Regexp
}

// NewStore creates a rule store. globalTenant defaults to domain.GlobalTenant
// and chunkSize to DefaultChunkSize when zero.
func NewStore(repo Repository, log zerolog.Logger, globalTenant string, chunkSize int) *Store {
	if globalTenant == "" {
		globalTenant = domain.GlobalTenant
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Store{
		repo:         repo,
		log:          log,
		globalTenant: globalTenant,
		chunkSize:    chunkSize,
		now:          time.Now,
		compiled:     make(map[domain.Pattern]*regexp.Regexp),
	}
}

// GlobalTenant returns the tenant whose rules back every other tenant.
func (s *Store) GlobalTenant() string {
	return s.globalTenant
}

// GetRulesByTenant returns the rules to evaluate for tenantID: the tenant's
// own rules first, then the global tenant's. A global rule whose keyword
// (lowercased pattern source) was already seen is dropped, so tenant rules
// override global ones. Rules whose pattern does not compile are skipped.
func (s *Store) GetRulesByTenant(ctx context.Context, tenantID string) ([]Compiled, error) {
	own, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("GetRulesByTenant: list %s: %w", tenantID, err)
	}

	sets := [][]domain.Rule{own}
	if tenantID != s.globalTenant {
		global, err := s.repo.ListByTenant(ctx, s.globalTenant)
		if err != nil {
			return nil, fmt.Errorf("GetRulesByTenant: list %s: %w", s.globalTenant, err)
		}
		sets = append(sets, global)
	}

	seen := make(map[string]bool)
	var out []Compiled
	for _, set := range sets {
		for _, r := range set {
			r.Pattern = normalizePattern(r.Pattern)
			kw := r.Keyword()
			if seen[kw] {
				continue
			}
			re, err := s.matcher(r.Pattern)
			if err != nil {
				s.log.Warn().
					Err(err).
					Str("tenant_id", r.TenantID).
					Str("rule_id", r.RuleID).
					Msg("skipping rule with invalid pattern")
				continue
			}
			seen[kw] = true
			out = append(out, Compiled{Rule: r, Matcher: re})
		}
	}
	return out, nil
}

// normalizePattern handles legacy rows stored as a single /source/flags
// literal.
func normalizePattern(p domain.Pattern) domain.Pattern {
	if p.Flags == "" && strings.HasPrefix(strings.TrimSpace(p.Source), "/") {
		return domain.ParsePatternLiteral(p.Source)
	}
	return p
}

func (s *Store) matcher(p domain.Pattern) (*regexp.Regexp, error) {
	s.mu.RLock()
	re, ok := s.compiled[p]
	s.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := p.Compile()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.compiled[p] = re
	s.mu.Unlock()
	return re, nil
}

// ListRules returns the tenant's own rules in stored order.
func (s *Store) ListRules(ctx context.Context, tenantID string) ([]domain.Rule, error) {
	rules, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ListRules: %w", err)
	}
	for i := range rules {
		rules[i].Pattern = normalizePattern(rules[i].Pattern)
	}
	return rules, nil
}

// prepare fills defaults, derives the rule ID and validates r.
func (s *Store) prepare(r domain.Rule) (domain.Rule, error) {
	r.TenantID = strings.TrimSpace(r.TenantID)
	r.Pattern = normalizePattern(r.Pattern)
	side, err := domain.ParseSide(string(r.Side))
	if err != nil {
		return r, err
	}
	r.Side = side
	if cat, ok := domain.ParseBaseCategory(string(r.Category)); ok {
		r.Category = cat
	}
	if r.SubCategory != "" {
		if sub := domain.NormalizeSubCategory(r.Category, r.SubCategory); sub != "" {
			r.SubCategory = sub
		}
	}
	if r.TaggedBy == "" {
		r.TaggedBy = domain.TaggedByRuleEngine
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	if err := r.Validate(); err != nil {
		return r, err
	}
	r.RuleID = domain.RuleID(r.TenantID, r.Pattern, r.Side)
	return r, nil
}

// AddRule validates and stores one rule. Adding an identical rule again is a
// no-op; adding the same pattern with another side replaces the old rule.
func (s *Store) AddRule(ctx context.Context, r domain.Rule) (domain.Rule, error) {
	added, err := s.AddRules(ctx, []domain.Rule{r})
	if err != nil {
		return domain.Rule{}, err
	}
	return added[0], nil
}

// AddRules validates every rule before writing any of them, then stores them
// in chunks. Within the batch the last rule for a (tenant, pattern) wins.
func (s *Store) AddRules(ctx context.Context, rules []domain.Rule) ([]domain.Rule, error) {
	prepared := make([]domain.Rule, 0, len(rules))
	index := make(map[string]int)
	base := s.now().UTC()
	for i, r := range rules {
		if r.CreatedAt.IsZero() {
			// Stored order is creation order, so keep the batch order.
			r.CreatedAt = base.Add(time.Duration(i) * time.Microsecond)
		}
		p, err := s.prepare(r)
		if err != nil {
			return nil, fmt.Errorf("AddRules: rule %d: %w", i, err)
		}
		key := p.TenantID + "\x00" + p.Pattern.String()
		if j, ok := index[key]; ok {
			prepared[j] = p
			continue
		}
		index[key] = len(prepared)
		prepared = append(prepared, p)
	}

	for start := 0; start < len(prepared); start += s.chunkSize {
		chunk := prepared[start:min(start+s.chunkSize, len(prepared))]
		for _, r := range chunk {
			if err := s.repo.DeletePatternExcept(ctx, r.TenantID, r.Pattern, r.RuleID); err != nil {
				return nil, fmt.Errorf("AddRules: supersede %s: %w", r.RuleID, err)
			}
		}
		if err := s.repo.PutRules(ctx, chunk); err != nil {
			return nil, fmt.Errorf("AddRules: put chunk at %d: %w", start, err)
		}
	}

	s.log.Debug().Int("count", len(prepared)).Msg("rules stored")
	return prepared, nil
}

// RemoveRule deletes a rule by ID.
func (s *Store) RemoveRule(ctx context.Context, tenantID, ruleID string) error {
	if err := s.repo.DeleteRule(ctx, tenantID, ruleID); err != nil {
		return fmt.Errorf("RemoveRule: %s/%s: %w", tenantID, ruleID, err)
	}
	return nil
}

// ListCategoriesByBase groups the keywords of the rules effective for
// tenantID by base category. Keywords are sorted and unique.
func (s *Store) ListCategoriesByBase(ctx context.Context, tenantID string) (map[domain.BaseCategory][]string, error) {
	rules, err := s.GetRulesByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	sets := make(map[domain.BaseCategory]map[string]struct{})
	for _, r := range rules {
		if sets[r.Category] == nil {
			sets[r.Category] = make(map[string]struct{})
		}
		sets[r.Category][r.Keyword()] = struct{}{}
	}

	out := make(map[domain.BaseCategory][]string, len(sets))
	for base, set := range sets {
		kws := make([]string, 0, len(set))
		for kw := range set {
			kws = append(kws, kw)
		}
		sort.Strings(kws)
		out[base] = kws
	}
	return out, nil
}

// SeedDefaults stores DefaultRules under the global tenant.
func (s *Store) SeedDefaults(ctx context.Context) (int, error) {
	defaults := DefaultRules()
	for i := range defaults {
		defaults[i].TenantID = s.globalTenant
	}
	added, err := s.AddRules(ctx, defaults)
	if err != nil {
		return 0, fmt.Errorf("SeedDefaults: %w", err)
	}
	return len(added), nil
}
