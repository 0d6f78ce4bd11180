package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Side restricts which transactions a rule may match.
type Side string

const (
	SideCredit Side = "CREDIT"
	SideDebit  Side = "DEBIT"
	SideAny    Side = "ANY"
)

// ParseSide parses a side name, defaulting empty input to SideAny.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideCredit:
		return SideCredit, nil
	case SideDebit:
		return SideDebit, nil
	case SideAny, "":
		return SideAny, nil
	}
	return "", fmt.Errorf("%w: unknown side %q", ErrInvalidRule, s)
}

// SideOf derives the side of a movement. Ambiguous input (both zero or both
// set) is treated as SideAny.
func SideOf(credit, debit float64) Side {
	switch {
	case credit > 0 && debit == 0:
		return SideCredit
	case debit > 0 && credit == 0:
		return SideDebit
	default:
		return SideAny
	}
}

// Matches reports whether a rule restricted to s may match a transaction on
// side txn.
func (s Side) Matches(txn Side) bool {
	return s == SideAny || s == "" || s == txn
}

// Pattern is a regular expression kept as data: the source text plus a flag
// string (i, m, s are honoured; g, u and y are accepted and ignored).
type Pattern struct {
	Source string `json:"source"`
	Flags  string `json:"flags,omitempty"`
}

// String renders the pattern in /source/flags literal form.
func (p Pattern) String() string {
	return "/" + p.Source + "/" + p.Flags
}

// Compile builds a native matcher from the pattern.
func (p Pattern) Compile() (*regexp.Regexp, error) {
	if strings.TrimSpace(p.Source) == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidRule)
	}
	var goFlags strings.Builder
	for _, f := range p.Flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(goFlags.String(), f) {
				goFlags.WriteRune(f)
			}
		case 'g', 'u', 'y':
		default:
			return nil, fmt.Errorf("%w: unsupported pattern flag %q", ErrInvalidRule, f)
		}
	}
	src := p.Source
	if goFlags.Len() > 0 {
		src = "(?" + goFlags.String() + ")" + src
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %s: %v", ErrInvalidRule, p, err)
	}
	return re, nil
}

var patternLiteral = regexp.MustCompile(`^/(.*)/([a-z]*)$`)

// ParsePatternLiteral reads a pattern stored either as a /source/flags
// literal or as a bare source string.
func ParsePatternLiteral(s string) Pattern {
	s = strings.TrimSpace(s)
	if m := patternLiteral.FindStringSubmatch(s); m != nil && m[1] != "" {
		return Pattern{Source: m[1], Flags: m[2]}
	}
	return Pattern{Source: s}
}

// Rule is a tenant-scoped pattern rule. Rules are never mutated in place,
// only superseded or removed.
type Rule struct {
	RuleID      string       `json:"rule_id"`
	TenantID    string       `json:"tenant_id"`
	Pattern     Pattern      `json:"pattern"`
	Category    BaseCategory `json:"category"`
	SubCategory string       `json:"sub_category,omitempty"`
	Side        Side         `json:"side"`
	Reason      string       `json:"reason,omitempty"`
	Confidence  *float64     `json:"confidence,omitempty"`
	TaggedBy    string       `json:"tagged_by"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Keyword is the key used to suppress duplicates across tenant and global
// rule sets.
func (r *Rule) Keyword() string {
	return strings.ToLower(strings.TrimSpace(r.Pattern.Source))
}

// Validate checks a rule against the taxonomy and compiles its pattern.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidRule)
	}
	if _, err := r.Pattern.Compile(); err != nil {
		return err
	}
	if _, ok := taxonomy[r.Category]; !ok || r.Category == "" {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidRule, r.Category)
	}
	if !IsValidSubCategory(r.Category, r.SubCategory) {
		return fmt.Errorf("%w: sub-category %q does not belong to %s", ErrInvalidRule, r.SubCategory, r.Category)
	}
	if _, err := ParseSide(string(r.Side)); err != nil {
		return err
	}
	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
		return fmt.Errorf("%w: confidence %.2f out of range", ErrInvalidRule, *r.Confidence)
	}
	return nil
}

// RuleID derives the stable identifier of a rule from its tenant, pattern
// and side, so re-adding an identical rule is a no-op.
func RuleID(tenantID string, p Pattern, side Side) string {
	if side == "" {
		side = SideAny
	}
	sum := sha256.Sum256([]byte(tenantID + "\x00" + p.Source + "\x00" + p.Flags + "\x00" + string(side)))
	return "rule_" + hex.EncodeToString(sum[:12])
}

// GlobalTenant is the reserved tenant whose rules back every other tenant.
const GlobalTenant = "GLOBAL"
