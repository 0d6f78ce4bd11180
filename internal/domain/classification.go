package domain

// Tagger identities recorded in Transaction.TaggedBy.
const (
	TaggedByRuleEngine = "RULE_ENGINE"
	TaggedByAI         = "BEDROCK"
)

// ReasonNoRuleMatched is reported when no rule matches a transaction.
const ReasonNoRuleMatched = "No rule matched"

// ClassificationResult is the transient output of the rule engine or the AI
// adapter.
type ClassificationResult struct {
	Category    BaseCategory `json:"category"`
	SubCategory string       `json:"sub_category,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	Confidence  float64      `json:"confidence"`
	TaggedBy    string       `json:"tagged_by,omitempty"`

	// ConfidenceSet marks a Confidence the classifier reported itself, so an
	// explicit zero is kept apart from a missing value.
	ConfidenceSet bool `json:"-"`
}

// IsUnclassified reports whether the result carries no usable category.
func (r ClassificationResult) IsUnclassified() bool {
	return r.Category == "" || r.Category == CategoryUnclassified
}

// Unclassified is the result returned when nothing matched.
func Unclassified() ClassificationResult {
	return ClassificationResult{
		Category:   CategoryUnclassified,
		Reason:     ReasonNoRuleMatched,
		Confidence: 0,
	}
}
