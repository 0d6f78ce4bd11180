package ruleengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/rules"
)

func compile(t *testing.T, rs ...domain.Rule) []rules.Compiled {
	t.Helper()
	out := make([]rules.Compiled, 0, len(rs))
	for _, r := range rs {
		re, err := r.Pattern.Compile()
		require.NoError(t, err)
		out = append(out, rules.Compiled{Rule: r, Matcher: re})
	}
	return out
}

func defaults(t *testing.T) []rules.Compiled {
	t.Helper()
	return compile(t, rules.DefaultRules()...)
}

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Salary credited via ACH", "salary credited via ach"},
		{"  UPI/SWIGGY\t\tBLR  ", "upi/swiggy blr"},
		{"POS 4111XXXX1111 AMAZON (IN)", "pos 4111xxxx1111 amazon in"},
		{"NEFT-CR: ACME & Co. @HDFC #42 *ref_1", "neft-cr: acme & co. @hdfc #42 *ref_1"},
		{"Café ₹500!", "caf 500"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDescription(tt.in))
		})
	}
}

func TestCategorize_SalaryExample(t *testing.T) {
	got := Categorize("Salary credited via ACH", 1000, 0, defaults(t))

	assert.Equal(t, domain.CategoryIncome, got.Category)
	assert.Equal(t, domain.SubSalary, got.SubCategory)
	assert.Greater(t, got.Confidence, 0.0)
	assert.Equal(t, domain.TaggedByRuleEngine, got.TaggedBy)
}

func TestCategorize_Unclassified(t *testing.T) {
	got := Categorize("No rule applies here", 0, 10, nil)

	assert.Equal(t, domain.CategoryUnclassified, got.Category)
	assert.Equal(t, 0.0, got.Confidence)
	assert.Equal(t, "No rule matched", got.Reason)
}

func TestCategorize_SideGating(t *testing.T) {
	debitOnly := domain.Rule{
		Pattern:  domain.Pattern{Source: "transfer", Flags: "i"},
		Category: domain.CategoryExpenses,
		Side:     domain.SideDebit,
	}
	creditOnly := domain.Rule{
		Pattern:  domain.Pattern{Source: "transfer", Flags: "i"},
		Category: domain.CategoryIncome,
		Side:     domain.SideCredit,
	}

	tests := []struct {
		name   string
		rules  []domain.Rule
		credit float64
		debit  float64
		want   domain.BaseCategory
	}{
		{"credit skips debit rule", []domain.Rule{debitOnly}, 100, 0, domain.CategoryUnclassified},
		{"debit matches debit rule", []domain.Rule{debitOnly}, 0, 100, domain.CategoryExpenses},
		{"debit skips credit rule", []domain.Rule{creditOnly}, 0, 100, domain.CategoryUnclassified},
		{"credit matches credit rule", []domain.Rule{creditOnly}, 100, 0, domain.CategoryIncome},
		{"credit falls through to credit rule", []domain.Rule{debitOnly, creditOnly}, 100, 0, domain.CategoryIncome},
		{"ambiguous skips sided rules", []domain.Rule{debitOnly, creditOnly}, 0, 0, domain.CategoryUnclassified},
		{"both set skips sided rules", []domain.Rule{debitOnly, creditOnly}, 5, 5, domain.CategoryUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Categorize("BANK TRANSFER", tt.credit, tt.debit, compile(t, tt.rules...))
			assert.Equal(t, tt.want, got.Category)
		})
	}
}

func TestCategorize_FirstMatchWins(t *testing.T) {
	rs := compile(t,
		domain.Rule{Pattern: domain.Pattern{Source: "amazon"}, Category: domain.CategoryExpenses, SubCategory: domain.SubShopping, Side: domain.SideAny},
		domain.Rule{Pattern: domain.Pattern{Source: "amazon prime"}, Category: domain.CategoryExpenses, SubCategory: domain.SubSubscriptions, Side: domain.SideAny, Confidence: domain.Float64(0.99)},
	)

	got := Categorize("AMAZON PRIME MEMBERSHIP", 0, 1499, rs)
	assert.Equal(t, domain.SubShopping, got.SubCategory)
	assert.Equal(t, DefaultConfidence, got.Confidence)
	assert.Equal(t, "matched rule /amazon/", got.Reason)
}

func TestCategorize_RuleFields(t *testing.T) {
	rs := compile(t, domain.Rule{
		Pattern:     domain.Pattern{Source: `\bswiggy\b`, Flags: "i"},
		Category:    domain.CategoryExpenses,
		SubCategory: domain.SubFood,
		Side:        domain.SideDebit,
		Reason:      "Food delivery",
		Confidence:  domain.Float64(0.75),
		TaggedBy:    "ops@example.com",
	})

	got := Categorize("UPI/Swiggy/Order 123", 0, 350, rs)
	assert.Equal(t, domain.ClassificationResult{
		Category:    domain.CategoryExpenses,
		SubCategory: domain.SubFood,
		Reason:      "Food delivery",
		Confidence:  0.75,
		TaggedBy:    "ops@example.com",
	}, got)
}

func TestCategorize_DefaultRules(t *testing.T) {
	rs := defaults(t)

	tests := []struct {
		desc   string
		credit float64
		debit  float64
		base   domain.BaseCategory
		sub    string
	}{
		{"NEFT CR-ACME PAYROLL AUG", 100000, 0, domain.CategoryIncome, domain.SubSalary},
		{"INT.PD:01-07-2025 TO 30-09-2025", 120, 0, domain.CategoryIncome, domain.SubInterest},
		{"UPI/SWIGGY/FOOD ORDER", 0, 450, domain.CategoryExpenses, domain.SubFood},
		{"ATM WDL MG ROAD", 0, 2000, domain.CategoryTransfer, domain.SubCashWithdrawal},
		{"NETFLIX.COM SUBSCRIPTION", 0, 649, domain.CategoryExpenses, domain.SubSubscriptions},
		{"SIP ZERODHA COIN", 0, 5000, domain.CategoryInvestment, domain.SubMutualFund},
		{"REFUND AMAZON ORDER", 499, 0, domain.CategoryIncome, domain.SubRefund},
		{"AMAZON ORDER", 0, 499, domain.CategoryExpenses, domain.SubShopping},
		{"ANNUAL FEE CHARGES", 0, 500, domain.CategoryExpenses, domain.SubFees},
		{"Random narration", 0, 10, domain.CategoryUnclassified, ""},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got := Categorize(tt.desc, tt.credit, tt.debit, rs)
			assert.Equal(t, tt.base, got.Category)
			assert.Equal(t, tt.sub, got.SubCategory)
		})
	}
}
