package domain

import (
	"sort"
	"strings"
)

// BaseCategory is the top level of the two-level category taxonomy.
type BaseCategory string

const (
	CategoryIncome       BaseCategory = "INCOME"
	CategoryExpenses     BaseCategory = "EXPENSES"
	CategoryInvestment   BaseCategory = "INVESTMENT"
	CategoryTransfer     BaseCategory = "TRANSFER"
	CategoryUnclassified BaseCategory = "UNCLASSIFIED"
)

// Sub-categories. The taxonomy is closed: anything not listed here is
// rejected by rule validation and dropped from AI responses.
const (
	SubSalary      = "SALARY"
	SubBusiness    = "BUSINESS"
	SubInterest    = "INTEREST"
	SubDividend    = "DIVIDEND"
	SubRefund      = "REFUND"
	SubRental      = "RENTAL"
	SubOtherIncome = "OTHER_INCOME"

	SubFood          = "FOOD"
	SubGroceries     = "GROCERIES"
	SubTransport     = "TRANSPORT"
	SubFuel          = "FUEL"
	SubUtilities     = "UTILITIES"
	SubRent          = "RENT"
	SubShopping      = "SHOPPING"
	SubHealthcare    = "HEALTHCARE"
	SubEducation     = "EDUCATION"
	SubEntertainment = "ENTERTAINMENT"
	SubTravel        = "TRAVEL"
	SubInsurance     = "INSURANCE"
	SubEMI           = "EMI"
	SubFees          = "FEES"
	SubSubscriptions = "SUBSCRIPTIONS"
	SubTaxes         = "TAXES"
	SubOtherExpense  = "OTHER_EXPENSE"

	SubMutualFund   = "MUTUAL_FUND"
	SubStocks       = "STOCKS"
	SubFixedDeposit = "FIXED_DEPOSIT"
	SubRealEstate   = "REAL_ESTATE"
	SubGold         = "GOLD"
	SubCrypto       = "CRYPTO"
	SubRetirement   = "RETIREMENT"

	SubSelfTransfer      = "SELF_TRANSFER"
	SubPeerTransfer      = "P2P"
	SubCreditCardPayment = "CREDIT_CARD_PAYMENT"
	SubCashWithdrawal    = "CASH_WITHDRAWAL"
	SubCashDeposit       = "CASH_DEPOSIT"
)

var taxonomy = map[BaseCategory][]string{
	CategoryIncome: {
		SubSalary, SubBusiness, SubInterest, SubDividend, SubRefund, SubRental, SubOtherIncome,
	},
	CategoryExpenses: {
		SubFood, SubGroceries, SubTransport, SubFuel, SubUtilities, SubRent, SubShopping,
		SubHealthcare, SubEducation, SubEntertainment, SubTravel, SubInsurance, SubEMI,
		SubFees, SubSubscriptions, SubTaxes, SubOtherExpense,
	},
	CategoryInvestment: {
		SubMutualFund, SubStocks, SubFixedDeposit, SubRealEstate, SubGold, SubCrypto, SubRetirement,
	},
	CategoryTransfer: {
		SubSelfTransfer, SubPeerTransfer, SubCreditCardPayment, SubCashWithdrawal, SubCashDeposit,
	},
	CategoryUnclassified: {},
}

// subCategorySynonyms maps normalized labels seen in the wild onto canonical
// sub-categories.
var subCategorySynonyms = map[string]string{
	"REAL_ESTATE":     SubRealEstate,
	"REALESTATE":      SubRealEstate,
	"PROPERTY":        SubRealEstate,
	"MUTUAL_FUNDS":    SubMutualFund,
	"MF":              SubMutualFund,
	"SIP":             SubMutualFund,
	"EQUITY":          SubStocks,
	"SHARES":          SubStocks,
	"FD":              SubFixedDeposit,
	"PAYROLL":         SubSalary,
	"WAGES":           SubSalary,
	"RESTAURANT":      SubFood,
	"RESTAURANTS":     SubFood,
	"DINING":          SubFood,
	"FOOD_AND_DINING": SubFood,
	"GROCERY":         SubGroceries,
	"TRANSPORTATION":  SubTransport,
	"TAXI":            SubTransport,
	"PETROL":          SubFuel,
	"UTILITY":         SubUtilities,
	"BILLS":           SubUtilities,
	"MEDICAL":         SubHealthcare,
	"HEALTH":          SubHealthcare,
	"LOAN":            SubEMI,
	"LOAN_EMI":        SubEMI,
	"BANK_FEES":       SubFees,
	"CHARGES":         SubFees,
	"SUBSCRIPTION":    SubSubscriptions,
	"TAX":             SubTaxes,
	"ATM":             SubCashWithdrawal,
	"ATM_WITHDRAWAL":  SubCashWithdrawal,
	"CREDIT_CARD":     SubCreditCardPayment,
	"CC_PAYMENT":      SubCreditCardPayment,
	"PEER_TO_PEER":    SubPeerTransfer,
	"OWN_ACCOUNT":     SubSelfTransfer,
	"INTERNAL":        SubSelfTransfer,
	"PENSION":         SubRetirement,
	"PF":              SubRetirement,
	"PROVIDENT_FUND":  SubRetirement,
	"INTEREST_INCOME": SubInterest,
	"DIVIDENDS":       SubDividend,
	"CASHBACK":        SubRefund,
	"REIMBURSEMENT":   SubRefund,
	"RENTAL_INCOME":   SubRental,
	"FREELANCE":       SubBusiness,
	"OTHER":           "",
	"MISC":            "",
	"MISCELLANEOUS":   "",
	"GENERAL":         "",
	"NONE":            "",
	"N/A":             "",
	"NOT_APPLICABLE":  "",
	"UNKNOWN":         "",
	"UNCATEGORIZED":   "",
	"UNCLASSIFIED":    "",
	"OTHERS":          "",
	"OTHER_EXPENSES":  SubOtherExpense,
	"OTHER_INCOMES":   SubOtherIncome,
	"TRAVEL_AND_STAY": SubTravel,
	"HOTEL":           SubTravel,
	"FLIGHTS":         SubTravel,
}

// NormalizeLabel uppercases a free-form label and replaces runs of spaces
// and hyphens with underscores.
func NormalizeLabel(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "&", " AND ").Replace(s)
	return strings.Join(strings.Fields(s), "_")
}

// ParseBaseCategory normalizes s and returns the matching base category.
func ParseBaseCategory(s string) (BaseCategory, bool) {
	label := NormalizeLabel(s)
	switch label {
	case "EXPENSE":
		label = string(CategoryExpenses)
	case "INVESTMENTS":
		label = string(CategoryInvestment)
	case "TRANSFERS":
		label = string(CategoryTransfer)
	}
	c := BaseCategory(label)
	if _, ok := taxonomy[c]; !ok {
		return "", false
	}
	return c, true
}

// NormalizeSubCategory maps a free-form sub-category label onto the canonical
// sub-category of base. It returns "" when the label is empty, generic, or
// does not belong to base.
func NormalizeSubCategory(base BaseCategory, s string) string {
	label := NormalizeLabel(s)
	if label == "" {
		return ""
	}
	if canonical, ok := subCategorySynonyms[label]; ok {
		label = canonical
	}
	if label == "" {
		return ""
	}
	if IsValidSubCategory(base, label) {
		return label
	}
	return ""
}

// IsValidSubCategory reports whether sub belongs to base. The empty
// sub-category is always valid.
func IsValidSubCategory(base BaseCategory, sub string) bool {
	if sub == "" {
		_, ok := taxonomy[base]
		return ok
	}
	for _, s := range taxonomy[base] {
		if s == sub {
			return true
		}
	}
	return false
}

// BaseCategories returns all base categories in a stable order.
func BaseCategories() []BaseCategory {
	out := make([]BaseCategory, 0, len(taxonomy))
	for c := range taxonomy {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SubCategories returns the sub-categories of base.
func SubCategories(base BaseCategory) []string {
	subs := taxonomy[base]
	out := make([]string, len(subs))
	copy(out, subs)
	return out
}
