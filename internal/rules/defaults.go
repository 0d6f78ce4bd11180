package rules

import "github.com/dvloznov/ledger-ingest/internal/domain"

func rule(source string, side domain.Side, base domain.BaseCategory, sub, reason string) domain.Rule {
	return domain.Rule{
		Pattern:     domain.Pattern{Source: source, Flags: "i"},
		Side:        side,
		Category:    base,
		SubCategory: sub,
		Reason:      reason,
		TaggedBy:    domain.TaggedByRuleEngine,
	}
}

// DefaultRules returns the starter rule set for the global tenant. Order
// matters: evaluation is first-match-wins, so narrower rules come before
// broader ones. TenantID is left empty for the caller to set.
func DefaultRules() []domain.Rule {
	return []domain.Rule{
		// Income
		rule(`\bach\b.*\bcr|\bpayroll\b|\bsalary\b|\bsal\b`, domain.SideCredit,
			domain.CategoryIncome, domain.SubSalary, "ACH credit / payroll"),
		rule(`\bint(erest)?\.?\s*(pd|paid|cr|credit)\b|\binterest\b`, domain.SideCredit,
			domain.CategoryIncome, domain.SubInterest, "Interest credit"),
		rule(`\bdividend\b|\bdiv\b`, domain.SideCredit,
			domain.CategoryIncome, domain.SubDividend, "Dividend"),
		rule(`\brefund\b|\breversal\b|\bcashback\b|\brev\b`, domain.SideCredit,
			domain.CategoryIncome, domain.SubRefund, "Refund or reversal"),
		rule(`\bcash dep(osit)?\b|\bcdm\b`, domain.SideCredit,
			domain.CategoryTransfer, domain.SubCashDeposit, "Cash deposit"),

		// Transfers
		rule(`\batm\b|\bcash wdl\b|\bcash withdrawal\b|\bnwd\b`, domain.SideDebit,
			domain.CategoryTransfer, domain.SubCashWithdrawal, "Cash withdrawal"),
		rule(`\bcredit card\b|\bcc payment\b|\bcard payment\b|\bbillpay.*card\b`, domain.SideDebit,
			domain.CategoryTransfer, domain.SubCreditCardPayment, "Credit card payment"),
		rule(`\bself transfer\b|\bown account\b|\bto self\b`, domain.SideAny,
			domain.CategoryTransfer, domain.SubSelfTransfer, "Transfer between own accounts"),

		// Investments
		rule(`\bmutual fund\b|\bsip\b|\bzerodha\b|\bgroww\b|\bkuvera\b|\bmf\b`, domain.SideDebit,
			domain.CategoryInvestment, domain.SubMutualFund, "Mutual fund purchase"),
		rule(`\bfixed deposit\b|\bfd\b|\btd booking\b`, domain.SideDebit,
			domain.CategoryInvestment, domain.SubFixedDeposit, "Fixed deposit"),
		rule(`\bppf\b|\bnps\b|\bepf\b`, domain.SideDebit,
			domain.CategoryInvestment, domain.SubRetirement, "Retirement contribution"),

		// Expenses
		rule(`\bnetflix\b|\bspotify\b|\bhotstar\b|\bprime video\b|\byoutube\b`, domain.SideDebit,
			domain.CategoryExpenses, domain.SubSubscriptions, "Streaming subscription"),
		rule(`\bswiggy\b|\bzomato\b|\brestaurant\b|\bcafe\b|\bstarbucks\b`, domain.SideDebit,
			domain.CategoryExpenses, domain.SubFood, "Food and dining"),
		rule(`\bbigbasket\b|\bblinkit\b|\bdmart\b|\bgrocer(y|ies)?\b|\bwhole foods\b`, domain.SideDebit,
			domain.CategoryExpenses, domain.SubGroceries, "Groceries"),
		rule(`\buber\b|\bola\b|\brapido\b|\bmetro\b`, domain.SideDebit,
			domain.CategoryExpenses, domain.SubTransport, "Local transport"),
		rule(`\birctc\b|\bmakemytrip\b|\bindigo\b|\bairlines?\b|\bhotel\b`, domain.SideDebit,
			domain.CategoryExpenses, domain.SubTravel, "Travel"),
		rule(`\bpetrol\b|\bfuel\b|\bhpcl\b|\bbpcl\b|\bindian oil\b`, domain.SideDebit,
			domain.CategoryExpenses, domain.SubFuel, "Fuel"),
		rule(`\belectricity\b|\bbescom\b|\bbroadband\b|\bairtel\b|\bjio\b|\bwater bill\b`, domain.SideDebit,
			domain.CategoryExpenses, domain.SubUtilities, "Utility bill"),
		rule(`\brent\b`, domain.SideDebit,
			domain.CategoryExpenses, domain.SubRent, "Rent"),
		rule(`\bamazon\b|\bflipkart\b|\bmyntra\b`, domain.SideDebit,
			domain.CategoryExpenses, domain.SubShopping, "Online shopping"),
		rule(`\bpharmacy\b|\bhospital\b|\bapollo\b|\bclinic\b`, domain.SideDebit,
			domain.CategoryExpenses, domain.SubHealthcare, "Healthcare"),
		rule(`\binsurance\b|\blic\b`, domain.SideDebit,
			domain.CategoryExpenses, domain.SubInsurance, "Insurance premium"),
		rule(`\bemi\b|\bloan\b`, domain.SideDebit,
			domain.CategoryExpenses, domain.SubEMI, "Loan repayment"),
		rule(`\bgst\b|\bincome tax\b|\btds\b|\badvance tax\b`, domain.SideDebit,
			domain.CategoryExpenses, domain.SubTaxes, "Tax payment"),
		rule(`\bcharges?\b|\bfees?\b|\bpenalty\b`, domain.SideDebit,
			domain.CategoryExpenses, domain.SubFees, "Bank charges"),
	}
}
