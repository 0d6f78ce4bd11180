package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func amount(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func printTransactions(w io.Writer, txns []domain.Transaction) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tDESCRIPTION\tDEBIT\tCREDIT\tCATEGORY\tSUB-CATEGORY\tTAGGED BY")
	for _, t := range txns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.TransactionID, t.TxnDate, t.Description, amount(t.Debit), amount(t.Credit),
			t.Category, t.SubCategory, t.TaggedBy)
	}
	return tw.Flush()
}

func printRules(w io.Writer, rules []domain.Rule) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE ID\tPATTERN\tSIDE\tCATEGORY\tSUB-CATEGORY\tREASON")
	for _, r := range rules {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RuleID, r.Pattern, r.Side, r.Category, r.SubCategory, r.Reason)
	}
	return tw.Flush()
}
