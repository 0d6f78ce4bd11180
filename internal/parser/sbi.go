package parser

import (
	"math"
	"regexp"
	"strings"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// SBIParser reads the SBI plain-text statement layout, where columns are
// separated by runs of two or more spaces:
//
//	Txn Date    Value Date   Description          Ref No./Cheque No.   Debit     Credit    Balance
//	1 Aug 2025  1 Aug 2025   NEFT SALARY ACME     N123456                        50,000.00  62,000.00
//
// Empty debit or credit cells collapse into the separator, so amounts are
// assigned to the header column they sit under. Indented lines without a date
// continue the previous description. The table ends at the
// "**This is a computer generated" footer.
type SBIParser struct{}

func NewSBIParser() *SBIParser {
	return &SBIParser{}
}

func (p *SBIParser) Format() Format {
	return FormatSBI
}

func (p *SBIParser) Parse(buf []byte, userID string) ([]domain.Transaction, error) {
	res, err := p.ParseWithStats(buf, userID)
	if err != nil {
		return nil, err
	}
	return res.Transactions, nil
}

var textCell = regexp.MustCompile(`\S+(?: \S+)*`)

type textToken struct {
	text       string
	start, end int
}

func textTokens(line string) []textToken {
	var out []textToken
	for _, loc := range textCell.FindAllStringIndex(line, -1) {
		out = append(out, textToken{text: line[loc[0]:loc[1]], start: loc[0], end: loc[1]})
	}
	return out
}

// sbiLayout records where each header column sits in the text.
type sbiLayout struct {
	names  columns
	tokens []textToken
	date   int
	desc   int
	ref    int
	debit  int
	credit int
	bal    int
}

func sbiHeader(line string) (*sbiLayout, bool) {
	l := strings.ToLower(line)
	if !strings.Contains(l, "txn date") || !strings.Contains(l, "debit") ||
		!strings.Contains(l, "credit") || !strings.Contains(l, "balance") {
		return nil, false
	}
	toks := textTokens(line)
	names := make([]string, len(toks))
	for i, t := range toks {
		names[i] = t.text
	}
	cols := newColumns(names)
	layout := &sbiLayout{
		names:  cols,
		tokens: toks,
		date:   cols.find("txn date"),
		desc:   cols.find("description", "narration", "particulars"),
		ref:    cols.find("ref no", "cheque no", "chq"),
		debit:  cols.find("debit"),
		credit: cols.find("credit"),
		bal:    cols.find("balance"),
	}
	if layout.date < 0 || layout.debit < 0 || layout.credit < 0 || layout.bal < 0 {
		return nil, false
	}
	return layout, true
}

func (p *SBIParser) ParseWithStats(buf []byte, userID string) (*Result, error) {
	lines := splitLines(buf)
	for i := range lines {
		lines[i] = strings.ReplaceAll(lines[i], "\t", "    ")
	}

	hdr := -1
	var layout *sbiLayout
	for i, line := range lines {
		if l, ok := sbiHeader(line); ok {
			hdr, layout = i, l
			break
		}
	}
	if hdr < 0 {
		return nil, &domain.HeaderNotFoundError{
			Format: string(FormatSBI),
			Reason: "expected a Txn Date ... Debit Credit Balance header line",
		}
	}

	var rows []row
	for i := hdr + 1; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "**this is a computer generated") {
			break
		}
		if trimmed == "" {
			continue
		}
		if _, ok := sbiHeader(line); ok {
			// Header repeated at the top of a new page.
			continue
		}

		toks := textTokens(line)
		date, ok := ParseDate(toks[0].text)
		if !ok {
			if p.continuation(layout, toks) && len(rows) > 0 {
				prev := &rows[len(rows)-1]
				prev.description = cleanDescription(prev.description + " " + trimmed)
				continue
			}
			rows = append(rows, row{line: i + 1})
			continue
		}

		r := row{line: i + 1, date: date}
		if p.fitsColumns(layout, toks) {
			p.positional(layout, toks, &r)
		} else {
			p.aligned(layout, toks, &r)
		}
		rows = append(rows, r)
	}

	res := &Result{}
	emit(FormatSBI, userID, rows, res)
	return res, nil
}

// continuation reports whether a dateless line is wrapped description text:
// it must start under the description column and carry no amounts.
func (p *SBIParser) continuation(layout *sbiLayout, toks []textToken) bool {
	if layout.desc < 0 || toks[0].start+2 < layout.tokens[layout.desc].start {
		return false
	}
	for _, t := range toks {
		if _, ok := ParseAmount(t.text); ok {
			return false
		}
	}
	return true
}

// fitsColumns reports whether a row has one token per header column with
// every amount cell printed as an amount or a dash and sitting under its own
// column. A description holding a double space splits into two tokens and
// shifts the rest of the row, which this rejects.
func (p *SBIParser) fitsColumns(layout *sbiLayout, toks []textToken) bool {
	if len(toks) != len(layout.tokens) {
		return false
	}
	targets := []int{layout.debit, layout.credit, layout.bal}
	for _, col := range targets {
		t := toks[col]
		if !printedAmount(t.text) && strings.Trim(t.text, "-") != "" {
			return false
		}
		if nearestColumn(layout, targets, t) != col {
			return false
		}
	}
	return true
}

func nearestColumn(layout *sbiLayout, targets []int, t textToken) int {
	nearest, best := -1, math.MaxInt
	for _, col := range targets {
		if d := abs(layout.tokens[col].end - t.end); d < best {
			nearest, best = col, d
		}
	}
	return nearest
}

// positional maps a row that has one token per header column.
func (p *SBIParser) positional(layout *sbiLayout, toks []textToken, r *row) {
	if layout.desc >= 0 {
		r.description = cleanDescription(toks[layout.desc].text)
	}
	if v, ok := parseDecimal(toks[layout.debit].text); ok {
		r.debit = v.Abs()
	}
	if v, ok := parseDecimal(toks[layout.credit].text); ok {
		r.credit = v.Abs()
	}
	if v, ok := parseDecimal(toks[layout.bal].text); ok {
		r.balance, r.hasBalance = v, true
	}
}

// aligned assigns trailing amount tokens to the nearest of the debit, credit
// and balance columns by right edge. The remaining text after the dates,
// less the reference number, is the description.
func (p *SBIParser) aligned(layout *sbiLayout, toks []textToken, r *row) {
	first := len(toks)
	for first > 1 && len(toks)-first < 3 {
		t := toks[first-1].text
		if !printedAmount(t) && strings.Trim(t, "-") != "" {
			break
		}
		first--
	}

	targets := []int{layout.debit, layout.credit, layout.bal}
	for _, t := range toks[first:] {
		if !printedAmount(t.text) {
			continue
		}
		v, _ := parseDecimal(t.text)
		switch nearestColumn(layout, targets, t) {
		case layout.debit:
			r.debit = v.Abs()
		case layout.credit:
			r.credit = v.Abs()
		case layout.bal:
			r.balance, r.hasBalance = v, true
		}
	}

	var desc []string
	for j, t := range toks[1:first] {
		if j == 0 {
			if _, isDate := ParseDate(t.text); isDate {
				continue
			}
		}
		if layout.ref >= 0 && abs(t.start-layout.tokens[layout.ref].start) <= 2 {
			continue
		}
		desc = append(desc, t.text)
	}
	r.description = cleanDescription(strings.Join(desc, " "))
}

// printedAmount reports whether s looks like a statement amount, which SBI
// always prints with decimals. This keeps numeric reference numbers out of
// the amount columns.
func printedAmount(s string) bool {
	if !strings.Contains(s, ".") {
		return false
	}
	_, ok := ParseAmount(s)
	return ok
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
