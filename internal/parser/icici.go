package parser

import (
	"strings"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// ICICIParser reads the ICICI delimited export, which carries a single amount
// column and a Cr/Dr indicator:
//
//	S No.,Value Date,Transaction Date,Cheque Number,Transaction Remarks,Amount,Cr/Dr,Balance
//
// Dates are dd-mm-yyyy. Amounts may be parenthesized; the indicator column,
// when present, decides the side. The table ends at a blank line or at the
// Legends section.
type ICICIParser struct{}

func NewICICIParser() *ICICIParser {
	return &ICICIParser{}
}

func (p *ICICIParser) Format() Format {
	return FormatICICI
}

func (p *ICICIParser) Parse(buf []byte, userID string) ([]domain.Transaction, error) {
	res, err := p.ParseWithStats(buf, userID)
	if err != nil {
		return nil, err
	}
	return res.Transactions, nil
}

func (p *ICICIParser) ParseWithStats(buf []byte, userID string) (*Result, error) {
	lines := splitLines(buf)

	hdr, cols := -1, columns(nil)
	for i, line := range lines {
		rec, err := splitCSVLine(line)
		if err != nil || len(rec) < 3 {
			continue
		}
		c := newColumns(rec)
		if c.find("cr/dr") >= 0 && c.find("amount") >= 0 &&
			c.find("transaction date", "value date", "date") >= 0 {
			hdr, cols = i, c
			break
		}
	}
	if hdr < 0 {
		return nil, &domain.HeaderNotFoundError{
			Format: string(FormatICICI),
			Reason: "expected Transaction Date, Amount and Cr/Dr columns",
		}
	}

	var (
		dateCol    = cols.find("transaction date", "value date", "date")
		descCol    = cols.find("transaction remarks", "remarks", "description", "particulars", "narration")
		amountCol  = cols.find("amount")
		sideCol    = cols.find("cr/dr")
		balanceCol = cols.find("balance")
	)

	var rows []row
	seenData := false
	for i := hdr + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(strings.ToLower(line), "legends") {
			break
		}
		rec, err := splitCSVLine(line)
		if line == "" || err != nil || isBlankRecord(rec) {
			if seenData {
				break
			}
			continue
		}
		seenData = true

		r := row{line: i + 1}
		r.date, _ = ParseDate(cell(rec, dateCol))
		r.description = cleanDescription(cell(rec, descCol))

		amount, indicator := splitIndicator(cell(rec, amountCol))
		if ind := cell(rec, sideCol); ind != "" {
			indicator = ind
		}
		if v, ok := parseDecimal(amount); ok && !v.IsZero() {
			switch sideIndicator(indicator) {
			case domain.SideCredit:
				r.credit = v.Abs()
			case domain.SideDebit:
				r.debit = v.Abs()
			default:
				if v.IsNegative() {
					r.debit = v.Neg()
				} else {
					r.credit = v
				}
			}
		}
		if v, ok := parseDecimal(cell(rec, balanceCol)); ok {
			r.balance, r.hasBalance = v, true
		}
		rows = append(rows, r)
	}

	res := &Result{}
	emit(FormatICICI, userID, rows, res)
	return res, nil
}

// splitIndicator separates a trailing "Cr"/"Dr" marker from an amount cell.
func splitIndicator(s string) (amount, indicator string) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	for _, suffix := range []string{"CR", "DR"} {
		if strings.HasSuffix(upper, suffix) {
			return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s[:len(s)-2]), ".")), suffix
		}
	}
	return s, ""
}

func sideIndicator(s string) domain.Side {
	switch strings.ToUpper(strings.Trim(strings.TrimSpace(s), ".")) {
	case "CR", "C", "CREDIT":
		return domain.SideCredit
	case "DR", "D", "DEBIT":
		return domain.SideDebit
	}
	return domain.SideAny
}
