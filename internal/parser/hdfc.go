package parser

import (
	"strings"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// HDFCParser reads the HDFC delimited export:
//
//	Date,Narration,Chq./Ref.No.,Value Dt,Withdrawal Amt.,Deposit Amt.,Closing Balance
//
// Dates are dd/mm/yy. Separator rows of asterisks may surround the data; the
// table ends at the first blank or separator row after data, or at the
// STATEMENT SUMMARY section.
type HDFCParser struct{}

func NewHDFCParser() *HDFCParser {
	return &HDFCParser{}
}

func (p *HDFCParser) Format() Format {
	return FormatHDFC
}

func (p *HDFCParser) Parse(buf []byte, userID string) ([]domain.Transaction, error) {
	res, err := p.ParseWithStats(buf, userID)
	if err != nil {
		return nil, err
	}
	return res.Transactions, nil
}

func (p *HDFCParser) ParseWithStats(buf []byte, userID string) (*Result, error) {
	lines := splitLines(buf)

	hdr, cols := -1, columns(nil)
	for i, line := range lines {
		rec, err := splitCSVLine(line)
		if err != nil || len(rec) < 3 {
			continue
		}
		c := newColumns(rec)
		if c.find("date") >= 0 && c.find("narration") >= 0 &&
			c.find("withdrawal") >= 0 && c.find("deposit") >= 0 {
			hdr, cols = i, c
			break
		}
	}
	if hdr < 0 {
		return nil, &domain.HeaderNotFoundError{
			Format: string(FormatHDFC),
			Reason: "expected Date, Narration, Withdrawal Amt. and Deposit Amt. columns",
		}
	}

	var (
		dateCol     = cols.find("date", "txn date", "transaction date")
		narrCol     = cols.find("narration")
		withdrawCol = cols.find("withdrawal amt", "withdrawal")
		depositCol  = cols.find("deposit amt", "deposit")
		balanceCol  = cols.find("closing balance", "balance")
	)

	var rows []row
	seenData := false
	for i := hdr + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(strings.ToUpper(line), "STATEMENT SUMMARY") {
			break
		}
		if line == "" || strings.HasPrefix(line, "*") {
			if seenData {
				break
			}
			continue
		}
		rec, err := splitCSVLine(line)
		if err != nil || isBlankRecord(rec) {
			if seenData {
				break
			}
			continue
		}
		seenData = true

		r := row{line: i + 1}
		r.date, _ = ParseDate(cell(rec, dateCol))
		r.description = cleanDescription(cell(rec, narrCol))
		if v, ok := parseDecimal(cell(rec, withdrawCol)); ok {
			r.debit = v.Abs()
		}
		if v, ok := parseDecimal(cell(rec, depositCol)); ok {
			r.credit = v.Abs()
		}
		if v, ok := parseDecimal(cell(rec, balanceCol)); ok {
			r.balance, r.hasBalance = v, true
		}
		rows = append(rows, r)
	}

	res := &Result{}
	emit(FormatHDFC, userID, rows, res)
	return res, nil
}
