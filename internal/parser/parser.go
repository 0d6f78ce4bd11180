// Package parser turns raw bank-statement files into canonical, uncommitted
// transactions. Each institution format has its own Parser; all of them share
// the date and amount normalization in normalize.go.
//
// Parsers are tolerant: a row that does not yield a valid date and a non-zero
// amount is skipped and counted. Only a missing header or anchor is an error,
// reported as *domain.HeaderNotFoundError.
package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"regexp"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// Format identifies a statement layout.
type Format string

const (
	FormatHDFC  Format = "HDFC"
	FormatICICI Format = "ICICI"
	FormatSBI   Format = "SBI"
	FormatOFX   Format = "OFX"
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{FormatHDFC, FormatICICI, FormatSBI, FormatOFX}
}

// ParseFormat maps a bank or format name onto a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HDFC", "HDFC_CSV":
		return FormatHDFC, nil
	case "ICICI", "ICICI_CSV":
		return FormatICICI, nil
	case "SBI", "SBI_TXT":
		return FormatSBI, nil
	case "OFX", "QFX":
		return FormatOFX, nil
	}
	return "", fmt.Errorf("parser: unsupported format %q", s)
}

// Result is the outcome of one parse.
type Result struct {
	Transactions []domain.Transaction
	// Skipped counts data rows dropped for lacking a date or an amount.
	Skipped int
	// SkippedLines holds the 1-based source line of each skipped row, where
	// the format has lines.
	SkippedLines []int
}

func (r *Result) skip(line int) {
	r.Skipped++
	if line > 0 {
		r.SkippedLines = append(r.SkippedLines, line)
	}
}

// Parser converts a statement buffer into transactions owned by userID.
type Parser interface {
	Format() Format
	Parse(buf []byte, userID string) ([]domain.Transaction, error)
	ParseWithStats(buf []byte, userID string) (*Result, error)
}

// New returns the parser for format.
func New(format Format) (Parser, error) {
	switch format {
	case FormatHDFC:
		return NewHDFCParser(), nil
	case FormatICICI:
		return NewICICIParser(), nil
	case FormatSBI:
		return NewSBIParser(), nil
	case FormatOFX:
		return NewOFXParser(), nil
	}
	return nil, fmt.Errorf("parser: unsupported format %q", format)
}

// Detect sniffs the format of buf from its header signals.
func Detect(buf []byte) (Format, error) {
	head := strings.ToLower(string(buf[:min(len(buf), 64*1024)]))
	if strings.Contains(head, "<ofx>") || strings.Contains(head, "ofxheader") {
		return FormatOFX, nil
	}
	for _, line := range splitLines(buf) {
		l := strings.ToLower(line)
		switch {
		case strings.Contains(l, "narration") && strings.Contains(l, "withdrawal"):
			return FormatHDFC, nil
		case strings.Contains(l, "cr/dr"):
			return FormatICICI, nil
		case strings.Contains(l, "txn date") && strings.Contains(l, "debit") && !strings.Contains(l, ","):
			return FormatSBI, nil
		}
	}
	return "", &domain.HeaderNotFoundError{Format: "unknown", Reason: "no known statement header"}
}

// newTransaction fills the fields every parser sets. Category fields are
// left for the categorization stage.
func newTransaction(f Format, userID string, seq int, r row) domain.Transaction {
	txn := domain.Transaction{
		UserID:        userID,
		TransactionID: TransactionID(userID, r.date, seq),
		Institution:   string(f),
		Description:   r.description,
		TxnDate:       r.date,
		Credit:        r.credit.InexactFloat64(),
		Debit:         r.debit.InexactFloat64(),
	}
	if r.hasBalance {
		txn.Balance = domain.Float64(r.balance.InexactFloat64())
	}
	return txn
}

// row is one normalized statement line before it becomes a transaction.
// Amounts stay decimal until the transaction is built.
type row struct {
	line        int
	date        civil.Date
	description string
	credit      decimal.Decimal
	debit       decimal.Decimal
	balance     decimal.Decimal
	hasBalance  bool
}

func (r row) valid() bool {
	return r.date.IsValid() && r.credit.IsPositive() != r.debit.IsPositive()
}

// emit converts rows into transactions, numbering only the rows kept.
func emit(f Format, userID string, rows []row, res *Result) {
	for _, r := range rows {
		if !r.valid() {
			res.skip(r.line)
			continue
		}
		res.Transactions = append(res.Transactions, newTransaction(f, userID, len(res.Transactions), r))
	}
}

// splitLines normalizes line endings and drops a UTF-8 byte order mark.
func splitLines(buf []byte) []string {
	buf = bytes.TrimPrefix(buf, []byte("\xef\xbb\xbf"))
	s := strings.ReplaceAll(string(buf), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

// splitCSVLine splits one delimited line, honouring quotes.
func splitCSVLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	rec, err := r.Read()
	if err != nil {
		return nil, err
	}
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	return rec, nil
}

func isBlankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9/]+`)

func headerKey(s string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(s), " "), " ")
}

// columns indexes a header record by normalized column name.
type columns []string

func newColumns(header []string) columns {
	c := make(columns, len(header))
	for i, h := range header {
		c[i] = headerKey(h)
	}
	return c
}

// find returns the first column whose name equals one of names, falling back
// to the first column that starts with one of them. It returns -1 if none does.
func (c columns) find(names ...string) int {
	for _, n := range names {
		for i, h := range c {
			if h == n {
				return i
			}
		}
	}
	for _, n := range names {
		for i, h := range c {
			if strings.HasPrefix(h, n) {
				return i
			}
		}
	}
	return -1
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func cleanDescription(s string) string {
	return strings.Join(strings.Fields(strings.Trim(s, `"`)), " ")
}
