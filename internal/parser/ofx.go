package parser

import (
	"regexp"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// OFXParser reads OFX/QFX downloads, both SGML (v1) and XML (v2). The sign of
// TRNAMT decides the side: negative amounts are debits.
type OFXParser struct{}

func NewOFXParser() *OFXParser {
	return &OFXParser{}
}

func (p *OFXParser) Format() Format {
	return FormatOFX
}

func (p *OFXParser) Parse(buf []byte, userID string) ([]domain.Transaction, error) {
	res, err := p.ParseWithStats(buf, userID)
	if err != nil {
		return nil, err
	}
	return res.Transactions, nil
}

var (
	ofxSeverity = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)`)
	ofxOpenTag  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocess repairs the formatting slips banks commonly ship: leading blank
// lines, mixed-case severities and opening tags missing their bracket.
func (p *OFXParser) preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n\ufeff")
	content = ofxSeverity.ReplaceAllStringFunc(content, strings.ToUpper)
	return ofxOpenTag.ReplaceAllString(content, "$1>")
}

func (p *OFXParser) ParseWithStats(buf []byte, userID string) (*Result, error) {
	content := string(buf)
	if !strings.Contains(strings.ToUpper(content), "<OFX>") {
		return nil, &domain.HeaderNotFoundError{Format: string(FormatOFX), Reason: "missing <OFX> root element"}
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocess(content)))
	if err != nil {
		return nil, &domain.HeaderNotFoundError{Format: string(FormatOFX), Reason: err.Error()}
	}

	var txns []ofxgo.Transaction
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			txns = append(txns, stmt.BankTranList.Transactions...)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			txns = append(txns, stmt.BankTranList.Transactions...)
		}
	}

	rows := make([]row, 0, len(txns))
	for _, t := range txns {
		r := row{description: ofxDescription(t)}
		if !t.DtPosted.IsZero() {
			r.date = civil.DateOf(t.DtPosted.Time)
		}
		amount := decimal.NewFromBigRat(&t.TrnAmt.Rat, 4)
		if amount.IsNegative() {
			r.debit = amount.Neg()
		} else {
			r.credit = amount
		}
		rows = append(rows, r)
	}

	res := &Result{}
	emit(FormatOFX, userID, rows, res)
	return res, nil
}

// ofxDescription prefers NAME, falls back to the payee, and appends MEMO when
// it adds information.
func ofxDescription(t ofxgo.Transaction) string {
	name := string(t.Name)
	if name == "" && t.Payee != nil {
		name = string(t.Payee.Name)
	}
	memo := strings.TrimSpace(string(t.Memo))
	if memo != "" && !strings.EqualFold(memo, name) {
		if name == "" {
			name = memo
		} else {
			name += " " + memo
		}
	}
	return cleanDescription(name)
}
