package parser

import (
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>Info
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240105120000[0:GMT]
<TRNAMT>2500.00
<FITID>2024010501
<NAME>ACME PAYROLL
<MEMO>ACH CREDIT
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>STARBUCKS STORE #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>OTHER
<DTPOSTED>20240116120000[0:GMT]
<TRNAMT>0.00
<FITID>2024011601
<NAME>AUTHORIZATION HOLD
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func TestOFXParser_Statement(t *testing.T) {
	res, err := NewOFXParser().ParseWithStats([]byte(sampleBankOFX), "u4")
	require.NoError(t, err)

	require.Len(t, res.Transactions, 2)
	assert.Equal(t, 1, res.Skipped)

	credit := res.Transactions[0]
	assert.Equal(t, "ACME PAYROLL ACH CREDIT", credit.Description)
	assert.Equal(t, 2500.0, credit.Credit)
	assert.Equal(t, 0.0, credit.Debit)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 5}, credit.TxnDate)
	assert.Equal(t, "u4#20240105#0", credit.TransactionID)
	assert.Nil(t, credit.Balance)

	debit := res.Transactions[1]
	assert.Equal(t, "STARBUCKS STORE #1234", debit.Description)
	assert.InDelta(t, 25.5, debit.Debit, 1e-9)
	assert.Equal(t, 0.0, debit.Credit)
	assert.Equal(t, "u4#20240115#1", debit.TransactionID)
}

func TestOFXParser_HeaderNotFound(t *testing.T) {
	tests := []struct {
		name string
		buf  string
	}{
		{"empty", ""},
		{"not ofx", "not valid OFX"},
		{"broken body", "OFXHEADER:100\n<OFX>\n<garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOFXParser().Parse([]byte(tt.buf), "u4")
			var hnf *domain.HeaderNotFoundError
			require.True(t, errors.As(err, &hnf))
			assert.Equal(t, "OFX", hnf.Format)
		})
	}
}
