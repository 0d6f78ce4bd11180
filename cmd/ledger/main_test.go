package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

const hdfcCSV = `Date,Narration,Withdrawal Amt.,Deposit Amt.,Closing Balance
01/08/25,NEFT CR-ACME PAYROLL,,100000.00,120000.00
02/08/25,UPI-SWIGGY-FOOD,450.00,,119550.00
xx/08/25,BROKEN ROW,,10.00,
03/08/25,ACME REALTY RENT,25000.00,,94550.00
`

type harness struct {
	t    *testing.T
	db   string
	file string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	file := filepath.Join(dir, "aug.csv")
	require.NoError(t, os.WriteFile(file, []byte(hdfcCSV), 0o600))
	return &harness{t: t, db: filepath.Join(dir, "ledger.db"), file: file}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append([]string{"--db", h.db}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "ledger %s", strings.Join(args, " "))
	return out
}

func TestParse(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("parse", h.file, "--user", "u1")
	assert.Contains(t, out, "u1#20250801#0")
	assert.Contains(t, out, "NEFT CR-ACME PAYROLL")
	assert.Contains(t, out, "HDFC: 3 parsed, 1 skipped")

	out = h.mustRun("parse", h.file, "--user", "u1", "--bank", "hdfc", "--json")
	var res struct {
		Transactions []domain.Transaction
		Skipped      int
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.Transactions, 3)
	assert.Equal(t, 1, res.Skipped)
}

func TestParse_UnknownBank(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("parse", h.file, "--bank", "CHASE")
	assert.Error(t, err)
}

func TestIngestAndReclassify(t *testing.T) {
	h := newHarness(t)

	assert.Contains(t, h.mustRun("rules", "seed"), "Seeded")

	out := h.mustRun("ingest", h.file, "--tenant", "t1", "--user", "u1")
	assert.Contains(t, out, "3 parsed, 1 skipped, 3 inserted, 0 duplicates, 3 categorized")

	// Re-ingesting the same file inserts nothing and keeps categories.
	out = h.mustRun("ingest", h.file, "--tenant", "t1", "--user", "u1")
	assert.Contains(t, out, "0 inserted, 3 duplicates, 0 categorized")

	out = h.mustRun("transactions", "list", "--tenant", "t1", "--user", "u1", "--json")
	var txns []domain.Transaction
	require.NoError(t, json.Unmarshal([]byte(out), &txns))
	require.Len(t, txns, 3)
	assert.Equal(t, domain.CategoryIncome, txns[0].Category)
	assert.Equal(t, domain.TaggedByRuleEngine, txns[0].TaggedBy)

	out = h.mustRun("reclassify", "u1#20250803#2", "--tenant", "t1",
		"--category", "EXPENSES", "--sub-category", "Rent", "--actor", "alex")
	assert.Contains(t, out, "u1#20250803#2 -> EXPENSES/RENT (by alex)")

	out = h.mustRun("transactions", "list", "--tenant", "t1", "--from", "2025-08-03", "--to", "2025-08-31", "--json")
	txns = nil
	require.NoError(t, json.Unmarshal([]byte(out), &txns))
	require.Len(t, txns, 1)
	assert.Equal(t, "alex", txns[0].TaggedBy)
	require.NotNil(t, txns[0].Confidence)
	assert.Equal(t, 1.0, *txns[0].Confidence)

	_, err := h.run("reclassify", "u1#20250803#2", "--tenant", "t1", "--category", "NOPE", "--actor", "alex")
	assert.Error(t, err)

	h.mustRun("transactions", "delete", "u1#20250803#2", "--tenant", "t1")
	out = h.mustRun("transactions", "list", "--tenant", "t1", "--from", "2025-08-01", "--to", "2025-08-31")
	assert.NotContains(t, out, "u1#20250803#2")
}

func TestTransactionsList_RequiresSelector(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("transactions", "list", "--tenant", "t1")
	assert.ErrorContains(t, err, "--user or --from/--to")
}

func TestRules(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("rules", "add", `/acme realty/i`, "--tenant", "t1",
		"--category", "EXPENSES", "--sub-category", "Rent", "--side", "debit", "--reason", "landlord")
	assert.Contains(t, out, "Added rule")
	assert.Contains(t, out, "/acme realty/i -> EXPENSES/RENT")

	out = h.mustRun("rules", "list", "--tenant", "t1", "--json")
	var rules []domain.Rule
	require.NoError(t, json.Unmarshal([]byte(out), &rules))
	require.Len(t, rules, 1)
	assert.Equal(t, domain.SideDebit, rules[0].Side)

	out = h.mustRun("rules", "categories", "--tenant", "t1")
	assert.Contains(t, out, "EXPENSES\n  acme realty\n")

	h.mustRun("rules", "remove", rules[0].RuleID, "--tenant", "t1")
	_, err := h.run("rules", "remove", rules[0].RuleID, "--tenant", "t1")
	assert.Error(t, err)

	_, err = h.run("rules", "add", "x", "--category", "NOPE")
	assert.Error(t, err)
}

func TestJobs_Empty(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("jobs", "list")
	assert.Contains(t, out, "JOB ID")

	_, err := h.run("jobs", "status", "missing")
	assert.Error(t, err)
}

func TestUpload_RequiresBucket(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("upload", h.file, "--tenant", "t1", "--user", "u1")
	assert.ErrorContains(t, err, "blob.bucket")
}
