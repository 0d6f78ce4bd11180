package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-ingest/internal/changefeed"
	"github.com/dvloznov/ledger-ingest/internal/config"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/jobs"
	"github.com/dvloznov/ledger-ingest/internal/logger"
	"github.com/dvloznov/ledger-ingest/internal/worker"
)

const statement = `Date,Narration,Withdrawal Amt.,Deposit Amt.,Closing Balance
01/08/25,NEFT CR-ACME PAYROLL,,100000.00,120000.00
02/08/25,UPI-SWIGGY-FOOD,450.00,,119550.00
03/08/25,MISC TRANSFER 9911,10.00,,119540.00
`

func testConfig(t *testing.T, mode string) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("LEDGER_STORAGE_SQLITE_PATH", filepath.Join(t.TempDir(), "ledger.db"))
	t.Setenv("LEDGER_CATEGORIZE_MODE", mode)

	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func newApp(t *testing.T, mode string) *App {
	t.Helper()
	a, err := New(context.Background(), testConfig(t, mode), logger.Nop(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.Rules.SeedDefaults(context.Background())
	require.NoError(t, err)
	return a
}

func enqueue(t *testing.T, a *App) *jobs.StatementJob {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.Blobs.PutBlob(ctx, "uploads/u1/aug.csv", []byte(statement), "text/csv"))
	job := jobs.NewStatementJob("HDFC", "uploads/u1/aug.csv", "t1", "u1", "savings")
	require.NoError(t, a.Queue.Send(ctx, job))
	return job
}

func processQueue(t *testing.T, a *App) {
	t.Helper()
	ctx := context.Background()
	w := worker.NewFileWorker(a.Queue, a.Pipeline(), a.Statuses, a.Log, worker.FileWorkerOptions{BatchSize: 10})
	msgs, err := a.Queue.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Empty(t, w.HandleBatch(ctx, msgs))
}

func TestApp_StreamMode(t *testing.T) {
	ctx := context.Background()
	a := newApp(t, "stream")
	require.NotNil(t, a.Feed)
	assert.False(t, a.DirectMode())

	job := enqueue(t, a)
	processQueue(t, a)

	rec, err := a.Statuses.GetRecord(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusCompleted, rec.Status)
	assert.Equal(t, 3, rec.Inserted)

	saved, err := a.Transactions.GetTransaction(ctx, "t1", "u1#20250801#0")
	require.NoError(t, err)
	assert.False(t, saved.IsCategorized())

	runner := changefeed.NewRunner(a.Feed, a.Log, 25, 0)
	n, err := runner.RunOnce(ctx, worker.NewStreamWorker(a.Categorizer, a.Log))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	salary, err := a.Transactions.GetTransaction(ctx, "t1", "u1#20250801#0")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryIncome, salary.Category)
	assert.Equal(t, domain.SubSalary, salary.SubCategory)
	assert.Equal(t, domain.TaggedByRuleEngine, salary.TaggedBy)

	food, err := a.Transactions.GetTransaction(ctx, "t1", "u1#20250802#1")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryExpenses, food.Category)
	assert.Equal(t, domain.SubFood, food.SubCategory)

	misc, err := a.Transactions.GetTransaction(ctx, "t1", "u1#20250803#2")
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonNoRuleMatched, misc.Reason)

	// The MODIFY events written by categorization carry a category and are
	// consumed without writing again.
	n, err = runner.RunOnce(ctx, worker.NewStreamWorker(a.Categorizer, a.Log))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = runner.RunOnce(ctx, worker.NewStreamWorker(a.Categorizer, a.Log))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApp_DirectMode(t *testing.T) {
	ctx := context.Background()
	a := newApp(t, "direct")
	assert.True(t, a.DirectMode())
	assert.Nil(t, a.Feed)

	enqueue(t, a)
	processQueue(t, a)

	salary, err := a.Transactions.GetTransaction(ctx, "t1", "u1#20250801#0")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryIncome, salary.Category)
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, "stream"), logger.Nop(), Options{})
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
