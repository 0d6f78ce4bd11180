package sqlite

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-ingest/internal/changefeed"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/jobs"
	"github.com/dvloznov/ledger-ingest/internal/parser"
	"github.com/dvloznov/ledger-ingest/internal/rules"
	"github.com/dvloznov/ledger-ingest/internal/txstore"
)

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func openTestDB(t *testing.T) (*DB, *testClock) {
	t.Helper()
	d, err := OpenMigrated(context.Background(), ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	clock := &testClock{t: time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)}
	d.now = clock.now
	return d, clock
}

func sampleTxn(id string, day int) domain.Transaction {
	return domain.Transaction{
		TenantID:      "t1",
		UserID:        "u1",
		TransactionID: id,
		Institution:   "HDFC",
		Description:   "UPI-SWIGGY " + id,
		TxnDate:       civil.Date{Year: 2025, Month: time.August, Day: day},
		Debit:         450,
		Balance:       domain.Float64(9550),
		CreatedAt:     time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	d, _ := openTestDB(t)
	require.NoError(t, d.Migrate(context.Background()))

	var version int
	require.NoError(t, d.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, SchemaVersion, version)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("", zerolog.Nop())
	assert.Error(t, err)
}

func TestOpen_File(t *testing.T) {
	path := t.TempDir() + "/nested/ledger.db"
	d, err := OpenMigrated(context.Background(), path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, d.Close())

	// Reopening an up-to-date database applies nothing.
	d, err = OpenMigrated(context.Background(), path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestTransactionRepository_InsertGet(t *testing.T) {
	d, _ := openTestDB(t)
	repo := NewTransactionRepository(d, true)
	ctx := context.Background()

	txn := sampleTxn("u1#20250802#0", 2)
	require.NoError(t, repo.Insert(ctx, txn))
	assert.ErrorIs(t, repo.Insert(ctx, txn), domain.ErrDuplicate)

	got, err := repo.Get(ctx, "t1", txn.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, txn.TxnDate, got.TxnDate)
	assert.Equal(t, txn.Description, got.Description)
	assert.Equal(t, 450.0, got.Debit)
	require.NotNil(t, got.Balance)
	assert.Equal(t, 9550.0, *got.Balance)
	assert.Nil(t, got.Confidence)
	assert.True(t, txn.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.UpdatedAt)

	_, err = repo.Get(ctx, "t2", txn.TransactionID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactionRepository_Lists(t *testing.T) {
	d, _ := openTestDB(t)
	repo := NewTransactionRepository(d, true)
	ctx := context.Background()

	for i, day := range []int{20, 1, 10} {
		txn := sampleTxn(string(rune('a'+i)), day)
		require.NoError(t, repo.Insert(ctx, txn))
	}
	other := sampleTxn("z", 5)
	other.UserID = "u2"
	require.NoError(t, repo.Insert(ctx, other))

	byUser, err := repo.ListByUser(ctx, "t1", "u1")
	require.NoError(t, err)
	require.Len(t, byUser, 3)
	assert.Equal(t, []int{1, 10, 20}, []int{byUser[0].TxnDate.Day, byUser[1].TxnDate.Day, byUser[2].TxnDate.Day})

	ranged, err := repo.ListByDateRange(ctx, "t1",
		civil.Date{Year: 2025, Month: time.August, Day: 5},
		civil.Date{Year: 2025, Month: time.August, Day: 10})
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, "z", ranged[0].TransactionID)
	assert.Equal(t, "c", ranged[1].TransactionID)
}

func TestTransactionRepository_UpdateAndDelete(t *testing.T) {
	d, clock := openTestDB(t)
	repo := NewTransactionRepository(d, true)
	ctx := context.Background()

	txn := sampleTxn("id-1", 2)
	require.NoError(t, repo.Insert(ctx, txn))

	upd := domain.CategoryUpdate{
		Category:    domain.CategoryExpenses,
		SubCategory: domain.SubFood,
		TaggedBy:    domain.TaggedByRuleEngine,
		Confidence:  domain.Float64(0.9),
		Reason:      "Food and dining",
		Embedding:   []float32{0.25, -1},
	}
	require.NoError(t, repo.UpdateCategory(ctx, "t1", "id-1", upd, clock.now()))

	got, err := repo.Get(ctx, "t1", "id-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryExpenses, got.Category)
	assert.Equal(t, domain.SubFood, got.SubCategory)
	assert.Equal(t, 0.9, *got.Confidence)
	assert.Equal(t, []float32{0.25, -1}, got.Embedding)
	require.NotNil(t, got.UpdatedAt)
	assert.True(t, clock.now().Equal(*got.UpdatedAt))
	assert.Equal(t, txn.Description, got.Description)

	assert.ErrorIs(t, repo.UpdateCategory(ctx, "t1", "missing", upd, clock.now()), domain.ErrNotFound)

	require.NoError(t, repo.SoftDelete(ctx, "t1", "id-1", clock.now()))
	got, err = repo.Get(ctx, "t1", "id-1")
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())
	assert.ErrorIs(t, repo.SoftDelete(ctx, "t1", "missing", clock.now()), domain.ErrNotFound)
}

func TestTransactionRepository_ChangeFeed(t *testing.T) {
	d, clock := openTestDB(t)
	repo := NewTransactionRepository(d, true)
	feed := NewChangeFeed(d, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, sampleTxn("id-1", 2)))
	require.ErrorIs(t, repo.Insert(ctx, sampleTxn("id-1", 2)), domain.ErrDuplicate)
	require.NoError(t, repo.UpdateCategory(ctx, "t1", "id-1",
		domain.CategoryUpdate{Category: domain.CategoryExpenses}, clock.now()))
	require.NoError(t, repo.SoftDelete(ctx, "t1", "id-1", clock.now()))

	records, err := feed.Poll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, changefeed.EventInsert, records[0].EventName)
	require.NotNil(t, records[0].NewImage)
	assert.Equal(t, "id-1", records[0].NewImage.TransactionID)
	assert.Empty(t, records[0].NewImage.Category)

	assert.Equal(t, changefeed.EventModify, records[1].EventName)
	assert.Equal(t, domain.CategoryExpenses, records[1].NewImage.Category)

	assert.Equal(t, changefeed.EventRemove, records[2].EventName)
	assert.Nil(t, records[2].NewImage)

	// Leased records are hidden until released or the lease expires.
	again, err := feed.Poll(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, feed.Ack(ctx, []int64{records[0].Seq, records[2].Seq}))
	require.NoError(t, feed.Release(ctx, []int64{records[1].Seq}))

	again, err = feed.Poll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, records[1].Seq, again[0].Seq)

	clock.advance(2 * time.Minute)
	expired, err := feed.Poll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	require.NoError(t, feed.Ack(ctx, []int64{expired[0].Seq}))
	n, err := feed.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTransactionRepository_NoChangeFeed(t *testing.T) {
	d, clock := openTestDB(t)
	repo := NewTransactionRepository(d, false)
	feed := NewChangeFeed(d, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, sampleTxn("id-1", 2)))
	require.NoError(t, repo.UpdateCategory(ctx, "t1", "id-1",
		domain.CategoryUpdate{Category: domain.CategoryExpenses}, clock.now()))
	require.NoError(t, repo.SoftDelete(ctx, "t1", "id-1", clock.now()))

	n, err := feed.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := repo.Get(ctx, "t1", "id-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryExpenses, got.Category)
}

const hdfcCSV = "Date,Narration,Withdrawal Amt.,Deposit Amt.,Closing Balance\n" +
	"01/08/25,Salary,,10000,10000\n" +
	"02/08/25,UPI-SWIGGY,450,,9550\n" +
	"02/08/25,UPI-ZOMATO,300,,9250\n"

func TestTransactionStore_IdempotentReingestion(t *testing.T) {
	d, _ := openTestDB(t)
	store := txstore.NewStore(NewTransactionRepository(d, true), zerolog.Nop(), 2)
	ctx := context.Background()

	ids := func() []string {
		txns, err := store.GetUserTransactions(ctx, "t1", "u1")
		require.NoError(t, err)
		var out []string
		for _, txn := range txns {
			out = append(out, txn.TransactionID)
		}
		return out
	}

	for i := 0; i < 2; i++ {
		txns, err := parser.NewHDFCParser().Parse([]byte(hdfcCSV), "u1")
		require.NoError(t, err)
		summary, err := store.SaveTransactions(ctx, "t1", txns)
		require.NoError(t, err)
		if i == 0 {
			assert.Equal(t, txstore.SaveSummary{Inserted: 3}, summary)
		} else {
			assert.Equal(t, txstore.SaveSummary{Duplicates: 3}, summary)
		}
	}
	assert.Equal(t, []string{"u1#20250801#0", "u1#20250802#1", "u1#20250802#2"}, ids())
}

func TestRuleRepository(t *testing.T) {
	d, _ := openTestDB(t)
	repo := NewRuleRepository(d)
	ctx := context.Background()
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	mk := func(src string, side domain.Side, at time.Duration) domain.Rule {
		p := domain.Pattern{Source: src, Flags: "i"}
		return domain.Rule{
			RuleID:      domain.RuleID("t1", p, side),
			TenantID:    "t1",
			Pattern:     p,
			Category:    domain.CategoryExpenses,
			SubCategory: domain.SubFood,
			Side:        side,
			Confidence:  domain.Float64(0.8),
			TaggedBy:    domain.TaggedByRuleEngine,
			CreatedAt:   base.Add(at),
		}
	}
	swiggyDebit := mk("swiggy", domain.SideDebit, 2*time.Microsecond)
	swiggyAny := mk("swiggy", domain.SideAny, 3*time.Microsecond)
	zomato := mk("zomato", domain.SideDebit, time.Microsecond)

	require.NoError(t, repo.PutRules(ctx, []domain.Rule{swiggyDebit, zomato}))

	changed := swiggyDebit
	changed.Reason = "ignored"
	require.NoError(t, repo.PutRules(ctx, []domain.Rule{changed, swiggyAny}))

	got, err := repo.ListByTenant(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{zomato.RuleID, swiggyDebit.RuleID, swiggyAny.RuleID},
		[]string{got[0].RuleID, got[1].RuleID, got[2].RuleID})
	assert.Empty(t, got[1].Reason)
	assert.Equal(t, 0.8, *got[1].Confidence)
	assert.Equal(t, domain.Pattern{Source: "swiggy", Flags: "i"}, got[1].Pattern)

	require.NoError(t, repo.DeletePatternExcept(ctx, "t1", swiggyAny.Pattern, swiggyAny.RuleID))
	got, err = repo.ListByTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	legacy := mk("/zomato/i", domain.SideAny, 4*time.Microsecond)
	legacy.Pattern.Flags = ""
	legacy.RuleID = "legacy-zomato"
	require.NoError(t, repo.PutRules(ctx, []domain.Rule{legacy}))
	require.NoError(t, repo.DeletePatternExcept(ctx, "t1", zomato.Pattern, zomato.RuleID))
	got, err = repo.ListByTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{zomato.RuleID, swiggyAny.RuleID}, []string{got[0].RuleID, got[1].RuleID})

	require.NoError(t, repo.DeleteRule(ctx, "t1", zomato.RuleID))
	assert.ErrorIs(t, repo.DeleteRule(ctx, "t1", zomato.RuleID), domain.ErrNotFound)
}

func TestRuleStore_OnSQLite(t *testing.T) {
	d, _ := openTestDB(t)
	s := rules.NewStore(NewRuleRepository(d), zerolog.Nop(), domain.GlobalTenant, 0)
	ctx := context.Background()

	n, err := s.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(rules.DefaultRules()), n)

	_, err = s.AddRule(ctx, domain.Rule{
		TenantID: "t1",
		Pattern:  domain.Pattern{Source: `\bsalary\b`, Flags: "i"},
		Category: domain.CategoryIncome,
	})
	require.NoError(t, err)

	compiled, err := s.GetRulesByTenant(ctx, "t1")
	require.NoError(t, err)
	require.NotEmpty(t, compiled)
	assert.Equal(t, "t1", compiled[0].TenantID)
	assert.Equal(t, domain.GlobalTenant, compiled[1].TenantID)
	assert.True(t, compiled[1].Matcher.MatchString("salary credited via ach"))
}

func TestQueue_SendReceiveDelete(t *testing.T) {
	d, clock := openTestDB(t)
	q := NewQueue(d, time.Minute)
	ctx := context.Background()

	job := jobs.NewStatementJob("HDFC", "gs://b/aug.csv", "t1", "u1", "SAVINGS")
	require.NoError(t, q.Send(ctx, job))
	assert.Error(t, q.Send(ctx, &jobs.StatementJob{JobID: "x"}))

	msgs, err := q.Receive(ctx, 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, job.JobID, msgs[0].Job.JobID)
	assert.Equal(t, "SAVINGS", msgs[0].Job.AccountType)
	assert.Equal(t, 1, msgs[0].ReceiveCount)

	hidden, err := q.Receive(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, hidden)

	clock.advance(time.Minute)
	redelivered, err := q.Receive(ctx, 5)
	require.NoError(t, err)
	require.Len(t, redelivered, 1)
	assert.Equal(t, 2, redelivered[0].ReceiveCount)

	assert.ErrorIs(t, q.Delete(ctx, msgs[0].ReceiptHandle), domain.ErrNotFound)
	require.NoError(t, q.Delete(ctx, redelivered[0].ReceiptHandle))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJobStatusStore(t *testing.T) {
	d, _ := openTestDB(t)
	s := NewJobStatusStore(d)
	ctx := context.Background()
	at := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	rec := &jobs.Record{JobID: "j1", TenantID: "t1", BlobKey: "k", Status: jobs.JobStatusRunning, Attempts: 1, UpdatedAt: at}
	require.NoError(t, s.SaveRecord(ctx, rec))

	rec.Status = jobs.JobStatusCompleted
	rec.Inserted = 3
	rec.UpdatedAt = at.Add(time.Second)
	require.NoError(t, s.SaveRecord(ctx, rec))
	require.NoError(t, s.SaveRecord(ctx, &jobs.Record{JobID: "j2", TenantID: "t2", BlobKey: "k", Status: jobs.JobStatusFailed, UpdatedAt: at}))

	got, err := s.GetRecord(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusCompleted, got.Status)
	assert.Equal(t, 3, got.Inserted)
	assert.True(t, at.Add(time.Second).Equal(got.UpdatedAt))

	_, err = s.GetRecord(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := s.ListRecords(ctx, jobs.Filter{TenantID: "t1"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = s.ListRecords(ctx, jobs.Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "j1", list[0].JobID)
}
