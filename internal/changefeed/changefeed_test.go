package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

type handlerFunc func(ctx context.Context, records []Record) []BatchItemFailure

func (f handlerFunc) HandleBatch(ctx context.Context, records []Record) []BatchItemFailure {
	return f(ctx, records)
}

func TestRunner_AcksSuccessesReleasesFailures(t *testing.T) {
	src := NewMemorySource()
	for i := 0; i < 5; i++ {
		src.Publish(Record{EventName: EventInsert, NewImage: &domain.Transaction{TransactionID: "x"}})
	}

	r := NewRunner(src, zerolog.Nop(), 10, time.Millisecond)
	var seen []int64
	n, err := r.RunOnce(context.Background(), handlerFunc(func(_ context.Context, records []Record) []BatchItemFailure {
		for _, rec := range records {
			seen = append(seen, rec.Seq)
		}
		return []BatchItemFailure{{ItemIdentifier: records[2].ID()}}
	}))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, seen)
	assert.Equal(t, 1, src.Pending())

	retried, err := src.Poll(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, int64(3), retried[0].Seq)
}

func TestRunner_BatchSize(t *testing.T) {
	src := NewMemorySource()
	for i := 0; i < 3; i++ {
		src.Publish(Record{EventName: EventModify})
	}
	r := NewRunner(src, zerolog.Nop(), 2, time.Millisecond)
	ok := handlerFunc(func(context.Context, []Record) []BatchItemFailure { return nil })

	n, err := r.RunOnce(context.Background(), ok)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.RunOnce(context.Background(), ok)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.RunOnce(context.Background(), ok)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	src := NewMemorySource()
	src.Publish(Record{EventName: EventInsert})

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(src, zerolog.Nop(), 10, time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, handlerFunc(func(context.Context, []Record) []BatchItemFailure {
			cancel()
			return nil
		}))
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}
