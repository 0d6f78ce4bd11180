package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/jobs"
)

type entry struct {
	id           string
	job          jobs.StatementJob
	visibleAt    time.Time
	receipt      string
	receiveCount int
}

// Queue is an in-memory jobs.Queue with visibility-timeout redelivery. It is
// safe for concurrent use and suitable for single-process runs and tests.
type Queue struct {
	mu         sync.Mutex
	entries    []*entry
	visibility time.Duration
	now        func() time.Time
	closed     bool
}

// NewQueue creates a queue; visibility defaults to 30s when zero.
func NewQueue(visibility time.Duration) *Queue {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &Queue{visibility: visibility, now: time.Now}
}

// Send implements jobs.Queue.
func (q *Queue) Send(_ context.Context, job *jobs.StatementJob) error {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = q.now().UTC()
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("Send: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue is closed")
	}
	q.entries = append(q.entries, &entry{id: uuid.New().String(), job: *job, visibleAt: q.now()})
	return nil
}

// Receive implements jobs.Queue.
func (q *Queue) Receive(ctx context.Context, max int) ([]jobs.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, fmt.Errorf("queue is closed")
	}

	now := q.now()
	var out []jobs.Message
	for _, e := range q.entries {
		if len(out) == max {
			break
		}
		if e.visibleAt.After(now) {
			continue
		}
		e.receipt = uuid.New().String()
		e.receiveCount++
		e.visibleAt = now.Add(q.visibility)

		job := e.job
		out = append(out, jobs.Message{
			ID:            e.id,
			ReceiptHandle: e.receipt,
			Job:           &job,
			ReceiveCount:  e.receiveCount,
		})
	}
	return out, nil
}

// Delete implements jobs.Queue. A stale receipt handle, one issued before
// the message was redelivered, is rejected with domain.ErrNotFound.
func (q *Queue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.receipt == receiptHandle && receiptHandle != "" {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("Delete: receipt %s: %w", receiptHandle, domain.ErrNotFound)
}

// Len returns the number of undeleted messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close stops the queue; later calls fail.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

var _ jobs.Queue = (*Queue)(nil)
