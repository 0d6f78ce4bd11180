package changefeed

import (
	"context"
	"sort"
	"sync"
)

// MemorySource is an in-memory Source for tests and single-process runs.
type MemorySource struct {
	mu      sync.Mutex
	nextSeq int64
	pending map[int64]Record
	leased  map[int64]Record
}

func NewMemorySource() *MemorySource {
	return &MemorySource{pending: make(map[int64]Record), leased: make(map[int64]Record)}
}

// Publish appends a record and returns its sequence number.
func (m *MemorySource) Publish(rec Record) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSeq++
	rec.Seq = m.nextSeq
	m.pending[rec.Seq] = rec
	return rec.Seq
}

func (m *MemorySource) Poll(ctx context.Context, max int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	seqs := make([]int64, 0, len(m.pending))
	for seq := range m.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	var out []Record
	for _, seq := range seqs {
		if len(out) == max {
			break
		}
		rec := m.pending[seq]
		delete(m.pending, seq)
		m.leased[seq] = rec
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemorySource) Ack(_ context.Context, seqs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, seq := range seqs {
		delete(m.leased, seq)
	}
	return nil
}

func (m *MemorySource) Release(_ context.Context, seqs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, seq := range seqs {
		if rec, ok := m.leased[seq]; ok {
			delete(m.leased, seq)
			m.pending[seq] = rec
		}
	}
	return nil
}

// Pending returns the number of records waiting to be polled.
func (m *MemorySource) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

var _ Source = (*MemorySource)(nil)
