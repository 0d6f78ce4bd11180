// Package blob fetches and stores statement files.
package blob

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// Store is the blob port used by the ingestion pipeline. Fetch and write
// failures are returned as *domain.RetryableError.
type Store interface {
	GetBlob(ctx context.Context, key string) ([]byte, error)
	PutBlob(ctx context.Context, key string, data []byte, contentType string) error
}

// ParseKey splits a blob key into bucket and object. A key is either a
// gs://bucket/object URI or a bare object name resolved against
// defaultBucket.
func ParseKey(key, defaultBucket string) (bucket, object string, err error) {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(key, "gs://") {
		parts := strings.SplitN(strings.TrimPrefix(key, "gs://"), "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("invalid blob URI (no object path): %s", key)
		}
		return parts[0], parts[1], nil
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", "", fmt.Errorf("empty blob key")
	}
	if defaultBucket == "" {
		return "", "", fmt.Errorf("blob key %q has no bucket and no default bucket is configured", key)
	}
	return defaultBucket, key, nil
}

// Filename returns the last path element of a key.
// e.g., "gs://bucket/statements/aug.csv" → "aug.csv"
func Filename(key string) string {
	return path.Base(strings.TrimPrefix(key, "gs://"))
}

// MemoryStore keeps blobs in memory. Used for tests and local dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	types map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte), types: make(map[string]string)}
}

func (m *MemoryStore) GetBlob(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[key]
	if !ok {
		return nil, &domain.RetryableError{Op: "GetBlob " + key, Err: domain.ErrNotFound}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryStore) PutBlob(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	m.blobs[key] = buf
	m.types[key] = contentType
	return nil
}

// ContentType returns the content type recorded for key.
func (m *MemoryStore) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[key]
}

var _ Store = (*MemoryStore)(nil)
