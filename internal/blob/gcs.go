package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// GCSStore is a Store backed by Google Cloud Storage. It assumes
// Application Default Credentials unless client options say otherwise.
type GCSStore struct {
	client        *storage.Client
	defaultBucket string
	uploadTimeout time.Duration
}

// NewGCSStore creates a storage client. Bare keys resolve against
// defaultBucket.
func NewGCSStore(ctx context.Context, defaultBucket string, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: create storage client: %w", err)
	}
	return &GCSStore{client: client, defaultBucket: defaultBucket, uploadTimeout: 2 * time.Minute}, nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// GetBlob downloads the object bytes for key.
func (s *GCSStore) GetBlob(ctx context.Context, key string) ([]byte, error) {
	bucket, object, err := ParseKey(key, s.defaultBucket)
	if err != nil {
		return nil, fmt.Errorf("GetBlob: %w", err)
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			err = fmt.Errorf("%w: %v", domain.ErrNotFound, err)
		}
		return nil, &domain.RetryableError{Op: fmt.Sprintf("GetBlob: reading object %s/%s", bucket, object), Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &domain.RetryableError{Op: "GetBlob: reading bytes", Err: err}
	}
	if len(data) == 0 {
		return nil, &domain.RetryableError{Op: "GetBlob: " + key, Err: errors.New("empty object body")}
	}
	return data, nil
}

// PutBlob uploads data under key.
func (s *GCSStore) PutBlob(ctx context.Context, key string, data []byte, contentType string) error {
	bucket, object, err := ParseKey(key, s.defaultBucket)
	if err != nil {
		return fmt.Errorf("PutBlob: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return &domain.RetryableError{Op: "PutBlob: copy to writer", Err: err}
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return &domain.RetryableError{Op: "PutBlob: finalize upload", Err: err}
	}
	return nil
}

var _ Store = (*GCSStore)(nil)
