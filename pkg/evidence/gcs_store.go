package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore is a BlobStore backed by a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig configures NewGCSStore.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore builds a GCSStore using application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("evidence: create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) key(digest string) string {
	return s.prefix + digest + ".json"
}

func (s *GCSStore) Store(ctx context.Context, data []byte) (string, error) {
	digest := sha256Hex(data)
	obj := s.client.Bucket(s.bucket).Object(s.key(digest))

	if _, err := obj.Attrs(ctx); err == nil {
		return digest, nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("evidence: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("evidence: gcs close: %w", err)
	}
	return digest, nil
}

func (s *GCSStore) Get(ctx context.Context, digest string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.key(digest)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("evidence: blob not found: %s", digest)
		}
		return nil, fmt.Errorf("evidence: gcs get %s: %w", digest, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Close releases the underlying GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
