package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/photoop/internal/gcp"
)

// BucketStore keeps artifacts as objects in a Cloud Storage bucket.
type BucketStore struct {
	bucket     *storage.BucketHandle
	bucketName string
	prefix     string
}

// NewBucketStore stores objects under prefix in bucketName.
func NewBucketStore(client *storage.Client, bucketName, prefix string) (*BucketStore, error) {
	if client == nil || bucketName == "" {
		return nil, fmt.Errorf("bucket store requires a storage client and bucket name")
	}
	return &BucketStore{
		bucket:     client.Bucket(bucketName),
		bucketName: bucketName,
		prefix:     prefix,
	}, nil
}

func (s *BucketStore) objectName(name string) string {
	return s.prefix + name
}

// Save uploads data unless an object with the same name already exists.
func (s *BucketStore) Save(ctx context.Context, name string, data []byte, contentType string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if contentType == "" {
		contentType = ContentType(name)
	}
	return gcp.SaveToGCSAtomically(ctx, s.bucket, s.objectName(name), data, contentType)
}

// Open streams an object or returns ErrNotFound.
func (s *BucketStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	r, err := s.bucket.Object(s.objectName(name)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: gs://%s/%s", ErrNotFound, s.bucketName, s.objectName(name))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", s.bucketName, s.objectName(name), err)
	}
	return r, nil
}

// URL returns the public address of name.
func (s *BucketStore) URL(name string) string {
	return gcp.PublicURL(s.bucketName, s.objectName(name))
}
