package imagestore

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"place-registry/internal/domain"
	errs "place-registry/pkg/errors"
)

const gcsPrefix = "images/"

// GCSStore keeps images in a Google Cloud Storage bucket. References are
// object names inside the bucket.
type GCSStore struct {
	client   *storage.Client
	bucket   string
	maxBytes int64
}

var _ domain.ImageStore = (*GCSStore)(nil)

// NewGCSStore connects to bucket. Credentials come from the environment
// unless overridden through opts.
func NewGCSStore(ctx context.Context, bucket string, maxBytes int64, opts ...option.ClientOption) (*GCSStore, error) {
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errs.NewDB("imagestore.NewGCSStore", "failed to create storage client", err)
	}
	return &GCSStore{client: client, bucket: bucket, maxBytes: maxBytes}, nil
}

func (s *GCSStore) Store(ctx context.Context, r io.Reader, contentType string) (string, error) {
	const op = "imagestore.GCSStore.Store"
	name, err := objectName(op, contentType)
	if err != nil {
		return "", err
	}
	key := gcsPrefix + name

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = normalizeType(contentType)
	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(w, src)
	if err != nil {
		_ = w.Close()
		return "", errs.NewDB(op, "failed to write image to bucket", err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		// abandon the upload; the writer never finalizes the object
		cancel()
		_ = w.Close()
		return "", errs.NewValidation(op, "image exceeds the upload size limit", nil)
	}
	if err := w.Close(); err != nil {
		return "", errs.NewDB(op, "failed to finalize image upload", err)
	}
	return key, nil
}

// Delete removes the object behind ref. A missing object is not an error.
func (s *GCSStore) Delete(ctx context.Context, ref string) error {
	const op = "imagestore.GCSStore.Delete"
	if !strings.HasPrefix(ref, gcsPrefix) {
		return errs.NewValidation(op, "image reference outside bucket prefix", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := s.client.Bucket(s.bucket).Object(ref).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return errs.NewDB(op, "failed to delete image from bucket", err)
	}
	return nil
}

func (s *GCSStore) Close() error { return s.client.Close() }
