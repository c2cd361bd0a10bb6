package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"document-backend/internal/shared/storage/object"
	"document-backend/internal/shared/telemetry"
)

type bucket interface {
	exists(ctx context.Context) (bool, error)
	create(ctx context.Context) error
	write(ctx context.Context, key string, r io.Reader, contentType string) error
	delete(ctx context.Context, key string) error
}

// Store implements ObjectStore using Google Cloud Storage.
type Store struct {
	bucket bucket
	name   string
	gate   object.BucketGate
	now    func() time.Time
}

// New creates a GCS-backed store. projectID is only used when the bucket has to be created.
func New(ctx context.Context, projectID, bucketName string) (*Store, *storage.Client, error) {
	if strings.TrimSpace(bucketName) == "" {
		return nil, nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create gcs client: %w", err)
	}
	b := &handle{bkt: client.Bucket(bucketName), projectID: projectID}
	return newStore(b, bucketName), client, nil
}

func newStore(b bucket, name string) *Store {
	return &Store{bucket: b, name: name, now: time.Now}
}

// Put uploads r under a generated key, creating the bucket on first use.
func (s *Store) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	if err := s.gate.Ensure(ctx, s.ensureBucket); err != nil {
		return "", err
	}
	key := object.NewKey(name, s.now())
	if err := s.bucket.write(ctx, key, r, contentType); err != nil {
		return "", fmt.Errorf("gcs write object bucket=%s key=%s: %w", s.name, key, err)
	}
	return key, nil
}

// Remove deletes a stored object. Missing objects are not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.bucket.delete(ctx, key); err != nil {
		return fmt.Errorf("gcs delete object bucket=%s key=%s: %w", s.name, key, err)
	}
	return nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	ok, err := s.bucket.exists(ctx)
	if err != nil {
		return fmt.Errorf("gcs bucket attrs %s: %w", s.name, err)
	}
	if ok {
		return nil
	}
	if err := s.bucket.create(ctx); err != nil {
		if isConflict(err) {
			return nil
		}
		return fmt.Errorf("gcs create bucket %s: %w", s.name, err)
	}
	telemetry.Info("storage.bucket_created", map[string]any{"bucket": s.name, "backend": "gcs"})
	return nil
}

func isConflict(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}

type handle struct {
	bkt       *storage.BucketHandle
	projectID string
}

func (h *handle) exists(ctx context.Context) (bool, error) {
	_, err := h.bkt.Attrs(ctx)
	if errors.Is(err, storage.ErrBucketNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (h *handle) create(ctx context.Context) error {
	if h.projectID == "" {
		return fmt.Errorf("project id is required to create a bucket")
	}
	return h.bkt.Create(ctx, h.projectID, nil)
}

func (h *handle) write(ctx context.Context, key string, r io.Reader, contentType string) error {
	w := h.bkt.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (h *handle) delete(ctx context.Context, key string) error {
	err := h.bkt.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

var _ object.ObjectStore = (*Store)(nil)
