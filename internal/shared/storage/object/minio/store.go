package minio

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"document-backend/internal/shared/storage/object"
	"document-backend/internal/shared/telemetry"
)

// Options configures the MinIO-backed store.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
}

type api interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts miniogo.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts miniogo.RemoveObjectOptions) error
}

// Store implements ObjectStore against a MinIO (or any S3-compatible) server.
type Store struct {
	client api
	bucket string
	region string
	gate   object.BucketGate
	now    func() time.Time
}

// New creates the MinIO client. The bucket is checked lazily on first upload.
func New(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	client, err := miniogo.New(opts.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newStore(client, opts.Bucket, opts.Region), nil
}

func newStore(client api, bucket, region string) *Store {
	if region == "" {
		region = "us-east-1"
	}
	return &Store{client: client, bucket: bucket, region: region, now: time.Now}
}

// Put uploads r under a generated key, creating the bucket on first use.
func (s *Store) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	if err := s.gate.Ensure(ctx, s.ensureBucket); err != nil {
		return "", err
	}

	key := object.NewKey(name, s.now())
	if size <= 0 {
		size = -1
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, miniogo.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("minio put object bucket=%s key=%s: %w", s.bucket, key, err)
	}
	return key, nil
}

// Remove deletes a stored object. Missing objects are not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio remove object bucket=%s key=%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("minio bucket exists %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{Region: s.region}); err != nil {
		switch miniogo.ToErrorResponse(err).Code {
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			return nil
		}
		return fmt.Errorf("minio make bucket %s: %w", s.bucket, err)
	}
	telemetry.Info("storage.bucket_created", map[string]any{"bucket": s.bucket, "backend": "minio"})
	return nil
}

var _ object.ObjectStore = (*Store)(nil)
