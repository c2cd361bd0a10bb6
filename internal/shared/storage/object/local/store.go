package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"document-backend/internal/shared/storage/object"
)

// Store implements ObjectStore using the local filesystem. The bucket is a
// directory under baseDir.
type Store struct {
	root string
	gate object.BucketGate
	now  func() time.Time
}

// New creates a new local object store rooted at baseDir/bucket.
func New(baseDir, bucket string) *Store {
	return &Store{root: filepath.Join(baseDir, bucket), now: time.Now}
}

// Put writes the reader to disk under a generated key.
func (s *Store) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.gate.Ensure(ctx, s.ensureBucket); err != nil {
		return "", err
	}

	key := object.NewKey(name, s.now())
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	written, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(fullPath)
		return "", fmt.Errorf("write body key=%s: %w", key, err)
	}
	if size > 0 && written != size {
		_ = os.Remove(fullPath)
		return "", fmt.Errorf("write body key=%s: wrote %d of %d bytes", key, written, size)
	}
	_ = contentType
	return key, nil
}

// Remove deletes a stored object. Removing a missing object is not an error.
func (s *Store) Remove(ctx context.Context, storageKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.resolve(storageKey)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove key=%s: %w", storageKey, err)
	}
	return nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(storageKey)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

func (s *Store) ensureBucket(context.Context) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create bucket dir %s: %w", s.root, err)
	}
	return nil
}

func (s *Store) resolve(storageKey string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(storageKey))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", storageKey)
	}
	return filepath.Join(s.root, clean), nil
}

var _ object.ObjectStore = (*Store)(nil)
