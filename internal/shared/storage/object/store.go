package object

import (
	"context"
	"io"
	"regexp"
	"strconv"
	"time"
)

// ObjectStore defines the contract for saving binary objects under generated keys.
type ObjectStore interface {
	// Put uploads r under a key derived from name and returns that key.
	// The target bucket is created on first use if it does not exist.
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (storageKey string, err error)
	// Remove deletes the object stored under storageKey.
	Remove(ctx context.Context, storageKey string) error
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NewKey builds a storage key of the form "{unix-millis}-{name}" where every
// whitespace run in name is replaced by a hyphen. Keys are human readable and
// rarely collide; they are not guaranteed unique.
func NewKey(name string, now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + whitespaceRun.ReplaceAllString(name, "-")
}
