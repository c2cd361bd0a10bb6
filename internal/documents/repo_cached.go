package documents

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"document-backend/internal/shared/metrics"
)

// CachedRepo is a read-through LRU in front of another DocumentsRepo.
// Pending documents are never cached: another process may analyze them.
// Entries are refreshed on Save and expire after ttl.
type CachedRepo struct {
	next  DocumentsRepo
	cache *expirable.LRU[string, Document]
}

// NewCachedRepo wraps next with an LRU of at most size entries.
func NewCachedRepo(next DocumentsRepo, size int, ttl time.Duration) *CachedRepo {
	return &CachedRepo{
		next:  next,
		cache: expirable.NewLRU[string, Document](size, nil, ttl),
	}
}

// Create stores through.
func (r *CachedRepo) Create(ctx context.Context, doc Document) (Document, error) {
	created, err := r.next.Create(ctx, doc)
	if err != nil {
		return Document{}, err
	}
	r.put(created)
	return created, nil
}

// FindByID serves from the cache when possible.
func (r *CachedRepo) FindByID(ctx context.Context, id string) (Document, error) {
	if doc, ok := r.cache.Get(id); ok {
		metrics.IncCache(true)
		return doc.clone(), nil
	}
	metrics.IncCache(false)

	doc, err := r.next.FindByID(ctx, id)
	if err != nil {
		return Document{}, err
	}
	r.put(doc)
	return doc, nil
}

// Save writes through; the cached entry is replaced on success and dropped on failure.
func (r *CachedRepo) Save(ctx context.Context, doc Document) (Document, error) {
	saved, err := r.next.Save(ctx, doc)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.cache.Remove(doc.ID)
		}
		return Document{}, err
	}
	r.put(saved)
	return saved, nil
}

func (r *CachedRepo) put(doc Document) {
	if doc.Status == StatusPending {
		r.cache.Remove(doc.ID)
		return
	}
	r.cache.Add(doc.ID, doc.clone())
}

var _ DocumentsRepo = (*CachedRepo)(nil)
