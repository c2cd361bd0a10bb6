package documents

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory implementation of DocumentsRepo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Document
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]Document),
	}
}

// Create stores a new document.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[doc.ID] = doc.clone()
	return doc.clone(), nil
}

// FindByID returns a document by ID.
func (r *MemoryRepo) FindByID(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.data[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc.clone(), nil
}

// Save overwrites an existing document.
func (r *MemoryRepo) Save(ctx context.Context, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[doc.ID]; !ok {
		return Document{}, ErrNotFound
	}
	r.data[doc.ID] = doc.clone()
	return doc.clone(), nil
}

// Len reports how many documents are stored.
func (r *MemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

var _ DocumentsRepo = (*MemoryRepo)(nil)
