package documents

import "context"

// DocumentsRepo defines persistence operations for documents.
// Implementations hold no business rules; the service owns them.
type DocumentsRepo interface {
	Create(ctx context.Context, doc Document) (Document, error)
	FindByID(ctx context.Context, id string) (Document, error)
	Save(ctx context.Context, doc Document) (Document, error)
}
