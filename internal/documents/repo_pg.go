package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PGRepo implements DocumentsRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) (Document, error) {
	const query = `
INSERT INTO documents (
    id,
    filename,
    storage_key,
    mime_type,
    extracted_text,
    status,
    ai_metadata,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	metadata, err := marshalMetadata(doc.AIMetadata)
	if err != nil {
		return Document{}, err
	}

	_, err = r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.FileName,
		doc.StorageKey,
		doc.MimeType,
		doc.ExtractedText,
		string(doc.Status),
		metadata,
		doc.CreatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// FindByID fetches a document by ID. Malformed IDs are reported as not found.
func (r *PGRepo) FindByID(ctx context.Context, id string) (Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Document{}, ErrNotFound
	}

	const query = `
SELECT id, filename, storage_key, mime_type, extracted_text, status, ai_metadata, created_at
FROM documents
WHERE id = $1`
	var doc Document
	var extracted sql.NullString
	var status string
	var metadata []byte
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&doc.ID,
		&doc.FileName,
		&doc.StorageKey,
		&doc.MimeType,
		&extracted,
		&status,
		&metadata,
		&doc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	if extracted.Valid {
		doc.ExtractedText = extracted.String
	}
	doc.Status = Status(status)
	if len(metadata) > 0 {
		var md AIMetadata
		if err := json.Unmarshal(metadata, &md); err != nil {
			return Document{}, fmt.Errorf("decode ai_metadata id=%s: %w", id, err)
		}
		doc.AIMetadata = &md
	}
	return doc, nil
}

// Save writes the mutable fields of an existing document.
func (r *PGRepo) Save(ctx context.Context, doc Document) (Document, error) {
	const query = `
UPDATE documents
SET status = $1, ai_metadata = $2
WHERE id = $3`

	metadata, err := marshalMetadata(doc.AIMetadata)
	if err != nil {
		return Document{}, err
	}
	res, err := r.DB.ExecContext(ctx, query, string(doc.Status), metadata, doc.ID)
	if err != nil {
		return Document{}, err
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return Document{}, err
	}
	if updated == 0 {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func marshalMetadata(md *AIMetadata) (any, error) {
	if md == nil {
		return nil, nil
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("encode ai_metadata: %w", err)
	}
	return string(raw), nil
}

var _ DocumentsRepo = (*PGRepo)(nil)
