package documents

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type firestoreRecord struct {
	FileName      string      `firestore:"filename"`
	StorageKey    string      `firestore:"storageKey"`
	MimeType      string      `firestore:"mimeType"`
	ExtractedText string      `firestore:"extractedText"`
	Status        string      `firestore:"status"`
	AIMetadata    *AIMetadata `firestore:"aiMetadata"`
	CreatedAt     time.Time   `firestore:"createdAt"`
}

// FirestoreRepo implements DocumentsRepo on a Firestore collection keyed by document ID.
type FirestoreRepo struct {
	Client     *firestore.Client
	Collection string
}

// NewFirestoreRepo opens a Firestore client for projectID.
func NewFirestoreRepo(ctx context.Context, projectID, collection string) (*FirestoreRepo, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	if collection == "" {
		collection = "documents"
	}
	return &FirestoreRepo{Client: client, Collection: collection}, nil
}

// Create writes a new document; it fails if the ID already exists.
func (r *FirestoreRepo) Create(ctx context.Context, doc Document) (Document, error) {
	if _, err := r.Client.Collection(r.Collection).Doc(doc.ID).Create(ctx, toRecord(doc)); err != nil {
		return Document{}, fmt.Errorf("firestore create id=%s: %w", doc.ID, err)
	}
	return doc, nil
}

// FindByID reads a document. Malformed IDs are reported as not found.
func (r *FirestoreRepo) FindByID(ctx context.Context, id string) (Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Document{}, ErrNotFound
	}
	snap, err := r.Client.Collection(r.Collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("firestore get id=%s: %w", id, err)
	}
	var rec firestoreRecord
	if err := snap.DataTo(&rec); err != nil {
		return Document{}, fmt.Errorf("firestore decode id=%s: %w", id, err)
	}
	return fromRecord(id, rec), nil
}

// Save updates status and metadata of an existing document.
func (r *FirestoreRepo) Save(ctx context.Context, doc Document) (Document, error) {
	if _, err := uuid.Parse(doc.ID); err != nil {
		return Document{}, ErrNotFound
	}
	_, err := r.Client.Collection(r.Collection).Doc(doc.ID).Update(ctx, []firestore.Update{
		{Path: "status", Value: string(doc.Status)},
		{Path: "aiMetadata", Value: doc.AIMetadata},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("firestore update id=%s: %w", doc.ID, err)
	}
	return doc, nil
}

// Close releases the underlying client.
func (r *FirestoreRepo) Close() error {
	return r.Client.Close()
}

func toRecord(doc Document) firestoreRecord {
	return firestoreRecord{
		FileName:      doc.FileName,
		StorageKey:    doc.StorageKey,
		MimeType:      doc.MimeType,
		ExtractedText: doc.ExtractedText,
		Status:        string(doc.Status),
		AIMetadata:    doc.AIMetadata,
		CreatedAt:     doc.CreatedAt,
	}
}

func fromRecord(id string, rec firestoreRecord) Document {
	return Document{
		ID:            id,
		FileName:      rec.FileName,
		StorageKey:    rec.StorageKey,
		MimeType:      rec.MimeType,
		ExtractedText: rec.ExtractedText,
		Status:        Status(rec.Status),
		AIMetadata:    rec.AIMetadata,
		CreatedAt:     rec.CreatedAt,
	}
}

var _ DocumentsRepo = (*FirestoreRepo)(nil)
