package documents

import "time"

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	ID            string      `json:"id"`
	FileName      string      `json:"filename"`
	StorageKey    string      `json:"storageKey"`
	MimeType      string      `json:"mimeType"`
	ExtractedText string      `json:"extractedText"`
	Status        Status      `json:"status"`
	AIMetadata    *AIMetadata `json:"aiMetadata"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	ID string `json:"id"`
}

func toResponse(doc Document) DocumentResponse {
	return DocumentResponse{
		ID:            doc.ID,
		FileName:      doc.FileName,
		StorageKey:    doc.StorageKey,
		MimeType:      doc.MimeType,
		ExtractedText: doc.ExtractedText,
		Status:        doc.Status,
		AIMetadata:    doc.AIMetadata,
		CreatedAt:     doc.CreatedAt,
	}
}
