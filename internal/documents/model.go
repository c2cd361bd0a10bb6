package documents

import "time"

// Status is the lifecycle stage of a document.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAnalyzed Status = "analyzed"
)

// AIMetadata is the structured result of an analysis pass.
// Type is a free-text label chosen by the model, not a closed set.
type AIMetadata struct {
	Summary    string         `json:"summary" firestore:"summary"`
	Type       string         `json:"type" firestore:"type"`
	Attributes map[string]any `json:"attributes" firestore:"attributes"`
}

// Document is an uploaded file together with its extracted text and analysis state.
type Document struct {
	ID            string
	FileName      string
	StorageKey    string
	MimeType      string
	ExtractedText string
	Status        Status
	AIMetadata    *AIMetadata
	CreatedAt     time.Time
}

func (d Document) clone() Document {
	out := d
	if d.AIMetadata != nil {
		md := *d.AIMetadata
		if attrs, ok := cloneValue(d.AIMetadata.Attributes).(map[string]any); ok {
			md.Attributes = attrs
		}
		out.AIMetadata = &md
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	default:
		return v
	}
}
