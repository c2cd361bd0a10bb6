package queue

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	// TypeAnalyzeDocument is the asynq task type for document analysis.
	TypeAnalyzeDocument = "document:analyze"
	// DefaultQueue is the asynq queue analysis tasks are placed on.
	DefaultQueue = "default"
	// MessageVersion is the current payload schema version.
	MessageVersion = 1
)

// ErrMissingDocumentID reports a payload without a document id.
var ErrMissingDocumentID = errors.New("missing document id")

// Message is the payload of an analysis task.
type Message struct {
	DocumentID string `json:"documentId"`
	RequestID  string `json:"requestId,omitempty"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	if strings.TrimSpace(msg.DocumentID) == "" {
		return nil, ErrMissingDocumentID
	}
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if strings.TrimSpace(msg.DocumentID) == "" {
		return Message{}, ErrMissingDocumentID
	}
	return msg, nil
}
