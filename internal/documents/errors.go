package documents

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("document not found")
	ErrAnalysisInProgress = errors.New("analysis already in progress")
)

const (
	ErrorCodeValidation      = "VALIDATION_ERROR"
	ErrorCodeFileTooLarge    = "FILE_TOO_LARGE"
	ErrorCodeUnsupportedType = "UNSUPPORTED_MEDIA_TYPE"
	ErrorCodeNotFound        = "NOT_FOUND"
	ErrorCodeExtraction      = "EXTRACTION_ERROR"
	ErrorCodeStorage         = "STORAGE_ERROR"
	ErrorCodeLLM             = "LLM_ERROR"
	ErrorCodeLLMParse        = "LLM_PARSE_ERROR"
	ErrorCodeConflict        = "ANALYSIS_IN_PROGRESS"
	ErrorCodeInternal        = "INTERNAL_ERROR"
)

// ValidationError reports an upload rejected before it reaches the service.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ExtractionError reports bytes that could not be parsed as their declared type.
type ExtractionError struct {
	MimeType string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract text mime=%s: %v", e.MimeType, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StorageError reports a failed blob upload or bucket check.
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store object: %v", e.Err)
	}
	return fmt.Sprintf("store object key=%s: %v", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ServiceError reports a failed call to the text-generation service.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string { return fmt.Sprintf("text generation: %v", e.Err) }

func (e *ServiceError) Unwrap() error { return e.Err }

// AnalysisParseError reports a model response that is not the expected JSON object.
type AnalysisParseError struct {
	Raw string
	Err error
}

func (e *AnalysisParseError) Error() string {
	return fmt.Sprintf("parse analysis response: %v", e.Err)
}

func (e *AnalysisParseError) Unwrap() error { return e.Err }
