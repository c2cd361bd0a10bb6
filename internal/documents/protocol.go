package documents

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// MaxPromptChars bounds how much extracted text is sent to the model.
const MaxPromptChars = 10000

const fence = "```"

const promptTemplate = `Analyze the following document text and return a single JSON object with exactly these fields:
- "summary": a concise summary of the document (string).
- "type": the kind of document, for example "invoice", "CV" or "report" (string).
- "attributes": an object with the key facts extracted from the document, such as dates, parties and amounts.

Return only the JSON object.

Text:
%s`

// BuildPrompt renders the analysis prompt for at most MaxPromptChars characters of text.
func BuildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, TruncateText(text, MaxPromptChars))
}

// TruncateText returns the first max characters (runes) of text.
func TruncateText(text string, max int) string {
	if max <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == max {
			return text[:i]
		}
		count++
	}
	return text
}

// StripCodeFences removes a markdown code fence, with or without a language
// tag, wrapped around a model response.
func StripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	// Unfenced JSON may carry fence markers inside string values.
	if json.Valid([]byte(s)) {
		return s
	}
	start := strings.Index(s, fence)
	if start < 0 {
		return s
	}
	body := s[start+len(fence):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && isFenceTag(body[:nl]) {
		body = body[nl+1:]
	} else {
		body = strings.TrimLeftFunc(body, unicode.IsLetter)
	}
	if end := strings.LastIndex(body, fence); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func isFenceTag(line string) bool {
	for _, r := range strings.TrimSpace(line) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// ParseMetadata decodes a model response into AIMetadata.
// Any response that is not a JSON object with string summary/type and an
// object-valued attributes field yields an *AnalysisParseError.
func ParseMetadata(raw string) (*AIMetadata, error) {
	clean := StripCodeFences(raw)
	if clean == "" {
		return nil, &AnalysisParseError{Raw: raw, Err: errors.New("empty response")}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean), &fields); err != nil {
		return nil, &AnalysisParseError{Raw: raw, Err: err}
	}
	if fields == nil {
		return nil, &AnalysisParseError{Raw: raw, Err: errors.New("response is not a JSON object")}
	}

	md := &AIMetadata{Attributes: map[string]any{}}
	if err := decodeString(fields, "summary", &md.Summary); err != nil {
		return nil, &AnalysisParseError{Raw: raw, Err: err}
	}
	if err := decodeString(fields, "type", &md.Type); err != nil {
		return nil, &AnalysisParseError{Raw: raw, Err: err}
	}
	if v, ok := fields["attributes"]; ok && !isNull(v) {
		var attrs map[string]any
		if err := json.Unmarshal(v, &attrs); err != nil {
			return nil, &AnalysisParseError{Raw: raw, Err: fmt.Errorf("attributes: %w", err)}
		}
		md.Attributes = attrs
	}
	return md, nil
}

func decodeString(fields map[string]json.RawMessage, key string, dst *string) error {
	v, ok := fields[key]
	if !ok || isNull(v) {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func isNull(v json.RawMessage) bool {
	return strings.TrimSpace(string(v)) == "null"
}
