package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// Options configures the Vertex AI Gemini client.
type Options struct {
	ProjectID string
	Location  string
	Model     string
}

// Client implements llm.Client on Vertex AI Gemini.
type Client struct {
	base  *genai.Client
	model *genai.GenerativeModel
}

// NewClient connects to Vertex AI with application default credentials.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.ProjectID) == "" {
		return nil, fmt.Errorf("GCP_PROJECT_ID is required for Gemini")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for Gemini")
	}
	location := opts.Location
	if location == "" {
		location = "us-central1"
	}

	base, err := genai.NewClient(ctx, opts.ProjectID, location)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	model := base.GenerativeModel(opts.Model)
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	}
	return &Client{base: base, model: model}, nil
}

// Generate sends prompt as a single user turn and returns the concatenated text parts.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", errors.New("gemini response empty content")
	}
	return text, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	if c.base != nil {
		return c.base.Close()
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}
