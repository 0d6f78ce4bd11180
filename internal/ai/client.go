// Package ai wraps the external inference service used as the fallback
// classifier when no rule matches.
package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Default models used when the configuration leaves them empty.
const (
	DefaultModelName      = "gemini-2.5-flash"
	DefaultEmbedModelName = "text-embedding-004"
)

// Client is the inference service boundary: text in, text out, plus an
// embedding endpoint.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GeminiClient implements Client with the Gemini API. Credentials come from
// the environment (GOOGLE_API_KEY, or Vertex AI settings).
type GeminiClient struct {
	client     *genai.Client
	model      string
	embedModel string
}

// NewGeminiClient creates a Gemini-backed client.
func NewGeminiClient(ctx context.Context, model, embedModel string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClient: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	if embedModel == "" {
		embedModel = DefaultEmbedModelName
	}
	return &GeminiClient{client: client, model: model, embedModel: embedModel}, nil
}

// Generate sends a single-turn prompt and returns the response text.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("Generate: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("Generate: empty response from model")
	}
	return text, nil
}

// Embed returns the embedding vector of text.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Models.EmbedContent(ctx, c.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("Embed: embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("Embed: empty embedding")
	}
	return resp.Embeddings[0].Values, nil
}

var _ Client = (*GeminiClient)(nil)
