package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	batchSize = 100
	// Pause between batch requests so large imports stay under the
	// upstream rate limit.
	batchDelay = 100 * time.Millisecond
)

// api is the slice of the OpenAI client this package uses.
type api interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Client generates text embeddings via the OpenAI embeddings endpoint.
type Client struct {
	api   api
	model string
	delay time.Duration
}

// NewClient creates a Client with the given API key and embedding model.
func NewClient(apiKey, model string) *Client {
	return &Client{
		api:   openai.NewClient(apiKey),
		model: model,
		delay: batchDelay,
	}
}

// NewClientWithAPI creates a Client backed by a custom API implementation
// (used by tests).
func NewClientWithAPI(a api, model string) *Client {
	return &Client{api: a, model: model, delay: 0}
}

// Model returns the configured embedding model name.
func (c *Client) Model() string { return c.model }

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding text: empty response data")
	}
	return resp.Data[0].Embedding, nil
}

// EmbedBatch returns embedding vectors for multiple texts, preserving
// input order. Requests are issued in windows of 100 inputs; an error
// names the failing window so a partial import can be resumed.
// Returns nil (not error) for empty/nil input.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		if start > 0 && c.delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.delay):
			}
		}

		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		window := texts[start:end]

		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: window,
			Model: openai.EmbeddingModel(c.model),
		})
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", start, end-1, err)
		}
		if len(resp.Data) != len(window) {
			return nil, fmt.Errorf("embedding batch %d-%d: got %d vectors for %d inputs", start, end-1, len(resp.Data), len(window))
		}

		// The API does not guarantee response order; restore it from the
		// returned index.
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(window) {
				return nil, fmt.Errorf("embedding batch %d-%d: index %d out of range", start, end-1, d.Index)
			}
			results[start+d.Index] = d.Embedding
		}
	}

	return results, nil
}
