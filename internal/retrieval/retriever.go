package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/mimic-sh/mimic/internal/corpus"
)

const (
	embedTimeout  = 30 * time.Second
	searchTimeout = 15 * time.Second
)

// Embedder turns a query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs similarity search against the record store.
type Searcher interface {
	Search(ctx context.Context, queryEmbedding []float32, matchCount int, authorID string) ([]corpus.Match, error)
}

// Example is a retrieved writing sample ranked by similarity to the
// target text.
type Example struct {
	ID         string
	Content    string
	Similarity float64
}

// Retriever combines embedding and similarity search to find the
// author's most relevant writing samples.
type Retriever struct {
	embedder Embedder
	searcher Searcher
}

// New creates a Retriever backed by the given Embedder and Searcher.
func New(embedder Embedder, searcher Searcher) *Retriever {
	return &Retriever{embedder: embedder, searcher: searcher}
}

// Retrieve embeds the query and returns the top-K most similar samples
// from the author's corpus. An empty result is returned as-is; deciding
// whether that is fatal belongs to the caller.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, authorID string) ([]Example, error) {
	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	vec, err := r.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	matches, err := r.searcher.Search(searchCtx, vec, topK, authorID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("searching corpus: %w", err)
	}

	examples := make([]Example, len(matches))
	for i, m := range matches {
		examples[i] = Example{
			ID:         m.ID,
			Content:    m.Content,
			Similarity: m.Similarity,
		}
	}
	return examples, nil
}
