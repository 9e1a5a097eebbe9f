package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mimic-sh/mimic/internal/corpus"
	"github.com/mimic-sh/mimic/internal/generate"
	"github.com/mimic-sh/mimic/internal/parse"
	"github.com/mimic-sh/mimic/internal/retrieval"
)

type mockMCPRetriever struct {
	retrieveFn func(ctx context.Context, query string, topK int, authorID string) ([]retrieval.Example, error)
}

func (m *mockMCPRetriever) Retrieve(ctx context.Context, query string, topK int, authorID string) ([]retrieval.Example, error) {
	return m.retrieveFn(ctx, query, topK, authorID)
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", result.Content[0])
	}
	return text.Text
}

func TestMCPGenerateReplies(t *testing.T) {
	deps := MCPDeps{
		Generator: &mockGenerator{
			repliesFn: func(_ context.Context, req generate.Request) (generate.Result, error) {
				if req.AuthorID != "default-author" {
					t.Errorf("author = %q, want default filled in", req.AuthorID)
				}
				return generate.Result{
					Candidates: []parse.Candidate{{Label: "Agreeing", Text: "sure"}},
				}, nil
			},
		},
		DefaultAuthor: "default-author",
	}

	handler := mcpGenerateReplies(deps)
	result, err := handler(context.Background(), makeCallToolRequest("generate_replies", map[string]interface{}{
		"target_text": "a post",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var resp candidatesResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Candidates) != 1 || resp.Candidates[0].Text != "sure" {
		t.Errorf("response = %+v", resp)
	}
}

func TestMCPGenerateReplies_MissingTarget(t *testing.T) {
	handler := mcpGenerateReplies(MCPDeps{Generator: &mockGenerator{}})
	result, err := handler(context.Background(), makeCallToolRequest("generate_replies", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing target_text")
	}
}

func TestMCPGenerateReplies_GenerationFailure(t *testing.T) {
	deps := MCPDeps{
		Generator: &mockGenerator{
			repliesFn: func(_ context.Context, _ generate.Request) (generate.Result, error) {
				return generate.Result{}, &generate.ConfigError{Reason: "no author selected", Hint: "import a corpus first"}
			},
		},
	}
	handler := mcpGenerateReplies(deps)
	result, _ := handler(context.Background(), makeCallToolRequest("generate_replies", map[string]interface{}{
		"target_text": "x",
	}))
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(toolText(t, result), "no author selected") {
		t.Errorf("text = %q", toolText(t, result))
	}
}

func TestMCPGeneratePosts(t *testing.T) {
	deps := MCPDeps{
		Generator: &mockGenerator{
			postsFn: func(_ context.Context, idea, authorID string) (generate.Result, error) {
				if idea != "an idea" || authorID != "a1" {
					t.Errorf("idea = %q, author = %q", idea, authorID)
				}
				return generate.Result{
					Candidates: []parse.Candidate{{Label: "Polished", Text: "polished take"}},
				}, nil
			},
		},
	}

	handler := mcpGeneratePosts(deps)
	result, err := handler(context.Background(), makeCallToolRequest("generate_posts", map[string]interface{}{
		"idea":      "an idea",
		"author_id": "a1",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !strings.Contains(toolText(t, result), "polished take") {
		t.Errorf("text = %q", toolText(t, result))
	}
}

func TestMCPAnalyzeStyle(t *testing.T) {
	deps := MCPDeps{
		Analyzer: &mockAnalyzer{
			analyzeFn: func(_ context.Context, authorID string) (corpus.ProfileRecord, error) {
				return corpus.ProfileRecord{ID: "p1", AuthorID: authorID, SampleSize: 120}, nil
			},
		},
	}

	handler := mcpAnalyzeStyle(deps)
	result, err := handler(context.Background(), makeCallToolRequest("analyze_style", map[string]interface{}{
		"author_id": "a1",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	var rec corpus.ProfileRecord
	if err := json.Unmarshal([]byte(toolText(t, result)), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.ID != "p1" || rec.SampleSize != 120 {
		t.Errorf("record = %+v", rec)
	}
}

func TestMCPAnalyzeStyle_MissingAuthor(t *testing.T) {
	handler := mcpAnalyzeStyle(MCPDeps{Analyzer: &mockAnalyzer{}})
	result, _ := handler(context.Background(), makeCallToolRequest("analyze_style", map[string]interface{}{}))
	if !result.IsError {
		t.Error("expected tool error for missing author_id")
	}
}

func TestMCPListAuthors(t *testing.T) {
	deps := MCPDeps{
		Corpus: &mockCorpusAdmin{authors: []corpus.AuthorCount{{AuthorID: "a1", EntryCount: 7}}},
	}

	handler := mcpListAuthors(deps)
	result, err := handler(context.Background(), makeCallToolRequest("list_authors", nil))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	var authors []corpus.AuthorCount
	if err := json.Unmarshal([]byte(toolText(t, result)), &authors); err != nil {
		t.Fatal(err)
	}
	if len(authors) != 1 || authors[0].AuthorID != "a1" {
		t.Errorf("authors = %+v", authors)
	}
}

func TestMCPSearchCorpus(t *testing.T) {
	var gotTopK int
	deps := MCPDeps{
		Retriever: &mockMCPRetriever{
			retrieveFn: func(_ context.Context, query string, topK int, authorID string) ([]retrieval.Example, error) {
				gotTopK = topK
				if query != "shipping" || authorID != "default-author" {
					t.Errorf("query = %q, author = %q", query, authorID)
				}
				return []retrieval.Example{{ID: "e1", Content: "shipped it", Similarity: 0.91}}, nil
			},
		},
		DefaultAuthor: "default-author",
	}

	handler := mcpSearchCorpus(deps)
	result, err := handler(context.Background(), makeCallToolRequest("search_corpus", map[string]interface{}{
		"query": "shipping",
		"limit": float64(200),
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if gotTopK != 50 {
		t.Errorf("topK = %d, want capped at 50", gotTopK)
	}

	var results []struct {
		ID         string  `json:"id"`
		Content    string  `json:"content"`
		Similarity float64 `json:"similarity"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Similarity != 0.91 {
		t.Errorf("results = %+v", results)
	}
}

func TestMCPSearchCorpus_NoAuthor(t *testing.T) {
	handler := mcpSearchCorpus(MCPDeps{Retriever: &mockMCPRetriever{}})
	result, _ := handler(context.Background(), makeCallToolRequest("search_corpus", map[string]interface{}{
		"query": "anything",
	}))
	if !result.IsError {
		t.Fatal("expected tool error when no author is available")
	}
	if !strings.Contains(toolText(t, result), "author_id is required") {
		t.Errorf("text = %q", toolText(t, result))
	}
}

func TestMCPSearchCorpus_NoMatches(t *testing.T) {
	deps := MCPDeps{
		Retriever: &mockMCPRetriever{
			retrieveFn: func(_ context.Context, _ string, _ int, _ string) ([]retrieval.Example, error) {
				return nil, nil
			},
		},
		DefaultAuthor: "a1",
	}

	handler := mcpSearchCorpus(deps)
	result, err := handler(context.Background(), makeCallToolRequest("search_corpus", map[string]interface{}{
		"query": "nothing",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got := toolText(t, result); got != "[]" {
		t.Errorf("text = %q, want empty array", got)
	}
}
