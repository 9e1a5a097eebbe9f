package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mimic-sh/mimic/internal/generate"
	"github.com/mimic-sh/mimic/internal/retrieval"
)

// MCPRetriever abstracts corpus similarity search for the MCP layer.
type MCPRetriever interface {
	Retrieve(ctx context.Context, query string, topK int, authorID string) ([]retrieval.Example, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Generator Generator
	Analyzer  StyleAnalyzer
	Corpus    CorpusAdmin
	Retriever MCPRetriever
	// DefaultAuthor fills in when a tool call omits author_id.
	DefaultAuthor string
}

// NewMCPServer creates an MCP server exposing the generation pipeline
// as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"mimic",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("mimic: style-matched reply and post generation from a local author corpus."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("generate_replies",
			mcp.WithDescription("Generate five style-matched reply candidates (Agreeing, Contrarian, Question, Thoughtful, Hot Take) to a post."),
			mcp.WithString("target_text", mcp.Description("The post to reply to"), mcp.Required()),
			mcp.WithString("author_id", mcp.Description("Author whose style to imitate (defaults to the configured author)")),
		),
		mcpGenerateReplies(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_posts",
			mcp.WithDescription("Write three post variants (Polished, Reframed, Casual) of an idea in the author's voice."),
			mcp.WithString("idea", mcp.Description("The post idea to express"), mcp.Required()),
			mcp.WithString("author_id", mcp.Description("Author whose style to imitate (defaults to the configured author)")),
		),
		mcpGeneratePosts(deps),
	)

	s.AddTool(
		mcp.NewTool("analyze_style",
			mcp.WithDescription("Analyze an author's corpus and persist a new style profile."),
			mcp.WithString("author_id", mcp.Description("Author to analyze"), mcp.Required()),
		),
		mcpAnalyzeStyle(deps),
	)

	s.AddTool(
		mcp.NewTool("list_authors",
			mcp.WithDescription("List every author in the corpus with their entry counts."),
		),
		mcpListAuthors(deps),
	)

	s.AddTool(
		mcp.NewTool("search_corpus",
			mcp.WithDescription("Similarity-search an author's corpus for writing samples relevant to a query."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("author_id", mcp.Description("Author to search (defaults to the configured author)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearchCorpus(deps),
	)

	return s
}

func mcpGenerateReplies(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, err := req.RequireString("target_text")
		if err != nil {
			return mcpError("target_text is required"), nil
		}
		authorID := req.GetString("author_id", deps.DefaultAuthor)

		res, err := deps.Generator.GenerateReplies(ctx, generate.Request{
			TargetText: target,
			AuthorID:   authorID,
		})
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(toCandidatesResponse(res))
	}
}

func mcpGeneratePosts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		idea, err := req.RequireString("idea")
		if err != nil {
			return mcpError("idea is required"), nil
		}
		authorID := req.GetString("author_id", deps.DefaultAuthor)

		res, err := deps.Generator.GeneratePosts(ctx, idea, authorID)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(toCandidatesResponse(res))
	}
}

func mcpAnalyzeStyle(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		authorID, err := req.RequireString("author_id")
		if err != nil {
			return mcpError("author_id is required"), nil
		}

		rec, err := deps.Analyzer.Analyze(ctx, authorID)
		if err != nil {
			return mcpError(fmt.Sprintf("analysis failed: %v", err)), nil
		}
		return mcpJSON(rec)
	}
}

func mcpListAuthors(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		authors, err := deps.Corpus.ListAuthors(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing authors failed: %v", err)), nil
		}
		return mcpJSON(authors)
	}
}

func mcpSearchCorpus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		authorID := req.GetString("author_id", deps.DefaultAuthor)
		if authorID == "" {
			return mcpError("author_id is required when no default author is configured"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}

		examples, err := deps.Retriever.Retrieve(ctx, query, limit, authorID)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(examples) == 0 {
			return mcpText("[]"), nil
		}

		type exampleResult struct {
			ID         string  `json:"id"`
			Content    string  `json:"content"`
			Similarity float64 `json:"similarity"`
		}
		results := make([]exampleResult, len(examples))
		for i, ex := range examples {
			results[i] = exampleResult{ID: ex.ID, Content: ex.Content, Similarity: ex.Similarity}
		}
		return mcpJSON(results)
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
