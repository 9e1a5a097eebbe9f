// Package api is the daemon's HTTP surface: the generation endpoints
// the browser extension calls, plus corpus and profile management for
// the CLI. An MCP server exposes the same commands as tools.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mimic-sh/mimic/internal/corpus"
	"github.com/mimic-sh/mimic/internal/generate"
	"github.com/mimic-sh/mimic/internal/ingest"
	"github.com/mimic-sh/mimic/internal/prompt"
	"github.com/mimic-sh/mimic/internal/provider"
	"github.com/mimic-sh/mimic/internal/storage"
)

const maxRequestBodySize = 10 << 20 // 10MB, bulk imports included

// Generator is the orchestrator surface the API exposes.
type Generator interface {
	GenerateReplies(ctx context.Context, req generate.Request) (generate.Result, error)
	GenerateCustomReply(ctx context.Context, req generate.Request, instruction string) (generate.CustomResult, error)
	GeneratePosts(ctx context.Context, idea string, authorID string) (generate.Result, error)
	SaveAccepted(authorID, interactionID, content string) error
}

// StyleAnalyzer runs a style analysis and persists the profile.
type StyleAnalyzer interface {
	Analyze(ctx context.Context, authorID string) (corpus.ProfileRecord, error)
}

// CorpusAdmin is the record store management surface.
type CorpusAdmin interface {
	ListAuthors(ctx context.Context) ([]corpus.AuthorCount, error)
	DeleteAuthorEntries(ctx context.Context, authorID string) error
	DeleteAuthorProfiles(ctx context.Context, authorID string) error
	ListProfiles(ctx context.Context, authorID string) ([]corpus.ProfileRecord, error)
	GetProfile(ctx context.Context, id string) (corpus.ProfileRecord, error)
}

// LocalStore is the interaction log and job queue surface.
type LocalStore interface {
	ListInteractions(limit, offset int) ([]storage.Interaction, error)
	GetInteraction(id string) (storage.Interaction, error)
	EnqueueJob(job storage.Job) error
}

type Deps struct {
	Generator Generator
	Analyzer  StyleAnalyzer
	Corpus    CorpusAdmin
	Store     LocalStore
	Token     string
}

// NewHandler builds the HTTP router. /health is open; everything under
// /v1 requires the local bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/replies", handleReplies(deps))
		r.Post("/replies/custom", handleCustomReply(deps))
		r.Post("/posts", handlePosts(deps))

		r.Post("/profiles/analyze", handleAnalyze(deps))
		r.Get("/profiles", handleListProfiles(deps))
		r.Get("/profiles/{id}", handleGetProfile(deps))

		r.Get("/authors", handleListAuthors(deps))
		r.Delete("/authors/{id}", handleDeleteAuthor(deps))

		r.Post("/corpus", handleImport(deps))
		r.Post("/corpus/accepted", handleAccepted(deps))

		r.Get("/interactions", handleListInteractions(deps))
		r.Get("/interactions/{id}", handleGetInteraction(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type threadMessage struct {
	Author string `json:"author"`
	Handle string `json:"handle"`
	Text   string `json:"text"`
}

type repliesRequest struct {
	TargetText string          `json:"target_text"`
	Thread     []threadMessage `json:"thread"`
	AuthorID   string          `json:"author_id"`
}

type candidatesResponse struct {
	Candidates    []candidate `json:"candidates"`
	Degraded      bool        `json:"degraded"`
	Provider      string      `json:"provider"`
	Model         string      `json:"model"`
	InteractionID string      `json:"interaction_id"`
}

type candidate struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

func toGenerateRequest(req repliesRequest) generate.Request {
	thread := make([]prompt.ThreadMessage, len(req.Thread))
	for i, m := range req.Thread {
		thread[i] = prompt.ThreadMessage{Author: m.Author, Handle: m.Handle, Text: m.Text}
	}
	return generate.Request{
		TargetText: req.TargetText,
		Thread:     thread,
		AuthorID:   req.AuthorID,
	}
}

func toCandidatesResponse(res generate.Result) candidatesResponse {
	out := candidatesResponse{
		Degraded:      res.Degraded,
		Provider:      res.Provider,
		Model:         res.Model,
		InteractionID: res.InteractionID,
		Candidates:    make([]candidate, len(res.Candidates)),
	}
	for i, c := range res.Candidates {
		out.Candidates[i] = candidate{Label: c.Label, Text: c.Text}
	}
	return out
}

func handleReplies(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req repliesRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.TargetText == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "target_text is required")
			return
		}

		res, err := deps.Generator.GenerateReplies(r.Context(), toGenerateRequest(req))
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, toCandidatesResponse(res))
	}
}

func handleCustomReply(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			repliesRequest
			Instruction string `json:"instruction"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.TargetText == "" || req.Instruction == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "target_text and instruction are required")
			return
		}

		res, err := deps.Generator.GenerateCustomReply(r.Context(), toGenerateRequest(req.repliesRequest), req.Instruction)
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, map[string]string{
			"reply":          res.Reply,
			"provider":       res.Provider,
			"model":          res.Model,
			"interaction_id": res.InteractionID,
		})
	}
}

func handlePosts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Idea     string `json:"idea"`
			AuthorID string `json:"author_id"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Idea == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "idea is required")
			return
		}

		res, err := deps.Generator.GeneratePosts(r.Context(), req.Idea, req.AuthorID)
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, toCandidatesResponse(res))
	}
}

func handleAnalyze(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AuthorID string `json:"author_id"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.AuthorID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "author_id is required")
			return
		}

		rec, err := deps.Analyzer.Analyze(r.Context(), req.AuthorID)
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, rec)
	}
}

func handleListProfiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorID := r.URL.Query().Get("author_id")
		if authorID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "author_id query parameter is required")
			return
		}

		records, err := deps.Corpus.ListProfiles(r.Context(), authorID)
		if err != nil {
			domainError(w, err)
			return
		}
		if records == nil {
			records = []corpus.ProfileRecord{}
		}
		writeJSON(w, records)
	}
}

func handleGetProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := deps.Corpus.GetProfile(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, rec)
	}
}

func handleListAuthors(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authors, err := deps.Corpus.ListAuthors(r.Context())
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, authors)
	}
}

func handleDeleteAuthor(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorID := chi.URLParam(r, "id")

		if err := deps.Corpus.DeleteAuthorEntries(r.Context(), authorID); err != nil {
			domainError(w, err)
			return
		}
		if err := deps.Corpus.DeleteAuthorProfiles(r.Context(), authorID); err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleImport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingest.ImportPayload
		if !decodeBody(w, r, &req) {
			return
		}
		if req.AuthorID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "author_id is required")
			return
		}
		if len(req.Texts) == 0 && req.FilePath == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "texts or file_path is required")
			return
		}

		payload, err := json.Marshal(req)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create job payload: %v", err)
			return
		}
		job := storage.Job{
			ID:          uuid.NewString(),
			Type:        ingest.JobCorpusImport,
			PayloadJSON: string(payload),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue import: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"job_id": job.ID,
			"status": "queued",
		})
	}
}

func handleAccepted(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AuthorID      string `json:"author_id"`
			InteractionID string `json:"interaction_id"`
			Content       string `json:"content"`
		}
		if !decodeBody(w, r, &req) {
			return
		}

		if err := deps.Generator.SaveAccepted(req.AuthorID, req.InteractionID, req.Content); err != nil {
			domainError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
	}
}

type interactionSummary struct {
	ID         string `json:"id"`
	CreatedAt  string `json:"created_at"`
	Kind       string `json:"kind"`
	AuthorID   string `json:"author_id"`
	TargetText string `json:"target_text"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Degraded   bool   `json:"degraded"`
	Status     string `json:"status"`
}

type interactionDetail struct {
	interactionSummary
	Prompt      string          `json:"prompt"`
	RawResponse string          `json:"raw_response"`
	Candidates  json.RawMessage `json:"candidates"`
}

func toInteractionSummary(i storage.Interaction) interactionSummary {
	return interactionSummary{
		ID:         i.ID,
		CreatedAt:  i.CreatedAt.UTC().Format(time.RFC3339),
		Kind:       i.Kind,
		AuthorID:   i.AuthorID,
		TargetText: i.Query,
		Provider:   i.Provider,
		Model:      i.Model,
		Degraded:   i.Degraded,
		Status:     i.Status,
	}
}

func handleListInteractions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		interactions, err := deps.Store.ListInteractions(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}
		out := make([]interactionSummary, len(interactions))
		for i, ix := range interactions {
			out[i] = toInteractionSummary(ix)
		}
		writeJSON(w, out)
	}
}

func handleGetInteraction(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interaction, err := deps.Store.GetInteraction(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get interaction: %v", err)
			return
		}
		detail := interactionDetail{
			interactionSummary: toInteractionSummary(interaction),
			Prompt:             interaction.Prompt,
			RawResponse:        interaction.RawResponse,
		}
		if interaction.CandidatesJSON != "" {
			detail.Candidates = json.RawMessage(interaction.CandidatesJSON)
		}
		writeJSON(w, detail)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// domainError maps pipeline error kinds to HTTP status codes. Config
// problems are the user's to fix, retrieval misses carry author
// context, provider failures are upstream faults.
func domainError(w http.ResponseWriter, err error) {
	var ce *generate.ConfigError
	if errors.As(err, &ce) {
		httpError(w, http.StatusBadRequest, "configuration_error", "%s", ce.Error())
		return
	}
	var nfe *generate.NotFoundError
	if errors.As(err, &nfe) {
		httpError(w, http.StatusNotFound, "not_found", "%s", nfe.Error())
		return
	}
	var pe *provider.Error
	if errors.As(err, &pe) {
		httpError(w, http.StatusBadGateway, "provider_error", "%s", pe.Error())
		return
	}
	if errors.Is(err, corpus.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
