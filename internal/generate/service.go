// Package generate is the reply generation orchestrator: it validates
// preconditions, drives embedding, retrieval, profile lookup, prompt
// build, the provider call, and parsing, and records the interaction.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mimic-sh/mimic/internal/config"
	"github.com/mimic-sh/mimic/internal/corpus"
	"github.com/mimic-sh/mimic/internal/parse"
	"github.com/mimic-sh/mimic/internal/profile"
	"github.com/mimic-sh/mimic/internal/prompt"
	"github.com/mimic-sh/mimic/internal/provider"
	"github.com/mimic-sh/mimic/internal/retrieval"
	"github.com/mimic-sh/mimic/internal/storage"
)

const (
	generationTemperature = 0.7
	generationMaxTokens   = 1000
	customMaxTokens       = 200

	completionTimeout = 120 * time.Second

	historyLimit = 5
)

// JobSaveReply is the queue job type for accepted-reply saves.
const JobSaveReply = "save_reply"

// CorpusStore is the slice of the record store the orchestrator needs.
type CorpusStore interface {
	CountEntries(ctx context.Context, authorID string) (int, error)
	GetProfile(ctx context.Context, id string) (corpus.ProfileRecord, error)
	LatestProfile(ctx context.Context, authorID string) (corpus.ProfileRecord, error)
}

// Retriever finds the author's most relevant writing samples.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, authorID string) ([]retrieval.Example, error)
}

// LocalStore is the local interaction log and job queue.
type LocalStore interface {
	SaveInteraction(i storage.Interaction) error
	SaveAcceptedReply(r storage.AcceptedReply) error
	RecentAcceptedReplies(authorID string, limit int) ([]storage.AcceptedReply, error)
	EnqueueJob(job storage.Job) error
}

// Service orchestrates the generation pipeline. Configuration is
// resolved once at construction and passed explicitly to every stage.
type Service struct {
	cfg       config.Config
	corpus    CorpusStore
	retriever Retriever
	local     LocalStore
	logger    *slog.Logger

	// newProvider is swapped in tests.
	newProvider func(name, apiKey, model string) (provider.Provider, error)
}

// NewService creates the orchestrator.
func NewService(cfg config.Config, cs CorpusStore, r Retriever, local LocalStore, logger *slog.Logger) *Service {
	return &Service{
		cfg:         cfg,
		corpus:      cs,
		retriever:   r,
		local:       local,
		logger:      logger,
		newProvider: provider.New,
	}
}

// Request is one generation request.
type Request struct {
	TargetText string
	Thread     []prompt.ThreadMessage
	// AuthorID overrides the configured active author when set.
	AuthorID string
}

// Result is the outcome of a reply or post generation.
type Result struct {
	Candidates    []parse.Candidate
	Degraded      bool
	Provider      string
	Model         string
	InteractionID string
}

// GenerateReplies produces the five fixed-slot reply candidates for the
// target post.
func (s *Service) GenerateReplies(ctx context.Context, req Request) (Result, error) {
	return s.generate(ctx, req, "replies", parse.ReplyLabels)
}

// GeneratePosts produces three post variants of the given idea in the
// author's voice.
func (s *Service) GeneratePosts(ctx context.Context, idea string, authorID string) (Result, error) {
	return s.generate(ctx, Request{TargetText: idea, AuthorID: authorID}, "posts", parse.PostLabels)
}

func (s *Service) generate(ctx context.Context, req Request, kind string, labels []string) (Result, error) {
	authorID, prov, err := s.preflight(ctx, req.AuthorID)
	if err != nil {
		return Result{}, err
	}

	prof := s.lookupProfile(ctx, authorID)

	var topK int
	if kind == "posts" {
		topK = prompt.PostExampleCount(prof != nil)
	} else {
		topK = prompt.ReplyExampleCount(prof != nil)
	}

	examples, err := s.retriever.Retrieve(ctx, req.TargetText, topK, authorID)
	if err != nil {
		return Result{}, fmt.Errorf("retrieving examples: %w", err)
	}
	if len(examples) == 0 {
		return Result{}, &NotFoundError{AuthorID: authorID}
	}

	var p prompt.Prompt
	if kind == "posts" {
		p = prompt.Posts(req.TargetText, examples, prof)
	} else {
		p = prompt.Replies(req.TargetText, req.Thread, examples, prof, s.recentHistory(authorID))
	}

	raw, err := s.complete(ctx, prov, p, generationMaxTokens)
	if err != nil {
		return Result{}, err
	}

	cands, degraded := parse.Candidates(raw, labels)
	if degraded {
		s.logger.Warn("unparseable completion, using fallback candidates",
			"kind", kind, "provider", prov.Name(), "raw", raw)
	}

	res := Result{
		Candidates:    cands,
		Degraded:      degraded,
		Provider:      prov.Name(),
		Model:         prov.Model(),
		InteractionID: uuid.NewString(),
	}
	s.record(res.InteractionID, kind, authorID, req.TargetText, p, raw, cands, degraded)
	return res, nil
}

// CustomResult is the outcome of an instruction-driven single reply.
type CustomResult struct {
	Reply         string
	Provider      string
	Model         string
	InteractionID string
}

// GenerateCustomReply produces one reply following the user's explicit
// instruction. The output contract is bare text.
func (s *Service) GenerateCustomReply(ctx context.Context, req Request, instruction string) (CustomResult, error) {
	authorID, prov, err := s.preflight(ctx, req.AuthorID)
	if err != nil {
		return CustomResult{}, err
	}

	prof := s.lookupProfile(ctx, authorID)

	examples, err := s.retriever.Retrieve(ctx, req.TargetText, prompt.ReplyExampleCount(prof != nil), authorID)
	if err != nil {
		return CustomResult{}, fmt.Errorf("retrieving examples: %w", err)
	}
	if len(examples) == 0 {
		return CustomResult{}, &NotFoundError{AuthorID: authorID}
	}

	p := prompt.Custom(req.TargetText, req.Thread, instruction, examples, prof)

	raw, err := s.complete(ctx, prov, p, customMaxTokens)
	if err != nil {
		return CustomResult{}, err
	}

	reply := strings.Trim(strings.TrimSpace(raw), `"`)
	res := CustomResult{
		Reply:         reply,
		Provider:      prov.Name(),
		Model:         prov.Model(),
		InteractionID: uuid.NewString(),
	}
	s.record(res.InteractionID, "custom_reply", authorID, instruction, p, raw, nil, false)
	return res, nil
}

// SaveAccepted records a candidate the user chose and enqueues its
// conversion into a corpus entry. The save is fire-and-forget: queue or
// log failures are logged, never surfaced, so the already-shown
// suggestion is unaffected.
func (s *Service) SaveAccepted(authorID, interactionID, content string) error {
	if authorID == "" {
		authorID = s.cfg.Author.ActiveID
	}
	if authorID == "" || strings.TrimSpace(content) == "" {
		return &ConfigError{Reason: "accepted reply needs an author and non-empty content"}
	}

	if err := s.local.SaveAcceptedReply(storage.AcceptedReply{
		ID:            uuid.NewString(),
		AuthorID:      authorID,
		InteractionID: interactionID,
		Content:       content,
	}); err != nil {
		s.logger.Error("saving accepted reply locally", "error", err)
	}

	payload, _ := json.Marshal(map[string]string{
		"author_id": authorID,
		"content":   content,
	})
	if err := s.local.EnqueueJob(storage.Job{
		ID:          uuid.NewString(),
		Type:        JobSaveReply,
		PayloadJSON: string(payload),
	}); err != nil {
		s.logger.Error("enqueueing accepted-reply save", "error", err)
	}
	return nil
}

// preflight validates the cheap preconditions in order: an author is
// selected, the provider credential is present, and the author's corpus
// is non-empty. Credential absence is caught before any network call.
func (s *Service) preflight(ctx context.Context, authorOverride string) (string, provider.Provider, error) {
	authorID := authorOverride
	if authorID == "" {
		authorID = s.cfg.Author.ActiveID
	}
	if authorID == "" {
		return "", nil, &ConfigError{
			Reason: "no author selected",
			Hint:   "set one with `mimic config set author.active_id <id>` or pass --author",
		}
	}

	name := s.cfg.Provider.Name
	key := s.cfg.ProviderKey(name)
	if key == "" {
		return "", nil, &ConfigError{
			Reason: fmt.Sprintf("no API key configured for provider %s", name),
			Hint:   config.CredentialHint(name),
		}
	}
	prov, err := s.newProvider(name, key, s.cfg.ProviderModel(name))
	if err != nil {
		return "", nil, &ConfigError{Reason: err.Error()}
	}

	count, err := s.corpus.CountEntries(ctx, authorID)
	if err != nil {
		return "", nil, fmt.Errorf("checking corpus for %s: %w", authorID, err)
	}
	if count == 0 {
		return "", nil, &ConfigError{
			Reason: fmt.Sprintf("no examples stored for author %s", authorID),
			Hint:   "import their posts first with `mimic import`",
		}
	}
	return authorID, prov, nil
}

// lookupProfile is best-effort enrichment: a pinned profile id wins,
// otherwise the author's newest profile. Absence or any lookup failure
// degrades to nil, never aborts.
func (s *Service) lookupProfile(ctx context.Context, authorID string) *profile.StyleProfile {
	var rec corpus.ProfileRecord
	var err error
	if id := s.cfg.Author.ActiveProfileID; id != "" {
		rec, err = s.corpus.GetProfile(ctx, id)
	} else {
		rec, err = s.corpus.LatestProfile(ctx, authorID)
	}
	if err != nil {
		if !errors.Is(err, corpus.ErrNotFound) {
			s.logger.Warn("profile lookup failed, generating without profile", "author_id", authorID, "error", err)
		}
		return nil
	}
	p := profile.Decode(rec.Profile)
	return &p
}

// recentHistory is best-effort enrichment from the local log.
func (s *Service) recentHistory(authorID string) []string {
	replies, err := s.local.RecentAcceptedReplies(authorID, historyLimit)
	if err != nil {
		s.logger.Warn("loading reply history failed", "author_id", authorID, "error", err)
		return nil
	}
	history := make([]string, len(replies))
	for i, r := range replies {
		history[i] = r.Content
	}
	return history
}

func (s *Service) complete(ctx context.Context, prov provider.Provider, p prompt.Prompt, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	raw, err := prov.Complete(ctx, p.System, p.User, provider.Options{
		Temperature: generationTemperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	return raw, nil
}

// record writes the interaction log entry. Logging the interaction is
// never load-bearing.
func (s *Service) record(id, kind, authorID, query string, p prompt.Prompt, raw string, cands []parse.Candidate, degraded bool) {
	candidatesJSON := ""
	if cands != nil {
		if b, err := json.Marshal(cands); err == nil {
			candidatesJSON = string(b)
		}
	}
	err := s.local.SaveInteraction(storage.Interaction{
		ID:             id,
		Kind:           kind,
		AuthorID:       authorID,
		Query:          query,
		Prompt:         p.System + "\n\n" + p.User,
		Provider:       s.cfg.Provider.Name,
		Model:          s.cfg.ProviderModel(s.cfg.Provider.Name),
		RawResponse:    raw,
		CandidatesJSON: candidatesJSON,
		Degraded:       degraded,
	})
	if err != nil {
		s.logger.Error("recording interaction", "error", err)
	}
}
