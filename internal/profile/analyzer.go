package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mimic-sh/mimic/internal/corpus"
	"github.com/mimic-sh/mimic/internal/parse"
	"github.com/mimic-sh/mimic/internal/provider"
)

const (
	// fetchLimit is how many corpus entries are pulled per analysis run.
	fetchLimit = 1000
	// sampleSize caps how many entries go into the analysis prompt. The
	// fetch is oldest-first, so the sample reflects the author's organic
	// baseline voice rather than recently saved generations.
	sampleSize = 200

	analysisTemperature = 0.3
	analysisMaxTokens   = 1000
)

// EntryLister fetches an author's corpus entries, oldest first.
type EntryLister interface {
	ListEntries(ctx context.Context, authorID string, limit int) ([]corpus.Entry, error)
}

// ProfileSaver persists a new style profile record.
type ProfileSaver interface {
	SaveProfile(ctx context.Context, rec corpus.ProfileRecord) error
}

// Analyzer samples an author's corpus and derives a structured style
// profile via one completion call.
type Analyzer struct {
	entries  EntryLister
	saver    ProfileSaver
	provider provider.Provider
	logger   *slog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(entries EntryLister, saver ProfileSaver, p provider.Provider, logger *slog.Logger) *Analyzer {
	return &Analyzer{entries: entries, saver: saver, provider: p, logger: logger}
}

// Analyze derives and persists a new style profile for the author.
// Unlike reply parsing, a malformed analysis response is a hard error:
// a silently defaulted profile would degrade every future generation.
func (a *Analyzer) Analyze(ctx context.Context, authorID string) (corpus.ProfileRecord, error) {
	entries, err := a.entries.ListEntries(ctx, authorID, fetchLimit)
	if err != nil {
		return corpus.ProfileRecord{}, fmt.Errorf("fetching corpus for %s: %w", authorID, err)
	}
	if len(entries) == 0 {
		return corpus.ProfileRecord{}, fmt.Errorf("no corpus entries for author %s", authorID)
	}

	sample := entries
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}

	a.logger.Info("analyzing style",
		"author_id", authorID,
		"corpus_size", len(entries),
		"sample_size", len(sample),
		"provider", a.provider.Name(),
	)

	raw, err := a.provider.Complete(ctx, analysisSystem, analysisUser(sample), provider.Options{
		Temperature: analysisTemperature,
		MaxTokens:   analysisMaxTokens,
	})
	if err != nil {
		return corpus.ProfileRecord{}, fmt.Errorf("analysis completion: %w", err)
	}

	payload := parse.ExtractJSON(raw)
	var sp StyleProfile
	if err := json.Unmarshal([]byte(payload), &sp); err != nil {
		a.logger.Warn("unparseable analysis response", "raw", raw)
		return corpus.ProfileRecord{}, fmt.Errorf("parsing analysis response: %w", err)
	}

	profileJSON, err := json.Marshal(sp)
	if err != nil {
		return corpus.ProfileRecord{}, fmt.Errorf("encoding profile: %w", err)
	}

	rec := corpus.ProfileRecord{
		ID:         uuid.NewString(),
		AuthorID:   authorID,
		Profile:    profileJSON,
		SampleSize: len(sample),
	}
	if err := a.saver.SaveProfile(ctx, rec); err != nil {
		return corpus.ProfileRecord{}, fmt.Errorf("saving profile: %w", err)
	}

	a.logger.Info("style profile saved", "author_id", authorID, "profile_id", rec.ID)
	return rec, nil
}

const analysisSystem = `You are an expert at analyzing writing style. You extract precise, structured style profiles from writing samples. When asked to provide JSON, respond with ONLY the JSON object - no markdown, no explanation, no additional text.`

// analysisUser renders the sampled corpus as a numbered list followed by
// the fixed extraction schema.
func analysisUser(sample []corpus.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze these %d writing samples and extract a detailed style profile for this author.\n\nSamples:\n", len(sample))
	for i, e := range sample {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e.Content)
	}
	b.WriteString(`
Return a JSON object with exactly this structure:
{
  "tone": {"primary": "...", "secondary": "...", "formality": "..."},
  "sentenceStructure": "how they build sentences (length, rhythm, fragments)",
  "vocabulary": {"commonWords": ["..."], "slang": ["..."], "technicalLevel": "..."},
  "punctuation": "their punctuation habits",
  "emojiUsage": "how and how often they use emoji",
  "engagementPatterns": "how they engage with others",
  "topics": ["recurring topics"],
  "uniquePhrases": ["signature phrases they actually use"],
  "personalityTraits": ["traits that come through in the writing"],
  "writingRules": ["imperative rules for imitating them, e.g. 'never use hashtags'"]
}

Extract what makes this author's voice distinctive, not generic observations. Every array should hold concrete items taken from the samples.`)
	return b.String()
}
