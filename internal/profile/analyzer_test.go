package profile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/mimic-sh/mimic/internal/corpus"
	"github.com/mimic-sh/mimic/internal/provider"
)

type mockLister struct {
	listFn func(ctx context.Context, authorID string, limit int) ([]corpus.Entry, error)
}

func (m *mockLister) ListEntries(ctx context.Context, authorID string, limit int) ([]corpus.Entry, error) {
	return m.listFn(ctx, authorID, limit)
}

type mockSaver struct {
	saveFn func(ctx context.Context, rec corpus.ProfileRecord) error
	calls  int
}

func (m *mockSaver) SaveProfile(ctx context.Context, rec corpus.ProfileRecord) error {
	m.calls++
	return m.saveFn(ctx, rec)
}

type mockProvider struct {
	completeFn func(ctx context.Context, system, user string, opts provider.Options) (string, error)
	calls      int
}

func (m *mockProvider) Complete(ctx context.Context, system, user string, opts provider.Options) (string, error) {
	m.calls++
	return m.completeFn(ctx, system, user, opts)
}

func (m *mockProvider) Name() string  { return "mock" }
func (m *mockProvider) Model() string { return "mock-model" }

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func nEntries(n int) []corpus.Entry {
	entries := make([]corpus.Entry, n)
	for i := range entries {
		entries[i] = corpus.Entry{ID: "e", AuthorID: "a1", Content: "sample text"}
	}
	return entries
}

func TestAnalyze(t *testing.T) {
	var gotLimit int
	lister := &mockLister{
		listFn: func(_ context.Context, authorID string, limit int) ([]corpus.Entry, error) {
			gotLimit = limit
			return []corpus.Entry{
				{ID: "e1", AuthorID: "a1", Content: "first sample"},
				{ID: "e2", AuthorID: "a1", Content: "second sample"},
			}, nil
		},
	}
	var gotRec corpus.ProfileRecord
	saver := &mockSaver{
		saveFn: func(_ context.Context, rec corpus.ProfileRecord) error {
			gotRec = rec
			return nil
		},
	}
	var gotOpts provider.Options
	var gotUser string
	p := &mockProvider{
		completeFn: func(_ context.Context, system, user string, opts provider.Options) (string, error) {
			gotOpts = opts
			gotUser = user
			return "```json\n{\"tone\": {\"primary\": \"dry\"}}\n```", nil
		},
	}

	a := NewAnalyzer(lister, saver, p, testLogger())
	rec, err := a.Analyze(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if gotLimit != 1000 {
		t.Errorf("fetch limit = %d, want 1000", gotLimit)
	}
	if gotOpts.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", gotOpts.Temperature)
	}
	if !strings.Contains(gotUser, "1. first sample") || !strings.Contains(gotUser, "2. second sample") {
		t.Errorf("prompt missing numbered samples:\n%s", gotUser)
	}
	if rec.AuthorID != "a1" || rec.SampleSize != 2 {
		t.Errorf("record = %+v", rec)
	}
	if rec.ID == "" {
		t.Error("record id not assigned")
	}
	if !strings.Contains(string(gotRec.Profile), "dry") {
		t.Errorf("saved profile = %s", gotRec.Profile)
	}
}

// The sample is capped at the first 200 entries of an oldest-first fetch.
func TestAnalyze_SampleCap(t *testing.T) {
	lister := &mockLister{
		listFn: func(_ context.Context, _ string, _ int) ([]corpus.Entry, error) {
			return nEntries(500), nil
		},
	}
	saver := &mockSaver{saveFn: func(_ context.Context, _ corpus.ProfileRecord) error { return nil }}
	p := &mockProvider{
		completeFn: func(_ context.Context, _, user string, _ provider.Options) (string, error) {
			if strings.Contains(user, "201. ") {
				t.Error("prompt includes samples past the cap")
			}
			if !strings.Contains(user, "200 writing samples") {
				t.Error("prompt does not state the sample count")
			}
			return `{"tone": {"primary": "x"}}`, nil
		},
	}

	a := NewAnalyzer(lister, saver, p, testLogger())
	rec, err := a.Analyze(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rec.SampleSize != 200 {
		t.Errorf("sample size = %d, want 200", rec.SampleSize)
	}
}

func TestAnalyze_EmptyCorpus(t *testing.T) {
	lister := &mockLister{
		listFn: func(_ context.Context, _ string, _ int) ([]corpus.Entry, error) {
			return nil, nil
		},
	}
	p := &mockProvider{completeFn: func(_ context.Context, _, _ string, _ provider.Options) (string, error) {
		t.Fatal("provider should not be called for an empty corpus")
		return "", nil
	}}

	a := NewAnalyzer(lister, &mockSaver{}, p, testLogger())
	if _, err := a.Analyze(context.Background(), "a1"); err == nil {
		t.Fatal("expected error for empty corpus")
	}
}

// A malformed analysis response is a hard error, never a default profile.
func TestAnalyze_MalformedResponse(t *testing.T) {
	lister := &mockLister{
		listFn: func(_ context.Context, _ string, _ int) ([]corpus.Entry, error) {
			return nEntries(3), nil
		},
	}
	saver := &mockSaver{saveFn: func(_ context.Context, _ corpus.ProfileRecord) error { return nil }}
	p := &mockProvider{
		completeFn: func(_ context.Context, _, _ string, _ provider.Options) (string, error) {
			return "I'm sorry, I can't produce a profile for that.", nil
		},
	}

	a := NewAnalyzer(lister, saver, p, testLogger())
	if _, err := a.Analyze(context.Background(), "a1"); err == nil {
		t.Fatal("expected parse error")
	}
	if saver.calls != 0 {
		t.Errorf("SaveProfile called %d times, want 0", saver.calls)
	}
}

func TestAnalyze_SaveFails(t *testing.T) {
	lister := &mockLister{
		listFn: func(_ context.Context, _ string, _ int) ([]corpus.Entry, error) {
			return nEntries(1), nil
		},
	}
	saver := &mockSaver{saveFn: func(_ context.Context, _ corpus.ProfileRecord) error {
		return errors.New("store down")
	}}
	p := &mockProvider{
		completeFn: func(_ context.Context, _, _ string, _ provider.Options) (string, error) {
			return `{"tone": {"primary": "x"}}`, nil
		},
	}

	a := NewAnalyzer(lister, saver, p, testLogger())
	if _, err := a.Analyze(context.Background(), "a1"); err == nil {
		t.Fatal("expected error when save fails")
	}
}
