package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/mimic-sh/mimic/internal/corpus"
	"github.com/mimic-sh/mimic/internal/storage"
)

type mockJobStore struct {
	job       *storage.Job
	claimErr  error
	completed []string
	failed    map[string]string
}

func (m *mockJobStore) ClaimNextJob(types []string) (*storage.Job, error) {
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	job := m.job
	m.job = nil
	return job, nil
}

func (m *mockJobStore) CompleteJob(id string) error {
	m.completed = append(m.completed, id)
	return nil
}

func (m *mockJobStore) FailJob(id string, errMsg string) error {
	if m.failed == nil {
		m.failed = map[string]string{}
	}
	m.failed[id] = errMsg
	return nil
}

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	batchFn func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.embedFn == nil {
		return []float32{1}, nil
	}
	return m.embedFn(ctx, text)
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.batchFn == nil {
		vecs := make([][]float32, len(texts))
		for i := range vecs {
			vecs[i] = []float32{float32(i)}
		}
		return vecs, nil
	}
	return m.batchFn(ctx, texts)
}

type mockInserter struct {
	entries   []corpus.Entry
	insertErr error
	calls     int
}

func (m *mockInserter) InsertEntries(ctx context.Context, entries []corpus.Entry) error {
	m.calls++
	if m.insertErr != nil {
		return m.insertErr
	}
	m.entries = append(m.entries, entries...)
	return nil
}

func newTestWorker(store *mockJobStore, emb *mockEmbedder, ins *mockInserter) *Worker {
	return NewWorker(store, emb, ins, 0, slog.New(slog.DiscardHandler))
}

func TestRunOnce_NoJob(t *testing.T) {
	w := newTestWorker(&mockJobStore{}, &mockEmbedder{}, &mockInserter{})
	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Error("done = true with an empty queue")
	}
}

func TestRunOnce_Import(t *testing.T) {
	store := &mockJobStore{job: &storage.Job{
		ID:          "j1",
		Type:        JobCorpusImport,
		PayloadJSON: `{"author_id": "a1", "texts": ["check this out https://t.co/x", "@fan thanks! #blessed", "   "]}`,
	}}
	ins := &mockInserter{}
	w := newTestWorker(store, &mockEmbedder{}, ins)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("done = false, want true")
	}

	// Third text cleans to nothing and is dropped.
	if len(ins.entries) != 2 {
		t.Fatalf("inserted %d entries, want 2", len(ins.entries))
	}
	if ins.entries[0].Content != "check this out" {
		t.Errorf("entry 0 = %q", ins.entries[0].Content)
	}
	if ins.entries[1].Content != "thanks!" {
		t.Errorf("entry 1 = %q", ins.entries[1].Content)
	}
	for i, e := range ins.entries {
		if e.AuthorID != "a1" || e.ID == "" || len(e.Embedding) == 0 {
			t.Errorf("entry %d = %+v", i, e)
		}
	}
	if len(store.completed) != 1 || store.completed[0] != "j1" {
		t.Errorf("completed = %v", store.completed)
	}
}

func TestRunOnce_ImportNothingUsable(t *testing.T) {
	store := &mockJobStore{job: &storage.Job{
		ID:          "j2",
		Type:        JobCorpusImport,
		PayloadJSON: `{"author_id": "a1", "texts": ["https://only-a-link.example"]}`,
	}}
	ins := &mockInserter{}
	w := newTestWorker(store, &mockEmbedder{}, ins)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("done = false, want true")
	}
	if msg := store.failed["j2"]; !strings.Contains(msg, "no usable posts") {
		t.Errorf("failure message = %q", msg)
	}
	if ins.calls != 0 {
		t.Error("insert attempted with nothing usable")
	}
}

func TestRunOnce_SaveReply(t *testing.T) {
	store := &mockJobStore{job: &storage.Job{
		ID:          "j3",
		Type:        JobSaveReply,
		PayloadJSON: `{"author_id": "a1", "content": "the accepted reply"}`,
	}}
	ins := &mockInserter{}
	var embedded string
	emb := &mockEmbedder{
		embedFn: func(_ context.Context, text string) ([]float32, error) {
			embedded = text
			return []float32{0.5}, nil
		},
	}
	w := newTestWorker(store, emb, ins)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if embedded != "the accepted reply" {
		t.Errorf("embedded = %q", embedded)
	}
	if len(ins.entries) != 1 || ins.entries[0].Content != "the accepted reply" {
		t.Errorf("entries = %+v", ins.entries)
	}
	if len(store.completed) != 1 {
		t.Errorf("completed = %v", store.completed)
	}
}

func TestRunOnce_EmbedFailureFailsJob(t *testing.T) {
	store := &mockJobStore{job: &storage.Job{
		ID:          "j4",
		Type:        JobSaveReply,
		PayloadJSON: `{"author_id": "a1", "content": "x"}`,
	}}
	emb := &mockEmbedder{
		embedFn: func(_ context.Context, _ string) ([]float32, error) {
			return nil, errors.New("rate limited")
		},
	}
	w := newTestWorker(store, emb, &mockInserter{})

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("done = false, want true")
	}
	if msg := store.failed["j4"]; !strings.Contains(msg, "rate limited") {
		t.Errorf("failure message = %q", msg)
	}
	if len(store.completed) != 0 {
		t.Error("job completed despite failure")
	}
}

func TestRunOnce_BadPayload(t *testing.T) {
	store := &mockJobStore{job: &storage.Job{
		ID:          "j5",
		Type:        JobCorpusImport,
		PayloadJSON: `{not json`,
	}}
	w := newTestWorker(store, &mockEmbedder{}, &mockInserter{})

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if _, ok := store.failed["j5"]; !ok {
		t.Error("bad payload did not fail the job")
	}
}

func TestRunOnce_ClaimError(t *testing.T) {
	store := &mockJobStore{claimErr: errors.New("db locked")}
	w := newTestWorker(store, &mockEmbedder{}, &mockInserter{})

	done, err := w.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if done {
		t.Error("done = true on claim error")
	}
}
