// Package ingest feeds the corpus: a background worker drains the
// durable job queue, turning bulk imports and accepted replies into
// embedded corpus entries.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mimic-sh/mimic/internal/corpus"
	"github.com/mimic-sh/mimic/internal/storage"
)

// Job types the worker claims.
const (
	JobCorpusImport = "corpus_import"
	JobSaveReply    = "save_reply"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Embedder generates embeddings for corpus content.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EntryInserter writes finished entries to the record store.
type EntryInserter interface {
	InsertEntries(ctx context.Context, entries []corpus.Entry) error
}

// Worker processes corpus_import and save_reply jobs from the queue.
type Worker struct {
	store    JobStore
	embedder Embedder
	inserter EntryInserter
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to
// 500ms.
func NewWorker(store JobStore, embedder Embedder, inserter EntryInserter, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		inserter: inserter,
		poll:     pollInterval,
		logger:   logger,
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job. Returns true if a job was
// processed, regardless of success or failure.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobCorpusImport, JobSaveReply})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// ImportPayload is the corpus_import job payload. Either Texts or
// FilePath must be set; when both are, the file's contents are appended
// to Texts.
type ImportPayload struct {
	AuthorID string   `json:"author_id"`
	Texts    []string `json:"texts,omitempty"`
	FilePath string   `json:"file_path,omitempty"`
}

// SaveReplyPayload is the save_reply job payload.
type SaveReplyPayload struct {
	AuthorID string `json:"author_id"`
	Content  string `json:"content"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	switch job.Type {
	case JobCorpusImport:
		return w.processImport(ctx, job)
	case JobSaveReply:
		return w.processSaveReply(ctx, job)
	}
	return fmt.Errorf("unknown job type %q", job.Type)
}

func (w *Worker) processImport(ctx context.Context, job *storage.Job) error {
	var payload ImportPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.AuthorID == "" {
		return fmt.Errorf("import payload has no author_id")
	}

	texts := payload.Texts
	if payload.FilePath != "" {
		extracted, err := ExtractFile(payload.FilePath)
		if err != nil {
			return fmt.Errorf("extracting %s: %w", payload.FilePath, err)
		}
		texts = append(texts, extracted...)
	}

	cleaned := CleanPosts(texts)
	if len(cleaned) == 0 {
		return fmt.Errorf("no usable posts in import for author %s", payload.AuthorID)
	}

	vectors, err := w.embedder.EmbedBatch(ctx, cleaned)
	if err != nil {
		return fmt.Errorf("embedding %d posts: %w", len(cleaned), err)
	}

	entries := make([]corpus.Entry, len(cleaned))
	for i, content := range cleaned {
		entries[i] = corpus.Entry{
			ID:        uuid.NewString(),
			AuthorID:  payload.AuthorID,
			Content:   content,
			Embedding: vectors[i],
		}
	}
	if err := w.inserter.InsertEntries(ctx, entries); err != nil {
		return fmt.Errorf("inserting %d entries: %w", len(entries), err)
	}

	w.logger.Info("corpus import complete",
		"author_id", payload.AuthorID,
		"submitted", len(texts),
		"inserted", len(entries),
	)
	return nil
}

func (w *Worker) processSaveReply(ctx context.Context, job *storage.Job) error {
	var payload SaveReplyPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.AuthorID == "" || payload.Content == "" {
		return fmt.Errorf("save_reply payload missing author_id or content")
	}

	vec, err := w.embedder.Embed(ctx, payload.Content)
	if err != nil {
		return fmt.Errorf("embedding reply: %w", err)
	}

	entry := corpus.Entry{
		ID:        uuid.NewString(),
		AuthorID:  payload.AuthorID,
		Content:   payload.Content,
		Embedding: vec,
	}
	if err := w.inserter.InsertEntries(ctx, []corpus.Entry{entry}); err != nil {
		return fmt.Errorf("inserting accepted reply: %w", err)
	}

	w.logger.Info("accepted reply added to corpus", "author_id", payload.AuthorID, "entry_id", entry.ID)
	return nil
}
