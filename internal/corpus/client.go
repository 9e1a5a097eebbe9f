// Package corpus talks to the remote record store holding each author's
// writing samples and style profiles. The store exposes a PostgREST-style
// API: table endpoints under /rest/v1 plus RPC endpoints for similarity
// search and aggregation.
package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Client communicates with the record store REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a record store client for the given base URL and API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// do executes a request and decodes an error envelope on non-2xx status.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		var envelope struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Message != "" {
			return nil, fmt.Errorf("record store: status %d: %s", resp.StatusCode, envelope.Message)
		}
		return nil, fmt.Errorf("record store: status %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)
	return req, nil
}

// --- Entries ---

// Entry is one writing sample in the corpus.
type Entry struct {
	ID        string    `json:"id,omitempty"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// InsertEntries writes entries to the store. The store is asked not to
// echo the rows back.
func (c *Client) InsertEntries(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/rest/v1/entries", entries)
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("inserting entries: %w", err)
	}
	resp.Body.Close()
	return nil
}

// CountEntries returns the number of corpus entries for the author.
func (c *Client) CountEntries(ctx context.Context, authorID string) (int, error) {
	path := "/rest/v1/entries?select=id&author_id=eq." + url.QueryEscape(authorID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Prefer", "count=exact")
	req.Header.Set("Range", "0-0")

	resp, err := c.do(req)
	if err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	defer resp.Body.Close()

	return parseContentRangeTotal(resp.Header.Get("Content-Range"))
}

// parseContentRangeTotal extracts the total from a "0-0/42" style header.
func parseContentRangeTotal(header string) (int, error) {
	idx := strings.LastIndex(header, "/")
	if idx < 0 || idx == len(header)-1 {
		return 0, fmt.Errorf("missing total in Content-Range %q", header)
	}
	total := header[idx+1:]
	if total == "*" {
		return 0, fmt.Errorf("record store did not return an exact count")
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("parsing Content-Range %q: %w", header, err)
	}
	return n, nil
}

// ListEntries returns up to limit entries for the author, oldest first.
// Embeddings are not fetched.
func (c *Client) ListEntries(ctx context.Context, authorID string, limit int) ([]Entry, error) {
	path := fmt.Sprintf("/rest/v1/entries?select=id,author_id,content,created_at&author_id=eq.%s&order=created_at.asc&limit=%d",
		url.QueryEscape(authorID), limit)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer resp.Body.Close()

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding entries: %w", err)
	}
	return entries, nil
}

// DeleteAuthorEntries removes every corpus entry for the author.
func (c *Client) DeleteAuthorEntries(ctx context.Context, authorID string) error {
	path := "/rest/v1/entries?author_id=eq." + url.QueryEscape(authorID)
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("deleting entries: %w", err)
	}
	resp.Body.Close()
	return nil
}

// --- Similarity search ---

// Match is a similarity search hit.
type Match struct {
	ID         string  `json:"id"`
	AuthorID   string  `json:"author_id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

type matchParams struct {
	QueryEmbedding []float32 `json:"query_embedding"`
	MatchCount     int       `json:"match_count"`
	FilterAuthorID string    `json:"filter_author_id"`
}

// Search runs the match_entries RPC: the top matchCount entries for the
// author ranked by vector similarity to the query embedding.
func (c *Client) Search(ctx context.Context, queryEmbedding []float32, matchCount int, authorID string) ([]Match, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/rest/v1/rpc/match_entries", matchParams{
		QueryEmbedding: queryEmbedding,
		MatchCount:     matchCount,
		FilterAuthorID: authorID,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("searching entries: %w", err)
	}
	defer resp.Body.Close()

	var matches []Match
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		return nil, fmt.Errorf("decoding matches: %w", err)
	}
	return matches, nil
}

// --- Style profiles ---

// ProfileRecord is a persisted style profile row.
type ProfileRecord struct {
	ID         string          `json:"id,omitempty"`
	AuthorID   string          `json:"author_id"`
	Profile    json.RawMessage `json:"profile"`
	SampleSize int             `json:"sample_size"`
	CreatedAt  time.Time       `json:"created_at,omitempty"`
}

// SaveProfile writes a new style profile row.
func (c *Client) SaveProfile(ctx context.Context, rec ProfileRecord) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/rest/v1/style_profiles", rec)
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	resp.Body.Close()
	return nil
}

// LatestProfile returns the newest style profile for the author, or
// ErrNotFound when the author has none.
func (c *Client) LatestProfile(ctx context.Context, authorID string) (ProfileRecord, error) {
	path := "/rest/v1/style_profiles?author_id=eq." + url.QueryEscape(authorID) + "&order=created_at.desc&limit=1"
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return ProfileRecord{}, err
	}

	resp, err := c.do(req)
	if err != nil {
		return ProfileRecord{}, fmt.Errorf("fetching profile: %w", err)
	}
	defer resp.Body.Close()

	var records []ProfileRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return ProfileRecord{}, fmt.Errorf("decoding profiles: %w", err)
	}
	if len(records) == 0 {
		return ProfileRecord{}, ErrNotFound
	}
	return records[0], nil
}

// GetProfile returns the style profile with the given id, or ErrNotFound.
func (c *Client) GetProfile(ctx context.Context, id string) (ProfileRecord, error) {
	path := "/rest/v1/style_profiles?id=eq." + url.QueryEscape(id) + "&limit=1"
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return ProfileRecord{}, err
	}

	resp, err := c.do(req)
	if err != nil {
		return ProfileRecord{}, fmt.Errorf("fetching profile: %w", err)
	}
	defer resp.Body.Close()

	var records []ProfileRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return ProfileRecord{}, fmt.Errorf("decoding profiles: %w", err)
	}
	if len(records) == 0 {
		return ProfileRecord{}, ErrNotFound
	}
	return records[0], nil
}

// ListProfiles returns every stored profile for the author, newest first.
func (c *Client) ListProfiles(ctx context.Context, authorID string) ([]ProfileRecord, error) {
	path := "/rest/v1/style_profiles?author_id=eq." + url.QueryEscape(authorID) + "&order=created_at.desc"
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer resp.Body.Close()

	var records []ProfileRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding profiles: %w", err)
	}
	return records, nil
}

// DeleteAuthorProfiles removes every stored profile for the author.
func (c *Client) DeleteAuthorProfiles(ctx context.Context, authorID string) error {
	path := "/rest/v1/style_profiles?author_id=eq." + url.QueryEscape(authorID)
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("deleting profiles: %w", err)
	}
	resp.Body.Close()
	return nil
}

// --- Authors ---

// AuthorCount pairs an author with their number of corpus entries.
type AuthorCount struct {
	AuthorID   string `json:"author_id"`
	EntryCount int    `json:"entry_count"`
}

// ListAuthors runs the list_authors RPC: every author present in the
// corpus with their entry count.
func (c *Client) ListAuthors(ctx context.Context) ([]AuthorCount, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/rest/v1/rpc/list_authors", map[string]any{})
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("listing authors: %w", err)
	}
	defer resp.Body.Close()

	var authors []AuthorCount
	if err := json.NewDecoder(resp.Body).Decode(&authors); err != nil {
		return nil, fmt.Errorf("decoding authors: %w", err)
	}
	if authors == nil {
		authors = []AuthorCount{}
	}
	return authors, nil
}
