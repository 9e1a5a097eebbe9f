package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// ExtractFile pulls individual posts out of an archive file. Supported
// formats: plain text (one post per line, blank lines ignored), JSON
// (array of strings or of objects with a text-like field), HTML
// (block-level text), PDF (plain text lines).
func ExtractFile(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return extractText(path)
	case ".json":
		return extractJSON(path)
	case ".html", ".htm":
		return extractHTML(path)
	case ".pdf":
		return extractPDF(path)
	}
	return nil, fmt.Errorf("unsupported archive format %q", filepath.Ext(path))
}

func extractText(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return nonEmptyLines(string(data)), nil
}

// extractJSON accepts either ["post", ...] or [{"text": "post"}, ...]
// shapes. Object keys tried in order: text, full_text, content (the
// shapes common social-media export tools produce).
func extractJSON(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var strs []string
	if err := json.Unmarshal(data, &strs); err == nil {
		return strs, nil
	}

	var objects []struct {
		Text     string `json:"text"`
		FullText string `json:"full_text"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("parsing JSON archive: %w", err)
	}
	posts := make([]string, 0, len(objects))
	for _, o := range objects {
		switch {
		case o.Text != "":
			posts = append(posts, o.Text)
		case o.FullText != "":
			posts = append(posts, o.FullText)
		case o.Content != "":
			posts = append(posts, o.Content)
		}
	}
	return posts, nil
}

// blockTags are the elements treated as one post each.
var blockTags = map[string]bool{
	"p":          true,
	"li":         true,
	"blockquote": true,
	"article":    true,
}

func extractHTML(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML archive: %w", err)
	}

	var posts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "script" || n.Data == "style" {
				return
			}
			if blockTags[n.Data] {
				if text := strings.TrimSpace(nodeText(n)); text != "" {
					posts = append(posts, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return posts, nil
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
		b.WriteString(" ")
	}
	return b.String()
}

func extractPDF(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extracting PDF text: %w", err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading PDF text: %w", err)
	}
	return nonEmptyLines(string(data)), nil
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
