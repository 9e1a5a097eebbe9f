package ingest

import (
	"regexp"
	"strings"
)

var (
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	mentionPattern = regexp.MustCompile(`@\w+`)
	hashtagPattern = regexp.MustCompile(`#\w+`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// CleanPost normalizes one post for the corpus: URLs, @mentions and
// #hashtags are stripped and whitespace collapsed. Retrieval and style
// analysis both work on the author's prose, not their link plumbing.
func CleanPost(s string) string {
	s = urlPattern.ReplaceAllString(s, "")
	s = mentionPattern.ReplaceAllString(s, "")
	s = hashtagPattern.ReplaceAllString(s, "")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CleanPosts cleans every post and drops the ones with nothing left.
func CleanPosts(texts []string) []string {
	cleaned := make([]string, 0, len(texts))
	for _, t := range texts {
		c := CleanPost(t)
		if c == "" {
			continue
		}
		cleaned = append(cleaned, c)
	}
	return cleaned
}
