// Package parse turns raw completion output into labeled candidates.
// Models are asked for pure JSON but routinely wrap it in markdown
// fences or prose, so extraction is tolerant. Parsing never fails:
// output that cannot be recovered yields a fixed fallback sequence
// flagged as degraded.
package parse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Candidate is one generated reply or post with its slot label.
type Candidate struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// ReplyLabels is the fixed slot order for reply generation.
var ReplyLabels = []string{"Agreeing", "Contrarian", "Question", "Thoughtful", "Hot Take"}

// PostLabels is the fixed slot order for post generation.
var PostLabels = []string{"Polished", "Reframed", "Casual"}

var fallbackTexts = []string{
	"That's an interesting perspective!",
	"Thanks for sharing this!",
	"Great point - I appreciate your thoughts on this.",
}

var (
	labeledFence   = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	unlabeledFence = regexp.MustCompile("(?s)```\\s*(.*?)```")
	bareArray      = regexp.MustCompile(`(?s)\[\s*["{].*\]`)
	bareObject     = regexp.MustCompile(`(?s)\{\s*".*\}`)
)

// ExtractJSON pulls the JSON payload out of raw model output. It tries,
// in order: a ```json fence, a bare ``` fence, the first bare array or
// object in the text. When nothing matches it returns the trimmed input.
func ExtractJSON(raw string) string {
	if m := labeledFence.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := unlabeledFence.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := bareArray.FindString(raw); m != "" {
		return m
	}
	if m := bareObject.FindString(raw); m != "" {
		return m
	}
	return strings.TrimSpace(raw)
}

// Candidates parses raw model output into labeled candidates. The
// payload may be an envelope ({"replies": [...]} or {"posts": [...]})
// or a bare array, with elements either {label, text} objects or plain
// strings. Plain strings are paired with labels positionally.
//
// When nothing usable can be recovered, Candidates returns the fixed
// fallback sequence and degraded=true. It never returns an error.
func Candidates(raw string, labels []string) ([]Candidate, bool) {
	payload := ExtractJSON(raw)

	if cands := decodeCandidates(payload, labels); len(cands) > 0 {
		return cands, false
	}
	return Fallback(labels), true
}

// Fallback returns the fixed degraded-mode candidates for the given
// label set.
func Fallback(labels []string) []Candidate {
	cands := make([]Candidate, len(fallbackTexts))
	for i, text := range fallbackTexts {
		cands[i] = Candidate{Label: labelAt(labels, i), Text: text}
	}
	return cands
}

func decodeCandidates(payload string, labels []string) []Candidate {
	var envelope struct {
		Replies json.RawMessage `json:"replies"`
		Posts   json.RawMessage `json:"posts"`
	}
	if err := json.Unmarshal([]byte(payload), &envelope); err == nil {
		if len(envelope.Replies) > 0 {
			return decodeArray(envelope.Replies, labels)
		}
		if len(envelope.Posts) > 0 {
			return decodeArray(envelope.Posts, labels)
		}
	}
	return decodeArray(json.RawMessage(payload), labels)
}

// decodeArray accepts either labeled objects or bare strings.
func decodeArray(data json.RawMessage, labels []string) []Candidate {
	var objects []Candidate
	if err := json.Unmarshal(data, &objects); err == nil {
		out := objects[:0]
		for i, c := range objects {
			c.Text = strings.TrimSpace(c.Text)
			if c.Text == "" {
				continue
			}
			if c.Label == "" {
				c.Label = labelAt(labels, i)
			}
			out = append(out, c)
		}
		if len(out) > 0 {
			return out
		}
	}

	var strs []string
	if err := json.Unmarshal(data, &strs); err == nil {
		var out []Candidate
		for i, s := range strs {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			out = append(out, Candidate{Label: labelAt(labels, i), Text: s})
		}
		return out
	}
	return nil
}

func labelAt(labels []string, i int) string {
	if i < len(labels) {
		return labels[i]
	}
	return fmt.Sprintf("Option %d", i+1)
}
