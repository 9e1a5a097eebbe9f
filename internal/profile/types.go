// Package profile defines the structured style profile extracted from an
// author's corpus and the analyzer that produces it.
package profile

import "encoding/json"

// StyleProfile is a structured description of how an author writes.
// Profiles are immutable once stored; re-analysis creates a new record.
type StyleProfile struct {
	Tone               Tone       `json:"tone"`
	SentenceStructure  string     `json:"sentenceStructure"`
	Vocabulary         Vocabulary `json:"vocabulary"`
	Punctuation        string     `json:"punctuation"`
	EmojiUsage         string     `json:"emojiUsage"`
	EngagementPatterns string     `json:"engagementPatterns"`
	Topics             []string   `json:"topics"`
	UniquePhrases      []string   `json:"uniquePhrases"`
	PersonalityTraits  []string   `json:"personalityTraits"`
	WritingRules       []string   `json:"writingRules"`
}

type Tone struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Formality string `json:"formality"`
}

type Vocabulary struct {
	CommonWords    []string `json:"commonWords"`
	Slang          []string `json:"slang"`
	TechnicalLevel string   `json:"technicalLevel"`
}

// Default returns a neutral profile used when stored fields are missing.
func Default() StyleProfile {
	return StyleProfile{
		Tone: Tone{
			Primary:   "conversational",
			Secondary: "friendly",
			Formality: "casual",
		},
		SentenceStructure: "varied",
		Vocabulary: Vocabulary{
			CommonWords:    []string{},
			Slang:          []string{},
			TechnicalLevel: "general",
		},
		Punctuation:        "standard",
		EmojiUsage:         "rare",
		EngagementPatterns: "direct responses",
		Topics:             []string{},
		UniquePhrases:      []string{},
		PersonalityTraits:  []string{},
		WritingRules:       []string{},
	}
}

// Decode reads a stored profile payload tolerantly: unknown fields are
// ignored, missing or empty fields take their defaults, and a payload
// that does not parse at all yields the default profile. Stored records
// come from model output and vary in shape, so no field access here may
// fail.
func Decode(raw []byte) StyleProfile {
	p := Default()
	if err := json.Unmarshal(raw, &p); err != nil {
		return Default()
	}
	d := Default()
	if p.Tone.Primary == "" {
		p.Tone.Primary = d.Tone.Primary
	}
	if p.Tone.Secondary == "" {
		p.Tone.Secondary = d.Tone.Secondary
	}
	if p.Tone.Formality == "" {
		p.Tone.Formality = d.Tone.Formality
	}
	if p.SentenceStructure == "" {
		p.SentenceStructure = d.SentenceStructure
	}
	if p.Vocabulary.TechnicalLevel == "" {
		p.Vocabulary.TechnicalLevel = d.Vocabulary.TechnicalLevel
	}
	if p.Punctuation == "" {
		p.Punctuation = d.Punctuation
	}
	if p.EmojiUsage == "" {
		p.EmojiUsage = d.EmojiUsage
	}
	if p.EngagementPatterns == "" {
		p.EngagementPatterns = d.EngagementPatterns
	}
	if p.Vocabulary.CommonWords == nil {
		p.Vocabulary.CommonWords = []string{}
	}
	if p.Vocabulary.Slang == nil {
		p.Vocabulary.Slang = []string{}
	}
	if p.Topics == nil {
		p.Topics = []string{}
	}
	if p.UniquePhrases == nil {
		p.UniquePhrases = []string{}
	}
	if p.PersonalityTraits == nil {
		p.PersonalityTraits = []string{}
	}
	if p.WritingRules == nil {
		p.WritingRules = []string{}
	}
	return p
}
