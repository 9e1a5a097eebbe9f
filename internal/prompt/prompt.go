// Package prompt assembles provider-agnostic instruction pairs for
// reply and post generation. Building is deterministic: the same inputs
// always produce the same prompt text.
package prompt

import (
	"fmt"
	"strings"

	"github.com/mimic-sh/mimic/internal/profile"
	"github.com/mimic-sh/mimic/internal/retrieval"
)

// Prompt is a system/user instruction pair ready for a provider call.
type Prompt struct {
	System string
	User   string
}

// ThreadMessage is one turn of the conversation leading up to the
// target post, most-recent-last.
type ThreadMessage struct {
	Author string
	Handle string
	Text   string
}

// Example counts requested from retrieval. Fewer examples are needed
// when a profile already supplies structure; free-form post composition
// needs broader topical grounding than replying.
const (
	ReplyExamplesWithProfile    = 10
	ReplyExamplesWithoutProfile = 25
	PostExamplesWithProfile     = 15
	PostExamplesWithoutProfile  = 30
)

// ReplyExampleCount returns how many examples to retrieve for reply
// generation.
func ReplyExampleCount(hasProfile bool) int {
	if hasProfile {
		return ReplyExamplesWithProfile
	}
	return ReplyExamplesWithoutProfile
}

// PostExampleCount returns how many examples to retrieve for post
// composition.
func PostExampleCount(hasProfile bool) int {
	if hasProfile {
		return PostExamplesWithProfile
	}
	return PostExamplesWithoutProfile
}

// Profile material caps. Without them the model over-fits: every reply
// opens with the same signature phrase and obeys every rule at once,
// which reads as parody rather than imitation.
const (
	maxSignaturePhrases = 3
	maxSlangTerms       = 4
)

const jsonOnly = "When asked to provide JSON, respond with ONLY the JSON - no markdown, no code fences, no explanation, no additional text."

// Replies builds the prompt for the five fixed reply slots.
func Replies(target string, thread []ThreadMessage, examples []retrieval.Example, prof *profile.StyleProfile, history []string) Prompt {
	var b strings.Builder

	writeTarget(&b, target, thread)
	writeExamples(&b, examples)
	writeHistory(&b, history)

	b.WriteString(`Generate exactly 5 replies to the target post, one per slot, in this order:
1. "Agreeing" - agrees with the post and adds an insight of your own
2. "Contrarian" - respectfully challenges the premise
3. "Question" - a short, provocative question
4. "Thoughtful" - a longer, considered take
5. "Hot Take" - a punchy, controversial angle

Requirements:
- Match the approximate length of the target post: a short post gets a short reply. Never expand a short post into a long-form response.
- Make the five replies genuinely different from each other, not rewordings.
- Stay contextually grounded in the target post.

Return ONLY a JSON object of this exact shape:
{"replies": [{"label": "Agreeing", "text": "..."}, {"label": "Contrarian", "text": "..."}, {"label": "Question", "text": "..."}, {"label": "Thoughtful", "text": "..."}, {"label": "Hot Take", "text": "..."}]}`)

	return Prompt{System: replySystem(prof), User: b.String()}
}

// Posts builds the prompt for free-form post composition: three
// variants of the user's idea in the author's voice.
func Posts(idea string, examples []retrieval.Example, prof *profile.StyleProfile) Prompt {
	var b strings.Builder

	fmt.Fprintf(&b, "Post idea: %q\n\n", idea)
	writeExamples(&b, examples)

	b.WriteString(`Write exactly 3 versions of this post in the author's voice:
1. "Polished" - the idea expressed cleanly, their strongest phrasing
2. "Reframed" - the same idea from a different angle
3. "Casual" - the idea as an offhand, low-effort remark

Requirements:
- Each version must stand alone as a complete post.
- Keep each version near the length the author typically writes.

Return ONLY a JSON object of this exact shape:
{"posts": [{"label": "Polished", "text": "..."}, {"label": "Reframed", "text": "..."}, {"label": "Casual", "text": "..."}]}`)

	return Prompt{System: postSystem(prof), User: b.String()}
}

// Custom builds the prompt for a single instruction-driven reply. The
// output contract is bare text, not JSON.
func Custom(target string, thread []ThreadMessage, instruction string, examples []retrieval.Example, prof *profile.StyleProfile) Prompt {
	var b strings.Builder

	writeTarget(&b, target, thread)
	fmt.Fprintf(&b, "Instruction: %q\n\n", instruction)
	writeExamples(&b, examples)

	b.WriteString(`Write one reply to the target post that follows the instruction while staying true to the author's voice.
Match the approximate length of the target post unless the instruction says otherwise.

Return ONLY the reply text, no quotes or extra formatting.`)

	return Prompt{System: customSystem(prof), User: b.String()}
}

func writeTarget(b *strings.Builder, target string, thread []ThreadMessage) {
	if len(thread) >= 2 {
		b.WriteString("Conversation so far:\n")
		for i, m := range thread {
			name := m.Author
			if m.Handle != "" {
				name = fmt.Sprintf("%s (%s)", m.Author, m.Handle)
			}
			fmt.Fprintf(b, "%d. %s: %s\n", i+1, name, m.Text)
		}
		b.WriteString("\nReply to the LAST message only. You may reference earlier turns, but do not answer them directly.\n\n")
		return
	}
	fmt.Fprintf(b, "Target post: %q\n\n", target)
}

func writeExamples(b *strings.Builder, examples []retrieval.Example) {
	if len(examples) == 0 {
		return
	}
	b.WriteString("The author's own writing, for style reference only - do NOT copy or lightly rephrase any of it:\n")
	for i, ex := range examples {
		fmt.Fprintf(b, "%d. %s\n", i+1, ex.Content)
	}
	b.WriteString("\n")
}

func writeHistory(b *strings.Builder, history []string) {
	if len(history) == 0 {
		return
	}
	b.WriteString("Replies the author recently accepted:\n")
	for _, h := range history {
		fmt.Fprintf(b, "- %s\n", h)
	}
	b.WriteString("\n")
}

func replySystem(prof *profile.StyleProfile) string {
	base := "You are an expert at generating replies that match a specific author's personality and writing style. " + jsonOnly
	return base + profileSection(prof)
}

func postSystem(prof *profile.StyleProfile) string {
	base := "You are an expert at writing social media posts in a specific author's voice. " + jsonOnly
	return base + profileSection(prof)
}

func customSystem(prof *profile.StyleProfile) string {
	base := "You are an expert at writing replies in a specific author's voice, following the user's instruction exactly."
	return base + profileSection(prof)
}

// profileSection renders the style profile into the system instruction.
// A nil profile yields the generic mimic-the-examples fallback.
func profileSection(prof *profile.StyleProfile) string {
	if prof == nil {
		return "\n\nNo style profile is available. Infer the author's voice entirely from the provided writing samples and imitate it closely."
	}

	var b strings.Builder
	b.WriteString("\n\nAuthor style profile:\n")
	fmt.Fprintf(&b, "- Tone: %s, %s; formality: %s\n", prof.Tone.Primary, prof.Tone.Secondary, prof.Tone.Formality)
	fmt.Fprintf(&b, "- Sentence structure: %s\n", prof.SentenceStructure)
	if len(prof.Vocabulary.CommonWords) > 0 {
		fmt.Fprintf(&b, "- Common words: %s\n", strings.Join(prof.Vocabulary.CommonWords, ", "))
	}
	fmt.Fprintf(&b, "- Technical level: %s\n", prof.Vocabulary.TechnicalLevel)
	if slang := capList(prof.Vocabulary.Slang, maxSlangTerms); len(slang) > 0 {
		fmt.Fprintf(&b, "- Slang (use sparingly, never more than one term per reply): %s\n", strings.Join(slang, ", "))
	}
	fmt.Fprintf(&b, "- Punctuation: %s\n", prof.Punctuation)
	fmt.Fprintf(&b, "- Emoji usage: %s\n", prof.EmojiUsage)
	fmt.Fprintf(&b, "- Engagement: %s\n", prof.EngagementPatterns)
	if len(prof.Topics) > 0 {
		fmt.Fprintf(&b, "- Topics they care about: %s\n", strings.Join(prof.Topics, ", "))
	}
	if len(prof.PersonalityTraits) > 0 {
		fmt.Fprintf(&b, "- Personality: %s\n", strings.Join(prof.PersonalityTraits, ", "))
	}
	if phrases := capList(prof.UniquePhrases, maxSignaturePhrases); len(phrases) > 0 {
		fmt.Fprintf(&b, "\nSignature phrases: %s. Use AT MOST ONE of these across ALL generated replies combined, or none at all.\n", quoteJoin(phrases))
	}
	if len(prof.WritingRules) > 0 {
		b.WriteString("\nWriting rules. Apply at most 2-3 per reply, never all of them at once:\n")
		for i, r := range prof.WritingRules {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func capList(items []string, max int) []string {
	if len(items) > max {
		return items[:max]
	}
	return items
}

func quoteJoin(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}
