package provider

import (
	"context"
	"fmt"
)

// Provider abstracts a hosted completion backend. Consumers such as the
// generation orchestrator and the style analyzer use this interface
// instead of depending on a concrete client.
type Provider interface {
	// Complete sends a system + user prompt pair and returns the raw
	// assistant text.
	Complete(ctx context.Context, system, user string, opts Options) (string, error)

	// Name returns the provider identifier ("openai", "anthropic", "gemini").
	Name() string

	// Model returns the model this provider is configured to use.
	Model() string
}

// Options tune a single completion call.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Error describes a failed upstream call. The upstream message is kept
// verbatim so callers can surface it to the user.
type Error struct {
	Provider string
	Status   int
	Message  string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// New returns the provider with the given name. The credential is passed
// through as-is; callers are expected to verify it is present before
// invoking Complete.
func New(name, apiKey, model string) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAI(apiKey, model), nil
	case "anthropic":
		return NewAnthropic(apiKey, model), nil
	case "gemini":
		return NewGemini(apiKey, model), nil
	}
	return nil, fmt.Errorf("unknown provider %q (valid: openai, anthropic, gemini)", name)
}
