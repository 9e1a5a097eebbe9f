package generate

import "fmt"

// ConfigError is a precondition failure the user can fix themselves:
// no author selected, empty corpus, missing credential. Always surfaced
// verbatim with its remediation hint.
type ConfigError struct {
	Reason string
	Hint   string
}

func (e *ConfigError) Error() string {
	if e.Hint == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (%s)", e.Reason, e.Hint)
}

// NotFoundError means retrieval produced nothing for the author. It is
// surfaced with author context so the user knows which corpus is thin.
type NotFoundError struct {
	AuthorID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no relevant examples found for author %s", e.AuthorID)
}
