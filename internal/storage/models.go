package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction records a single generation request/response pair.
type Interaction struct {
	ID             string
	CreatedAt      time.Time
	Kind           string // "replies", "custom_reply", "posts", "analysis"
	AuthorID       string
	Query          string
	Prompt         string
	Provider       string
	Model          string
	RawResponse    string
	CandidatesJSON string // JSON array stored as text
	Degraded       bool
	Status         string
}

// AcceptedReply is a candidate the user chose to post, kept locally so
// recent picks can season future generations.
type AcceptedReply struct {
	ID            string
	AuthorID      string
	InteractionID string
	Content       string
	CreatedAt     time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
