package models

import (
	"fmt"
	"time"
)

// ReasoningMode is how a provider delivers reasoning tokens alongside the answer
type ReasoningMode string

const (
	// ReasoningSeparate providers stream reasoning on its own channel (e.g. reasoning_content)
	ReasoningSeparate ReasoningMode = "separate"
	// ReasoningMarkup providers wrap reasoning in markers inside the content channel
	ReasoningMarkup ReasoningMode = "markup"
)

// ParseReasoningMode validates a configured reasoning mode
func ParseReasoningMode(s string) (ReasoningMode, error) {
	switch ReasoningMode(s) {
	case ReasoningSeparate, ReasoningMarkup:
		return ReasoningMode(s), nil
	default:
		return "", fmt.Errorf("unknown reasoning mode %q (want %q or %q)", s, ReasoningSeparate, ReasoningMarkup)
	}
}

// InteractionKind identifies which workflow step produced a generation call
type InteractionKind string

const (
	InteractionPlan    InteractionKind = "plan"
	InteractionSection InteractionKind = "section"
)

// Author records which model produced an interaction
type Author struct {
	Provider  string        `json:"provider"`
	BaseURL   string        `json:"base_url"`
	Model     string        `json:"model"`
	Reasoning ReasoningMode `json:"reasoning"`
}

// Message is a chat message as sent to the model
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InteractionRecord is one line of the append-only interaction log
type InteractionRecord struct {
	Kind             InteractionKind `json:"kind"`
	Section          int             `json:"section,omitempty"` // 1-based, sections only
	Input            []Message       `json:"input"`
	Author           Author          `json:"author"`
	Reasoning        string          `json:"reasoning"`
	Output           string          `json:"output"`
	Attempts         int             `json:"attempts"`
	DurationMs       int64           `json:"duration_ms"`
	PromptTokens     int             `json:"prompt_tokens"`     // estimated, streaming reports no usage
	CompletionTokens int             `json:"completion_tokens"` // estimated
	CreatedAt        time.Time       `json:"created_at"`
}

// SessionStats tracks statistics for a writing session
type SessionStats struct {
	StartTime        time.Time     `json:"start_time"`
	Calls            int           `json:"calls"`
	FailedCalls      int           `json:"failed_calls"`
	Retries          int           `json:"retries"`
	SectionsWritten  int           `json:"sections_written"`
	TotalDuration    time.Duration `json:"total_duration"`
	CompletionTokens int           `json:"completion_tokens"`
	MalformedChunks  int           `json:"malformed_chunks"`
}
