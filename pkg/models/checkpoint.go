package models

import "time"

// Phase represents the current phase of a writing workflow
type Phase string

const (
	PhaseSetting  Phase = "setting"
	PhasePlanning Phase = "planning"
	PhaseWriting  Phase = "writing"
	PhaseDone     Phase = "done"
)

// CursorOutlineFailed marks a session whose outline generation failed
const CursorOutlineFailed = -1

// Checkpoint represents the saved state of a writing session
type Checkpoint struct {
	// Session identification
	SessionID   string    `json:"session_id"`    // UUID for this session
	CreatedAt   time.Time `json:"created_at"`    // When session started
	LastSavedAt time.Time `json:"last_saved_at"` // Last checkpoint time

	Phase Phase `json:"phase"`

	// Cursor is the number of fully committed sections, or CursorOutlineFailed
	Cursor        int `json:"cursor"`
	TotalSections int `json:"total_sections"`

	// ProseLength is the byte length of committed prose in fulltext.txt.
	// Anything past it was written after the last durable checkpoint.
	ProseLength int64 `json:"prose_length"`

	Stats SessionStats `json:"stats"`

	// Configuration snapshot (for validation)
	ConfigHash string `json:"config_hash"`
}

// Failed reports whether the outline generation of this session failed
func (c *Checkpoint) Failed() bool {
	return c.Cursor == CursorOutlineFailed
}
