package workflow

import "errors"

var (
	// ErrTransportExhausted means every attempt to stream from the model failed.
	// The checkpoint cursor and phase are left where they were.
	ErrTransportExhausted = errors.New("transport exhausted")

	// ErrInvalidPhase means the operation is not allowed in the current phase
	ErrInvalidPhase = errors.New("invalid workflow phase")

	// ErrEmptyOutline is logged when planning produced no entries; the session finishes
	ErrEmptyOutline = errors.New("outline has no entries")

	// ErrInterrupted means the caller cancelled the context mid-stream. Nothing from the
	// interrupted stream was committed.
	ErrInterrupted = errors.New("generation interrupted")
)

// errStopped is returned to the retry loop when the consumer stops iterating
var errStopped = errors.New("consumer stopped iteration")
