// Package stream turns provider chunks into reasoning and content deltas and folds them
// into planning and writing snapshots.
package stream

import (
	"fmt"

	"github.com/lamim/storyforge/internal/api"
	"github.com/lamim/storyforge/pkg/models"
)

// Kind is the channel a delta belongs to
type Kind int

const (
	KindReasoning Kind = iota
	KindContent
)

func (k Kind) String() string {
	if k == KindReasoning {
		return "reasoning"
	}
	return "content"
}

// Delta is a normalized piece of streamed text. Text may be empty.
type Delta struct {
	Kind Kind
	Text string
}

// Phase reports whether the model is still reasoning or already producing output
type Phase int

const (
	PhaseReasoning Phase = iota
	PhaseOutput
)

func (p Phase) String() string {
	if p == PhaseReasoning {
		return "reasoning"
	}
	return "output"
}

// Markers delimit embedded reasoning
type Markers struct {
	Start string
	End   string
}

// DefaultMarkers are the markers most open reasoning models emit
var DefaultMarkers = Markers{Start: "<think>", End: "</think>"}

// Decoder classifies chunks of one stream. A Decoder is not reusable across streams.
type Decoder interface {
	// Decode returns the deltas carried by chunk, in order
	Decode(chunk api.Chunk) []Delta
	// Flush releases anything still held back once the stream has ended
	Flush() []Delta
	// Phase reports the decoder's view of the stream; it moves to PhaseOutput at most once
	Phase() Phase
}

// NewDecoder returns a fresh decoder for mode
func NewDecoder(mode models.ReasoningMode, markers Markers) (Decoder, error) {
	switch mode {
	case models.ReasoningSeparate:
		return &separateDecoder{}, nil
	case models.ReasoningMarkup:
		if markers.Start == "" || markers.End == "" {
			return nil, fmt.Errorf("markup decoding needs both markers")
		}
		return &markupDecoder{markers: markers}, nil
	default:
		return nil, fmt.Errorf("unknown reasoning mode %q", mode)
	}
}
