package stream

import (
	"slices"
	"strings"

	"github.com/lamim/storyforge/internal/api"
	"github.com/lamim/storyforge/internal/outline"
)

// paragraphBreak is appended to reasoning when the stream moves on to output
const paragraphBreak = "\n\n"

// accumulator folds deltas of one stream into reasoning and content text
type accumulator struct {
	decoder   Decoder
	phase     Phase
	reasoning strings.Builder
	content   strings.Builder
}

// apply folds deltas in and reports whether content grew
func (a *accumulator) apply(deltas []Delta) bool {
	grew := false
	for _, d := range deltas {
		switch d.Kind {
		case KindReasoning:
			a.reasoning.WriteString(d.Text)
		case KindContent:
			if d.Text != "" {
				a.content.WriteString(d.Text)
				grew = true
			}
		}
	}

	if a.phase == PhaseReasoning && a.decoder.Phase() == PhaseOutput {
		a.phase = PhaseOutput
		if a.reasoning.Len() > 0 {
			a.reasoning.WriteString(paragraphBreak)
		}
	}
	return grew
}

// finalReasoning is the accumulated reasoning without the trailing paragraph break
func (a *accumulator) finalReasoning() string {
	return strings.TrimSpace(a.reasoning.String())
}

// PlanState is the planning view after one chunk
type PlanState struct {
	Phase     Phase
	Reasoning string
	Outline   []outline.Entry
	// Deltas are the deltas decoded from the chunk that produced this state
	Deltas []Delta
}

// PlanningProcessor re-parses the growing output into outline entries after every chunk
type PlanningProcessor struct {
	acc     accumulator
	entries []outline.Entry
}

// NewPlanningProcessor returns a processor for one planning stream
func NewPlanningProcessor(decoder Decoder) *PlanningProcessor {
	return &PlanningProcessor{acc: accumulator{decoder: decoder}}
}

// Process folds in one chunk and returns the resulting state
func (p *PlanningProcessor) Process(chunk api.Chunk) PlanState {
	return p.fold(p.acc.decoder.Decode(chunk))
}

// Finish flushes the decoder once the stream has ended and returns the final state
func (p *PlanningProcessor) Finish() PlanState {
	return p.fold(p.acc.decoder.Flush())
}

func (p *PlanningProcessor) fold(deltas []Delta) PlanState {
	if p.acc.apply(deltas) {
		p.entries = outline.ParseText(p.acc.content.String())
	}
	return PlanState{
		Phase:     p.acc.phase,
		Reasoning: p.acc.reasoning.String(),
		Outline:   slices.Clone(p.entries),
		Deltas:    deltas,
	}
}

// Outline returns the entries parsed so far
func (p *PlanningProcessor) Outline() []outline.Entry {
	return slices.Clone(p.entries)
}

// Reasoning returns the accumulated reasoning, trimmed
func (p *PlanningProcessor) Reasoning() string {
	return p.acc.finalReasoning()
}

// Output returns the raw output text
func (p *PlanningProcessor) Output() string {
	return p.acc.content.String()
}

// WritingState is the writing view after one chunk
type WritingState struct {
	Phase     Phase
	Reasoning string
	Text      string
	Deltas    []Delta
}

// WritingProcessor accumulates the prose of one section
type WritingProcessor struct {
	acc accumulator
}

// NewWritingProcessor returns a processor for one section stream
func NewWritingProcessor(decoder Decoder) *WritingProcessor {
	return &WritingProcessor{acc: accumulator{decoder: decoder}}
}

// Process folds in one chunk and returns the resulting state
func (w *WritingProcessor) Process(chunk api.Chunk) WritingState {
	return w.fold(w.acc.decoder.Decode(chunk))
}

// Finish flushes the decoder once the stream has ended and returns the final state
func (w *WritingProcessor) Finish() WritingState {
	return w.fold(w.acc.decoder.Flush())
}

func (w *WritingProcessor) fold(deltas []Delta) WritingState {
	w.acc.apply(deltas)
	return WritingState{
		Phase:     w.acc.phase,
		Reasoning: w.acc.reasoning.String(),
		Text:      w.acc.content.String(),
		Deltas:    deltas,
	}
}

// Text returns the prose written so far
func (w *WritingProcessor) Text() string {
	return w.acc.content.String()
}

// Reasoning returns the accumulated reasoning, trimmed
func (w *WritingProcessor) Reasoning() string {
	return w.acc.finalReasoning()
}
