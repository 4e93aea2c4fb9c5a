package stream

import (
	"strings"
	"unicode"

	"github.com/lamim/storyforge/internal/api"
)

// separateDecoder handles providers that stream reasoning on its own field
type separateDecoder struct {
	phase Phase
}

func (d *separateDecoder) Decode(chunk api.Chunk) []Delta {
	if chunk.Malformed {
		return d.content(chunk.Content)
	}

	var deltas []Delta
	if chunk.Reasoning != "" {
		deltas = append(deltas, Delta{Kind: KindReasoning, Text: chunk.Reasoning})
	}
	if chunk.Content != "" || chunk.Reasoning == "" {
		deltas = append(deltas, d.content(chunk.Content)...)
	}
	return deltas
}

func (d *separateDecoder) content(text string) []Delta {
	if text != "" {
		d.phase = PhaseOutput
	}
	return []Delta{{Kind: KindContent, Text: text}}
}

func (d *separateDecoder) Flush() []Delta { return nil }

func (d *separateDecoder) Phase() Phase { return d.phase }

// markupDecoder handles providers that embed reasoning between markers in the content.
// Text before the start marker is dropped. Reasoning is held until the end marker arrives
// and is then released as one delta.
type markupDecoder struct {
	markers Markers
	started bool
	ended   bool
	// pending holds text not yet classified: everything before the start marker, then the
	// reasoning received so far
	pending string
	// scanned is how much of pending is known not to hold the end marker
	scanned int
	// outputStarted is set once non-whitespace output has been emitted
	outputStarted bool
}

func (d *markupDecoder) Decode(chunk api.Chunk) []Delta {
	var deltas []Delta
	if chunk.Reasoning != "" {
		deltas = append(deltas, Delta{Kind: KindReasoning, Text: chunk.Reasoning})
	}
	if chunk.Content == "" {
		return deltas
	}
	return append(deltas, d.feed(chunk.Content)...)
}

func (d *markupDecoder) feed(text string) []Delta {
	if d.ended {
		return d.output(text)
	}

	d.pending += text
	if !d.started {
		idx := strings.Index(d.pending, d.markers.Start)
		if idx < 0 {
			return nil
		}
		d.started = true
		d.pending = d.pending[idx+len(d.markers.Start):]
	}

	idx := strings.Index(d.pending[d.scanned:], d.markers.End)
	if idx < 0 {
		d.scanned = len(d.pending) - partialSuffix(d.pending, d.markers.End)
		return nil
	}
	idx += d.scanned
	reasoning, rest := d.pending[:idx], d.pending[idx+len(d.markers.End):]
	d.pending = ""
	d.scanned = 0
	d.ended = true

	var deltas []Delta
	if reasoning != "" {
		deltas = append(deltas, Delta{Kind: KindReasoning, Text: reasoning})
	}
	return append(deltas, d.output(rest)...)
}

// output emits text after the end marker, dropping whitespace that precedes the first
// visible character
func (d *markupDecoder) output(text string) []Delta {
	if !d.outputStarted {
		text = strings.TrimLeftFunc(text, unicode.IsSpace)
		if text == "" {
			return nil
		}
		d.outputStarted = true
	}
	return []Delta{{Kind: KindContent, Text: text}}
}

func (d *markupDecoder) Flush() []Delta {
	text := d.pending
	d.pending = ""
	switch {
	case !d.started:
		// No reasoning block ever opened: the model answered directly
		d.ended = true
		d.started = true
		return d.output(text)
	case !d.ended && text != "":
		return []Delta{{Kind: KindReasoning, Text: text}}
	}
	return nil
}

func (d *markupDecoder) Phase() Phase {
	if d.ended {
		return PhaseOutput
	}
	return PhaseReasoning
}

// partialSuffix returns the length of the longest suffix of s that is a proper prefix of marker
func partialSuffix(s, marker string) int {
	for n := min(len(s), len(marker)-1); n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return n
		}
	}
	return 0
}
