package workflow

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/lamim/storyforge/internal/api"
	"github.com/lamim/storyforge/internal/outline"
	"github.com/lamim/storyforge/internal/stream"
	"github.com/lamim/storyforge/pkg/models"
)

const stageSection = "section"

// SectionSnapshot is the view of the section being written after one streamed chunk
type SectionSnapshot struct {
	stream.WritingState
	// Section is the 1-based position of the section in the outline
	Section int
	Total   int
	Step    outline.Entry
	Attempt int
}

// WriteNext streams the next section of the outline and commits it once the stream has
// finished. Once every section is written it fails with ErrInvalidPhase.
func (w *Workflow) WriteNext(ctx context.Context) iter.Seq2[SectionSnapshot, error] {
	return func(yield func(SectionSnapshot, error) bool) {
		switch {
		case w.busy:
			yield(SectionSnapshot{}, fmt.Errorf("%w: generation in progress", ErrInvalidPhase))
			return
		case w.state.Phase == models.PhaseDone:
			yield(SectionSnapshot{}, fmt.Errorf("%w: all %d sections are written", ErrInvalidPhase, w.state.Total))
			return
		case w.state.Phase != models.PhaseWriting:
			yield(SectionSnapshot{}, fmt.Errorf("%w: no outline yet (phase %s)", ErrInvalidPhase, w.state.Phase))
			return
		}
		w.busy = true
		defer func() { w.busy = false }()

		index := w.state.Current
		entry := w.state.Outline[index]
		msgs, err := w.writeMessages(entry)
		if err != nil {
			yield(SectionSnapshot{}, err)
			return
		}

		w.logger.Info("Writing section",
			"section", index+1,
			"total_sections", w.state.Total,
			"step", entry.Line())
		start := w.now()
		var proc *stream.WritingProcessor

		snapshot := func(st stream.WritingState, attempt int) SectionSnapshot {
			return SectionSnapshot{
				WritingState: st,
				Section:      index + 1,
				Total:        w.state.Total,
				Step:         entry,
				Attempt:      attempt,
			}
		}

		attempts, err := w.retryPolicy(stageSection).Do(ctx, func(attempt int) error {
			proc = stream.NewWritingProcessor(w.newDecoder())
			w.stats.Calls++
			for chunk, err := range w.streamer.Stream(ctx, api.Request{Messages: msgs, Stage: stageSection}) {
				if err != nil {
					w.stats.FailedCalls++
					return err
				}
				st := proc.Process(chunk)
				w.observe(stageSection, chunk, st.Deltas)
				if !yield(snapshot(st, attempt), nil) {
					return api.Permanent(errStopped)
				}
			}
			if st := proc.Finish(); len(st.Deltas) > 0 {
				w.observe(stageSection, api.Chunk{}, st.Deltas)
				if !yield(snapshot(st, attempt), nil) {
					return api.Permanent(errStopped)
				}
			}
			return nil
		})
		elapsed := w.now().Sub(start)
		w.stats.TotalDuration += elapsed
		w.metrics.RecordStage(stageSection, elapsed)

		switch {
		case errors.Is(err, errStopped):
			w.logger.Info("Section generation stopped by caller; nothing committed", "section", index+1)
			return
		case err != nil && ctx.Err() != nil:
			w.metrics.IncrementGeneration(stageSection, "interrupted")
			w.logger.Warn("Section generation interrupted; nothing committed", "section", index+1, "error", err)
			yield(SectionSnapshot{}, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err()))
			return
		case err != nil:
			w.metrics.IncrementGeneration(stageSection, "error")
			if cerr := w.ckpt.RecordStats(w.stats); cerr != nil {
				w.logger.Error("Failed to record statistics", "error", cerr)
			}
			w.logger.Error("Section generation failed", "section", index+1, "attempts", attempts, "error", err)
			yield(SectionSnapshot{}, fmt.Errorf("%w: section %d: %w", ErrTransportExhausted, index+1, err))
			return
		}

		if err := w.commitSection(index, msgs, proc, attempts, elapsed); err != nil {
			yield(SectionSnapshot{}, err)
			return
		}
		w.metrics.IncrementGeneration(stageSection, "success")
	}
}

// WriteAll writes sections until the outline is exhausted or a step fails. The error of
// the failing step is the last value yielded.
func (w *Workflow) WriteAll(ctx context.Context) iter.Seq2[SectionSnapshot, error] {
	return func(yield func(SectionSnapshot, error) bool) {
		if w.state.Phase == models.PhaseSetting || w.state.Phase == models.PhasePlanning {
			yield(SectionSnapshot{}, fmt.Errorf("%w: no outline yet (phase %s)", ErrInvalidPhase, w.state.Phase))
			return
		}
		for w.state.Phase == models.PhaseWriting {
			before := w.state.Current
			for snap, err := range w.WriteNext(ctx) {
				if !yield(snap, err) || err != nil {
					return
				}
			}
			if w.state.Current == before {
				return
			}
		}
	}
}

// commitSection persists a finished section: interaction log, prose, checkpoint, then
// in-memory state. Prose is appended at the checkpointed length and cut back to it when the
// checkpoint write fails.
func (w *Workflow) commitSection(index int, msgs []api.Message, proc *stream.WritingProcessor, attempts int, elapsed time.Duration) error {
	text := strings.TrimSpace(proc.Text())

	rec := w.record(models.InteractionSection, index+1, msgs, proc.Reasoning(), text, attempts, elapsed)
	if err := w.ws.AppendInteraction(rec); err != nil {
		return err
	}

	committed := w.ckpt.GetCheckpoint().ProseLength
	if _, err := w.ws.TruncateText(committed); err != nil {
		return err
	}
	size, err := w.ws.AppendText(text + "\n\n")
	if err != nil {
		return err
	}

	stats := w.stats
	stats.SectionsWritten++
	if err := w.ckpt.MarkSectionComplete(index+1, size, stats); err != nil {
		if _, terr := w.ws.TruncateText(committed); terr != nil {
			w.logger.Error("Failed to discard uncommitted prose", "section", index+1, "error", terr)
		}
		return err
	}
	w.stats = stats

	w.state.Prose += text + "\n\n"
	w.state.Current = index + 1
	w.state.Cursor = index + 1
	if w.state.Current >= w.state.Total {
		w.state.Phase = models.PhaseDone
	}
	w.metrics.SetSectionsRemaining(w.state.Total - w.state.Current)
	w.logger.Info("Section committed",
		"section", index+1,
		"total_sections", w.state.Total,
		"chars", len([]rune(text)),
		"attempts", attempts)
	return nil
}
