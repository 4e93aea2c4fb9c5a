package workflow

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/lamim/storyforge/internal/api"
	"github.com/lamim/storyforge/internal/outline"
	"github.com/lamim/storyforge/internal/stream"
	"github.com/lamim/storyforge/pkg/models"
)

const stagePlan = "plan"

// PlanSnapshot is the outline view after one streamed chunk
type PlanSnapshot struct {
	stream.PlanState
	// Attempt is 1 for the first request and grows with every retry
	Attempt int
}

// Plan streams the outline for the current instruction. Each yielded snapshot carries the
// entries parsed so far; a retry starts a new snapshot sequence with a higher Attempt.
// The outline is committed only after the stream finished. In the writing or done phase
// Plan yields nothing.
func (w *Workflow) Plan(ctx context.Context) iter.Seq2[PlanSnapshot, error] {
	return func(yield func(PlanSnapshot, error) bool) {
		switch {
		case w.busy:
			yield(PlanSnapshot{}, fmt.Errorf("%w: generation in progress", ErrInvalidPhase))
			return
		case w.state.Phase == models.PhaseSetting:
			yield(PlanSnapshot{}, fmt.Errorf("%w: no instruction set", ErrInvalidPhase))
			return
		case w.state.Phase != models.PhasePlanning:
			return
		}
		w.busy = true
		defer func() { w.busy = false }()

		msgs, err := w.planMessages()
		if err != nil {
			yield(PlanSnapshot{}, err)
			return
		}

		w.logger.Info("Generating outline", "session", w.ws.Name())
		start := w.now()
		var proc *stream.PlanningProcessor

		attempts, err := w.retryPolicy(stagePlan).Do(ctx, func(attempt int) error {
			proc = stream.NewPlanningProcessor(w.newDecoder())
			w.stats.Calls++
			for chunk, err := range w.streamer.Stream(ctx, api.Request{Messages: msgs, Stage: stagePlan}) {
				if err != nil {
					w.stats.FailedCalls++
					return err
				}
				st := proc.Process(chunk)
				w.observe(stagePlan, chunk, st.Deltas)
				if !yield(PlanSnapshot{PlanState: st, Attempt: attempt}, nil) {
					return api.Permanent(errStopped)
				}
			}
			if st := proc.Finish(); len(st.Deltas) > 0 {
				w.observe(stagePlan, api.Chunk{}, st.Deltas)
				if !yield(PlanSnapshot{PlanState: st, Attempt: attempt}, nil) {
					return api.Permanent(errStopped)
				}
			}
			return nil
		})
		elapsed := w.now().Sub(start)
		w.stats.TotalDuration += elapsed
		w.metrics.RecordStage(stagePlan, elapsed)

		switch {
		case errors.Is(err, errStopped):
			w.logger.Info("Outline generation stopped by caller; nothing committed")
			return
		case err != nil && ctx.Err() != nil:
			w.metrics.IncrementGeneration(stagePlan, "interrupted")
			w.logger.Warn("Outline generation interrupted; nothing committed", "error", err)
			yield(PlanSnapshot{}, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err()))
			return
		case err != nil:
			w.metrics.IncrementGeneration(stagePlan, "error")
			if cerr := w.ckpt.MarkOutlineFailed(w.stats); cerr != nil {
				w.logger.Error("Failed to record failed outline", "error", cerr)
			}
			w.state.Cursor = models.CursorOutlineFailed
			w.logger.Error("Outline generation failed", "attempts", attempts, "error", err)
			yield(PlanSnapshot{}, fmt.Errorf("%w: %w", ErrTransportExhausted, err))
			return
		}

		if err := w.commitOutline(msgs, proc, attempts, elapsed); err != nil {
			yield(PlanSnapshot{}, err)
			return
		}
		w.metrics.IncrementGeneration(stagePlan, "success")
	}
}

// commitOutline persists a finished outline: interaction log, plan file, checkpoint, then
// in-memory state
func (w *Workflow) commitOutline(msgs []api.Message, proc *stream.PlanningProcessor, attempts int, elapsed time.Duration) error {
	entries := proc.Outline()
	planText := outline.Format(entries)

	rec := w.record(models.InteractionPlan, 0, msgs, proc.Reasoning(), planText, attempts, elapsed)
	if err := w.ws.AppendInteraction(rec); err != nil {
		return err
	}
	if err := w.ws.WritePlan(planText); err != nil {
		return err
	}
	if err := w.ckpt.MarkOutlineComplete(len(entries), w.stats); err != nil {
		return err
	}

	w.state.Outline = entries
	w.state.OutlineText = planText
	w.state.Total = len(entries)
	w.state.Current = 0
	w.state.Cursor = 0
	w.state.Prose = ""
	w.state.Phase = models.PhaseWriting
	if len(entries) == 0 {
		w.state.Phase = models.PhaseDone
		w.logger.Warn("Finishing session", "reason", ErrEmptyOutline)
	}
	w.metrics.SetSectionsRemaining(len(entries))
	w.logger.Info("Outline committed", "total_sections", len(entries), "attempts", attempts)
	return nil
}
