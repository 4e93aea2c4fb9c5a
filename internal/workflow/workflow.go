// Package workflow drives a writing session: outline first, then prose section by section,
// with a durable checkpoint after every committed step.
package workflow

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/lamim/storyforge/internal/api"
	"github.com/lamim/storyforge/internal/checkpoint"
	"github.com/lamim/storyforge/internal/config"
	"github.com/lamim/storyforge/internal/metrics"
	"github.com/lamim/storyforge/internal/outline"
	"github.com/lamim/storyforge/internal/stream"
	"github.com/lamim/storyforge/internal/util"
	"github.com/lamim/storyforge/internal/workspace"
	"github.com/lamim/storyforge/pkg/models"
)

// Options configures a Workflow
type Options struct {
	Config   *config.Config
	Streamer api.Streamer
	// Author is recorded with every interaction
	Author  models.Author
	Logger  *slog.Logger
	Metrics *metrics.Collector // optional
	Tokens  *api.TokenCounter  // optional
	// OnCheckpoint is called after every durable checkpoint write
	OnCheckpoint func(ws *workspace.Workspace, cp models.Checkpoint)
	// Now defaults to time.Now
	Now func() time.Time
}

// State is a read-only view of a session
type State struct {
	Phase       models.Phase
	Instruction string
	OutlineText string
	Outline     []outline.Entry
	// Current is the 0-based index of the next section to write
	Current int
	Total   int
	Prose   string
	// Cursor mirrors the checkpoint: committed sections, or models.CursorOutlineFailed
	Cursor     int
	SessionDir string
}

// Workflow is one single-writer session. It is not safe for concurrent use; iterators
// returned by Plan, WriteNext and WriteAll must be drained or stopped before the next call.
type Workflow struct {
	cfg          *config.Config
	streamer     api.Streamer
	author       models.Author
	logger       *slog.Logger
	metrics      *metrics.Collector
	tokens       *api.TokenCounter
	onCheckpoint func(ws *workspace.Workspace, cp models.Checkpoint)
	now          func() time.Time

	mode      models.ReasoningMode
	markers   stream.Markers
	planTmpl  *util.PromptTemplate
	writeTmpl *util.PromptTemplate

	ws    *workspace.Workspace
	ckpt  *checkpoint.Manager
	state State
	stats models.SessionStats
	busy  bool
}

// New creates a workflow in the setting phase
func New(opts Options) (*Workflow, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Streamer == nil {
		return nil, fmt.Errorf("streamer is required")
	}
	cfg := opts.Config

	mode, err := models.ParseReasoningMode(cfg.Reasoning.Mode)
	if err != nil {
		return nil, err
	}
	markers := stream.Markers{Start: cfg.Reasoning.StartMarker, End: cfg.Reasoning.EndMarker}
	if _, err := stream.NewDecoder(mode, markers); err != nil {
		return nil, err
	}

	planTmpl, err := util.ParsePromptTemplate("plan", cfg.PromptTemplates.Plan)
	if err != nil {
		return nil, err
	}
	writeTmpl, err := util.ParsePromptTemplate("write", cfg.PromptTemplates.Write)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = api.NewTokenCounter()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Workflow{
		cfg:          cfg,
		streamer:     opts.Streamer,
		author:       opts.Author,
		logger:       logger,
		metrics:      opts.Metrics,
		tokens:       tokens,
		onCheckpoint: opts.OnCheckpoint,
		now:          now,
		mode:         mode,
		markers:      markers,
		planTmpl:     planTmpl,
		writeTmpl:    writeTmpl,
		state:        State{Phase: models.PhaseSetting},
	}, nil
}

// UseLogger replaces the logger, e.g. once the session log file exists
func (w *Workflow) UseLogger(logger *slog.Logger) {
	w.logger = logger
}

// State returns a copy of the session state
func (w *Workflow) State() State {
	s := w.state
	s.Outline = slices.Clone(w.state.Outline)
	return s
}

// Workspace returns the session workspace, or nil before a session exists
func (w *Workflow) Workspace() *workspace.Workspace {
	return w.ws
}

// Checkpoint returns the last durable checkpoint
func (w *Workflow) Checkpoint() models.Checkpoint {
	if w.ckpt == nil {
		return models.Checkpoint{Phase: models.PhaseSetting}
	}
	return w.ckpt.GetCheckpoint()
}

// SetInstruction starts a new session for instruction and moves to planning
func (w *Workflow) SetInstruction(instruction string) error {
	if w.state.Phase != models.PhaseSetting || w.ws != nil {
		return fmt.Errorf("%w: instruction already set (phase %s)", ErrInvalidPhase, w.state.Phase)
	}
	if err := config.ValidateInstruction(instruction); err != nil {
		return fmt.Errorf("invalid instruction: %w", err)
	}

	ws, err := workspace.Create(w.cfg.Output.SavePath, w.now(), w.logger)
	if err != nil {
		return err
	}
	if err := ws.WriteInstruction(instruction); err != nil {
		return err
	}

	ckpt := checkpoint.NewManager(ws.Dir(), w.cfg, w.logger)
	w.attach(ws, ckpt)
	if err := ckpt.StartPlanning(); err != nil {
		return err
	}

	w.stats = ckpt.GetCheckpoint().Stats
	w.state = State{
		Phase:       models.PhasePlanning,
		Instruction: instruction,
		SessionDir:  ws.Dir(),
	}
	w.logger.Info("Instruction set", "session", ws.Name(), "instruction_chars", len([]rune(instruction)))
	return nil
}

// Resume restores a session from its directory. A session whose outline failed or never
// finished restarts planning from the stored instruction; otherwise writing continues at
// the checkpoint cursor with prose past the last checkpoint discarded.
func (w *Workflow) Resume(sessionDir string) error {
	if w.state.Phase != models.PhaseSetting || w.ws != nil {
		return fmt.Errorf("%w: workflow already has a session", ErrInvalidPhase)
	}

	ws, err := workspace.Open(sessionDir, w.logger)
	if err != nil {
		return err
	}
	instruction, err := ws.ReadInstruction()
	if err != nil {
		return err
	}

	cp, err := checkpoint.Load(ws.Dir(), w.logger)
	if errors.Is(err, fs.ErrNotExist) {
		// Crashed before the first checkpoint: only the instruction exists
		w.logger.Warn("No checkpoint found, restarting planning", "session", ws.Name())
		ckpt := checkpoint.NewManager(ws.Dir(), w.cfg, w.logger)
		cpFresh := ckpt.GetCheckpoint()
		cp = &cpFresh
	} else if err != nil {
		return err
	}

	if err := checkpoint.ValidateCheckpoint(cp, w.cfg); err != nil {
		switch {
		case errors.Is(err, checkpoint.ErrConfigMismatch):
			w.logger.Warn("Resuming with changed configuration", "error", err)
		case errors.Is(err, checkpoint.ErrAlreadyComplete):
			w.logger.Info("Session is already complete", "session", ws.Name())
		default:
			return err
		}
	}

	ckpt := checkpoint.NewManagerFromCheckpoint(ws.Dir(), cp, w.logger)
	w.attach(ws, ckpt)
	w.stats = cp.Stats

	if cp.Failed() || cp.Phase == models.PhasePlanning || cp.Phase == models.PhaseSetting {
		if err := ckpt.StartPlanning(); err != nil {
			return err
		}
		w.state = State{
			Phase:       models.PhasePlanning,
			Instruction: instruction,
			SessionDir:  ws.Dir(),
		}
		w.logger.Info("Resuming planning", "session", ws.Name(), "previous_cursor", cp.Cursor)
		return nil
	}

	planText, err := ws.ReadPlan()
	if err != nil {
		return err
	}
	entries := outline.ParseText(planText)
	if len(entries) != cp.TotalSections {
		return fmt.Errorf("plan has %d sections but checkpoint expects %d", len(entries), cp.TotalSections)
	}

	if _, err := ws.TruncateText(cp.ProseLength); err != nil {
		return err
	}
	prose, err := ws.ReadText()
	if err != nil {
		return err
	}

	w.state = State{
		Phase:       cp.Phase,
		Instruction: instruction,
		OutlineText: planText,
		Outline:     entries,
		Current:     cp.Cursor,
		Total:       cp.TotalSections,
		Prose:       prose,
		Cursor:      cp.Cursor,
		SessionDir:  ws.Dir(),
	}
	w.metrics.SetSectionsRemaining(w.state.Total - w.state.Current)
	w.logger.Info("Resuming writing",
		"session", ws.Name(),
		"phase", cp.Phase,
		"next_section", cp.Cursor+1,
		"total_sections", cp.TotalSections)
	return nil
}

// ReplaceOutline swaps in an edited outline before the remaining sections are written.
// Sections already written cannot be removed.
func (w *Workflow) ReplaceOutline(entries []outline.Entry) error {
	if w.busy {
		return fmt.Errorf("%w: generation in progress", ErrInvalidPhase)
	}
	if w.state.Phase != models.PhaseWriting && w.state.Phase != models.PhaseDone {
		return fmt.Errorf("%w: no outline to replace (phase %s)", ErrInvalidPhase, w.state.Phase)
	}
	if len(entries) < w.state.Current {
		return fmt.Errorf("outline has %d sections but %d are already written", len(entries), w.state.Current)
	}

	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		if e.Section <= 0 {
			return fmt.Errorf("invalid section number %d", e.Section)
		}
		if seen[e.Section] {
			return fmt.Errorf("duplicate section number %d", e.Section)
		}
		if strings.TrimSpace(e.Description) == "" {
			return fmt.Errorf("section %d has no description", e.Section)
		}
		seen[e.Section] = true
	}

	// Resume re-parses plan.txt, so every entry must read back as itself
	planText := outline.Format(entries)
	parsed := outline.ParseText(planText)
	if len(parsed) != len(entries) {
		return fmt.Errorf("outline reads back as %d sections instead of %d", len(parsed), len(entries))
	}
	for i, e := range entries {
		want := e
		want.Description = strings.TrimSpace(strings.ReplaceAll(e.Description, "\n", " "))
		if parsed[i] != want {
			return fmt.Errorf("section %d reads back as %q; reword its description or word target", e.Section, parsed[i].Line())
		}
	}

	if err := w.ws.WritePlan(planText); err != nil {
		return err
	}
	if err := w.ckpt.SetTotalSections(len(entries)); err != nil {
		return err
	}

	w.state.Outline = parsed
	w.state.OutlineText = planText
	w.state.Total = len(entries)
	w.state.Phase = models.PhaseWriting
	if w.state.Current >= w.state.Total {
		w.state.Phase = models.PhaseDone
	}
	w.metrics.SetSectionsRemaining(w.state.Total - w.state.Current)
	w.logger.Info("Outline replaced", "total_sections", w.state.Total, "next_section", w.state.Current+1)
	return nil
}

func (w *Workflow) attach(ws *workspace.Workspace, ckpt *checkpoint.Manager) {
	w.ws = ws
	w.ckpt = ckpt
	if w.onCheckpoint != nil {
		hook := w.onCheckpoint
		ckpt.OnSave(func(cp models.Checkpoint) { hook(ws, cp) })
	}
}

func (w *Workflow) newDecoder() stream.Decoder {
	// Mode and markers were validated in New
	d, _ := stream.NewDecoder(w.mode, w.markers)
	return d
}

func (w *Workflow) retryPolicy(stage string) api.RetryPolicy {
	return api.RetryPolicy{
		MaxAttempts: w.cfg.Retry.MaxRetries,
		Pause:       w.cfg.Retry.Pause(),
		Logger:      w.logger.With("stage", stage),
		OnRetry: func(int, error) {
			w.stats.Retries++
			w.metrics.IncrementRetry(stage)
		},
	}
}

// observe records per-chunk statistics
func (w *Workflow) observe(stage string, chunk api.Chunk, deltas []stream.Delta) {
	if chunk.Malformed {
		w.stats.MalformedChunks++
		w.metrics.IncrementMalformed(stage)
	}
	for _, d := range deltas {
		w.metrics.RecordDelta(stage, d.Kind.String())
	}
}

// record builds the interaction log entry of a finished call
func (w *Workflow) record(kind models.InteractionKind, section int, input []api.Message, reasoning, output string, attempts int, elapsed time.Duration) models.InteractionRecord {
	completion := w.tokens.Count(reasoning) + w.tokens.Count(output)
	w.stats.CompletionTokens += completion
	return models.InteractionRecord{
		Kind:             kind,
		Section:          section,
		Input:            input,
		Author:           w.author,
		Reasoning:        reasoning,
		Output:           output,
		Attempts:         attempts,
		DurationMs:       elapsed.Milliseconds(),
		PromptTokens:     w.tokens.CountMessages(input),
		CompletionTokens: completion,
		CreatedAt:        w.now().UTC(),
	}
}
