package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/lamim/storyforge/internal/api"
	"github.com/lamim/storyforge/internal/catalog"
	"github.com/lamim/storyforge/internal/config"
	"github.com/lamim/storyforge/internal/metrics"
	"github.com/lamim/storyforge/internal/stream"
	"github.com/lamim/storyforge/internal/workflow"
	"github.com/lamim/storyforge/internal/workspace"
	"github.com/lamim/storyforge/pkg/models"
)

// session bundles what one run or resume needs
type session struct {
	cfg     *config.Config
	wf      *workflow.Workflow
	catalog *catalog.Catalog
	logFile *os.File
	logger  *slog.Logger
}

func (s *session) close() {
	if s.catalog != nil {
		_ = s.catalog.Close()
	}
	if s.logFile != nil {
		_ = s.logFile.Sync()
		_ = s.logFile.Close()
	}
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// newSession builds the workflow and its collaborators. The returned session logs to the
// console until attachLogger is called.
func newSession(ctx context.Context) (*session, error) {
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
			}
		} else if verbose {
			fmt.Fprintf(os.Stderr, "Loaded env file: %s\n", envFile)
		}
	}

	cfg, secrets, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	console := workspace.NewConsoleLogger(os.Stderr, logLevel())
	collector := metrics.NewCollector(console)

	addr := cfg.Metrics.Addr
	if metricsAddr != "" {
		addr = metricsAddr
	}
	if addr != "" {
		go func() {
			if err := collector.Serve(ctx, addr); err != nil {
				console.Error("Metrics server failed", "addr", addr, "error", err)
			}
		}()
	}

	client, err := api.NewClient(cfg.Model, secrets.GetAPIKey(cfg.Model.BaseURL), console, collector)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	s := &session{cfg: cfg, logger: console}

	// The catalog is an index only; sessions still work without it
	cat, err := catalog.Open(cfg.Catalog.Path, console)
	if err != nil {
		console.Warn("Session catalog unavailable", "path", cfg.Catalog.Path, "error", err)
	} else {
		s.catalog = cat
	}

	wf, err := workflow.New(workflow.Options{
		Config:   cfg,
		Streamer: client,
		Author: models.Author{
			Provider:  client.ProviderName(),
			BaseURL:   cfg.Model.BaseURL,
			Model:     cfg.Model.ModelName,
			Reasoning: cfg.Reasoning.ReasoningMode(),
		},
		Logger:       console,
		Metrics:      collector,
		OnCheckpoint: s.recordCheckpoint,
	})
	if err != nil {
		s.close()
		return nil, err
	}
	s.wf = wf
	return s, nil
}

func (s *session) recordCheckpoint(ws *workspace.Workspace, cp models.Checkpoint) {
	if s.catalog == nil {
		return
	}
	if err := s.catalog.Record(context.Background(), ws, cp); err != nil {
		s.logger.Warn("Failed to update session catalog", "error", err)
	}
}

// attachLogger switches to the console plus session.log logger once the workspace exists
func (s *session) attachLogger() error {
	logger, logFile, err := workspace.SetupLogger(s.wf.Workspace(), os.Stderr, logLevel())
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	s.logger = logger
	s.logFile = logFile
	s.wf.UseLogger(logger)
	return nil
}

func readInstruction() (string, error) {
	switch {
	case instruction != "" && instructionFile != "":
		return "", fmt.Errorf("--instruction and --instruction-file are mutually exclusive")
	case instructionFile != "":
		data, err := os.ReadFile(instructionFile)
		if err != nil {
			return "", fmt.Errorf("failed to read instruction file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	case instruction != "":
		return instruction, nil
	}
	return "", fmt.Errorf("an instruction is required (--instruction or --instruction-file)")
}

func runSession(cmd *cobra.Command, args []string) error {
	text, err := readInstruction()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.wf.SetInstruction(text); err != nil {
		return err
	}
	if err := s.attachLogger(); err != nil {
		return err
	}

	s.logger.Info("StoryForge starting",
		"version", Version,
		"config", configPath,
		"session_dir", s.wf.Workspace().Dir())

	if err := s.wf.Workspace().BackupConfig(configPath); err != nil {
		return fmt.Errorf("failed to backup config: %w", err)
	}

	return s.drive(ctx)
}

func resumeSession(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	dir, err := workspace.ResolveSession(s.cfg.Output.SavePath, args[0])
	if err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	if err := s.wf.Resume(dir); err != nil {
		return fmt.Errorf("failed to resume session: %w", err)
	}
	if err := s.attachLogger(); err != nil {
		return err
	}

	st := s.wf.State()
	s.logger.Info("StoryForge resuming",
		"version", Version,
		"session_dir", dir,
		"phase", st.Phase,
		"next_section", st.Current+1,
		"total_sections", st.Total)

	if st.Phase == models.PhaseDone {
		fmt.Println("This session is complete.")
		return nil
	}
	return s.drive(ctx)
}

// drive plans if needed and then writes sections, translating interruptions into a
// resume hint
func (s *session) drive(ctx context.Context) error {
	err := s.generate(ctx)
	if err == nil {
		st := s.wf.State()
		cp := s.wf.Checkpoint()
		s.logger.Info("Generation stopped",
			"phase", st.Phase,
			"sections_written", st.Current,
			"total_sections", st.Total,
			"calls", cp.Stats.Calls,
			"retries", cp.Stats.Retries,
			"duration", cp.Stats.TotalDuration,
			"session_dir", st.SessionDir)
		if st.Phase == models.PhaseDone {
			s.logger.Info("All done! 🎉", "full_text", s.wf.Workspace().Path(workspace.FullTextFile))
		}
		return nil
	}

	name := s.wf.Workspace().Name()
	switch {
	case errors.Is(err, workflow.ErrInterrupted), errors.Is(err, context.Canceled):
		s.logger.Warn("Generation interrupted - resume from checkpoint",
			"session_dir", name,
			"resume_command", fmt.Sprintf("storyforge resume %s", name))
		return fmt.Errorf("generation interrupted (resume with: storyforge resume %s)", name)
	case errors.Is(err, workflow.ErrTransportExhausted):
		s.logger.Error("Model endpoint kept failing; progress is saved",
			"session_dir", name,
			"resume_command", fmt.Sprintf("storyforge resume %s", name))
	}
	return fmt.Errorf("generation failed: %w", err)
}

func (s *session) generate(ctx context.Context) error {
	if s.wf.State().Phase == models.PhasePlanning {
		printer := newDeltaPrinter("outline")
		for snap, err := range s.wf.Plan(ctx) {
			if err != nil {
				printer.finish()
				return err
			}
			printer.print(snap.Attempt, snap.Deltas)
		}
		printer.finish()
		st := s.wf.State()
		s.logger.Info("Outline ready", "total_sections", st.Total)
		fmt.Println(st.OutlineText)
	}
	if planOnly {
		return nil
	}

	st := s.wf.State()
	remaining := st.Total - st.Current
	if maxSections > 0 {
		remaining = min(remaining, maxSections)
	}
	if remaining <= 0 {
		return nil
	}

	var bar *progressbar.ProgressBar
	if !showReasoning {
		bar = progressbar.Default(int64(remaining), "Writing sections")
	}
	for range remaining {
		cur := s.wf.State()
		printer := newDeltaPrinter(fmt.Sprintf("section %d/%d", cur.Current+1, cur.Total))
		for snap, err := range s.wf.WriteNext(ctx) {
			if err != nil {
				printer.finish()
				return err
			}
			printer.print(snap.Attempt, snap.Deltas)
		}
		printer.finish()
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return nil
}

// deltaPrinter echoes streamed text for --show-reasoning. A header line marks the start of
// each channel and every retried attempt, which restarts the text from scratch.
type deltaPrinter struct {
	w       io.Writer
	label   string
	attempt int
	kind    stream.Kind
	started bool
}

func newDeltaPrinter(label string) *deltaPrinter {
	if !showReasoning {
		return nil
	}
	return &deltaPrinter{w: os.Stdout, label: label}
}

func (p *deltaPrinter) print(attempt int, deltas []stream.Delta) {
	if p == nil {
		return
	}
	for _, d := range deltas {
		if d.Text == "" {
			continue
		}
		if !p.started || attempt != p.attempt || d.Kind != p.kind {
			p.header(attempt, d.Kind)
		}
		fmt.Fprint(p.w, d.Text)
	}
}

func (p *deltaPrinter) header(attempt int, kind stream.Kind) {
	if p.started {
		fmt.Fprintln(p.w)
	}
	title := fmt.Sprintf("%s: %s", p.label, kind)
	if attempt > 1 {
		title += fmt.Sprintf(" (attempt %d)", attempt)
	}
	fmt.Fprintf(p.w, "--- %s ---\n", title)
	p.started = true
	p.attempt = attempt
	p.kind = kind
}

// finish ends the last streamed line
func (p *deltaPrinter) finish() {
	if p != nil && p.started {
		fmt.Fprintln(p.w)
	}
}
