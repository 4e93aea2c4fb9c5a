package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lamim/storyforge/internal/catalog"
	"github.com/lamim/storyforge/internal/checkpoint"
	"github.com/lamim/storyforge/internal/config"
	"github.com/lamim/storyforge/internal/export"
	"github.com/lamim/storyforge/internal/util"
	"github.com/lamim/storyforge/internal/workspace"
	"github.com/lamim/storyforge/pkg/models"
)

// loadConfigOrDefault loads --config when it exists, defaults otherwise
func loadConfigOrDefault() (*config.Config, error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func quietLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return workspace.NewConsoleLogger(os.Stderr, level)
}

// listSessions lists the sessions recorded in the catalog
func listSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigOrDefault()
	if err != nil {
		return err
	}
	logger := quietLogger()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cat, err := catalog.Open(cfg.Catalog.Path, logger)
	if err != nil {
		return err
	}
	defer cat.Close()

	sessions, err := cat.List(ctx)
	if err != nil {
		return err
	}
	if rescan || len(sessions) == 0 {
		if _, err := cat.Rescan(ctx, cfg.Output.SavePath); err != nil {
			return fmt.Errorf("failed to rescan sessions: %w", err)
		}
		if sessions, err = cat.List(ctx); err != nil {
			return err
		}
	}

	if len(sessions) == 0 {
		fmt.Println("No session directories found. Run a generation first.")
		return nil
	}

	fmt.Println("Available sessions:")
	fmt.Println()
	fmt.Printf("%-26s %-10s %-10s %-20s %s\n", "SESSION", "PHASE", "PROGRESS", "UPDATED", "INSTRUCTION")
	fmt.Println(strings.Repeat("-", 100))

	for _, s := range sessions {
		fmt.Printf("%-26s %-10s %-10s %-20s %s\n",
			s.Name,
			s.Phase,
			progress(s.Phase, s.Cursor, s.TotalSections),
			s.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
			util.TruncateString(strings.ReplaceAll(s.Instruction, "\n", " "), 30))
	}

	return nil
}

func progress(phase models.Phase, cursor, total int) string {
	switch {
	case cursor == models.CursorOutlineFailed:
		return "failed"
	case phase == models.PhaseDone:
		return "done"
	case total == 0:
		return "-"
	}
	return fmt.Sprintf("%d/%d", cursor, total)
}

// inspectSession displays detailed information about a session's checkpoint
func inspectSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigOrDefault()
	if err != nil {
		return err
	}
	logger := quietLogger()

	dir, err := workspace.ResolveSession(cfg.Output.SavePath, args[0])
	if err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	ws, err := workspace.Open(dir, logger)
	if err != nil {
		return err
	}

	cp, err := checkpoint.Load(dir, logger)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	fmt.Printf("Checkpoint Information for: %s\n", ws.Name())
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Session ID:          %s\n", cp.SessionID)
	fmt.Printf("Created At:          %s\n", cp.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Last Saved At:       %s\n", cp.LastSavedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Current Phase:       %s\n", cp.Phase)
	fmt.Printf("Config Hash:         %s\n", cp.ConfigHash)
	fmt.Println()

	fmt.Println("Progress:")
	if cp.Failed() {
		fmt.Println("  Outline:           failed (planning restarts on resume)")
	} else {
		fmt.Printf("  Sections:          %d / %d written (%.1f%%)\n",
			cp.Cursor, cp.TotalSections, checkpoint.GetProgressPercentage(cp))
		fmt.Printf("  Remaining:         %d\n", checkpoint.RemainingSections(cp))
		fmt.Printf("  Committed Prose:   %d bytes\n", cp.ProseLength)
	}
	fmt.Println()

	fmt.Println("Statistics:")
	fmt.Printf("  Calls:             %d\n", cp.Stats.Calls)
	fmt.Printf("  Failed Calls:      %d\n", cp.Stats.FailedCalls)
	fmt.Printf("  Retries:           %d\n", cp.Stats.Retries)
	fmt.Printf("  Malformed Chunks:  %d\n", cp.Stats.MalformedChunks)
	fmt.Printf("  Completion Tokens: %d (estimated)\n", cp.Stats.CompletionTokens)
	fmt.Printf("  Total Duration:    %s\n", cp.Stats.TotalDuration)
	if records, err := ws.ReadInteractions(); err == nil {
		fmt.Printf("  Logged Calls:      %d\n", len(records))
	}
	fmt.Println()

	if cp.Phase != models.PhaseDone {
		fmt.Println("To resume this session, run:")
		fmt.Printf("  storyforge resume %s\n", ws.Name())
	} else {
		fmt.Println("This session is complete.")
		fmt.Printf("  storyforge export %s\n", ws.Name())
	}

	return nil
}

// exportSession renders the outline and prose of a session
func exportSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigOrDefault()
	if err != nil {
		return err
	}

	var ext string
	switch exportFormat {
	case "html":
		ext = ".html"
	case "md", "markdown":
		ext = ".md"
	default:
		return fmt.Errorf("unknown export format %q (want html or md)", exportFormat)
	}

	dir, err := workspace.ResolveSession(cfg.Output.SavePath, args[0])
	if err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	ws, err := workspace.Open(dir, quietLogger())
	if err != nil {
		return err
	}
	doc, err := export.FromWorkspace(ws)
	if err != nil {
		return err
	}

	out := exportOut
	if out == "" {
		out = filepath.Join(dir, "fulltext"+ext)
	}

	var w io.Writer = os.Stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if ext == ".html" {
		err = export.HTML(doc, w)
	} else {
		_, err = io.WriteString(w, export.Markdown(doc))
	}
	if err != nil {
		return err
	}
	if out != "-" {
		fmt.Printf("Exported %s to %s\n", ws.Name(), out)
	}
	return nil
}
