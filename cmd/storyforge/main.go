package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath      string
	envFile         string
	instruction     string
	instructionFile string
	planOnly        bool
	maxSections     int
	showReasoning   bool
	metricsAddr     string
	rescan          bool
	exportOut       string
	exportFormat    string
	verbose         bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "storyforge",
		Short: "StoryForge - outline-first long-form writer",
		Long: `StoryForge turns a writing instruction into a long piece of prose with an LLM.
It first streams a numbered outline, then writes the piece one section at a time,
checkpointing after every section so an interrupted session can be resumed.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to configuration file (.toml or .yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start a new writing session",
		Long: `Start a new writing session:
1. Store the instruction in a fresh session directory
2. Stream the outline and save it as plan.txt
3. Write every section in order, appending to fulltext.txt`,
		RunE: runSession,
	}
	runCmd.Flags().StringVar(&instruction, "instruction", "", "Writing instruction")
	runCmd.Flags().StringVar(&instructionFile, "instruction-file", "", "Read the writing instruction from a file")
	runCmd.Flags().BoolVar(&planOnly, "plan-only", false, "Stop after the outline is written")
	addGenerationFlags(runCmd)

	resumeCmd := &cobra.Command{
		Use:   "resume <session>",
		Short: "Resume an interrupted session",
		Long:  "Resume a session from its checkpoint. <session> is a directory name under save_path or a path.",
		Args:  cobra.ExactArgs(1),
		RunE:  resumeSession,
	}
	addGenerationFlags(resumeCmd)

	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage checkpoints",
		Long:  "Inspect the checkpoints of writing sessions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		Long:  "List the sessions recorded in the session catalog",
		RunE:  listSessions,
	}
	listCmd.Flags().BoolVar(&rescan, "rescan", false, "Rebuild the catalog from the session directories first")

	inspectCmd := &cobra.Command{
		Use:   "inspect <session>",
		Short: "Inspect a checkpoint",
		Long:  "Display detailed information about the checkpoint of a session",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectSession,
	}

	checkpointCmd.AddCommand(listCmd)
	checkpointCmd.AddCommand(inspectCmd)

	exportCmd := &cobra.Command{
		Use:   "export <session>",
		Short: "Export a session as HTML or Markdown",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSession,
	}
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default <session>/fulltext.<format>, - for stdout)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "html", "Output format: html or md")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(exportCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addGenerationFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&maxSections, "sections", 0, "Write at most this many sections (0 = all)")
	cmd.Flags().BoolVar(&showReasoning, "show-reasoning", false, "Stream reasoning and prose to stdout instead of a progress bar")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides [metrics] addr)")
}

// loadEnvFile loads KEY=VALUE lines from path into the environment
func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for _, line := range strings.FieldsFunc(string(data), func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = trimQuotes(strings.TrimSpace(value))
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}

	return nil
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
