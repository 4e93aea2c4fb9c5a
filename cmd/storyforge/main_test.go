package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/lamim/storyforge/internal/stream"
	"github.com/lamim/storyforge/pkg/models"
)

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\r\nSTORYFORGE_TEST_A=plain\n\nSTORYFORGE_TEST_B = \"quoted value\"\nnot a pair\nSTORYFORGE_TEST_C='x=y'\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STORYFORGE_TEST_A", "")
	t.Setenv("STORYFORGE_TEST_B", "")
	t.Setenv("STORYFORGE_TEST_C", "")

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile() error = %v", err)
	}

	want := map[string]string{
		"STORYFORGE_TEST_A": "plain",
		"STORYFORGE_TEST_B": "quoted value",
		"STORYFORGE_TEST_C": "x=y",
	}
	for k, v := range want {
		if got := os.Getenv(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		phase  models.Phase
		cursor int
		total  int
		want   string
	}{
		{models.PhasePlanning, models.CursorOutlineFailed, 0, "failed"},
		{models.PhasePlanning, 0, 0, "-"},
		{models.PhaseWriting, 2, 5, "2/5"},
		{models.PhaseDone, 5, 5, "done"},
	}
	for _, tt := range tests {
		if got := progress(tt.phase, tt.cursor, tt.total); got != tt.want {
			t.Errorf("progress(%s, %d, %d) = %q, want %q", tt.phase, tt.cursor, tt.total, got, tt.want)
		}
	}
}

func TestDeltaPrinterHeaders(t *testing.T) {
	var buf bytes.Buffer
	p := &deltaPrinter{w: &buf, label: "section 2/5"}

	p.print(1, []stream.Delta{{Kind: stream.KindReasoning, Text: "先想"}, {Kind: stream.KindReasoning, Text: "结构"}})
	p.print(1, []stream.Delta{{Kind: stream.KindContent, Text: ""}, {Kind: stream.KindContent, Text: "夜色"}})
	p.print(2, []stream.Delta{{Kind: stream.KindContent, Text: "夜色降临。"}})
	p.finish()

	want := "--- section 2/5: reasoning ---\n先想结构\n" +
		"--- section 2/5: content ---\n夜色\n" +
		"--- section 2/5: content (attempt 2) ---\n夜色降临。\n"
	if got := buf.String(); got != want {
		t.Errorf("printed output = %q, want %q", got, want)
	}
}

func TestDeltaPrinterDisabled(t *testing.T) {
	showReasoning = false
	p := newDeltaPrinter("outline")
	if p != nil {
		t.Fatalf("newDeltaPrinter() = %v, want nil without --show-reasoning", p)
	}
	p.print(1, []stream.Delta{{Kind: stream.KindContent, Text: "x"}})
	p.finish()
}
