package util

import (
	"strings"
	"testing"
)

type planFields struct {
	Instruction string
	MinWords    int
}

func TestPromptTemplate_Render(t *testing.T) {
	tmpl, err := ParsePromptTemplate("plan", "任务：{{.Instruction}}，至少 {{.MinWords}} 字")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	result, err := tmpl.Render(planFields{Instruction: "写一篇游记", MinWords: 500})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	expected := "任务：写一篇游记，至少 500 字"
	if result != expected {
		t.Errorf("Expected '%s', got '%s'", expected, result)
	}

	// Rendering twice with different data reuses the parsed template
	result, err = tmpl.Render(planFields{Instruction: "写一封信", MinWords: 800})
	if err != nil {
		t.Fatalf("Second render failed: %v", err)
	}
	if !strings.Contains(result, "写一封信") || !strings.Contains(result, "800") {
		t.Errorf("Unexpected second render: %s", result)
	}
}

func TestPromptTemplate_MissingKey(t *testing.T) {
	tmpl, err := ParsePromptTemplate("write", "Step: {{.Step}}")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if _, err := tmpl.Render(map[string]any{"Plan": "x"}); err == nil {
		t.Error("Expected error for missing key, got nil")
	}
}

func TestParsePromptTemplate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"call", `{{call .Fn}}`, "forbidden directive"},
		{"define", `{{define "x"}}y{{end}}`, "forbidden directive"},
		{"template", `{{template "x"}}`, "forbidden directive"},
		{"block", `{{block "x" .}}y{{end}}`, "forbidden directive"},
		{"unclosed", `{{.Instruction`, "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePromptTemplate(tt.name, tt.tmpl)
			if err == nil {
				t.Fatalf("Expected error for %q, got nil", tt.tmpl)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 7, "this is..."},
		{"第一段第二段", 3, "第一段..."},
	}

	for _, tt := range tests {
		if got := TruncateString(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
