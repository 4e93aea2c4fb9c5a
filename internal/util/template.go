package util

import (
	"fmt"
	"strings"
	"text/template"
)

// forbiddenDirectives are rejected in user-supplied templates: function calls, template
// definitions and inclusion have no use in a prompt and widen what a config file can do.
var forbiddenDirectives = []string{"{{call", "{{define", "{{template", "{{block"}

// PromptTemplate is a parsed prompt template. Missing fields fail rendering instead of
// silently producing "<no value>".
type PromptTemplate struct {
	name string
	tmpl *template.Template
}

// ParsePromptTemplate validates and parses text once so it can be rendered repeatedly
func ParsePromptTemplate(name, text string) (*PromptTemplate, error) {
	for _, directive := range forbiddenDirectives {
		if strings.Contains(text, directive) {
			return nil, fmt.Errorf("template %s contains forbidden directive: %s", name, directive)
		}
	}

	t, err := template.New(name).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return &PromptTemplate{name: name, tmpl: t}, nil
}

// Render executes the template against data
func (p *PromptTemplate) Render(data any) (string, error) {
	var sb strings.Builder
	if err := p.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", p.name, err)
	}
	return sb.String(), nil
}

// TruncateString truncates a string to maxLen runes (Unicode-safe)
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
