// Package export renders a session's outline and prose as Markdown or standalone HTML.
package export

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/lamim/storyforge/internal/outline"
	"github.com/lamim/storyforge/internal/util"
	"github.com/lamim/storyforge/internal/workspace"
)

const maxTitleLength = 40

// Document is the exportable content of a session
type Document struct {
	Title   string
	Outline []outline.Entry
	Prose   string
}

// FromWorkspace loads the instruction, outline and committed prose of a session
func FromWorkspace(ws *workspace.Workspace) (Document, error) {
	instruction, err := ws.ReadInstruction()
	if err != nil {
		return Document{}, err
	}
	plan, err := ws.ReadPlan()
	if err != nil {
		return Document{}, err
	}
	prose, err := ws.ReadText()
	if err != nil {
		return Document{}, err
	}
	return Document{
		Title:   title(instruction),
		Outline: outline.ParseText(plan),
		Prose:   prose,
	}, nil
}

// title is the first line of the instruction, shortened
func title(instruction string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(instruction), "\n")
	return util.TruncateString(strings.TrimSpace(line), maxTitleLength)
}

// Markdown renders the document as Markdown: title, outline table, then prose
func Markdown(doc Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.Title)

	if len(doc.Outline) > 0 {
		b.WriteString("## 大纲\n\n")
		b.WriteString("| 段 | 要点 | 字数 |\n|---|---|---|\n")
		for _, e := range doc.Outline {
			fmt.Fprintf(&b, "| %d | %s | %s |\n", e.Section, cell(e.Description), cell(e.WordTarget))
		}
		b.WriteString("\n")
	}

	b.WriteString("## 正文\n\n")
	for _, para := range strings.Split(doc.Prose, "\n") {
		if para = strings.TrimSpace(para); para != "" {
			b.WriteString(para)
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

// HTML writes the document as a standalone HTML page
func HTML(doc Document, w io.Writer) error {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Table),
		goldmark.WithRendererOptions(gmhtml.WithXHTML()),
	)

	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(doc)), &body); err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}

	_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="zh">
<head>
<meta charset="utf-8">
<title>%s</title>
</head>
<body>
%s</body>
</html>
`, html.EscapeString(doc.Title), body.String())
	return err
}
