package outline

import (
	"fmt"
	"strings"
)

// ParseText segments a (possibly partial) outline buffer into entries.
//
// Lines that start a section open a new chunk and every following line up to the next
// section start belongs to it, so a description may wrap across physical lines. Chunks that
// do not parse are dropped, as are later duplicates of a section number. Parsing is a pure
// function of the buffer, so re-running it on an appended buffer never reorders stable
// entries. An unterminated last line that may still grow into a section marker is held
// back, so the entry before it keeps its word target while the next header streams in.
func ParseText(text string) []Entry {
	lines := nonEmptyLines(text)
	if tail := text[strings.LastIndex(text, "\n")+1:]; partialSectionStart(tail) {
		lines = lines[:len(lines)-1]
	}

	var starts []int
	for i, line := range lines {
		if IsSectionStart(line) {
			starts = append(starts, i)
		}
	}
	if len(starts) == 0 {
		return nil
	}

	entries := make([]Entry, 0, len(starts))
	seen := make(map[int]bool, len(starts))
	for k, start := range starts {
		end := len(lines)
		if k+1 < len(starts) {
			end = starts[k+1]
		}

		entry, ok := ParseLine(strings.Join(lines[start:end], "\n"))
		if !ok || seen[entry.Section] {
			continue
		}
		seen[entry.Section] = true
		entries = append(entries, entry)
	}
	return entries
}

// SectionLines returns the lines of text that start a section, in order.
func SectionLines(text string) []string {
	var out []string
	for _, line := range nonEmptyLines(text) {
		if IsSectionStart(line) {
			out = append(out, line)
		}
	}
	return out
}

// Line renders the entry in canonical outline form. Wrapped descriptions are folded onto
// one line and an empty word target is omitted, so ParseLine(e.Line()) returns e for
// single-line descriptions.
func (e Entry) Line() string {
	if e.IsPlaceholder() {
		return fmt.Sprintf("%s %d %s", sectionPrefix, e.Section, sectionSuffix)
	}

	desc := strings.Join(strings.Split(e.Description, "\n"), " ")
	line := fmt.Sprintf("%s %d %s - %s：%s", sectionPrefix, e.Section, sectionSuffix, keyPointLabel, desc)
	if e.WordTarget != "" {
		line += fmt.Sprintf(" - %s：%s", wordCountLabel, e.WordTarget)
	}
	return line
}

// Format renders entries as outline text, one canonical line per entry.
func Format(entries []Entry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Line()
	}
	return strings.Join(lines, "\n")
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		if line := strings.TrimSpace(raw); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
