// Package outline scans model-written outlines into structured section entries.
//
// An outline is plain text with one section per logical line, e.g.
//
//	第 1 段 - 要点：主角抵达古堡 - 字数：800字
//
// The scanner is line oriented and tolerant of partial input, so it can be re-run on every
// streamed delta while the outline is still being written.
package outline

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	sectionPrefix  = "第"
	sectionSuffix  = "段"
	keyPointLabel  = "要点"
	wordCountLabel = "字数"
	wordUnit       = "字"
)

// Placeholder values for a section whose header has streamed in but whose key point has not.
const (
	PlaceholderDescription = "(generating)"
	PlaceholderWordTarget  = "(computing)"
)

// Entry is one section of an outline.
type Entry struct {
	Section     int    `json:"section"`
	Description string `json:"description"`
	WordTarget  string `json:"word_target"`
}

// IsPlaceholder reports whether the entry only carries a section number so far.
func (e Entry) IsPlaceholder() bool {
	return e.Description == PlaceholderDescription && e.WordTarget == PlaceholderWordTarget
}

func placeholder(section int) Entry {
	return Entry{
		Section:     section,
		Description: PlaceholderDescription,
		WordTarget:  PlaceholderWordTarget,
	}
}

// ParseLine parses one logical outline line, which may span several physical lines joined
// with "\n". It returns false when the line has no section marker.
func ParseLine(line string) (Entry, bool) {
	line = strings.TrimSpace(line)

	section, ok := findSectionMarker(line)
	if !ok {
		return Entry{}, false
	}

	desc, ok := keyPointText(line)
	if !ok {
		return placeholder(section), true
	}

	desc, target := splitWordTarget(desc)
	return Entry{
		Section:     section,
		Description: strings.TrimSpace(desc),
		WordTarget:  target,
	}, true
}

// IsSectionStart reports whether line begins with a section marker.
func IsSectionStart(line string) bool {
	_, _, ok := matchSectionAt(strings.TrimSpace(line), 0)
	return ok
}

// partialSectionStart reports whether line is a section marker cut short by the end of the
// buffer, such as "第" or "第 12", that more text may still complete.
func partialSectionStart(line string) bool {
	s, ok := strings.CutPrefix(strings.TrimSpace(line), sectionPrefix)
	if !ok {
		return false
	}
	i := skipSpace(s, 0)
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return skipSpace(s, i) == len(s)
}

// matchSectionAt matches "第 <n> 段" at byte offset i. Whitespace around the numeral is optional.
func matchSectionAt(s string, i int) (section, end int, ok bool) {
	if !strings.HasPrefix(s[i:], sectionPrefix) {
		return 0, 0, false
	}
	j := skipSpace(s, i+len(sectionPrefix))

	start := j
	for j < len(s) && isDigit(s[j]) {
		j++
	}
	if j == start {
		return 0, 0, false
	}
	n, err := strconv.Atoi(s[start:j])
	if err != nil || n <= 0 {
		return 0, 0, false
	}

	j = skipSpace(s, j)
	if !strings.HasPrefix(s[j:], sectionSuffix) {
		return 0, 0, false
	}
	return n, j + len(sectionSuffix), true
}

// findSectionMarker returns the number of the first section marker anywhere in s.
func findSectionMarker(s string) (int, bool) {
	off := 0
	for {
		idx := strings.Index(s[off:], sectionPrefix)
		if idx < 0 {
			return 0, false
		}
		pos := off + idx
		if n, _, ok := matchSectionAt(s, pos); ok {
			return n, true
		}
		off = pos + len(sectionPrefix)
	}
}

// keyPointText returns the text following the first "要点:" or "要点：". A key point label
// without its colon yet does not count.
func keyPointText(s string) (string, bool) {
	off := 0
	for {
		idx := strings.Index(s[off:], keyPointLabel)
		if idx < 0 {
			return "", false
		}
		rest := s[off+idx+len(keyPointLabel):]
		if c, ok := cutColon(rest); ok {
			return c, true
		}
		off += idx + len(keyPointLabel)
	}
}

// splitWordTarget strips a trailing "[-] [字数][:：] <n> 字" from desc and returns the
// remaining description and "<n>字". When the pattern does not end the text, desc is
// returned untouched with an empty target.
func splitWordTarget(desc string) (string, string) {
	s := strings.TrimRightFunc(desc, unicode.IsSpace)
	if !strings.HasSuffix(s, wordUnit) {
		return desc, ""
	}

	i := skipSpaceLeft(s, len(s)-len(wordUnit))
	digitsEnd := i
	for i > 0 && isDigit(s[i-1]) {
		i--
	}
	if i == digitsEnd {
		return desc, ""
	}
	target := s[i:digitsEnd] + wordUnit

	i = skipSpaceLeft(s, i)
	i = trimSuffixAt(s, i, ":", "：")
	i = trimSuffixAt(s, i, wordCountLabel)
	i = skipOneSpaceLeft(s, i)
	i = trimSuffixAt(s, i, "-")
	i = skipOneSpaceLeft(s, i)

	return s[:i], target
}

func cutColon(s string) (string, bool) {
	for _, colon := range []string{":", "："} {
		if rest, ok := strings.CutPrefix(s, colon); ok {
			return rest, true
		}
	}
	return "", false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func skipSpace(s string, i int) int {
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

func skipSpaceLeft(s string, i int) int {
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(s[:i])
		if !unicode.IsSpace(r) {
			break
		}
		i -= size
	}
	return i
}

func skipOneSpaceLeft(s string, i int) int {
	if i == 0 {
		return i
	}
	r, size := utf8.DecodeLastRuneInString(s[:i])
	if unicode.IsSpace(r) {
		return i - size
	}
	return i
}

// trimSuffixAt removes the first of suffixes that ends s[:i] and returns the new end.
func trimSuffixAt(s string, i int, suffixes ...string) int {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s[:i], suffix) {
			return i - len(suffix)
		}
	}
	return i
}
