package outline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOutline = `好的，以下是大纲：

第 1 段 - 要点：主角抵达古堡 - 字数：800字
第 2 段 - 要点：主角在大厅发现一封信，
信中提到失踪多年的父亲 - 字数：1200字

第 3 段 - 要点：真相揭晓 - 字数：1000字
`

func TestParseText(t *testing.T) {
	got := ParseText(sampleOutline)
	want := []Entry{
		{Section: 1, Description: "主角抵达古堡", WordTarget: "800字"},
		{Section: 2, Description: "主角在大厅发现一封信，\n信中提到失踪多年的父亲", WordTarget: "1200字"},
		{Section: 3, Description: "真相揭晓", WordTarget: "1000字"},
	}
	assert.Equal(t, want, got)
}

func TestParseTextGroupsWrappedLines(t *testing.T) {
	buf := "第 1 段 - 要点：开端 - 字数：500字\n第 2 段 - 要点：第一行\n第二行 - 字数：600字"
	got := ParseText(buf)
	require.Len(t, got, 2)
	assert.Equal(t, "开端", got[0].Description)
	assert.Equal(t, "第一行\n第二行", got[1].Description)
	assert.Equal(t, "600字", got[1].WordTarget)
}

func TestParseTextNoSections(t *testing.T) {
	assert.Empty(t, ParseText(""))
	assert.Empty(t, ParseText("我先想一想大纲的结构……\n"))
	assert.Empty(t, ParseText("第"))
}

func TestParseTextKeepsAppearanceOrder(t *testing.T) {
	got := ParseText("第 2 段 - 要点：b\n第 1 段 - 要点：a")
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Section)
	assert.Equal(t, 1, got[1].Section)
}

func TestParseTextDuplicateSectionKeepsFirst(t *testing.T) {
	got := ParseText("第 1 段 - 要点：a\n第 1 段 - 要点：b")
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Description)
}

// Re-parsing after every appended rune must end in the same outline as one parse of the
// whole buffer. Entries never move or disappear, every filled-in entry other than the one
// still being written stays as it was, and a header that is still arriving leaves all
// entries alone.
func TestParseTextIncremental(t *testing.T) {
	final := ParseText(sampleOutline)

	var buf string
	var prev []Entry
	for _, r := range sampleOutline {
		buf += string(r)
		cur := ParseText(buf)

		require.GreaterOrEqual(t, len(cur), len(prev), "outline shrank at %q", buf)
		headerArriving := partialSectionStart(buf[strings.LastIndex(buf, "\n")+1:])
		for i := range prev {
			assert.Equal(t, prev[i].Section, cur[i].Section, "entry moved at %q", buf)
			if prev[i].IsPlaceholder() {
				continue
			}
			if i < len(cur)-1 || headerArriving {
				assert.Equal(t, prev[i], cur[i], "entry %d changed at %q", i, buf)
			}
		}
		prev = cur
	}
	assert.Equal(t, final, prev)
}

func TestParseTextHoldsBackArrivingHeader(t *testing.T) {
	base := "第 1 段 - 要点：主角抵达古堡 - 字数：800字\n"
	want := Entry{Section: 1, Description: "主角抵达古堡", WordTarget: "800字"}

	for _, suffix := range []string{"", "第", "第 ", "第 2", "第 2 ", "第 2 段", "第 2 段 - 要点：离开"} {
		got := ParseText(base + suffix)
		require.NotEmpty(t, got, "suffix %q", suffix)
		assert.Equal(t, want, got[0], "suffix %q", suffix)
	}

	// A finished line that never became a header is ordinary description text.
	got := ParseText(base + "第 2\n")
	require.Len(t, got, 1)
	assert.Equal(t, "主角抵达古堡 - 字数：800字\n第 2", got[0].Description)
	assert.Empty(t, got[0].WordTarget)
}

func TestParseTextChunkBoundaries(t *testing.T) {
	final := ParseText(sampleOutline)
	for size := 1; size <= 16; size++ {
		var buf string
		var last []Entry
		rest := sampleOutline
		for len(rest) > 0 {
			n := 0
			for i := 0; i < size && n < len(rest); i++ {
				_, w := utf8.DecodeRuneInString(rest[n:])
				n += w
			}
			buf += rest[:n]
			rest = rest[n:]
			last = ParseText(buf)
		}
		assert.Equal(t, final, last, "chunk size %d", size)
	}
}

func TestFormat(t *testing.T) {
	entries := []Entry{
		{Section: 1, Description: "开端", WordTarget: "500字"},
		{Section: 2, Description: "上半句\n下半句", WordTarget: "600字"},
	}
	text := Format(entries)
	assert.Equal(t, "第 1 段 - 要点：开端 - 字数：500字\n第 2 段 - 要点：上半句 下半句 - 字数：600字", text)
	assert.Equal(t, []string{
		"第 1 段 - 要点：开端 - 字数：500字",
		"第 2 段 - 要点：上半句 下半句 - 字数：600字",
	}, SectionLines(text))
}
