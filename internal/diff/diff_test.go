package diff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInlineMarksChangedCharacters(t *testing.T) {
	segs := Default.Inline("[1, 2, 3]", "[1, 2, 4]")
	require.True(t, Changed(segs))

	var expected, actual string
	for _, s := range segs {
		if s.Op != Insert {
			expected += s.Text
		}
		if s.Op != Delete {
			actual += s.Text
		}
	}
	require.Equal(t, "[1, 2, 3]", expected)
	require.Equal(t, "[1, 2, 4]", actual)
}

func TestInlineIdentical(t *testing.T) {
	segs := NewEngine().Inline("same", "same")
	require.False(t, Changed(segs))
	require.Equal(t, []Segment{{Op: Equal, Text: "same"}}, segs)
}

func TestLinesWithContext(t *testing.T) {
	old := "a pass\nb pass\nc pass\nd pass\ne pass\n"
	next := "a pass\nb pass\nc mismatch\nd pass\ne pass\n"

	lines := Default.Lines(old, next, 1)
	require.Equal(t, []Line{
		{Op: Equal, Content: "b pass"},
		{Op: Delete, Content: "c pass"},
		{Op: Insert, Content: "c mismatch"},
		{Op: Equal, Content: "d pass"},
	}, lines)

	require.Empty(t, Default.Lines(old, old, 2))
}
