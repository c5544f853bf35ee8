package oracle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEqualCanonicalizes(t *testing.T) {
	tests := []struct {
		expected, actual string
		equal            bool
	}{
		{"4", " 4 ", true},
		{"[1,2,3]", "[1, 2, 3]", true},
		{"{ 'a': 1, }", "{a: 1}", true},
		{"['x']", `["x"]`, true},
		{"{'my-key': 1}", `{"my-key": 1}`, true},
		{"Person { name: 'Ada' }", `Person {name: "Ada"}`, true},
		{"Map(1) {'k' => 1}", `Map(1) {"k" => 1}`, true},
		{"[ [1], { b: [2] } ]", "[[1], {b: [2]}]", true},
		{"true", "1", false},
		{"[1, 2]", "[2, 1]", false},
		{"{a: 1}", "{a: 1, b: 2}", false},
		{"hello  world", "hello world", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.equal, Equal(tt.expected, tt.actual), "%q vs %q", tt.expected, tt.actual)
	}
}

func TestNormalizeLeavesProseAlone(t *testing.T) {
	require.Equal(t, "hello world", Normalize("  hello world "))
	require.Equal(t, "{unterminated 'x}", Normalize("{unterminated 'x}"))
}

func TestQuoteStringAndBareKeys(t *testing.T) {
	require.Equal(t, `"a\"b\n"`, QuoteString("a\"b\n"))
	require.Equal(t, `"back\\slash"`, QuoteString(`back\slash`))

	require.True(t, IsBareKey("name"))
	require.True(t, IsBareKey("$x"))
	require.True(t, IsBareKey("0"))
	require.False(t, IsBareKey("01"))
	require.False(t, IsBareKey("a-b"))
	require.False(t, IsBareKey(""))
}
