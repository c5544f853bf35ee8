package oracle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseComment(t *testing.T) {
	tests := []struct {
		comment  string
		expected string
		explicit bool
		ok       bool
	}{
		{"// 4", "4", false, true},
		{"// -Infinity", "-Infinity", false, true},
		{"// 3.14", "3.14", false, true},
		{"// 10n", "10n", false, true},
		{"// true", "true", false, true},
		{"// undefined", "undefined", false, true},
		{"// 'hi'", "'hi'", false, true},
		{"// [2, 4, 6]", "[2, 4, 6]", false, true},
		{"// {x: 1, y: 2};", "{x: 1, y: 2}", false, true},
		{`// Person {name: "Ada"}`, `Person {name: "Ada"}`, false, true},
		{`// Map(1) {"k" => 1}`, `Map(1) {"k" => 1}`, false, true},
		{"// 1 // [!] first element", "1", false, true},
		{"//=> hello world", "hello world", true, true},
		{"// => [1, 2]", "[1, 2]", true, true},
		{"//=>", "", false, false},
		{"// this is prose", "", false, false},
		{"// [!] commentary", "", false, false},
		{"// [1, 2] and more", "", false, false},
		{"// 'unterminated", "", false, false},
		{"/* block */", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.comment, func(t *testing.T) {
			expected, explicit, ok := ParseComment(tt.comment)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.expected, expected)
			require.Equal(t, tt.explicit, explicit)
		})
	}
}

func TestExpectedTextUnquotesLoneStrings(t *testing.T) {
	require.Equal(t, "hi", ExpectedText("'hi'"))
	require.Equal(t, "a b", ExpectedText(`"a b"`))
	require.Equal(t, "[1]", ExpectedText(" [1] "))
	require.Equal(t, `"a" "b"`, ExpectedText(`"a" "b"`))
}
