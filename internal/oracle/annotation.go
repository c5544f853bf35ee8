package oracle

import (
	"strings"
)

// ParseComment classifies the body of a `//` line comment.
//
// Explicit oracles are written `//=> text` (or `// => text`) and are always
// checked. Implicit oracles are plain `// text` comments whose text, cut at
// any following `//` commentary, is a literal rendering. Everything else is
// prose and yields ok=false.
func ParseComment(comment string) (expected string, explicit bool, ok bool) {
	body, isLine := strings.CutPrefix(strings.TrimSpace(comment), "//")
	if !isLine {
		return "", false, false
	}
	trimmed := strings.TrimSpace(body)
	if rest, found := strings.CutPrefix(trimmed, "=>"); found {
		text := strings.TrimSpace(rest)
		if text == "" {
			return "", false, false
		}
		return text, true, true
	}

	text := strings.TrimSpace(cutCommentary(trimmed))
	text = strings.TrimSpace(strings.TrimSuffix(text, ";"))
	if !IsLiteral(text) {
		return "", false, false
	}
	return text, false, true
}

// cutCommentary drops a trailing `// more prose` segment that is not part
// of a string literal.
func cutCommentary(s string) string {
	var quote rune
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case quote != 0:
			if r == '\\' {
				i++
			} else if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'' || r == '`':
			quote = r
		case r == '/' && i+1 < len(rs) && rs[i+1] == '/':
			return string(rs[:i])
		}
	}
	return s
}

var literalWords = map[string]bool{
	"true":      true,
	"false":     true,
	"null":      true,
	"undefined": true,
	"NaN":       true,
	"Infinity":  true,
	"-Infinity": true,
	"nil":       true,
}

// IsLiteral reports whether text reads as a value rendering rather than
// prose.
func IsLiteral(text string) bool {
	if text == "" {
		return false
	}
	if literalWords[text] || numberRe.MatchString(text) {
		return true
	}
	toks, err := tokenize(text)
	if err != nil || len(toks) == 0 {
		return false
	}
	if len(toks) == 1 && toks[0].kind == tokString {
		return true
	}
	return isBracketGroup(toks)
}

// isBracketGroup accepts `[...]`, `{...}`, `Name {...}` and `Name(n) {...}`
// where the group closes on the last token.
func isBracketGroup(toks []token) bool {
	k := 0
	if toks[0].kind == tokWord {
		k = 1
		if len(toks) > 3 && toks[1].text == "(" && toks[2].kind == tokNumber && toks[3].text == ")" {
			k = 4
		}
	}
	if k >= len(toks) || toks[k].kind != tokPunct {
		return false
	}
	open := toks[k].text
	if open != "[" && open != "{" {
		return false
	}
	if k == 0 && open == "[" && len(toks) > 1 && toks[1].text == "!" {
		return false
	}
	depth := 0
	for i := k; i < len(toks); i++ {
		if toks[i].kind != tokPunct {
			continue
		}
		switch toks[i].text {
		case "[", "{", "(":
			depth++
		case "]", "}", ")":
			depth--
			if depth < 0 {
				return false
			}
			if depth == 0 && i != len(toks)-1 {
				return false
			}
		}
	}
	return depth == 0
}

// ExpectedText turns an oracle into the text compared against output.
// A lone string literal is unquoted because output calls print strings
// raw.
func ExpectedText(oracle string) string {
	s := strings.TrimSpace(oracle)
	toks, err := tokenize(s)
	if err == nil && len(toks) == 1 && toks[0].kind == tokString {
		return toks[0].value
	}
	return s
}
