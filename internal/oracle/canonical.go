package oracle

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// Canonical rendering of values is a small JS-literal dialect:
//
//	[1, 2, "three"]
//	{name: "Ada", tags: ["x"]}
//	Person {name: "Ada"}
//	Map(1) {"k" => 1}
//
// Both the engines' renderings and the annotation texts go through
// Normalize, so spacing, quote style and quoted identifier keys never
// cause a mismatch on their own.

type tokenKind int

const (
	tokString tokenKind = iota
	tokNumber
	tokWord
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	// value holds the decoded contents of a string token.
	value string
}

var errUnterminated = errors.New("unterminated string literal")

var numberRe = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?n?$`)

func isWordRune(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func tokenize(s string) ([]token, error) {
	var toks []token
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '"' || r == '\'' || r == '`':
			val, n, err := readString(rs[i:])
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: string(rs[i : i+n]), value: val})
			i += n
		case unicode.IsDigit(r) || ((r == '-' || r == '.') && i+1 < len(rs) && unicode.IsDigit(rs[i+1]) && !prevIsValue(toks)):
			j := i + 1
			for j < len(rs) && (isWordRune(rs[j]) || rs[j] == '.' ||
				((rs[j] == '-' || rs[j] == '+') && (rs[j-1] == 'e' || rs[j-1] == 'E'))) {
				j++
			}
			text := string(rs[i:j])
			kind := tokNumber
			if !numberRe.MatchString(text) {
				kind = tokWord
			}
			toks = append(toks, token{kind: kind, text: text})
			i = j
		case isWordRune(r):
			j := i + 1
			for j < len(rs) && isWordRune(rs[j]) {
				j++
			}
			toks = append(toks, token{kind: tokWord, text: string(rs[i:j])})
			i = j
		case r == '=' && i+1 < len(rs) && rs[i+1] == '>':
			toks = append(toks, token{kind: tokPunct, text: "=>"})
			i += 2
		default:
			toks = append(toks, token{kind: tokPunct, text: string(r)})
			i++
		}
	}
	return toks, nil
}

// prevIsValue reports whether a '-' at this point is a binary operator
// rather than a sign.
func prevIsValue(toks []token) bool {
	if len(toks) == 0 {
		return false
	}
	last := toks[len(toks)-1]
	if last.kind != tokPunct {
		return true
	}
	return last.text == ")" || last.text == "]" || last.text == "}"
}

func readString(rs []rune) (string, int, error) {
	quote := rs[0]
	var b strings.Builder
	for i := 1; i < len(rs); i++ {
		r := rs[i]
		if r == '\\' && i+1 < len(rs) {
			i++
			switch rs[i] {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case 'r':
				b.WriteRune('\r')
			case '0':
				b.WriteRune(0)
			default:
				b.WriteRune(rs[i])
			}
			continue
		}
		if r == quote {
			return b.String(), i + 1, nil
		}
		b.WriteRune(r)
	}
	return "", 0, errUnterminated
}

// QuoteString renders s the way strings nested inside structures are
// rendered: double-quoted with minimal escaping.
func QuoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
var indexRe = regexp.MustCompile(`^(0|[1-9][0-9]*)$`)

// IsBareKey reports whether an object key renders without quotes.
func IsBareKey(k string) bool {
	return identRe.MatchString(k) || indexRe.MatchString(k)
}

func canonical(toks []token) string {
	var b strings.Builder
	var stack []string
	var prev *token
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind == tokPunct && t.text == "," && i+1 < len(toks) {
			if n := toks[i+1]; n.kind == tokPunct && (n.text == "]" || n.text == "}" || n.text == ")") {
				continue
			}
		}

		text := t.text
		switch t.kind {
		case tokString:
			inObject := len(stack) > 0 && stack[len(stack)-1] == "{"
			nextIsColon := i+1 < len(toks) && toks[i+1].kind == tokPunct && toks[i+1].text == ":"
			if inObject && nextIsColon && IsBareKey(t.value) {
				text = t.value
			} else {
				text = QuoteString(t.value)
			}
		case tokPunct:
			switch t.text {
			case "[", "{", "(":
				stack = append(stack, t.text)
			case "]", "}", ")":
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
			}
		}

		if prev != nil && needSpace(*prev, t) {
			b.WriteByte(' ')
		}
		b.WriteString(text)
		tt := t
		prev = &tt
	}
	return b.String()
}

func isValueTok(t token) bool {
	return t.kind == tokString || t.kind == tokNumber || t.kind == tokWord
}

func needSpace(prev, cur token) bool {
	if prev.kind == tokPunct && (prev.text == "," || prev.text == ":" || prev.text == "=>") {
		return true
	}
	if cur.kind == tokPunct && cur.text == "=>" {
		return true
	}
	if isValueTok(prev) && isValueTok(cur) {
		return true
	}
	if cur.kind == tokPunct && cur.text == "{" {
		return isValueTok(prev) || (prev.kind == tokPunct && (prev.text == ")" || prev.text == "]"))
	}
	return false
}

// Normalize returns the comparison form of a rendering or an annotation.
// Texts with structure are re-emitted canonically; anything that does not
// tokenize is only trimmed.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, "[{") {
		return s
	}
	toks, err := tokenize(s)
	if err != nil || len(toks) == 0 {
		return s
	}
	return canonical(toks)
}

// Equal compares an expected annotation text against an actual rendering.
func Equal(expected, actual string) bool {
	return Normalize(expected) == Normalize(actual)
}
