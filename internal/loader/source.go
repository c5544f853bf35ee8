package loader

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"lessonrun/internal/lesson"
	"lessonrun/internal/oracle"
)

// comment is a `//` line comment found while parsing a segment.
type comment struct {
	Line     int
	Text     string
	Trailing bool // code precedes it on the same line
}

// statementParser parses one segment into statements and the line
// comments it contains.
type statementParser func(f *sourceFile, seg segment) ([]lesson.Statement, []comment, error)

type sourceFile struct {
	src        []byte
	lines      []string
	lineStarts []int
}

func newSourceFile(src []byte) *sourceFile {
	f := &sourceFile{src: src, lineStarts: []int{0}}
	for i, b := range src {
		if b == '\n' {
			f.lineStarts = append(f.lineStarts, i+1)
		}
	}
	f.lines = strings.Split(string(src), "\n")
	return f
}

// segment is the line range of one unit. start and end are 0-based line
// indices of the unit body, end exclusive.
type segment struct {
	title      string
	headerLine int
	start, end int
	preamble   bool
}

// body returns the bytes of the segment.
func (f *sourceFile) body(seg segment) []byte {
	return f.src[f.offset(seg.start):f.offset(seg.end)]
}

func (f *sourceFile) offset(line int) int {
	if line >= len(f.lineStarts) {
		return len(f.src)
	}
	return f.lineStarts[line]
}

// codeBefore reports whether line (1-based) has non-blank text before
// byte column col.
func (f *sourceFile) codeBefore(line, col int) bool {
	if line < 1 || line > len(f.lines) {
		return false
	}
	text := f.lines[line-1]
	if col > len(text) {
		col = len(text)
	}
	return strings.TrimSpace(text[:col]) != ""
}

func (f *sourceFile) segments(header *regexp.Regexp, base string) []segment {
	type hit struct {
		line  int
		title string
	}
	var hits []hit
	for i, l := range f.lines {
		m := header.FindStringSubmatch(strings.TrimRight(l, "\r"))
		if m == nil {
			continue
		}
		title := m[0]
		if len(m) > 1 {
			title = m[1]
		}
		title = strings.TrimSpace(title)
		if title == "" {
			title = fmt.Sprintf("unit %d", len(hits)+1)
		}
		hits = append(hits, hit{line: i, title: title})
	}

	n := len(f.lines)
	if len(hits) == 0 {
		return []segment{{title: base, headerLine: 1, start: 0, end: n}}
	}
	segs := []segment{{title: base, headerLine: 1, start: 0, end: hits[0].line, preamble: true}}
	for i, h := range hits {
		end := n
		if i+1 < len(hits) {
			end = hits[i+1].line
		}
		segs = append(segs, segment{title: h.title, headerLine: h.line + 1, start: h.line + 1, end: end})
	}
	return segs
}

var directiveRe = regexp.MustCompile(`^\s*//\s*@lesson\s+(\S+)(?:\s+(\S+))?\s*$`)

func (f *sourceFile) directives(seg segment) (lesson.Directives, *LoadProblem) {
	var d lesson.Directives
	for i := seg.start; i < seg.end && i < len(f.lines); i++ {
		m := directiveRe.FindStringSubmatch(strings.TrimRight(f.lines[i], "\r"))
		if m == nil {
			continue
		}
		switch strings.ToLower(m[1]) {
		case "nondeterministic":
			d.Nondeterministic = true
		case "skip":
			d.Skip = true
		case "strict":
			d.Strict = true
		case "timeout":
			dur, err := time.ParseDuration(m[2])
			if err != nil || dur <= 0 {
				return d, &LoadProblem{Line: i + 1, Message: fmt.Sprintf("bad @lesson timeout %q", m[2])}
			}
			d.Timeout = dur
		default:
			return d, &LoadProblem{Line: i + 1, Message: fmt.Sprintf("unknown @lesson directive %q", m[1])}
		}
	}
	return d, nil
}

// attachComments turns trailing comments into annotations on the
// statement whose line span holds them. When several statements share a
// line the last one owns the comment.
func attachComments(stmts []lesson.Statement, comments []comment) {
	for _, c := range comments {
		if !c.Trailing {
			continue
		}
		expected, explicit, ok := oracle.ParseComment(c.Text)
		if !ok {
			continue
		}
		owner := -1
		for i := range stmts {
			if stmts[i].Line <= c.Line && c.Line <= stmts[i].EndLine {
				owner = i
			}
		}
		if owner < 0 {
			continue
		}
		st := &stmts[owner]
		if _, dup := st.AnnotationAt(c.Line); dup {
			continue
		}
		st.Annotations = append(st.Annotations, lesson.Annotation{
			Line:     c.Line,
			Raw:      strings.TrimSpace(c.Text),
			Expected: expected,
			Explicit: explicit,
		})
	}
	for i := range stmts {
		st := &stmts[i]
		if st.Kind == lesson.KindExpression && len(st.Calls) == 0 && len(st.Annotations) > 0 {
			st.EmitsValue = true
		}
	}
}
