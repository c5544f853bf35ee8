// Package diff computes the character diffs shown for mismatched output
// and the line diffs shown between watch-mode runs, on top of
// sergi/go-diff.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op is the kind of a diff segment or line.
type Op int

const (
	Equal Op = iota
	Delete
	Insert
)

// Segment is a run of characters with one Op.
type Segment struct {
	Op   Op
	Text string
}

// Line is one line of a line diff.
type Line struct {
	Op      Op
	Content string
}

// Engine wraps a configured diffmatchpatch instance.
type Engine struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewEngine creates an engine with the timeout disabled, so results never
// depend on machine speed.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Engine{dmp: dmp}
}

// Default is the shared engine.
var Default = NewEngine()

// Inline diffs expected against actual character by character, cleaned up
// for readability.
func (e *Engine) Inline(expected, actual string) []Segment {
	diffs := e.dmp.DiffMain(expected, actual, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)
	out := make([]Segment, 0, len(diffs))
	for _, d := range diffs {
		out = append(out, Segment{Op: op(d.Type), Text: d.Text})
	}
	return out
}

// Lines diffs two texts line by line and keeps changed lines plus up to
// context unchanged lines around each change.
func (e *Engine) Lines(before, after string, context int) []Line {
	a, b, lines := e.dmp.DiffLinesToChars(before, after)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCharsToLines(diffs, lines)

	var all []Line
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if text == "" && d.Text == "" {
			continue
		}
		for _, l := range strings.Split(text, "\n") {
			all = append(all, Line{Op: op(d.Type), Content: l})
		}
	}

	keep := make([]bool, len(all))
	for i, l := range all {
		if l.Op == Equal {
			continue
		}
		for j := i - context; j <= i+context; j++ {
			if j >= 0 && j < len(all) {
				keep[j] = true
			}
		}
	}
	var out []Line
	for i, l := range all {
		if keep[i] {
			out = append(out, l)
		}
	}
	return out
}

// Changed reports whether any segment is not Equal.
func Changed(segs []Segment) bool {
	for _, s := range segs {
		if s.Op != Equal {
			return true
		}
	}
	return false
}

func op(t diffmatchpatch.Operation) Op {
	switch t {
	case diffmatchpatch.DiffDelete:
		return Delete
	case diffmatchpatch.DiffInsert:
		return Insert
	}
	return Equal
}
