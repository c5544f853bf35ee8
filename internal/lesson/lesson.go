// Package lesson defines the data model shared by the loader, the engines,
// the oracle matcher and the report: lesson units, their statements and
// the expected-output annotations attached to them.
//
// Units are immutable once loaded. Accessors hand out copies so that a
// run can never alter what the loader produced.
package lesson

import (
	"path/filepath"
	"strings"
	"time"
)

// Language identifies the engine a unit is evaluated with.
type Language string

const (
	LanguageJS Language = "js"
	LanguageTS Language = "ts"
	LanguageGo Language = "go"
)

// LanguageForPath maps a file extension to a lesson language.
// The second return value is false for files the loader should ignore.
func LanguageForPath(path string) (Language, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs", ".cjs":
		return LanguageJS, true
	case ".ts", ".mts":
		return LanguageTS, true
	case ".go":
		return LanguageGo, true
	}
	return "", false
}

// StatementKind is a coarse classification of a top-level statement.
type StatementKind string

const (
	KindExpression  StatementKind = "expression"
	KindDeclaration StatementKind = "declaration"
	KindFunction    StatementKind = "function"
	KindOther       StatementKind = "other"
)

// Annotation is an expected-output oracle extracted from a trailing
// comment.
type Annotation struct {
	Line     int    `json:"line" yaml:"line"`
	Raw      string `json:"raw" yaml:"raw"`
	Expected string `json:"expected" yaml:"expected"`
	Explicit bool   `json:"explicit,omitempty" yaml:"explicit,omitempty"`
}

// CallSite is an output-producing call (console.log, fmt.Println, ...).
// EndLine is the line an annotation for the call must sit on.
type CallSite struct {
	Callee  string `json:"callee" yaml:"callee"`
	Line    int    `json:"line" yaml:"line"`
	EndLine int    `json:"end_line" yaml:"end_line"`
}

// Statement is one top-level statement of a unit.
type Statement struct {
	Index   int           `json:"index" yaml:"index"`
	Text    string        `json:"text" yaml:"text"`
	Line    int           `json:"line" yaml:"line"`
	EndLine int           `json:"end_line" yaml:"end_line"`
	Kind    StatementKind `json:"kind" yaml:"kind"`

	// Declares lists the bindings the statement creates.
	Declares []string `json:"declares,omitempty" yaml:"declares,omitempty"`
	// References lists identifiers read by the statement that it does not
	// declare itself.
	References []string `json:"references,omitempty" yaml:"references,omitempty"`
	// Hoisted is set for function declarations, which run before the
	// first statement of the unit.
	Hoisted bool `json:"hoisted,omitempty" yaml:"hoisted,omitempty"`
	// VarNames are names declared with `var`; they exist (as undefined)
	// from the start of the unit.
	VarNames []string `json:"var_names,omitempty" yaml:"var_names,omitempty"`

	Annotations []Annotation `json:"annotations,omitempty" yaml:"annotations,omitempty"`
	Calls       []CallSite   `json:"calls,omitempty" yaml:"calls,omitempty"`

	// EmitsValue marks an annotated expression statement without output
	// calls: its completion value is reported as an output event.
	EmitsValue bool `json:"emits_value,omitempty" yaml:"emits_value,omitempty"`
}

// AnnotationAt returns the annotation on the given line, if any.
func (s *Statement) AnnotationAt(line int) (Annotation, bool) {
	for _, a := range s.Annotations {
		if a.Line == line {
			return a, true
		}
	}
	return Annotation{}, false
}

// CallStartingAt returns the output call whose first line is line.
func (s *Statement) CallStartingAt(line int) (CallSite, bool) {
	for _, c := range s.Calls {
		if c.Line == line {
			return c, true
		}
	}
	return CallSite{}, false
}

// Directives are per-unit settings written as `// @lesson <word> [arg]`.
type Directives struct {
	Nondeterministic bool          `json:"nondeterministic,omitempty" yaml:"nondeterministic,omitempty"`
	Skip             bool          `json:"skip,omitempty" yaml:"skip,omitempty"`
	Strict           bool          `json:"strict,omitempty" yaml:"strict,omitempty"`
	Timeout          time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Unit is one self-contained labeled block of lesson statements.
type Unit struct {
	ID         string     `json:"id" yaml:"id"`
	Title      string     `json:"title" yaml:"title"`
	Source     string     `json:"source" yaml:"source"`
	Index      int        `json:"index" yaml:"index"`
	Language   Language   `json:"language" yaml:"language"`
	Line       int        `json:"line" yaml:"line"`
	Directives Directives `json:"directives" yaml:"directives"`

	statements []Statement
}

// NewUnit builds a unit that owns a private copy of stmts.
func NewUnit(id, title, source string, lang Language, line int, dirs Directives, stmts []Statement) *Unit {
	u := &Unit{
		ID:         id,
		Title:      title,
		Source:     source,
		Language:   lang,
		Line:       line,
		Directives: dirs,
		statements: make([]Statement, len(stmts)),
	}
	for i := range stmts {
		u.statements[i] = cloneStatement(stmts[i])
		u.statements[i].Index = i
	}
	return u
}

// Statements returns a deep copy of the unit's statements.
func (u *Unit) Statements() []Statement {
	out := make([]Statement, len(u.statements))
	for i := range u.statements {
		out[i] = cloneStatement(u.statements[i])
	}
	return out
}

// Statement returns a copy of the i-th statement.
func (u *Unit) Statement(i int) (Statement, bool) {
	if i < 0 || i >= len(u.statements) {
		return Statement{}, false
	}
	return cloneStatement(u.statements[i]), true
}

// Len returns the number of statements.
func (u *Unit) Len() int { return len(u.statements) }

// AnnotationCount returns the number of oracles in the unit.
func (u *Unit) AnnotationCount() int {
	n := 0
	for i := range u.statements {
		n += len(u.statements[i].Annotations)
	}
	return n
}

func cloneStatement(s Statement) Statement {
	s.Declares = append([]string(nil), s.Declares...)
	s.References = append([]string(nil), s.References...)
	s.VarNames = append([]string(nil), s.VarNames...)
	s.Annotations = append([]Annotation(nil), s.Annotations...)
	s.Calls = append([]CallSite(nil), s.Calls...)
	return s
}
