// Package loader turns lesson source files into lesson units.
//
// A file is split into units at header lines (by default `///-- Title`).
// Each unit's top-level statements are parsed with tree-sitter for
// JavaScript and TypeScript, and with go/scanner for Go lessons.
//
// Expected output is written as a comment trailing the code on the same
// line:
//
//	2 + 2            // 4
//	console.log(xs)  // [1, 2, 3]
//	say("hi")        //=> hi
//
// `//=> text` is always checked. A plain `// text` is only checked when
// the text (cut at a further `// note`) reads as a literal: a number,
// true/false/null/undefined/NaN/Infinity, one quoted string, or a single
// bracketed structure such as `{a: 1}`, `Person {name: "Ada"}` or
// `Map(1) {"k" => 1}`. Groups opening with `[!` are notes. Any other
// comment is prose and checks nothing.
//
// A comment line `// @lesson <word> [arg]` inside a unit sets a
// directive: nondeterministic, skip, strict, or timeout <duration>.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"lessonrun/internal/lesson"
	"lessonrun/internal/logging"
)

// DefaultHeaderPattern matches `///-- Title ****` lines.
const DefaultHeaderPattern = `^\s*///--\s*(.*?)[\s*]*$`

// ErrMalformedUnit is wrapped by every LoadProblem.
var ErrMalformedUnit = errors.New("malformed unit")

// Options configures loading.
type Options struct {
	// HeaderPattern starts a unit; its first capture group is the title.
	HeaderPattern string
	// Extensions restricts which files are collected. Empty means every
	// extension lesson.LanguageForPath knows.
	Extensions []string
	// Strict requires every output call to carry an annotation.
	Strict bool
}

// LoadProblem describes a unit that could not be loaded. Other units of
// the same file are unaffected.
type LoadProblem struct {
	File    string `json:"file" yaml:"file"`
	Line    int    `json:"line" yaml:"line"`
	UnitID  string `json:"unit_id" yaml:"unit_id"`
	Unit    string `json:"unit" yaml:"unit"`
	Callee  string `json:"callee,omitempty" yaml:"callee,omitempty"`
	Message string `json:"message" yaml:"message"`
}

func (p *LoadProblem) Error() string {
	return fmt.Sprintf("%s: %s:%d: %s", ErrMalformedUnit, p.File, p.Line, p.Message)
}

func (p *LoadProblem) Unwrap() error { return ErrMalformedUnit }

// Suite is everything a load produced, in load order.
type Suite struct {
	Units    []*lesson.Unit `json:"units" yaml:"units"`
	Problems []*LoadProblem `json:"problems,omitempty" yaml:"problems,omitempty"`
}

func (s *Suite) append(o *Suite) {
	for _, u := range o.Units {
		u.Index = len(s.Units)
		s.Units = append(s.Units, u)
	}
	s.Problems = append(s.Problems, o.Problems...)
}

// Err returns the first problem, or nil.
func (s *Suite) Err() error {
	if len(s.Problems) == 0 {
		return nil
	}
	return s.Problems[0]
}

// Find returns the units matching name: an exact ID match wins, then a
// case-insensitive title match.
func (s *Suite) Find(name string) []*lesson.Unit {
	for _, u := range s.Units {
		if u.ID == name {
			return []*lesson.Unit{u}
		}
	}
	var out []*lesson.Unit
	for _, u := range s.Units {
		if strings.EqualFold(u.Title, name) {
			out = append(out, u)
		}
	}
	return out
}

type source struct {
	path string
	name string
}

// Load collects lesson files under paths and parses them. An unreadable
// input aborts the whole load; malformed units are reported in
// Suite.Problems.
func Load(ctx context.Context, paths []string, opts Options) (*Suite, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	timer := logging.StartTimer(logging.CategoryLoader, "load")
	defer timer.Stop()

	var sources []source
	seen := make(map[string]bool)
	for _, p := range paths {
		found, err := collect(p, opts)
		if err != nil {
			return nil, err
		}
		for _, s := range found {
			abs, err := filepath.Abs(s.path)
			if err != nil {
				abs = s.path
			}
			if seen[abs] {
				continue
			}
			seen[abs] = true
			sources = append(sources, s)
		}
	}

	suite := &Suite{}
	for _, s := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("read lesson %s: %w", s.path, err)
		}
		part, err := LoadFile(s.name, src, opts)
		if err != nil {
			return nil, err
		}
		suite.append(part)
	}
	logging.Loader("loaded %d units from %d files (%d problems)", len(suite.Units), len(sources), len(suite.Problems))
	return suite, nil
}

func collect(root string, opts Options) ([]source, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("read lesson input %s: %w", root, err)
	}
	if !info.IsDir() {
		if _, ok := languageFor(root, opts); !ok {
			return nil, fmt.Errorf("read lesson input %s: not a lesson file", root)
		}
		return []source{{path: root, name: filepath.ToSlash(filepath.Clean(root))}}, nil
	}

	var out []source
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := languageFor(path, opts); !ok {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, source{path: path, name: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk lesson dir %s: %w", root, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func languageFor(path string, opts Options) (lesson.Language, bool) {
	lang, ok := lesson.LanguageForPath(path)
	if !ok || len(opts.Extensions) == 0 {
		return lang, ok
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range opts.Extensions {
		if strings.EqualFold(strings.TrimSpace(e), ext) {
			return lang, true
		}
	}
	return "", false
}

// LoadFile parses one lesson file. name is the path used in unit IDs.
func LoadFile(name string, src []byte, opts Options) (*Suite, error) {
	lang, ok := lesson.LanguageForPath(name)
	if !ok {
		return nil, fmt.Errorf("lesson %s: unknown language", name)
	}
	return Parse(name, lang, src, opts)
}

// Parse splits src into units and parses each one.
func Parse(name string, lang lesson.Language, src []byte, opts Options) (*Suite, error) {
	pattern := opts.HeaderPattern
	if pattern == "" {
		pattern = DefaultHeaderPattern
	}
	header, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile header pattern: %w", err)
	}

	var parse statementParser
	switch lang {
	case lesson.LanguageJS, lesson.LanguageTS:
		parse = newTreeSitterParser(lang)
	case lesson.LanguageGo:
		parse = parseGoStatements
	default:
		return nil, fmt.Errorf("lesson %s: unsupported language %q", name, lang)
	}

	file := newSourceFile(src)
	suite := &Suite{}
	ids := make(map[string]int)
	for _, seg := range file.segments(header, filepath.Base(name)) {
		id := name + "#" + seg.title
		if n := ids[id]; n > 0 {
			id = fmt.Sprintf("%s~%d", id, n+1)
		}
		ids[name+"#"+seg.title]++

		stmts, comments, err := parse(file, seg)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", id, err)
		}
		if seg.preamble && len(stmts) == 0 {
			continue
		}
		attachComments(stmts, comments)

		dirs, problem := file.directives(seg)
		if problem == nil && (opts.Strict || dirs.Strict) {
			dirs.Strict = true
			problem = checkStrict(stmts)
		}
		if problem != nil {
			problem.File, problem.UnitID, problem.Unit = name, id, seg.title
			logging.LoaderWarn("%v", problem)
			suite.Problems = append(suite.Problems, problem)
			continue
		}

		u := lesson.NewUnit(id, seg.title, name, lang, seg.headerLine, dirs, stmts)
		u.Index = len(suite.Units)
		suite.Units = append(suite.Units, u)
		logging.LoaderDebug("unit %s: %d statements, %d annotations", id, u.Len(), u.AnnotationCount())
	}
	return suite, nil
}

func checkStrict(stmts []lesson.Statement) *LoadProblem {
	for _, st := range stmts {
		for _, c := range st.Calls {
			if _, ok := st.AnnotationAt(c.EndLine); !ok {
				return &LoadProblem{
					Line:    c.Line,
					Callee:  c.Callee,
					Message: fmt.Sprintf("output call %s has no expected-output annotation", c.Callee),
				}
			}
		}
	}
	return nil
}
