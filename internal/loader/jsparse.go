package loader

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"lessonrun/internal/lesson"
)

var consoleOutput = map[string]bool{
	"log": true, "info": true, "warn": true, "error": true,
	"debug": true, "dir": true, "trace": true,
}

// newTreeSitterParser parses JS or TS segments. A fresh sitter.Parser
// is created per segment since parsers are not safe for concurrent use.
func newTreeSitterParser(lang lesson.Language) statementParser {
	grammar := javascript.GetLanguage()
	if lang == lesson.LanguageTS {
		grammar = typescript.GetLanguage()
	}
	return func(f *sourceFile, seg segment) ([]lesson.Statement, []comment, error) {
		body := f.body(seg)
		parser := sitter.NewParser()
		parser.SetLanguage(grammar)
		tree, err := parser.ParseCtx(context.Background(), nil, body)
		if err != nil {
			return nil, nil, fmt.Errorf("tree-sitter: %w", err)
		}
		defer tree.Close()

		w := &jsWalker{file: f, body: body, lineOffset: seg.start}
		root := tree.RootNode()
		w.collectComments(root)

		var stmts []lesson.Statement
		for i := 0; i < int(root.NamedChildCount()); i++ {
			child := root.NamedChild(i)
			if child.Type() == "comment" {
				continue
			}
			stmts = append(stmts, w.statement(child))
		}
		return stmts, w.comments, nil
	}
}

type jsWalker struct {
	file       *sourceFile
	body       []byte
	lineOffset int
	comments   []comment
}

func (w *jsWalker) line(p sitter.Point) int { return int(p.Row) + w.lineOffset + 1 }

func (w *jsWalker) text(n *sitter.Node) string { return n.Content(w.body) }

// lastToken finds the last non-comment leaf of n. A statement ended by
// automatic semicolon insertion otherwise spans its trailing comment.
func lastToken(n *sitter.Node) *sitter.Node {
	for {
		var next *sitter.Node
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if c := n.Child(i); c.Type() != "comment" && c.EndByte() > c.StartByte() {
				next = c
				break
			}
		}
		if next == nil {
			return n
		}
		n = next
	}
}

func (w *jsWalker) collectComments(n *sitter.Node) {
	if n.Type() == "comment" {
		text := w.text(n)
		if strings.HasPrefix(text, "//") {
			line := w.line(n.StartPoint())
			w.comments = append(w.comments, comment{
				Line:     line,
				Text:     text,
				Trailing: w.file.codeBefore(line, int(n.StartPoint().Column)),
			})
		}
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		w.collectComments(n.Child(i))
	}
}

func (w *jsWalker) statement(n *sitter.Node) lesson.Statement {
	last := lastToken(n)
	st := lesson.Statement{
		Text:    string(w.body[n.StartByte():last.EndByte()]),
		Line:    w.line(n.StartPoint()),
		EndLine: w.line(last.EndPoint()),
	}
	switch n.Type() {
	case "expression_statement":
		st.Kind = lesson.KindExpression
	case "lexical_declaration", "variable_declaration":
		st.Kind = lesson.KindDeclaration
		for i := 0; i < int(n.NamedChildCount()); i++ {
			d := n.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			if name := d.ChildByFieldName("name"); name != nil {
				st.Declares = append(st.Declares, w.patternNames(name)...)
			}
		}
		if n.Type() == "variable_declaration" {
			st.VarNames = append(st.VarNames, st.Declares...)
		}
	case "function_declaration", "generator_function_declaration":
		st.Kind = lesson.KindFunction
		st.Hoisted = true
		st.Declares = w.fieldName(n)
	case "class_declaration", "abstract_class_declaration", "enum_declaration":
		st.Kind = lesson.KindDeclaration
		st.Declares = w.fieldName(n)
	case "interface_declaration", "type_alias_declaration":
		st.Kind = lesson.KindDeclaration
	default:
		st.Kind = lesson.KindOther
	}

	locals := make(map[string]bool)
	for _, d := range st.Declares {
		locals[d] = true
	}
	w.bindings(n, locals)
	seen := make(map[string]bool)
	w.walk(n, func(c *sitter.Node) {
		switch c.Type() {
		case "identifier", "shorthand_property_identifier":
			name := w.text(c)
			if !locals[name] && !seen[name] {
				seen[name] = true
				st.References = append(st.References, name)
			}
		case "call_expression":
			if callee, ok := w.outputCallee(c); ok {
				st.Calls = append(st.Calls, lesson.CallSite{
					Callee:  callee,
					Line:    w.line(c.StartPoint()),
					EndLine: w.line(c.EndPoint()),
				})
			}
		}
	})
	return st
}

func (w *jsWalker) fieldName(n *sitter.Node) []string {
	if name := n.ChildByFieldName("name"); name != nil {
		return []string{w.text(name)}
	}
	return nil
}

func (w *jsWalker) walk(n *sitter.Node, visit func(*sitter.Node)) {
	visit(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), visit)
	}
}

// patternNames lists the identifiers a binding pattern binds, skipping
// default-value expressions and renamed keys.
func (w *jsWalker) patternNames(n *sitter.Node) []string {
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		return []string{w.text(n)}
	case "assignment_pattern", "object_assignment_pattern":
		if left := n.ChildByFieldName("left"); left != nil {
			return w.patternNames(left)
		}
	case "pair_pattern":
		if v := n.ChildByFieldName("value"); v != nil {
			return w.patternNames(v)
		}
	case "required_parameter", "optional_parameter":
		if p := n.ChildByFieldName("pattern"); p != nil {
			return w.patternNames(p)
		}
	case "object_pattern", "array_pattern", "rest_pattern", "formal_parameters":
		var out []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			out = append(out, w.patternNames(n.NamedChild(i))...)
		}
		return out
	}
	return nil
}

// bindings adds the names bound anywhere inside n (parameters, nested
// declarations, catch parameters) so they are not taken as references to
// top-level bindings.
func (w *jsWalker) bindings(n *sitter.Node, into map[string]bool) {
	w.walk(n, func(c *sitter.Node) {
		var names []string
		switch c.Type() {
		case "variable_declarator":
			if name := c.ChildByFieldName("name"); name != nil {
				names = w.patternNames(name)
			}
		case "formal_parameters":
			names = w.patternNames(c)
		case "arrow_function":
			if p := c.ChildByFieldName("parameter"); p != nil {
				names = w.patternNames(p)
			}
		case "catch_clause":
			if p := c.ChildByFieldName("parameter"); p != nil {
				names = w.patternNames(p)
			}
		case "function_declaration", "function_expression", "function",
			"generator_function_declaration", "class_declaration", "class":
			names = w.fieldName(c)
		}
		for _, name := range names {
			into[name] = true
		}
	})
}

func (w *jsWalker) outputCallee(call *sitter.Node) (string, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "member_expression" {
		return "", false
	}
	obj := fn.ChildByFieldName("object")
	prop := fn.ChildByFieldName("property")
	if obj == nil || prop == nil || w.text(obj) != "console" {
		return "", false
	}
	name := w.text(prop)
	if !consoleOutput[name] {
		return "", false
	}
	return "console." + name, true
}
