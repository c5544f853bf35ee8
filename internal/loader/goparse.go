package loader

import (
	"go/scanner"
	"go/token"
	"path"
	"strconv"
	"strings"

	"lessonrun/internal/lesson"
)

var fmtOutput = map[string]bool{"Print": true, "Println": true, "Printf": true}

type goTok struct {
	off  int
	end  int
	tok  token.Token
	lit  string
	line int
}

// parseGoStatements splits a Go lesson segment REPL-style: every depth-0
// semicolon, including the ones the scanner inserts at line ends, closes
// a statement.
func parseGoStatements(f *sourceFile, seg segment) ([]lesson.Statement, []comment, error) {
	body := f.body(seg)
	fset := token.NewFileSet()
	file := fset.AddFile("lesson.go", -1, len(body))

	var s scanner.Scanner
	s.Init(file, body, nil, scanner.ScanComments)

	var comments []comment
	var stmts []lesson.Statement
	var cur []goTok
	depth := 0
	lastCodeLine := 0
	// header is set while a for/if/switch clause runs up to its body,
	// where `;` separates clauses instead of statements.
	header := false

	flush := func() {
		if len(cur) == 0 {
			return
		}
		stmts = append(stmts, goStatement(body, cur))
		cur = nil
	}

	for {
		pos, tok, lit := s.Scan()
		if tok == token.EOF {
			break
		}
		p := fset.Position(pos)
		line := p.Line + seg.start
		off := file.Offset(pos)

		switch tok {
		case token.COMMENT:
			if strings.HasPrefix(lit, "//") {
				comments = append(comments, comment{Line: line, Text: lit, Trailing: lastCodeLine == line})
			}
			continue
		case token.SEMICOLON:
			if depth == 0 && !(header && lit == ";") {
				flush()
				header = false
				continue
			}
		case token.FOR, token.IF, token.SWITCH, token.SELECT:
			if len(cur) == 0 {
				header = true
			}
		case token.LBRACE:
			if depth == 0 {
				header = false
			}
			depth++
		case token.LPAREN, token.LBRACK:
			depth++
		case token.RPAREN, token.RBRACK, token.RBRACE:
			if depth > 0 {
				depth--
			}
		}

		end := off + len(lit)
		if lit == "" {
			end = off + len(tok.String())
		}
		if end > len(body) {
			end = len(body)
		}
		cur = append(cur, goTok{off: off, end: end, tok: tok, lit: lit, line: line})
		lastCodeLine = line
	}
	flush()
	// Scanner errors (an unterminated string, say) surface as compile
	// faults when the statement is evaluated.
	return stmts, comments, nil
}

func goStatement(body []byte, toks []goTok) lesson.Statement {
	first, last := toks[0], toks[len(toks)-1]
	st := lesson.Statement{
		Text:    string(body[first.off:last.end]),
		Line:    first.line,
		EndLine: last.line,
	}

	switch first.tok {
	case token.VAR, token.CONST:
		st.Kind = lesson.KindDeclaration
		st.Declares = declNames(toks[1:])
	case token.TYPE:
		st.Kind = lesson.KindDeclaration
		st.Hoisted = true
		st.Declares = declNames(toks[1:])
	case token.FUNC:
		st.Kind = lesson.KindFunction
		if len(toks) > 1 && toks[1].tok == token.IDENT {
			st.Hoisted = true
			st.Declares = []string{toks[1].lit}
		}
	case token.IMPORT:
		st.Kind = lesson.KindOther
		st.Declares = importNames(toks[1:])
	case token.IF, token.FOR, token.SWITCH, token.SELECT,
		token.GO, token.DEFER, token.RETURN, token.PACKAGE:
		st.Kind = lesson.KindOther
	default:
		st.Kind = lesson.KindExpression
		depth := 0
		for i, t := range toks {
			switch t.tok {
			case token.LPAREN, token.LBRACK, token.LBRACE:
				depth++
			case token.RPAREN, token.RBRACK, token.RBRACE:
				depth--
			case token.DEFINE:
				if depth == 0 {
					st.Kind = lesson.KindDeclaration
					st.Declares = identList(toks[:i])
				}
			case token.ASSIGN, token.INC, token.DEC, token.ADD_ASSIGN, token.SUB_ASSIGN,
				token.MUL_ASSIGN, token.QUO_ASSIGN, token.ARROW:
				if depth == 0 && st.Kind == lesson.KindExpression {
					st.Kind = lesson.KindOther
				}
			}
		}
	}

	declared := make(map[string]bool)
	for _, d := range st.Declares {
		declared[d] = true
	}
	seen := make(map[string]bool)
	for i, t := range toks {
		if t.tok != token.IDENT {
			continue
		}
		if i > 0 && toks[i-1].tok == token.PERIOD {
			continue
		}
		if !declared[t.lit] && !seen[t.lit] && t.lit != "_" {
			seen[t.lit] = true
			st.References = append(st.References, t.lit)
		}
		if t.lit == "fmt" && i+3 < len(toks) && toks[i+1].tok == token.PERIOD &&
			fmtOutput[toks[i+2].lit] && toks[i+3].tok == token.LPAREN {
			st.Calls = append(st.Calls, lesson.CallSite{
				Callee:  "fmt." + toks[i+2].lit,
				Line:    t.line,
				EndLine: closingLine(toks[i+3:]),
			})
		}
	}
	return st
}

// declNames reads the names after var/const/type, including grouped
// declarations where each entry starts a line inside the parens.
func declNames(toks []goTok) []string {
	if len(toks) == 0 {
		return nil
	}
	if toks[0].tok != token.LPAREN {
		return identList(toks)
	}
	var out []string
	depth := 0
	start := true
	for _, t := range toks {
		switch t.tok {
		case token.LPAREN, token.LBRACK, token.LBRACE:
			depth++
			continue
		case token.RPAREN, token.RBRACK, token.RBRACE:
			depth--
			continue
		}
		if depth != 1 {
			continue
		}
		if start && t.tok == token.IDENT {
			out = append(out, t.lit)
		}
		start = false
		if t.tok == token.COMMA {
			start = true
		}
		if t.tok == token.SEMICOLON {
			start = true
		}
	}
	return out
}

// importNames returns the package names an import binds: the alias when
// one is given, otherwise the last element of the path.
func importNames(toks []goTok) []string {
	var out []string
	for i, t := range toks {
		if t.tok != token.STRING {
			continue
		}
		p, err := strconv.Unquote(t.lit)
		if err != nil {
			continue
		}
		name := path.Base(p)
		if i > 0 {
			switch prev := toks[i-1]; {
			case prev.tok == token.IDENT:
				name = prev.lit
			case prev.tok == token.PERIOD:
				continue
			}
		}
		if name != "_" {
			out = append(out, name)
		}
	}
	return out
}

// identList reads `a, b, c` from the front of toks.
func identList(toks []goTok) []string {
	var out []string
	for i, t := range toks {
		if t.tok == token.IDENT && (i == 0 || toks[i-1].tok == token.COMMA) {
			if t.lit != "_" {
				out = append(out, t.lit)
			}
			continue
		}
		if t.tok != token.COMMA {
			break
		}
	}
	return out
}

func closingLine(toks []goTok) int {
	depth := 0
	for _, t := range toks {
		switch t.tok {
		case token.LPAREN:
			depth++
		case token.RPAREN:
			depth--
			if depth == 0 {
				return t.line
			}
		}
	}
	return toks[len(toks)-1].line
}
