package cfg

import (
	"context"
	"fmt"
	"strings"

	"github.com/l3aro/c-testforge/pkg/ast"
)

// TextualBuilder parses a body with a recursive-descent pass over its
// tokens. It needs no syntax tree, so it works on code that only compiles
// with an unknown set of macros.
type TextualBuilder struct{}

// NewTextualBuilder creates a TextualBuilder.
func NewTextualBuilder() *TextualBuilder {
	return &TextualBuilder{}
}

// Parse implements Builder.
func (TextualBuilder) Parse(ctx context.Context, body Body) (*Stmt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if body.Empty() {
		return &Stmt{Kind: StmtBlock}, nil
	}
	var toks []ast.Token
	for _, t := range body.Tokens() {
		if t.Kind != ast.TokenDirective {
			toks = append(toks, t)
		}
	}
	p := &parser{toks: toks, lines: body.Lines, first: body.FirstLine}
	if !p.peek("{") {
		return nil, p.errorf("body does not start with {")
	}
	return p.statement()
}

type parser struct {
	toks  []ast.Token
	pos   int
	lines []string
	first int
}

func (p *parser) errorf(format string, args ...any) error {
	line := p.first
	if p.pos < len(p.toks) {
		line = p.toks[p.pos].Line
	} else if len(p.toks) > 0 {
		line = p.toks[len(p.toks)-1].Line
	}
	return fmt.Errorf("%w: line %d: %s", ErrMalformedBody, line, fmt.Sprintf(format, args...))
}

func (p *parser) done() bool { return p.pos >= len(p.toks) }

func (p *parser) peek(text string) bool {
	return !p.done() && p.toks[p.pos].Is(text)
}

func (p *parser) expect(text string) (ast.Token, error) {
	if !p.peek(text) {
		if p.done() {
			return ast.Token{}, p.errorf("expected %q, found end of body", text)
		}
		return ast.Token{}, p.errorf("expected %q, found %q", text, p.toks[p.pos].Text)
	}
	t := p.toks[p.pos]
	p.pos++
	return t, nil
}

// text renders toks[from:to] from the source when they share a line and by
// joining them otherwise.
func (p *parser) text(from, to int) string {
	if from >= to {
		return ""
	}
	a, b := p.toks[from], p.toks[to-1]
	if a.Line == b.Line {
		if idx := a.Line - p.first; idx >= 0 && idx < len(p.lines) {
			line := p.lines[idx]
			start, end := a.Column-1, b.Column-1+len(b.Text)
			if start >= 0 && end <= len(line) && start <= end {
				return strings.TrimSpace(line[start:end])
			}
		}
	}
	parts := make([]string, 0, to-from)
	for _, t := range p.toks[from:to] {
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, " ")
}

// until advances to the first top-level token spelled stop and returns the
// index it started from. The stop token is not consumed.
func (p *parser) until(stop ...string) (int, error) {
	start := p.pos
	depth := 0
	for ; !p.done(); p.pos++ {
		t := p.toks[p.pos]
		if depth == 0 {
			for _, s := range stop {
				if t.Is(s) {
					return start, nil
				}
			}
		}
		switch {
		case t.Is("("), t.Is("["), t.Is("{"):
			depth++
		case t.Is(")"), t.Is("]"), t.Is("}"):
			if depth == 0 {
				return start, p.errorf("unbalanced %q", t.Text)
			}
			depth--
		}
	}
	return start, p.errorf("expected %s before end of body", strings.Join(stop, " or "))
}

// paren consumes a parenthesized expression and returns its inner text.
func (p *parser) paren() (string, int, error) {
	open, err := p.expect("(")
	if err != nil {
		return "", 0, err
	}
	start, err := p.until(")")
	if err != nil {
		return "", 0, err
	}
	cond := p.text(start, p.pos)
	p.pos++
	return cond, open.Line, nil
}

func (p *parser) statement() (*Stmt, error) {
	if p.done() {
		return nil, p.errorf("expected statement, found end of body")
	}
	t := p.toks[p.pos]
	switch {
	case t.Is("{"):
		return p.block()
	case t.Is(";"):
		p.pos++
		return &Stmt{Kind: StmtBlock, Line: t.Line, EndLine: t.Line}, nil
	case t.Is("if"):
		return p.ifStmt()
	case t.Is("while"):
		p.pos++
		cond, line, err := p.paren()
		if err != nil {
			return nil, err
		}
		body, err := p.statement()
		if err != nil {
			return nil, err
		}
		return &Stmt{Kind: StmtWhile, Line: t.Line, EndLine: body.EndLine, Cond: cond, CondLine: line, Body: body}, nil
	case t.Is("for"):
		return p.forStmt()
	case t.Is("do"):
		return p.doStmt()
	case t.Is("switch"):
		p.pos++
		cond, line, err := p.paren()
		if err != nil {
			return nil, err
		}
		body, err := p.statement()
		if err != nil {
			return nil, err
		}
		return &Stmt{Kind: StmtSwitch, Line: t.Line, EndLine: body.EndLine, Cond: cond, CondLine: line, Body: body}, nil
	case t.Is("case"), t.Is("default"):
		start := p.pos
		p.pos++
		if _, err := p.until(":"); err != nil {
			return nil, err
		}
		p.pos++
		label := strings.TrimSpace(strings.TrimSuffix(p.text(start+1, p.pos), ":"))
		if t.Is("default") {
			label = "default"
		}
		return &Stmt{Kind: StmtCase, Line: t.Line, EndLine: p.toks[p.pos-1].Line, Text: p.text(start, p.pos), Cond: label}, nil
	case t.Is("return"), t.Is("break"), t.Is("continue"):
		start, err := p.until(";")
		if err != nil {
			return nil, err
		}
		p.pos++
		kind := map[string]StmtKind{"return": StmtReturn, "break": StmtBreak, "continue": StmtContinue}[t.Text]
		return &Stmt{Kind: kind, Line: t.Line, EndLine: p.toks[p.pos-1].Line, Text: p.text(start, p.pos)}, nil
	case t.Is("else"), t.Is("}"):
		return nil, p.errorf("unexpected %q", t.Text)
	case t.Kind == ast.TokenIdentifier && p.pos+1 < len(p.toks) && p.toks[p.pos+1].Is(":"):
		// label
		p.pos += 2
		return &Stmt{Kind: StmtSimple, Line: t.Line, EndLine: t.Line, Text: t.Text + ":"}, nil
	}
	start, err := p.until(";")
	if err != nil {
		return nil, err
	}
	p.pos++
	return &Stmt{Kind: StmtSimple, Line: t.Line, EndLine: p.toks[p.pos-1].Line, Text: p.text(start, p.pos)}, nil
}

func (p *parser) block() (*Stmt, error) {
	open, err := p.expect("{")
	if err != nil {
		return nil, err
	}
	b := &Stmt{Kind: StmtBlock, Line: open.Line}
	for !p.peek("}") {
		if p.done() {
			return nil, p.errorf("unterminated block opened at line %d", open.Line)
		}
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		b.Children = append(b.Children, s)
	}
	b.EndLine = p.toks[p.pos].Line
	p.pos++
	return b, nil
}

func (p *parser) ifStmt() (*Stmt, error) {
	t := p.toks[p.pos]
	p.pos++
	cond, line, err := p.paren()
	if err != nil {
		return nil, err
	}
	then, err := p.statement()
	if err != nil {
		return nil, err
	}
	s := &Stmt{Kind: StmtIf, Line: t.Line, EndLine: then.EndLine, Cond: cond, CondLine: line, Then: then}
	if p.peek("else") {
		p.pos++
		if s.Else, err = p.statement(); err != nil {
			return nil, err
		}
		s.EndLine = s.Else.EndLine
	}
	return s, nil
}

func (p *parser) forStmt() (*Stmt, error) {
	t := p.toks[p.pos]
	p.pos++
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	var clauses [3]string
	for i, stop := range []string{";", ";", ")"} {
		start, err := p.until(stop)
		if err != nil {
			return nil, err
		}
		clauses[i] = p.text(start, p.pos)
		p.pos++
	}
	body, err := p.statement()
	if err != nil {
		return nil, err
	}
	return &Stmt{
		Kind: StmtFor, Line: t.Line, EndLine: body.EndLine, CondLine: t.Line,
		Init: clauses[0], Cond: clauses[1], Update: clauses[2], Body: body,
	}, nil
}

func (p *parser) doStmt() (*Stmt, error) {
	t := p.toks[p.pos]
	p.pos++
	body, err := p.statement()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("while"); err != nil {
		return nil, err
	}
	cond, line, err := p.paren()
	if err != nil {
		return nil, err
	}
	end, err := p.expect(";")
	if err != nil {
		return nil, err
	}
	return &Stmt{Kind: StmtDoWhile, Line: t.Line, EndLine: end.Line, Cond: cond, CondLine: line, Body: body}, nil
}
