package cfg

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/c-testforge/pkg/ast"
)

// bodyPrefix turns an isolated body into a parseable translation unit. It
// shares the first line with the body so rows map to lines directly.
const bodyPrefix = "void body(void) "

// SyntaxBuilder parses a body with the tree-sitter C grammar. It is
// stricter than TextualBuilder: any syntax error fails the parse.
type SyntaxBuilder struct{}

// NewSyntaxBuilder creates a SyntaxBuilder.
func NewSyntaxBuilder() *SyntaxBuilder {
	return &SyntaxBuilder{}
}

// Parse implements Builder.
func (SyntaxBuilder) Parse(ctx context.Context, body Body) (*Stmt, error) {
	if body.Empty() {
		return &Stmt{Kind: StmtBlock}, nil
	}
	src := []byte(bodyPrefix + strings.Join(body.Lines, "\n"))
	tree, err := ast.ParseTree(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("parsing body: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%w: syntax error near line %d", ErrMalformedBody, body.FirstLine+firstError(root))
	}
	fn := findChild(root, "function_definition")
	if fn == nil {
		return nil, fmt.Errorf("%w: no function definition", ErrMalformedBody)
	}
	block := fn.ChildByFieldName("body")
	if block == nil {
		return nil, fmt.Errorf("%w: no body", ErrMalformedBody)
	}

	c := &converter{content: src, first: body.FirstLine}
	return c.block(block), nil
}

type converter struct {
	content []byte
	first   int
}

func (c *converter) text(n *sitter.Node) string {
	return strings.TrimSpace(ast.NodeText(n, c.content))
}

func (c *converter) line(n *sitter.Node) int {
	if n == nil {
		return c.first
	}
	return c.first + int(n.StartPoint().Row)
}

func (c *converter) endLine(n *sitter.Node) int {
	if n == nil {
		return c.first
	}
	return c.first + int(n.EndPoint().Row)
}

// cond returns the expression inside a parenthesized condition.
func (c *converter) cond(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	t := c.text(n)
	if n.Type() == "parenthesized_expression" && strings.HasPrefix(t, "(") && strings.HasSuffix(t, ")") {
		t = strings.TrimSpace(t[1 : len(t)-1])
	}
	return t
}

func (c *converter) block(n *sitter.Node) *Stmt {
	b := &Stmt{Kind: StmtBlock, Line: c.line(n), EndLine: c.endLine(n)}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		b.Children = append(b.Children, c.statements(n.NamedChild(i))...)
	}
	return b
}

// statements converts n. A case label and a labeled statement expand to
// the label followed by the statements it owns.
func (c *converter) statements(n *sitter.Node) []*Stmt {
	switch n.Type() {
	case "comment", "attribute", "preproc_call":
		return nil
	case "case_statement":
		label := "default"
		if v := n.ChildByFieldName("value"); v != nil {
			label = c.text(v)
		}
		head := &Stmt{Kind: StmtCase, Line: c.line(n), EndLine: c.line(n), Cond: label}
		head.Text = "case " + label + ":"
		if label == "default" {
			head.Text = "default:"
		}
		out := []*Stmt{head}
		value := n.ChildByFieldName("value")
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if value != nil && child.StartByte() == value.StartByte() && child.EndByte() == value.EndByte() {
				continue
			}
			out = append(out, c.statements(child)...)
		}
		return out
	case "labeled_statement":
		label := n.ChildByFieldName("label")
		out := []*Stmt{{Kind: StmtSimple, Line: c.line(n), EndLine: c.line(n), Text: c.text(label) + ":"}}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child.Type() != "statement_identifier" {
				out = append(out, c.statements(child)...)
			}
		}
		return out
	}
	if s := c.statement(n); s != nil {
		return []*Stmt{s}
	}
	return nil
}

func (c *converter) single(n *sitter.Node) *Stmt {
	if n == nil {
		return &Stmt{Kind: StmtBlock}
	}
	if n.Type() == "else_clause" && n.NamedChildCount() > 0 {
		n = n.NamedChild(0)
	}
	ss := c.statements(n)
	if len(ss) == 1 {
		return ss[0]
	}
	return &Stmt{Kind: StmtBlock, Line: c.line(n), EndLine: c.endLine(n), Children: ss}
}

func (c *converter) statement(n *sitter.Node) *Stmt {
	line, end := c.line(n), c.endLine(n)
	switch n.Type() {
	case "compound_statement":
		return c.block(n)
	case "if_statement":
		cond := n.ChildByFieldName("condition")
		s := &Stmt{Kind: StmtIf, Line: line, EndLine: end, Cond: c.cond(cond), CondLine: c.line(cond)}
		s.Then = c.single(n.ChildByFieldName("consequence"))
		if alt := n.ChildByFieldName("alternative"); alt != nil {
			s.Else = c.single(alt)
		}
		return s
	case "while_statement":
		cond := n.ChildByFieldName("condition")
		return &Stmt{Kind: StmtWhile, Line: line, EndLine: end, Cond: c.cond(cond), CondLine: c.line(cond),
			Body: c.single(n.ChildByFieldName("body"))}
	case "do_statement":
		cond := n.ChildByFieldName("condition")
		return &Stmt{Kind: StmtDoWhile, Line: line, EndLine: end, Cond: c.cond(cond), CondLine: c.line(cond),
			Body: c.single(n.ChildByFieldName("body"))}
	case "for_statement":
		s := &Stmt{Kind: StmtFor, Line: line, EndLine: end, CondLine: line,
			Body: c.single(n.ChildByFieldName("body"))}
		if init := n.ChildByFieldName("initializer"); init != nil {
			s.Init = strings.TrimSuffix(c.text(init), ";")
		}
		if cond := n.ChildByFieldName("condition"); cond != nil {
			s.Cond = c.text(cond)
		}
		if upd := n.ChildByFieldName("update"); upd != nil {
			s.Update = c.text(upd)
		}
		return s
	case "switch_statement":
		cond := n.ChildByFieldName("condition")
		return &Stmt{Kind: StmtSwitch, Line: line, EndLine: end, Cond: c.cond(cond), CondLine: c.line(cond),
			Body: c.single(n.ChildByFieldName("body"))}
	case "return_statement":
		return &Stmt{Kind: StmtReturn, Line: line, EndLine: end, Text: c.text(n)}
	case "break_statement":
		return &Stmt{Kind: StmtBreak, Line: line, EndLine: end, Text: c.text(n)}
	case "continue_statement":
		return &Stmt{Kind: StmtContinue, Line: line, EndLine: end, Text: c.text(n)}
	case "expression_statement":
		if c.text(n) == ";" {
			return &Stmt{Kind: StmtBlock, Line: line, EndLine: end}
		}
	}
	return &Stmt{Kind: StmtSimple, Line: line, EndLine: end, Text: c.text(n)}
}

func findChild(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == typ {
			return child
		}
	}
	return nil
}

// firstError returns the row of the first error or missing node under n.
func firstError(n *sitter.Node) int {
	if n.IsError() || n.IsMissing() {
		return int(n.StartPoint().Row)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child.HasError() || child.IsMissing() {
			return firstError(child)
		}
	}
	return int(n.StartPoint().Row)
}
