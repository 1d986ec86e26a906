package cexpr

import (
	"context"
	"fmt"
	"strings"

	"github.com/l3aro/c-testforge/pkg/ast"
	sitter "github.com/smacker/go-tree-sitter"
)

// Expr is a parsed expression tree.
type Expr interface {
	String() string
}

type (
	// Literal is a numeric, character or boolean constant.
	Literal struct{ Value Value }
	// Ident is a variable reference. Field accesses such as s.x or p->x
	// are idents named by their full text.
	Ident struct{ Name string }
	// Unary is one of ! ~ - +.
	Unary struct {
		Op string
		X  Expr
	}
	// Binary is an arithmetic, bitwise, comparison or logical operation.
	Binary struct {
		Op   string
		L, R Expr
	}
	// Conditional is cond ? then : else.
	Conditional struct{ Cond, Then, Else Expr }
	// Cast converts X to TypeName.
	Cast struct {
		TypeName string
		X        Expr
	}
	// Index is array[index].
	Index struct {
		Array string
		Index Expr
	}
	// SizeOf is sizeof(type).
	SizeOf struct{ TypeName string }
	// Call is a function call; it parses but never evaluates.
	Call struct {
		Name string
		Args []Expr
	}
)

func (l *Literal) String() string     { return l.Value.String() }
func (i *Ident) String() string       { return i.Name }
func (u *Unary) String() string       { return u.Op + u.X.String() }
func (b *Binary) String() string      { return "(" + b.L.String() + " " + b.Op + " " + b.R.String() + ")" }
func (c *Conditional) String() string { return "(" + c.Cond.String() + " ? " + c.Then.String() + " : " + c.Else.String() + ")" }
func (c *Cast) String() string        { return "(" + c.TypeName + ")" + c.X.String() }
func (x *Index) String() string       { return x.Array + "[" + x.Index.String() + "]" }
func (s *SizeOf) String() string      { return "sizeof(" + s.TypeName + ")" }
func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Name + "(" + strings.Join(args, ", ") + ")"
}

const wrapperPrefix = "int __cexpr(void) { return ("

// Parse parses src as a single C expression.
func Parse(src string) (Expr, error) {
	return ParseContext(context.Background(), src)
}

// ParseContext is Parse with a cancellable parse.
func ParseContext(ctx context.Context, src string) (Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrMalformedExpression)
	}
	content := []byte(wrapperPrefix + src + "); }")
	tree, err := ast.ParseTree(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", src, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%w: %q", ErrMalformedExpression, src)
	}
	expr := findReturnValue(root)
	if expr == nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedExpression, src)
	}
	c := converter{content: content}
	return c.convert(expr)
}

// MustParse is Parse for expressions known to be valid.
func MustParse(src string) Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

func findReturnValue(root *sitter.Node) *sitter.Node {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Type() == "return_statement" {
			return n.NamedChild(0)
		}
		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			if child := n.NamedChild(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
	return nil
}

type converter struct {
	content []byte
}

func (c converter) text(n *sitter.Node) string {
	return ast.NodeText(n, c.content)
}

func (c converter) convert(n *sitter.Node) (Expr, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: missing operand", ErrMalformedExpression)
	}
	switch n.Type() {
	case "parenthesized_expression":
		return c.convert(n.NamedChild(0))

	case "number_literal", "char_literal":
		v, err := ParseValue(c.text(n))
		if err != nil {
			return nil, err
		}
		return &Literal{Value: v}, nil

	case "true":
		return &Literal{Value: Int(1)}, nil
	case "false", "null":
		return &Literal{Value: Int(0)}, nil

	case "identifier", "field_expression":
		return &Ident{Name: strings.Join(strings.Fields(c.text(n)), "")}, nil

	case "unary_expression":
		x, err := c.convert(n.ChildByFieldName("argument"))
		if err != nil {
			return nil, err
		}
		return &Unary{Op: c.operator(n), X: x}, nil

	case "binary_expression":
		l, err := c.convert(n.ChildByFieldName("left"))
		if err != nil {
			return nil, err
		}
		r, err := c.convert(n.ChildByFieldName("right"))
		if err != nil {
			return nil, err
		}
		return &Binary{Op: c.operator(n), L: l, R: r}, nil

	case "conditional_expression":
		cond, err := c.convert(n.ChildByFieldName("condition"))
		if err != nil {
			return nil, err
		}
		then, err := c.convert(n.ChildByFieldName("consequence"))
		if err != nil {
			return nil, err
		}
		els, err := c.convert(n.ChildByFieldName("alternative"))
		if err != nil {
			return nil, err
		}
		return &Conditional{Cond: cond, Then: then, Else: els}, nil

	case "cast_expression":
		x, err := c.convert(n.ChildByFieldName("value"))
		if err != nil {
			return nil, err
		}
		return &Cast{TypeName: c.text(n.ChildByFieldName("type")), X: x}, nil

	case "subscript_expression":
		arr := n.ChildByFieldName("argument")
		idx := n.ChildByFieldName("index")
		if idx == nil {
			idx = n.NamedChild(1)
		}
		if arr == nil || arr.Type() != "identifier" {
			return nil, fmt.Errorf("%w: subscript of %q", ErrUnsupported, c.text(arr))
		}
		ix, err := c.convert(idx)
		if err != nil {
			return nil, err
		}
		return &Index{Array: c.text(arr), Index: ix}, nil

	case "call_expression":
		call := &Call{Name: c.text(n.ChildByFieldName("function"))}
		if args := n.ChildByFieldName("arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				a, err := c.convert(args.NamedChild(i))
				if err != nil {
					return nil, err
				}
				call.Args = append(call.Args, a)
			}
		}
		return call, nil

	case "sizeof_expression":
		if t := n.ChildByFieldName("type"); t != nil {
			return &SizeOf{TypeName: c.text(t)}, nil
		}
		return nil, fmt.Errorf("%w: sizeof of an expression", ErrUnsupported)

	case "comma_expression":
		return c.convert(n.ChildByFieldName("right"))
	}
	return nil, fmt.Errorf("%w: %s %q", ErrUnsupported, n.Type(), c.text(n))
}

// operator returns the operator token of a unary or binary expression.
func (c converter) operator(n *sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return op.Type()
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil && !child.IsNamed() {
			return child.Type()
		}
	}
	return ""
}

// Identifiers returns the variables referenced by e, in order of first use.
// Array names are included.
func Identifiers(e Expr) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	walk(e, func(x Expr) {
		switch n := x.(type) {
		case *Ident:
			add(n.Name)
		case *Index:
			add(n.Array)
		}
	})
	return out
}

// Literals returns the numeric constants of e. A negated literal is
// reported with its sign.
func Literals(e Expr) []Value {
	var out []Value
	walk(e, func(x Expr) {
		switch n := x.(type) {
		case *Literal:
			out = append(out, n.Value)
		case *Unary:
			if lit, ok := n.X.(*Literal); ok && n.Op == "-" {
				v := lit.Value
				if v.Float {
					v.F = -v.F
				} else {
					v.I = -v.I
				}
				out = append(out, v)
			}
		}
	})
	return out
}

// IsIntervalForm reports whether e constrains at most one variable using
// only comparisons of that variable against constants, joined by !, &&
// and ||. The satisfying set of such a clause is a union of intervals
// whose endpoints are the clause's constants or their neighbours.
func IsIntervalForm(e Expr) bool {
	return IsIntervalFormOver(e, func(string) bool { return true })
}

// IsIntervalFormOver is IsIntervalForm where only the identifiers isVar
// accepts count as variables. The others are named constants.
func IsIntervalFormOver(e Expr, isVar func(string) bool) bool {
	n := 0
	for _, id := range Identifiers(e) {
		if isVar(id) {
			n++
		}
	}
	return n <= 1 && intervalForm(e)
}

func intervalForm(e Expr) bool {
	switch n := e.(type) {
	case *Literal, *Ident:
		return true
	case *Unary:
		if n.Op == "!" {
			return intervalForm(n.X)
		}
		if n.Op == "-" || n.Op == "+" {
			_, ok := n.X.(*Literal)
			return ok
		}
		return false
	case *Binary:
		switch n.Op {
		case "&&", "||":
			return intervalForm(n.L) && intervalForm(n.R)
		case "<", "<=", ">", ">=", "==", "!=":
			return isAtom(n.L) && isAtom(n.R)
		}
		return false
	}
	return false
}

func isAtom(e Expr) bool {
	switch n := e.(type) {
	case *Literal, *Ident:
		return true
	case *Unary:
		_, ok := n.X.(*Literal)
		return ok && (n.Op == "-" || n.Op == "+")
	}
	return false
}

func walk(e Expr, fn func(Expr)) {
	stack := []Expr{e}
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if x == nil {
			continue
		}
		fn(x)
		switch n := x.(type) {
		case *Unary:
			stack = append(stack, n.X)
		case *Binary:
			stack = append(stack, n.R, n.L)
		case *Conditional:
			stack = append(stack, n.Else, n.Then, n.Cond)
		case *Cast:
			stack = append(stack, n.X)
		case *Index:
			stack = append(stack, n.Index)
		case *Call:
			for i := len(n.Args) - 1; i >= 0; i-- {
				stack = append(stack, n.Args[i])
			}
		}
	}
}
