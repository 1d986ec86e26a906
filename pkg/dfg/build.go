package dfg

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/l3aro/c-testforge/pkg/ast"
	"github.com/l3aro/c-testforge/pkg/cfg"
	"github.com/l3aro/c-testforge/pkg/types"
)

// ErrEmptyInput is returned when there is no variable or no body to scan.
var ErrEmptyInput = errors.New("empty input")

var typeWords = map[string]bool{
	"char": true, "short": true, "int": true, "long": true, "float": true, "double": true,
	"signed": true, "unsigned": true, "void": true, "_Bool": true, "struct": true,
	"union": true, "enum": true, "const": true, "volatile": true, "static": true,
	"register": true, "extern": true, "auto": true, "restrict": true,
}

var compoundOps = map[string]bool{
	"+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"&=": true, "|=": true, "^=": true, "<<=": true, ">>=": true,
}

// Build scans the body of fn for occurrences of variable and links each
// definition to the later reads it reaches in source order. bodyLines
// start at firstLine; tokens before the first "{" are ignored, so the lines
// may include the signature. With no lines the body is isolated from
// fn.Body. A parameter gets an implicit definition on the declaration line.
//
// The walk is linear: a definition reaches every read up to the next
// definition, whatever branch either sits on. An assignment takes effect
// at the end of its statement, so x = x + 1 reads the previous value.
func Build(variable string, fn *types.Function, bodyLines []string, firstLine int) (*DataFlowGraph, error) {
	if variable == "" {
		return nil, fmt.Errorf("%w: no variable", ErrEmptyInput)
	}
	if len(bodyLines) == 0 {
		body, ok := cfg.FunctionBody(fn, nil)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no body", ErrEmptyInput, fn.Name)
		}
		bodyLines, firstLine = body.Lines, body.FirstLine
	}

	b := &builder{
		g:     &DataFlowGraph{Variable: variable, Function: fn.Name},
		name:  variable,
		lines: bodyLines,
		first: firstLine,
	}
	if p := fn.Parameter(variable); p != nil {
		b.g.Nodes = append(b.g.Nodes, Node{
			Kind:     KindAssignment,
			Line:     fn.StartLine,
			Text:     strings.TrimSpace(p.TypeName + " " + p.Name),
			Implicit: true,
			stmt:     -1,
		})
	}
	for i, stmt := range statements(ast.Lex(bodyLines, firstLine)) {
		b.statement(i, stmt)
	}
	b.g.Edges = linearEdges(b.g)
	return b.g, nil
}

type builder struct {
	g     *DataFlowGraph
	name  string
	lines []string
	first int
}

// statements splits the body tokens at ";", "{" and "}". Directives and
// the tokens before the body's opening brace are dropped.
func statements(toks []ast.Token) [][]ast.Token {
	start := slices.IndexFunc(toks, func(t ast.Token) bool { return t.Is("{") })
	if start < 0 {
		return nil
	}
	var out [][]ast.Token
	var cur []ast.Token
	for _, t := range toks[start+1:] {
		if t.Kind == ast.TokenDirective {
			continue
		}
		if t.Is(";") || t.Is("{") || t.Is("}") {
			if len(cur) > 0 {
				out = append(out, cur)
			}
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// declaration reports whether stmt declares variables, and the bracket
// depth of its declarators. A leading else or for header is skipped.
func declaration(stmt []ast.Token) (bool, int) {
	i, depth := 0, 0
	if i < len(stmt) && stmt[i].Is("else") {
		i++
	}
	if i+1 < len(stmt) && stmt[i].Is("for") && stmt[i+1].Is("(") {
		i, depth = i+2, 1
	}
	if i >= len(stmt) {
		return false, 0
	}
	t := stmt[i]
	if t.Kind == ast.TokenKeyword && typeWords[t.Text] {
		return true, depth
	}
	if t.Kind != ast.TokenIdentifier || i+1 >= len(stmt) {
		return false, 0
	}
	next := stmt[i+1]
	if next.Kind == ast.TokenIdentifier {
		return true, depth
	}
	// T *p = ..., T *p; or T *p,
	if next.Is("*") && i+2 < len(stmt) && stmt[i+2].Kind == ast.TokenIdentifier {
		if i+3 == len(stmt) {
			return true, depth
		}
		after := stmt[i+3]
		return after.Is("=") || after.Is(",") || after.Is("["), depth
	}
	return false, 0
}

func (b *builder) statement(idx int, stmt []ast.Token) {
	decl, level := declaration(stmt)
	inInit := !decl
	depth := 0
	for i, t := range stmt {
		switch {
		case t.Is("(") || t.Is("["):
			depth++
		case t.Is(")") || t.Is("]"):
			depth--
		case decl && depth == level && t.Is("="):
			inInit = true
		case decl && depth == level && t.Is(","):
			inInit = false
		}
		if t.Kind != ast.TokenIdentifier || t.Text != b.name {
			continue
		}
		if i > 0 && (stmt[i-1].Is(".") || stmt[i-1].Is("->")) {
			continue
		}
		if i+1 < len(stmt) && stmt[i+1].Is("(") {
			continue
		}
		if decl && !inInit && depth == level {
			b.declarator(idx, stmt, i)
			continue
		}
		b.occurrence(idx, stmt, i)
	}
}

// declarator handles the declared name of a declaration. Only an
// initialized declaration defines the variable.
func (b *builder) declarator(idx int, stmt []ast.Token, i int) {
	j := i + 1
	if j < len(stmt) && stmt[j].Is("[") {
		j = closing(stmt, j) + 1
	}
	if j < len(stmt) && stmt[j].Is("=") {
		b.add(idx, KindAssignment, stmt[i], uses(stmt, j+1))
	}
}

func (b *builder) occurrence(idx int, stmt []ast.Token, i int) {
	t := stmt[i]
	next := func(j int) ast.Token {
		if j < len(stmt) {
			return stmt[j]
		}
		return ast.Token{}
	}

	if i > 0 && (stmt[i-1].Is("++") || stmt[i-1].Is("--")) {
		b.add(idx, KindReadWrite, t, nil)
		return
	}
	if deref(stmt, i) {
		b.add(idx, KindRead, t, nil)
		return
	}

	n := next(i + 1)
	switch {
	case n.Is("="):
		b.add(idx, KindAssignment, t, uses(stmt, i+2))
	case n.Is("++") || n.Is("--") || compoundOps[n.Text] && n.Kind == ast.TokenPunct:
		b.add(idx, KindReadWrite, t, nil)
	case n.Is("["):
		after := next(closing(stmt, i+1) + 1)
		if after.Is("=") || after.Is("++") || after.Is("--") || after.Kind == ast.TokenPunct && compoundOps[after.Text] {
			b.add(idx, KindReadWrite, t, nil)
			return
		}
		b.add(idx, KindRead, t, nil)
	default:
		b.add(idx, KindRead, t, nil)
	}
}

// deref reports whether the occurrence at i is the operand of a unary "*".
func deref(stmt []ast.Token, i int) bool {
	if i == 0 || !stmt[i-1].Is("*") {
		return false
	}
	if i == 1 {
		return true
	}
	prev := stmt[i-2]
	switch {
	case prev.Kind == ast.TokenIdentifier, prev.Kind == ast.TokenNumber:
		return false
	case prev.Is(")") || prev.Is("]"):
		return false
	}
	return true
}

// closing returns the index of the bracket closing the one at open, or the
// last index when it is unbalanced.
func closing(stmt []ast.Token, open int) int {
	depth := 0
	for j := open; j < len(stmt); j++ {
		switch {
		case stmt[j].Is("(") || stmt[j].Is("["):
			depth++
		case stmt[j].Is(")") || stmt[j].Is("]"):
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return len(stmt) - 1
}

// uses collects the identifiers of the expression starting at from. The
// expression ends at the statement end, a top-level comma, or a closing
// bracket it did not open. Called names and member names are skipped.
func uses(stmt []ast.Token, from int) []string {
	var out []string
	depth := 0
	for j := from; j < len(stmt); j++ {
		t := stmt[j]
		switch {
		case t.Is("(") || t.Is("["):
			depth++
		case t.Is(")") || t.Is("]"):
			depth--
		case t.Is(",") && depth == 0:
			return out
		}
		if depth < 0 {
			return out
		}
		if t.Kind != ast.TokenIdentifier {
			continue
		}
		if j+1 < len(stmt) && stmt[j+1].Is("(") {
			continue
		}
		if j > 0 && (stmt[j-1].Is(".") || stmt[j-1].Is("->")) {
			continue
		}
		if !slices.Contains(out, t.Text) {
			out = append(out, t.Text)
		}
	}
	return out
}

func (b *builder) add(stmt int, kind NodeKind, t ast.Token, used []string) {
	text := ""
	if i := t.Line - b.first; i >= 0 && i < len(b.lines) {
		text = strings.TrimSpace(b.lines[i])
	}
	b.g.Nodes = append(b.g.Nodes, Node{
		ID:     len(b.g.Nodes),
		Kind:   kind,
		Line:   t.Line,
		Column: t.Column,
		Text:   text,
		Uses:   used,
		stmt:   stmt,
	})
}

// linearEdges links the active definition to each later read. A definition
// becomes active once its statement ends.
func linearEdges(g *DataFlowGraph) []Edge {
	var edges []Edge
	active, pending := -1, -1
	stmt := -2
	for _, n := range g.Nodes {
		if n.stmt != stmt {
			if pending >= 0 {
				active, pending = pending, -1
			}
			stmt = n.stmt
		}
		if n.Kind.Reads() && active >= 0 {
			edges = append(edges, Edge{From: active, To: n.ID, Variable: g.Variable})
		}
		if n.Kind.Defines() {
			pending = n.ID
		}
	}
	return edges
}

// Propagation returns the lines reached from the occurrences on line by
// following def-use edges forward, in ascending order. The starting
// occurrences are excluded unless the walk comes back to them.
func Propagation(g *DataFlowGraph, line int) []int {
	succ := make(map[int][]int)
	for _, e := range g.Edges {
		succ[e.From] = append(succ[e.From], e.To)
	}

	var queue []int
	for _, n := range g.Nodes {
		if n.Line == line {
			queue = append(queue, n.ID)
		}
	}
	reached := make(map[int]bool)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, to := range succ[id] {
			if !reached[to] {
				reached[to] = true
				queue = append(queue, to)
			}
		}
	}

	var out []int
	for id := range reached {
		if l := g.Nodes[id].Line; !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	sort.Ints(out)
	return out
}
