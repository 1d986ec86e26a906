package synth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/l3aro/c-testforge/pkg/ast"
	"github.com/l3aro/c-testforge/pkg/cfg"
	"github.com/l3aro/c-testforge/pkg/dfg"
	"github.com/l3aro/c-testforge/pkg/types"
)

// declWords may open a declaration.
var declWords = map[string]bool{
	"char": true, "short": true, "int": true, "long": true, "float": true, "double": true,
	"signed": true, "unsigned": true, "_Bool": true, "struct": true, "union": true,
	"enum": true, "const": true, "volatile": true, "static": true, "register": true, "auto": true,
}

// symbolic replays the statements of one path and keeps, for every
// variable assigned so far, its value as an expression over the function
// inputs. Guards read through those expressions, so a condition on a
// local or a reassigned parameter becomes a condition on the inputs.
type symbolic struct {
	fn      *types.Function
	ins     []input
	typeOf  map[string]string
	pointer map[string]bool
	values  map[string]string
	// lost variables hold values the walk cannot express: an escaped
	// address, an uninitialized local, an aggregate, a write through a
	// call.
	lost  map[string]bool
	exact bool
}

func newSymbolic(fn *types.Function, ins []input) *symbolic {
	s := &symbolic{
		fn:      fn,
		ins:     ins,
		typeOf:  make(map[string]string),
		pointer: make(map[string]bool),
		values:  make(map[string]string),
		lost:    make(map[string]bool),
		exact:   true,
	}
	for _, p := range fn.Parameters {
		s.typeOf[p.Name] = p.TypeName
		s.pointer[p.Name] = p.IsPointer || p.ArraySize > 0
	}
	for _, in := range ins {
		if _, ok := s.typeOf[in.name]; !ok {
			s.typeOf[in.name] = in.typeName
		}
	}
	return s
}

// pathCondition returns the condition, over the function inputs, under
// which p runs to its end or, when branch is not empty, takes branch.
// exact is false when a guard reads a value the walk could not follow;
// an unsatisfiable inexact condition proves nothing.
func pathCondition(g *cfg.ControlFlowGraph, p cfg.Path, branch string, fn *types.Function, ins []input) (string, bool) {
	s := newSymbolic(fn, ins)
	var guards []cfg.Guard
	next := 0
	for i, id := range p.Nodes {
		if i > 0 && i-1 < len(p.Edges) {
			for next < len(p.Guards) && p.Guards[next].Edge == p.Edges[i-1] {
				gd := p.Guards[next]
				next++
				gd.Expr = s.guard(gd.Expr)
				guards = append(guards, gd)
				if branch != "" && gd.Branch == branch {
					return cfg.Conjunction(guards), s.exact
				}
			}
		}
		n := g.Node(id)
		if n == nil || n.Type == cfg.NodeReturn || n.Type == cfg.NodeExit {
			continue
		}
		for _, stmt := range n.Statements {
			s.apply(stmt)
		}
	}
	if branch != "" {
		return cfg.Conjunction(guards), false
	}
	return cfg.Conjunction(guards), s.exact
}

// guard rewrites a branch or case condition in terms of the inputs. A
// condition that also writes a variable is not exact.
func (s *symbolic) guard(expr string) string {
	out, ok := s.rewrite(expr)
	if !ok {
		s.exact = false
	}
	toks := ast.Lex([]string{expr}, 1)
	s.escape(toks)
	for _, d := range s.definitions(expr, toks) {
		s.lose(d.name)
		s.exact = false
	}
	return out
}

// apply replays one statement.
func (s *symbolic) apply(stmt string) {
	text := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
	toks := ast.Lex([]string{text}, 1)
	if len(toks) == 0 || toks[0].Kind == ast.TokenDirective {
		return
	}
	s.escape(toks)
	s.declare(toks)
	for _, d := range s.definitions(text, toks) {
		s.define(text, toks, d)
	}
}

type definition struct {
	name   string
	column int
}

// definitions lists the writes in text in source order, as the def/use
// scan of each identifier finds them.
func (s *symbolic) definitions(text string, toks []ast.Token) []definition {
	var out []definition
	seen := make(map[string]bool)
	for i, t := range toks {
		if !operand(toks, i) || seen[t.Text] {
			continue
		}
		seen[t.Text] = true
		g, err := dfg.Build(t.Text, s.fn, []string{"{", text + ";", "}"}, 0)
		if err != nil {
			continue
		}
		for _, n := range g.Nodes {
			if n.Kind.Defines() && !n.Implicit {
				out = append(out, definition{name: t.Text, column: n.Column})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].column < out[j].column })
	return out
}

// escape forgets variables whose address is taken, and the globals and
// arrays a called function could write.
func (s *symbolic) escape(toks []ast.Token) {
	for i, t := range toks {
		if t.Is("&") && i+1 < len(toks) && toks[i+1].Kind == ast.TokenIdentifier && unaryPosition(toks, i) {
			s.lose(toks[i+1].Text)
		}
		if t.Kind == ast.TokenIdentifier && i+1 < len(toks) && toks[i+1].Is("(") {
			for _, in := range s.ins {
				if in.global || s.pointer[in.name] {
					s.lose(in.name)
				}
			}
		}
	}
}

// declare records the type of each declarator of a declaration. A
// declarator without an initializer, a pointer and an array start out
// lost.
func (s *symbolic) declare(toks []ast.Token) {
	typeName, first, ok := declaration(toks)
	if !ok {
		return
	}
	depth := 0
	expect := true
	for i := first; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.Is("(") || t.Is("[") || t.Is("{"):
			depth++
		case t.Is(")") || t.Is("]") || t.Is("}"):
			depth--
		case depth == 0 && t.Is(","):
			expect = true
			continue
		}
		if !expect || depth != 0 || t.Kind != ast.TokenIdentifier {
			continue
		}
		expect = false
		name := t.Text
		s.typeOf[name] = typeName
		s.pointer[name] = i > first && toks[i-1].Is("*")
		delete(s.values, name)
		delete(s.lost, name)
		_, static := wordsOf(typeName)["static"]
		init := i+1 < len(toks) && toks[i+1].Is("=")
		if !init || static || s.pointer[name] {
			s.lose(name)
		}
	}
}

// define computes the value written by the definition d.
func (s *symbolic) define(text string, toks []ast.Token, d definition) {
	k := -1
	for i, t := range toks {
		if t.Column == d.column && t.Text == d.name {
			k = i
			break
		}
	}
	if k < 0 || s.pointer[d.name] {
		s.lose(d.name)
		return
	}
	if k > 0 && (toks[k-1].Is("++") || toks[k-1].Is("--")) {
		s.step(d.name, toks[k-1].Text)
		return
	}
	if k+1 >= len(toks) {
		s.lose(d.name)
		return
	}
	op := toks[k+1]
	switch {
	case op.Is("++") || op.Is("--"):
		s.step(d.name, op.Text)
	case op.Is("=") || op.Kind == ast.TokenPunct && compoundAssign(op.Text):
		rhs, ok := operandText(text, toks, k+2)
		if !ok {
			s.lose(d.name)
			return
		}
		value, ok := s.rewrite(rhs)
		if !ok {
			s.lose(d.name)
			return
		}
		if !op.Is("=") {
			cur, ok := s.current(d.name)
			if !ok {
				return
			}
			value = fmt.Sprintf("(%s) %s (%s)", cur, strings.TrimSuffix(op.Text, "="), value)
		}
		s.set(d.name, value)
	default:
		s.lose(d.name)
	}
}

func (s *symbolic) step(name, op string) {
	cur, ok := s.current(name)
	if !ok {
		return
	}
	s.set(name, fmt.Sprintf("(%s) %s 1", cur, op[:1]))
}

// current is the value name holds now. A lost variable has none.
func (s *symbolic) current(name string) (string, bool) {
	if s.lost[name] {
		return "", false
	}
	if v, ok := s.values[name]; ok {
		return v, true
	}
	return name, true
}

// set stores value converted to the declared type of name.
func (s *symbolic) set(name, value string) {
	sc, ok := types.LookupScalar(s.typeOf[name])
	if !ok {
		s.lose(name)
		return
	}
	delete(s.lost, name)
	if sc.Bool {
		s.values[name] = "(" + value + ") != 0"
		return
	}
	s.values[name] = "(" + castName(sc) + ")(" + value + ")"
}

func (s *symbolic) lose(name string) {
	delete(s.values, name)
	s.lost[name] = true
}

// rewrite substitutes the current value of every variable expr reads. It
// reports false when expr reads a lost variable.
func (s *symbolic) rewrite(expr string) (string, bool) {
	toks := ast.Lex([]string{expr}, 1)
	out, ok := expr, true
	for i := len(toks) - 1; i >= 0; i-- {
		if !operand(toks, i) {
			continue
		}
		t := toks[i]
		if v, has := s.values[t.Text]; has {
			at := t.Column - 1
			out = out[:at] + "(" + v + ")" + out[at+len(t.Text):]
			continue
		}
		if s.lost[t.Text] {
			ok = false
		}
	}
	return out, ok
}

// operand reports whether toks[i] names a variable: an identifier that is
// neither called nor a member name.
func operand(toks []ast.Token, i int) bool {
	if toks[i].Kind != ast.TokenIdentifier {
		return false
	}
	if i+1 < len(toks) && toks[i+1].Is("(") {
		return false
	}
	return i == 0 || !(toks[i-1].Is(".") || toks[i-1].Is("->"))
}

// operandText returns the side-effect-free expression starting at toks[from].
// It ends at a top-level comma, an unopened closing bracket or the end.
func operandText(text string, toks []ast.Token, from int) (string, bool) {
	if from >= len(toks) {
		return "", false
	}
	depth, end := 0, len(text)
	for j := from; j < len(toks); j++ {
		t := toks[j]
		switch {
		case t.Is("(") || t.Is("["):
			depth++
		case t.Is(")") || t.Is("]"):
			depth--
		case t.Is("=") || t.Is("++") || t.Is("--") || t.Kind == ast.TokenPunct && compoundAssign(t.Text):
			return "", false
		}
		if depth < 0 || depth == 0 && t.Is(",") {
			end = t.Column - 1
			break
		}
	}
	return strings.TrimSpace(text[toks[from].Column-1 : end]), true
}

// declaration reports whether toks declare variables, the written type and
// the index of the first declarator.
func declaration(toks []ast.Token) (string, int, bool) {
	i := 0
	for i < len(toks) && (toks[i].Kind == ast.TokenIdentifier || toks[i].Kind == ast.TokenKeyword && declWords[toks[i].Text]) {
		i++
	}
	for i < len(toks) && toks[i].Is("*") {
		i++
	}
	words := make([]string, 0, i)
	for _, t := range toks[:i] {
		if t.Kind == ast.TokenPunct {
			break
		}
		words = append(words, t.Text)
	}
	if i >= len(toks) || toks[i].Kind != ast.TokenIdentifier {
		// int x; int x = 1; unsigned n, m;
		if len(words) < 2 {
			return "", 0, false
		}
		last := len(words) - 1
		if i < len(toks) && !toks[i].Is("=") && !toks[i].Is(",") && !toks[i].Is("[") {
			return "", 0, false
		}
		if i == len(words) {
			return strings.Join(words[:last], " "), last, true
		}
		return "", 0, false
	}
	// int *p = ...
	if len(words) == 0 || i == len(words) {
		return "", 0, false
	}
	return strings.Join(words, " "), len(words), true
}

func wordsOf(typeName string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(typeName) {
		out[w] = struct{}{}
	}
	return out
}

// unaryPosition reports whether the operator at i has no left operand.
func unaryPosition(toks []ast.Token, i int) bool {
	if i == 0 {
		return true
	}
	prev := toks[i-1]
	switch prev.Kind {
	case ast.TokenIdentifier, ast.TokenNumber, ast.TokenString, ast.TokenChar:
		return false
	}
	return !prev.Is(")") && !prev.Is("]")
}

func compoundAssign(op string) bool {
	switch op {
	case "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "<<=", ">>=":
		return true
	}
	return false
}

// castName spells a scalar with keywords only, so that the expression
// parser reads the cast without knowing any typedef.
func castName(sc types.Scalar) string {
	if sc.Float {
		if sc.Size == 4 {
			return "float"
		}
		return "double"
	}
	var name string
	switch sc.Size {
	case 1:
		name = "char"
	case 2:
		name = "short"
	case 4:
		name = "int"
	default:
		name = "long"
	}
	if !sc.Signed {
		return "unsigned " + name
	}
	if sc.Size == 1 {
		return "signed char"
	}
	return name
}
