// Package coverage maps test inputs onto control-flow graphs and measures
// line, branch and path coverage.
package coverage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/l3aro/c-testforge/internal/log"
	"github.com/l3aro/c-testforge/pkg/ast"
	"github.com/l3aro/c-testforge/pkg/cexpr"
	"github.com/l3aro/c-testforge/pkg/cfg"
	"github.com/l3aro/c-testforge/pkg/preproc"
	"github.com/l3aro/c-testforge/pkg/types"
)

// DefaultMaxVisits bounds how often a trace may enter one node.
const DefaultMaxVisits = 16

// ErrNoSuccessor is returned when no edge leaving a node matches the
// evaluated condition.
var ErrNoSuccessor = errors.New("no matching successor")

// Trace is the route one test case takes through a function.
type Trace struct {
	Nodes    []int    `json:"nodes"`
	Edges    []int    `json:"edges"`
	Lines    []int    `json:"lines"`
	Branches []string `json:"branches"`
	// Path is the inventory path the trace follows exactly, if any.
	Path string `json:"path,omitempty"`
	// Return is the evaluated return value when the trace reached a
	// return statement it could evaluate.
	Return string `json:"return,omitempty"`
	// Partial is set when the walk stopped before a terminal node.
	Partial bool   `json:"partial,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Mapper decides which parts of a function a test case exercises.
type Mapper interface {
	Trace(ctx context.Context, fa *cfg.FunctionAnalysis, tc *types.TestCase) (Trace, error)
}

// SimulatorOptions configures a Simulator.
type SimulatorOptions struct {
	// Definitions supply macro and enum constants to conditions.
	Definitions   []types.Definition
	MaxMacroDepth int
	MaxVisits     int
	Logger        log.Logger
}

// Simulator is the default Mapper. It walks the graph from the entry with
// the test inputs bound, evaluates each decision, and applies simple
// assignments (x = e, x++, x += e) to the environment. A condition it
// cannot evaluate ends the trace as partial.
type Simulator struct {
	defs      []types.Definition
	maxDepth  int
	maxVisits int
	constants map[string]cexpr.Value
	logger    log.Logger
}

// NewSimulator creates a Simulator.
func NewSimulator(opts SimulatorOptions) *Simulator {
	s := &Simulator{
		defs:      opts.Definitions,
		maxDepth:  opts.MaxMacroDepth,
		maxVisits: opts.MaxVisits,
		logger:    log.OrNop(opts.Logger),
	}
	if s.maxVisits <= 0 {
		s.maxVisits = DefaultMaxVisits
	}
	s.constants = make(map[string]cexpr.Value)
	for name, text := range Constants(opts.Definitions, opts.MaxMacroDepth) {
		if v, err := cexpr.ParseValue(text); err == nil {
			s.constants[name] = v
		}
	}
	return s
}

// Constants evaluates the enabled object-like macros and enumerators of
// defs to literals. Definitions that do not reduce to a number are left
// out.
func Constants(defs []types.Definition, maxDepth int) map[string]string {
	out := make(map[string]string)
	for _, d := range defs {
		if !d.Enabled || d.Type == types.DefinitionFunctionMacro || strings.TrimSpace(d.Value) == "" {
			continue
		}
		expanded, err := preproc.Expand(d.Value, defs, maxDepth)
		if err != nil {
			continue
		}
		v, err := cexpr.EvalString(expanded, cexpr.NewMapEnv())
		if err != nil {
			continue
		}
		out[d.Name] = v.String()
	}
	return out
}

type walk struct {
	s     *Simulator
	env   *cexpr.MapEnv
	exprs map[string]cexpr.Expr
}

// Trace implements Mapper.
func (s *Simulator) Trace(ctx context.Context, fa *cfg.FunctionAnalysis, tc *types.TestCase) (Trace, error) {
	var tr Trace
	g := fa.Graph
	if g == nil || g.Node(g.Entry) == nil {
		return tr, fmt.Errorf("%s: no control-flow graph", fa.Function)
	}
	w := &walk{s: s, env: s.bind(tc), exprs: make(map[string]cexpr.Expr)}
	byEdge := make(map[int]string, len(fa.Branches))
	for _, b := range fa.Branches {
		byEdge[b.Edge] = b.ID
	}

	visits := make(map[int]int)
	cur := g.Entry
	for {
		if err := ctx.Err(); err != nil {
			return tr, err
		}
		visits[cur]++
		if visits[cur] > s.maxVisits {
			tr.Partial = true
			tr.Reason = fmt.Sprintf("node %d entered more than %d times", cur, s.maxVisits)
			break
		}
		n := g.Node(cur)
		tr.Nodes = append(tr.Nodes, cur)
		tr.Lines = append(tr.Lines, n.Lines...)

		if n.Type == cfg.NodeReturn {
			if v, ok := w.returnValue(n); ok {
				tr.Return = v
			}
			break
		}
		if n.Type == cfg.NodeExit {
			break
		}
		for _, stmt := range n.Statements {
			w.apply(stmt)
		}

		out := g.Outgoing(cur)
		if len(out) == 0 {
			break
		}
		ei, err := w.choose(g, n, out)
		if err != nil {
			tr.Partial = true
			tr.Reason = fmt.Sprintf("line %d: %v", n.Line, err)
			break
		}
		tr.Edges = append(tr.Edges, ei)
		if id, ok := byEdge[ei]; ok {
			tr.Branches = append(tr.Branches, id)
		}
		cur = g.Edges[ei].To
	}

	if !tr.Partial {
		for _, p := range fa.Paths {
			if slices.Equal(p.Nodes, tr.Nodes) {
				tr.Path = p.ID
				break
			}
		}
	}
	sort.Ints(tr.Lines)
	tr.Lines = slices.Compact(tr.Lines)
	if tr.Partial {
		s.logger.Debug("partial trace", "function", fa.Function, "test", tc.Name, "reason", tr.Reason)
	}
	return tr, nil
}

// bind builds the initial environment: constants, then the test inputs.
// Inputs that are neither literals nor constants stay unbound.
func (s *Simulator) bind(tc *types.TestCase) *cexpr.MapEnv {
	env := cexpr.NewMapEnv()
	for name, v := range s.constants {
		env.Set(name, v)
	}
	value := func(text string) (cexpr.Value, bool) {
		if v, ok := s.constants[strings.TrimSpace(text)]; ok {
			return v, true
		}
		v, err := cexpr.ParseValue(text)
		return v, err == nil
	}
	for _, in := range tc.Inputs {
		if len(in.ArrayValues) > 0 {
			vals := make([]cexpr.Value, len(in.ArrayValues))
			for i, text := range in.ArrayValues {
				vals[i], _ = value(text)
			}
			env.Arrays[in.Name] = vals
			continue
		}
		if v, ok := value(in.Value); ok {
			if in.Type != "" {
				v = cexpr.Convert(v, in.Type)
			}
			env.Set(in.Name, v)
		}
	}
	return env
}

func (w *walk) parse(text string) (cexpr.Expr, error) {
	if e, ok := w.exprs[text]; ok {
		return e, nil
	}
	src := text
	if expanded, err := preproc.Expand(text, w.s.defs, w.s.maxDepth); err == nil {
		src = expanded
	}
	e, err := cexpr.Parse(src)
	if err != nil {
		return nil, err
	}
	w.exprs[text] = e
	return e, nil
}

func (w *walk) eval(text string) (cexpr.Value, error) {
	e, err := w.parse(text)
	if err != nil {
		return cexpr.Value{}, err
	}
	return cexpr.Eval(e, w.env)
}

// choose picks the edge control leaves n by.
func (w *walk) choose(g *cfg.ControlFlowGraph, n *cfg.Node, out []int) (int, error) {
	switch {
	case n.Type.Decision():
		taken := true
		if strings.TrimSpace(n.Condition) != "" {
			v, err := w.eval(n.Condition)
			if err != nil {
				return -1, err
			}
			taken = v.Truthy()
		}
		for _, ei := range out {
			typ := g.Edges[ei].Type
			if taken && (typ == cfg.EdgeTrue || typ == cfg.EdgeLoop) || !taken && typ == cfg.EdgeFalse {
				return ei, nil
			}
		}
		return -1, fmt.Errorf("%w: %s is %t", ErrNoSuccessor, n.Condition, taken)

	case n.Type == cfg.NodeSwitchBody:
		v, err := w.eval(n.Condition)
		if err != nil {
			return -1, err
		}
		fallback := -1
		for _, ei := range out {
			label := strings.TrimSpace(g.Edges[ei].Condition)
			if label == "default" {
				fallback = ei
				continue
			}
			lv, err := w.eval(label)
			if err != nil {
				return -1, fmt.Errorf("case %s: %w", label, err)
			}
			if cexpr.Compare(v, lv) == 0 {
				return ei, nil
			}
		}
		if fallback < 0 {
			return -1, fmt.Errorf("%w: switch (%s) = %s", ErrNoSuccessor, n.Condition, v)
		}
		return fallback, nil
	}
	return out[0], nil
}

// apply executes one statement against the environment. Only assignments
// to plain variables and array elements, increments and declarations are
// modelled; a right-hand side that cannot be evaluated makes the target
// unknown.
func (w *walk) apply(stmt string) {
	text := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
	toks := ast.Lex([]string{text}, 1)
	if len(toks) == 0 || toks[0].Kind == ast.TokenDirective {
		return
	}

	if len(toks) == 2 {
		name, op := toks[0], toks[1]
		if toks[0].Kind != ast.TokenIdentifier {
			name, op = toks[1], toks[0]
		}
		if name.Kind == ast.TokenIdentifier && (op.Is("++") || op.Is("--")) {
			v, ok := w.env.Lookup(name.Text)
			if !ok {
				return
			}
			delta := int64(1)
			if op.Is("--") {
				delta = -1
			}
			if v.Float {
				w.env.Set(name.Text, cexpr.Float(v.F+float64(delta)))
			} else {
				w.env.Set(name.Text, cexpr.Int(v.I+delta))
			}
			return
		}
	}

	k, depth := -1, 0
	for i, t := range toks {
		switch {
		case t.Is("(") || t.Is("["):
			depth++
		case t.Is(")") || t.Is("]"):
			depth--
		case depth == 0 && t.Kind == ast.TokenPunct && (t.Text == "=" || compound(t.Text)):
			k = i
		}
		if k >= 0 {
			break
		}
	}
	if k < 0 {
		w.declare(toks)
		return
	}

	op := toks[k].Text
	rhs := strings.TrimSpace(text[toks[k].Column-1+len(op):])
	lhs := toks[:k]
	target, index, typeName, ok := w.target(lhs)
	if !ok {
		return
	}
	expr := rhs
	if op != "=" {
		expr = fmt.Sprintf("%s %s (%s)", w.current(target, index), strings.TrimSuffix(op, "="), rhs)
	}
	v, err := w.eval(expr)
	if err == nil && typeName != "" {
		v = cexpr.Convert(v, typeName)
	}
	w.store(target, index, v, err == nil)
}

func compound(op string) bool {
	switch op {
	case "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "<<=", ">>=":
		return true
	}
	return false
}

// target resolves an assignment's left-hand side to a variable, an array
// element index (-1 for scalars) and, for declarations, the declared type.
func (w *walk) target(lhs []ast.Token) (string, int64, string, bool) {
	if len(lhs) == 0 {
		return "", 0, "", false
	}
	last := lhs[len(lhs)-1]
	if last.Kind == ast.TokenIdentifier {
		for _, t := range lhs[:len(lhs)-1] {
			if t.Kind == ast.TokenPunct || t.Kind == ast.TokenNumber {
				return "", 0, "", false
			}
		}
		words := make([]string, 0, len(lhs)-1)
		for _, t := range lhs[:len(lhs)-1] {
			words = append(words, t.Text)
		}
		return last.Text, -1, strings.Join(words, " "), true
	}
	// name [ index ]
	if len(lhs) >= 4 && lhs[0].Kind == ast.TokenIdentifier && lhs[1].Is("[") && last.Is("]") {
		parts := make([]string, 0, len(lhs)-3)
		for _, t := range lhs[2 : len(lhs)-1] {
			parts = append(parts, t.Text)
		}
		idx, err := w.eval(strings.Join(parts, " "))
		if err != nil {
			return "", 0, "", false
		}
		return lhs[0].Text, idx.AsInt(), "", true
	}
	return "", 0, "", false
}

func (w *walk) current(name string, index int64) string {
	if index < 0 {
		return name
	}
	return fmt.Sprintf("%s[%d]", name, index)
}

func (w *walk) store(name string, index int64, v cexpr.Value, known bool) {
	if index < 0 {
		if known {
			w.env.Set(name, v)
		} else {
			delete(w.env.Vars, name)
		}
		return
	}
	vals := w.env.Arrays[name]
	if index >= int64(len(vals)) {
		return
	}
	if known {
		vals[index] = v
	}
}

// declare forgets variables declared without an initializer.
func (w *walk) declare(toks []ast.Token) {
	if len(toks) < 2 || toks[len(toks)-1].Kind != ast.TokenIdentifier {
		return
	}
	for _, t := range toks[:len(toks)-1] {
		if t.Kind != ast.TokenKeyword && t.Kind != ast.TokenIdentifier && !t.Is("*") {
			return
		}
	}
	if toks[0].Kind == ast.TokenKeyword && (toks[0].Is("return") || toks[0].Is("goto") || toks[0].Is("case")) {
		return
	}
	delete(w.env.Vars, toks[len(toks)-1].Text)
}

func (w *walk) returnValue(n *cfg.Node) (string, bool) {
	if len(n.Statements) == 0 {
		return "", false
	}
	text := strings.TrimSpace(n.Statements[0])
	text = strings.TrimSuffix(strings.TrimPrefix(text, "return"), ";")
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	v, err := w.eval(text)
	if err != nil {
		return "", false
	}
	return v.String(), true
}
