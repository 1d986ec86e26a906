package cfg

import (
	"fmt"
	"strings"
)

// DefaultMaxPaths bounds path enumeration when no limit is configured.
const DefaultMaxPaths = 64

// Branch is one outcome of a decision node.
type Branch struct {
	ID        string `json:"id"`
	Node      int    `json:"node"`
	Edge      int    `json:"edge"`
	Line      int    `json:"line"`
	Taken     bool   `json:"taken"`
	Condition string `json:"condition"`
}

// Guard is the expression that holds when the branch is followed.
func (b Branch) Guard() string {
	cond := b.Condition
	if strings.TrimSpace(cond) == "" {
		cond = "1"
	}
	if b.Taken {
		return cond
	}
	return "!(" + cond + ")"
}

// BranchID names the outcome of the decision on line.
func BranchID(line int, taken bool) string {
	if taken {
		return fmt.Sprintf("B%d:T", line)
	}
	return fmt.Sprintf("B%d:F", line)
}

// Branches lists every true, false and loop outcome leaving a decision
// node, in edge order. Two decisions on one line are told apart by a
// "#n" suffix on the later one.
func Branches(g *ControlFlowGraph) []Branch {
	var out []Branch
	seen := make(map[string]int)
	for i, e := range g.Edges {
		from := g.Node(e.From)
		if from == nil || !from.Type.Decision() {
			continue
		}
		if e.Type != EdgeTrue && e.Type != EdgeFalse && e.Type != EdgeLoop {
			continue
		}
		b := Branch{Node: e.From, Edge: i, Line: from.Line, Taken: e.Type != EdgeFalse, Condition: from.Condition}
		b.ID = BranchID(b.Line, b.Taken)
		seen[b.ID]++
		if n := seen[b.ID]; n > 1 {
			b.ID = fmt.Sprintf("%s#%d", b.ID, n)
		}
		out = append(out, b)
	}
	return out
}

// Guard is what must hold for a path to leave a decision or a switch along
// one edge.
type Guard struct {
	Edge int `json:"edge"`
	// Branch is the branch ID of the edge. It is empty for switch cases,
	// which are not branches.
	Branch string `json:"branch,omitempty"`
	Expr   string `json:"expr"`
}

// Path is a route from the entry to a terminal node.
type Path struct {
	ID    string `json:"id"`
	Nodes []int  `json:"nodes"`
	// Edges are the edges taken between consecutive Nodes.
	Edges    []int    `json:"edges"`
	Branches []string `json:"branches"`
	// Guards are the branch outcomes and switch cases the path selects,
	// in order.
	Guards []Guard `json:"guards"`
}

// Condition is the conjunction of the path's guards, or "1" for a path
// with no decisions.
func (p Path) Condition() string {
	return Conjunction(p.Guards)
}

// Conjunction joins the expressions of guards with &&. No guards give "1".
func Conjunction(guards []Guard) string {
	if len(guards) == 0 {
		return "1"
	}
	parts := make([]string, len(guards))
	for i, g := range guards {
		parts[i] = "(" + g.Expr + ")"
	}
	return strings.Join(parts, " && ")
}

// Through returns the guards of p up to and including the one for branch,
// and false when p does not take branch.
func (p Path) Through(branch string) ([]Guard, bool) {
	for i, g := range p.Guards {
		if g.Branch == branch {
			return p.Guards[:i+1], true
		}
	}
	return nil, false
}

// Lines returns the statement lines the path executes.
func (p Path) Lines(g *ControlFlowGraph) []int {
	var out []int
	for _, id := range p.Nodes {
		if n := g.Node(id); n != nil {
			out = append(out, n.Lines...)
		}
	}
	return out
}

// Paths enumerates entry-to-terminal paths depth-first. An edge into a node
// already on the path is a back edge and is followed at most once per path,
// so each loop is either skipped or run once. Enumeration stops after
// maxPaths paths (DefaultMaxPaths when maxPaths <= 0) and reports whether
// it was cut short.
func Paths(g *ControlFlowGraph, branches []Branch, maxPaths int) ([]Path, bool) {
	if maxPaths <= 0 {
		maxPaths = DefaultMaxPaths
	}
	if g.Node(g.Entry) == nil {
		return nil, false
	}
	byEdge := make(map[int]Branch, len(branches))
	for _, b := range branches {
		byEdge[b.Edge] = b
	}
	cases := caseGuards(g)

	type step struct {
		node int
		edge int // edge taken to reach node, -1 at the entry
		next int // next outgoing edge to try
		back bool
	}
	var (
		paths     []Path
		stack     = []step{{node: g.Entry, edge: -1}}
		onPath    = map[int]int{g.Entry: 1}
		usedBack  = make(map[int]bool)
		truncated bool
	)
	pop := func() {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		onPath[top.node]--
		if top.back {
			delete(usedBack, top.edge)
		}
	}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if g.Nodes[top.node].Type.Terminal() {
			if len(paths) == maxPaths {
				truncated = true
				break
			}
			p := Path{ID: fmt.Sprintf("P%d", len(paths)+1)}
			for _, s := range stack {
				p.Nodes = append(p.Nodes, s.node)
				if s.edge < 0 {
					continue
				}
				p.Edges = append(p.Edges, s.edge)
				if b, ok := byEdge[s.edge]; ok {
					p.Branches = append(p.Branches, b.ID)
					p.Guards = append(p.Guards, Guard{Edge: s.edge, Branch: b.ID, Expr: b.Guard()})
				} else if expr, ok := cases[s.edge]; ok {
					p.Guards = append(p.Guards, Guard{Edge: s.edge, Expr: expr})
				}
			}
			paths = append(paths, p)
			pop()
			continue
		}

		out := g.Outgoing(top.node)
		if top.next >= len(out) {
			pop()
			continue
		}
		ei := out[top.next]
		top.next++
		to := g.Edges[ei].To
		back := onPath[to] > 0
		if back {
			if usedBack[ei] {
				continue
			}
			usedBack[ei] = true
		}
		onPath[to]++
		stack = append(stack, step{node: to, edge: ei, back: back})
	}
	return paths, truncated
}

// caseGuards maps every edge leaving a switch body to the condition that
// selects it: equality with its label for a case, and inequality with
// every label of the switch for default. GNU case ranges "lo ... hi" are
// honoured. A default with no sibling cases needs no guard.
func caseGuards(g *ControlFlowGraph) map[int]string {
	out := make(map[int]string)
	for id, n := range g.Nodes {
		if n.Type != NodeSwitchBody || strings.TrimSpace(n.Condition) == "" {
			continue
		}
		ctl := "(" + strings.TrimSpace(n.Condition) + ")"
		var labels, defaults []int
		for _, ei := range g.Outgoing(id) {
			e := g.Edges[ei]
			if e.Type != EdgeSwitch {
				continue
			}
			if strings.TrimSpace(e.Condition) == "default" {
				defaults = append(defaults, ei)
				continue
			}
			labels = append(labels, ei)
			out[ei] = caseMatch(ctl, e.Condition)
		}
		if len(labels) == 0 {
			continue
		}
		parts := make([]string, len(labels))
		for i, ei := range labels {
			parts[i] = "!(" + out[ei] + ")"
		}
		for _, ei := range defaults {
			out[ei] = strings.Join(parts, " && ")
		}
	}
	return out
}

func caseMatch(ctl, label string) string {
	label = strings.TrimSpace(label)
	if lo, hi, ok := strings.Cut(label, "..."); ok {
		return fmt.Sprintf("%s >= (%s) && %s <= (%s)", ctl, strings.TrimSpace(lo), ctl, strings.TrimSpace(hi))
	}
	return fmt.Sprintf("%s == (%s)", ctl, label)
}
