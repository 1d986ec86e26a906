package dfg

import (
	"container/list"

	"github.com/l3aro/c-testforge/pkg/cfg"
)

// ReachingDefsAnalyzer refines the def-use edges of a DataFlowGraph with a
// reaching-definitions pass over the function's control-flow graph, so a
// definition in one branch no longer reaches reads in the other.
type ReachingDefsAnalyzer struct {
	// nodeOf maps a data-flow node to the CFG node containing its line
	nodeOf map[int]int
	// gen is the last definition made by each CFG node
	gen map[int]int
}

// NewReachingDefsAnalyzer creates a new ReachingDefsAnalyzer.
func NewReachingDefsAnalyzer() *ReachingDefsAnalyzer {
	return &ReachingDefsAnalyzer{}
}

// Refine returns a copy of g whose edges link each read to the definitions
// that reach it along some CFG path. A line is attributed to the first CFG
// node listing it, so occurrences that share a line with several nodes
// (a for header) are approximated. Occurrences outside the graph keep no
// edges.
func (r *ReachingDefsAnalyzer) Refine(g *DataFlowGraph, flow *cfg.ControlFlowGraph) *DataFlowGraph {
	out := &DataFlowGraph{
		Variable: g.Variable,
		Function: g.Function,
		Nodes:    append([]Node(nil), g.Nodes...),
	}
	if flow == nil || len(flow.Nodes) == 0 {
		out.Edges = append([]Edge(nil), g.Edges...)
		return out
	}

	r.initialize(g, flow)
	in := r.solve(flow)
	out.Edges = r.buildDefUseChains(g, in)
	return out
}

// initialize places every occurrence in a CFG node and records the
// definition each node generates. Implicit definitions sit on the entry.
func (r *ReachingDefsAnalyzer) initialize(g *DataFlowGraph, flow *cfg.ControlFlowGraph) {
	r.nodeOf = make(map[int]int, len(g.Nodes))
	r.gen = make(map[int]int)

	byLine := make(map[int]int)
	for _, n := range flow.Nodes {
		for _, l := range n.Lines {
			if _, seen := byLine[l]; !seen {
				byLine[l] = n.ID
			}
		}
	}
	for _, n := range g.Nodes {
		block, ok := byLine[n.Line]
		if n.Implicit {
			block, ok = flow.Entry, true
		}
		if !ok {
			continue
		}
		r.nodeOf[n.ID] = block
		if n.Kind.Defines() {
			r.gen[block] = n.ID
		}
	}
}

// solve runs the forward worklist to a fixed point and returns the
// definitions reaching the start of each CFG node. Every definition is of
// the same variable, so a node that defines it kills all others.
func (r *ReachingDefsAnalyzer) solve(flow *cfg.ControlFlowGraph) map[int]map[int]struct{} {
	preds := make(map[int][]int, len(flow.Nodes))
	for _, e := range flow.Edges {
		preds[e.To] = append(preds[e.To], e.From)
	}

	in := make(map[int]map[int]struct{}, len(flow.Nodes))
	out := make(map[int]map[int]struct{}, len(flow.Nodes))
	worklist := list.New()
	for _, n := range flow.Nodes {
		in[n.ID] = make(map[int]struct{})
		out[n.ID] = make(map[int]struct{})
		worklist.PushBack(n.ID)
	}

	for worklist.Len() > 0 {
		id := worklist.Remove(worklist.Front()).(int)

		reaching := make(map[int]struct{})
		for _, p := range preds[id] {
			for d := range out[p] {
				reaching[d] = struct{}{}
			}
		}
		in[id] = reaching

		next := reaching
		if def, ok := r.gen[id]; ok {
			next = map[int]struct{}{def: {}}
		}
		if setsEqual(out[id], next) {
			continue
		}
		out[id] = next
		for _, ei := range flow.Outgoing(id) {
			worklist.PushBack(flow.Edges[ei].To)
		}
	}
	return in
}

// buildDefUseChains links each read to the latest earlier definition in
// its own CFG node, or to every definition reaching the node's start.
func (r *ReachingDefsAnalyzer) buildDefUseChains(g *DataFlowGraph, in map[int]map[int]struct{}) []Edge {
	var edges []Edge
	for _, n := range g.Nodes {
		if !n.Kind.Reads() {
			continue
		}
		block, ok := r.nodeOf[n.ID]
		if !ok {
			continue
		}
		local := -1
		for _, d := range g.Nodes[:n.ID] {
			if d.Kind.Defines() && d.stmt < n.stmt && r.placed(d.ID, block) {
				local = d.ID
			}
		}
		if local >= 0 {
			edges = append(edges, Edge{From: local, To: n.ID, Variable: g.Variable})
			continue
		}
		for d := range in[block] {
			edges = append(edges, Edge{From: d, To: n.ID, Variable: g.Variable})
		}
	}
	return sortEdges(edges)
}

func (r *ReachingDefsAnalyzer) placed(id, block int) bool {
	b, ok := r.nodeOf[id]
	return ok && b == block
}

func setsEqual(a, b map[int]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
