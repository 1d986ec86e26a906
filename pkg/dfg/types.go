// Package dfg builds per-variable def/use graphs over C function bodies.
// It provides the linear def-use chains of a variable, a flow-sensitive
// refinement over a control-flow graph, and propagation queries.
package dfg

import (
	"slices"
	"sort"
)

// NodeKind is the role of an occurrence of the variable.
type NodeKind string

const (
	KindAssignment NodeKind = "assignment" // var = expr, or a declaration with an initializer
	KindReadWrite  NodeKind = "read_write" // ++, --, compound assignment, element write
	KindRead       NodeKind = "read"       // any other occurrence
)

// Defines reports whether occurrences of kind k make a new definition.
func (k NodeKind) Defines() bool {
	return k == KindAssignment || k == KindReadWrite
}

// Reads reports whether occurrences of kind k read the current value.
func (k NodeKind) Reads() bool {
	return k == KindRead || k == KindReadWrite
}

// Node is one occurrence of the variable.
type Node struct {
	ID     int      `json:"id"`
	Kind   NodeKind `json:"kind"`
	Line   int      `json:"line"`
	Column int      `json:"column"`
	Text   string   `json:"text"` // Trimmed source line
	// Uses are the identifiers read by the right-hand side of an
	// assignment.
	Uses []string `json:"uses,omitempty"`
	// Implicit marks the entry definition of a parameter.
	Implicit bool `json:"implicit,omitempty"`

	stmt int // statement index, -1 for implicit definitions
}

// Edge links a definition to an occurrence that reads it.
type Edge struct {
	From     int    `json:"from"`
	To       int    `json:"to"`
	Variable string `json:"variable"`
}

// DataFlowGraph is the def/use graph of one variable inside one function.
// Nodes are in source order.
type DataFlowGraph struct {
	Variable string `json:"variable"`
	Function string `json:"function"`
	Nodes    []Node `json:"nodes"`
	Edges    []Edge `json:"edges"`
}

// Node returns the node with the given id, or nil.
func (g *DataFlowGraph) Node(id int) *Node {
	if id < 0 || id >= len(g.Nodes) {
		return nil
	}
	return &g.Nodes[id]
}

// Definitions returns the nodes that define the variable.
func (g *DataFlowGraph) Definitions() []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.Kind.Defines() {
			out = append(out, n)
		}
	}
	return out
}

// Uses returns the nodes reached by the definition def.
func (g *DataFlowGraph) Uses(def int) []Node {
	var out []Node
	for _, e := range g.Edges {
		if e.From == def {
			out = append(out, g.Nodes[e.To])
		}
	}
	return out
}

// ReachingDefinitions returns the definitions that reach the node use.
func (g *DataFlowGraph) ReachingDefinitions(use int) []Node {
	var out []Node
	for _, e := range g.Edges {
		if e.To == use {
			out = append(out, g.Nodes[e.From])
		}
	}
	return out
}

// NodesAt returns the nodes on line.
func (g *DataFlowGraph) NodesAt(line int) []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.Line == line {
			out = append(out, n)
		}
	}
	return out
}

// sortEdges orders edges by source then target and drops duplicates.
func sortEdges(edges []Edge) []Edge {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return slices.Compact(edges)
}
