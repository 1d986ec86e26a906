// Package cfg builds control-flow graphs and structural metrics for C
// function bodies.
package cfg

import (
	"errors"
	"fmt"
)

// NodeType is the role of a CFG node.
type NodeType string

const (
	NodeEntry       NodeType = "entry"        // Function entry point
	NodeStatement   NodeType = "statement"    // Straight-line statements
	NodeCondition   NodeType = "condition"    // if condition
	NodeThenBranch  NodeType = "then_branch"  // Start of the taken arm
	NodeElseBranch  NodeType = "else_branch"  // Start of the else arm
	NodeLoopHead    NodeType = "loop_head"    // for/while condition
	NodeDoHead      NodeType = "do_head"      // Start of a do...while body
	NodeDoCondition NodeType = "do_condition" // Trailing do...while condition
	NodeSwitch      NodeType = "switch"       // switch controlling expression
	NodeSwitchBody  NodeType = "switch_body"  // All cases, collapsed
	NodeReturn      NodeType = "return"       // return statement
	NodeExit        NodeType = "exit"         // Synthesized function exit
)

// Terminal reports whether paths end at nodes of type t.
func (t NodeType) Terminal() bool {
	return t == NodeReturn || t == NodeExit
}

// Decision reports whether nodes of type t evaluate a branch condition.
func (t NodeType) Decision() bool {
	return t == NodeCondition || t == NodeLoopHead || t == NodeDoCondition
}

// EdgeType labels a CFG edge.
type EdgeType string

const (
	EdgeSequential EdgeType = "sequential" // Fall-through
	EdgeTrue       EdgeType = "true"       // Condition held
	EdgeFalse      EdgeType = "false"      // Condition failed
	EdgeLoop       EdgeType = "loop"       // Back to a loop head
	EdgeSwitch     EdgeType = "switch"     // Into or out of a switch body
)

// Node is a vertex of the graph.
type Node struct {
	ID         int      `json:"id"`
	Type       NodeType `json:"type"`
	Line       int      `json:"line"`
	EndLine    int      `json:"end_line"`
	Statements []string `json:"statements,omitempty"`
	Condition  string   `json:"condition,omitempty"`
	// Lines are the source lines whose statements this node executes.
	Lines []int `json:"lines,omitempty"`
}

// Edge is a directed edge between two nodes.
type Edge struct {
	From      int      `json:"from"`
	To        int      `json:"to"`
	Type      EdgeType `json:"type"`
	Condition string   `json:"condition,omitempty"` // Guarding condition for true/false/loop edges
}

// ControlFlowGraph is the graph of one function.
type ControlFlowGraph struct {
	Function string `json:"function"`
	Nodes    []Node `json:"nodes"`
	Edges    []Edge `json:"edges"`
	Entry    int    `json:"entry"`
	Exit     int    `json:"exit"` // -1 when every path returns
	// UnreachableLines are statement lines after a return, break or
	// continue in the same block.
	UnreachableLines []int `json:"unreachable_lines,omitempty"`

	out [][]int
}

// Node returns the node with the given id, or nil.
func (g *ControlFlowGraph) Node(id int) *Node {
	if id < 0 || id >= len(g.Nodes) {
		return nil
	}
	return &g.Nodes[id]
}

// Outgoing returns the indexes into Edges of the edges leaving id.
func (g *ControlFlowGraph) Outgoing(id int) []int {
	if id < 0 || id >= len(g.Nodes) {
		return nil
	}
	if len(g.out) == len(g.Nodes) {
		return g.out[id]
	}
	var out []int
	for i, e := range g.Edges {
		if e.From == id {
			out = append(out, i)
		}
	}
	return out
}

// adjacency returns the outgoing edge indexes of every node.
func (g *ControlFlowGraph) adjacency() [][]int {
	out := make([][]int, len(g.Nodes))
	for i, e := range g.Edges {
		if e.From >= 0 && e.From < len(g.Nodes) {
			out[e.From] = append(out[e.From], i)
		}
	}
	return out
}

// Lines returns every statement line of the graph in node order.
func (g *ControlFlowGraph) Lines() []int {
	var out []int
	seen := make(map[int]bool)
	for _, n := range g.Nodes {
		for _, l := range n.Lines {
			if !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
	}
	return out
}

// ErrInvalidGraph is wrapped by every Validate failure.
var ErrInvalidGraph = errors.New("invalid control-flow graph")

// Validate checks that g is closed: one entry, every non-terminal node has
// a successor, only return and exit nodes are terminal, and every node is
// reachable from the entry.
func (g *ControlFlowGraph) Validate() error {
	entries := 0
	for _, n := range g.Nodes {
		if n.Type == NodeEntry {
			entries++
		}
	}
	if entries != 1 {
		return fmt.Errorf("%w: %d entry nodes", ErrInvalidGraph, entries)
	}
	if g.Node(g.Entry) == nil || g.Nodes[g.Entry].Type != NodeEntry {
		return fmt.Errorf("%w: entry %d is not an entry node", ErrInvalidGraph, g.Entry)
	}

	adj := g.adjacency()
	for _, n := range g.Nodes {
		out := len(adj[n.ID])
		switch {
		case n.Type.Terminal() && out > 0:
			return fmt.Errorf("%w: terminal node %d has %d successors", ErrInvalidGraph, n.ID, out)
		case !n.Type.Terminal() && out == 0:
			return fmt.Errorf("%w: %s node %d at line %d has no successor", ErrInvalidGraph, n.Type, n.ID, n.Line)
		}
	}

	reached := make([]bool, len(g.Nodes))
	stack := []int{g.Entry}
	reached[g.Entry] = true
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, ei := range adj[id] {
			to := g.Edges[ei].To
			if to < 0 || to >= len(g.Nodes) {
				return fmt.Errorf("%w: edge %d targets unknown node %d", ErrInvalidGraph, ei, to)
			}
			if !reached[to] {
				reached[to] = true
				stack = append(stack, to)
			}
		}
	}
	for id, ok := range reached {
		if !ok {
			return fmt.Errorf("%w: node %d is unreachable", ErrInvalidGraph, id)
		}
	}
	return nil
}
