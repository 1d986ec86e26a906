// Package callgraph builds caller/callee graphs over C function definitions,
// enumerates call paths and detects recursion.
package callgraph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/l3aro/c-testforge/pkg/types"
)

// DefaultMaxDepth bounds graph construction and cycle detection when no
// limit is configured.
const DefaultMaxDepth = 32

// ErrUnknownFunction is returned when the root has no definition.
var ErrUnknownFunction = errors.New("function not defined")

// Node is a function in a call graph.
type Node struct {
	Name  string `json:"name"`
	Depth int    `json:"depth"`
	// External functions are called but not defined in the analyzed code.
	External bool   `json:"external,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// Edge is a call from Caller to Callee.
type Edge struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
	Line   int    `json:"line"`
	// Approximate is set when Line is the caller's declaration line
	// because the call site is unknown.
	Approximate bool `json:"approximate,omitempty"`
}

// Graph is the call graph reachable from Root.
type Graph struct {
	Root  string `json:"root"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	// Truncated is set when MaxDepth stopped the expansion.
	Truncated bool `json:"truncated,omitempty"`

	index map[string]int
	out   map[string][]string
}

// Node returns the node named name.
func (g *Graph) Node(name string) (Node, bool) {
	i, ok := g.index[name]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// Callees returns the distinct functions name calls, in call order.
func (g *Graph) Callees(name string) []string {
	return g.out[name]
}

// Adjacency returns the distinct callees of every node.
func (g *Graph) Adjacency() map[string][]string {
	adj := make(map[string][]string, len(g.Nodes))
	for _, n := range g.Nodes {
		adj[n.Name] = append([]string(nil), g.out[n.Name]...)
	}
	return adj
}

func (g *Graph) addNode(n Node) {
	g.index[n.Name] = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
}

func (g *Graph) addEdge(e Edge) {
	g.Edges = append(g.Edges, e)
	if !slices.Contains(g.out[e.Caller], e.Callee) {
		g.out[e.Caller] = append(g.out[e.Caller], e.Callee)
	}
}

// Build constructs the call graph rooted at root with a breadth-first
// worklist. Nodes are expanded once, and nodes at maxDepth are kept without
// their callees (DefaultMaxDepth when maxDepth <= 0). Self-calls are kept
// as edges.
func Build(root string, functions []types.Function, maxDepth int) (*Graph, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	defs := definitions(functions)
	if _, ok := defs[root]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, root)
	}

	g := &Graph{Root: root, index: make(map[string]int), out: make(map[string][]string)}
	rootFn := defs[root]
	g.addNode(Node{Name: root, File: rootFn.File, Line: rootFn.StartLine})

	queue := []string{root}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		node, _ := g.Node(name)
		if node.External {
			continue
		}
		if node.Depth >= maxDepth {
			if len(calls(defs[name])) > 0 {
				g.Truncated = true
			}
			continue
		}

		for _, e := range calls(defs[name]) {
			g.addEdge(e)
			if _, seen := g.index[e.Callee]; seen {
				continue
			}
			callee := Node{Name: e.Callee, Depth: node.Depth + 1}
			if fn, ok := defs[e.Callee]; ok {
				callee.File, callee.Line = fn.File, fn.StartLine
			} else {
				callee.External = true
			}
			g.addNode(callee)
			queue = append(queue, e.Callee)
		}
	}
	return g, nil
}

// definitions indexes functions by name. The first definition of a name
// wins.
func definitions(functions []types.Function) map[string]*types.Function {
	defs := make(map[string]*types.Function, len(functions))
	for i := range functions {
		if _, dup := defs[functions[i].Name]; !dup {
			defs[functions[i].Name] = &functions[i]
		}
	}
	return defs
}

// calls lists the calls made by fn. Recorded call sites come first with
// their exact lines; called names without a site fall back to the
// declaration line.
func calls(fn *types.Function) []Edge {
	if fn == nil {
		return nil
	}
	var out []Edge
	sited := make(map[string]bool)
	seen := make(map[Edge]bool)
	for _, cs := range fn.CallSites {
		e := Edge{Caller: fn.Name, Callee: cs.Callee, Line: cs.Line}
		sited[cs.Callee] = true
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	for _, name := range fn.CalledFunctions {
		if sited[name] {
			continue
		}
		sited[name] = true
		out = append(out, Edge{Caller: fn.Name, Callee: name, Line: fn.StartLine, Approximate: true})
	}
	return out
}

// Callees returns the distinct functions name calls, in call order.
func Callees(functions []types.Function, name string) []string {
	return distinctCallees(definitions(functions)[name])
}

func distinctCallees(fn *types.Function) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range calls(fn) {
		if !seen[e.Callee] {
			seen[e.Callee] = true
			out = append(out, e.Callee)
		}
	}
	return out
}

// Callers returns the functions that call name, in definition order.
func Callers(functions []types.Function, name string) []string {
	var out []string
	seen := make(map[string]bool)
	for i := range functions {
		fn := &functions[i]
		if seen[fn.Name] {
			continue
		}
		for _, e := range calls(fn) {
			if e.Callee == name {
				seen[fn.Name] = true
				out = append(out, fn.Name)
				break
			}
		}
	}
	return out
}

// ProjectAdjacency returns the caller-to-callees map of every defined
// function. Called functions without a definition appear only as callees.
func ProjectAdjacency(functions []types.Function) map[string][]string {
	adj := make(map[string][]string, len(functions))
	for name, fn := range definitions(functions) {
		adj[name] = distinctCallees(fn)
	}
	return adj
}
