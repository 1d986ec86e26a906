package callgraph

import (
	"sort"
	"strings"
)

// DefaultMaxPaths bounds FindCallPaths when no limit is configured.
const DefaultMaxPaths = 256

// CallPath is a chain of calls from the root.
type CallPath struct {
	Functions []string `json:"functions"`
	// Cyclic is set when the path ends by calling a function already on
	// it. That function is the last element.
	Cyclic bool `json:"cyclic,omitempty"`
}

func (p CallPath) String() string {
	return strings.Join(p.Functions, " -> ")
}

// FindCallPaths enumerates the call paths from root to every leaf with an
// explicit-stack depth-first walk. The visited set is per path, so a
// function may appear on sibling paths. It stops after maxPaths paths
// (DefaultMaxPaths when maxPaths <= 0) and reports whether it did.
func FindCallPaths(g *Graph, root string, maxPaths int) ([]CallPath, bool) {
	if maxPaths <= 0 {
		maxPaths = DefaultMaxPaths
	}
	if _, ok := g.Node(root); !ok {
		return nil, false
	}

	type frame struct {
		name string
		next int
	}
	var paths []CallPath
	stack := []frame{{name: root}}
	onPath := map[string]bool{root: true}
	names := func() []string {
		out := make([]string, len(stack))
		for i, f := range stack {
			out[i] = f.name
		}
		return out
	}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		callees := g.Callees(top.name)
		if len(callees) == 0 {
			if len(paths) == maxPaths {
				return paths, true
			}
			paths = append(paths, CallPath{Functions: names()})
		}
		if top.next >= len(callees) {
			delete(onPath, top.name)
			stack = stack[:len(stack)-1]
			continue
		}
		callee := callees[top.next]
		top.next++
		if onPath[callee] {
			if len(paths) == maxPaths {
				return paths, true
			}
			paths = append(paths, CallPath{Functions: append(names(), callee), Cyclic: true})
			continue
		}
		onPath[callee] = true
		stack = append(stack, frame{name: callee})
	}
	return paths, false
}

// CycleKind classifies a recursion.
type CycleKind string

const (
	SelfRecursion   CycleKind = "self"
	MutualRecursion CycleKind = "mutual"
)

// Cycle is a recursion, ordered from the function the walk revisited.
type Cycle struct {
	Path []string  `json:"path"`
	Kind CycleKind `json:"kind"`
}

func (c Cycle) String() string {
	if len(c.Path) == 0 {
		return ""
	}
	return strings.Join(append(append([]string{}, c.Path...), c.Path[0]), " -> ")
}

// CycleReport is the result of DetectCycles.
type CycleReport struct {
	Cycles []Cycle `json:"cycles"`
	// DepthExceeded lists functions whose callees were not explored
	// because the walk was already maxDepth deep.
	DepthExceeded []string `json:"depth_exceeded,omitempty"`
}

// DetectCycles finds recursion in adjacency with a depth-first walk that
// tracks the functions on the current stack. Each cycle is reported once,
// however many of its rotations the walk meets.
func DetectCycles(adjacency map[string][]string, maxDepth int) CycleReport {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	names := make([]string, 0, len(adjacency))
	for name := range adjacency {
		names = append(names, name)
	}
	sort.Strings(names)

	type frame struct {
		name string
		next int
	}
	var report CycleReport
	done := make(map[string]bool, len(adjacency))
	seenCycle := make(map[string]bool)
	seenDepth := make(map[string]bool)

	for _, start := range names {
		if done[start] {
			continue
		}
		stack := []frame{{name: start}}
		onStack := map[string]int{start: 0}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			callees := adjacency[top.name]
			if top.next >= len(callees) {
				done[top.name] = true
				delete(onStack, top.name)
				stack = stack[:len(stack)-1]
				continue
			}
			callee := callees[top.next]
			top.next++

			if idx, ok := onStack[callee]; ok {
				path := make([]string, 0, len(stack)-idx)
				for _, f := range stack[idx:] {
					path = append(path, f.name)
				}
				if key := rotationKey(path); !seenCycle[key] {
					seenCycle[key] = true
					kind := MutualRecursion
					if len(path) == 1 {
						kind = SelfRecursion
					}
					report.Cycles = append(report.Cycles, Cycle{Path: path, Kind: kind})
				}
				continue
			}
			if done[callee] {
				continue
			}
			if _, defined := adjacency[callee]; !defined {
				continue
			}
			if len(stack) >= maxDepth {
				if !seenDepth[top.name] {
					seenDepth[top.name] = true
					report.DepthExceeded = append(report.DepthExceeded, top.name)
				}
				continue
			}
			onStack[callee] = len(stack)
			stack = append(stack, frame{name: callee})
		}
	}
	return report
}

// rotationKey identifies a cycle independently of where the walk entered
// it.
func rotationKey(path []string) string {
	first := 0
	for i, n := range path {
		if n < path[first] {
			first = i
		}
	}
	rotated := append(append([]string{}, path[first:]...), path[:first]...)
	return strings.Join(rotated, "\x00")
}
