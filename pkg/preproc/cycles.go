package preproc

import (
	"sort"
	"strings"

	"github.com/l3aro/c-testforge/pkg/types"
)

// Cycle is a circular dependency between definitions, listed in dependency
// order starting at the definition that was revisited.
type Cycle struct {
	Path []string `json:"path"`
}

// String renders the cycle as A -> B -> C -> A.
func (c Cycle) String() string {
	if len(c.Path) == 0 {
		return ""
	}
	return strings.Join(append(append([]string{}, c.Path...), c.Path[0]), " -> ")
}

// CycleReport is the outcome of a cycle search. DepthExceeded lists the
// definitions whose dependency chains were cut at the depth bound.
type CycleReport struct {
	Cycles        []Cycle  `json:"cycles"`
	DepthExceeded []string `json:"depth_exceeded,omitempty"`
}

// DetectCycles searches the definition dependency graph for circular
// dependencies. The walk uses an explicit stack, so deep chains end in a
// DepthExceeded finding rather than exhausting the goroutine stack.
func DetectCycles(defs []types.Definition, maxDepth int) CycleReport {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return detectCycles(DependencyGraph(defs), maxDepth)
}

type dfsFrame struct {
	node string
	next int
}

func detectCycles(graph map[string][]string, maxDepth int) CycleReport {
	var report CycleReport
	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	done := make(map[string]bool, len(graph))
	seenCycle := make(map[string]bool)
	seenDepth := make(map[string]bool)

	for _, start := range names {
		if done[start] {
			continue
		}
		stack := []dfsFrame{{node: start}}
		onStack := map[string]int{start: 0}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := graph[top.node]
			if top.next >= len(deps) {
				done[top.node] = true
				delete(onStack, top.node)
				stack = stack[:len(stack)-1]
				continue
			}
			child := deps[top.next]
			top.next++

			if idx, ok := onStack[child]; ok {
				path := make([]string, 0, len(stack)-idx)
				for _, f := range stack[idx:] {
					path = append(path, f.node)
				}
				key := canonicalCycle(path)
				if !seenCycle[key] {
					seenCycle[key] = true
					report.Cycles = append(report.Cycles, Cycle{Path: path})
				}
				continue
			}
			if done[child] {
				continue
			}
			if _, known := graph[child]; !known {
				continue
			}
			if len(stack) >= maxDepth {
				if !seenDepth[top.node] {
					seenDepth[top.node] = true
					report.DepthExceeded = append(report.DepthExceeded, top.node)
				}
				continue
			}
			onStack[child] = len(stack)
			stack = append(stack, dfsFrame{node: child})
		}
	}
	return report
}

// canonicalCycle rotates path so its smallest name comes first.
func canonicalCycle(path []string) string {
	first := 0
	for i, n := range path {
		if n < path[first] {
			first = i
		}
	}
	rotated := append(append([]string{}, path[first:]...), path[:first]...)
	return strings.Join(rotated, "\x00")
}
