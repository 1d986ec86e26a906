package coverage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/l3aro/c-testforge/pkg/cfg"
	"github.com/l3aro/c-testforge/pkg/types"
)

// Result is the coverage a set of test cases achieves on one function.
// Each ratio is computed over its own inventory, and a dimension with
// nothing to cover counts as fully covered.
type Result struct {
	Function          string   `json:"function"`
	CoveredLines      []int    `json:"covered_lines"`
	UncoveredLines    []int    `json:"uncovered_lines"`
	CoveredBranches   []string `json:"covered_branches"`
	UncoveredBranches []string `json:"uncovered_branches"`
	CoveredPaths      []string `json:"covered_paths"`
	UncoveredPaths    []string `json:"uncovered_paths"`
	LineRatio         float64  `json:"line_ratio"`
	BranchRatio       float64  `json:"branch_ratio"`
	PathRatio         float64  `json:"path_ratio"`
	// Partial lists the tests whose traces stopped early.
	Partial []string `json:"partial,omitempty"`
	// Traces are keyed by test ID, falling back to the name.
	Traces map[string]Trace `json:"traces,omitempty"`
}

// Summary returns the ratio view of r.
func (r *Result) Summary() *types.CoverageSummary {
	return &types.CoverageSummary{Lines: r.LineRatio, Branches: r.BranchRatio, Paths: r.PathRatio}
}

// Covers reports whether target, a branch ID, a path ID or "L<line>", was
// hit.
func (r *Result) Covers(target string) bool {
	if slices.Contains(r.CoveredBranches, target) || slices.Contains(r.CoveredPaths, target) {
		return true
	}
	if len(target) > 1 && target[0] == 'L' {
		if line, err := strconv.Atoi(target[1:]); err == nil {
			return slices.Contains(r.CoveredLines, line)
		}
	}
	return false
}

// AtLeast reports whether no ratio of r is below the same ratio of other.
func (r *Result) AtLeast(other *Result) bool {
	if other == nil {
		return true
	}
	return r.LineRatio >= other.LineRatio && r.BranchRatio >= other.BranchRatio && r.PathRatio >= other.PathRatio
}

func testKey(tc *types.TestCase, i int) string {
	switch {
	case tc.ID != "":
		return tc.ID
	case tc.Name != "":
		return tc.Name
	}
	return fmt.Sprintf("#%d", i)
}

// Measure traces every test through fa with m and unions what they hit.
// Hit sets only grow as tests are added.
func Measure(ctx context.Context, fa *cfg.FunctionAnalysis, tests []types.TestCase, m Mapper) (*Result, error) {
	res := &Result{Function: fa.Function, Traces: make(map[string]Trace, len(tests))}
	lines := make(map[int]bool)
	branches := make(map[string]bool)
	paths := make(map[string]bool)

	for i := range tests {
		tr, err := m.Trace(ctx, fa, &tests[i])
		if err != nil {
			return nil, fmt.Errorf("tracing %s: %w", testKey(&tests[i], i), err)
		}
		key := testKey(&tests[i], i)
		res.Traces[key] = tr
		if tr.Partial {
			res.Partial = append(res.Partial, key)
		}
		for _, l := range tr.Lines {
			lines[l] = true
		}
		for _, b := range tr.Branches {
			branches[b] = true
		}
		if tr.Path != "" {
			paths[tr.Path] = true
		}
	}

	var allLines []int
	if fa.Graph != nil {
		allLines = fa.Graph.Lines()
		sort.Ints(allLines)
	}
	for _, l := range allLines {
		if lines[l] {
			res.CoveredLines = append(res.CoveredLines, l)
		} else {
			res.UncoveredLines = append(res.UncoveredLines, l)
		}
	}
	for _, b := range fa.Branches {
		if branches[b.ID] {
			res.CoveredBranches = append(res.CoveredBranches, b.ID)
		} else {
			res.UncoveredBranches = append(res.UncoveredBranches, b.ID)
		}
	}
	for _, p := range fa.Paths {
		if paths[p.ID] {
			res.CoveredPaths = append(res.CoveredPaths, p.ID)
		} else {
			res.UncoveredPaths = append(res.UncoveredPaths, p.ID)
		}
	}

	res.LineRatio = ratio(len(res.CoveredLines), len(allLines))
	res.BranchRatio = ratio(len(res.CoveredBranches), len(fa.Branches))
	res.PathRatio = ratio(len(res.CoveredPaths), len(fa.Paths))
	return res, nil
}

func ratio(covered, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(covered) / float64(total)
}
