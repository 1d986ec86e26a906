package callgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/c-testforge/pkg/types"
)

func fn(name string, line int, sites ...types.CallSite) types.Function {
	f := types.Function{Name: name, StartLine: line, File: "app.c"}
	for _, s := range sites {
		f.CallSites = append(f.CallSites, s)
		f.CalledFunctions = append(f.CalledFunctions, s.Callee)
	}
	return f
}

func site(callee string, line int) types.CallSite {
	return types.CallSite{Callee: callee, Line: line}
}

// main -> parse -> lex
//      -> run   -> parse
//               -> printf (external)
var program = []types.Function{
	fn("main", 1, site("parse", 2), site("run", 3)),
	fn("parse", 10, site("lex", 11)),
	fn("lex", 20),
	fn("run", 30, site("parse", 31), site("printf", 32), site("parse", 33)),
}

func TestBuild(t *testing.T) {
	g, err := Build("main", program, 0)
	require.NoError(t, err)

	var names []string
	depths := map[string]int{}
	for _, n := range g.Nodes {
		names = append(names, n.Name)
		depths[n.Name] = n.Depth
	}
	assert.Equal(t, []string{"main", "parse", "run", "lex", "printf"}, names)
	assert.Equal(t, map[string]int{"main": 0, "parse": 1, "run": 1, "lex": 2, "printf": 2}, depths)

	printf, ok := g.Node("printf")
	require.True(t, ok)
	assert.True(t, printf.External)

	assert.Equal(t, []string{"parse", "printf"}, g.Callees("run"))
	assert.Contains(t, g.Edges, Edge{Caller: "run", Callee: "parse", Line: 33})
	assert.False(t, g.Truncated)

	_, err = Build("missing", program, 0)
	assert.ErrorIs(t, err, ErrUnknownFunction)
}

func TestBuildApproximateLines(t *testing.T) {
	funcs := []types.Function{
		{Name: "a", StartLine: 5, CalledFunctions: []string{"b"}},
		{Name: "b", StartLine: 9},
	}
	g, err := Build("a", funcs, 0)
	require.NoError(t, err)
	assert.Equal(t, []Edge{{Caller: "a", Callee: "b", Line: 5, Approximate: true}}, g.Edges)
}

func TestBuildDepthLimit(t *testing.T) {
	g, err := Build("main", program, 1)
	require.NoError(t, err)
	assert.True(t, g.Truncated)
	_, ok := g.Node("lex")
	assert.False(t, ok)
}

func TestBuildKeepsSelfLoops(t *testing.T) {
	funcs := []types.Function{fn("fact", 1, site("fact", 3))}
	g, err := Build("fact", funcs, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"fact"}, g.Callees("fact"))
	assert.Len(t, g.Nodes, 1)
}

func TestFindCallPaths(t *testing.T) {
	g, err := Build("main", program, 0)
	require.NoError(t, err)

	paths, truncated := FindCallPaths(g, "main", 0)
	assert.False(t, truncated)
	var got []string
	for _, p := range paths {
		got = append(got, p.String())
	}
	// parse and lex appear on sibling paths.
	assert.Equal(t, []string{
		"main -> parse -> lex",
		"main -> run -> parse -> lex",
		"main -> run -> printf",
	}, got)

	limited, truncated := FindCallPaths(g, "main", 2)
	assert.Len(t, limited, 2)
	assert.True(t, truncated)

	none, _ := FindCallPaths(g, "nobody", 0)
	assert.Empty(t, none)
}

func TestFindCallPathsStopsAtCycles(t *testing.T) {
	funcs := []types.Function{
		fn("a", 1, site("b", 2)),
		fn("b", 5, site("a", 6), site("c", 7)),
		fn("c", 9),
	}
	g, err := Build("a", funcs, 0)
	require.NoError(t, err)

	paths, _ := FindCallPaths(g, "a", 0)
	require.Len(t, paths, 2)
	assert.Equal(t, CallPath{Functions: []string{"a", "b", "a"}, Cyclic: true}, paths[0])
	assert.Equal(t, CallPath{Functions: []string{"a", "b", "c"}}, paths[1])
}

func TestDetectCycles(t *testing.T) {
	tests := []struct {
		name string
		adj  map[string][]string
		want []Cycle
	}{
		{
			name: "mutual",
			adj:  map[string][]string{"A": {"B"}, "B": {"A"}},
			want: []Cycle{{Path: []string{"A", "B"}, Kind: MutualRecursion}},
		},
		{
			name: "self",
			adj:  map[string][]string{"fact": {"fact", "printf"}},
			want: []Cycle{{Path: []string{"fact"}, Kind: SelfRecursion}},
		},
		{
			name: "three way reported once",
			adj:  map[string][]string{"A": {"B"}, "B": {"C"}, "C": {"A"}, "D": {"B"}},
			want: []Cycle{{Path: []string{"A", "B", "C"}, Kind: MutualRecursion}},
		},
		{
			name: "acyclic",
			adj:  map[string][]string{"main": {"run"}, "run": {"lex"}, "lex": nil},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectCycles(tt.adj, 0)
			assert.Equal(t, tt.want, got.Cycles)
			assert.Empty(t, got.DepthExceeded)
		})
	}
}

func TestDetectCyclesDepthLimit(t *testing.T) {
	adj := map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"d"}, "d": nil}
	got := DetectCycles(adj, 2)
	assert.Empty(t, got.Cycles)
	assert.Equal(t, []string{"b"}, got.DepthExceeded)
}

func TestProjectQueries(t *testing.T) {
	assert.Equal(t, []string{"parse", "run"}, Callees(program, "main"))
	assert.Equal(t, []string{"main", "run"}, Callers(program, "parse"))
	assert.Empty(t, Callers(program, "main"))

	adj := ProjectAdjacency(program)
	assert.Len(t, adj, 4)
	assert.Equal(t, []string{"parse", "printf"}, adj["run"])
	assert.Empty(t, adj["lex"])

	report := DetectCycles(adj, 0)
	assert.Empty(t, report.Cycles)
}
