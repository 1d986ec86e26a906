package dfg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/c-testforge/pkg/cfg"
	"github.com/l3aro/c-testforge/pkg/types"
)

var chainSource = []string{
	"int f(int x) {",
	"    int y = x + 1;",
	"    x = y * 2;",
	"    y = x;",
	"    x++;",
	"    return x + y;",
	"}",
}

var chainFn = &types.Function{
	Name:       "f",
	StartLine:  1,
	Parameters: []types.Parameter{{Name: "x", TypeName: "int"}},
}

func kinds(g *DataFlowGraph) []NodeKind {
	var out []NodeKind
	for _, n := range g.Nodes {
		out = append(out, n.Kind)
	}
	return out
}

func TestBuildChain(t *testing.T) {
	g, err := Build("x", chainFn, chainSource, 1)
	require.NoError(t, err)

	assert.Equal(t, []NodeKind{KindAssignment, KindRead, KindAssignment, KindRead, KindReadWrite, KindRead}, kinds(g))
	assert.True(t, g.Nodes[0].Implicit)
	assert.Equal(t, "int x", g.Nodes[0].Text)
	assert.Equal(t, []string{"y"}, g.Nodes[2].Uses)
	assert.Equal(t, "x = y * 2;", g.Nodes[2].Text)

	// The definition on line 3 does not reach past the increment on line 5.
	assert.Equal(t, []Edge{
		{From: 0, To: 1, Variable: "x"},
		{From: 2, To: 3, Variable: "x"},
		{From: 2, To: 4, Variable: "x"},
		{From: 4, To: 5, Variable: "x"},
	}, g.Edges)

	assert.Len(t, g.Definitions(), 3)
	assert.Len(t, g.Uses(2), 2)
	assert.Equal(t, 2, g.ReachingDefinitions(4)[0].ID)
	assert.Len(t, g.NodesAt(6), 1)
}

func TestBuildLocalVariable(t *testing.T) {
	g, err := Build("y", chainFn, chainSource, 1)
	require.NoError(t, err)

	assert.Equal(t, []NodeKind{KindAssignment, KindRead, KindAssignment, KindRead}, kinds(g))
	assert.Equal(t, []string{"x"}, g.Nodes[0].Uses)
	assert.Equal(t, []Edge{{From: 0, To: 1, Variable: "y"}, {From: 2, To: 3, Variable: "y"}}, g.Edges)
}

func TestBuildSelfReference(t *testing.T) {
	lines := []string{
		"void g(void) {",
		"    int x = 0;",
		"    x = x + 1;",
		"    use(x);",
		"}",
	}
	g, err := Build("x", &types.Function{Name: "g", StartLine: 1}, lines, 1)
	require.NoError(t, err)

	assert.Equal(t, []NodeKind{KindAssignment, KindAssignment, KindRead, KindRead}, kinds(g))
	// The read on the right-hand side sees the previous definition.
	assert.Equal(t, []Edge{{From: 0, To: 2, Variable: "x"}, {From: 1, To: 3, Variable: "x"}}, g.Edges)
}

func TestOccurrenceKinds(t *testing.T) {
	tests := []struct {
		stmt string
		want []NodeKind
	}{
		{"a += 2;", []NodeKind{KindReadWrite}},
		{"--a;", []NodeKind{KindReadWrite}},
		{"a[i] = 3;", []NodeKind{KindReadWrite}},
		{"b = a[i];", []NodeKind{KindRead}},
		{"if (a == 1) b = 2;", []NodeKind{KindRead}},
		{"x = y * a;", []NodeKind{KindRead}},
		{"*a = 1;", []NodeKind{KindRead}},
		{"s.a = 1;", nil},
		{"p->a = 1;", nil},
		{"a(1);", nil},
		{"int a;", nil},
		{"int a = 1, b = a;", []NodeKind{KindAssignment, KindRead}},
		{"uint8_t a = b;", []NodeKind{KindAssignment}},
		{"for (int a = 0; a < n; a++) {}", []NodeKind{KindAssignment, KindRead, KindReadWrite}},
	}
	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			lines := []string{"void t(void) {", "    " + tt.stmt, "}"}
			g, err := Build("a", &types.Function{Name: "t", StartLine: 1}, lines, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, kinds(g))
		})
	}
}

func TestBuildFromFunctionBody(t *testing.T) {
	fn := &types.Function{
		Name:       "inc",
		StartLine:  10,
		Parameters: []types.Parameter{{Name: "n", TypeName: "int"}},
		Body:       "int inc(int n)\n{\n    return n + 1;\n}",
	}
	g, err := Build("n", fn, nil, 0)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, 12, g.Nodes[1].Line)
	assert.Equal(t, []Edge{{From: 0, To: 1, Variable: "n"}}, g.Edges)

	_, err = Build("", fn, nil, 0)
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = Build("n", &types.Function{Name: "proto"}, nil, 0)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestPropagation(t *testing.T) {
	g, err := Build("x", chainFn, chainSource, 1)
	require.NoError(t, err)

	assert.Equal(t, []int{2}, Propagation(g, 1))
	assert.Equal(t, []int{4, 5, 6}, Propagation(g, 3))
	assert.Empty(t, Propagation(g, 6))
	assert.Empty(t, Propagation(g, 99))
}

func TestReachingDefinitionsAcrossBranches(t *testing.T) {
	lines := []string{
		"int h(int v) {",
		"    int r = 0;",
		"    if (v > 0) {",
		"        r = 1;",
		"    } else {",
		"        r = 2;",
		"    }",
		"    return r;",
		"}",
	}
	fn := &types.Function{Name: "h", StartLine: 1, Parameters: []types.Parameter{{Name: "v", TypeName: "int"}}}

	g, err := Build("r", fn, lines, 1)
	require.NoError(t, err)
	assert.Equal(t, []Edge{{From: 2, To: 3, Variable: "r"}}, g.Edges)

	body, ok := cfg.IsolateBody(lines, 1)
	require.True(t, ok)
	flow, err := cfg.Build(context.Background(), cfg.NewTextualBuilder(), "h", body)
	require.NoError(t, err)

	refined := NewReachingDefsAnalyzer().Refine(g, flow)
	assert.Equal(t, []Edge{{From: 1, To: 3, Variable: "r"}, {From: 2, To: 3, Variable: "r"}}, refined.Edges)
	assert.Equal(t, []Edge{{From: 2, To: 3, Variable: "r"}}, g.Edges, "the linear graph is left alone")

	param, err := Build("v", fn, lines, 1)
	require.NoError(t, err)
	refinedParam := NewReachingDefsAnalyzer().Refine(param, flow)
	assert.Equal(t, []Edge{{From: 0, To: 1, Variable: "v"}}, refinedParam.Edges)
}

func TestReachingDefinitionsAroundLoops(t *testing.T) {
	lines := []string{
		"int sum(int n) {",
		"    int i = 0;",
		"    while (i < n) {",
		"        i++;",
		"    }",
		"    return i;",
		"}",
	}
	fn := &types.Function{Name: "sum", StartLine: 1, Parameters: []types.Parameter{{Name: "n", TypeName: "int"}}}
	g, err := Build("i", fn, lines, 1)
	require.NoError(t, err)
	require.Equal(t, []NodeKind{KindAssignment, KindRead, KindReadWrite, KindRead}, kinds(g))

	body, ok := cfg.IsolateBody(lines, 1)
	require.True(t, ok)
	flow, err := cfg.Build(context.Background(), cfg.NewTextualBuilder(), "sum", body)
	require.NoError(t, err)

	refined := NewReachingDefsAnalyzer().Refine(g, flow)
	assert.Equal(t, []Edge{
		{From: 0, To: 1, Variable: "i"},
		{From: 0, To: 2, Variable: "i"},
		{From: 0, To: 3, Variable: "i"},
		{From: 2, To: 1, Variable: "i"},
		{From: 2, To: 2, Variable: "i"},
		{From: 2, To: 3, Variable: "i"},
	}, refined.Edges)

	unchanged := NewReachingDefsAnalyzer().Refine(g, nil)
	assert.Equal(t, g.Edges, unchanged.Edges)
}
