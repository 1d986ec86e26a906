package cfg

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/c-testforge/pkg/cache"
	"github.com/l3aro/c-testforge/pkg/types"
)

const clampSource = `#define MAX 100
int clamp(int v)
{
    if (v > MAX) return MAX;
    if (v < 0) return 0;
    return v;
}`

func build(t *testing.T, b Builder, src string, startLine int) *ControlFlowGraph {
	t.Helper()
	body, ok := IsolateBody(strings.Split(src, "\n"), startLine)
	require.True(t, ok)
	g, err := Build(context.Background(), b, "f", body)
	require.NoError(t, err)
	require.NoError(t, g.Validate())
	return g
}

func nodeTypes(g *ControlFlowGraph) []NodeType {
	out := make([]NodeType, len(g.Nodes))
	for i, n := range g.Nodes {
		out[i] = n.Type
	}
	return out
}

func branchIDs(bs []Branch) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}

func TestIsolateBody(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		start int
		want  Body
		ok    bool
	}{
		{
			name:  "next line brace",
			src:   "int f(void)\n{\n    return 0;\n}\nint g;",
			start: 1,
			want:  Body{Lines: []string{"{", "    return 0;", "}"}, FirstLine: 2},
			ok:    true,
		},
		{
			name:  "single line",
			src:   `int f(void) { char *s = "}"; /* } */ return '}'; } int x;`,
			start: 1,
			want:  Body{Lines: []string{`{ char *s = "}"; /* } */ return '}'; }`}, FirstLine: 1},
			ok:    true,
		},
		{name: "prototype", src: "int f(int);\nint g(void) { return 1; }", start: 1},
		{name: "unterminated", src: "int f(void) {\n  if (x) {\n", start: 1},
		{name: "out of range", src: "int f(void) {}", start: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := IsolateBody(strings.Split(tt.src, "\n"), tt.start)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeMetrics(t *testing.T) {
	src := `{
    if (a && b) {
        for (i = 0; i < n; i++) {
            x = c ? 1 : 2; // if ( in a comment
        }
    }
    return x;
}`
	got := ComputeMetrics(BodyFromText(src, 10))
	assert.Equal(t, Metrics{
		CyclomaticComplexity: 5,
		NestingDepth:         2,
		StatementCount:       2,
		ConditionCount:       3,
		LinesOfCode:          8,
	}, got)
	assert.Equal(t, Metrics{}, ComputeMetrics(Body{}))
}

func TestClampGraph(t *testing.T) {
	g := build(t, NewTextualBuilder(), clampSource, 2)

	assert.Equal(t, []NodeType{
		NodeEntry, NodeCondition, NodeThenBranch, NodeReturn,
		NodeCondition, NodeThenBranch, NodeReturn, NodeReturn,
	}, nodeTypes(g))
	assert.Equal(t, -1, g.Exit)
	assert.Equal(t, "v > MAX", g.Nodes[1].Condition)
	assert.Equal(t, []string{"return MAX;"}, g.Nodes[3].Statements)

	branches := Branches(g)
	assert.Equal(t, []string{"B4:T", "B4:F", "B5:T", "B5:F"}, branchIDs(branches))
	assert.Equal(t, "!(v < 0)", branches[3].Guard())

	paths, truncated := Paths(g, branches, 0)
	assert.False(t, truncated)
	require.Len(t, paths, 3)
	assert.Equal(t, []string{"B4:T"}, paths[0].Branches)
	assert.Equal(t, []string{"B4:F", "B5:T"}, paths[1].Branches)
	assert.Equal(t, "(!(v > MAX)) && (!(v < 0))", paths[2].Condition())
	assert.Equal(t, []int{4, 5, 6}, paths[2].Lines(g))
}

func TestBuildersAgree(t *testing.T) {
	textual := build(t, NewTextualBuilder(), clampSource, 2)
	syntax := build(t, NewSyntaxBuilder(), clampSource, 2)
	assert.Equal(t, textual.Nodes, syntax.Nodes)
	assert.Equal(t, textual.Edges, syntax.Edges)
}

func TestLoopGraph(t *testing.T) {
	src := `int sum(int n) {
    int s = 0;
    int i = 0;
    while (i < n) {
        i++;
        if (i == 3) continue;
        if (s > 100) break;
        s += i;
    }
    return s;
}`
	g := build(t, NewTextualBuilder(), src, 1)

	assert.Equal(t, []string{"int s = 0;", "int i = 0;"}, g.Nodes[1].Statements)
	assert.Equal(t, NodeLoopHead, g.Nodes[2].Type)

	var loops int
	for _, e := range g.Edges {
		if e.Type == EdgeLoop {
			loops++
			assert.Equal(t, 2, e.To)
			assert.Equal(t, "i < n", e.Condition)
		}
	}
	assert.Equal(t, 2, loops, "body end and continue")

	branches := Branches(g)
	assert.ElementsMatch(t, []string{"B4:T", "B4:F", "B6:T", "B6:F", "B7:T", "B7:F"}, branchIDs(branches))

	paths, truncated := Paths(g, branches, 0)
	assert.False(t, truncated)
	assert.NotEmpty(t, paths)
	for _, p := range paths {
		last := g.Nodes[p.Nodes[len(p.Nodes)-1]]
		assert.True(t, last.Type.Terminal(), p.ID)
	}
}

func TestForLoopGraph(t *testing.T) {
	src := `void fill(int *a, int n) {
    for (int i = 0; i < n; i++) {
        a[i] = 0;
    }
}`
	g := build(t, NewTextualBuilder(), src, 1)
	assert.Equal(t, []NodeType{
		NodeEntry, NodeStatement, NodeLoopHead, NodeStatement, NodeStatement, NodeExit,
	}, nodeTypes(g))
	assert.Equal(t, []string{"int i = 0"}, g.Nodes[1].Statements)
	assert.Equal(t, "i < n", g.Nodes[2].Condition)
	assert.Equal(t, []string{"i++"}, g.Nodes[4].Statements)
}

func TestDoWhileGraph(t *testing.T) {
	src := `void f(int n) {
    do {
        n--;
    } while (n > 0);
}`
	g := build(t, NewTextualBuilder(), src, 1)
	assert.Equal(t, []NodeType{NodeEntry, NodeDoHead, NodeDoCondition, NodeExit}, nodeTypes(g))
	assert.Equal(t, []string{"n--;"}, g.Nodes[1].Statements)

	branches := Branches(g)
	assert.Equal(t, []string{"B4:T", "B4:F"}, branchIDs(branches))

	paths, _ := Paths(g, branches, 0)
	require.Len(t, paths, 2)
	assert.Equal(t, []string{"B4:T", "B4:F"}, paths[0].Branches)
	assert.Equal(t, []string{"B4:F"}, paths[1].Branches)
}

func TestSwitchGraph(t *testing.T) {
	src := `int g(int m) {
    switch (m) {
    case 1:
        return 10;
    case 2:
        m++;
    case 3:
        break;
    }
    return m;
}`
	g := build(t, NewTextualBuilder(), src, 1)
	assert.Equal(t, []NodeType{
		NodeEntry, NodeSwitch, NodeSwitchBody, NodeStatement, NodeReturn,
		NodeStatement, NodeStatement, NodeReturn,
	}, nodeTypes(g))
	assert.Equal(t, []string{"case 2:", "m++;"}, g.Nodes[5].Statements)

	var labels []string
	for _, ei := range g.Outgoing(2) {
		assert.Equal(t, EdgeSwitch, g.Edges[ei].Type)
		labels = append(labels, g.Edges[ei].Condition)
	}
	assert.Equal(t, []string{"1", "2", "3", "default"}, labels)

	assert.Empty(t, Branches(g))
	paths, _ := Paths(g, nil, 0)
	require.Len(t, paths, 4)
	assert.Equal(t, "((m) == (1))", paths[0].Condition())
	assert.Equal(t, "((m) == (2))", paths[1].Condition())
	assert.Equal(t, "((m) == (3))", paths[2].Condition())
	assert.Equal(t, "(!((m) == (1)) && !((m) == (2)) && !((m) == (3)))", paths[3].Condition())
	for _, p := range paths {
		assert.Len(t, p.Edges, len(p.Nodes)-1, p.ID)
		require.Len(t, p.Guards, 1, p.ID)
		assert.Empty(t, p.Guards[0].Branch)
		assert.Equal(t, 2, g.Edges[p.Guards[0].Edge].From)
	}
}

func TestSwitchWithoutSiblingsNeedsNoGuard(t *testing.T) {
	src := `int only(int m) {
    switch (m) {
    default:
        return 0;
    }
}`
	g := build(t, NewTextualBuilder(), src, 1)
	paths, _ := Paths(g, nil, 0)
	require.Len(t, paths, 1)
	assert.Equal(t, "1", paths[0].Condition())
}

func TestPathThrough(t *testing.T) {
	g := build(t, NewTextualBuilder(), clampSource, 2)
	paths, _ := Paths(g, Branches(g), 0)
	require.Len(t, paths, 3)

	guards, ok := paths[1].Through("B4:F")
	require.True(t, ok)
	assert.Equal(t, "(!(v > MAX))", Conjunction(guards))
	_, ok = paths[0].Through("B5:T")
	assert.False(t, ok)
	assert.Equal(t, "1", Conjunction(nil))
}

func TestUnreachableStatements(t *testing.T) {
	src := `int h(void) {
    return 1;
    x = 2;
}`
	g := build(t, NewTextualBuilder(), src, 1)
	assert.Equal(t, []NodeType{NodeEntry, NodeReturn}, nodeTypes(g))
	assert.Equal(t, []int{3}, g.UnreachableLines)
}

func TestPathsAreBounded(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("int many(int x) {\n")
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&sb, "    if (x > %d) x--;\n", i)
	}
	sb.WriteString("    return x;\n}")

	g := build(t, NewTextualBuilder(), sb.String(), 1)
	branches := Branches(g)
	assert.Len(t, branches, 16)

	paths, truncated := Paths(g, branches, 10)
	assert.Len(t, paths, 10)
	assert.True(t, truncated)

	all, truncated := Paths(g, branches, 1000)
	assert.Len(t, all, 256)
	assert.False(t, truncated)
}

func TestValidateRejectsOpenGraphs(t *testing.T) {
	g := &ControlFlowGraph{
		Nodes: []Node{{ID: 0, Type: NodeEntry}, {ID: 1, Type: NodeStatement}},
		Edges: []Edge{{From: 0, To: 1, Type: EdgeSequential}},
	}
	assert.ErrorIs(t, g.Validate(), ErrInvalidGraph)

	g.Nodes = append(g.Nodes, Node{ID: 2, Type: NodeExit})
	g.Edges = append(g.Edges, Edge{From: 1, To: 2, Type: EdgeSequential})
	assert.NoError(t, g.Validate())

	g.Nodes = append(g.Nodes, Node{ID: 3, Type: NodeReturn})
	assert.ErrorIs(t, g.Validate(), ErrInvalidGraph, "unreachable return")
}

func TestMalformedBody(t *testing.T) {
	body := BodyFromText("{\n    if (x {\n    }\n}", 5)
	_, err := NewTextualBuilder().Parse(context.Background(), body)
	assert.ErrorIs(t, err, ErrMalformedBody)

	_, err = NewSyntaxBuilder().Parse(context.Background(), body)
	assert.ErrorIs(t, err, ErrMalformedBody)
}

func TestAnalyzer(t *testing.T) {
	lines := strings.Split(clampSource, "\n")
	c := cache.New(cache.Options{MaxSize: 8})
	a := NewAnalyzer(AnalyzerOptions{Cache: c})
	fn := &types.Function{Name: "clamp", StartLine: 2, EndLine: 7}

	fa, err := a.Analyze(context.Background(), fn, lines)
	require.NoError(t, err)
	assert.Equal(t, 3, fa.Metrics.CyclomaticComplexity)
	assert.Len(t, fa.Branches, 4)
	assert.Len(t, fa.Paths, 3)
	assert.Empty(t, fa.Diagnostics)

	again, err := a.Analyze(context.Background(), fn, lines)
	require.NoError(t, err)
	assert.Same(t, fa, again)
	assert.Equal(t, int64(1), c.Stats().HitCount)

	b, ok := fa.Branch("B5:F")
	require.True(t, ok)
	assert.False(t, b.Taken)
}

func TestAnalyzerFallbacks(t *testing.T) {
	a := NewAnalyzer(AnalyzerOptions{})

	t.Run("no body", func(t *testing.T) {
		fa, err := a.Analyze(context.Background(), &types.Function{Name: "proto", StartLine: 1}, []string{"int proto(int);"})
		require.NoError(t, err)
		assert.Equal(t, Metrics{}, fa.Metrics)
		assert.Equal(t, []NodeType{NodeEntry, NodeExit}, nodeTypes(fa.Graph))
		require.Len(t, fa.Diagnostics, 1)
		assert.Equal(t, types.SeverityWarning, fa.Diagnostics[0].Severity)
	})

	t.Run("malformed", func(t *testing.T) {
		fn := &types.Function{Name: "bad", StartLine: 1, Body: "int bad(int x) {\n    if (x {\n    }\n}"}
		fa, err := a.Analyze(context.Background(), fn, nil)
		require.NoError(t, err)
		require.NoError(t, fa.Graph.Validate())
		assert.Len(t, fa.Paths, 1)
		assert.NotEmpty(t, fa.Diagnostics)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := a.Analyze(ctx, &types.Function{Name: "f"}, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
