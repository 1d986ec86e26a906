package synth

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/c-testforge/pkg/cexpr"
	"github.com/l3aro/c-testforge/pkg/cfg"
	"github.com/l3aro/c-testforge/pkg/types"
)

const reassignSource = `int shift(int x)
{
    if (x > 5) {
        x = x - 10;
        if (x < 0)
            return 1;
    }
    return 0;
}`

const sumSource = `int sum(int n)
{
    int s = 0;
    for (int i = 0; i < n; i++) {
        s += i;
    }
    return s;
}`

func pathTaking(t *testing.T, fa *cfg.FunctionAnalysis, branches ...string) cfg.Path {
	t.Helper()
	for _, p := range fa.Paths {
		if slices.Equal(p.Branches, branches) {
			return p
		}
	}
	require.Failf(t, "no path", "no path takes %v", branches)
	return cfg.Path{}
}

func holds(t *testing.T, cond, name string, value int64) bool {
	t.Helper()
	env := cexpr.NewMapEnv()
	env.Set(name, cexpr.Int(value))
	v, err := cexpr.EvalString(cond, env)
	require.NoError(t, err, cond)
	return v.Truthy()
}

func TestPathConditionFollowsAssignments(t *testing.T) {
	req := requestFor(t, reassignSource, "shift", 1, types.Parameter{Name: "x", TypeName: "int"})
	p := pathTaking(t, req.Analysis, "B3:T", "B5:T")

	cond, exact := pathCondition(req.Analysis.Graph, p, "", req.Function, inputs(&req))
	assert.True(t, exact)
	assert.Equal(t, "(x > 5) && (((int)(x - 10)) < 0)", cond)

	tests := []struct {
		x    int64
		want bool
	}{
		{x: 6, want: true},
		{x: 9, want: true},
		{x: 10, want: false},
		{x: 3, want: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, holds(t, cond, "x", tt.x), "x = %d", tt.x)
	}

	guards, exact := pathCondition(req.Analysis.Graph, p, "B3:T", req.Function, inputs(&req))
	assert.True(t, exact)
	assert.Equal(t, "(x > 5)", guards)
}

func TestPathConditionFollowsLoopVariables(t *testing.T) {
	req := requestFor(t, sumSource, "sum", 1, types.Parameter{Name: "n", TypeName: "int"})
	once := pathTaking(t, req.Analysis, "B4:T", "B4:F")
	skip := pathTaking(t, req.Analysis, "B4:F")

	cond, exact := pathCondition(req.Analysis.Graph, once, "", req.Function, inputs(&req))
	assert.True(t, exact)
	assert.NotContains(t, cond, "i <")
	assert.False(t, holds(t, cond, "n", 0))
	assert.True(t, holds(t, cond, "n", 1))
	assert.False(t, holds(t, cond, "n", 2))

	cond, exact = pathCondition(req.Analysis.Graph, skip, "", req.Function, inputs(&req))
	assert.True(t, exact)
	assert.True(t, holds(t, cond, "n", 0))
	assert.False(t, holds(t, cond, "n", 1))
}

func TestPathConditionIsInexactWhenValuesEscape(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "address taken",
			src: `int esc(int x)
{
    bump(&x);
    if (x > 5)
        return 1;
    return 0;
}`,
		},
		{
			name: "uninitialized local",
			src: `int esc(int x)
{
    int y;
    if (y > x)
        return 1;
    return 0;
}`,
		},
		{
			name: "side effect in condition",
			src: `int esc(int x)
{
    if (x-- > 5)
        return 1;
    if (x > 5)
        return 2;
    return 0;
}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestFor(t, tt.src, "esc", 1, types.Parameter{Name: "x", TypeName: "int"})
			var last cfg.Path
			for _, p := range req.Analysis.Paths {
				last = p
			}
			_, exact := pathCondition(req.Analysis.Graph, last, "", req.Function, inputs(&req))
			assert.False(t, exact)
		})
	}
}

func TestCastName(t *testing.T) {
	tests := []struct {
		typeName string
		want     string
	}{
		{typeName: "int", want: "int"},
		{typeName: "uint8_t", want: "unsigned char"},
		{typeName: "int8_t", want: "signed char"},
		{typeName: "short", want: "short"},
		{typeName: "size_t", want: "unsigned long"},
		{typeName: "float", want: "float"},
		{typeName: "long double", want: "double"},
	}
	for _, tt := range tests {
		sc, ok := types.LookupScalar(tt.typeName)
		require.True(t, ok, tt.typeName)
		assert.Equal(t, tt.want, castName(sc), tt.typeName)
	}
}
