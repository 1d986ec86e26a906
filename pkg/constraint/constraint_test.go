package constraint

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/c-testforge/pkg/types"
)

const windowSource = `#define MAX 100
#define LOW (-5)
enum color { RED, GREEN = 3, BLUE };
static int table[8];

int clamp(int v) {
    if (v > MAX) return MAX;
    if (v < 0) return 0;
    return v;
}

int window(int w) {
    if (LOW <= w && w < 10) return table[w];
    if (w == 42) return -1;
    /* w > 1000 in a comment is ignored */
    return p->w > 7;
}
`

var windowDefs = []types.Definition{
	{Name: "MAX", Value: "100", Type: types.DefinitionConstant, Enabled: true},
	{Name: "LOW", Value: "(-5)", Type: types.DefinitionConstant, Enabled: true},
	{Name: "RED", Value: "0", Type: types.DefinitionEnumValue, Group: "color", Enabled: true},
	{Name: "GREEN", Value: "3", Type: types.DefinitionEnumValue, Group: "color", Enabled: true},
	{Name: "BLUE", Value: "4", Type: types.DefinitionEnumValue, Group: "color", Enabled: true},
}

func scopeFor(src string) Scope {
	return Scope{
		Lines:       strings.Split(src, "\n"),
		Definitions: windowDefs,
		Typedefs:    map[string]string{"u8": "unsigned char", "color_t": "enum color"},
		Arrays:      map[string]int{"table": 8},
	}
}

// shape is the identity of a constraint without its provenance.
type shape struct {
	Type   types.ConstraintType
	Min    string
	Max    string
	Values []string
	Hard   bool
}

func shapes(cs []types.Constraint) []shape {
	out := make([]shape, len(cs))
	for i, c := range cs {
		out[i] = shape{Type: c.Type, Min: c.Min, Max: c.Max, Values: c.Values, Hard: c.Hard}
	}
	return out
}

func TestTypeBounds(t *testing.T) {
	tests := []struct {
		name string
		v    types.Variable
		want []shape
	}{
		{
			name: "unsigned char",
			v:    types.Variable{Name: "a", TypeName: "unsigned char", Kind: types.KindPrimitive},
			want: []shape{{Type: types.ConstraintRange, Min: "0", Max: "255", Hard: true}},
		},
		{
			name: "int8_t",
			v:    types.Variable{Name: "a", TypeName: "int8_t", Kind: types.KindPrimitive},
			want: []shape{{Type: types.ConstraintRange, Min: "-128", Max: "127", Hard: true}},
		},
		{
			name: "const uint16_t",
			v:    types.Variable{Name: "a", TypeName: "const uint16_t", Kind: types.KindPrimitive},
			want: []shape{{Type: types.ConstraintRange, Min: "0", Max: "65535", Hard: true}},
		},
		{
			name: "typedef",
			v:    types.Variable{Name: "a", TypeName: "u8", Kind: types.KindPrimitive},
			want: []shape{{Type: types.ConstraintRange, Min: "0", Max: "255", Hard: true}},
		},
		{
			name: "uint64_t",
			v:    types.Variable{Name: "a", TypeName: "uint64_t", Kind: types.KindPrimitive},
			want: []shape{{Type: types.ConstraintRange, Min: "0", Max: "18446744073709551615", Hard: true}},
		},
		{
			name: "bool",
			v:    types.Variable{Name: "a", TypeName: "_Bool", Kind: types.KindPrimitive},
			want: []shape{{Type: types.ConstraintEnumeration, Values: []string{"0", "1", "true", "false"}, Hard: true}},
		},
		{
			name: "struct",
			v:    types.Variable{Name: "a", TypeName: "struct point", Kind: types.KindStruct},
			want: []shape{},
		},
	}
	e := New(nil, 1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.v, scopeFor(""))
			assert.Equal(t, tt.want, shapes(got))
		})
	}
}

func TestPointerGetsSoftNonNull(t *testing.T) {
	got := New(nil, 1).Extract(types.Variable{Name: "buf", TypeName: "char", Kind: types.KindPointer}, scopeFor(""))
	require.Len(t, got, 1)
	assert.Equal(t, types.ConstraintCustom, got[0].Type)
	assert.Equal(t, "buf != NULL", got[0].Expr("buf"))
	assert.False(t, got[0].Hard)
}

func TestSourceDerivedBounds(t *testing.T) {
	e := New(nil, 1)
	s := scopeFor(windowSource)

	v := types.Variable{Name: "v", TypeName: "int", Kind: types.KindPrimitive, Scope: types.ScopeParameter, Function: "clamp", Line: 6}
	assert.Equal(t, []shape{
		{Type: types.ConstraintRange, Min: "-2147483648", Max: "2147483647", Hard: true},
		{Type: types.ConstraintMinValue, Min: "101"},
		{Type: types.ConstraintMaxValue, Max: "-1"},
		{Type: types.ConstraintCustom},
	}, shapes(e.Extract(v, s)))

	w := types.Variable{Name: "w", TypeName: "int", Kind: types.KindPrimitive, Scope: types.ScopeParameter, Function: "window", Line: 12}
	got := e.Extract(w, s)
	assert.Equal(t, []shape{
		{Type: types.ConstraintRange, Min: "-2147483648", Max: "2147483647", Hard: true},
		{Type: types.ConstraintRange, Min: "-5", Max: "9"},
		{Type: types.ConstraintMaxValue, Max: "9"},
		{Type: types.ConstraintMinValue, Min: "-5"},
		{Type: types.ConstraintEnumeration, Values: []string{"42"}},
		{Type: types.ConstraintRange, Min: "0", Max: "7"},
		{Type: types.ConstraintCustom},
	}, shapes(got))
	assert.Equal(t, "parameter of window", got[len(got)-1].Source)
	assert.True(t, got[len(got)-1].Informational())
}

func TestFloatBoundsAreNotTightened(t *testing.T) {
	src := "void f(double d) {\n    if (d > 2.5 && d < 10) {}\n}\n"
	got := New(nil, 1).Extract(types.Variable{Name: "d", TypeName: "double", Kind: types.KindPrimitive}, scopeFor(src))
	assert.Contains(t, shapes(got), shape{Type: types.ConstraintMinValue, Min: "2.5"})
	assert.Contains(t, shapes(got), shape{Type: types.ConstraintMaxValue, Max: "10"})
}

func TestLexicalMatchIgnoresScope(t *testing.T) {
	src := `int a(void) {
    int n = 0;
    return n;
}
int b(void) {
    int n = 3;
    if (n >= 2) { return 1; }
    return 0;
}
`
	// n of a() picks up the comparison and assignment made in b().
	n := types.Variable{Name: "n", TypeName: "int", Kind: types.KindPrimitive, Scope: types.ScopeLocal, Function: "a", Line: 2}
	got := shapes(New(nil, 1).Extract(n, scopeFor(src)))
	assert.Contains(t, got, shape{Type: types.ConstraintMinValue, Min: "2"})
	assert.Contains(t, got, shape{Type: types.ConstraintEnumeration, Values: []string{"0", "3"}})
}

func TestEnumConstraints(t *testing.T) {
	e := New(nil, 1)
	want := shape{Type: types.ConstraintEnumeration, Values: []string{"0", "3", "4"}, Hard: true}

	byTag := types.Variable{Name: "c", TypeName: "enum color", Kind: types.KindEnum}
	assert.Equal(t, []shape{want}, shapes(e.Extract(byTag, scopeFor(""))))

	byTypedef := types.Variable{Name: "c", TypeName: "color_t", Kind: types.KindEnum}
	assert.Equal(t, []shape{want}, shapes(e.Extract(byTypedef, scopeFor(""))))

	s := scopeFor("")
	s.Definitions = append([]types.Definition{{Name: "ON", Value: "9", Type: types.DefinitionEnumValue, Group: "power", Enabled: true}}, windowDefs...)
	unknown := types.Variable{Name: "c", TypeName: "enum shade", Kind: types.KindEnum}
	got := e.Extract(unknown, s)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"9", "0", "3", "4"}, got[0].Values)
	assert.Equal(t, "visible enum values", got[0].Source)
}

func TestSwitchAndAssignmentConstraints(t *testing.T) {
	src := `void f(int mode) {
    switch (mode) {
    case 1: break;
    case MAX: break;
    case 'x': break;
    default: break;
    }
    mode = 7;
    mode == 8;
}
`
	mode := types.Variable{Name: "mode", TypeName: "int", Kind: types.KindPrimitive}
	got := shapes(New(nil, 1).Extract(mode, scopeFor(src)))
	assert.Contains(t, got, shape{Type: types.ConstraintEnumeration, Values: []string{"1", "100", "120"}})
	assert.Contains(t, got, shape{Type: types.ConstraintEnumeration, Values: []string{"7"}})
}

func TestCommentAnnotations(t *testing.T) {
	src := `int other; // Range: 5 to 6
/* Range: 0 to 50 */
int speed; // Valid values: 1, 2, LOW
`
	speed := types.Variable{Name: "speed", TypeName: "int", Kind: types.KindPrimitive, Line: 3}
	got := shapes(New(nil, 1).Extract(speed, scopeFor(src)))
	assert.Contains(t, got, shape{Type: types.ConstraintEnumeration, Values: []string{"1", "2", "-5"}, Hard: true})
	assert.Contains(t, got, shape{Type: types.ConstraintRange, Min: "0", Max: "50", Hard: true})
	assert.NotContains(t, got, shape{Type: types.ConstraintRange, Min: "5", Max: "6", Hard: true})
}

func TestExtractIsIdempotent(t *testing.T) {
	e := New(nil, 1)
	s := scopeFor(windowSource)
	w := types.Variable{Name: "w", TypeName: "int", Kind: types.KindPrimitive, Scope: types.ScopeParameter, Function: "window"}

	first := e.Apply(&w, s)
	snapshot := append([]types.Constraint(nil), w.Constraints...)
	second := e.Apply(&w, s)

	assert.Positive(t, first)
	assert.Zero(t, second)
	assert.Equal(t, snapshot, w.Constraints)
	assert.Equal(t, e.Extract(w, s), e.Extract(w, s))
}

func TestExtractAll(t *testing.T) {
	model := &types.FileModel{
		Lines:       strings.Split(windowSource, "\n"),
		Definitions: windowDefs,
		Typedefs:    map[string]string{},
		Variables: []types.Variable{
			{Name: "table", TypeName: "int", Kind: types.KindArray, ArraySize: 8, Scope: types.ScopeStatic},
			{Name: "v", TypeName: "int", Kind: types.KindPrimitive, Scope: types.ScopeParameter, Function: "clamp"},
			{Name: "w", TypeName: "int", Kind: types.KindPrimitive, Scope: types.ScopeParameter, Function: "window"},
		},
	}
	s := ScopeOf(model)
	assert.Equal(t, 8, s.Arrays["table"])

	e := New(nil, 2)
	require.NoError(t, e.ExtractAll(context.Background(), model.Variables, s))
	for _, v := range model.Variables {
		assert.NotEmpty(t, v.Constraints, v.Name)
	}
	assert.Contains(t, shapes(model.Variables[2].Constraints), shape{Type: types.ConstraintRange, Min: "0", Max: "7"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, e.ExtractAll(ctx, model.Variables, s))
}
