package preproc

import (
	"errors"
	"strings"
	"testing"

	"github.com/l3aro/c-testforge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(src string) []string {
	return strings.Split(strings.TrimPrefix(src, "\n"), "\n")
}

func TestExtractDefinitions(t *testing.T) {
	src := lines(`
#include <stdio.h>
#include "config.h"
#define MAX 100 // upper bound
#define MIN (-MAX)
#define SQUARE(x) ((x) * (x))
#define LONG_ONE 1 + \
    2
#  define SPACED   7
int x;
`)
	defs := ExtractDefinitions(src, "a.c")
	require.Len(t, defs, 5)

	assert.Equal(t, "MAX", defs[0].Name)
	assert.Equal(t, "100", defs[0].Value)
	assert.Equal(t, types.DefinitionConstant, defs[0].Type)
	assert.Equal(t, 3, defs[0].Line)
	assert.True(t, defs[0].Enabled)

	assert.Equal(t, "(-MAX)", defs[1].Value)

	assert.Equal(t, types.DefinitionFunctionMacro, defs[2].Type)
	assert.Equal(t, []string{"x"}, defs[2].Parameters)
	assert.Equal(t, "((x) * (x))", defs[2].Value)

	assert.Equal(t, "1 + 2", defs[3].Value)
	assert.Equal(t, 6, defs[3].Line)
	assert.Equal(t, "SPACED", defs[4].Name)

	includes := ExtractIncludes(src)
	require.Len(t, includes, 2)
	assert.Equal(t, types.IncludeDirective{Path: "stdio.h", IsSystem: true, Line: 1}, includes[0])
	assert.Equal(t, "config.h", includes[1].Path)
	assert.False(t, includes[1].IsSystem)
}

func TestDefinitionValuesKeepCommentMarkersInLiterals(t *testing.T) {
	defs := ExtractDefinitions(lines(`
#define URL "http://example.com" // home
#define SEP "/*"
#define OPEN '/' /* slash */ + 1
#define ESCAPED "say \"//\"" // quoted
`), "a.c")
	require.Len(t, defs, 4)
	assert.Equal(t, `"http://example.com"`, defs[0].Value)
	assert.Equal(t, `"/*"`, defs[1].Value)
	assert.Equal(t, `'/'   + 1`, defs[2].Value)
	assert.Equal(t, `"say \"//\""`, defs[3].Value)
}

func TestIdentifiersSkipsLiteralsAndDefined(t *testing.T) {
	got := Identifiers(`defined(DEBUG) && VERSION >= 0x10 && LEVEL > 2UL && "NAME" && sizeof(int)`)
	assert.Equal(t, []string{"DEBUG", "VERSION", "LEVEL"}, got)
}

func TestResolveDependencies(t *testing.T) {
	defs := []types.Definition{
		{Name: "BASE", Value: "10"},
		{Name: "LIMIT", Value: "BASE * 2 + OTHER"},
		{Name: "SCALE", Value: "(x) * BASE", Parameters: []string{"x"}, Type: types.DefinitionFunctionMacro},
	}
	arena := types.NewDirectiveArena()
	arena.Add(types.ConditionalDirective{Type: types.ConditionalIf, Condition: "LIMIT > 5 && UNKNOWN", Parent: types.NoParent})

	ResolveDependencies(defs, arena)

	assert.Empty(t, defs[0].Dependencies)
	assert.Equal(t, []string{"BASE"}, defs[1].Dependencies)
	assert.Equal(t, []string{"BASE"}, defs[2].Dependencies)
	assert.Equal(t, []string{"LIMIT"}, arena.Get(0).Dependencies)
	assert.Equal(t, []string{"LIMIT", "SCALE"}, Dependents(defs, "BASE"))
}

func TestExtractConditionalsBuildsChains(t *testing.T) {
	src := lines(`
#ifdef DEBUG
int a;
#elif LEVEL > 2
int b;
#else
int c;
#endif
#ifndef GUARD
#if defined(X)
#endif
#endif
`)
	arena, diags := ExtractConditionals(src, "a.c")
	assert.Empty(t, diags)
	require.Equal(t, 5, arena.Len())

	root := arena.Get(0)
	assert.Equal(t, types.ConditionalIfDef, root.Type)
	assert.Equal(t, "DEBUG", root.Condition)
	assert.Equal(t, []int{1, 2}, root.Branches)
	assert.Equal(t, 7, root.EndLine)
	assert.Equal(t, 0, arena.Get(1).Parent)
	assert.Equal(t, "LEVEL > 2", arena.Get(1).Condition)
	assert.Equal(t, 7, arena.Get(2).EndLine)

	assert.Equal(t, []int{0, 3, 4}, arena.Roots())
	assert.Equal(t, 11, arena.Get(3).EndLine)
	assert.Equal(t, 10, arena.Get(4).EndLine)
}

func TestExtractConditionalsUnterminated(t *testing.T) {
	src := lines(`
#if FEATURE
int a;
#else
int b;
`)
	arena, diags := ExtractConditionals(src, "a.c")
	require.Equal(t, 2, arena.Len())
	assert.Equal(t, 0, arena.Get(0).EndLine)
	assert.False(t, arena.Get(1).Terminated())
	require.Len(t, diags, 1)
	assert.Equal(t, types.SeverityWarning, diags[0].Severity)
	assert.Contains(t, diags[0].Message, "unterminated")
	assert.Equal(t, 1, diags[0].Line)
}

func TestExtractConditionalsStrayDirectives(t *testing.T) {
	_, diags := ExtractConditionals([]string{"#endif", "#else"}, "a.c")
	require.Len(t, diags, 2)
	assert.Contains(t, diags[0].Message, "#endif without matching #if")
	assert.Contains(t, diags[1].Message, "#else without matching #if")
}

func TestEvaluateCondition(t *testing.T) {
	active := map[string]string{"DEBUG": "", "VERSION": "3", "ALIAS": "VERSION"}

	tests := []struct {
		cond    string
		want    bool
		wantErr bool
	}{
		{"defined(DEBUG)", true, false},
		{"defined RELEASE", false, false},
		{"!defined(RELEASE) && VERSION >= 2", true, false},
		{"VERSION == 2 || DEBUG", true, false},
		{"ALIAS > 2", true, false},
		{"UNKNOWN", false, false},
		{"(VERSION > 5) || (0 && 1)", false, false},
		// Arithmetic operators share one level and associate left to right.
		{"1 + 2 * 3 == 9", true, false},
		{"2 * 3 + 1 == 7", true, false},
		{"0x10 == 16", true, false},
		{"VERSION >", false, true},
		{"(1", false, true},
		{"1 / 0", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			got, err := EvaluateCondition(tt.cond, active)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedExpression))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateConditionSelfReferenceIsBounded(t *testing.T) {
	_, err := EvaluateCondition("LOOP", map[string]string{"LOOP": "LOOP + 1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedExpression))
}

func TestEvaluateDirectiveChain(t *testing.T) {
	src := lines(`
#if LEVEL > 2
#elif LEVEL > 1
#elif LEVEL > 0
#else
#endif
`)
	arena, _ := ExtractConditionals(src, "a.c")

	tests := []struct {
		level string
		taken int
	}{
		{"3", 0},
		{"2", 1},
		{"1", 2},
		{"0", 3},
	}
	for _, tt := range tests {
		active := map[string]string{"LEVEL": tt.level}
		for id := 0; id < 4; id++ {
			got, err := EvaluateDirective(arena, id, active)
			require.NoError(t, err)
			assert.Equal(t, id == tt.taken, got, "LEVEL=%s directive %d", tt.level, id)
		}
	}

	_, err := EvaluateDirective(arena, 99, nil)
	assert.Error(t, err)
}

func TestEvaluateIfdefIfndef(t *testing.T) {
	arena := types.NewDirectiveArena()
	def := arena.Add(types.ConditionalDirective{Type: types.ConditionalIfDef, Condition: "DEBUG", Parent: types.NoParent})
	ndef := arena.Add(types.ConditionalDirective{Type: types.ConditionalIfNDef, Condition: "DEBUG", Parent: types.NoParent})
	els := arena.Add(types.ConditionalDirective{Type: types.ConditionalElse, Parent: ndef})

	results, diags := EvaluateAll(arena, map[string]string{"DEBUG": "1"}, "a.c")
	assert.Empty(t, diags)
	assert.True(t, results[def])
	assert.False(t, results[ndef])
	assert.True(t, results[els])

	results, _ = EvaluateAll(arena, nil, "a.c")
	assert.False(t, results[def])
	assert.True(t, results[ndef])
	assert.False(t, results[els])
}

func TestEvaluateAllReportsMalformed(t *testing.T) {
	arena := types.NewDirectiveArena()
	arena.Add(types.ConditionalDirective{Type: types.ConditionalIf, Condition: "A &&", StartLine: 4, Parent: types.NoParent})
	results, diags := EvaluateAll(arena, nil, "a.c")
	assert.False(t, results[0])
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "A &&")
	assert.Equal(t, 4, diags[0].Line)
}

func TestDetectCycles(t *testing.T) {
	defs := []types.Definition{
		{Name: "A", Dependencies: []string{"B"}},
		{Name: "B", Dependencies: []string{"C"}},
		{Name: "C", Dependencies: []string{"A"}},
		{Name: "D", Dependencies: []string{"A"}},
		{Name: "SELF", Dependencies: []string{"SELF"}},
		{Name: "LEAF"},
	}

	report := DetectCycles(defs, 0)
	require.Len(t, report.Cycles, 2)
	assert.Equal(t, []string{"A", "B", "C"}, report.Cycles[0].Path)
	assert.Equal(t, "A -> B -> C -> A", report.Cycles[0].String())
	assert.Equal(t, []string{"SELF"}, report.Cycles[1].Path)
	assert.Empty(t, report.DepthExceeded)
}

func TestDetectCyclesNoCycle(t *testing.T) {
	defs := []types.Definition{
		{Name: "A", Dependencies: []string{"B"}},
		{Name: "B"},
	}
	assert.Empty(t, DetectCycles(defs, 0).Cycles)
}

func TestDetectCyclesDepthBound(t *testing.T) {
	var defs []types.Definition
	for i := 0; i < 10; i++ {
		d := types.Definition{Name: string(rune('A' + i))}
		if i < 9 {
			d.Dependencies = []string{string(rune('A' + i + 1))}
		}
		defs = append(defs, d)
	}
	report := DetectCycles(defs, 3)
	assert.Empty(t, report.Cycles)
	assert.NotEmpty(t, report.DepthExceeded)
}

func TestExpand(t *testing.T) {
	defs := []types.Definition{
		{Name: "MAX", Value: "100", Type: types.DefinitionConstant, Enabled: true},
		{Name: "LIMIT", Value: "MAX - 1", Type: types.DefinitionConstant, Enabled: true},
		{Name: "SQUARE", Value: "((x) * (x))", Parameters: []string{"x"}, Type: types.DefinitionFunctionMacro, Enabled: true},
		{Name: "RED", Value: "2", Type: types.DefinitionEnumValue, Enabled: true},
		{Name: "OFF", Value: "0", Type: types.DefinitionConstant, Enabled: false},
	}

	tests := []struct {
		expr string
		want string
	}{
		{"v > MAX", "v > 100"},
		{"v <= LIMIT", "v <= (100 - 1)"},
		{"SQUARE(v + 1) < MAX", "((v + 1) * (v + 1)) < 100"},
		{"color == RED", "color == 2"},
		{"flag == OFF", "flag == OFF"},
		{"MAXIMUM > 1", "MAXIMUM > 1"},
		{`msg == "MAX"`, `msg == "MAX"`},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Expand(tt.expr, defs, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Expand("R", []types.Definition{{Name: "R", Value: "R + 1", Enabled: true}}, 5)
	assert.True(t, errors.Is(err, ErrExpansionDepth))
}

func TestActiveLinesAndEnabledDefinitions(t *testing.T) {
	src := lines(`
#define FEATURE 1
#ifdef FEATURE
#define ON 1
#else
#define OFF 1
#endif
int x;
`)
	res := Resolve(src, "a.c", Options{})
	require.Len(t, res.Definitions, 3)

	assert.True(t, res.Definitions[0].Enabled)
	assert.True(t, res.Definitions[1].Enabled, "ON sits in the taken arm")
	assert.False(t, res.Definitions[2].Enabled, "OFF sits in the skipped arm")

	assert.Equal(t, []bool{true, false, true, false, false, false, true}, res.ActiveLines[:7])
	assert.True(t, res.Evaluations[0])
	assert.False(t, res.Evaluations[1])
}

func TestResolveReportsCyclesAsFindings(t *testing.T) {
	src := lines(`
#define A B
#define B C
#define C A
#if A
#endif
`)
	res := Resolve(src, "cyc.c", Options{MaxDepth: 16})
	require.Len(t, res.Cycles.Cycles, 1)
	assert.Equal(t, []string{"A", "B", "C"}, res.Cycles.Cycles[0].Path)

	var foundCycle, foundEval bool
	for _, d := range res.Diagnostics {
		if strings.Contains(d.Message, "circular macro dependency") {
			foundCycle = true
			assert.Equal(t, types.SeverityInfo, d.Severity)
		}
		if strings.Contains(d.Message, "macro substitution exceeds depth") {
			foundEval = true
		}
	}
	assert.True(t, foundCycle)
	assert.True(t, foundEval, "self-feeding substitution in #if A is reported")
	assert.False(t, res.Evaluations[0])
}
