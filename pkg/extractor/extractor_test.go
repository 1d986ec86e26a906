package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/l3aro/c-testforge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sensorSource = `#include <stdint.h>
#include "sensor.h"

#define MAX_SAMPLES 16
#define LIMIT (MAX_SAMPLES * 2)

typedef unsigned char u8;
typedef enum { MODE_OFF, MODE_ON = 4, MODE_AUTO } mode_t;
enum level { LOW = 1, HIGH = LIMIT };

static const int table[MAX_SAMPLES] = {0};
int readings[] = {1, 2, 3};
u8 status = 0;
mode_t mode;
extern int shared;
int shared = 3;
volatile uint16_t *port;

#ifdef DEBUG
int debug_count;
#endif

static int scale(int v, u8 factor) {
    int r = v * factor;
    return r;
}

int process(int x, mode_t m) {
    int acc = 0;
    if (m == MODE_ON && x > 0) {
        acc = scale(x, status);
    }
    acc += readings[0] + shared;
    return acc + scale(acc, 2);
}
`

func extract(t *testing.T, src string, active map[string]string) *Result {
	t.Helper()
	res, err := New(nil, nil).ExtractFromBytes(context.Background(), "sensor.c", []byte(src), Options{Active: active})
	require.NoError(t, err)
	return res
}

func TestExtractDefinitionsAndEnums(t *testing.T) {
	m := extract(t, sensorSource, nil).Model

	byName := make(map[string]types.Definition)
	for _, d := range m.Definitions {
		byName[d.Name] = d
	}

	assert.Equal(t, "16", byName["MAX_SAMPLES"].Value)
	assert.Equal(t, []string{"MAX_SAMPLES"}, byName["LIMIT"].Dependencies)

	tests := []struct {
		name  string
		value string
		group string
	}{
		{"MODE_OFF", "0", "mode_t"},
		{"MODE_ON", "4", "mode_t"},
		{"MODE_AUTO", "5", "mode_t"},
		{"LOW", "1", "level"},
		{"HIGH", "32", "level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := byName[tt.name]
			require.True(t, ok)
			assert.Equal(t, types.DefinitionEnumValue, d.Type)
			assert.Equal(t, tt.value, d.Value)
			assert.Equal(t, tt.group, d.Group)
		})
	}

	require.Len(t, m.Includes, 2)
	assert.Equal(t, "unsigned char", m.Typedefs["u8"])
	assert.Equal(t, "enum mode_t", m.Typedefs["mode_t"])
}

func TestExtractVariables(t *testing.T) {
	m := extract(t, sensorSource, nil).Model

	tests := []struct {
		name      string
		fn        string
		kind      types.VariableKind
		scope     types.VariableScope
		size      int
		arraySize int
	}{
		{"table", "", types.KindArray, types.ScopeRom, 64, 16},
		{"readings", "", types.KindArray, types.ScopeGlobal, 12, 3},
		{"status", "", types.KindPrimitive, types.ScopeGlobal, 1, 0},
		{"mode", "", types.KindEnum, types.ScopeGlobal, 4, 0},
		{"port", "", types.KindPointer, types.ScopeGlobal, 8, 0},
		{"v", "scale", types.KindPrimitive, types.ScopeParameter, 4, 0},
		{"r", "scale", types.KindPrimitive, types.ScopeLocal, 4, 0},
		{"acc", "process", types.KindPrimitive, types.ScopeLocal, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := m.FindVariable(tt.name, tt.fn)
			require.NotNil(t, v)
			assert.Equal(t, tt.kind, v.Kind)
			assert.Equal(t, tt.scope, v.Scope)
			assert.Equal(t, tt.size, v.Size)
			assert.Equal(t, tt.arraySize, v.ArraySize)
			assert.Equal(t, tt.fn, v.Function)
		})
	}

	shared := m.FindVariable("shared", "")
	require.NotNil(t, shared)
	assert.Equal(t, "3", shared.InitialValue, "the definition replaces the extern declaration")
	assert.True(t, m.FindVariable("port", "").IsVolatile)
	assert.Nil(t, m.FindVariable("debug_count", ""), "inactive region is skipped")
}

func TestExtractActiveMacrosEnableRegions(t *testing.T) {
	m := extract(t, sensorSource, map[string]string{"DEBUG": "1"}).Model
	assert.NotNil(t, m.FindVariable("debug_count", ""))
}

func TestExtractFunctions(t *testing.T) {
	m := extract(t, sensorSource, nil).Model
	require.Len(t, m.Functions, 2)

	scale := m.FindFunction("scale")
	require.NotNil(t, scale)
	assert.True(t, scale.IsStatic)
	assert.Equal(t, "int", scale.ReturnType)
	assert.Equal(t, "int scale(int v, u8 factor)", scale.Signature())
	assert.Equal(t, 23, scale.StartLine)
	assert.Equal(t, 26, scale.EndLine)
	assert.Equal(t, "{\n    int r = v * factor;\n    return r;\n}", scale.Body)

	process := m.FindFunction("process")
	require.NotNil(t, process)
	assert.Equal(t, []string{"scale"}, process.CalledFunctions)
	require.Len(t, process.CallSites, 2)
	assert.Equal(t, 31, process.CallSites[0].Line)
	assert.Equal(t, 34, process.CallSites[1].Line)
	assert.ElementsMatch(t, []string{"m", "x", "acc", "status", "readings", "shared"}, process.UsedVariables)

	status := m.FindVariable("status", "")
	assert.Equal(t, []string{"process"}, status.UsedBy)
}

func TestExtractReportsSyntaxErrors(t *testing.T) {
	res := extract(t, "int broken(int a {\n  return a;\n}\n#if\n", nil)
	var errs, warns int
	for _, d := range res.Model.Diagnostics {
		switch d.Severity {
		case types.SeverityError:
			errs++
		case types.SeverityWarning:
			warns++
		}
	}
	assert.Positive(t, errs)
	assert.Positive(t, warns, "the unterminated #if is reported")
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.c")
	require.NoError(t, os.WriteFile(path, []byte("int g;\nint f(void) { return g; }\n"), 0644))

	res, err := New(nil, nil).Extract(context.Background(), path, Options{})
	require.NoError(t, err)
	require.Len(t, res.Model.Functions, 1)
	assert.Empty(t, res.Model.Functions[0].Parameters)
	assert.Equal(t, []string{"g"}, res.Model.Functions[0].UsedVariables)

	_, err = New(nil, nil).Extract(context.Background(), filepath.Join(dir, "missing.c"), Options{})
	assert.Error(t, err)
}

func TestExtractParsesOnlyCompiledText(t *testing.T) {
	src := `#define FOO 1
int f(int n) {
#ifdef FOO
    if (n > 1) {
#else
    if (n > 2) {
#endif
        return 1;
    }
    return 0;
}
`
	m := extract(t, src, nil).Model
	fn := m.FindFunction("f")
	require.NotNil(t, fn)
	assert.Equal(t, 11, fn.EndLine)
	assert.Contains(t, fn.Body, "n > 1")
	assert.NotContains(t, fn.Body, "n > 2")

	require.Len(t, m.Lines, 12)
	assert.Equal(t, "    if (n > 1) {", m.Lines[3])
	assert.Empty(t, m.Lines[2], "conditional directives are blanked")
	assert.Empty(t, m.Lines[5], "disabled arm is blanked")
	assert.Equal(t, "#define FOO 1", m.Lines[0])
}
