package analysis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/c-testforge/pkg/types"
)

const firstFile = `#define MAX 100
#define LOOP_A LOOP_B
#define LOOP_B LOOP_A

unsigned char level;

int clamp(int v)
{
    if (v > MAX) return MAX;
    if (v < 0) return 0;
    return v;
}

int ping(int n)
{
    return pong(n - 1);
}
`

const secondFile = `#define MAX 200

int pong(int n)
{
    if (n <= 0)
        return 0;
    return ping(n);
}

int clamp(int v)
{
    return v;
}
`

func writeProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.c"), []byte(firstFile), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.c"), []byte(secondFile), 0o644))
	return root
}

func hasDiagnostic(diags []types.Diagnostic, severity types.Severity, fragment string) bool {
	for _, d := range diags {
		if d.Severity == severity && strings.Contains(d.Message, fragment) {
			return true
		}
	}
	return false
}

func TestAnalyzeProjectMergesFirstWins(t *testing.T) {
	root := writeProject(t)
	s := NewService(Options{Workers: 2})

	res, err := s.AnalyzeProject(context.Background(), types.Project{Name: "demo", Root: root}, types.DefaultAnalysisOptions())
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	assert.Empty(t, res.FileErrors)

	maxDef := res.Definition("MAX")
	require.NotNil(t, maxDef)
	assert.Equal(t, "100", maxDef.Value)
	assert.True(t, hasDiagnostic(res.Diagnostics, types.SeverityInfo, "duplicate definition of MAX"))

	var names []string
	for _, fn := range res.Functions {
		names = append(names, fn.Name)
	}
	assert.Equal(t, []string{"clamp", "ping", "pong"}, names)
	clamp := res.FindFunction("clamp")
	require.NotNil(t, clamp)
	assert.Equal(t, filepath.Join(root, "a.c"), clamp.File)
	assert.True(t, hasDiagnostic(res.Diagnostics, types.SeverityInfo, "duplicate function clamp"))

	require.Len(t, res.CallCycles.Cycles, 1)
	assert.ElementsMatch(t, []string{"ping", "pong"}, res.CallCycles.Cycles[0].Path)
	require.Len(t, res.MacroCycles.Cycles, 1)
	assert.ElementsMatch(t, []string{"LOOP_A", "LOOP_B"}, res.MacroCycles.Cycles[0].Path)

	globals := res.Globals()
	require.Len(t, globals, 1)
	assert.Equal(t, "level", globals[0].Name)
	var bounded bool
	for _, c := range globals[0].Constraints {
		if c.Type == types.ConstraintRange && c.Min == "0" && c.Max == "255" && c.Hard {
			bounded = true
		}
	}
	assert.True(t, bounded, "unsigned char bounds")

	require.Contains(t, res.Analyses, "clamp")
	assert.Equal(t, 3, res.Analyses["clamp"].Metrics.CyclomaticComplexity)
	assert.Len(t, res.Analyses["clamp"].Paths, 3)
	assert.Empty(t, res.DataFlow)

	sum := res.Summarize()
	assert.Equal(t, 2, sum.Files)
	assert.Equal(t, 3, sum.Functions)
	assert.Equal(t, 1, sum.CallCycles)
	assert.Equal(t, 3, sum.MaxComplexity)
}

func TestAnalyzeProjectDetailLevels(t *testing.T) {
	root := writeProject(t)
	s := NewService(Options{})
	project := types.Project{Name: "demo", Root: root, SourceFiles: []string{"a.c"}}

	tests := []struct {
		name       string
		detail     types.DetailLevel
		analyses   bool
		parameters bool
	}{
		{name: "basic", detail: types.DetailBasic},
		{name: "detailed", detail: types.DetailDetailed, analyses: true},
		{name: "comprehensive", detail: types.DetailComprehensive, analyses: true, parameters: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := types.DefaultAnalysisOptions()
			opts.Detail = tt.detail
			res, err := s.AnalyzeProject(context.Background(), project, opts)
			require.NoError(t, err)
			assert.Equal(t, tt.analyses, len(res.Analyses) > 0)
			if !tt.parameters {
				assert.Empty(t, res.DataFlow)
				return
			}
			require.Contains(t, res.DataFlow, "clamp")
			g := res.DataFlow["clamp"]["v"]
			require.NotNil(t, g)
			assert.Equal(t, "v", g.Variable)
			assert.NotEmpty(t, g.Definitions())
		})
	}
}

func TestAnalyzeProjectIsolatesFileFailures(t *testing.T) {
	root := writeProject(t)
	s := NewService(Options{})
	project := types.Project{Name: "demo", Root: root, SourceFiles: []string{"a.c", "missing.c"}}

	res, err := s.AnalyzeProject(context.Background(), project, types.DefaultAnalysisOptions())
	require.NoError(t, err)
	missing := filepath.Join(root, "missing.c")
	assert.Equal(t, []string{missing}, res.Failed())
	assert.True(t, hasDiagnostic(res.Diagnostics, types.SeverityError, "missing.c"))
	assert.NotNil(t, res.FindFunction("clamp"))
}

func TestAnalyzeProjectRejectsUnreadableProjects(t *testing.T) {
	s := NewService(Options{})

	_, err := s.AnalyzeProject(context.Background(), types.Project{Name: "none"}, types.DefaultAnalysisOptions())
	assert.ErrorIs(t, err, ErrEmptyProject)

	_, err = s.AnalyzeProject(context.Background(), types.Project{Name: "gone", Root: filepath.Join(t.TempDir(), "gone")}, types.DefaultAnalysisOptions())
	assert.Error(t, err)

	_, err = s.AnalyzeProject(context.Background(), types.Project{Name: "empty", Root: t.TempDir()}, types.DefaultAnalysisOptions())
	assert.ErrorIs(t, err, ErrEmptyProject)
}

func TestAnalyzeProjectHonoursCancellation(t *testing.T) {
	root := writeProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewService(Options{}).AnalyzeProject(ctx, types.Project{Name: "demo", Root: root}, types.DefaultAnalysisOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeFileAndFindFunction(t *testing.T) {
	root := writeProject(t)
	s := NewService(Options{})
	ctx := context.Background()

	res, err := s.AnalyzeFile(ctx, filepath.Join(root, "b.c"), nil, types.DefaultAnalysisOptions())
	require.NoError(t, err)
	assert.Equal(t, "200", res.Definition("MAX").Value)
	assert.Empty(t, res.CallCycles.Cycles, "ping is defined in another file")

	fn, model, err := s.FindFunction(ctx, filepath.Join(root, "a.c"), "ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "ping", fn.Name)
	assert.Equal(t, []string{"pong"}, fn.CalledFunctions)
	assert.NotNil(t, model.FindFunction("clamp"))

	_, _, err = s.FindFunction(ctx, filepath.Join(root, "a.c"), "absent", nil)
	assert.ErrorIs(t, err, ErrFunctionNotFound)

	_, err = s.AnalyzeFile(ctx, filepath.Join(root, "nope.c"), nil, types.DefaultAnalysisOptions())
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestAnalyzeFileActiveMacros(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.c")
	src := `#ifdef FAST
int speed(void) { return 2; }
#else
int speed(void) { return 1; }
#endif
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	s := NewService(Options{})

	res, err := s.AnalyzeFile(context.Background(), path, map[string]string{"FAST": "1"}, types.DefaultAnalysisOptions())
	require.NoError(t, err)
	require.Len(t, res.Functions, 1)
	assert.Equal(t, 2, res.Functions[0].StartLine)

	res, err = s.AnalyzeFile(context.Background(), path, nil, types.DefaultAnalysisOptions())
	require.NoError(t, err)
	require.Len(t, res.Functions, 1)
	assert.Equal(t, 4, res.Functions[0].StartLine)
}

func TestAnalyzeFileBodySplitByConditionals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "split.c")
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
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	s := NewService(Options{})

	res, err := s.AnalyzeFile(context.Background(), path, nil, types.DefaultAnalysisOptions())
	require.NoError(t, err)
	require.Len(t, res.Functions, 1)
	assert.Equal(t, 2, res.Functions[0].StartLine)
	assert.Equal(t, 11, res.Functions[0].EndLine)

	fa := res.Analyses["f"]
	require.NotNil(t, fa)
	require.Len(t, fa.Branches, 2)
	assert.Equal(t, "n > 1", fa.Branches[0].Condition)
	assert.Equal(t, 4, fa.Branches[0].Line)
	assert.Len(t, fa.Paths, 2)
}
