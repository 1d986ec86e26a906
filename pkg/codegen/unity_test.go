package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/c-testforge/pkg/types"
)

var clamp = &types.Function{
	Name:       "clamp",
	ReturnType: "int",
	Parameters: []types.Parameter{{Name: "v", TypeName: "int"}},
	File:       "/src/clamp.c",
}

func clampSuite() *types.TestSuite {
	return &types.TestSuite{
		Name:     "test_clamp",
		Function: "clamp",
		File:     "/src/clamp.c",
		Coverage: &types.CoverageSummary{Lines: 1, Branches: 1, Paths: 1},
		Cases: []types.TestCase{
			{
				Name:           "test_clamp_P1",
				Description:    "covers path P1",
				Target:         "P1",
				Inputs:         []types.TestInput{{Name: "v", Type: "int", Value: "101"}},
				ExpectedReturn: "100",
			},
			{
				Name:           "test_clamp_P2",
				Target:         "P2",
				Inputs:         []types.TestInput{{Name: "v", Type: "int", Value: "-1"}},
				ExpectedReturn: "0",
			},
		},
	}
}

func TestRenderUnity(t *testing.T) {
	out, err := Unity(clampSuite(), clamp, Options{})
	require.NoError(t, err)

	assert.Contains(t, out, " * @file      test_clamp.c\n")
	assert.Contains(t, out, "Unit tests for int clamp(int v) in clamp.c")
	assert.Contains(t, out, "Coverage: lines 100.0%, branches 100.0%, paths 100.0%")
	assert.Contains(t, out, "#include \"unity.h\"\n#include \"clamp.c\"\n")
	assert.Contains(t, out, `/* covers path P1 [P1] */
void test_clamp_P1(void)
{
    int v = 101;
    int actual = clamp(v);
    TEST_ASSERT_EQUAL_INT(100, actual);
}`)
	assert.Contains(t, out, "/* test_clamp_P2 [P2] */")
	assert.Contains(t, out, `    UNITY_BEGIN();
    RUN_TEST(test_clamp_P1);
    RUN_TEST(test_clamp_P2);
    return UNITY_END();`)
	assert.NotContains(t, out, "extern")
}

func TestRenderUnityGlobalsAndPointers(t *testing.T) {
	fn := &types.Function{
		Name:       "fill",
		ReturnType: "void",
		Parameters: []types.Parameter{
			{Name: "buf", TypeName: "unsigned char", IsPointer: true, ArraySize: 3},
			{Name: "ctx", TypeName: "struct ctx", IsPointer: true},
			{Name: "n", TypeName: "int"},
		},
	}
	suite := &types.TestSuite{
		File:       "fill.c",
		Infeasible: []string{"B7:T"},
		Cases: []types.TestCase{{
			Name: "fill case",
			Inputs: []types.TestInput{
				{Name: "buf", Type: "unsigned char", ArrayValues: []string{"1", "2", "3"}},
				{Name: "n", Type: "int", Value: "3"},
				{Name: "limit", Type: "unsigned char", Value: "7"},
			},
			ExpectedReturn: "1",
		}},
	}

	out, err := Unity(suite, fn, Options{Include: "fill.h", Generator: "unit"})
	require.NoError(t, err)
	assert.Contains(t, out, "Generated by unit")
	assert.Contains(t, out, " * Infeasible: B7:T")
	assert.Contains(t, out, "#include \"fill.h\"")
	assert.Contains(t, out, "extern unsigned char limit;\n")
	assert.Contains(t, out, "void test_fill_case(void)")
	assert.Contains(t, out, `    limit = 7;
    unsigned char buf[3] = {1, 2, 3};
    int n = 3;
    fill(buf, NULL, n);
}`)
	assert.NotContains(t, out, "actual")
}

func TestRenderUnityEmptySuite(t *testing.T) {
	out, err := Unity(&types.TestSuite{Unresolved: []string{"P2"}}, clamp, Options{})
	require.NoError(t, err)
	assert.Contains(t, out, " * Unresolved: P2")
	assert.Contains(t, out, "#include \"clamp.c\"")
	assert.Contains(t, out, `TEST_IGNORE_MESSAGE("no test cases");`)
	assert.Contains(t, out, "RUN_TEST(test_clamp_placeholder);")
	assert.NotContains(t, out, "Coverage:")
}

func TestRenderUnityRequiresFunction(t *testing.T) {
	var sb strings.Builder
	assert.ErrorIs(t, RenderUnity(&sb, clampSuite(), nil, Options{}), ErrNoFunction)
	assert.Zero(t, sb.Len())
}

func TestAssertion(t *testing.T) {
	tests := []struct {
		returnType string
		want       string
	}{
		{"int", "TEST_ASSERT_EQUAL_INT(1, actual);"},
		{"unsigned char", "TEST_ASSERT_EQUAL_UINT(1, actual);"},
		{"float", "TEST_ASSERT_EQUAL_FLOAT(1, actual);"},
		{"double", "TEST_ASSERT_EQUAL_DOUBLE(1, actual);"},
		{"char *", "TEST_ASSERT_EQUAL_PTR(1, actual);"},
		{"state_t", "TEST_ASSERT_EQUAL(1, actual);"},
	}
	for _, tt := range tests {
		t.Run(tt.returnType, func(t *testing.T) {
			assert.Equal(t, tt.want, assertion(tt.returnType, "1"))
		})
	}
}
