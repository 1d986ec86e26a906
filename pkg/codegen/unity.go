// Package codegen renders synthesized test suites as C test sources for the
// Unity test framework.
package codegen

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/l3aro/c-testforge/pkg/types"
)

// ErrNoFunction is returned when a suite is rendered without the function
// under test.
var ErrNoFunction = errors.New("no function under test")

// Options configures rendering.
type Options struct {
	// Include is the file the test includes to reach the function under
	// test. Defaults to the base name of the suite's source file.
	Include string
	// Generator is named in the file banner.
	Generator string
}

type unityFile struct {
	FileName   string
	Source     string
	Generator  string
	Include    string
	Signature  string
	Coverage   *types.CoverageSummary
	Infeasible []string
	Unresolved []string
	Globals    []string
	Tests      []unityTest
}

type unityTest struct {
	Name        string
	Description string
	Target      string
	Setup       []string
	Call        string
	Assert      string
}

var unityTemplate = template.Must(template.New("unity").Funcs(template.FuncMap{
	"percent": func(f float64) string { return fmt.Sprintf("%.1f%%", f*100) },
}).Parse(`/**
 * @file      {{.FileName}}
 * @brief     Unit tests for {{.Signature}} in {{.Source}}
 * @details   Generated by {{.Generator}}
{{- with .Coverage}}
 *
 * Coverage: lines {{percent .Lines}}, branches {{percent .Branches}}, paths {{percent .Paths}}
{{- end}}
{{- range .Infeasible}}
 * Infeasible: {{.}}
{{- end}}
{{- range .Unresolved}}
 * Unresolved: {{.}}
{{- end}}
 */

#include "unity.h"
#include "{{.Include}}"

{{range .Globals}}extern {{.}};
{{end}}{{if .Globals}}
{{end}}void setUp(void)
{
}

void tearDown(void)
{
}
{{range .Tests}}
/* {{.Description}}{{with .Target}} [{{.}}]{{end}} */
void {{.Name}}(void)
{
{{- range .Setup}}
    {{.}}
{{- end}}
    {{.Call}}
{{- with .Assert}}
    {{.}}
{{- end}}
}
{{end}}
int main(void)
{
    UNITY_BEGIN();
{{- range .Tests}}
    RUN_TEST({{.Name}});
{{- end}}
    return UNITY_END();
}
`))

// RenderUnity writes suite as a Unity test file calling fn. Inputs bound to
// parameters become locals passed in declaration order, inputs bound to
// globals are assigned before the call, and pointer parameters without an
// input are passed NULL. A suite with no cases gets one ignored
// placeholder test.
func RenderUnity(w io.Writer, suite *types.TestSuite, fn *types.Function, opts Options) error {
	if fn == nil {
		return ErrNoFunction
	}
	source := suite.File
	if source == "" {
		source = fn.File
	}
	file := unityFile{
		FileName:   "test_" + fn.Name + ".c",
		Source:     filepath.Base(source),
		Generator:  opts.Generator,
		Include:    opts.Include,
		Signature:  fn.Signature(),
		Coverage:   suite.Coverage,
		Infeasible: suite.Infeasible,
		Unresolved: suite.Unresolved,
	}
	if file.Generator == "" {
		file.Generator = "ctf"
	}
	if file.Include == "" {
		file.Include = file.Source
	}

	globals := make(map[string]bool)
	for _, tc := range suite.Cases {
		test := renderCase(tc, fn)
		file.Tests = append(file.Tests, test)
		for _, in := range tc.Inputs {
			if fn.Parameter(in.Name) == nil && !globals[in.Name] {
				globals[in.Name] = true
				file.Globals = append(file.Globals, declaration(in.Type, in.Name, len(in.ArrayValues)))
			}
		}
	}
	if len(file.Tests) == 0 {
		file.Tests = []unityTest{{
			Name:        "test_" + fn.Name + "_placeholder",
			Description: "no test cases were generated",
			Call:        `TEST_IGNORE_MESSAGE("no test cases");`,
		}}
	}

	var buf bytes.Buffer
	if err := unityTemplate.Execute(&buf, file); err != nil {
		return fmt.Errorf("rendering tests for %s: %w", fn.Name, err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Unity renders suite to a string.
func Unity(suite *types.TestSuite, fn *types.Function, opts Options) (string, error) {
	var sb strings.Builder
	if err := RenderUnity(&sb, suite, fn, opts); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func renderCase(tc types.TestCase, fn *types.Function) unityTest {
	test := unityTest{
		Name:        cIdentifier(tc.Name),
		Description: tc.Description,
		Target:      tc.Target,
	}
	if test.Description == "" {
		test.Description = tc.Name
	}
	if !strings.HasPrefix(test.Name, "test") {
		test.Name = "test_" + test.Name
	}

	for _, in := range tc.Inputs {
		if fn.Parameter(in.Name) != nil {
			continue
		}
		if len(in.ArrayValues) > 0 {
			for i, v := range in.ArrayValues {
				test.Setup = append(test.Setup, fmt.Sprintf("%s[%d] = %s;", in.Name, i, v))
			}
			continue
		}
		test.Setup = append(test.Setup, fmt.Sprintf("%s = %s;", in.Name, in.Literal()))
	}

	args := make([]string, 0, len(fn.Parameters))
	for _, p := range fn.Parameters {
		in := tc.Input(p.Name)
		switch {
		case in != nil:
			typeName := in.Type
			if typeName == "" {
				typeName = p.TypeName
			}
			test.Setup = append(test.Setup, fmt.Sprintf("%s = %s;", declaration(typeName, p.Name, p.ArraySize), in.Literal()))
			args = append(args, p.Name)
		case p.IsPointer:
			args = append(args, "NULL")
		default:
			args = append(args, "0")
		}
	}
	call := fmt.Sprintf("%s(%s);", fn.Name, strings.Join(args, ", "))

	if returnsValue(fn.ReturnType) && tc.ExpectedReturn != "" {
		test.Call = fmt.Sprintf("%s actual = %s", fn.ReturnType, call)
		test.Assert = assertion(fn.ReturnType, tc.ExpectedReturn)
	} else {
		test.Call = call
	}
	for _, out := range tc.ExpectedOutputs {
		if out.Expected == "" {
			continue
		}
		test.Assert = strings.TrimSpace(test.Assert + "\n    " + fmt.Sprintf("TEST_ASSERT_EQUAL(%s, %s);", out.Expected, out.Name))
	}
	return test
}

func returnsValue(returnType string) bool {
	t := strings.TrimSpace(returnType)
	return t != "" && t != "void"
}

// assertion picks the Unity macro matching the return type.
func assertion(returnType, expected string) string {
	if strings.Contains(returnType, "*") {
		return fmt.Sprintf("TEST_ASSERT_EQUAL_PTR(%s, actual);", expected)
	}
	s, ok := types.LookupScalar(returnType)
	switch {
	case ok && s.Float && s.Size == 4:
		return fmt.Sprintf("TEST_ASSERT_EQUAL_FLOAT(%s, actual);", expected)
	case ok && s.Float:
		return fmt.Sprintf("TEST_ASSERT_EQUAL_DOUBLE(%s, actual);", expected)
	case ok && !s.Signed && !s.Bool:
		return fmt.Sprintf("TEST_ASSERT_EQUAL_UINT(%s, actual);", expected)
	case ok:
		return fmt.Sprintf("TEST_ASSERT_EQUAL_INT(%s, actual);", expected)
	}
	return fmt.Sprintf("TEST_ASSERT_EQUAL(%s, actual);", expected)
}

func declaration(typeName, name string, arraySize int) string {
	if typeName == "" {
		typeName = "int"
	}
	if arraySize > 0 {
		return fmt.Sprintf("%s %s[%d]", typeName, name, arraySize)
	}
	return typeName + " " + name
}

func cIdentifier(s string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, s)
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "_" + out
	}
	return out
}
