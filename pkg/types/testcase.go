package types

import (
	"errors"
	"fmt"
	"strings"
)

// TestCaseType classifies a test case.
type TestCaseType string

const (
	TestCaseUnit        TestCaseType = "unit"
	TestCaseIntegration TestCaseType = "integration"
)

// TestCaseStatus is the execution state of a test case.
type TestCaseStatus string

const (
	StatusNotRun  TestCaseStatus = "not_run"
	StatusPassed  TestCaseStatus = "passed"
	StatusFailed  TestCaseStatus = "failed"
	StatusError   TestCaseStatus = "error"
	StatusSkipped TestCaseStatus = "skipped"
)

// ErrAlreadyExecuted is returned when a finished test case is modified.
var ErrAlreadyExecuted = errors.New("test case already executed")

// TestInput binds one input variable.
type TestInput struct {
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type,omitempty" yaml:"type,omitempty"`
	Value       string   `json:"value,omitempty" yaml:"value,omitempty"`
	ArrayValues []string `json:"array_values,omitempty" yaml:"array_values,omitempty"`
	Provenance  string   `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

// Literal renders the binding as a C initializer.
func (in TestInput) Literal() string {
	if len(in.ArrayValues) > 0 {
		return "{" + strings.Join(in.ArrayValues, ", ") + "}"
	}
	return in.Value
}

// TestOutput is an expected or observed output variable.
type TestOutput struct {
	Name     string `json:"name" yaml:"name"`
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
	Actual   string `json:"actual,omitempty" yaml:"actual,omitempty"`
}

// TestCase is a concrete input vector for one function.
type TestCase struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name" yaml:"name"`
	Description     string         `json:"description,omitempty" yaml:"description,omitempty"`
	Function        string         `json:"function" yaml:"function"`
	Type            TestCaseType   `json:"type" yaml:"type"`
	Inputs          []TestInput    `json:"inputs" yaml:"inputs"`
	ExpectedOutputs []TestOutput   `json:"expected_outputs,omitempty" yaml:"expected_outputs,omitempty"`
	ExpectedReturn  string         `json:"expected_return,omitempty" yaml:"expected_return,omitempty"`
	ActualReturn    string         `json:"actual_return,omitempty" yaml:"actual_return,omitempty"`
	Status          TestCaseStatus `json:"status" yaml:"status"`
	Target          string         `json:"target,omitempty" yaml:"target,omitempty"` // Coverage gap the case was generated for
	Tags            []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Input returns the binding named name, or nil.
func (tc *TestCase) Input(name string) *TestInput {
	for i := range tc.Inputs {
		if tc.Inputs[i].Name == name {
			return &tc.Inputs[i]
		}
	}
	return nil
}

// Executed reports whether the case has a recorded result.
func (tc TestCase) Executed() bool {
	return tc.Status != "" && tc.Status != StatusNotRun
}

// RecordResult stores the outcome of running the case. A case can only be
// recorded once.
func (tc *TestCase) RecordResult(status TestCaseStatus, actualReturn string, outputs map[string]string) error {
	if tc.Executed() {
		return fmt.Errorf("%s: %w", tc.Name, ErrAlreadyExecuted)
	}
	tc.Status = status
	tc.ActualReturn = actualReturn
	for i := range tc.ExpectedOutputs {
		if v, ok := outputs[tc.ExpectedOutputs[i].Name]; ok {
			tc.ExpectedOutputs[i].Actual = v
		}
	}
	return nil
}

// CoverageSummary is the ratio view of a coverage measurement.
type CoverageSummary struct {
	Lines    float64 `json:"lines" yaml:"lines"`
	Branches float64 `json:"branches" yaml:"branches"`
	Paths    float64 `json:"paths" yaml:"paths"`
}

// TestSuite groups the cases generated for one function.
type TestSuite struct {
	Name       string           `json:"name" yaml:"name"`
	Function   string           `json:"function" yaml:"function"`
	File       string           `json:"file,omitempty" yaml:"file,omitempty"`
	Cases      []TestCase       `json:"cases" yaml:"cases"`
	Coverage   *CoverageSummary `json:"coverage,omitempty" yaml:"coverage,omitempty"`
	Infeasible []string         `json:"infeasible,omitempty" yaml:"infeasible,omitempty"`
	Unresolved []string         `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
}
