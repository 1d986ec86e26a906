package analysis

import (
	"sort"

	"github.com/l3aro/c-testforge/pkg/callgraph"
	"github.com/l3aro/c-testforge/pkg/cfg"
	"github.com/l3aro/c-testforge/pkg/dfg"
	"github.com/l3aro/c-testforge/pkg/preproc"
	"github.com/l3aro/c-testforge/pkg/types"
)

// Result is the aggregate of a project analysis. Definitions, variables
// and functions are merged across files with the first occurrence winning.
// Conditionals, evaluations and includes stay per file.
type Result struct {
	Project string   `json:"project,omitempty"`
	Files   []string `json:"files"`

	Definitions []types.Definition `json:"definitions,omitempty"`
	Variables   []types.Variable   `json:"variables,omitempty"`
	Functions   []types.Function   `json:"functions,omitempty"`

	Conditionals map[string]*types.DirectiveArena    `json:"conditionals,omitempty"`
	Evaluations  map[string]map[int]bool             `json:"evaluations,omitempty"`
	Includes     map[string][]types.IncludeDirective `json:"includes,omitempty"`

	MacroCycles preproc.CycleReport   `json:"macro_cycles"`
	CallCycles  callgraph.CycleReport `json:"call_cycles"`

	// Analyses holds the CFG and metrics of each function at the detailed
	// level and above.
	Analyses map[string]*cfg.FunctionAnalysis `json:"analyses,omitempty"`
	// DataFlow holds one graph per parameter of each function at the
	// comprehensive level.
	DataFlow map[string]map[string]*dfg.DataFlowGraph `json:"data_flow,omitempty"`

	Diagnostics []types.Diagnostic `json:"diagnostics,omitempty"`
	// FileErrors records the files that could not be analyzed.
	FileErrors map[string]string `json:"file_errors,omitempty"`

	// Models are the per-file entity models before merging.
	Models map[string]*types.FileModel `json:"-"`
}

func newResult(name string) *Result {
	return &Result{
		Project:      name,
		Conditionals: make(map[string]*types.DirectiveArena),
		Evaluations:  make(map[string]map[int]bool),
		Includes:     make(map[string][]types.IncludeDirective),
		Analyses:     make(map[string]*cfg.FunctionAnalysis),
		DataFlow:     make(map[string]map[string]*dfg.DataFlowGraph),
		FileErrors:   make(map[string]string),
		Models:       make(map[string]*types.FileModel),
	}
}

// FindFunction returns the merged function named name, or nil.
func (r *Result) FindFunction(name string) *types.Function {
	for i := range r.Functions {
		if r.Functions[i].Name == name {
			return &r.Functions[i]
		}
	}
	return nil
}

// Definition returns the merged definition named name, or nil.
func (r *Result) Definition(name string) *types.Definition {
	for i := range r.Definitions {
		if r.Definitions[i].Name == name {
			return &r.Definitions[i]
		}
	}
	return nil
}

// Globals returns the merged file-scope variables.
func (r *Result) Globals() []types.Variable {
	var out []types.Variable
	for _, v := range r.Variables {
		if v.Scope.IsFileScope() {
			out = append(out, v)
		}
	}
	return out
}

// Failed returns the files that could not be analyzed, sorted.
func (r *Result) Failed() []string {
	out := make([]string, 0, len(r.FileErrors))
	for path := range r.FileErrors {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Summary counts the main entities of r.
type Summary struct {
	Files         int `json:"files"`
	Failed        int `json:"failed"`
	Definitions   int `json:"definitions"`
	Variables     int `json:"variables"`
	Functions     int `json:"functions"`
	Constraints   int `json:"constraints"`
	MacroCycles   int `json:"macro_cycles"`
	CallCycles    int `json:"call_cycles"`
	MaxComplexity int `json:"max_complexity"`
	Warnings      int `json:"warnings"`
	Errors        int `json:"errors"`
}

// Summarize counts the entities and findings of r.
func (r *Result) Summarize() Summary {
	s := Summary{
		Files:       len(r.Files),
		Failed:      len(r.FileErrors),
		Definitions: len(r.Definitions),
		Variables:   len(r.Variables),
		Functions:   len(r.Functions),
		MacroCycles: len(r.MacroCycles.Cycles),
		CallCycles:  len(r.CallCycles.Cycles),
	}
	for _, v := range r.Variables {
		s.Constraints += len(v.Constraints)
	}
	for _, fa := range r.Analyses {
		if fa.Metrics.CyclomaticComplexity > s.MaxComplexity {
			s.MaxComplexity = fa.Metrics.CyclomaticComplexity
		}
	}
	for _, d := range r.Diagnostics {
		switch d.Severity {
		case types.SeverityWarning:
			s.Warnings++
		case types.SeverityError, types.SeverityCritical:
			s.Errors++
		}
	}
	return s
}
