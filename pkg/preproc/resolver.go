package preproc

import (
	"github.com/l3aro/c-testforge/pkg/types"
)

// Result is everything the resolver derives from one file.
type Result struct {
	Definitions  []types.Definition       `json:"definitions"`
	Includes     []types.IncludeDirective `json:"includes"`
	Conditionals *types.DirectiveArena    `json:"conditionals"`
	Evaluations  map[int]bool             `json:"evaluations"`
	Cycles       CycleReport              `json:"cycles"`
	ActiveLines  []bool                   `json:"-"`
	Diagnostics  []types.Diagnostic       `json:"diagnostics,omitempty"`
}

// Options configures Resolve.
type Options struct {
	// Active is the macro set supplied by the project, e.g. -D flags.
	Active map[string]string
	// MaxDepth bounds cycle detection.
	MaxDepth int
}

// Resolve runs every resolver pass over lines. Macros defined in active
// regions of the file join the project macro set before conditionals are
// evaluated, so a file-local #define can enable a later #ifdef.
func Resolve(lines []string, file string, opts Options) *Result {
	res := &Result{
		Definitions: ExtractDefinitions(lines, file),
		Includes:    ExtractIncludes(lines),
	}
	arena, diags := ExtractConditionals(lines, file)
	res.Conditionals = arena
	res.Diagnostics = append(res.Diagnostics, diags...)

	ResolveDependencies(res.Definitions, arena)

	active := ActiveSet(opts.Active, nil)
	mask := ActiveLines(arena, len(lines), active)
	MarkEnabled(res.Definitions, mask)

	active = ActiveSet(opts.Active, res.Definitions)
	res.ActiveLines = ActiveLines(arena, len(lines), active)
	MarkEnabled(res.Definitions, res.ActiveLines)

	evals, evalDiags := EvaluateAll(arena, active, file)
	res.Evaluations = evals
	res.Diagnostics = append(res.Diagnostics, evalDiags...)

	res.Cycles = DetectCycles(res.Definitions, opts.MaxDepth)
	for _, c := range res.Cycles.Cycles {
		res.Diagnostics = append(res.Diagnostics, types.Info(file, 0, "preproc", "circular macro dependency: "+c.String()))
	}
	for _, name := range res.Cycles.DepthExceeded {
		res.Diagnostics = append(res.Diagnostics, types.Warning(file, 0, "preproc", "macro dependency depth exceeded at "+name))
	}
	return res
}

// ActiveSet merges project macros with the enabled object-like definitions
// of a file. Project values win.
func ActiveSet(project map[string]string, defs []types.Definition) map[string]string {
	active := make(map[string]string, len(project)+len(defs))
	for _, d := range defs {
		if d.Enabled && d.Type == types.DefinitionConstant {
			active[d.Name] = d.Value
		}
	}
	for k, v := range project {
		active[k] = v
	}
	return active
}
