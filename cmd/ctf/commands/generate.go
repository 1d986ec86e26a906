package commands

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/l3aro/c-testforge/internal/config"
	"github.com/l3aro/c-testforge/internal/log"
	"github.com/l3aro/c-testforge/pkg/analysis"
	"github.com/l3aro/c-testforge/pkg/codegen"
	"github.com/l3aro/c-testforge/pkg/solver"
	"github.com/l3aro/c-testforge/pkg/synth"
	"github.com/l3aro/c-testforge/pkg/types"
)

// Output formats of the generate command.
const (
	formatYAML  = "yaml"
	formatJSON  = "json"
	formatUnity = "unity"
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate <path> <function>",
	Short: "Synthesize a test suite for a function",
	Long: `Synthesizes test inputs for a function until the target line and branch
coverage is reached, the uncovered paths and branches run out, or the case
limit is hit. Gaps proven unsatisfiable are recorded as infeasible.

The suite is written as YAML (default), JSON, or a Unity C test file.
--existing extends a previously generated YAML or JSON suite.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, logger, svc, err := setup(cmd)
		if err != nil {
			return err
		}
		active, err := activeMacros(cmd, c)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		if wantJSON(cmd) {
			format = formatJSON
		}
		switch format {
		case formatYAML, formatJSON, formatUnity:
		default:
			return fmt.Errorf("unknown format %q (want yaml, json or unity)", format)
		}
		target, _ := cmd.Flags().GetFloat64("target")
		if target <= 0 {
			target = c.Synthesis.TargetCoverage
		}
		if target > 1 {
			return fmt.Errorf("target coverage must be in (0, 1], got %g", target)
		}
		maxCases, _ := cmd.Flags().GetInt("max")
		if maxCases <= 0 {
			maxCases = c.Synthesis.MaxCases
		}

		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("getting absolute path: %w", err)
		}
		opts := c.AnalysisOptions()
		if !opts.Detail.AtLeast(types.DetailDetailed) {
			opts.Detail = types.DetailDetailed
		}
		res, err := analyzePath(cmd, svc, path, c.Project.IncludePaths, active, opts)
		if err != nil {
			return err
		}
		fn := res.FindFunction(args[1])
		if fn == nil {
			return fmt.Errorf("%w: %s", analysis.ErrFunctionNotFound, args[1])
		}
		fa, ok := res.Analyses[fn.Name]
		if !ok {
			return fmt.Errorf("no control-flow analysis for %s", fn.Name)
		}

		var existing []types.TestCase
		if p, _ := cmd.Flags().GetString("existing"); p != "" {
			suite, err := readSuite(p)
			if err != nil {
				return err
			}
			existing = suite.Cases
		}

		s, err := newSynthesizer(c, logger)
		if err != nil {
			return err
		}

		report, err := s.Synthesize(cmd.Context(), synth.Request{
			Function:    fn,
			Analysis:    fa,
			Variables:   requestVariables(res, fn.Name),
			Functions:   res.Functions,
			Definitions: res.Definitions,
			Existing:    existing,
			Target:      target,
			MaxCases:    maxCases,
			File:        fn.File,
		})
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		switch format {
		case formatUnity:
			include, _ := cmd.Flags().GetString("include")
			err = codegen.RenderUnity(&buf, report.Suite, fn, codegen.Options{Include: include, Generator: "ctf " + RootCmd.Version})
		case formatJSON:
			err = printJSON(&buf, report)
		default:
			err = yaml.NewEncoder(&buf).Encode(report.Suite)
		}
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			_, err = buf.WriteTo(cmd.OutOrStdout())
			return err
		}
		if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		printReport(cmd.ErrOrStderr(), report, len(existing), out)
		return nil
	},
}

// newSynthesizer builds the synthesizer configured by c. Infeasible gaps are
// persisted when a feasibility store file is configured.
func newSynthesizer(c *config.Config, logger log.Logger) (*synth.Synthesizer, error) {
	var store synth.FeasibilityStore = synth.NewMemoryStore()
	if c.Synthesis.FeasibilityStore != "" {
		fs, err := synth.OpenFileStore(c.Synthesis.FeasibilityStore)
		if err != nil {
			return nil, fmt.Errorf("opening feasibility store: %w", err)
		}
		store = fs
	}
	return synth.New(synth.Options{
		Solver: solver.NewBoundedSolver(solver.BoundedOptions{
			MaxCombinations: c.Synthesis.MaxCandidates,
			Logger:          logger,
		}),
		Store:         store,
		Timeout:       c.SolverTimeout(),
		Workers:       c.Synthesis.Parallelism,
		MaxMacroDepth: c.Analysis.MaxMacroDepth,
		Logger:        logger,
	}), nil
}

// requestVariables returns the parameters and locals of fn plus every
// file-scope variable.
func requestVariables(res *analysis.Result, fn string) []types.Variable {
	var out []types.Variable
	for _, v := range res.Variables {
		if v.Scope.IsFileScope() || v.Function == fn {
			out = append(out, v)
		}
	}
	return out
}

// readSuite loads a suite written by generate, as YAML or JSON. A JSON
// report is accepted too.
func readSuite(path string) (*types.TestSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite: %w", err)
	}
	var report synth.Report
	if err := yaml.Unmarshal(data, &report); err == nil && report.Suite != nil {
		return report.Suite, nil
	}
	var suite types.TestSuite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("parsing suite %s: %w", path, err)
	}
	if suite.Function == "" && len(suite.Cases) == 0 {
		return nil, fmt.Errorf("suite %s has no cases", path)
	}
	return &suite, nil
}

func printReport(w io.Writer, r *synth.Report, existing int, out string) {
	generated := r.Generated(existing)
	fmt.Fprintf(w, "Wrote %d test case(s) to %s (%d new, %d round(s))\n", len(r.Suite.Cases), out, len(generated), r.Rounds)
	if r.Before != nil && r.After != nil {
		fmt.Fprintf(w, "Branches: %.1f%% -> %.1f%%  Paths: %.1f%% -> %.1f%%\n",
			r.Before.BranchRatio*100, r.After.BranchRatio*100, r.Before.PathRatio*100, r.After.PathRatio*100)
	}
	if len(r.Infeasible) > 0 {
		fmt.Fprintf(w, "Infeasible: %v\n", r.Infeasible)
	}
	if len(r.Unresolved) > 0 {
		fmt.Fprintf(w, "Unresolved: %v\n", r.Unresolved)
	}
}

func init() {
	addJSONFlag(generateCmd)
	generateCmd.Flags().StringP("format", "f", formatYAML, "Output format: yaml, json or unity")
	generateCmd.Flags().StringP("output", "o", "", "Write the suite to this file instead of stdout")
	generateCmd.Flags().Float64("target", 0, "Target line and branch coverage in (0, 1] (defaults to synthesis.target_coverage)")
	generateCmd.Flags().Int("max", 0, "Maximum number of generated cases (defaults to synthesis.max_cases)")
	generateCmd.Flags().String("existing", "", "Extend the suite stored in this YAML or JSON file")
	generateCmd.Flags().String("include", "", "File the Unity test includes (defaults to the source file)")
	RootCmd.AddCommand(generateCmd)
}
