package commands

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/l3aro/c-testforge/internal/log"
	"github.com/l3aro/c-testforge/pkg/analysis"
	"github.com/l3aro/c-testforge/pkg/types"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a C project or file",
	Long: `Analyzes every C source under a directory, or a single file, and prints a
summary of definitions, variables, functions, cycles and diagnostics.`,
	Args: cobra.RangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		c, logger, svc, err := setup(cmd)
		if err != nil {
			return err
		}
		active, err := activeMacros(cmd, c)
		if err != nil {
			return err
		}
		opts := c.AnalysisOptions()
		if detail, _ := cmd.Flags().GetString("detail"); detail != "" {
			opts.Detail = types.DetailLevel(detail)
		}

		absPath, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("getting absolute path: %w", err)
		}

		var spinner *log.ProgressSpinner
		if !wantJSON(cmd) {
			spinner = log.NewProgressSpinner(cmd.ErrOrStderr(), "Analyzing "+path)
			spinner.Start()
		}
		res, err := analyzePath(cmd, svc, absPath, c.Project.IncludePaths, active, opts)
		if spinner != nil {
			spinner.Stop()
		}
		if err != nil {
			return err
		}
		logger.Debug("analysis finished", "path", absPath, "files", len(res.Files))

		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), struct {
				Summary analysis.Summary `json:"summary"`
				*analysis.Result
			}{res.Summarize(), res})
		}
		printAnalysis(cmd.OutOrStdout(), res)
		return nil
	},
}

func printAnalysis(w io.Writer, res *analysis.Result) {
	s := res.Summarize()
	fmt.Fprintf(w, "=== Analysis: %s ===\n", res.Project)
	fmt.Fprintf(w, "Files: %d (%d failed)\n", s.Files, s.Failed)
	fmt.Fprintf(w, "Definitions: %d\n", s.Definitions)
	fmt.Fprintf(w, "Variables: %d (%d constraints)\n", s.Variables, s.Constraints)
	fmt.Fprintf(w, "Functions: %d\n", s.Functions)
	fmt.Fprintf(w, "Macro cycles: %d\n", s.MacroCycles)
	fmt.Fprintf(w, "Call cycles: %d\n", s.CallCycles)

	if len(res.Analyses) > 0 {
		names := make([]string, 0, len(res.Analyses))
		for name := range res.Analyses {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(w, "\nFunctions (complexity, branches, paths):\n")
		for _, name := range names {
			fa := res.Analyses[name]
			fmt.Fprintf(w, "  %-32s %3d %4d %4d\n", name, fa.Metrics.CyclomaticComplexity, len(fa.Branches), len(fa.Paths))
		}
	}

	for _, c := range res.MacroCycles.Cycles {
		fmt.Fprintf(w, "\nMacro cycle: %s", c)
	}
	for _, c := range res.CallCycles.Cycles {
		fmt.Fprintf(w, "\nCall cycle (%s): %s", c.Kind, c)
	}
	if len(res.MacroCycles.Cycles)+len(res.CallCycles.Cycles) > 0 {
		fmt.Fprintln(w)
	}

	for _, path := range res.Failed() {
		fmt.Fprintf(w, "\nFailed: %s: %s", path, res.FileErrors[path])
	}
	printDiagnostics(w, res.Diagnostics, types.SeverityWarning)
}

// printDiagnostics prints the diagnostics at or above floor.
func printDiagnostics(w io.Writer, diags []types.Diagnostic, floor types.Severity) {
	rank := map[types.Severity]int{
		types.SeverityInfo:     0,
		types.SeverityWarning:  1,
		types.SeverityError:    2,
		types.SeverityCritical: 3,
	}
	header := false
	for _, d := range diags {
		if rank[d.Severity] < rank[floor] {
			continue
		}
		if !header {
			fmt.Fprintf(w, "\nDiagnostics:\n")
			header = true
		}
		loc := d.File
		if d.Line > 0 {
			loc = fmt.Sprintf("%s:%d", d.File, d.Line)
		}
		if loc == "" {
			loc = "-"
		}
		fmt.Fprintf(w, "  [%s] %s: %s\n", d.Severity, loc, d.Message)
	}
}

func init() {
	addJSONFlag(analyzeCmd)
	analyzeCmd.Flags().String("detail", "", "Detail level: basic, detailed or comprehensive")
	RootCmd.AddCommand(analyzeCmd)
}
