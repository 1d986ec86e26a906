package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/l3aro/c-testforge/pkg/callgraph"
	"github.com/l3aro/c-testforge/pkg/types"
)

// callsCmd represents the calls command
var callsCmd = &cobra.Command{
	Use:   "calls <path> <function>",
	Short: "Show the call graph of a function",
	Long: `Builds the call graph reachable from a function, enumerates the call paths
from it and reports recursion. The path may be a file or a project
directory; with a directory, calls across files are followed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, svc, err := setup(cmd)
		if err != nil {
			return err
		}
		active, err := activeMacros(cmd, c)
		if err != nil {
			return err
		}
		depth, _ := cmd.Flags().GetInt("depth")
		if depth <= 0 {
			depth = c.Analysis.MaxCallDepth
		}
		maxPaths, _ := cmd.Flags().GetInt("max-paths")

		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("getting absolute path: %w", err)
		}
		opts := c.AnalysisOptions()
		opts.Detail = types.DetailBasic
		res, err := analyzePath(cmd, svc, path, c.Project.IncludePaths, active, opts)
		if err != nil {
			return err
		}

		g, err := callgraph.Build(args[1], res.Functions, depth)
		if err != nil {
			return err
		}
		paths, truncated := callgraph.FindCallPaths(g, args[1], maxPaths)
		cycles := callgraph.DetectCycles(g.Adjacency(), depth)
		callers := callgraph.Callers(res.Functions, args[1])

		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), struct {
				Graph          *callgraph.Graph      `json:"graph"`
				Callers        []string              `json:"callers"`
				Paths          []callgraph.CallPath  `json:"paths"`
				PathsTruncated bool                  `json:"paths_truncated,omitempty"`
				Cycles         callgraph.CycleReport `json:"cycles"`
			}{g, callers, paths, truncated, cycles})
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "=== Calls: %s ===\n", args[1])
		if len(callers) > 0 {
			fmt.Fprintf(w, "Called by: %v\n", callers)
		}
		fmt.Fprintf(w, "\nFunctions (%d):\n", len(g.Nodes))
		for _, n := range g.Nodes {
			where := "external"
			if !n.External {
				where = fmt.Sprintf("%s:%d", filepath.Base(n.File), n.Line)
			}
			fmt.Fprintf(w, "  %2d  %-28s %s\n", n.Depth, n.Name, where)
		}
		if g.Truncated {
			fmt.Fprintf(w, "  (depth limit %d reached)\n", depth)
		}
		fmt.Fprintf(w, "\nPaths (%d):\n", len(paths))
		for _, p := range paths {
			mark := ""
			if p.Cyclic {
				mark = "  (cycle)"
			}
			fmt.Fprintf(w, "  %s%s\n", p, mark)
		}
		if truncated {
			fmt.Fprintf(w, "  (truncated)\n")
		}
		for _, cy := range cycles.Cycles {
			fmt.Fprintf(w, "\nRecursion (%s): %s", cy.Kind, cy)
		}
		if len(cycles.Cycles) > 0 {
			fmt.Fprintln(w)
		}
		return nil
	},
}

func init() {
	addJSONFlag(callsCmd)
	callsCmd.Flags().Int("depth", 0, "Maximum call depth (defaults to analysis.max_call_depth)")
	callsCmd.Flags().Int("max-paths", callgraph.DefaultMaxPaths, "Maximum number of call paths to enumerate")
	RootCmd.AddCommand(callsCmd)
}
