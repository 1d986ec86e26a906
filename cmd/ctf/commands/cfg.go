package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/c-testforge/pkg/types"
)

// cfgCmd represents the cfg command
var cfgCmd = &cobra.Command{
	Use:   "cfg <file> <function>",
	Short: "Show the control-flow graph of a function",
	Long: `Builds the control-flow graph of a function and prints its complexity
metrics, nodes, edges, branch outcomes and enumerated paths.`,
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
		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("getting absolute path: %w", err)
		}
		fn, model, err := svc.FindFunction(cmd.Context(), path, args[1], active)
		if err != nil {
			return err
		}
		fa, err := svc.Analyzer().Analyze(cmd.Context(), fn, model.Lines)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), fa)
		}

		w := cmd.OutOrStdout()
		m := fa.Metrics
		fmt.Fprintf(w, "=== CFG: %s ===\n", fn.Signature())
		fmt.Fprintf(w, "Complexity: %d  Nesting: %d  Statements: %d  Conditions: %d  LOC: %d\n",
			m.CyclomaticComplexity, m.NestingDepth, m.StatementCount, m.ConditionCount, m.LinesOfCode)

		g := fa.Graph
		fmt.Fprintf(w, "\nNodes (%d):\n", len(g.Nodes))
		for _, n := range g.Nodes {
			label := n.Condition
			if label == "" {
				label = strings.Join(n.Statements, " ")
			}
			fmt.Fprintf(w, "  %3d  %-10s L%-4d %s\n", n.ID, n.Type, n.Line, label)
		}
		fmt.Fprintf(w, "\nEdges (%d):\n", len(g.Edges))
		for _, e := range g.Edges {
			fmt.Fprintf(w, "  %3d -> %-3d %s\n", e.From, e.To, e.Type)
		}
		if len(fa.Branches) > 0 {
			fmt.Fprintf(w, "\nBranches:\n")
			for _, b := range fa.Branches {
				fmt.Fprintf(w, "  %-8s %s\n", b.ID, b.Guard())
			}
		}
		fmt.Fprintf(w, "\nPaths (%d):\n", len(fa.Paths))
		for _, p := range fa.Paths {
			fmt.Fprintf(w, "  %-4s %s\n", p.ID, p.Condition())
		}
		if fa.Truncated {
			fmt.Fprintf(w, "  (truncated)\n")
		}
		if len(g.UnreachableLines) > 0 {
			fmt.Fprintf(w, "\nUnreachable lines: %v\n", g.UnreachableLines)
		}
		printDiagnostics(w, fa.Diagnostics, types.SeverityInfo)
		return nil
	},
}

func init() {
	addJSONFlag(cfgCmd)
	RootCmd.AddCommand(cfgCmd)
}
