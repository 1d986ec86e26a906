package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/l3aro/c-testforge/pkg/cfg"
	"github.com/l3aro/c-testforge/pkg/dfg"
)

// dfgCmd represents the dfg command
var dfgCmd = &cobra.Command{
	Use:   "dfg <file> <function> <variable>",
	Short: "Show the def-use graph of a variable",
	Long: `Builds the definition/use graph of a variable inside a function. By default
each definition reaches every later read up to the next definition; --flow
refines the edges with reaching definitions over the control-flow graph.
--line prints the lines a value defined on that line propagates to.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, logger, svc, err := setup(cmd)
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
		body, ok := cfg.FunctionBody(fn, model.Lines)
		if !ok {
			return fmt.Errorf("%w: %s has no body", dfg.ErrEmptyInput, fn.Name)
		}
		g, err := dfg.Build(args[2], fn, body.Lines, body.FirstLine)
		if err != nil {
			return err
		}
		if flow, _ := cmd.Flags().GetBool("flow"); flow {
			fa, err := svc.Analyzer().Analyze(cmd.Context(), fn, model.Lines)
			if err != nil {
				return err
			}
			g = dfg.NewReachingDefsAnalyzer().Refine(g, fa.Graph)
			logger.Debug("refined def-use edges", "function", fn.Name, "variable", args[2], "edges", len(g.Edges))
		}

		line, _ := cmd.Flags().GetInt("line")
		var reached []int
		if line > 0 {
			reached = dfg.Propagation(g, line)
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), struct {
				*dfg.DataFlowGraph
				Propagation []int `json:"propagation,omitempty"`
			}{g, reached})
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "=== DFG: %s in %s ===\n", g.Variable, g.Function)
		if len(g.Nodes) == 0 {
			fmt.Fprintf(w, "No occurrences.\n")
			return nil
		}
		fmt.Fprintf(w, "\nOccurrences (%d):\n", len(g.Nodes))
		for _, n := range g.Nodes {
			fmt.Fprintf(w, "  %3d  %-11s L%-4d %s\n", n.ID, n.Kind, n.Line, n.Text)
		}
		fmt.Fprintf(w, "\nDef-use edges (%d):\n", len(g.Edges))
		for _, e := range g.Edges {
			from, to := g.Node(e.From), g.Node(e.To)
			fmt.Fprintf(w, "  %3d (L%d) -> %3d (L%d)\n", e.From, from.Line, e.To, to.Line)
		}
		if line > 0 {
			fmt.Fprintf(w, "\nPropagation from line %d: %v\n", line, reached)
		}
		return nil
	},
}

func init() {
	addJSONFlag(dfgCmd)
	dfgCmd.Flags().Bool("flow", false, "Refine edges with reaching definitions over the control-flow graph")
	dfgCmd.Flags().Int("line", 0, "Print the lines reached from the occurrences on this line")
	RootCmd.AddCommand(dfgCmd)
}
