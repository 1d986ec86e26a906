package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/c-testforge/pkg/types"
)

// macrosCmd represents the macros command
var macrosCmd = &cobra.Command{
	Use:   "macros <file>",
	Short: "Show macro definitions, conditionals and cycles",
	Long: `Extracts the #define table, the conditional directive tree and its evaluation
under the active macro set (-D flags and the project defines), and any
recursive macro definitions.`,
	Args: cobra.ExactArgs(1),
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
		r, err := svc.Extract(cmd.Context(), path, active)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), r.Preproc)
		}

		w := cmd.OutOrStdout()
		pre := r.Preproc
		fmt.Fprintf(w, "=== Macros: %s ===\n", args[0])
		fmt.Fprintf(w, "\nDefinitions (%d):\n", len(pre.Definitions))
		for _, d := range pre.Definitions {
			state := ""
			if !d.Enabled {
				state = " (disabled)"
			}
			name := d.Name
			if d.IsFunctionLike() {
				name = fmt.Sprintf("%s(%s)", d.Name, strings.Join(d.Parameters, ", "))
			}
			fmt.Fprintf(w, "  %4d  %-24s %-12s %s%s\n", d.Line, name, d.Type, d.Value, state)
		}

		if len(pre.Includes) > 0 {
			fmt.Fprintf(w, "\nIncludes:\n")
			for _, inc := range pre.Includes {
				if inc.IsSystem {
					fmt.Fprintf(w, "  %4d  <%s>\n", inc.Line, inc.Path)
				} else {
					fmt.Fprintf(w, "  %4d  %q\n", inc.Line, inc.Path)
				}
			}
		}

		if pre.Conditionals != nil && pre.Conditionals.Len() > 0 {
			fmt.Fprintf(w, "\nConditionals:\n")
			for _, d := range pre.Conditionals.Directives {
				fmt.Fprintf(w, "  %4d-%-4d #%-7s %-28s %s\n", d.StartLine, d.EndLine, d.Type, d.Condition, evaluation(pre.Evaluations, d))
			}
		}

		for _, cy := range pre.Cycles.Cycles {
			fmt.Fprintf(w, "\nCycle: %s", cy)
		}
		for _, name := range pre.Cycles.DepthExceeded {
			fmt.Fprintf(w, "\nDepth exceeded: %s", name)
		}
		if len(pre.Cycles.Cycles)+len(pre.Cycles.DepthExceeded) > 0 {
			fmt.Fprintln(w)
		}
		printDiagnostics(w, pre.Diagnostics, types.SeverityWarning)
		return nil
	},
}

func evaluation(evals map[int]bool, d types.ConditionalDirective) string {
	taken, ok := evals[d.ID]
	switch {
	case !ok:
		return "unevaluated"
	case taken:
		return "taken"
	}
	return "skipped"
}

func init() {
	addJSONFlag(macrosCmd)
	RootCmd.AddCommand(macrosCmd)
}
