package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/l3aro/c-testforge/pkg/types"
)

// constraintsCmd represents the constraints command
var constraintsCmd = &cobra.Command{
	Use:   "constraints <file> [variable]",
	Short: "Show inferred variable constraints",
	Long: `Infers value constraints for the variables of a file from their types,
initializers, comparisons and array indexing. Pass a variable name to
restrict the output to it.`,
	Args: cobra.RangeArgs(1, 2),
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
		opts := c.AnalysisOptions()
		opts.Detail = types.DetailBasic
		res, err := svc.AnalyzeFile(cmd.Context(), path, active, opts)
		if err != nil {
			return err
		}

		vars := res.Variables
		if len(args) == 2 {
			vars = nil
			for _, v := range res.Variables {
				if v.Name == args[1] {
					vars = append(vars, v)
				}
			}
			if len(vars) == 0 {
				return fmt.Errorf("variable %q not found in %s", args[1], args[0])
			}
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), vars)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "=== Constraints: %s ===\n", args[0])
		for _, v := range vars {
			owner := string(v.Scope)
			if v.Function != "" {
				owner = v.Function
			}
			fmt.Fprintf(w, "\n%s %s (%s, line %d)\n", v.TypeName, v.Name, owner, v.Line)
			if len(v.Constraints) == 0 {
				fmt.Fprintf(w, "  (none)\n")
				continue
			}
			for _, ct := range v.Constraints {
				strength := "soft"
				if ct.Hard {
					strength = "hard"
				}
				fmt.Fprintf(w, "  [%s] %s  <- %s\n", strength, ct, ct.Source)
			}
		}
		return nil
	},
}

func init() {
	addJSONFlag(constraintsCmd)
	RootCmd.AddCommand(constraintsCmd)
}
