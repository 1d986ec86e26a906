package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/c-testforge/internal/config"
	"github.com/l3aro/c-testforge/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on configuration and toolchain",
	Long: `Checks the configuration and verifies that the C front end, the solver and
the feasibility store work.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		configPath := effectiveConfigPath(cmd)

		result, err := healthcheck.Check(cmd.Context(), c, configPath, configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(cmd.OutOrStdout(), result)
		if result.Failed() {
			return fmt.Errorf("health check failed: one or more components are not working")
		}
		return nil
	},
}

// effectiveConfigPath returns the highest-priority config file in use, or
// "" when only defaults apply.
func effectiveConfigPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	for _, path := range []string{config.ProjectConfigFilePath(), config.GlobalConfigFilePath()} {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(w io.Writer, result *healthcheck.HealthCheckResult) {
	if result.EffectivePath == "" {
		fmt.Fprintf(w, "Using config: defaults (run 'ctf init' to create a config file)\n\n")
	} else {
		fmt.Fprintf(w, "Using config: %s (%s)\n\n", result.EffectivePath, result.EffectiveScope)
	}

	for _, c := range result.Components() {
		fmt.Fprintf(w, "%s %s: %s\n", formatStatusIcon(c.Status), c.Name, c.Detail)
		if c.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", c.Error)
		}
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case healthcheck.StatusReady:
		return "✓"
	case healthcheck.StatusMemory:
		return "◐"
	case healthcheck.StatusError:
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
