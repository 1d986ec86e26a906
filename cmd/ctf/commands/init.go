package commands

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/c-testforge/internal/config"
	"github.com/l3aro/c-testforge/internal/healthcheck"
	"github.com/l3aro/c-testforge/pkg/types"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize ctf configuration interactively",
	Long: `Guides you through setting up ctf configuration step by step.
Creates a config file with analysis and synthesis settings.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd)
	},
}

func runInit(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	cfg := config.DefaultConfig()

	// === SECTION 1: Analysis ===
	workers := strconv.Itoa(cfg.Analysis.Workers)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Analysis detail").
				Description("How much each analysis computes by default").
				Options(
					huh.NewOption("Basic - definitions, variables and constraints", string(types.DetailBasic)),
					huh.NewOption("Detailed - plus control-flow graphs and metrics", string(types.DetailDetailed)),
					huh.NewOption("Comprehensive - plus def-use graphs of parameters", string(types.DetailComprehensive)),
				).
				Value(&cfg.Analysis.Detail),
			huh.NewSelect[string]().
				Title("Control-flow graph builder").
				Options(
					huh.NewOption("Textual - token-level statement parser", config.BuilderTextual),
					huh.NewOption("Syntax - tree-sitter statement tree", config.BuilderSyntax),
				).
				Value(&cfg.Analysis.CFGBuilder),
			huh.NewInput().
				Title("Analysis workers").
				Placeholder(workers).
				Validate(positiveInt).
				Value(&workers),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Synthesis ===
	target := strconv.FormatFloat(cfg.Synthesis.TargetCoverage, 'f', -1, 64)
	maxCases := strconv.Itoa(cfg.Synthesis.MaxCases)
	timeout := cfg.Synthesis.SolverTimeout
	var persist bool
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Target line and branch coverage").
				Description("A ratio in (0, 1]").
				Placeholder(target).
				Validate(ratio).
				Value(&target),
			huh.NewInput().
				Title("Maximum generated test cases per function").
				Placeholder(maxCases).
				Validate(positiveInt).
				Value(&maxCases),
			huh.NewInput().
				Title("Solver timeout per query").
				Placeholder(timeout).
				Validate(duration).
				Value(&timeout),
			huh.NewConfirm().
				Title("Remember infeasible gaps between runs?").
				Affirmative("Yes, keep a feasibility store").
				Negative("No").
				Value(&persist),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 3: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Project (./.ctf/config.yaml)", "project"),
					huh.NewOption("Global (~/.ctf/config.yaml)", "global"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalConfigFilePath()
	}

	if fileExists(configPath) {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Fprintln(w, "Cancelled.")
			return nil
		}
	}

	// === Build config struct ===
	if err := applyAnswers(cfg, workers, target, maxCases); err != nil {
		return err
	}
	cfg.Synthesis.SolverTimeout = timeout
	if persist {
		cfg.Synthesis.FeasibilityStore = feasibilityStorePath(configPath)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Fprintln(w, "\n=== Configuration Preview ===")
	fmt.Fprintf(w, "Config path: %s\n", configPath)
	fmt.Fprintf(w, "Detail: %s\n", cfg.Analysis.Detail)
	fmt.Fprintf(w, "CFG builder: %s\n", cfg.Analysis.CFGBuilder)
	fmt.Fprintf(w, "Workers: %d\n", cfg.Analysis.Workers)
	fmt.Fprintf(w, "Target coverage: %.2f\n", cfg.Synthesis.TargetCoverage)
	fmt.Fprintf(w, "Max cases: %d\n", cfg.Synthesis.MaxCases)
	fmt.Fprintf(w, "Solver timeout: %s\n", cfg.Synthesis.SolverTimeout)
	if cfg.Synthesis.FeasibilityStore != "" {
		fmt.Fprintf(w, "Feasibility store: %s\n", cfg.Synthesis.FeasibilityStore)
	}
	fmt.Fprintln(w, "================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(w, "Configuration saved to: %s\n", configPath)

	// === SECTION 4: Health Check ===
	fmt.Fprintln(w, "\n=== Running Health Check ===")
	loadedCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}
	result, err := healthcheck.Check(cmd.Context(), loadedCfg, configPath, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	displayDoctorResult(w, result)

	fmt.Fprintln(w, "\n=== Initialization Complete ===")
	return nil
}

// applyAnswers stores the numeric prompt answers in cfg.
func applyAnswers(cfg *config.Config, workers, target, maxCases string) error {
	var err error
	if cfg.Analysis.Workers, err = strconv.Atoi(workers); err != nil {
		return fmt.Errorf("analysis workers %q: %w", workers, err)
	}
	if cfg.Synthesis.TargetCoverage, err = strconv.ParseFloat(target, 64); err != nil {
		return fmt.Errorf("target coverage %q: %w", target, err)
	}
	if cfg.Synthesis.MaxCases, err = strconv.Atoi(maxCases); err != nil {
		return fmt.Errorf("maximum cases %q: %w", maxCases, err)
	}
	return nil
}

// feasibilityStorePath places the store next to the config file.
func feasibilityStorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "feasibility.db")
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a positive whole number")
	}
	return nil
}

func ratio(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || f > 1 {
		return fmt.Errorf("enter a number in (0, 1]")
	}
	return nil
}

func duration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fmt.Errorf("enter a duration such as 5s or 500ms")
	}
	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
