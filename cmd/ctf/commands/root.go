// Package commands provides the CLI commands for the c-testforge tool.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/c-testforge/internal/config"
	"github.com/l3aro/c-testforge/internal/log"
	"github.com/l3aro/c-testforge/pkg/analysis"
	"github.com/l3aro/c-testforge/pkg/cache"
	"github.com/l3aro/c-testforge/pkg/cfg"
	"github.com/l3aro/c-testforge/pkg/types"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "ctf",
	Short: "c-testforge - C semantic analysis and test synthesis",
	Long: `c-testforge analyzes C sources and synthesizes unit-test inputs with measurable coverage.

Commands:
  analyze      Analyze a project or file
  macros       Show macro definitions, conditionals and cycles
  constraints  Show inferred variable constraints
  cfg          Show the control-flow graph of a function
  calls        Show the call graph of a function
  dfg          Show the def-use graph of a variable
  generate     Synthesize a test suite for a function
  init         Create a configuration file interactively
  doctor       Check configuration and engine components

Use "ctf [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file (YAML or TOML); defaults to ~/.ctf and ./.ctf layering")
	RootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	RootCmd.PersistentFlags().StringArrayP("define", "D", nil, "Define a macro, NAME or NAME=VALUE (repeatable)")
}

// loadConfig loads the configuration selected by the --config flag and
// applies the --log-level override.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		c   *config.Config
		err error
	)
	if path != "" {
		c, err = config.LoadFromFile(path)
	} else {
		c, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		c.Log.Level = level
	}
	return c, nil
}

// newLogger builds the logger described by c, writing to the command's
// error stream.
func newLogger(cmd *cobra.Command, c *config.Config) (log.Logger, error) {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	return log.New(log.LoggerConfig{
		Level:      level,
		JSONOutput: c.Log.JSON,
		Output:     cmd.ErrOrStderr(),
	}), nil
}

// newService wires an analysis service from c.
func newService(c *config.Config, logger log.Logger) *analysis.Service {
	var builder cfg.Builder
	if c.Analysis.CFGBuilder == config.BuilderSyntax {
		builder = cfg.NewSyntaxBuilder()
	}
	return analysis.NewService(analysis.Options{
		Workers:       c.Analysis.Workers,
		MaxCallDepth:  c.Analysis.MaxCallDepth,
		MaxMacroDepth: c.Analysis.MaxMacroDepth,
		MaxPaths:      c.Analysis.MaxPaths,
		Builder:       builder,
		Cache:         cache.New(cache.Options{MaxSize: c.Analysis.CacheSize}),
		Exclude:       c.Project.Exclude,
		Logger:        logger,
	})
}

// setup loads the configuration and builds the logger and service every
// command needs.
func setup(cmd *cobra.Command) (*config.Config, log.Logger, *analysis.Service, error) {
	c, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cmd, c)
	if err != nil {
		return nil, nil, nil, err
	}
	return c, logger, newService(c, logger), nil
}

// activeMacros merges the configured project defines with -D flags. Flags
// win.
func activeMacros(cmd *cobra.Command, c *config.Config) (map[string]string, error) {
	defines, _ := cmd.Flags().GetStringArray("define")
	flags, err := parseDefines(defines)
	if err != nil {
		return nil, err
	}
	active := make(map[string]string, len(c.Project.Defines)+len(flags))
	for k, v := range c.Project.Defines {
		active[k] = v
	}
	for k, v := range flags {
		active[k] = v
	}
	return active, nil
}

// parseDefines turns NAME and NAME=VALUE arguments into a macro set. A bare
// NAME is defined as 1, as a compiler's -D does.
func parseDefines(defines []string) (map[string]string, error) {
	out := make(map[string]string, len(defines))
	for _, d := range defines {
		name, value, found := strings.Cut(d, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid define %q", d)
		}
		if !found {
			value = "1"
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

// analyzePath analyzes path as a project when it is a directory and as a
// single file otherwise.
func analyzePath(cmd *cobra.Command, svc *analysis.Service, path string, includes []string, active map[string]string, opts types.AnalysisOptions) (*analysis.Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return svc.AnalyzeFile(cmd.Context(), path, active, opts)
	}
	return svc.AnalyzeProject(cmd.Context(), types.Project{
		Name:         filepath.Base(path),
		Root:         path,
		IncludePaths: includes,
		ActiveMacros: active,
	}, opts)
}

func addJSONFlag(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
