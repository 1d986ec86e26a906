package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/l3aro/c-testforge/pkg/types"
	"gopkg.in/yaml.v3"
)

// CFG builder names accepted by analysis.cfg_builder.
const (
	BuilderTextual = "textual"
	BuilderSyntax  = "syntax"
)

// Config holds all configuration for ctf. It is loaded once per command and
// passed explicitly to the components that need it.
type Config struct {
	Analysis  AnalysisConfig  `yaml:"analysis" toml:"analysis"`
	Synthesis SynthesisConfig `yaml:"synthesis" toml:"synthesis"`
	Project   ProjectConfig   `yaml:"project" toml:"project"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

// AnalysisConfig tunes the static analysis passes.
type AnalysisConfig struct {
	// Detail is one of basic, detailed or comprehensive
	Detail string `yaml:"detail" toml:"detail" env:"CTF_DETAIL"`

	// Workers bounds per-file and per-function parallelism
	Workers int `yaml:"workers" toml:"workers" env:"CTF_WORKERS"`

	// Recursion bounds for graph walks
	MaxCallDepth  int `yaml:"max_call_depth" toml:"max_call_depth" env:"CTF_MAX_CALL_DEPTH"`
	MaxMacroDepth int `yaml:"max_macro_depth" toml:"max_macro_depth" env:"CTF_MAX_MACRO_DEPTH"`

	// MaxPaths caps the path inventory of a single function
	MaxPaths int `yaml:"max_paths" toml:"max_paths" env:"CTF_MAX_PATHS"`

	// CFGBuilder selects the statement front-end: textual or syntax
	CFGBuilder string `yaml:"cfg_builder" toml:"cfg_builder" env:"CTF_CFG_BUILDER"`

	// CacheSize is the number of function analyses kept in memory
	CacheSize int `yaml:"cache_size" toml:"cache_size" env:"CTF_CACHE_SIZE"`
}

// SynthesisConfig tunes test synthesis.
type SynthesisConfig struct {
	TargetCoverage float64 `yaml:"target_coverage" toml:"target_coverage" env:"CTF_TARGET_COVERAGE"`
	MaxCases       int     `yaml:"max_cases" toml:"max_cases" env:"CTF_MAX_CASES"`

	// SolverTimeout is a Go duration string applied to each solver query
	SolverTimeout string `yaml:"solver_timeout" toml:"solver_timeout" env:"CTF_SOLVER_TIMEOUT"`

	// MaxCandidates bounds the bounded solver's search space per query
	MaxCandidates int `yaml:"max_candidates" toml:"max_candidates" env:"CTF_MAX_CANDIDATES"`

	// Parallelism bounds concurrent solver queries
	Parallelism int `yaml:"parallelism" toml:"parallelism" env:"CTF_PARALLELISM"`

	// FeasibilityStore is the file recording infeasible gaps; empty keeps them in memory
	FeasibilityStore string `yaml:"feasibility_store" toml:"feasibility_store" env:"CTF_FEASIBILITY_STORE"`
}

// ProjectConfig describes the sources under analysis.
type ProjectConfig struct {
	IncludePaths []string          `yaml:"include_paths" toml:"include_paths"`
	Defines      map[string]string `yaml:"defines" toml:"defines"`
	Exclude      []string          `yaml:"exclude" toml:"exclude"`
}

// LogConfig configures internal/log.
type LogConfig struct {
	Level string `yaml:"level" toml:"level" env:"CTF_LOG_LEVEL"`
	JSON  bool   `yaml:"json" toml:"json" env:"CTF_LOG_JSON"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Detail:        string(types.DetailDetailed),
			Workers:       4,
			MaxCallDepth:  32,
			MaxMacroDepth: 64,
			MaxPaths:      64,
			CFGBuilder:    BuilderTextual,
			CacheSize:     256,
		},
		Synthesis: SynthesisConfig{
			TargetCoverage: 0.9,
			MaxCases:       20,
			SolverTimeout:  "5s",
			MaxCandidates:  1 << 20,
			Parallelism:    4,
		},
		Project: ProjectConfig{
			Defines: map[string]string{},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// GlobalConfigFilePath returns the global config file path (~/.ctf/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ctf", "config.yaml")
	}
	return filepath.Join(home, ".ctf", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.ctf/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".ctf", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.ctf/config.yaml)
// 3. Global config (~/.ctf/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	return LoadLayered(GlobalConfigFilePath(), ProjectConfigFilePath())
}

// LoadLayered applies each existing file in order over the defaults, then the
// environment. Missing files are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML or TOML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeFile merges the file at path into cfg. The format follows the file
// extension: .toml is TOML, anything else is YAML.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		return nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to the specified path, as TOML when the path
// ends in .toml and YAML otherwise. It creates parent directories if they
// don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	var data []byte
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(c); err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		data = []byte(sb.String())
	} else {
		out, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		data = out
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CTF_DETAIL"); v != "" {
		cfg.Analysis.Detail = v
	}
	if v := os.Getenv("CTF_WORKERS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Analysis.Workers = i
		}
	}
	if v := os.Getenv("CTF_MAX_CALL_DEPTH"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Analysis.MaxCallDepth = i
		}
	}
	if v := os.Getenv("CTF_MAX_MACRO_DEPTH"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Analysis.MaxMacroDepth = i
		}
	}
	if v := os.Getenv("CTF_MAX_PATHS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Analysis.MaxPaths = i
		}
	}
	if v := os.Getenv("CTF_CFG_BUILDER"); v != "" {
		cfg.Analysis.CFGBuilder = v
	}
	if v := os.Getenv("CTF_CACHE_SIZE"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Analysis.CacheSize = i
		}
	}
	if v := os.Getenv("CTF_TARGET_COVERAGE"); v != "" {
		if f := parseFloat(v); f > 0 {
			cfg.Synthesis.TargetCoverage = f
		}
	}
	if v := os.Getenv("CTF_MAX_CASES"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Synthesis.MaxCases = i
		}
	}
	if v := os.Getenv("CTF_SOLVER_TIMEOUT"); v != "" {
		cfg.Synthesis.SolverTimeout = v
	}
	if v := os.Getenv("CTF_MAX_CANDIDATES"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Synthesis.MaxCandidates = i
		}
	}
	if v := os.Getenv("CTF_PARALLELISM"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Synthesis.Parallelism = i
		}
	}
	if v := os.Getenv("CTF_FEASIBILITY_STORE"); v != "" {
		cfg.Synthesis.FeasibilityStore = v
	}
	if v := os.Getenv("CTF_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CTF_LOG_JSON"); v != "" {
		cfg.Log.JSON = v == "true" || v == "1" || v == "yes"
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	switch types.DetailLevel(c.Analysis.Detail) {
	case types.DetailBasic, types.DetailDetailed, types.DetailComprehensive:
	default:
		return fmt.Errorf("invalid detail: %s (must be 'basic', 'detailed' or 'comprehensive')", c.Analysis.Detail)
	}
	switch c.Analysis.CFGBuilder {
	case BuilderTextual, BuilderSyntax:
	default:
		return fmt.Errorf("invalid cfg_builder: %s (must be 'textual' or 'syntax')", c.Analysis.CFGBuilder)
	}
	if c.Analysis.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Analysis.MaxCallDepth <= 0 || c.Analysis.MaxMacroDepth <= 0 {
		return fmt.Errorf("max_call_depth and max_macro_depth must be positive")
	}
	if c.Analysis.MaxPaths <= 0 {
		return fmt.Errorf("max_paths must be positive")
	}
	if c.Synthesis.TargetCoverage <= 0 || c.Synthesis.TargetCoverage > 1 {
		return fmt.Errorf("target_coverage must be in (0, 1]")
	}
	if c.Synthesis.MaxCases <= 0 {
		return fmt.Errorf("max_cases must be positive")
	}
	if c.Synthesis.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Synthesis.MaxCandidates <= 0 {
		return fmt.Errorf("max_candidates must be positive")
	}
	if d, err := time.ParseDuration(c.Synthesis.SolverTimeout); err != nil || d <= 0 {
		return fmt.Errorf("solver_timeout must be a positive duration, got %q", c.Synthesis.SolverTimeout)
	}
	return nil
}

// SolverTimeout returns the parsed per-query solver timeout.
func (c *Config) SolverTimeout() time.Duration {
	d, err := time.ParseDuration(c.Synthesis.SolverTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// AnalysisOptions derives the option set for an analysis request.
func (c *Config) AnalysisOptions() types.AnalysisOptions {
	opts := types.DefaultAnalysisOptions()
	opts.Detail = types.DetailLevel(c.Analysis.Detail)
	return opts
}

// parseFloat attempts to parse a string as float64
func parseFloat(s string) float64 {
	var f float64
	if _, err := fmt.Sscanf(s, "%f", &f); err != nil {
		return 0
	}
	return f
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0
	}
	return i
}
