package healthcheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/l3aro/c-testforge/internal/config"
	"github.com/l3aro/c-testforge/pkg/ast"
	"github.com/l3aro/c-testforge/pkg/solver"
	"github.com/l3aro/c-testforge/pkg/synth"
)

// Component statuses.
const (
	StatusReady  = "ready"
	StatusMemory = "memory"
	StatusError  = "error"
)

// ComponentStatus represents the health of one part of the toolchain.
type ComponentStatus struct {
	Name   string
	Detail string
	Status string // "ready", "memory" or "error"
	Error  string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	Config         ComponentStatus
	FrontEnd       ComponentStatus
	Solver         ComponentStatus
	Store          ComponentStatus
}

// Failed reports whether any component is in error.
func (r *HealthCheckResult) Failed() bool {
	for _, c := range r.Components() {
		if c.Status == StatusError {
			return true
		}
	}
	return false
}

// Components returns the component statuses in display order.
func (r *HealthCheckResult) Components() []ComponentStatus {
	return []ComponentStatus{r.Config, r.FrontEnd, r.Solver, r.Store}
}

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
func Check(ctx context.Context, cfg *config.Config, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
	}

	result.Config = checkConfig(cfg)
	result.FrontEnd = checkFrontEnd(ctx)
	result.Solver = checkSolver(ctx, cfg)
	result.Store = checkStore(cfg.Synthesis.FeasibilityStore)

	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".ctf")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

func checkConfig(cfg *config.Config) ComponentStatus {
	status := ComponentStatus{
		Name:   "config",
		Detail: fmt.Sprintf("detail=%s builder=%s target=%.2f", cfg.Analysis.Detail, cfg.Analysis.CFGBuilder, cfg.Synthesis.TargetCoverage),
		Status: StatusReady,
	}
	if err := cfg.Validate(); err != nil {
		status.Status = StatusError
		status.Error = err.Error()
	}
	return status
}

const sampleSource = `int sample(int x)
{
    if (x > 3)
        return 1;
    return 0;
}
`

// checkFrontEnd parses a small function with the tree-sitter C grammar.
func checkFrontEnd(ctx context.Context) ComponentStatus {
	status := ComponentStatus{Name: "front end", Detail: "tree-sitter C"}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tu, err := ast.NewTreeSitterFrontEnd().Parse(ctx, "sample.c", []byte(sampleSource))
	switch {
	case err != nil:
		status.Status = StatusError
		status.Error = err.Error()
	case tu.Root == nil:
		status.Status = StatusError
		status.Error = "parser returned no tree"
	default:
		status.Status = StatusReady
	}
	return status
}

// checkSolver solves x > 3 over an unsigned char with the configured
// candidate bound.
func checkSolver(ctx context.Context, cfg *config.Config) ComponentStatus {
	status := ComponentStatus{
		Name:   "solver",
		Detail: fmt.Sprintf("bounded, %d candidates, timeout %s", cfg.Synthesis.MaxCandidates, cfg.SolverTimeout()),
	}
	s := solver.NewBoundedSolver(solver.BoundedOptions{MaxCombinations: cfg.Synthesis.MaxCandidates})
	res := s.Solve(ctx, solver.Query{
		Variables: []solver.Variable{{Name: "x", Type: "unsigned char", Domain: solver.TypeDomain("unsigned char")}},
		Hard:      []string{"x > 3"},
		Timeout:   cfg.SolverTimeout(),
	})
	if res.Status != solver.StatusSatisfiable {
		status.Status = StatusError
		status.Error = fmt.Sprintf("sample query returned %s", res.Status)
		if res.Err != nil {
			status.Error += ": " + res.Err.Error()
		}
		return status
	}
	status.Status = StatusReady
	return status
}

// checkStore opens the feasibility store. Without a configured path
// infeasible gaps are only remembered for one run.
func checkStore(path string) ComponentStatus {
	status := ComponentStatus{Name: "feasibility store"}
	if path == "" {
		status.Detail = "in memory"
		status.Status = StatusMemory
		return status
	}
	status.Detail = path
	s, err := synth.OpenFileStore(path)
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}
	status.Detail = fmt.Sprintf("%s (%d records)", path, len(s.Records()))
	status.Status = StatusReady
	return status
}
