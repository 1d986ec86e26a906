// Package synth generates test inputs for uncovered paths and branches of
// a function by turning each gap into a solver query.
package synth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/l3aro/c-testforge/internal/log"
	"github.com/l3aro/c-testforge/pkg/cfg"
	"github.com/l3aro/c-testforge/pkg/coverage"
	"github.com/l3aro/c-testforge/pkg/dfg"
	"github.com/l3aro/c-testforge/pkg/solver"
	"github.com/l3aro/c-testforge/pkg/types"
)

const (
	DefaultTarget    = 1.0
	DefaultMaxCases  = 32
	DefaultMaxRounds = 8
	DefaultTimeout   = 5 * time.Second
	DefaultWorkers   = 4
)

// ErrNoAnalysis is returned when a request carries no function or no
// control-flow analysis.
var ErrNoAnalysis = errors.New("function analysis required")

// Request asks for test cases for one function.
type Request struct {
	Function *types.Function
	Analysis *cfg.FunctionAnalysis
	// Variables are the model variables whose constraints bound the
	// inputs: the function's parameters and file-scope variables.
	Variables []types.Variable
	// Functions are searched for globals referenced through callees.
	Functions   []types.Function
	Definitions []types.Definition
	Existing    []types.TestCase
	// Target is the line and branch ratio at which synthesis stops.
	Target   float64
	MaxCases int
	File     string
}

// Options configures a Synthesizer.
type Options struct {
	Solver solver.Solver
	// Mapper measures coverage. Defaults to a Simulator over the request
	// definitions.
	Mapper        coverage.Mapper
	Store         FeasibilityStore
	Timeout       time.Duration
	Workers       int
	MaxRounds     int
	MaxMacroDepth int
	Logger        log.Logger
}

// Outcome is what happened to one gap.
type Outcome string

const (
	OutcomeCovered    Outcome = "covered"
	OutcomeInfeasible Outcome = "infeasible"
	OutcomeUnresolved Outcome = "unresolved"
)

// Attempt records the handling of one gap.
type Attempt struct {
	Gap     coverage.Gap  `json:"gap"`
	Outcome Outcome       `json:"outcome"`
	Status  solver.Status `json:"status,omitempty"`
	Retried bool          `json:"retried,omitempty"`
	Cached  bool          `json:"cached,omitempty"`
	Case    string        `json:"case,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// Report is the result of one synthesis run.
type Report struct {
	Suite      *types.TestSuite `json:"suite"`
	Before     *coverage.Result `json:"before"`
	After      *coverage.Result `json:"after"`
	Infeasible []string         `json:"infeasible,omitempty"`
	Unresolved []string         `json:"unresolved,omitempty"`
	Attempts   []Attempt        `json:"attempts,omitempty"`
	Rounds     int              `json:"rounds"`
}

// Generated returns the cases added by the run.
func (r *Report) Generated(existing int) []types.TestCase {
	if r.Suite == nil || existing >= len(r.Suite.Cases) {
		return nil
	}
	return r.Suite.Cases[existing:]
}

// Synthesizer runs coverage-driven synthesis rounds.
type Synthesizer struct {
	solver        solver.Solver
	mapper        coverage.Mapper
	store         FeasibilityStore
	timeout       time.Duration
	workers       int
	maxRounds     int
	maxMacroDepth int
	logger        log.Logger
}

// New creates a Synthesizer. A nil solver defaults to a BoundedSolver and
// a nil store to a MemoryStore.
func New(opts Options) *Synthesizer {
	s := &Synthesizer{
		solver:        opts.Solver,
		mapper:        opts.Mapper,
		store:         opts.Store,
		timeout:       opts.Timeout,
		workers:       opts.Workers,
		maxRounds:     opts.MaxRounds,
		maxMacroDepth: opts.MaxMacroDepth,
		logger:        log.OrNop(opts.Logger),
	}
	if s.solver == nil {
		s.solver = solver.NewBoundedSolver(solver.BoundedOptions{Logger: s.logger})
	}
	if s.store == nil {
		s.store = NewMemoryStore()
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.workers <= 0 {
		s.workers = DefaultWorkers
	}
	if s.maxRounds <= 0 {
		s.maxRounds = DefaultMaxRounds
	}
	return s
}

// solved is the solver's answer for one gap.
type solved struct {
	gap     coverage.Gap
	key     string
	query   solver.Query
	result  solver.Result
	retried bool
	cached  *Record
	// exact is false when the query condition rests on values the path
	// walk could not follow.
	exact bool
}

// Synthesize measures the existing tests and adds cases for uncovered
// gaps until the target is met, the gaps run out or MaxCases cases were
// generated. Paths are targeted before branches. Coverage is measured
// again after every candidate and a case is kept only when it reaches its
// gap without lowering any ratio.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (*Report, error) {
	if req.Function == nil || req.Analysis == nil || req.Analysis.Graph == nil {
		return nil, ErrNoAnalysis
	}
	if req.Target <= 0 {
		req.Target = DefaultTarget
	}
	if req.MaxCases <= 0 {
		req.MaxCases = DefaultMaxCases
	}
	fa := req.Analysis
	logger := s.logger.With("function", req.Function.Name)

	mapper := s.mapper
	if mapper == nil {
		mapper = coverage.NewSimulator(coverage.SimulatorOptions{
			Definitions:   req.Definitions,
			MaxMacroDepth: s.maxMacroDepth,
			Logger:        s.logger,
		})
	}
	consts := coverage.Constants(req.Definitions, s.maxMacroDepth)
	ins := inputs(&req)

	suite := slices.Clone(req.Existing)
	before, err := coverage.Measure(ctx, fa, suite, mapper)
	if err != nil {
		return nil, fmt.Errorf("measuring existing tests: %w", err)
	}
	report := &Report{Before: before}
	cur := before
	attempted := make(map[string]bool)
	generated := 0

	for report.Rounds < s.maxRounds {
		if met(cur, req.Target) || generated >= req.MaxCases {
			break
		}
		gaps := selectGaps(coverage.IdentifyGaps(fa, cur), attempted)
		if len(gaps) == 0 {
			break
		}
		if room := req.MaxCases - generated; len(gaps) > room {
			gaps = gaps[:room]
		}
		report.Rounds++
		logger.Debug("synthesis round", "round", report.Rounds, "gaps", len(gaps))

		answers, err := s.solveAll(ctx, &req, ins, consts, gaps)
		if err != nil {
			return nil, err
		}
		for _, a := range answers {
			attempted[a.gap.ID] = true
			att := Attempt{Gap: a.gap, Status: a.result.Status, Retried: a.retried}

			switch {
			case a.cached != nil:
				att.Outcome, att.Cached, att.Reason = OutcomeInfeasible, true, a.cached.Reason
			case a.result.Status == solver.StatusUnsatisfiable && !a.exact:
				att.Outcome = OutcomeUnresolved
				att.Reason = "path condition reads values the path walk cannot follow"
			case a.result.Status == solver.StatusUnsatisfiable:
				att.Outcome = OutcomeInfeasible
				rec := Record{
					Function:  req.Function.Name,
					Gap:       a.gap.ID,
					Condition: a.gap.Condition,
					Reason:    "constraints unsatisfiable",
					MarkedAt:  time.Now(),
				}
				if err := s.store.MarkInfeasible(a.key, rec); err != nil {
					logger.Warn("recording infeasible gap", "gap", a.gap.ID, "error", err)
				}
			case a.result.Status != solver.StatusSatisfiable:
				att.Outcome = OutcomeUnresolved
				if a.result.Err != nil {
					att.Reason = a.result.Err.Error()
				}
			default:
				tc := s.testCase(&req, ins, a)
				trial := append(slices.Clone(suite), tc)
				m, err := coverage.Measure(ctx, fa, trial, mapper)
				if err != nil {
					return nil, fmt.Errorf("measuring %s: %w", tc.Name, err)
				}
				if !m.AtLeast(cur) || !m.Covers(a.gap.ID) {
					att.Outcome = OutcomeUnresolved
					att.Reason = "solution does not reach the gap"
					break
				}
				if tr, ok := m.Traces[tc.ID]; ok {
					trial[len(trial)-1].ExpectedReturn = tr.Return
				}
				suite, cur = trial, m
				generated++
				att.Outcome, att.Case = OutcomeCovered, tc.Name
			}

			switch att.Outcome {
			case OutcomeInfeasible:
				report.Infeasible = append(report.Infeasible, a.gap.ID)
			case OutcomeUnresolved:
				report.Unresolved = append(report.Unresolved, a.gap.ID)
				logger.Debug("gap unresolved", "gap", a.gap.ID, "status", a.result.Status, "reason", att.Reason)
			}
			report.Attempts = append(report.Attempts, att)
		}
	}

	report.After = cur
	report.Suite = &types.TestSuite{
		Name:       "test_" + req.Function.Name,
		Function:   req.Function.Name,
		File:       req.File,
		Cases:      suite,
		Coverage:   cur.Summary(),
		Infeasible: report.Infeasible,
		Unresolved: report.Unresolved,
	}
	logger.Info("synthesis finished", "generated", generated, "rounds", report.Rounds,
		"branches", cur.BranchRatio, "paths", cur.PathRatio,
		"infeasible", len(report.Infeasible), "unresolved", len(report.Unresolved))
	return report, nil
}

func met(r *coverage.Result, target float64) bool {
	return r.LineRatio >= target && r.BranchRatio >= target
}

// selectGaps returns the untried path gaps, or the untried branch gaps
// when every path gap has been tried.
func selectGaps(all []coverage.Gap, attempted map[string]bool) []coverage.Gap {
	var paths, branches []coverage.Gap
	for _, g := range all {
		if attempted[g.ID] {
			continue
		}
		switch g.Kind {
		case coverage.GapPath:
			paths = append(paths, g)
		case coverage.GapBranch:
			branches = append(branches, g)
		}
	}
	if len(paths) > 0 {
		return paths
	}
	return branches
}

// solveAll queries every gap concurrently. Gaps already recorded as
// infeasible are not queried.
func (s *Synthesizer) solveAll(ctx context.Context, req *Request, ins []input, consts map[string]string, gaps []coverage.Gap) ([]solved, error) {
	out := make([]solved, len(gaps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, gap := range gaps {
		q, exact := s.query(req, ins, consts, gap)
		out[i] = solved{gap: gap, query: q, exact: exact, key: gapKey(req.Function.Name, req.Analysis.Body.Lines, q)}
		if rec, ok := s.store.Infeasible(out[i].key); ok {
			out[i].cached = &rec
			continue
		}
		g.Go(func() error {
			out[i].result, out[i].retried = s.solve(gctx, q)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// solve runs q under its own timeout. A timeout or error is retried once
// without the soft clauses.
func (s *Synthesizer) solve(ctx context.Context, q solver.Query) (solver.Result, bool) {
	run := func(q solver.Query) solver.Result {
		qctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.solver.Solve(qctx, q)
	}
	res := run(q)
	if res.Status != solver.StatusTimeout && res.Status != solver.StatusError {
		return res, false
	}
	if ctx.Err() != nil {
		return res, false
	}
	return run(q.WithoutSoft()), true
}

// testCase turns a satisfying assignment into a test case targeting the
// gap.
func (s *Synthesizer) testCase(req *Request, ins []input, a solved) types.TestCase {
	fn := req.Function
	tc := types.TestCase{
		ID:          uuid.NewString(),
		Name:        fmt.Sprintf("test_%s_%s", fn.Name, identifier(a.gap.ID)),
		Description: "covers " + a.gap.Description,
		Function:    fn.Name,
		Type:        types.TestCaseUnit,
		Status:      types.StatusNotRun,
		Target:      a.gap.ID,
		Tags:        []string{"generated", string(a.gap.Kind)},
	}
	for _, in := range ins {
		ti := types.TestInput{Name: in.name, Type: in.typeName, Provenance: s.provenance(req, in, a.gap)}
		if vals, ok := a.result.Assignment.Arrays[in.name]; ok {
			ti.ArrayValues = vals
		} else {
			ti.Value = a.result.Assignment.Values[in.name]
		}
		tc.Inputs = append(tc.Inputs, ti)
	}
	return tc
}

// provenance names the gap an input was solved for and, for parameters,
// the lines its value flows to.
func (s *Synthesizer) provenance(req *Request, in input, gap coverage.Gap) string {
	prov := "solver: " + gap.ID
	if in.global {
		return prov + " (global)"
	}
	body := req.Analysis.Body
	g, err := dfg.Build(in.name, req.Function, body.Lines, body.FirstLine)
	if err != nil {
		return prov
	}
	lines := dfg.Propagation(g, req.Function.StartLine)
	if len(lines) == 0 {
		return prov
	}
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = fmt.Sprint(l)
	}
	return prov + "; flows to lines " + strings.Join(parts, ", ")
}

// identifier rewrites a gap ID into a C identifier fragment.
func identifier(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, id)
}
