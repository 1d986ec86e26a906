package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/l3aro/c-testforge/internal/log"
	"github.com/l3aro/c-testforge/pkg/cexpr"
)

const (
	// DefaultMaxCombinations bounds the assignments BoundedSolver tries.
	DefaultMaxCombinations = 1 << 20
	// DefaultMaxSolutions bounds FindAll results when the query sets no
	// limit.
	DefaultMaxSolutions = 16
)

// BoundedOptions configures a BoundedSolver.
type BoundedOptions struct {
	MaxCombinations int
	Logger          log.Logger
}

// BoundedSolver searches a finite set of candidate values per variable:
// the domain bounds, every constant of the clauses and its neighbours, and
// 0 and ±1, all clamped to the domain. When every hard clause constrains a
// single integer-like variable through comparisons with constants, the
// candidates cover every interval endpoint and an exhausted search proves
// the query unsatisfiable. Otherwise exhaustion is reported as an error.
type BoundedSolver struct {
	maxCombinations int
	logger          log.Logger
}

// NewBoundedSolver creates a BoundedSolver.
func NewBoundedSolver(opts BoundedOptions) *BoundedSolver {
	s := &BoundedSolver{maxCombinations: opts.MaxCombinations, logger: log.OrNop(opts.Logger)}
	if s.maxCombinations <= 0 {
		s.maxCombinations = DefaultMaxCombinations
	}
	return s
}

type candidate struct {
	text string
	val  cexpr.Value
}

// slot is one digit of the search odometer: a scalar variable or one
// element of an array variable.
type slot struct {
	name  string
	index int // -1 for scalars
	cands []candidate
}

type problem struct {
	hard, soft []cexpr.Expr
	consts     map[string]cexpr.Value
	slots      []slot
	arrays     map[string]int
	complete   bool
}

// Solve implements Solver.
func (s *BoundedSolver) Solve(ctx context.Context, q Query) Result {
	if q.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.Timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return interrupted(err)
	}
	p, err := compile(ctx, q)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return interrupted(ctxErr)
		}
		return Result{Status: StatusError, Err: err}
	}
	res, tried := s.search(ctx, q, p)
	s.logger.Debug("solved query", "status", res.Status, "variables", len(q.Variables),
		"hard", len(q.Hard), "soft", len(q.Soft), "tried", tried)
	return res
}

func interrupted(err error) Result {
	if errors.Is(err, context.DeadlineExceeded) {
		return Result{Status: StatusTimeout, Err: err}
	}
	return Result{Status: StatusError, Err: err}
}

func compile(ctx context.Context, q Query) (*problem, error) {
	p := &problem{consts: make(map[string]cexpr.Value, len(q.Constants)), arrays: make(map[string]int), complete: true}
	for name, text := range q.Constants {
		v, err := cexpr.ParseValue(text)
		if err != nil {
			return nil, fmt.Errorf("constant %s: %w", name, err)
		}
		p.consts[name] = v
	}
	isVar := make(map[string]bool, len(q.Variables))
	for _, v := range q.Variables {
		isVar[v.Name] = true
	}

	var lits []cexpr.Value
	parse := func(kind string, clauses []string) ([]cexpr.Expr, error) {
		out := make([]cexpr.Expr, 0, len(clauses))
		for _, c := range clauses {
			e, err := cexpr.ParseContext(ctx, c)
			if err != nil {
				return nil, fmt.Errorf("%s clause: %w", kind, err)
			}
			for _, id := range cexpr.Identifiers(e) {
				if isVar[id] {
					continue
				}
				v, ok := p.consts[id]
				if !ok {
					return nil, fmt.Errorf("%w: %s in %q", ErrUnbound, id, c)
				}
				lits = append(lits, v)
			}
			lits = append(lits, cexpr.Literals(e)...)
			out = append(out, e)
		}
		return out, nil
	}
	var err error
	if p.hard, err = parse("hard", q.Hard); err != nil {
		return nil, err
	}
	if p.soft, err = parse("soft", q.Soft); err != nil {
		return nil, err
	}
	for _, e := range p.hard {
		if !cexpr.IsIntervalFormOver(e, func(id string) bool { return isVar[id] }) {
			p.complete = false
		}
	}

	for _, v := range q.Variables {
		cands, exact, err := candidates(v.Domain, lits, p.consts)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.Name, err)
		}
		if !exact {
			p.complete = false
		}
		if v.ArraySize <= 0 {
			p.slots = append(p.slots, slot{name: v.Name, index: -1, cands: cands})
			continue
		}
		p.complete = false
		p.arrays[v.Name] = v.ArraySize
		for i := 0; i < v.ArraySize; i++ {
			p.slots = append(p.slots, slot{name: v.Name, index: i, cands: cands})
		}
	}
	return p, nil
}

// candidates returns the values tried for a domain and whether they cover
// every interval the clause constants can carve out of it.
func candidates(d Domain, lits []cexpr.Value, consts map[string]cexpr.Value) ([]candidate, bool, error) {
	switch d.Kind {
	case DomainBoolean:
		return []candidate{{"0", cexpr.Int(0)}, {"1", cexpr.Int(1)}}, true, nil

	case DomainEnumeration:
		if len(d.Values) == 0 {
			return nil, false, errors.New("empty enumeration")
		}
		out := make([]candidate, 0, len(d.Values))
		for _, text := range d.Values {
			if v, ok := consts[text]; ok {
				out = append(out, candidate{text, v})
				continue
			}
			v, err := cexpr.ParseValue(text)
			if err != nil {
				return nil, false, fmt.Errorf("%w: %s", ErrUnbound, text)
			}
			out = append(out, candidate{text, v})
		}
		return out, true, nil

	case DomainReal:
		lo := parseFloat(d.Min, -math.MaxFloat64)
		hi := parseFloat(d.Max, math.MaxFloat64)
		points := []float64{0, 1, -1, lo, hi}
		for _, l := range lits {
			f := l.AsFloat()
			points = append(points, f, f-1, f+1, f-0.5, f+0.5)
		}
		var out []float64
		for _, f := range points {
			if f >= lo && f <= hi && !slices.Contains(out, f) {
				out = append(out, f)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if math.Abs(out[i]) != math.Abs(out[j]) {
				return math.Abs(out[i]) < math.Abs(out[j])
			}
			return out[i] < out[j]
		})
		cands := make([]candidate, len(out))
		for i, f := range out {
			v := cexpr.Float(f)
			cands[i] = candidate{v.String(), v}
		}
		return cands, false, nil
	}

	lo := parseInt(d.Min, math.MinInt64)
	hi := parseInt(d.Max, math.MaxInt64)
	points := []int64{0, 1, -1, lo, hi}
	for _, l := range lits {
		n := l.AsInt()
		points = append(points, n, sat(n, -1), sat(n, 1))
	}
	var out []int64
	for _, n := range points {
		if n >= lo && n <= hi && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if magnitude(out[i]) != magnitude(out[j]) {
			return magnitude(out[i]) < magnitude(out[j])
		}
		return out[i] < out[j]
	})
	cands := make([]candidate, len(out))
	for i, n := range out {
		cands[i] = candidate{strconv.FormatInt(n, 10), cexpr.Int(n)}
	}
	return cands, true, nil
}

func (s *BoundedSolver) search(ctx context.Context, q Query, p *problem) (Result, int) {
	for _, sl := range p.slots {
		if len(sl.cands) == 0 {
			return s.exhausted(p, false), 0
		}
	}
	maxSolutions := q.MaxSolutions
	if maxSolutions <= 0 {
		maxSolutions = DefaultMaxSolutions
	}

	env := cexpr.NewMapEnv()
	for name, v := range p.consts {
		env.Set(name, v)
	}
	for name, size := range p.arrays {
		env.Arrays[name] = make([]cexpr.Value, size)
	}

	idx := make([]int, len(p.slots))
	bestScore := -1
	var best Assignment
	var solutions []Assignment
	capped := false
	tried := 0

	for {
		if tried%256 == 0 {
			if err := ctx.Err(); err != nil {
				if bestScore >= 0 {
					break
				}
				return interrupted(err), tried
			}
		}
		if tried == s.maxCombinations {
			capped = true
			break
		}
		tried++

		for i, sl := range p.slots {
			v := sl.cands[idx[i]].val
			if sl.index < 0 {
				env.Set(sl.name, v)
			} else {
				env.Arrays[sl.name][sl.index] = v
			}
		}
		if holds(p.hard, env) {
			score := 0
			for _, e := range p.soft {
				if ok, err := cexpr.EvalBool(e, env); err == nil && ok {
					score++
				}
			}
			a := assignment(p, idx)
			if q.Mode == FindAll {
				solutions = append(solutions, a)
			}
			if score > bestScore {
				best, bestScore = a, score
			}
			if q.Mode != FindAll && score == len(p.soft) {
				break
			}
			if q.Mode == FindAll && len(solutions) >= maxSolutions {
				break
			}
		}
		if !advance(idx, p.slots) {
			break
		}
	}

	if bestScore >= 0 {
		return Result{Status: StatusSatisfiable, Assignment: best, Solutions: solutions}, tried
	}
	return s.exhausted(p, capped), tried
}

func (s *BoundedSolver) exhausted(p *problem, capped bool) Result {
	if p.complete && !capped {
		return Result{Status: StatusUnsatisfiable}
	}
	reason := "candidate set does not cover every clause"
	if capped {
		reason = fmt.Sprintf("stopped after %d assignments", s.maxCombinations)
	}
	return Result{Status: StatusError, Err: fmt.Errorf("%w: %s", ErrIncomplete, reason)}
}

func holds(clauses []cexpr.Expr, env cexpr.Env) bool {
	for _, e := range clauses {
		ok, err := cexpr.EvalBool(e, env)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func assignment(p *problem, idx []int) Assignment {
	a := Assignment{Values: make(map[string]string)}
	for i, sl := range p.slots {
		text := sl.cands[idx[i]].text
		if sl.index < 0 {
			a.Values[sl.name] = text
			continue
		}
		if a.Arrays == nil {
			a.Arrays = make(map[string][]string)
		}
		if a.Arrays[sl.name] == nil {
			a.Arrays[sl.name] = make([]string, p.arrays[sl.name])
		}
		a.Arrays[sl.name][sl.index] = text
	}
	return a
}

// advance steps the odometer, last slot fastest. It reports false once
// every combination has been visited.
func advance(idx []int, slots []slot) bool {
	for i := len(idx) - 1; i >= 0; i-- {
		idx[i]++
		if idx[i] < len(slots[i].cands) {
			return true
		}
		idx[i] = 0
	}
	return false
}

func parseInt(s string, def int64) int64 {
	if s == "" {
		return def
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if _, err := strconv.ParseUint(s, 10, 64); err == nil {
		return math.MaxInt64
	}
	if v, err := cexpr.ParseValue(s); err == nil {
		return v.AsInt()
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

// sat adds d to n without wrapping.
func sat(n, d int64) int64 {
	switch {
	case d > 0 && n > math.MaxInt64-d:
		return math.MaxInt64
	case d < 0 && n < math.MinInt64-d:
		return math.MinInt64
	}
	return n + d
}

func magnitude(n int64) uint64 {
	if n < 0 {
		return uint64(-(n + 1)) + 1
	}
	return uint64(n)
}
