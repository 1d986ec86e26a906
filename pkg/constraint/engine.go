// Package constraint infers the value constraints of C variables from their
// declared types, the enum and macro definitions in scope, and lexical
// patterns in the surrounding source.
package constraint

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/c-testforge/internal/log"
	"github.com/l3aro/c-testforge/pkg/types"
)

// Scope is the context a variable's constraints are inferred in.
type Scope struct {
	Functions   []types.Function
	Definitions []types.Definition
	Lines       []string
	Typedefs    map[string]string
	// Arrays maps array names to their element counts.
	Arrays map[string]int
	// MaxMacroDepth bounds macro expansion of symbolic bounds.
	MaxMacroDepth int

	text *sourceText
}

// ScopeOf builds the scope of every variable of m.
func ScopeOf(m *types.FileModel) Scope {
	s := Scope{
		Functions:   m.Functions,
		Definitions: m.Definitions,
		Lines:       m.Lines,
		Typedefs:    m.Typedefs,
		Arrays:      make(map[string]int),
	}
	for _, v := range m.Variables {
		if v.ArraySize > 0 {
			s.Arrays[v.Name] = v.ArraySize
		}
	}
	s.text = splitSource(m.Lines)
	return s
}

func (s *Scope) source() *sourceText {
	if s.text == nil {
		s.text = splitSource(s.Lines)
	}
	return s.text
}

// Engine runs the constraint passes.
type Engine struct {
	logger  log.Logger
	workers int
}

// New creates an engine. workers bounds ExtractAll; 0 uses GOMAXPROCS.
func New(logger log.Logger, workers int) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{logger: log.OrNop(logger), workers: workers}
}

// Extract returns the ordered, deduplicated constraints of v:
// type bounds, enum values, source-derived bounds, assignment, switch,
// array-index and comment constraints, then function context.
// v itself is not modified.
func (e *Engine) Extract(v types.Variable, s Scope) []types.Constraint {
	if v.Name == "" {
		return nil
	}
	src := s.source()
	r := &resolver{defs: s.Definitions, maxDepth: s.MaxMacroDepth}
	p := compilePatterns(v.Name)

	var out []types.Constraint
	out = append(out, typeBounds(v, s.Typedefs)...)
	out = append(out, enumValues(v, s)...)
	out = append(out, e.comparisons(v, s, p, src, r)...)
	out = append(out, e.assignments(v, p, src)...)
	out = append(out, e.switchCases(v, p, src, r)...)
	out = append(out, arrayIndexes(v, s, p, src)...)
	out = append(out, e.annotations(v, src, r)...)
	if v.Scope == types.ScopeParameter && v.Function != "" {
		out = append(out, types.Constraint{
			Type:   types.ConstraintCustom,
			Source: "parameter of " + v.Function,
		})
	}
	return types.DedupConstraints(out)
}

// Apply attaches the inferred constraints to v and returns how many were new.
func (e *Engine) Apply(v *types.Variable, s Scope) int {
	return v.AddConstraints(e.Extract(*v, s))
}

// ExtractAll applies the engine to every variable of vars in parallel.
// Each goroutine only writes its own element.
func (e *Engine) ExtractAll(ctx context.Context, vars []types.Variable, s Scope) error {
	s.source()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range vars {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("constraints for %s: %w", vars[i].Name, err)
			}
			vars[i].AddConstraints(e.Extract(vars[i], s))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	e.logger.Debug("extracted constraints", "variables", len(vars))
	return nil
}
