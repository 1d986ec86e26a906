package cfg

import (
	"context"
	"errors"
	"strings"

	"github.com/l3aro/c-testforge/internal/log"
	"github.com/l3aro/c-testforge/pkg/cache"
	"github.com/l3aro/c-testforge/pkg/types"
)

// FunctionAnalysis is the structural analysis of one function.
type FunctionAnalysis struct {
	Function    string             `json:"function"`
	Metrics     Metrics            `json:"metrics"`
	Graph       *ControlFlowGraph  `json:"graph"`
	Branches    []Branch           `json:"branches"`
	Paths       []Path             `json:"paths"`
	Truncated   bool               `json:"truncated,omitempty"`
	Body        Body               `json:"body"`
	Diagnostics []types.Diagnostic `json:"diagnostics,omitempty"`
}

// Branch returns the branch with the given ID.
func (a *FunctionAnalysis) Branch(id string) (Branch, bool) {
	for _, b := range a.Branches {
		if b.ID == id {
			return b, true
		}
	}
	return Branch{}, false
}

// AnalyzerOptions configures an Analyzer.
type AnalyzerOptions struct {
	// Builder parses bodies. Defaults to TextualBuilder.
	Builder Builder
	// MaxPaths bounds path enumeration. Defaults to DefaultMaxPaths.
	MaxPaths int
	// Cache holds finished analyses. A nil cache disables caching.
	Cache  cache.Cache
	Logger log.Logger
}

// Analyzer computes function analyses on demand and caches them by
// function name and body.
type Analyzer struct {
	builder  Builder
	maxPaths int
	cache    cache.Cache
	logger   log.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts AnalyzerOptions) *Analyzer {
	a := &Analyzer{
		builder:  opts.Builder,
		maxPaths: opts.MaxPaths,
		cache:    opts.Cache,
		logger:   log.OrNop(opts.Logger),
	}
	if a.builder == nil {
		a.builder = NewTextualBuilder()
	}
	if a.maxPaths <= 0 {
		a.maxPaths = DefaultMaxPaths
	}
	return a
}

// Analyze analyzes fn. The body is isolated from fileLines when they are
// given and taken from fn.Body otherwise. A body that cannot be isolated
// yields zero metrics, an entry-to-exit graph and a warning. A body the
// builder rejects falls back to a single statement node.
func (a *Analyzer) Analyze(ctx context.Context, fn *types.Function, fileLines []string) (*FunctionAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, ok := FunctionBody(fn, fileLines)
	key := cache.ContentKey(fn.Name, strings.Join(body.Lines, "\n"))
	if a.cache != nil {
		if v, found := a.cache.Get(key); found {
			if fa, isAnalysis := v.(*FunctionAnalysis); isAnalysis {
				return fa, nil
			}
		}
	}

	fa := &FunctionAnalysis{Function: fn.Name, Body: body}
	if !ok {
		fa.Diagnostics = append(fa.Diagnostics,
			types.Warning(fn.File, fn.StartLine, "cfg", "function body could not be isolated"))
		fa.Graph = emptyGraph(fn.Name, fn.StartLine)
	} else {
		fa.Metrics = ComputeMetrics(body)
		g, err := Build(ctx, a.builder, fn.Name, body)
		switch {
		case errors.Is(err, ErrMalformedBody):
			a.logger.Warn("falling back to a flat graph", "function", fn.Name, "error", err)
			fa.Diagnostics = append(fa.Diagnostics, types.Warning(fn.File, body.FirstLine, "cfg", err.Error()))
			g = flatGraph(fn.Name, body)
		case err != nil:
			return nil, err
		}
		fa.Graph = g
	}

	fa.Branches = Branches(fa.Graph)
	fa.Paths, fa.Truncated = Paths(fa.Graph, fa.Branches, a.maxPaths)
	if fa.Truncated {
		fa.Diagnostics = append(fa.Diagnostics,
			types.Info(fn.File, fn.StartLine, "cfg", "path enumeration stopped at the configured limit"))
	}
	a.logger.Debug("analyzed function", "function", fn.Name,
		"nodes", len(fa.Graph.Nodes), "branches", len(fa.Branches), "paths", len(fa.Paths))

	if a.cache != nil {
		a.cache.Set(key, fa)
	}
	return fa, nil
}

// FunctionBody isolates the body of fn from fileLines when they are given
// and from fn.Body otherwise.
func FunctionBody(fn *types.Function, fileLines []string) (Body, bool) {
	if len(fileLines) > 0 && fn.StartLine > 0 {
		return IsolateBody(fileLines, fn.StartLine)
	}
	if strings.TrimSpace(fn.Body) == "" {
		return Body{}, false
	}
	lines := strings.Split(fn.Body, "\n")
	if b, ok := IsolateBody(lines, 1); ok {
		b.FirstLine += max(fn.StartLine, 1) - 1
		return b, true
	}
	return Body{}, false
}

func emptyGraph(fn string, line int) *ControlFlowGraph {
	g := &ControlFlowGraph{
		Function: fn,
		Nodes: []Node{
			{ID: 0, Type: NodeEntry, Line: line, EndLine: line},
			{ID: 1, Type: NodeExit, Line: line, EndLine: line},
		},
		Edges: []Edge{{From: 0, To: 1, Type: EdgeSequential}},
		Entry: 0,
		Exit:  1,
	}
	g.out = g.adjacency()
	return g
}

// flatGraph treats every code line of body as one straight-line node.
func flatGraph(fn string, body Body) *ControlFlowGraph {
	stmts := &Stmt{Kind: StmtBlock}
	for _, t := range byLine(body.Tokens()) {
		first := t[0]
		if len(t) == 1 && (first.Is("{") || first.Is("}")) {
			continue
		}
		text := strings.TrimSpace(body.Lines[first.Line-body.FirstLine])
		stmts.Children = append(stmts.Children, &Stmt{Kind: StmtSimple, Line: first.Line, EndLine: first.Line, Text: text})
	}
	return construct(fn, stmts, body.FirstLine, body.LastLine())
}
