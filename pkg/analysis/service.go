// Package analysis orchestrates the per-file passes over a C project and
// merges their results into one aggregate.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/viant/afs"
	"golang.org/x/sync/errgroup"

	"github.com/l3aro/c-testforge/internal/log"
	"github.com/l3aro/c-testforge/internal/scanner"
	"github.com/l3aro/c-testforge/pkg/ast"
	"github.com/l3aro/c-testforge/pkg/cache"
	"github.com/l3aro/c-testforge/pkg/callgraph"
	"github.com/l3aro/c-testforge/pkg/cfg"
	"github.com/l3aro/c-testforge/pkg/constraint"
	"github.com/l3aro/c-testforge/pkg/dfg"
	"github.com/l3aro/c-testforge/pkg/extractor"
	"github.com/l3aro/c-testforge/pkg/preproc"
	"github.com/l3aro/c-testforge/pkg/types"
)

var (
	// ErrFileNotFound is returned when a requested source file does not exist.
	ErrFileNotFound = errors.New("file not found")
	// ErrFunctionNotFound is returned when a file defines no such function.
	ErrFunctionNotFound = errors.New("function not found")
	// ErrEmptyProject is returned when a project names no source files and
	// none are found under its root.
	ErrEmptyProject = errors.New("project has no source files")
)

// Options configures a Service.
type Options struct {
	// Workers bounds file, function and constraint parallelism.
	Workers       int
	MaxCallDepth  int
	MaxMacroDepth int
	MaxPaths      int
	// Builder parses function bodies for the CFG pass.
	Builder cfg.Builder
	// Cache holds function analyses across requests.
	Cache cache.Cache
	// FrontEnd parses translation units. Defaults to tree-sitter.
	FrontEnd ast.FrontEnd
	// Exclude holds ignore patterns applied when a project is discovered
	// from its root.
	Exclude []string
	Logger  log.Logger
}

// Service runs analyses. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	fs          afs.Service
	extractor   *extractor.Extractor
	analyzer    *cfg.Analyzer
	constraints *constraint.Engine
	opts        Options
	logger      log.Logger
}

// NewService creates a Service.
func NewService(opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.MaxCallDepth <= 0 {
		opts.MaxCallDepth = callgraph.DefaultMaxDepth
	}
	if opts.MaxMacroDepth <= 0 {
		opts.MaxMacroDepth = preproc.DefaultMaxDepth
	}
	logger := log.OrNop(opts.Logger)
	return &Service{
		fs:        afs.New(),
		extractor: extractor.New(opts.FrontEnd, logger),
		analyzer: cfg.NewAnalyzer(cfg.AnalyzerOptions{
			Builder:  opts.Builder,
			MaxPaths: opts.MaxPaths,
			Cache:    opts.Cache,
			Logger:   logger,
		}),
		constraints: constraint.New(logger, opts.Workers),
		opts:        opts,
		logger:      logger,
	}
}

// Analyzer returns the CFG analyzer the service uses.
func (s *Service) Analyzer() *cfg.Analyzer { return s.analyzer }

// AnalyzeProject analyzes every source file of p. When p lists no files
// they are discovered under p.Root. A file that cannot be read or parsed
// is recorded in FileErrors and the batch continues; only a project that
// cannot be enumerated, or cancellation, fails the call.
func (s *Service) AnalyzeProject(ctx context.Context, p types.Project, opts types.AnalysisOptions) (*Result, error) {
	files, err := s.projectFiles(ctx, p)
	if err != nil {
		return nil, err
	}
	s.logger.Info("analyzing project", "project", p.Name, "files", len(files), "detail", opts.Detail)

	res := newResult(p.Name)
	res.Files = files

	extracted := make([]*extractor.Result, len(files))
	failures := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := s.extractFile(gctx, path, p.ActiveMacros)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failures[i] = err
				return nil
			}
			extracted[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyzing project %s: %w", p.Name, err)
	}

	for i, path := range files {
		if failures[i] != nil {
			s.logger.Warn("file analysis failed", "file", path, "error", failures[i])
			res.FileErrors[path] = failures[i].Error()
			res.Diagnostics = append(res.Diagnostics, types.Diagnostic{
				Severity: types.SeverityError,
				Message:  failures[i].Error(),
				File:     path,
				Source:   "analysis",
			})
			continue
		}
		s.merge(res, extracted[i], opts)
	}

	if err := s.finish(ctx, res, opts); err != nil {
		return nil, err
	}
	s.logger.Info("analysis complete",
		"project", p.Name,
		"functions", len(res.Functions),
		"variables", len(res.Variables),
		"failed", len(res.FileErrors))
	return res, nil
}

// AnalyzeFile analyzes a single file. A missing file is rejected with
// ErrFileNotFound before any pass runs.
func (s *Service) AnalyzeFile(ctx context.Context, path string, active map[string]string, opts types.AnalysisOptions) (*Result, error) {
	if err := s.requireFile(ctx, path); err != nil {
		return nil, err
	}
	r, err := s.extractFile(ctx, path, active)
	if err != nil {
		return nil, err
	}
	res := newResult(filepath.Base(path))
	res.Files = []string{path}
	s.merge(res, r, opts)
	if err := s.finish(ctx, res, opts); err != nil {
		return nil, err
	}
	return res, nil
}

// FindFunction extracts path and returns the function named name together
// with the file's model.
func (s *Service) FindFunction(ctx context.Context, path, name string, active map[string]string) (*types.Function, *types.FileModel, error) {
	if err := s.requireFile(ctx, path); err != nil {
		return nil, nil, err
	}
	r, err := s.extractFile(ctx, path, active)
	if err != nil {
		return nil, nil, err
	}
	fn := r.Model.FindFunction(name)
	if fn == nil {
		return nil, nil, fmt.Errorf("%w: %s in %s", ErrFunctionNotFound, name, path)
	}
	return fn, r.Model, nil
}

// Extract runs the extraction passes over one file.
func (s *Service) Extract(ctx context.Context, path string, active map[string]string) (*extractor.Result, error) {
	if err := s.requireFile(ctx, path); err != nil {
		return nil, err
	}
	return s.extractFile(ctx, path, active)
}

func (s *Service) requireFile(ctx context.Context, path string) error {
	ok, err := s.fs.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	return nil
}

func (s *Service) extractFile(ctx context.Context, path string, active map[string]string) (*extractor.Result, error) {
	content, err := s.fs.DownloadWithURL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return s.extractor.ExtractFromBytes(ctx, path, content, extractor.Options{
		Active:        active,
		MaxMacroDepth: s.opts.MaxMacroDepth,
	})
}

// projectFiles resolves the file list of p to absolute paths.
func (s *Service) projectFiles(ctx context.Context, p types.Project) ([]string, error) {
	if len(p.SourceFiles) == 0 {
		if p.Root == "" {
			return nil, ErrEmptyProject
		}
		opts := scanner.DefaultOptions()
		opts.Exclude = s.opts.Exclude
		found, err := scanner.New(opts).Scan(p.Root)
		if err != nil {
			return nil, fmt.Errorf("reading project %s: %w", p.Name, err)
		}
		files := scanner.Sources(found)
		if len(files) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyProject, p.Root)
		}
		return files, nil
	}

	if p.Root != "" {
		ok, err := s.fs.Exists(ctx, p.Root)
		if err != nil || !ok {
			return nil, fmt.Errorf("reading project %s: root %s is not readable", p.Name, p.Root)
		}
	}
	files := make([]string, 0, len(p.SourceFiles))
	for _, f := range p.SourceFiles {
		if !filepath.IsAbs(f) && p.Root != "" {
			f = filepath.Join(p.Root, f)
		}
		if abs, err := filepath.Abs(f); err == nil {
			f = abs
		}
		files = append(files, f)
	}
	return files, nil
}

// merge folds one file into res. The first definition, variable and
// function of each name wins; later ones are dropped with an info
// diagnostic. Locals and parameters are keyed by their function.
func (s *Service) merge(res *Result, r *extractor.Result, opts types.AnalysisOptions) {
	m := r.Model
	res.Models[m.Path] = m
	res.Diagnostics = append(res.Diagnostics, m.Diagnostics...)

	if opts.Preprocessor {
		res.Conditionals[m.Path] = m.Conditionals
		res.Evaluations[m.Path] = r.Preproc.Evaluations
		res.Includes[m.Path] = m.Includes
		for _, d := range m.Definitions {
			if prev := res.Definition(d.Name); prev != nil {
				res.Diagnostics = append(res.Diagnostics, types.Info(m.Path, d.Line, "analysis",
					fmt.Sprintf("duplicate definition of %s ignored, first defined in %s:%d", d.Name, prev.File, prev.Line)))
				continue
			}
			res.Definitions = append(res.Definitions, d)
		}
	}

	if opts.Variables {
		for _, v := range m.Variables {
			if prev := findVariable(res.Variables, v); prev != nil {
				res.Diagnostics = append(res.Diagnostics, types.Info(m.Path, v.Line, "analysis",
					fmt.Sprintf("duplicate variable %s ignored, first declared in %s:%d", v.Name, prev.File, prev.Line)))
				continue
			}
			res.Variables = append(res.Variables, v)
		}
	}

	if opts.Functions {
		for _, fn := range m.Functions {
			if prev := res.FindFunction(fn.Name); prev != nil {
				res.Diagnostics = append(res.Diagnostics, types.Info(m.Path, fn.StartLine, "analysis",
					fmt.Sprintf("duplicate function %s ignored, first defined in %s:%d", fn.Name, prev.File, prev.StartLine)))
				continue
			}
			res.Functions = append(res.Functions, fn)
		}
	}
}

func findVariable(vars []types.Variable, v types.Variable) *types.Variable {
	for i := range vars {
		if vars[i].Name != v.Name {
			continue
		}
		if v.Scope.IsFileScope() && vars[i].Scope.IsFileScope() {
			return &vars[i]
		}
		if !v.Scope.IsFileScope() && vars[i].Function == v.Function && vars[i].File == v.File {
			return &vars[i]
		}
	}
	return nil
}

// finish runs the passes that need the merged model: call and macro
// cycles, constraints, then the CFG and data-flow passes the detail level
// asks for.
func (s *Service) finish(ctx context.Context, res *Result, opts types.AnalysisOptions) error {
	if opts.Relationships && opts.Functions {
		res.CallCycles = callgraph.DetectCycles(callgraph.ProjectAdjacency(res.Functions), s.opts.MaxCallDepth)
		for _, c := range res.CallCycles.Cycles {
			res.Diagnostics = append(res.Diagnostics, types.Info("", 0, "callgraph", "recursive call chain: "+c.String()))
		}
		for _, name := range res.CallCycles.DepthExceeded {
			res.Diagnostics = append(res.Diagnostics, types.Warning("", 0, "callgraph", "call depth exceeded at "+name))
		}
	}
	if opts.Preprocessor {
		res.MacroCycles = preproc.DetectCycles(res.Definitions, s.opts.MaxMacroDepth)
	}

	if opts.Constraints && opts.Variables {
		if err := s.applyConstraints(ctx, res); err != nil {
			return err
		}
	}

	if opts.Functions && opts.Detail.AtLeast(types.DetailDetailed) {
		if err := s.analyzeFunctions(ctx, res, opts.Detail.AtLeast(types.DetailComprehensive)); err != nil {
			return err
		}
	}
	return nil
}

// applyConstraints infers constraints for the merged variables. Each file's
// variables are inferred against that file's source with the project-wide
// definitions and functions in scope.
func (s *Service) applyConstraints(ctx context.Context, res *Result) error {
	typedefs := make(map[string]string)
	for _, path := range res.Files {
		if m := res.Models[path]; m != nil {
			for alias, t := range m.Typedefs {
				if _, ok := typedefs[alias]; !ok {
					typedefs[alias] = t
				}
			}
		}
	}

	byFile := make(map[string][]int)
	for i, v := range res.Variables {
		byFile[v.File] = append(byFile[v.File], i)
	}
	for _, path := range res.Files {
		idx := byFile[path]
		m := res.Models[path]
		if len(idx) == 0 || m == nil {
			continue
		}
		scope := constraint.ScopeOf(m)
		scope.Definitions = res.Definitions
		scope.Functions = res.Functions
		scope.Typedefs = typedefs
		scope.MaxMacroDepth = s.opts.MaxMacroDepth

		vars := make([]types.Variable, len(idx))
		for j, i := range idx {
			vars[j] = res.Variables[i]
		}
		if err := s.constraints.ExtractAll(ctx, vars, scope); err != nil {
			return fmt.Errorf("inferring constraints for %s: %w", path, err)
		}
		for j, i := range idx {
			res.Variables[i] = vars[j]
		}
	}
	return nil
}

// analyzeFunctions builds the CFG of every merged function and, when
// dataFlow is set, the def-use graph of each parameter. A function that
// fails is reported as a diagnostic.
func (s *Service) analyzeFunctions(ctx context.Context, res *Result, dataFlow bool) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i := range res.Functions {
		fn := &res.Functions[i]
		var lines []string
		if m := res.Models[fn.File]; m != nil {
			lines = m.Lines
		}
		g.Go(func() error {
			fa, err := s.analyzer.Analyze(gctx, fn, lines)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				mu.Lock()
				res.Diagnostics = append(res.Diagnostics, types.Warning(fn.File, fn.StartLine, "cfg", err.Error()))
				mu.Unlock()
				return nil
			}

			var flows map[string]*dfg.DataFlowGraph
			var diags []types.Diagnostic
			if dataFlow {
				flows, diags = parameterFlows(fn, fa)
			}

			mu.Lock()
			defer mu.Unlock()
			res.Analyses[fn.Name] = fa
			res.Diagnostics = append(res.Diagnostics, fa.Diagnostics...)
			res.Diagnostics = append(res.Diagnostics, diags...)
			if len(flows) > 0 {
				res.DataFlow[fn.Name] = flows
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("analyzing functions: %w", err)
	}
	return nil
}

// parameterFlows builds the def-use graph of each named parameter of fn,
// refined over its control-flow graph.
func parameterFlows(fn *types.Function, fa *cfg.FunctionAnalysis) (map[string]*dfg.DataFlowGraph, []types.Diagnostic) {
	flows := make(map[string]*dfg.DataFlowGraph)
	var diags []types.Diagnostic
	reaching := dfg.NewReachingDefsAnalyzer()
	for _, p := range fn.Parameters {
		if p.Name == "" {
			continue
		}
		g, err := dfg.Build(p.Name, fn, fa.Body.Lines, fa.Body.FirstLine)
		if err != nil {
			diags = append(diags, types.Warning(fn.File, fn.StartLine, "dfg", err.Error()))
			continue
		}
		flows[p.Name] = reaching.Refine(g, fa.Graph)
	}
	return flows, diags
}
