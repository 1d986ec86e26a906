// Package extractor builds the entity model of a C file from its syntax
// tree and the preprocessor resolver's output.
package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/l3aro/c-testforge/internal/log"
	"github.com/l3aro/c-testforge/pkg/ast"
	"github.com/l3aro/c-testforge/pkg/preproc"
	"github.com/l3aro/c-testforge/pkg/types"
)

// Options configures an extraction.
type Options struct {
	// Active is the project macro set, e.g. -D flags.
	Active map[string]string
	// MaxMacroDepth bounds macro cycle detection and expansion.
	MaxMacroDepth int
}

// Result is the outcome of extracting one file.
type Result struct {
	Model   *types.FileModel
	Preproc *preproc.Result
	Unit    *ast.TranslationUnit
}

// Extractor turns source files into FileModels.
type Extractor struct {
	frontEnd ast.FrontEnd
	logger   log.Logger
}

// New creates an extractor. A nil front-end selects tree-sitter.
func New(frontEnd ast.FrontEnd, logger log.Logger) *Extractor {
	if frontEnd == nil {
		frontEnd = ast.NewTreeSitterFrontEnd()
	}
	return &Extractor{frontEnd: frontEnd, logger: log.OrNop(logger)}
}

// Extract reads filePath and extracts its entity model.
func (e *Extractor) Extract(ctx context.Context, filePath string, opts Options) (*Result, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", filePath, err)
	}
	return e.ExtractFromBytes(ctx, filePath, content, opts)
}

// ExtractFromBytes extracts the entity model of content. Only the text
// compiled under opts.Active is parsed: lines of disabled regions and the
// conditional directives are blanked first, so a function whose body is
// split by #ifdef arms keeps balanced braces.
func (e *Extractor) ExtractFromBytes(ctx context.Context, filePath string, content []byte, opts Options) (*Result, error) {
	lines := ast.SplitLines(content)
	pre := preproc.Resolve(lines, filePath, preproc.Options{Active: opts.Active, MaxDepth: opts.MaxMacroDepth})
	compiled := preproc.Compiled(lines, pre.ActiveLines)

	unit, err := e.frontEnd.Parse(ctx, filePath, []byte(strings.Join(compiled, "\n")))
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", filePath, err)
	}

	model := &types.FileModel{
		Path:         filePath,
		Lines:        compiled,
		Definitions:  pre.Definitions,
		Conditionals: pre.Conditionals,
		Includes:     pre.Includes,
		Typedefs:     make(map[string]string),
	}
	model.Diagnostics = append(model.Diagnostics, pre.Diagnostics...)
	model.Diagnostics = append(model.Diagnostics, unit.Diagnostics...)

	b := newModelBuilder(model, pre.ActiveLines, opts.MaxMacroDepth)
	if err := ast.Walk(unit.Root, b); err != nil {
		return nil, fmt.Errorf("extracting %s: %w", filePath, err)
	}
	b.finish()

	e.logger.Debug("extracted file",
		"path", filePath,
		"definitions", len(model.Definitions),
		"variables", len(model.Variables),
		"functions", len(model.Functions),
		"diagnostics", len(model.Diagnostics))

	return &Result{Model: model, Preproc: pre, Unit: unit}, nil
}
