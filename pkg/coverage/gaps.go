package coverage

import (
	"fmt"
	"slices"
	"strings"

	"github.com/l3aro/c-testforge/pkg/cfg"
	"github.com/l3aro/c-testforge/pkg/types"
)

// GapKind is the coverage dimension a gap belongs to.
type GapKind string

const (
	GapPath   GapKind = "path"
	GapBranch GapKind = "branch"
	GapLine   GapKind = "line"
)

// Gap is an uncovered coverage item together with the condition an input
// must satisfy to reach it.
type Gap struct {
	Kind GapKind `json:"kind"`
	// ID is the path or branch ID, or "L<line>" for lines.
	ID        string         `json:"id"`
	Line      int            `json:"line,omitempty"`
	Condition string         `json:"condition"`
	Severity  types.Severity `json:"severity"`
	// Path is the inventory path the condition was taken from.
	Path        string `json:"path,omitempty"`
	Description string `json:"description"`
}

// IdentifyGaps lists what res leaves uncovered: paths first, then
// branches, then lines. Branch and line gaps carry the guards of the first
// inventory path that reaches them; a branch no path reaches falls back to
// its own guard.
func IdentifyGaps(fa *cfg.FunctionAnalysis, res *Result) []Gap {
	var gaps []Gap
	byID := make(map[string]cfg.Path, len(fa.Paths))
	for _, p := range fa.Paths {
		byID[p.ID] = p
	}

	for _, id := range res.UncoveredPaths {
		p := byID[id]
		gaps = append(gaps, Gap{
			Kind:        GapPath,
			ID:          id,
			Line:        firstLine(fa.Graph, p),
			Condition:   p.Condition(),
			Severity:    types.SeverityInfo,
			Path:        id,
			Description: fmt.Sprintf("path %s through %s", id, strings.Join(p.Branches, " ")),
		})
	}

	for _, id := range res.UncoveredBranches {
		b, _ := fa.Branch(id)
		g := Gap{
			Kind:        GapBranch,
			ID:          id,
			Line:        b.Line,
			Condition:   b.Guard(),
			Severity:    types.SeverityWarning,
			Description: fmt.Sprintf("%s branch of %q on line %d", outcome(b.Taken), b.Condition, b.Line),
		}
		for _, p := range fa.Paths {
			if guards, ok := p.Through(id); ok {
				g.Condition = cfg.Conjunction(guards)
				g.Path = p.ID
				break
			}
		}
		gaps = append(gaps, g)
	}

	for _, line := range res.UncoveredLines {
		g := Gap{
			Kind:        GapLine,
			ID:          fmt.Sprintf("L%d", line),
			Line:        line,
			Condition:   "1",
			Severity:    types.SeverityWarning,
			Description: fmt.Sprintf("line %d is never executed", line),
		}
		if returnsOn(fa.Graph, line) {
			g.Severity = types.SeverityError
			g.Description = fmt.Sprintf("return on line %d is never executed", line)
		}
		for _, p := range fa.Paths {
			if fa.Graph != nil && slices.Contains(p.Lines(fa.Graph), line) {
				g.Condition = p.Condition()
				g.Path = p.ID
				break
			}
		}
		gaps = append(gaps, g)
	}
	return gaps
}

func outcome(taken bool) string {
	if taken {
		return "true"
	}
	return "false"
}

func firstLine(g *cfg.ControlFlowGraph, p cfg.Path) int {
	if g == nil {
		return 0
	}
	for _, id := range p.Nodes {
		if n := g.Node(id); n != nil && len(n.Lines) > 0 {
			return n.Lines[0]
		}
	}
	return 0
}

func returnsOn(g *cfg.ControlFlowGraph, line int) bool {
	if g == nil {
		return false
	}
	for _, n := range g.Nodes {
		if n.Type == cfg.NodeReturn && slices.Contains(n.Lines, line) {
			return true
		}
	}
	return false
}
