package preproc

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/l3aro/c-testforge/pkg/types"
)

var directiveRe = regexp.MustCompile(`^\s*#\s*(ifdef|ifndef|if|elif|else|endif)\b\s*(.*)$`)

// ExtractConditionals builds the directive arena for lines. Unbalanced
// directives do not stop extraction; each produces a warning diagnostic.
func ExtractConditionals(lines []string, file string) (*types.DirectiveArena, []types.Diagnostic) {
	arena := types.NewDirectiveArena()
	var diags []types.Diagnostic
	var stack []int

	for _, ll := range joinContinuations(lines) {
		m := directiveRe.FindStringSubmatch(ll.text)
		if m == nil {
			continue
		}
		keyword, cond := m[1], stripComments(m[2])

		switch keyword {
		case "if", "ifdef", "ifndef":
			id := arena.Add(types.ConditionalDirective{
				Type:         types.ConditionalType(keyword),
				Condition:    cond,
				StartLine:    ll.line,
				Parent:       types.NoParent,
				Dependencies: Identifiers(cond),
			})
			stack = append(stack, id)

		case "elif", "else":
			if len(stack) == 0 {
				diags = append(diags, types.Warning(file, ll.line, "preproc",
					fmt.Sprintf("#%s without matching #if", keyword)))
				continue
			}
			root := stack[len(stack)-1]
			if last := lastArm(arena, root); last.Type == types.ConditionalElse {
				diags = append(diags, types.Warning(file, ll.line, "preproc",
					fmt.Sprintf("#%s after #else", keyword)))
			}
			arena.Add(types.ConditionalDirective{
				Type:         types.ConditionalType(keyword),
				Condition:    cond,
				StartLine:    ll.line,
				Parent:       root,
				Dependencies: Identifiers(cond),
			})

		case "endif":
			if len(stack) == 0 {
				diags = append(diags, types.Warning(file, ll.line, "preproc", "#endif without matching #if"))
				continue
			}
			root := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, id := range arena.Chain(root) {
				arena.Get(id).EndLine = ll.line
			}
		}
	}

	for _, id := range stack {
		d := arena.Get(id)
		diags = append(diags, types.Warning(file, d.StartLine, "preproc",
			fmt.Sprintf("unterminated #%s %s", d.Type, strings.TrimSpace(d.Condition))))
	}
	return arena, diags
}

func lastArm(arena *types.DirectiveArena, root int) *types.ConditionalDirective {
	chain := arena.Chain(root)
	return arena.Get(chain[len(chain)-1])
}

// armEnd returns the last line governed by the arm at position i of chain, or
// lineCount for unterminated chains.
func armEnd(arena *types.DirectiveArena, chain []int, i, lineCount int) int {
	if i+1 < len(chain) {
		return arena.Get(chain[i+1]).StartLine - 1
	}
	if end := arena.Get(chain[i]).EndLine; end > 0 {
		return end - 1
	}
	return lineCount
}
