// Package preproc resolves macro definitions and conditional-compilation
// directives. It works on the raw line stream of a file, before any parser
// has seen it.
package preproc

import (
	"regexp"
	"sort"
	"strings"

	"github.com/l3aro/c-testforge/pkg/types"
)

var (
	defineRe  = regexp.MustCompile(`^\s*#\s*define\s+([A-Za-z_]\w*)(\(([^)]*)\))?(?:\s+(.*))?$`)
	includeRe = regexp.MustCompile(`^\s*#\s*include\s*([<"])([^>"]+)[>"]`)
	identRe   = regexp.MustCompile(`\b[A-Za-z_]\w*\b`)
	stringRe  = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`)
)

// cKeywords are never treated as macro references.
var cKeywords = map[string]bool{
	"auto": true, "break": true, "case": true, "char": true, "const": true, "continue": true,
	"default": true, "do": true, "double": true, "else": true, "enum": true, "extern": true,
	"float": true, "for": true, "goto": true, "if": true, "inline": true, "int": true,
	"long": true, "register": true, "restrict": true, "return": true, "short": true,
	"signed": true, "sizeof": true, "static": true, "struct": true, "switch": true,
	"typedef": true, "union": true, "unsigned": true, "void": true, "volatile": true,
	"while": true, "_Bool": true, "bool": true, "true": true, "false": true,
}

// IsKeyword reports whether word is a C keyword.
func IsKeyword(word string) bool {
	return cKeywords[word]
}

// logicalLine is a source line with backslash continuations folded in.
type logicalLine struct {
	text string
	line int // 1-based line of the first physical line
}

func joinContinuations(lines []string) []logicalLine {
	var out []logicalLine
	for i := 0; i < len(lines); i++ {
		start := i
		text := strings.TrimRight(lines[i], " \t\r")
		for strings.HasSuffix(text, `\`) && i+1 < len(lines) {
			i++
			text = strings.TrimRight(strings.TrimSuffix(text, `\`), " \t") + " " + strings.TrimSpace(lines[i])
			text = strings.TrimRight(text, " \t")
		}
		out = append(out, logicalLine{text: text, line: start + 1})
	}
	return out
}

// stripComments removes // and /* */ comments that start and end on the
// line. Comment markers inside string and character literals are text.
func stripComments(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '"' || s[i] == '\'' {
			if lit := stringRe.FindStringIndex(s[i:]); lit != nil && lit[0] == 0 {
				sb.WriteString(s[i : i+lit[1]])
				i += lit[1]
				continue
			}
		}
		switch {
		case strings.HasPrefix(s[i:], "//"):
			return strings.TrimSpace(sb.String())
		case strings.HasPrefix(s[i:], "/*"):
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return strings.TrimSpace(sb.String())
			}
			sb.WriteByte(' ')
			i += 2 + end + 2
			continue
		}
		sb.WriteByte(s[i])
		i++
	}
	return strings.TrimSpace(sb.String())
}

// ExtractDefinitions returns every #define in lines, in source order.
func ExtractDefinitions(lines []string, file string) []types.Definition {
	var defs []types.Definition
	for _, ll := range joinContinuations(lines) {
		m := defineRe.FindStringSubmatch(ll.text)
		if m == nil {
			continue
		}
		def := types.Definition{
			Name:    m[1],
			Value:   stripComments(m[4]),
			Type:    types.DefinitionConstant,
			Enabled: true,
			File:    file,
			Line:    ll.line,
		}
		if m[2] != "" {
			def.Type = types.DefinitionFunctionMacro
			def.Parameters = []string{}
			for _, p := range strings.Split(m[3], ",") {
				if p = strings.TrimSpace(p); p != "" {
					def.Parameters = append(def.Parameters, p)
				}
			}
		}
		defs = append(defs, def)
	}
	return defs
}

// ExtractIncludes returns every #include in lines.
func ExtractIncludes(lines []string) []types.IncludeDirective {
	var includes []types.IncludeDirective
	for i, line := range lines {
		m := includeRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		includes = append(includes, types.IncludeDirective{
			Path:     strings.TrimSpace(m[2]),
			IsSystem: m[1] == "<",
			Line:     i + 1,
		})
	}
	return includes
}

// Identifiers returns the identifier tokens of expr in order of first
// appearance. Numeric literals, string literals, keywords and the defined
// operator are skipped.
func Identifiers(expr string) []string {
	expr = stringRe.ReplaceAllString(expr, " ")
	seen := make(map[string]bool)
	var out []string
	for _, tok := range identRe.FindAllString(expr, -1) {
		if tok == "defined" || cKeywords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// ResolveDependencies fills Dependencies on every definition and directive
// with the known definition names they reference. Function-like macro
// parameters are not dependencies.
func ResolveDependencies(defs []types.Definition, arena *types.DirectiveArena) {
	known := make(map[string]bool, len(defs))
	for _, d := range defs {
		known[d.Name] = true
	}

	for i := range defs {
		params := make(map[string]bool, len(defs[i].Parameters))
		for _, p := range defs[i].Parameters {
			params[p] = true
		}
		deps := []string{}
		for _, id := range Identifiers(defs[i].Value) {
			if known[id] && !params[id] {
				deps = append(deps, id)
			}
		}
		defs[i].Dependencies = deps
	}

	if arena == nil {
		return
	}
	for i := range arena.Directives {
		d := &arena.Directives[i]
		deps := []string{}
		for _, id := range Identifiers(d.Condition) {
			if known[id] {
				deps = append(deps, id)
			}
		}
		d.Dependencies = deps
	}
}

// DependencyGraph maps each definition name to the names it depends on.
// Later definitions of the same name replace earlier ones.
func DependencyGraph(defs []types.Definition) map[string][]string {
	graph := make(map[string][]string, len(defs))
	for _, d := range defs {
		graph[d.Name] = append([]string(nil), d.Dependencies...)
	}
	return graph
}

// Dependents returns the definitions that reference name, sorted.
func Dependents(defs []types.Definition, name string) []string {
	var out []string
	for _, d := range defs {
		for _, dep := range d.Dependencies {
			if dep == name {
				out = append(out, d.Name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
