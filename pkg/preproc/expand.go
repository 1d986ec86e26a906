package preproc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/l3aro/c-testforge/pkg/types"
)

// ErrExpansionDepth is returned when macro expansion does not settle within
// the depth bound, which happens for self-referential macros.
var ErrExpansionDepth = errors.New("macro expansion depth exceeded")

// Expand replaces macro and enumerator names in expr with their values.
// Function-like macros are expanded with their arguments substituted.
// Disabled definitions are ignored. Each pass expands every name once; the
// result is returned when a pass changes nothing.
func Expand(expr string, defs []types.Definition, maxDepth int) (string, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	table := make(map[string]types.Definition, len(defs))
	for _, d := range defs {
		if d.Enabled {
			table[d.Name] = d
		}
	}
	if len(table) == 0 {
		return expr, nil
	}

	for depth := 0; depth < maxDepth; depth++ {
		next := expandOnce(expr, table)
		if next == expr {
			return expr, nil
		}
		expr = next
	}
	return expr, fmt.Errorf("%w: %q", ErrExpansionDepth, expr)
}

func expandOnce(expr string, table map[string]types.Definition) string {
	var sb strings.Builder
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == '"' || c == '\'':
			j := skipQuoted(expr, i)
			sb.WriteString(expr[i:j])
			i = j
		case isIdentStart(c):
			j := i
			for j < len(expr) && isAlnum(expr[j]) {
				j++
			}
			name := expr[i:j]
			def, ok := table[name]
			if !ok || (i > 0 && isAlnum(expr[i-1])) {
				sb.WriteString(name)
				i = j
				continue
			}
			if def.IsFunctionLike() {
				args, end, ok := parseArgs(expr, j)
				if !ok {
					sb.WriteString(name)
					i = j
					continue
				}
				sb.WriteString(wrap(substituteParams(def.Value, def.Parameters, args)))
				i = end
				continue
			}
			sb.WriteString(wrap(def.Value))
			i = j
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

// wrap parenthesizes values that are not a single token.
func wrap(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return v
	}
	for i := 0; i < len(v); i++ {
		if !isAlnum(v[i]) && v[i] != '.' {
			if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") && balanced(v[1:len(v)-1]) {
				return v
			}
			return "(" + v + ")"
		}
	}
	return v
}

func balanced(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// parseArgs reads a parenthesized argument list starting at or after pos.
func parseArgs(expr string, pos int) ([]string, int, bool) {
	for pos < len(expr) && (expr[pos] == ' ' || expr[pos] == '\t') {
		pos++
	}
	if pos >= len(expr) || expr[pos] != '(' {
		return nil, pos, false
	}
	var args []string
	depth := 0
	start := pos + 1
	for i := pos; i < len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				if arg := strings.TrimSpace(expr[start:i]); arg != "" || len(args) > 0 {
					args = append(args, arg)
				}
				return args, i + 1, true
			}
		case ',':
			if depth == 1 {
				args = append(args, strings.TrimSpace(expr[start:i]))
				start = i + 1
			}
		case '"', '\'':
			i = skipQuoted(expr, i) - 1
		}
	}
	return nil, pos, false
}

func substituteParams(body string, params, args []string) string {
	bind := make(map[string]string, len(params))
	for i, p := range params {
		if i < len(args) {
			bind[p] = args[i]
		}
	}
	return identRe.ReplaceAllStringFunc(body, func(id string) string {
		if v, ok := bind[id]; ok {
			return v
		}
		return id
	})
}

func skipQuoted(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		if s[j] == '\\' {
			j++
			continue
		}
		if s[j] == q {
			return j + 1
		}
	}
	return len(s)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
