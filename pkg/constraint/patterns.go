package constraint

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/l3aro/c-testforge/pkg/cexpr"
	"github.com/l3aro/c-testforge/pkg/types"
)

// operand matches a bound: a possibly negated number, character literal or
// name.
const operand = `(-?\s*(?:'(?:\\.|[^'\\])+'|[A-Za-z0-9_.]+))`

var (
	caseLabel      = regexp.MustCompile(`\bcase\s+([^:]+):`)
	rangeComment   = regexp.MustCompile(`(?i)\b(?:valid range|value range|range):\s*(-?\d+(?:\.\d+)?)\s*(?:to|\.\.|-)\s*(-?\d+(?:\.\d+)?)`)
	valuesComment  = regexp.MustCompile(`(?i)\b(?:valid values|allowed|values):\s*([\w\s,'\-]+)`)
	flippedCompare = map[string]string{"<": ">", "<=": ">=", ">": "<", ">=": "<=", "==": "=="}
)

// patterns holds the regular expressions for one variable name.
type patterns struct {
	forward    *regexp.Regexp // var OP N
	reverse    *regexp.Regexp // N OP var
	rangeAsc   *regexp.Regexp // N1 <= var && var <= N2
	rangeDesc  *regexp.Regexp // var >= N1 && var <= N2
	assignment *regexp.Regexp
	switchHead *regexp.Regexp
	index      *regexp.Regexp
}

func compilePatterns(name string) patterns {
	n := regexp.QuoteMeta(name)
	return patterns{
		forward:    regexp.MustCompile(`\b` + n + `\s*(>=|<=|==|>|<)\s*` + operand),
		reverse:    regexp.MustCompile(operand + `\s*(>=|<=|==|>|<)\s*` + n + `\b`),
		rangeAsc:   regexp.MustCompile(operand + `\s*(<=|<)\s*` + n + `\s*&&\s*` + n + `\s*(<=|<)\s*` + operand),
		rangeDesc:  regexp.MustCompile(`\b` + n + `\s*(>=|>)\s*` + operand + `\s*&&\s*` + n + `\s*(<=|<)\s*` + operand),
		assignment: regexp.MustCompile(`\b` + n + `\s*=\s*([^;=][^;]*);`),
		switchHead: regexp.MustCompile(`\bswitch\s*\(\s*` + n + `\s*\)\s*\{`),
		index:      regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\[\s*` + n + `\s*\]`),
	}
}

// lexical reports whether the source-pattern passes apply to v.
func lexical(v types.Variable) bool {
	return v.Kind == types.KindPrimitive || v.Kind == types.KindEnum
}

// comparisons matches relational patterns against every code line. The
// match is purely lexical: a comparison of a same-named variable in another
// scope is recorded too.
func (e *Engine) comparisons(v types.Variable, s Scope, p patterns, src *sourceText, r *resolver) []types.Constraint {
	if !lexical(v) {
		return nil
	}
	integer := isInteger(v, s.Typedefs)

	var out []types.Constraint
	for i, line := range src.code {
		if !strings.Contains(line, v.Name) {
			continue
		}
		lineNo := i + 1

		for _, m := range p.rangeAsc.FindAllStringSubmatchIndex(line, -1) {
			if !boundaryBefore(line, m[0]) || !boundaryAfter(line, m[1]) {
				continue
			}
			lo, okLo := e.bound(v, r, line[m[2]:m[3]], lineNo)
			hi, okHi := e.bound(v, r, line[m[8]:m[9]], lineNo)
			if !okLo || !okHi {
				continue
			}
			lo = tighten(lo, line[m[4]:m[5]] == "<", 1, integer)
			hi = tighten(hi, line[m[6]:m[7]] == "<", -1, integer)
			out = append(out, rangeOf(lo, hi, lineNo))
		}
		for _, m := range p.rangeDesc.FindAllStringSubmatchIndex(line, -1) {
			if !boundaryBefore(line, m[0]) || !boundaryAfter(line, m[1]) {
				continue
			}
			lo, okLo := e.bound(v, r, line[m[4]:m[5]], lineNo)
			hi, okHi := e.bound(v, r, line[m[8]:m[9]], lineNo)
			if !okLo || !okHi {
				continue
			}
			lo = tighten(lo, line[m[2]:m[3]] == ">", 1, integer)
			hi = tighten(hi, line[m[6]:m[7]] == "<", -1, integer)
			out = append(out, rangeOf(lo, hi, lineNo))
		}

		for _, m := range p.forward.FindAllStringSubmatchIndex(line, -1) {
			if !boundaryBefore(line, m[0]) || !boundaryAfter(line, m[1]) {
				continue
			}
			op, text := line[m[2]:m[3]], line[m[4]:m[5]]
			if c, ok := e.compare(v, r, op, text, lineNo, integer); ok {
				out = append(out, c)
			}
		}
		for _, m := range p.reverse.FindAllStringSubmatchIndex(line, -1) {
			if !boundaryBefore(line, m[0]) || !boundaryAfter(line, m[1]) {
				continue
			}
			text, op := line[m[2]:m[3]], line[m[4]:m[5]]
			if c, ok := e.compare(v, r, flippedCompare[op], text, lineNo, integer); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// compare builds the constraint for "v op text".
func (e *Engine) compare(v types.Variable, r *resolver, op, text string, line int, integer bool) (types.Constraint, bool) {
	val, ok := e.bound(v, r, text, line)
	if !ok {
		return types.Constraint{}, false
	}
	source := fmt.Sprintf("line %d: %s %s %s", line, v.Name, op, strings.TrimSpace(text))
	switch op {
	case ">", ">=":
		val = tighten(val, op == ">", 1, integer)
		return types.Constraint{Type: types.ConstraintMinValue, Min: val.String(), Source: source}, true
	case "<", "<=":
		val = tighten(val, op == "<", -1, integer)
		return types.Constraint{Type: types.ConstraintMaxValue, Max: val.String(), Source: source}, true
	case "==":
		return types.Constraint{Type: types.ConstraintEnumeration, Values: []string{val.String()}, Source: source}, true
	}
	return types.Constraint{}, false
}

// bound resolves the text of a comparison operand. Names that are not
// constants yield no constraint.
func (e *Engine) bound(v types.Variable, r *resolver, text string, line int) (cexpr.Value, bool) {
	if strings.TrimSpace(text) == v.Name {
		return cexpr.Value{}, false
	}
	val, ok := r.value(text)
	if !ok {
		e.logger.Debug("non-constant bound", "variable", v.Name, "bound", strings.TrimSpace(text), "line", line)
	}
	return val, ok
}

// tighten turns a strict integer bound into an inclusive one.
func tighten(v cexpr.Value, strict bool, delta int64, integer bool) cexpr.Value {
	if !strict || !integer || v.Float {
		return v
	}
	return cexpr.Int(v.I + delta)
}

func rangeOf(lo, hi cexpr.Value, line int) types.Constraint {
	return types.Constraint{
		Type:   types.ConstraintRange,
		Min:    lo.String(),
		Max:    hi.String(),
		Source: fmt.Sprintf("line %d: range check", line),
	}
}

// boundaryBefore reports whether the match at pos begins a whole operand of
// a comparison, not the tail of an arithmetic expression or member access.
func boundaryBefore(line string, pos int) bool {
	if memberAccess(line, pos) {
		return false
	}
	j := pos - 1
	for j >= 0 && (line[j] == ' ' || line[j] == '\t') {
		j--
	}
	if j < 0 {
		return true
	}
	if strings.ContainsRune("(&|,;?:={[", rune(line[j])) {
		// "a <= x" and "a == x" belong to another comparison.
		if line[j] == '=' && j > 0 && strings.ContainsRune("=!<>", rune(line[j-1])) {
			return false
		}
		return true
	}
	return strings.HasSuffix(line[:j+1], "return") && (j < 6 || !isWordByte(line[j-6]))
}

// boundaryAfter reports whether the match ending at pos is followed by the
// end of the comparison.
func boundaryAfter(line string, pos int) bool {
	for pos < len(line) && (line[pos] == ' ' || line[pos] == '\t') {
		pos++
	}
	return pos == len(line) || strings.ContainsRune(")&|,;?:]}", rune(line[pos]))
}

// memberAccess reports whether the name at pos follows "." or "->".
func memberAccess(line string, pos int) bool {
	if pos == 0 {
		return false
	}
	return line[pos-1] == '.' || (line[pos-1] == '>' && pos > 1 && line[pos-2] == '-')
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// assignments collects the literal values assigned to v, including its
// initializer.
func (e *Engine) assignments(v types.Variable, p patterns, src *sourceText) []types.Constraint {
	if !lexical(v) {
		return nil
	}
	var values []string
	for _, line := range src.code {
		if !strings.Contains(line, v.Name) {
			continue
		}
		for _, m := range p.assignment.FindAllStringSubmatchIndex(line, -1) {
			if memberAccess(line, m[0]) {
				continue
			}
			val, err := cexpr.ParseValue(strings.TrimSpace(line[m[2]:m[3]]))
			if err != nil {
				continue
			}
			values = appendUnique(values, val.String())
		}
	}
	if len(values) == 0 {
		return nil
	}
	return []types.Constraint{{
		Type:   types.ConstraintEnumeration,
		Values: values,
		Source: "assigned literals",
	}}
}

// switchCases turns the case labels of "switch (v)" into an enumeration.
func (e *Engine) switchCases(v types.Variable, p patterns, src *sourceText, r *resolver) []types.Constraint {
	if !lexical(v) {
		return nil
	}
	text, offsets := src.joined()

	var out []types.Constraint
	for _, m := range p.switchHead.FindAllStringIndex(text, -1) {
		open := m[1] - 1
		end := matchingBrace(text, open)
		if end < 0 {
			continue
		}
		var values []string
		for _, c := range caseLabel.FindAllStringSubmatch(text[open+1:end], -1) {
			val, ok := r.value(c[1])
			if !ok {
				e.logger.Debug("non-constant case label", "variable", v.Name, "label", strings.TrimSpace(c[1]))
				continue
			}
			values = appendUnique(values, val.String())
		}
		if len(values) == 0 {
			continue
		}
		out = append(out, types.Constraint{
			Type:   types.ConstraintEnumeration,
			Values: values,
			Source: fmt.Sprintf("switch at line %d", lineOf(offsets, m[0])),
		})
	}
	return out
}

func matchingBrace(text string, open int) int {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// arrayIndexes bounds v by the size of every array it indexes.
func arrayIndexes(v types.Variable, s Scope, p patterns, src *sourceText) []types.Constraint {
	if !lexical(v) || len(s.Arrays) == 0 {
		return nil
	}
	var out []types.Constraint
	for _, line := range src.code {
		if !strings.Contains(line, v.Name) {
			continue
		}
		for _, m := range p.index.FindAllStringSubmatch(line, -1) {
			size, ok := s.Arrays[m[1]]
			if !ok || size <= 0 {
				continue
			}
			out = append(out, types.Constraint{
				Type:   types.ConstraintRange,
				Min:    "0",
				Max:    strconv.Itoa(size - 1),
				Source: fmt.Sprintf("index of %s[%d]", m[1], size),
			})
		}
	}
	return out
}

// annotations reads "Range: a to b" and "Valid values: a, b" comments on the
// declaration line and on the comment lines directly above it.
func (e *Engine) annotations(v types.Variable, src *sourceText, r *resolver) []types.Constraint {
	if v.Line < 1 || v.Line > len(src.comments) {
		return nil
	}
	var out []types.Constraint
	for i := v.Line - 1; i >= 0 && i >= v.Line-6; i-- {
		if i < v.Line-1 && strings.TrimSpace(src.code[i]) != "" {
			break
		}
		comment := src.comments[i]
		if comment == "" {
			continue
		}
		source := fmt.Sprintf("comment at line %d", i+1)
		if m := rangeComment.FindStringSubmatch(comment); m != nil {
			out = append(out, types.Constraint{
				Type:   types.ConstraintRange,
				Min:    m[1],
				Max:    m[2],
				Source: source,
				Hard:   true,
			})
		}
		if m := valuesComment.FindStringSubmatch(comment); m != nil {
			var values []string
			for _, f := range strings.FieldsFunc(m[1], func(c rune) bool { return c == ',' || c == ' ' || c == '\t' }) {
				val, ok := r.value(f)
				if !ok {
					e.logger.Debug("non-constant annotated value", "variable", v.Name, "value", f)
					continue
				}
				values = appendUnique(values, val.String())
			}
			if len(values) > 0 {
				out = append(out, types.Constraint{
					Type:   types.ConstraintEnumeration,
					Values: values,
					Source: source,
					Hard:   true,
				})
			}
		}
	}
	return out
}
