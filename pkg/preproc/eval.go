package preproc

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/l3aro/c-testforge/pkg/types"
)

// ErrMalformedExpression is returned for #if conditions that cannot be evaluated.
var ErrMalformedExpression = errors.New("malformed preprocessor expression")

// DefaultMaxDepth bounds macro re-substitution and graph walks.
const DefaultMaxDepth = 64

var (
	definedParenRe = regexp.MustCompile(`\bdefined\s*\(\s*([A-Za-z_]\w*)\s*\)`)
	definedBareRe  = regexp.MustCompile(`\bdefined\s+([A-Za-z_]\w*)`)
)

// EvaluateCondition evaluates an #if or #elif condition against the active
// macro set. defined(X) becomes 1 or 0, known macros are replaced by their
// values, and any identifier left over becomes 0.
//
// Only !, &&, || and parentheses have their C precedence. Every other binary
// operator shares one level and associates left to right, so "1 + 2 * 3"
// is 9.
func EvaluateCondition(cond string, active map[string]string) (bool, error) {
	expr := substituteDefined(cond, active)

	for depth := 0; ; depth++ {
		next := identRe.ReplaceAllStringFunc(expr, func(id string) string {
			if v, ok := active[id]; ok {
				if strings.TrimSpace(v) == "" {
					return "1"
				}
				return "(" + v + ")"
			}
			return id
		})
		if next == expr {
			break
		}
		if depth >= DefaultMaxDepth {
			return false, fmt.Errorf("%w: macro substitution exceeds depth %d in %q", ErrMalformedExpression, DefaultMaxDepth, cond)
		}
		expr = substituteDefined(next, active)
	}
	expr = identRe.ReplaceAllString(expr, "0")

	p := &condParser{toks: lexCondition(expr)}
	v, err := p.parseOr()
	if err == nil && p.pos < len(p.toks) {
		err = fmt.Errorf("unexpected %q", p.toks[p.pos])
	}
	if err != nil {
		return false, fmt.Errorf("%w: %q: %v", ErrMalformedExpression, cond, err)
	}
	return v != 0, nil
}

func substituteDefined(expr string, active map[string]string) string {
	repl := func(re *regexp.Regexp) func(string) string {
		return func(m string) string {
			name := re.FindStringSubmatch(m)[1]
			if _, ok := active[name]; ok {
				return "1"
			}
			return "0"
		}
	}
	expr = definedParenRe.ReplaceAllStringFunc(expr, repl(definedParenRe))
	return definedBareRe.ReplaceAllStringFunc(expr, repl(definedBareRe))
}

// EvaluateDirective reports whether the arm id of a conditional chain is the
// one compiled under active. An #elif or #else arm is only taken when every
// earlier arm of its chain was not.
func EvaluateDirective(arena *types.DirectiveArena, id int, active map[string]string) (bool, error) {
	d := arena.Get(id)
	if d == nil {
		return false, fmt.Errorf("directive %d not found", id)
	}

	root := id
	if d.Parent != types.NoParent {
		root = d.Parent
	}
	for _, armID := range arena.Chain(root) {
		taken, err := evaluateArm(arena.Get(armID), active)
		if armID == id {
			return taken, err
		}
		if taken {
			return false, nil
		}
	}
	return false, fmt.Errorf("directive %d is not part of chain %d", id, root)
}

func evaluateArm(d *types.ConditionalDirective, active map[string]string) (bool, error) {
	switch d.Type {
	case types.ConditionalIfDef:
		_, ok := active[strings.TrimSpace(d.Condition)]
		return ok, nil
	case types.ConditionalIfNDef:
		_, ok := active[strings.TrimSpace(d.Condition)]
		return !ok, nil
	case types.ConditionalIf, types.ConditionalElseIf:
		return EvaluateCondition(d.Condition, active)
	case types.ConditionalElse:
		return true, nil
	default:
		return false, fmt.Errorf("unknown directive type %q", d.Type)
	}
}

// EvaluateAll evaluates every directive of arena. Malformed conditions
// evaluate to false and are reported as warnings carrying the offending text.
func EvaluateAll(arena *types.DirectiveArena, active map[string]string, file string) (map[int]bool, []types.Diagnostic) {
	results := make(map[int]bool, arena.Len())
	var diags []types.Diagnostic
	for _, root := range arena.Roots() {
		taken := false
		for _, id := range arena.Chain(root) {
			d := arena.Get(id)
			if taken {
				results[id] = false
				continue
			}
			v, err := evaluateArm(d, active)
			if err != nil {
				diags = append(diags, types.Warning(file, d.StartLine, "preproc", err.Error()))
				v = false
			}
			results[id] = v
			taken = v
		}
	}
	return results, diags
}

// ActiveLines returns a mask, indexed by 0-based line, of the lines compiled
// under active. Directive lines themselves are inactive.
func ActiveLines(arena *types.DirectiveArena, lineCount int, active map[string]string) []bool {
	mask := make([]bool, lineCount)
	for i := range mask {
		mask[i] = true
	}
	taken, _ := EvaluateAll(arena, active, "")

	clear := func(from, to int) {
		for l := from; l <= to && l <= lineCount; l++ {
			if l >= 1 {
				mask[l-1] = false
			}
		}
	}

	for _, root := range arena.Roots() {
		chain := arena.Chain(root)
		for i, id := range chain {
			d := arena.Get(id)
			clear(d.StartLine, d.StartLine)
			if !taken[id] {
				clear(d.StartLine+1, armEnd(arena, chain, i, lineCount))
			}
		}
		if end := arena.Get(root).EndLine; end > 0 {
			clear(end, end)
		}
	}
	return mask
}

// Compiled returns lines with every line outside mask blanked, so that
// line numbers survive and only the compiled text remains.
func Compiled(lines []string, mask []bool) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		if i >= len(mask) || mask[i] {
			out[i] = l
		}
	}
	return out
}

// MarkEnabled sets Enabled on every definition according to mask.
func MarkEnabled(defs []types.Definition, mask []bool) {
	for i := range defs {
		l := defs[i].Line - 1
		defs[i].Enabled = l < 0 || l >= len(mask) || mask[l]
	}
}

// condParser evaluates the simplified #if grammar:
//
//	or   := and ('||' and)*
//	and  := flat ('&&' flat)*
//	flat := unary (binop unary)*
//	unary:= ('!' | '-' | '+' | '~') unary | number | '(' or ')'
type condParser struct {
	toks []string
	pos  int
}

func (p *condParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *condParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *condParser) parseOr() (int64, error) {
	left, err := p.parseAnd()
	if err != nil {
		return 0, err
	}
	for p.peek() == "||" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return 0, err
		}
		left = boolInt(left != 0 || right != 0)
	}
	return left, nil
}

func (p *condParser) parseAnd() (int64, error) {
	left, err := p.parseFlat()
	if err != nil {
		return 0, err
	}
	for p.peek() == "&&" {
		p.next()
		right, err := p.parseFlat()
		if err != nil {
			return 0, err
		}
		left = boolInt(left != 0 && right != 0)
	}
	return left, nil
}

func (p *condParser) parseFlat() (int64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for isFlatOperator(p.peek()) {
		op := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		left, err = applyBinary(op, left, right)
		if err != nil {
			return 0, err
		}
	}
	return left, nil
}

func (p *condParser) parseUnary() (int64, error) {
	tok := p.next()
	switch tok {
	case "":
		return 0, errors.New("unexpected end of expression")
	case "!":
		v, err := p.parseUnary()
		return boolInt(v == 0), err
	case "-":
		v, err := p.parseUnary()
		return -v, err
	case "+":
		return p.parseUnary()
	case "~":
		v, err := p.parseUnary()
		return ^v, err
	case "(":
		v, err := p.parseOr()
		if err != nil {
			return 0, err
		}
		if p.next() != ")" {
			return 0, errors.New("missing )")
		}
		return v, nil
	}
	return ParseIntLiteral(tok)
}

func isFlatOperator(tok string) bool {
	switch tok {
	case "+", "-", "*", "/", "%", "<", ">", "<=", ">=", "==", "!=", "&", "|", "^", "<<", ">>":
		return true
	}
	return false
}

func applyBinary(op string, a, b int64) (int64, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/", "%":
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		if op == "/" {
			return a / b, nil
		}
		return a % b, nil
	case "<":
		return boolInt(a < b), nil
	case ">":
		return boolInt(a > b), nil
	case "<=":
		return boolInt(a <= b), nil
	case ">=":
		return boolInt(a >= b), nil
	case "==":
		return boolInt(a == b), nil
	case "!=":
		return boolInt(a != b), nil
	case "&":
		return a & b, nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	case "<<":
		return a << uint64(b&63), nil
	case ">>":
		return a >> uint64(b&63), nil
	}
	return 0, fmt.Errorf("unsupported operator %q", op)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// lexCondition splits a substituted condition into number, operator and
// parenthesis tokens. Unknown characters become single-character tokens so
// that the parser reports them.
func lexCondition(s string) []string {
	var toks []string
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && (isAlnum(s[j]) || s[j] == '.') {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		case i+1 < len(s) && isTwoCharOp(s[i:i+2]):
			toks = append(toks, s[i:i+2])
			i += 2
		default:
			toks = append(toks, string(c))
			i++
		}
	}
	return toks
}

func isTwoCharOp(s string) bool {
	switch s {
	case "&&", "||", "<=", ">=", "==", "!=", "<<", ">>":
		return true
	}
	return false
}

func isAlnum(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// ParseIntLiteral parses a C integer literal, accepting hex, octal, binary
// and the u/l suffixes.
func ParseIntLiteral(tok string) (int64, error) {
	t := strings.TrimRight(strings.ToLower(tok), "ul")
	if t == "" {
		return 0, fmt.Errorf("invalid literal %q", tok)
	}
	base := 10
	switch {
	case strings.HasPrefix(t, "0x"):
		base, t = 16, t[2:]
	case strings.HasPrefix(t, "0b"):
		base, t = 2, t[2:]
	case len(t) > 1 && t[0] == '0':
		base, t = 8, t[1:]
	}
	v, err := strconv.ParseInt(t, base, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(t, base, 64)
		if uerr != nil {
			return 0, fmt.Errorf("invalid literal %q", tok)
		}
		return int64(u), nil
	}
	return v, nil
}
