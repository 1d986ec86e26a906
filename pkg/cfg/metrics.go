package cfg

import "github.com/l3aro/c-testforge/pkg/ast"

// Metrics are the structural measurements of a function body.
//
// CyclomaticComplexity is a keyword count, not a decision-point parse:
// 1 plus every if, while, for, case, &&, || and ?. An "else if" counts once
// through its if.
type Metrics struct {
	CyclomaticComplexity int `json:"cyclomatic_complexity"`
	NestingDepth         int `json:"nesting_depth"`
	StatementCount       int `json:"statement_count"`
	ConditionCount       int `json:"condition_count"`
	LinesOfCode          int `json:"lines_of_code"`
}

var controlKeywords = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "do": true,
	"switch": true, "case": true, "default": true,
}

// ComputeMetrics measures body. An empty body has all-zero metrics.
//
// NestingDepth is the deepest brace level inside the function's own
// braces. StatementCount counts lines ending in ";" that do not start with
// a control keyword. ConditionCount is the number of if, while, for, switch
// and case keywords plus && and || operators.
func ComputeMetrics(body Body) Metrics {
	if body.Empty() {
		return Metrics{}
	}
	toks := body.Tokens()

	m := Metrics{CyclomaticComplexity: 1}
	depth, maxDepth := 0, 0
	for _, t := range toks {
		switch {
		case t.Is("if"), t.Is("while"), t.Is("for"), t.Is("case"):
			m.CyclomaticComplexity++
			m.ConditionCount++
		case t.Is("switch"):
			m.ConditionCount++
		case t.Is("&&"), t.Is("||"):
			m.CyclomaticComplexity++
			m.ConditionCount++
		case t.Is("?"):
			m.CyclomaticComplexity++
		case t.Is("{"):
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case t.Is("}"):
			depth--
		}
	}
	if maxDepth > 0 {
		m.NestingDepth = maxDepth - 1
	}

	for _, line := range byLine(toks) {
		m.LinesOfCode++
		first, last := line[0], line[len(line)-1]
		if first.Kind == ast.TokenKeyword && controlKeywords[first.Text] {
			continue
		}
		if first.Is("}") && len(line) > 1 && line[1].Is("while") {
			continue
		}
		if last.Is(";") {
			m.StatementCount++
		}
	}
	return m
}

// byLine groups tokens by source line, skipping directives.
func byLine(toks []ast.Token) [][]ast.Token {
	var out [][]ast.Token
	for _, t := range toks {
		if t.Kind == ast.TokenDirective {
			continue
		}
		if n := len(out); n > 0 && out[n-1][0].Line == t.Line {
			out[n-1] = append(out[n-1], t)
			continue
		}
		out = append(out, []ast.Token{t})
	}
	return out
}
