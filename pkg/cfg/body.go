package cfg

import (
	"strings"

	"github.com/l3aro/c-testforge/pkg/ast"
)

// Body is the brace-delimited body of a function. The first line starts at
// the opening brace and the last line ends at the closing brace.
type Body struct {
	Lines     []string `json:"lines"`
	FirstLine int      `json:"first_line"`
}

// LastLine returns the line number of the closing brace.
func (b Body) LastLine() int {
	if len(b.Lines) == 0 {
		return 0
	}
	return b.FirstLine + len(b.Lines) - 1
}

// Empty reports whether no body was isolated.
func (b Body) Empty() bool {
	return len(b.Lines) == 0
}

// Tokens lexes the body.
func (b Body) Tokens() []ast.Token {
	return ast.Lex(b.Lines, b.FirstLine)
}

// IsolateBody finds the body of the function whose signature starts on
// startLine (1-based). It locates the first "{" at or after the signature
// and counts braces until the matching "}", ignoring braces in comments and
// literals. A prototype, a missing brace or an unterminated body yields an
// empty body and false.
func IsolateBody(lines []string, startLine int) (Body, bool) {
	if startLine < 1 || startLine > len(lines) {
		return Body{}, false
	}

	var (
		depth     int
		open      = -1
		openCol   int
		inComment bool
	)
	for li := startLine - 1; li < len(lines); li++ {
		line := lines[li]
		for i := 0; i < len(line); i++ {
			c := line[i]
			if inComment {
				if c == '*' && i+1 < len(line) && line[i+1] == '/' {
					inComment = false
					i++
				}
				continue
			}
			switch {
			case c == '/' && i+1 < len(line) && line[i+1] == '/':
				i = len(line)
			case c == '/' && i+1 < len(line) && line[i+1] == '*':
				inComment = true
				i++
			case c == '"' || c == '\'':
				i = skipLiteral(line, i) - 1
			case c == ';' && open < 0:
				return Body{}, false
			case c == '{':
				if open < 0 {
					open, openCol = li, i
				}
				depth++
			case c == '}':
				if open < 0 {
					return Body{}, false
				}
				depth--
				if depth == 0 {
					body := make([]string, li-open+1)
					copy(body, lines[open:li+1])
					if li == open {
						body[0] = line[openCol : i+1]
					} else {
						body[0] = body[0][openCol:]
						body[len(body)-1] = line[:i+1]
					}
					return Body{Lines: body, FirstLine: open + 1}, true
				}
			}
		}
	}
	return Body{}, false
}

// BodyFromText wraps function body text that starts at firstLine.
func BodyFromText(text string, firstLine int) Body {
	text = strings.TrimSpace(text)
	if text == "" {
		return Body{}
	}
	if firstLine < 1 {
		firstLine = 1
	}
	return Body{Lines: strings.Split(text, "\n"), FirstLine: firstLine}
}

func skipLiteral(line string, start int) int {
	quote := line[start]
	for j := start + 1; j < len(line); j++ {
		switch line[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return len(line)
}
