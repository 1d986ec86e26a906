package constraint

import "strings"

// sourceText is a file split into code and comment text per line. String
// and character literals are blanked in the code view, as are
// preprocessor lines.
type sourceText struct {
	code     []string
	comments []string
}

func splitSource(lines []string) *sourceText {
	st := &sourceText{
		code:     make([]string, len(lines)),
		comments: make([]string, len(lines)),
	}
	inBlock := false
	for i, line := range lines {
		if !inBlock && strings.HasPrefix(strings.TrimSpace(line), "#") {
			// Directives are still scanned for comments.
			if idx := strings.Index(line, "//"); idx >= 0 {
				st.comments[i] = line[idx:]
			}
			continue
		}
		var code, comment strings.Builder
		for j := 0; j < len(line); j++ {
			c := line[j]
			if inBlock {
				comment.WriteByte(c)
				if c == '*' && j+1 < len(line) && line[j+1] == '/' {
					comment.WriteByte('/')
					j++
					inBlock = false
				}
				continue
			}
			switch {
			case c == '/' && j+1 < len(line) && line[j+1] == '/':
				comment.WriteString(line[j:])
				j = len(line)
			case c == '/' && j+1 < len(line) && line[j+1] == '*':
				comment.WriteString("/*")
				j++
				inBlock = true
			case c == '"' || c == '\'':
				end := skipQuoted(line, j)
				if c == '\'' {
					// Character literals are values and stay visible.
					code.WriteString(line[j:end])
				} else {
					code.WriteString(`""`)
				}
				j = end - 1
			default:
				code.WriteByte(c)
			}
		}
		st.code[i] = code.String()
		st.comments[i] = comment.String()
	}
	return st
}

// skipQuoted returns the index just past the literal starting at line[start].
func skipQuoted(line string, start int) int {
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

// joined returns the code view as one string along with the starting
// offset of each line.
func (st *sourceText) joined() (string, []int) {
	offsets := make([]int, len(st.code))
	var b strings.Builder
	for i, line := range st.code {
		offsets[i] = b.Len()
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), offsets
}

// lineOf maps an offset in the joined text back to a 1-based line.
func lineOf(offsets []int, pos int) int {
	lo, hi := 0, len(offsets)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if offsets[mid] <= pos {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}
