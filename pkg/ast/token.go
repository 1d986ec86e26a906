package ast

import "strings"

// TokenKind classifies a lexical token.
type TokenKind string

const (
	TokenIdentifier TokenKind = "identifier"
	TokenKeyword    TokenKind = "keyword"
	TokenNumber     TokenKind = "number"
	TokenString     TokenKind = "string"
	TokenChar       TokenKind = "char"
	TokenPunct      TokenKind = "punct"
	TokenDirective  TokenKind = "directive"
)

// Token is a lexical token with its 1-based position.
type Token struct {
	Kind   TokenKind `json:"kind"`
	Text   string    `json:"text"`
	Line   int       `json:"line"`
	Column int       `json:"column"`
}

// Is reports whether t is a keyword or punctuator spelled text.
func (t Token) Is(text string) bool {
	return (t.Kind == TokenKeyword || t.Kind == TokenPunct) && t.Text == text
}

var keywords = map[string]bool{
	"auto": true, "break": true, "case": true, "char": true, "const": true, "continue": true,
	"default": true, "do": true, "double": true, "else": true, "enum": true, "extern": true,
	"float": true, "for": true, "goto": true, "if": true, "inline": true, "int": true,
	"long": true, "register": true, "restrict": true, "return": true, "short": true,
	"signed": true, "sizeof": true, "static": true, "struct": true, "switch": true,
	"typedef": true, "union": true, "unsigned": true, "void": true, "volatile": true,
	"while": true, "_Bool": true,
}

// three- and two-character punctuators, longest first
var punctuators = []string{
	"<<=", ">>=", "...",
	"->", "++", "--", "<<", ">>", "<=", ">=", "==", "!=", "&&", "||",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "##",
}

// Lex splits lines into tokens. firstLine is the line number of lines[0].
// Comments are dropped, including block comments that span lines. A
// preprocessor line becomes a single directive token.
func Lex(lines []string, firstLine int) []Token {
	var toks []Token
	inComment := false

	for li, line := range lines {
		lineNo := firstLine + li
		i := 0
		if !inComment {
			if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "#") {
				toks = append(toks, Token{Kind: TokenDirective, Text: trimmed, Line: lineNo, Column: strings.Index(line, "#") + 1})
				continue
			}
		}
		for i < len(line) {
			if inComment {
				end := strings.Index(line[i:], "*/")
				if end < 0 {
					i = len(line)
					break
				}
				i += end + 2
				inComment = false
				continue
			}

			c := line[i]
			col := i + 1
			switch {
			case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
				i++
			case strings.HasPrefix(line[i:], "//"):
				i = len(line)
			case strings.HasPrefix(line[i:], "/*"):
				inComment = true
				i += 2
			case c == '"' || c == '\'':
				j := i + 1
				for j < len(line) && line[j] != c {
					if line[j] == '\\' {
						j++
					}
					j++
				}
				if j < len(line) {
					j++
				}
				kind := TokenString
				if c == '\'' {
					kind = TokenChar
				}
				toks = append(toks, Token{Kind: kind, Text: line[i:min(j, len(line))], Line: lineNo, Column: col})
				i = min(j, len(line))
			case isIdentByte(c) && !isDigit(c):
				j := i
				for j < len(line) && isIdentByte(line[j]) {
					j++
				}
				word := line[i:j]
				kind := TokenIdentifier
				if keywords[word] {
					kind = TokenKeyword
				}
				toks = append(toks, Token{Kind: kind, Text: word, Line: lineNo, Column: col})
				i = j
			case isDigit(c) || (c == '.' && i+1 < len(line) && isDigit(line[i+1])):
				j := i
				for j < len(line) && (isIdentByte(line[j]) || line[j] == '.' ||
					((line[j] == '+' || line[j] == '-') && (line[j-1] == 'e' || line[j-1] == 'E') && !strings.HasPrefix(strings.ToLower(line[i:j]), "0x"))) {
					j++
				}
				toks = append(toks, Token{Kind: TokenNumber, Text: line[i:j], Line: lineNo, Column: col})
				i = j
			default:
				text := string(c)
				for _, p := range punctuators {
					if strings.HasPrefix(line[i:], p) {
						text = p
						break
					}
				}
				toks = append(toks, Token{Kind: TokenPunct, Text: text, Line: lineNo, Column: col})
				i += len(text)
			}
		}
	}
	return toks
}

func isIdentByte(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
