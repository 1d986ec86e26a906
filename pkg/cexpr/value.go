// Package cexpr parses C expressions with tree-sitter and evaluates them
// over a variable environment. Integer arithmetic is 64-bit signed; a
// floating operand promotes the operation to double.
package cexpr

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrMalformedExpression is returned when the text is not a C expression.
	ErrMalformedExpression = errors.New("malformed expression")
	// ErrUnbound is returned when an identifier has no value.
	ErrUnbound = errors.New("unbound identifier")
	// ErrUnsupported is returned for constructs with side effects or calls.
	ErrUnsupported = errors.New("unsupported expression")
	// ErrDivideByZero is returned for integer division or modulo by zero.
	ErrDivideByZero = errors.New("division by zero")
)

// Value is an integer or a double.
type Value struct {
	I     int64
	F     float64
	Float bool
}

// Int returns an integer value.
func Int(v int64) Value { return Value{I: v} }

// Float returns a floating value.
func Float(f float64) Value { return Value{F: f, Float: true} }

// Bool returns 1 or 0.
func Bool(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

// Truthy reports whether v is non-zero.
func (v Value) Truthy() bool {
	if v.Float {
		return v.F != 0
	}
	return v.I != 0
}

// AsFloat returns v as a double.
func (v Value) AsFloat() float64 {
	if v.Float {
		return v.F
	}
	return float64(v.I)
}

// AsInt returns v truncated to an integer.
func (v Value) AsInt() int64 {
	if v.Float {
		if math.IsNaN(v.F) {
			return 0
		}
		return int64(v.F)
	}
	return v.I
}

// String renders v as a C literal.
func (v Value) String() string {
	if v.Float {
		s := strconv.FormatFloat(v.F, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s
	}
	return strconv.FormatInt(v.I, 10)
}

// Compare orders a and b, returning -1, 0 or 1.
func Compare(a, b Value) int {
	if a.Float || b.Float {
		x, y := a.AsFloat(), b.AsFloat()
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	switch {
	case a.I < b.I:
		return -1
	case a.I > b.I:
		return 1
	}
	return 0
}

// ParseValue parses a C literal: an integer in any base with suffixes, a
// floating literal, a character literal, true, false or NULL. A leading
// sign is accepted.
func ParseValue(s string) (Value, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "true":
		return Int(1), nil
	case "false", "NULL", "nullptr":
		return Int(0), nil
	case "":
		return Value{}, fmt.Errorf("%w: empty literal", ErrMalformedExpression)
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = strings.TrimSpace(s[1:])
	case '+':
		s = strings.TrimSpace(s[1:])
	}

	v, err := parseUnsigned(s)
	if err != nil {
		return Value{}, err
	}
	if neg {
		if v.Float {
			v.F = -v.F
		} else {
			v.I = -v.I
		}
	}
	return v, nil
}

func parseUnsigned(s string) (Value, error) {
	if strings.HasPrefix(s, "'") {
		r, err := parseChar(s)
		return Int(r), err
	}
	lower := strings.ToLower(s)
	isHex := strings.HasPrefix(lower, "0x")
	if !isHex && (strings.ContainsAny(lower, ".e") || (strings.HasSuffix(lower, "f") && lower != "f")) {
		f, err := strconv.ParseFloat(strings.TrimRight(lower, "fl"), 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q", ErrMalformedExpression, s)
		}
		return Float(f), nil
	}

	t := strings.TrimRight(lower, "ul")
	base := 10
	switch {
	case isHex:
		base, t = 16, t[2:]
	case strings.HasPrefix(t, "0b"):
		base, t = 2, t[2:]
	case len(t) > 1 && t[0] == '0':
		base, t = 8, t[1:]
	}
	if n, err := strconv.ParseInt(t, base, 64); err == nil {
		return Int(n), nil
	}
	u, err := strconv.ParseUint(t, base, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q", ErrMalformedExpression, s)
	}
	return Int(int64(u)), nil
}

func parseChar(s string) (int64, error) {
	if len(s) < 3 || s[len(s)-1] != '\'' {
		return 0, fmt.Errorf("%w: %q", ErrMalformedExpression, s)
	}
	body := s[1 : len(s)-1]
	if body[0] != '\\' {
		return int64(body[0]), nil
	}
	if len(body) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedExpression, s)
	}
	switch body[1] {
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case 'a':
		return 7, nil
	case 'b':
		return 8, nil
	case 'f':
		return 12, nil
	case 'v':
		return 11, nil
	case '\\', '\'', '"', '?':
		return int64(body[1]), nil
	case 'x':
		n, err := strconv.ParseInt(body[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedExpression, s)
		}
		return n, nil
	default:
		n, err := strconv.ParseInt(body[1:], 8, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedExpression, s)
		}
		return n, nil
	}
}
