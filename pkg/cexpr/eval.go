package cexpr

import (
	"fmt"
	"math"

	"github.com/l3aro/c-testforge/pkg/types"
)

// Env supplies variable values during evaluation.
type Env interface {
	Lookup(name string) (Value, bool)
	Element(array string, index int64) (Value, bool)
}

// MapEnv is an Env backed by maps.
type MapEnv struct {
	Vars   map[string]Value
	Arrays map[string][]Value
}

// NewMapEnv returns an empty environment.
func NewMapEnv() *MapEnv {
	return &MapEnv{Vars: make(map[string]Value), Arrays: make(map[string][]Value)}
}

// Lookup implements Env.
func (m *MapEnv) Lookup(name string) (Value, bool) {
	v, ok := m.Vars[name]
	return v, ok
}

// Element implements Env.
func (m *MapEnv) Element(array string, index int64) (Value, bool) {
	vals, ok := m.Arrays[array]
	if !ok || index < 0 || index >= int64(len(vals)) {
		return Value{}, false
	}
	return vals[index], true
}

// Set binds name to v.
func (m *MapEnv) Set(name string, v Value) {
	m.Vars[name] = v
}

// Clone returns a copy that can be modified independently.
func (m *MapEnv) Clone() *MapEnv {
	c := NewMapEnv()
	for k, v := range m.Vars {
		c.Vars[k] = v
	}
	for k, v := range m.Arrays {
		c.Arrays[k] = append([]Value(nil), v...)
	}
	return c
}

// Eval evaluates e over env.
func Eval(e Expr, env Env) (Value, error) {
	switch n := e.(type) {
	case *Literal:
		return n.Value, nil

	case *Ident:
		if v, ok := env.Lookup(n.Name); ok {
			return v, nil
		}
		return Value{}, fmt.Errorf("%w: %s", ErrUnbound, n.Name)

	case *Index:
		idx, err := Eval(n.Index, env)
		if err != nil {
			return Value{}, err
		}
		if v, ok := env.Element(n.Array, idx.AsInt()); ok {
			return v, nil
		}
		return Value{}, fmt.Errorf("%w: %s[%d]", ErrUnbound, n.Array, idx.AsInt())

	case *Unary:
		x, err := Eval(n.X, env)
		if err != nil {
			return Value{}, err
		}
		switch n.Op {
		case "!":
			return Bool(!x.Truthy()), nil
		case "-":
			if x.Float {
				return Float(-x.F), nil
			}
			return Int(-x.I), nil
		case "+":
			return x, nil
		case "~":
			return Int(^x.AsInt()), nil
		}
		return Value{}, fmt.Errorf("%w: unary %s", ErrUnsupported, n.Op)

	case *Binary:
		return evalBinary(n, env)

	case *Conditional:
		cond, err := Eval(n.Cond, env)
		if err != nil {
			return Value{}, err
		}
		if cond.Truthy() {
			return Eval(n.Then, env)
		}
		return Eval(n.Else, env)

	case *Cast:
		x, err := Eval(n.X, env)
		if err != nil {
			return Value{}, err
		}
		return Convert(x, n.TypeName), nil

	case *SizeOf:
		if size := types.TypeSize(n.TypeName); size > 0 {
			return Int(int64(size)), nil
		}
		return Value{}, fmt.Errorf("%w: sizeof(%s)", ErrUnsupported, n.TypeName)

	case *Call:
		return Value{}, fmt.Errorf("%w: call to %s", ErrUnsupported, n.Name)
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupported, e)
}

// EvalBool evaluates e and reports whether the result is non-zero.
func EvalBool(e Expr, env Env) (bool, error) {
	v, err := Eval(e, env)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

// EvalString parses and evaluates src in one step.
func EvalString(src string, env Env) (Value, error) {
	e, err := Parse(src)
	if err != nil {
		return Value{}, err
	}
	return Eval(e, env)
}

func evalBinary(n *Binary, env Env) (Value, error) {
	l, err := Eval(n.L, env)
	if err != nil {
		return Value{}, err
	}
	switch n.Op {
	case "&&":
		if !l.Truthy() {
			return Int(0), nil
		}
		r, err := Eval(n.R, env)
		if err != nil {
			return Value{}, err
		}
		return Bool(r.Truthy()), nil
	case "||":
		if l.Truthy() {
			return Int(1), nil
		}
		r, err := Eval(n.R, env)
		if err != nil {
			return Value{}, err
		}
		return Bool(r.Truthy()), nil
	}

	r, err := Eval(n.R, env)
	if err != nil {
		return Value{}, err
	}

	switch n.Op {
	case "<":
		return Bool(Compare(l, r) < 0), nil
	case "<=":
		return Bool(Compare(l, r) <= 0), nil
	case ">":
		return Bool(Compare(l, r) > 0), nil
	case ">=":
		return Bool(Compare(l, r) >= 0), nil
	case "==":
		return Bool(Compare(l, r) == 0), nil
	case "!=":
		return Bool(Compare(l, r) != 0), nil
	}

	if l.Float || r.Float {
		x, y := l.AsFloat(), r.AsFloat()
		switch n.Op {
		case "+":
			return Float(x + y), nil
		case "-":
			return Float(x - y), nil
		case "*":
			return Float(x * y), nil
		case "/":
			return Float(x / y), nil
		}
		return Value{}, fmt.Errorf("%w: %s on floating operands", ErrUnsupported, n.Op)
	}

	x, y := l.I, r.I
	switch n.Op {
	case "+":
		return Int(x + y), nil
	case "-":
		return Int(x - y), nil
	case "*":
		return Int(x * y), nil
	case "/":
		if y == 0 {
			return Value{}, ErrDivideByZero
		}
		if x == math.MinInt64 && y == -1 {
			return Int(x), nil
		}
		return Int(x / y), nil
	case "%":
		if y == 0 {
			return Value{}, ErrDivideByZero
		}
		if y == -1 {
			return Int(0), nil
		}
		return Int(x % y), nil
	case "&":
		return Int(x & y), nil
	case "|":
		return Int(x | y), nil
	case "^":
		return Int(x ^ y), nil
	case "<<":
		return Int(x << uint64(y&63)), nil
	case ">>":
		return Int(x >> uint64(y&63)), nil
	}
	return Value{}, fmt.Errorf("%w: binary %s", ErrUnsupported, n.Op)
}

// Convert applies a C conversion to typeName: integers are truncated to
// the type's width, booleans become 0 or 1, and floating types keep
// fractional values. Unknown types leave v unchanged.
func Convert(v Value, typeName string) Value {
	s, ok := types.LookupScalar(typeName)
	if !ok {
		return v
	}
	switch {
	case s.Bool:
		return Bool(v.Truthy())
	case s.Float:
		return Float(v.AsFloat())
	}
	i := v.AsInt()
	if s.Size >= 8 {
		return Int(i)
	}
	bits := uint(s.Size * 8)
	mask := int64(1)<<bits - 1
	i &= mask
	if s.Signed && i&(int64(1)<<(bits-1)) != 0 {
		i -= int64(1) << bits
	}
	return Int(i)
}
