package cexpr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want Value
	}{
		{"42", Int(42)},
		{"-7", Int(-7)},
		{"0x1F", Int(31)},
		{"0X1fu", Int(31)},
		{"017", Int(15)},
		{"0b101", Int(5)},
		{"100UL", Int(100)},
		{"'A'", Int(65)},
		{`'\n'`, Int(10)},
		{`'\x41'`, Int(65)},
		{`'\0'`, Int(0)},
		{"true", Int(1)},
		{"NULL", Int(0)},
		{"1.5", Float(1.5)},
		{"2.0f", Float(2)},
		{"1e3", Float(1000)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseValue("abc")
	assert.True(t, errors.Is(err, ErrMalformedExpression))
}

func TestEvalPrecedence(t *testing.T) {
	env := NewMapEnv()
	env.Set("x", Int(5))
	env.Set("y", Int(-3))
	env.Set("f", Float(0.5))
	env.Arrays["arr"] = []Value{Int(10), Int(20), Int(30)}

	tests := []struct {
		expr string
		want Value
	}{
		{"1 + 2 * 3", Int(7)},
		{"(1 + 2) * 3", Int(9)},
		{"x > 3 && y < 0", Int(1)},
		{"x > 10 || y > 0", Int(0)},
		{"!x", Int(0)},
		{"-x + 1", Int(-4)},
		{"~0", Int(-1)},
		{"x % 3", Int(2)},
		{"1 << 4 | 1", Int(17)},
		{"x > 3 ? 100 : 200", Int(100)},
		{"arr[1] + arr[x - 3]", Int(50)},
		{"(unsigned char)300", Int(44)},
		{"(signed char)200", Int(-56)},
		{"(_Bool)7", Int(1)},
		{"f * 4", Float(2)},
		{"f < 1", Int(1)},
		{"sizeof(int)", Int(4)},
		{"x == 5 && (y == -3)", Int(1)},
		{"0 && undefined_var", Int(0)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := EvalString(tt.expr, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalErrors(t *testing.T) {
	env := NewMapEnv()
	env.Set("x", Int(1))

	_, err := EvalString("z + 1", env)
	assert.True(t, errors.Is(err, ErrUnbound))

	_, err = EvalString("x / 0", env)
	assert.True(t, errors.Is(err, ErrDivideByZero))

	_, err = EvalString("check(x)", env)
	assert.True(t, errors.Is(err, ErrUnsupported))

	_, err = Parse("x = 1")
	assert.True(t, errors.Is(err, ErrUnsupported))

	_, err = Parse("x >")
	assert.True(t, errors.Is(err, ErrMalformedExpression))

	_, err = Parse("   ")
	assert.True(t, errors.Is(err, ErrMalformedExpression))
}

func TestIdentifiersAndLiterals(t *testing.T) {
	e := MustParse("x > 10 && y <= 2 && buf[i] != 0 && x < 20")
	assert.Equal(t, []string{"x", "y", "buf", "i"}, Identifiers(e))
	assert.Equal(t, []Value{Int(10), Int(2), Int(0), Int(20)}, Literals(e))

	assert.Equal(t, []string{"p->count"}, Identifiers(MustParse("p->count > 0")))
}

func TestIsIntervalForm(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"x > 10", true},
		{"(x >= 0 && x <= 255)", true},
		{"x == 1 || x == 3", true},
		{"!(x < -5)", true},
		{"10 < x", true},
		{"x > y", false},
		{"x + 1 > 10", false},
		{"x % 2 == 0", false},
		{"f(x) > 0", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, IsIntervalForm(MustParse(tt.expr)))
		})
	}
}

func TestIsIntervalFormOver(t *testing.T) {
	isVar := func(name string) bool { return name == "x" }
	assert.True(t, IsIntervalFormOver(MustParse("x > MAX && x < LIMIT"), isVar))
	assert.False(t, IsIntervalForm(MustParse("x > MAX")))
	assert.False(t, IsIntervalFormOver(MustParse("x > MAX + 1"), isVar))
}

func TestConvert(t *testing.T) {
	assert.Equal(t, Int(255), Convert(Int(-1), "uint8_t"))
	assert.Equal(t, Int(-1), Convert(Int(65535), "int16_t"))
	assert.Equal(t, Int(3), Convert(Float(3.9), "int"))
	assert.Equal(t, Float(3), Convert(Int(3), "double"))
	assert.Equal(t, Int(9), Convert(Int(9), "struct foo"))
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "-12", Int(-12).String())
	assert.Equal(t, "2.5", Float(2.5).String())
	assert.Equal(t, "3.0", Float(3).String())
}
