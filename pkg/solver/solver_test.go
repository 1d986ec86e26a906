package solver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/c-testforge/pkg/cexpr"
)

func intVar(name string) Variable {
	return Variable{Name: name, Type: "int", Domain: TypeDomain("int")}
}

func TestTypeDomain(t *testing.T) {
	assert.Equal(t, Domain{Kind: DomainInteger, Min: "0", Max: "255"}, TypeDomain("unsigned char"))
	assert.Equal(t, Domain{Kind: DomainInteger, Min: "-128", Max: "127"}, TypeDomain("int8_t"))
	assert.Equal(t, DomainBoolean, TypeDomain("_Bool").Kind)
	assert.Equal(t, DomainReal, TypeDomain("double").Kind)
	assert.Equal(t, TypeDomain("int"), TypeDomain("struct opaque"))
}

func TestBoundedSolverRoundTrip(t *testing.T) {
	s := NewBoundedSolver(BoundedOptions{})
	q := Query{Variables: []Variable{intVar("x")}, Hard: []string{"x > 10"}}

	res := s.Solve(context.Background(), q)
	require.Equal(t, StatusSatisfiable, res.Status)
	assert.Equal(t, "11", res.Assignment.Values["x"])

	// The witness satisfies the clause it was produced for.
	env := cexpr.NewMapEnv()
	v, err := cexpr.ParseValue(res.Assignment.Values["x"])
	require.NoError(t, err)
	env.Set("x", v)
	ok, err := cexpr.EvalBool(cexpr.MustParse(q.Hard[0]), env)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBoundedSolverStatuses(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  Status
		err   error
	}{
		{
			name:  "empty interval",
			query: Query{Variables: []Variable{intVar("x")}, Hard: []string{"x > 10", "x < 5"}},
			want:  StatusUnsatisfiable,
		},
		{
			name:  "outside the type range",
			query: Query{Variables: []Variable{{Name: "c", Domain: TypeDomain("uint8_t")}}, Hard: []string{"c > 255"}},
			want:  StatusUnsatisfiable,
		},
		{
			name:  "non-interval clause",
			query: Query{Variables: []Variable{intVar("x")}, Hard: []string{"x * x == 2"}},
			want:  StatusError,
			err:   ErrIncomplete,
		},
		{
			name:  "malformed clause",
			query: Query{Variables: []Variable{intVar("x")}, Hard: []string{"x >"}},
			want:  StatusError,
			err:   cexpr.ErrMalformedExpression,
		},
		{
			name:  "unknown identifier",
			query: Query{Variables: []Variable{intVar("x")}, Hard: []string{"z > 1"}},
			want:  StatusError,
			err:   ErrUnbound,
		},
		{
			name:  "two variables",
			query: Query{Variables: []Variable{intVar("x"), intVar("y")}, Hard: []string{"x > y", "y > 3"}},
			want:  StatusSatisfiable,
		},
	}
	s := NewBoundedSolver(BoundedOptions{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Solve(context.Background(), tt.query)
			assert.Equal(t, tt.want, res.Status)
			if tt.err != nil {
				assert.ErrorIs(t, res.Err, tt.err)
			}
		})
	}
}

func TestBoundedSolverPrefersSoftClauses(t *testing.T) {
	s := NewBoundedSolver(BoundedOptions{})
	q := Query{
		Variables: []Variable{intVar("x")},
		Hard:      []string{"x >= 0 && x <= 100"},
		Soft:      []string{"x == 42"},
	}
	res := s.Solve(context.Background(), q)
	require.Equal(t, StatusSatisfiable, res.Status)
	assert.Equal(t, "42", res.Assignment.Values["x"])

	// An unsatisfiable soft clause does not block the hard ones.
	q.Soft = []string{"x > 1000"}
	res = s.Solve(context.Background(), q)
	require.Equal(t, StatusSatisfiable, res.Status)
	assert.Equal(t, "0", res.Assignment.Values["x"])
}

func TestBoundedSolverFindAll(t *testing.T) {
	s := NewBoundedSolver(BoundedOptions{})
	q := Query{Variables: []Variable{intVar("x")}, Hard: []string{"x >= 1 && x <= 3"}, Mode: FindAll}
	res := s.Solve(context.Background(), q)
	require.Equal(t, StatusSatisfiable, res.Status)

	var got []string
	for _, a := range res.Solutions {
		got = append(got, a.Values["x"])
	}
	assert.Equal(t, []string{"1", "2", "3"}, got)

	q.MaxSolutions = 2
	assert.Len(t, s.Solve(context.Background(), q).Solutions, 2)
}

func TestBoundedSolverEnumerations(t *testing.T) {
	s := NewBoundedSolver(BoundedOptions{})
	q := Query{
		Variables: []Variable{{Name: "c", Domain: Domain{Kind: DomainEnumeration, Values: []string{"RED", "GREEN", "BLUE"}}}},
		Hard:      []string{"c != RED && c > GREEN"},
		Constants: map[string]string{"RED": "0", "GREEN": "1", "BLUE": "2"},
	}
	res := s.Solve(context.Background(), q)
	require.Equal(t, StatusSatisfiable, res.Status)
	assert.Equal(t, "BLUE", res.Assignment.Values["c"])

	q.Hard = []string{"c > BLUE"}
	assert.Equal(t, StatusUnsatisfiable, s.Solve(context.Background(), q).Status)
}

func TestBoundedSolverArrays(t *testing.T) {
	s := NewBoundedSolver(BoundedOptions{})
	q := Query{
		Variables: []Variable{{Name: "buf", Domain: TypeDomain("uint8_t"), ArraySize: 2}},
		Hard:      []string{"buf[0] > 7", "buf[1] == buf[0]"},
	}
	res := s.Solve(context.Background(), q)
	require.Equal(t, StatusSatisfiable, res.Status)
	assert.Equal(t, []string{"8", "8"}, res.Assignment.Arrays["buf"])
}

func TestBoundedSolverRealDomain(t *testing.T) {
	s := NewBoundedSolver(BoundedOptions{})
	q := Query{Variables: []Variable{{Name: "f", Domain: TypeDomain("double")}}, Hard: []string{"f > 1.5"}}
	res := s.Solve(context.Background(), q)
	require.Equal(t, StatusSatisfiable, res.Status)
	assert.Equal(t, "2.0", res.Assignment.Values["f"])

	// Real searches never prove unsatisfiability.
	q.Hard = []string{"f > 1.5", "f < 1.6"}
	res = s.Solve(context.Background(), q)
	assert.Equal(t, StatusError, res.Status)
	assert.ErrorIs(t, res.Err, ErrIncomplete)
}

func TestBoundedSolverLimits(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	s := NewBoundedSolver(BoundedOptions{})
	q := Query{Variables: []Variable{intVar("x")}, Hard: []string{"x > 10"}}
	assert.Equal(t, StatusTimeout, s.Solve(ctx, q).Status)

	capped := NewBoundedSolver(BoundedOptions{MaxCombinations: 3})
	q = Query{Variables: []Variable{intVar("x"), intVar("y")}, Hard: []string{"x == 100", "y == 200"}}
	res := capped.Solve(context.Background(), q)
	assert.Equal(t, StatusError, res.Status)
	assert.ErrorIs(t, res.Err, ErrIncomplete)
}
