// Package solver defines the constraint-solver contract used by test
// synthesis, and BoundedSolver, a candidate-enumeration implementation.
package solver

import (
	"context"
	"errors"
	"time"

	"github.com/l3aro/c-testforge/pkg/types"
)

var (
	// ErrIncomplete is returned when the search ran out of candidates
	// without proving that no solution exists.
	ErrIncomplete = errors.New("search incomplete")
	// ErrUnbound is returned when a clause names something that is neither
	// a query variable nor a constant.
	ErrUnbound = errors.New("unbound identifier")
)

// DomainKind is the value space of a variable.
type DomainKind string

const (
	DomainInteger     DomainKind = "integer"
	DomainReal        DomainKind = "real"
	DomainBoolean     DomainKind = "boolean"
	DomainEnumeration DomainKind = "enumeration"
)

// Domain bounds the values a variable may take. Min and Max apply to
// integer and real domains, Values to enumerations.
type Domain struct {
	Kind   DomainKind `json:"kind" yaml:"kind"`
	Min    string     `json:"min,omitempty" yaml:"min,omitempty"`
	Max    string     `json:"max,omitempty" yaml:"max,omitempty"`
	Values []string   `json:"values,omitempty" yaml:"values,omitempty"`
}

// TypeDomain returns the domain of a written C type. Unknown types are
// treated as int.
func TypeDomain(typeName string) Domain {
	s, ok := types.LookupScalar(typeName)
	if !ok {
		s, _ = types.LookupScalar("int")
	}
	switch {
	case s.Bool:
		return Domain{Kind: DomainBoolean}
	case s.Float:
		return Domain{Kind: DomainReal, Min: s.Min, Max: s.Max}
	}
	return Domain{Kind: DomainInteger, Min: s.Min, Max: s.Max}
}

// Variable is an unknown of a query. A positive ArraySize makes it a
// fixed-size array whose elements share the domain.
type Variable struct {
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type,omitempty" yaml:"type,omitempty"`
	Domain    Domain `json:"domain" yaml:"domain"`
	ArraySize int    `json:"array_size,omitempty" yaml:"array_size,omitempty"`
}

// Mode selects how many solutions a query asks for.
type Mode string

const (
	FindOne Mode = "find_one"
	FindAll Mode = "find_all"
)

// Query is a satisfiability problem over C boolean expressions.
type Query struct {
	Variables []Variable `json:"variables" yaml:"variables"`
	// Hard clauses must all hold.
	Hard []string `json:"hard" yaml:"hard"`
	// Soft clauses are satisfied where possible.
	Soft []string `json:"soft,omitempty" yaml:"soft,omitempty"`
	// Constants are named values the clauses may use, such as enum
	// constants.
	Constants    map[string]string `json:"constants,omitempty" yaml:"constants,omitempty"`
	Timeout      time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Mode         Mode              `json:"mode,omitempty" yaml:"mode,omitempty"`
	MaxSolutions int               `json:"max_solutions,omitempty" yaml:"max_solutions,omitempty"`
}

// Variable returns the query variable named name, or nil.
func (q *Query) Variable(name string) *Variable {
	for i := range q.Variables {
		if q.Variables[i].Name == name {
			return &q.Variables[i]
		}
	}
	return nil
}

// WithoutSoft returns a copy of q with no soft clauses.
func (q Query) WithoutSoft() Query {
	q.Soft = nil
	return q
}

// Status is the outcome of a query.
type Status string

const (
	StatusSatisfiable   Status = "satisfiable"
	StatusUnsatisfiable Status = "unsatisfiable"
	StatusTimeout       Status = "timeout"
	StatusError         Status = "error"
)

// Assignment binds every query variable. Array variables are bound in
// Arrays, scalars in Values.
type Assignment struct {
	Values map[string]string   `json:"values" yaml:"values"`
	Arrays map[string][]string `json:"arrays,omitempty" yaml:"arrays,omitempty"`
}

// Result is the answer to a query. Assignment is set when Status is
// satisfiable; Solutions holds every solution found in FindAll mode.
type Result struct {
	Status     Status       `json:"status" yaml:"status"`
	Assignment Assignment   `json:"assignment,omitempty" yaml:"assignment,omitempty"`
	Solutions  []Assignment `json:"solutions,omitempty" yaml:"solutions,omitempty"`
	Err        error        `json:"-" yaml:"-"`
}

// Solver answers queries. Implementations honour ctx and q.Timeout and
// report the exceeded deadline as StatusTimeout.
type Solver interface {
	Solve(ctx context.Context, q Query) Result
}
