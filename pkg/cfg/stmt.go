package cfg

import (
	"context"
	"errors"
)

// StmtKind classifies a statement tree node.
type StmtKind string

const (
	StmtBlock    StmtKind = "block"
	StmtSimple   StmtKind = "simple"
	StmtIf       StmtKind = "if"
	StmtWhile    StmtKind = "while"
	StmtFor      StmtKind = "for"
	StmtDoWhile  StmtKind = "do_while"
	StmtSwitch   StmtKind = "switch"
	StmtCase     StmtKind = "case" // case or default label
	StmtReturn   StmtKind = "return"
	StmtBreak    StmtKind = "break"
	StmtContinue StmtKind = "continue"
)

// Stmt is a statement of a function body. Builders produce the tree and
// the graph constructor turns it into a ControlFlowGraph.
type Stmt struct {
	Kind StmtKind
	Line int
	// EndLine is the last line of the statement, or of the condition for
	// do...while.
	EndLine int
	// Text is the statement source for simple, case and return statements.
	Text string
	// Cond is the controlling expression of if, loops and switch.
	Cond string
	// CondLine is where Cond appears, which for do...while is the trailing
	// while line.
	CondLine int
	// Init and Update are the outer clauses of a for loop.
	Init   string
	Update string

	Then *Stmt // if
	Else *Stmt // if, optional
	Body *Stmt // loops and switch

	Children []*Stmt // block
}

// ErrMalformedBody is returned when a builder cannot parse a body.
var ErrMalformedBody = errors.New("malformed function body")

// Builder produces the statement tree of a function body.
type Builder interface {
	Parse(ctx context.Context, body Body) (*Stmt, error)
}

// Build parses body with b and constructs its control-flow graph.
func Build(ctx context.Context, b Builder, fn string, body Body) (*ControlFlowGraph, error) {
	root, err := b.Parse(ctx, body)
	if err != nil {
		return nil, err
	}
	return construct(fn, root, body.FirstLine, body.LastLine()), nil
}
