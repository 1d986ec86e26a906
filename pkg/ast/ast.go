// Package ast defines the syntax-tree contract the analysis passes consume,
// and a tree-sitter implementation of it.
package ast

import (
	"context"
	"fmt"

	"github.com/l3aro/c-testforge/pkg/types"
)

// Kind is the closed set of node variants.
type Kind string

const (
	KindTranslationUnit Kind = "translation_unit"
	KindVariableDecl    Kind = "variable_decl"
	KindFunctionDecl    Kind = "function_decl"
	KindParameter       Kind = "parameter"
	KindEnumDecl        Kind = "enum_decl"
	KindEnumConstant    Kind = "enum_constant"
	KindStructDecl      Kind = "struct_decl"
	KindUnionDecl       Kind = "union_decl"
	KindTypedefDecl     Kind = "typedef_decl"
	KindLiteral         Kind = "literal"
	KindIdentifierRef   Kind = "identifier_ref"
	KindCallExpr        Kind = "call_expr"
)

// Location is a 1-based source position.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Storage holds the storage-class and qualifier flags of a declaration.
type Storage struct {
	Static   bool `json:"static,omitempty"`
	Extern   bool `json:"extern,omitempty"`
	Inline   bool `json:"inline,omitempty"`
	Const    bool `json:"const,omitempty"`
	Volatile bool `json:"volatile,omitempty"`
}

// Node is one entry of the tree. Spelling is the declared or referenced
// name, TypeSpelling the written type.
type Node struct {
	Kind         Kind     `json:"kind"`
	Spelling     string   `json:"spelling,omitempty"`
	TypeSpelling string   `json:"type,omitempty"`
	Location     Location `json:"location"`
	EndLine      int      `json:"end_line,omitempty"`
	Storage      Storage  `json:"storage,omitempty"`
	// Value is the initializer, enumerator value or literal text.
	Value string `json:"value,omitempty"`
	// Pointer, Array and ArraySize describe the declarator.
	Pointer   bool   `json:"pointer,omitempty"`
	Array     bool   `json:"array,omitempty"`
	ArraySize string `json:"array_size,omitempty"`
	// IsDefinition is set on function declarations that carry a body.
	IsDefinition bool    `json:"is_definition,omitempty"`
	Children     []*Node `json:"children,omitempty"`
}

// Visitor receives one call per node kind. A method returns false to skip
// the node's children.
type Visitor interface {
	VisitTranslationUnit(n *Node) bool
	VisitVariableDecl(n *Node) bool
	VisitFunctionDecl(n *Node) bool
	VisitParameter(n *Node) bool
	VisitEnumDecl(n *Node) bool
	VisitEnumConstant(n *Node) bool
	VisitStructDecl(n *Node) bool
	VisitUnionDecl(n *Node) bool
	VisitTypedefDecl(n *Node) bool
	VisitLiteral(n *Node) bool
	VisitIdentifierRef(n *Node) bool
	VisitCallExpr(n *Node) bool
}

// Walk visits root and its descendants in pre-order.
func Walk(root *Node, v Visitor) error {
	if root == nil {
		return nil
	}
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		descend, err := dispatch(n, v)
		if err != nil {
			return err
		}
		if !descend {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return nil
}

func dispatch(n *Node, v Visitor) (bool, error) {
	switch n.Kind {
	case KindTranslationUnit:
		return v.VisitTranslationUnit(n), nil
	case KindVariableDecl:
		return v.VisitVariableDecl(n), nil
	case KindFunctionDecl:
		return v.VisitFunctionDecl(n), nil
	case KindParameter:
		return v.VisitParameter(n), nil
	case KindEnumDecl:
		return v.VisitEnumDecl(n), nil
	case KindEnumConstant:
		return v.VisitEnumConstant(n), nil
	case KindStructDecl:
		return v.VisitStructDecl(n), nil
	case KindUnionDecl:
		return v.VisitUnionDecl(n), nil
	case KindTypedefDecl:
		return v.VisitTypedefDecl(n), nil
	case KindLiteral:
		return v.VisitLiteral(n), nil
	case KindIdentifierRef:
		return v.VisitIdentifierRef(n), nil
	case KindCallExpr:
		return v.VisitCallExpr(n), nil
	default:
		return false, fmt.Errorf("unknown node kind %q", n.Kind)
	}
}

// TranslationUnit is a parsed file.
type TranslationUnit struct {
	File        string             `json:"file"`
	Root        *Node              `json:"root"`
	Source      []byte             `json:"-"`
	Lines       []string           `json:"-"`
	Diagnostics []types.Diagnostic `json:"diagnostics,omitempty"`
}

// FrontEnd parses C source into a TranslationUnit. Syntax errors are
// reported as diagnostics; an error return means nothing could be parsed.
type FrontEnd interface {
	Parse(ctx context.Context, path string, src []byte) (*TranslationUnit, error)
}
