package ast

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/l3aro/c-testforge/pkg/types"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// parserPool is a pool of reusable tree-sitter parsers for C.
var parserPool = sync.Pool{
	New: func() interface{} {
		parser := sitter.NewParser()
		parser.SetLanguage(c.GetLanguage())
		return parser
	},
}

// ParseTree parses src with a pooled C parser. The caller closes the tree.
func ParseTree(ctx context.Context, src []byte) (*sitter.Tree, error) {
	parser := parserPool.Get().(*sitter.Parser)
	defer parserPool.Put(parser)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, fmt.Errorf("parser returned no tree")
	}
	return tree, nil
}

// NodeText returns the source text covered by node.
func NodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if start >= uint32(len(content)) || end > uint32(len(content)) || start > end {
		return ""
	}
	return string(content[start:end])
}

// SplitLines splits src into lines without their terminators.
func SplitLines(src []byte) []string {
	lines := strings.Split(string(src), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// TreeSitterFrontEnd implements FrontEnd with the tree-sitter C grammar.
// Declarations inside #if blocks are visited regardless of the condition;
// the preprocessor resolver decides what is compiled.
type TreeSitterFrontEnd struct{}

// NewTreeSitterFrontEnd returns a front-end backed by tree-sitter.
func NewTreeSitterFrontEnd() *TreeSitterFrontEnd {
	return &TreeSitterFrontEnd{}
}

// Parse implements FrontEnd.
func (f *TreeSitterFrontEnd) Parse(ctx context.Context, path string, src []byte) (*TranslationUnit, error) {
	tree, err := ParseTree(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	b := &treeBuilder{file: path, content: src}

	tu := &TranslationUnit{
		File:   path,
		Source: src,
		Lines:  SplitLines(src),
		Root: &Node{
			Kind:     KindTranslationUnit,
			Spelling: path,
			Location: Location{File: path, Line: 1, Column: 1},
			EndLine:  int(root.EndPoint().Row) + 1,
		},
	}
	b.collect(root, tu.Root)
	tu.Diagnostics = b.syntaxDiagnostics(root)
	return tu, nil
}

type treeBuilder struct {
	file    string
	content []byte
}

func (b *treeBuilder) text(n *sitter.Node) string {
	return NodeText(n, b.content)
}

func (b *treeBuilder) loc(n *sitter.Node) Location {
	p := n.StartPoint()
	return Location{File: b.file, Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

func endLine(n *sitter.Node) int {
	return int(n.EndPoint().Row) + 1
}

// collect converts the top-level items under n, descending into
// preprocessor blocks.
func (b *treeBuilder) collect(n *sitter.Node, parent *Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "function_definition":
			if fn := b.function(child); fn != nil {
				parent.Children = append(parent.Children, fn)
			}
		case "declaration":
			parent.Children = append(parent.Children, b.declaration(child)...)
		case "type_definition":
			parent.Children = append(parent.Children, b.typedef(child)...)
		case "struct_specifier", "union_specifier", "enum_specifier":
			parent.Children = append(parent.Children, b.typeSpecifier(child, "")...)
		case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif", "preproc_elifdef",
			"declaration_list", "linkage_specification", "ERROR":
			b.collect(child, parent)
		}
	}
}

func (b *treeBuilder) storage(n *sitter.Node) Storage {
	var s Storage
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "storage_class_specifier", "type_qualifier":
			switch b.text(child) {
			case "static":
				s.Static = true
			case "extern":
				s.Extern = true
			case "inline", "__inline", "__inline__":
				s.Inline = true
			case "const":
				s.Const = true
			case "volatile":
				s.Volatile = true
			}
		}
	}
	return s
}

// declarator is the unwrapped form of a declarator chain.
type declarator struct {
	name        string
	node        *sitter.Node
	pointer     bool
	array       bool
	arraySize   string
	value       *sitter.Node
	function    *sitter.Node
	funcPointer bool
}

func isDeclarator(nodeType string) bool {
	switch nodeType {
	case "identifier", "init_declarator", "pointer_declarator", "array_declarator",
		"function_declarator", "parenthesized_declarator":
		return true
	}
	return false
}

func (b *treeBuilder) unwrap(n *sitter.Node) declarator {
	d := declarator{node: n}
	for n != nil {
		switch n.Type() {
		case "init_declarator":
			d.value = n.ChildByFieldName("value")
			n = n.ChildByFieldName("declarator")
		case "pointer_declarator", "abstract_pointer_declarator":
			d.pointer = true
			if d.function != nil {
				d.funcPointer = true
			}
			n = n.ChildByFieldName("declarator")
		case "array_declarator", "abstract_array_declarator":
			d.array = true
			if size := n.ChildByFieldName("size"); size != nil && d.arraySize == "" {
				d.arraySize = b.text(size)
			}
			n = n.ChildByFieldName("declarator")
		case "function_declarator", "abstract_function_declarator":
			if d.function == nil {
				d.function = n
			}
			n = n.ChildByFieldName("declarator")
		case "parenthesized_declarator":
			n = n.NamedChild(0)
		case "identifier", "field_identifier", "type_identifier":
			d.name = b.text(n)
			return d
		default:
			return d
		}
	}
	return d
}

func (b *treeBuilder) declaration(n *sitter.Node) []*Node {
	storage := b.storage(n)
	typeNode := n.ChildByFieldName("type")
	typeText := b.text(typeNode)

	var out []*Node
	if typeNode != nil {
		out = append(out, b.typeSpecifier(typeNode, "")...)
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil || !isDeclarator(child.Type()) {
			continue
		}
		d := b.unwrap(child)
		if d.name == "" {
			continue
		}
		if d.function != nil && !d.funcPointer {
			proto := &Node{
				Kind:         KindFunctionDecl,
				Spelling:     d.name,
				TypeSpelling: pointerType(typeText, d.pointer),
				Location:     b.loc(n),
				EndLine:      endLine(n),
				Storage:      storage,
				Children:     b.parameters(d.function),
			}
			out = append(out, proto)
			continue
		}
		v := &Node{
			Kind:         KindVariableDecl,
			Spelling:     d.name,
			TypeSpelling: typeText,
			Location:     b.loc(child),
			EndLine:      endLine(child),
			Storage:      storage,
			Pointer:      d.pointer,
			Array:        d.array,
			ArraySize:    d.arraySize,
		}
		if d.value != nil {
			v.Value = b.text(d.value)
			if lit := b.literal(d.value); lit != nil {
				v.Children = append(v.Children, lit)
			}
		}
		out = append(out, v)
	}
	return out
}

func pointerType(t string, pointer bool) string {
	if pointer && !strings.HasSuffix(t, "*") {
		return t + "*"
	}
	return t
}

func (b *treeBuilder) literal(n *sitter.Node) *Node {
	switch n.Type() {
	case "number_literal", "char_literal", "string_literal", "concatenated_string", "true", "false", "null":
	case "unary_expression":
		arg := n.ChildByFieldName("argument")
		if arg == nil || arg.Type() != "number_literal" {
			return nil
		}
	default:
		return nil
	}
	return &Node{Kind: KindLiteral, Value: b.text(n), Location: b.loc(n), EndLine: endLine(n)}
}

func (b *treeBuilder) parameters(fn *sitter.Node) []*Node {
	list := fn.ChildByFieldName("parameters")
	if list == nil {
		return nil
	}
	var params []*Node
	for i := 0; i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		if p == nil || p.Type() != "parameter_declaration" {
			continue
		}
		typeText := b.text(p.ChildByFieldName("type"))
		declNode := p.ChildByFieldName("declarator")
		if declNode == nil {
			// void, or an unnamed parameter
			continue
		}
		d := b.unwrap(declNode)
		params = append(params, &Node{
			Kind:         KindParameter,
			Spelling:     d.name,
			TypeSpelling: typeText,
			Location:     b.loc(p),
			EndLine:      endLine(p),
			Storage:      b.storage(p),
			Pointer:      d.pointer,
			Array:        d.array,
			ArraySize:    d.arraySize,
		})
	}
	return params
}

func (b *treeBuilder) function(n *sitter.Node) *Node {
	declNode := n.ChildByFieldName("declarator")
	if declNode == nil {
		return nil
	}
	d := b.unwrap(declNode)
	if d.name == "" || d.function == nil {
		return nil
	}
	fn := &Node{
		Kind:         KindFunctionDecl,
		Spelling:     d.name,
		TypeSpelling: pointerType(b.text(n.ChildByFieldName("type")), d.pointer),
		Location:     b.loc(n),
		EndLine:      endLine(n),
		Storage:      b.storage(n),
		IsDefinition: true,
		Children:     b.parameters(d.function),
	}
	if body := n.ChildByFieldName("body"); body != nil {
		b.body(body, fn)
	}
	return fn
}

// body appends the local declarations, calls and identifier references of
// a function body to fn, in source order.
func (b *treeBuilder) body(root *sitter.Node, fn *Node) {
	stack := []*sitter.Node{root}
	push := func(n *sitter.Node) {
		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			if child := n.NamedChild(i); child != nil {
				stack = append(stack, child)
			}
		}
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch n.Type() {
		case "declaration":
			fn.Children = append(fn.Children, b.declaration(n)...)
			var values []*sitter.Node
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if child != nil && child.Type() == "init_declarator" {
					if v := child.ChildByFieldName("value"); v != nil {
						values = append(values, v)
					}
				}
			}
			for i := len(values) - 1; i >= 0; i-- {
				stack = append(stack, values[i])
			}
		case "call_expression":
			callee := n.ChildByFieldName("function")
			if callee != nil && callee.Type() == "identifier" {
				fn.Children = append(fn.Children, &Node{
					Kind:     KindCallExpr,
					Spelling: b.text(callee),
					Location: b.loc(n),
					EndLine:  endLine(n),
				})
			} else if callee != nil {
				stack = append(stack, callee)
			}
			if args := n.ChildByFieldName("arguments"); args != nil {
				push(args)
			}
		case "identifier":
			fn.Children = append(fn.Children, &Node{
				Kind:     KindIdentifierRef,
				Spelling: b.text(n),
				Location: b.loc(n),
				EndLine:  endLine(n),
			})
		default:
			push(n)
		}
	}
}

func (b *treeBuilder) typeSpecifier(n *sitter.Node, fallbackName string) []*Node {
	body := n.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	name := b.text(n.ChildByFieldName("name"))
	if name == "" {
		name = fallbackName
	}

	switch n.Type() {
	case "enum_specifier":
		decl := &Node{Kind: KindEnumDecl, Spelling: name, Location: b.loc(n), EndLine: endLine(n)}
		for i := 0; i < int(body.NamedChildCount()); i++ {
			e := body.NamedChild(i)
			if e == nil || e.Type() != "enumerator" {
				continue
			}
			c := &Node{
				Kind:     KindEnumConstant,
				Spelling: b.text(e.ChildByFieldName("name")),
				Location: b.loc(e),
				EndLine:  endLine(e),
			}
			if v := e.ChildByFieldName("value"); v != nil {
				c.Value = b.text(v)
				if lit := b.literal(v); lit != nil {
					c.Children = append(c.Children, lit)
				}
			}
			decl.Children = append(decl.Children, c)
		}
		return []*Node{decl}
	case "struct_specifier":
		return []*Node{{Kind: KindStructDecl, Spelling: name, Value: b.text(body), Location: b.loc(n), EndLine: endLine(n)}}
	case "union_specifier":
		return []*Node{{Kind: KindUnionDecl, Spelling: name, Value: b.text(body), Location: b.loc(n), EndLine: endLine(n)}}
	}
	return nil
}

func (b *treeBuilder) typedef(n *sitter.Node) []*Node {
	typeNode := n.ChildByFieldName("type")
	var names []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil || sameNode(child, typeNode) {
			continue
		}
		switch child.Type() {
		case "type_identifier", "pointer_declarator", "array_declarator", "function_declarator", "parenthesized_declarator":
			if d := b.unwrap(child); d.name != "" {
				names = append(names, d.name)
			}
		}
	}

	var out []*Node
	if typeNode != nil {
		fallback := ""
		if len(names) > 0 {
			fallback = names[0]
		}
		out = append(out, b.typeSpecifier(typeNode, fallback)...)
	}
	for _, name := range names {
		out = append(out, &Node{
			Kind:         KindTypedefDecl,
			Spelling:     name,
			TypeSpelling: b.text(typeNode),
			Location:     b.loc(n),
			EndLine:      endLine(n),
		})
	}
	return out
}

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// syntaxDiagnostics reports ERROR nodes as errors and MISSING nodes as
// warnings.
func (b *treeBuilder) syntaxDiagnostics(root *sitter.Node) []types.Diagnostic {
	if !root.HasError() {
		return nil
	}
	var diags []types.Diagnostic
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		loc := b.loc(n)
		switch {
		case n.Type() == "ERROR":
			diags = append(diags, types.Diagnostic{
				Severity: types.SeverityError,
				Message:  fmt.Sprintf("syntax error near %q", snippet(b.text(n))),
				File:     b.file,
				Line:     loc.Line,
				Column:   loc.Column,
				Source:   "parser",
			})
			continue
		case n.IsMissing():
			diags = append(diags, types.Diagnostic{
				Severity: types.SeverityWarning,
				Message:  fmt.Sprintf("missing %s", n.Type()),
				File:     b.file,
				Line:     loc.Line,
				Column:   loc.Column,
				Source:   "parser",
			})
			continue
		}
		if !n.HasError() {
			continue
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if child := n.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
	return diags
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
