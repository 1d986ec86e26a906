package extractor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/l3aro/c-testforge/pkg/ast"
	"github.com/l3aro/c-testforge/pkg/cexpr"
	"github.com/l3aro/c-testforge/pkg/preproc"
	"github.com/l3aro/c-testforge/pkg/types"
)

// modelBuilder is the ast.Visitor that fills a FileModel.
type modelBuilder struct {
	model    *types.FileModel
	active   []bool
	maxDepth int

	// owner maps the children of a function definition to its index.
	owner map[*ast.Node]int
	refs  map[int][]string

	enumGroup string
	enumNext  string

	globals map[string]int
	externs map[string]bool
}

func newModelBuilder(model *types.FileModel, active []bool, maxDepth int) *modelBuilder {
	return &modelBuilder{
		model:    model,
		active:   active,
		maxDepth: maxDepth,
		owner:    make(map[*ast.Node]int),
		refs:     make(map[int][]string),
		globals:  make(map[string]int),
		externs:  make(map[string]bool),
	}
}

func (b *modelBuilder) isActive(line int) bool {
	if line < 1 || line > len(b.active) {
		return true
	}
	return b.active[line-1]
}

func (b *modelBuilder) functionOf(n *ast.Node) (int, bool) {
	idx, ok := b.owner[n]
	return idx, ok
}

func (b *modelBuilder) VisitTranslationUnit(n *ast.Node) bool { return true }

func (b *modelBuilder) VisitFunctionDecl(n *ast.Node) bool {
	if !n.IsDefinition || !b.isActive(n.Location.Line) {
		return false
	}
	fn := types.Function{
		Name:       n.Spelling,
		ReturnType: n.TypeSpelling,
		IsStatic:   n.Storage.Static,
		IsInline:   n.Storage.Inline,
		IsExtern:   n.Storage.Extern,
		Parameters: []types.Parameter{},
		Body:       bodyText(b.model.Lines, n.Location.Line, n.EndLine),
		StartLine:  n.Location.Line,
		EndLine:    n.EndLine,
		File:       b.model.Path,
	}
	b.model.Functions = append(b.model.Functions, fn)
	idx := len(b.model.Functions) - 1
	for _, child := range n.Children {
		b.owner[child] = idx
	}
	return true
}

func (b *modelBuilder) VisitParameter(n *ast.Node) bool {
	idx, ok := b.functionOf(n)
	if !ok || n.Spelling == "" {
		return false
	}
	fn := &b.model.Functions[idx]
	p := types.Parameter{
		Name:      n.Spelling,
		TypeName:  n.TypeSpelling,
		IsPointer: n.Pointer,
	}
	if n.Array {
		p.IsPointer = true
		p.ArraySize = b.evalSize(n.ArraySize)
	}
	fn.Parameters = append(fn.Parameters, p)

	v := b.variable(n, types.ScopeParameter, fn.Name)
	b.model.Variables = append(b.model.Variables, v)
	return false
}

func (b *modelBuilder) VisitVariableDecl(n *ast.Node) bool {
	if !b.isActive(n.Location.Line) {
		return false
	}
	if idx, ok := b.functionOf(n); ok {
		v := b.variable(n, types.ScopeLocal, b.model.Functions[idx].Name)
		b.model.Variables = append(b.model.Variables, v)
		return false
	}

	scope := types.ScopeGlobal
	switch {
	case n.Storage.Const && !n.Pointer:
		scope = types.ScopeRom
	case n.Storage.Static:
		scope = types.ScopeStatic
	}
	v := b.variable(n, scope, "")

	if i, seen := b.globals[v.Name]; seen {
		if b.externs[v.Name] && !n.Storage.Extern {
			b.model.Variables[i] = v
			delete(b.externs, v.Name)
		}
		return false
	}
	b.globals[v.Name] = len(b.model.Variables)
	if n.Storage.Extern {
		b.externs[v.Name] = true
	}
	b.model.Variables = append(b.model.Variables, v)
	return false
}

func (b *modelBuilder) VisitEnumDecl(n *ast.Node) bool {
	if !b.isActive(n.Location.Line) {
		return false
	}
	b.enumGroup = n.Spelling
	b.enumNext = "0"
	return true
}

func (b *modelBuilder) VisitEnumConstant(n *ast.Node) bool {
	if n.Spelling == "" {
		return false
	}
	value := b.enumNext
	if n.Value != "" {
		value = n.Value
	}
	if v, err := b.evalConst(value); err == nil {
		value = v.String()
		b.enumNext = strconv.FormatInt(v.AsInt()+1, 10)
	} else {
		b.model.Diagnostics = append(b.model.Diagnostics, types.Warning(b.model.Path, n.Location.Line, "extractor",
			fmt.Sprintf("enumerator %s has non-constant value %q", n.Spelling, value)))
		b.enumNext = "(" + value + ") + 1"
	}

	b.model.Definitions = append(b.model.Definitions, types.Definition{
		Name:    n.Spelling,
		Value:   value,
		Type:    types.DefinitionEnumValue,
		Enabled: true,
		Group:   b.enumGroup,
		File:    b.model.Path,
		Line:    n.Location.Line,
	})
	return false
}

func (b *modelBuilder) VisitStructDecl(n *ast.Node) bool { return false }

func (b *modelBuilder) VisitUnionDecl(n *ast.Node) bool { return false }

func (b *modelBuilder) VisitTypedefDecl(n *ast.Node) bool {
	if !b.isActive(n.Location.Line) {
		return false
	}
	target := n.TypeSpelling
	if brace := strings.Index(target, "{"); brace >= 0 {
		// typedef enum [tag] { ... } name;
		head := strings.Fields(target[:brace])
		switch {
		case len(head) >= 2:
			target = head[0] + " " + head[1]
		case len(head) == 1:
			target = head[0] + " " + n.Spelling
		}
	}
	b.model.Typedefs[n.Spelling] = target
	return false
}

// Literals are read through their parent declarations.
func (b *modelBuilder) VisitLiteral(n *ast.Node) bool { return false }

func (b *modelBuilder) VisitIdentifierRef(n *ast.Node) bool {
	if idx, ok := b.functionOf(n); ok && b.isActive(n.Location.Line) {
		b.refs[idx] = append(b.refs[idx], n.Spelling)
	}
	return false
}

func (b *modelBuilder) VisitCallExpr(n *ast.Node) bool {
	idx, ok := b.functionOf(n)
	if !ok || !b.isActive(n.Location.Line) {
		return false
	}
	fn := &b.model.Functions[idx]
	fn.CallSites = append(fn.CallSites, types.CallSite{Callee: n.Spelling, Line: n.Location.Line})
	if !fn.Calls(n.Spelling) {
		fn.CalledFunctions = append(fn.CalledFunctions, n.Spelling)
	}
	return false
}

// finish resolves identifier references into UsedVariables and UsedBy.
func (b *modelBuilder) finish() {
	for idx := range b.model.Functions {
		fn := &b.model.Functions[idx]
		seen := make(map[string]bool)
		for _, name := range b.refs[idx] {
			if seen[name] {
				continue
			}
			v := b.model.FindVariable(name, fn.Name)
			if v == nil || (v.Function != "" && v.Function != fn.Name) {
				continue
			}
			seen[name] = true
			fn.UsedVariables = append(fn.UsedVariables, name)
			v.AddUser(fn.Name)
		}
	}
}

func (b *modelBuilder) variable(n *ast.Node, scope types.VariableScope, fn string) types.Variable {
	v := types.Variable{
		Name:         n.Spelling,
		TypeName:     n.TypeSpelling,
		Scope:        scope,
		IsConst:      n.Storage.Const,
		IsVolatile:   n.Storage.Volatile,
		InitialValue: n.Value,
		Function:     fn,
		File:         b.model.Path,
		Line:         n.Location.Line,
	}
	elemSize := types.TypeSize(types.ResolveTypedefs(n.TypeSpelling, b.model.Typedefs))

	switch {
	case n.Array:
		v.Kind = types.KindArray
		v.ArraySize = b.evalSize(n.ArraySize)
		if v.ArraySize == 0 {
			v.ArraySize = initializerCount(n.Value)
		}
		v.Size = elemSize * v.ArraySize
		if n.Pointer {
			v.Size = types.PointerSize * v.ArraySize
		}
	case n.Pointer:
		v.Kind = types.KindPointer
		v.Size = types.PointerSize
	default:
		v.Kind = b.kindOf(n.TypeSpelling)
		v.Size = elemSize
	}
	return v
}

func (b *modelBuilder) kindOf(typeName string) types.VariableKind {
	resolved := types.NormalizeTypeName(types.ResolveTypedefs(typeName, b.model.Typedefs))
	switch {
	case strings.HasPrefix(resolved, "struct "):
		return types.KindStruct
	case strings.HasPrefix(resolved, "union "):
		return types.KindUnion
	case strings.HasPrefix(resolved, "enum "):
		return types.KindEnum
	}
	for _, d := range b.model.Definitions {
		if d.Type == types.DefinitionEnumValue && d.Group == types.NormalizeTypeName(typeName) {
			return types.KindEnum
		}
	}
	return types.KindPrimitive
}

// evalConst expands macros and enumerators in expr and evaluates it.
func (b *modelBuilder) evalConst(expr string) (cexpr.Value, error) {
	if v, err := cexpr.ParseValue(expr); err == nil {
		return v, nil
	}
	expanded, err := preproc.Expand(expr, b.model.Definitions, b.maxDepth)
	if err != nil {
		return cexpr.Value{}, err
	}
	return cexpr.EvalString(expanded, cexpr.NewMapEnv())
}

func (b *modelBuilder) evalSize(size string) int {
	if strings.TrimSpace(size) == "" {
		return 0
	}
	v, err := b.evalConst(size)
	if err != nil || v.AsInt() < 0 {
		return 0
	}
	return int(v.AsInt())
}

// initializerCount counts the top-level elements of a brace initializer.
func initializerCount(init string) int {
	init = strings.TrimSpace(init)
	if !strings.HasPrefix(init, "{") || !strings.HasSuffix(init, "}") {
		return 0
	}
	inner := strings.TrimSpace(init[1 : len(init)-1])
	if inner == "" {
		return 0
	}
	count, depth := 1, 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '{', '(':
			depth++
		case '}', ')':
			depth--
		case ',':
			if depth == 0 && strings.TrimSpace(inner[i+1:]) != "" {
				count++
			}
		}
	}
	return count
}

// bodyText returns the text from the opening brace of a function through
// its last line.
func bodyText(lines []string, start, end int) string {
	if start < 1 || end > len(lines) || start > end {
		return ""
	}
	text := strings.Join(lines[start-1:end], "\n")
	if brace := strings.Index(text, "{"); brace >= 0 {
		return text[brace:]
	}
	return ""
}
