package types

// DefinitionType classifies a preprocessor or enum definition.
type DefinitionType string

const (
	DefinitionConstant      DefinitionType = "constant"       // #define NAME value
	DefinitionFunctionMacro DefinitionType = "function_macro" // #define NAME(a, b) body
	DefinitionEnumValue     DefinitionType = "enum_value"     // enumerator inside an enum
)

// Definition is a macro or enumerator visible to the analysis.
type Definition struct {
	Name         string         `json:"name" yaml:"name"`
	Value        string         `json:"value" yaml:"value"`
	Type         DefinitionType `json:"type" yaml:"type"`
	Parameters   []string       `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Enabled      bool           `json:"enabled" yaml:"enabled"`
	Group        string         `json:"group,omitempty" yaml:"group,omitempty"` // Enum type name for enumerators
	File         string         `json:"file,omitempty" yaml:"file,omitempty"`
	Line         int            `json:"line" yaml:"line"`
}

// IsFunctionLike reports whether d takes parameters.
func (d Definition) IsFunctionLike() bool {
	return d.Type == DefinitionFunctionMacro
}

// IncludeDirective is a #include line.
type IncludeDirective struct {
	Path     string `json:"path" yaml:"path"`
	IsSystem bool   `json:"is_system" yaml:"is_system"` // <...> rather than "..."
	Line     int    `json:"line" yaml:"line"`
}

// ConditionalType is the directive keyword that opened a conditional block.
type ConditionalType string

const (
	ConditionalIf     ConditionalType = "if"
	ConditionalIfDef  ConditionalType = "ifdef"
	ConditionalIfNDef ConditionalType = "ifndef"
	ConditionalElseIf ConditionalType = "elif"
	ConditionalElse   ConditionalType = "else"
)

// IsRoot reports whether t opens a new #if chain.
func (t ConditionalType) IsRoot() bool {
	return t == ConditionalIf || t == ConditionalIfDef || t == ConditionalIfNDef
}

// NoParent marks a directive that opens its own chain.
const NoParent = -1

// ConditionalDirective is one arm of an #if/#elif/#else chain. Links to other
// directives are arena indices.
type ConditionalDirective struct {
	ID           int             `json:"id" yaml:"id"`
	Type         ConditionalType `json:"type" yaml:"type"`
	Condition    string          `json:"condition" yaml:"condition"`
	StartLine    int             `json:"start_line" yaml:"start_line"`
	EndLine      int             `json:"end_line" yaml:"end_line"` // 0 until the terminator is seen
	Parent       int             `json:"parent" yaml:"parent"`     // NoParent for chain roots
	Branches     []int           `json:"branches,omitempty" yaml:"branches,omitempty"`
	Dependencies []string        `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// Terminated reports whether the directive's block was closed.
func (d ConditionalDirective) Terminated() bool {
	return d.EndLine > 0
}

// DirectiveArena owns every conditional directive of a file.
type DirectiveArena struct {
	Directives []ConditionalDirective `json:"directives" yaml:"directives"`
}

// NewDirectiveArena returns an empty arena.
func NewDirectiveArena() *DirectiveArena {
	return &DirectiveArena{}
}

// Add stores d, assigns its ID and links it to its parent's branch list.
func (a *DirectiveArena) Add(d ConditionalDirective) int {
	d.ID = len(a.Directives)
	a.Directives = append(a.Directives, d)
	if d.Parent != NoParent && d.Parent >= 0 && d.Parent < d.ID {
		a.Directives[d.Parent].Branches = append(a.Directives[d.Parent].Branches, d.ID)
	}
	return d.ID
}

// Get returns a pointer into the arena, or nil for an unknown id.
func (a *DirectiveArena) Get(id int) *ConditionalDirective {
	if a == nil || id < 0 || id >= len(a.Directives) {
		return nil
	}
	return &a.Directives[id]
}

// Len returns the number of directives.
func (a *DirectiveArena) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Directives)
}

// Roots returns the ids of chain roots in source order.
func (a *DirectiveArena) Roots() []int {
	if a == nil {
		return nil
	}
	var roots []int
	for _, d := range a.Directives {
		if d.Parent == NoParent {
			roots = append(roots, d.ID)
		}
	}
	return roots
}

// Chain returns the root followed by its branches in order.
func (a *DirectiveArena) Chain(rootID int) []int {
	root := a.Get(rootID)
	if root == nil {
		return nil
	}
	chain := make([]int, 0, len(root.Branches)+1)
	chain = append(chain, rootID)
	return append(chain, root.Branches...)
}
