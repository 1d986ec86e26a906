package types

import (
	"fmt"
	"strings"
)

// VariableKind is the coarse shape of a variable's declared type.
type VariableKind string

const (
	KindPrimitive VariableKind = "primitive"
	KindArray     VariableKind = "array"
	KindPointer   VariableKind = "pointer"
	KindStruct    VariableKind = "struct"
	KindUnion     VariableKind = "union"
	KindEnum      VariableKind = "enum"
)

// VariableScope is where a variable lives.
type VariableScope string

const (
	ScopeGlobal    VariableScope = "global"
	ScopeStatic    VariableScope = "static"
	ScopeLocal     VariableScope = "local"
	ScopeParameter VariableScope = "parameter"
	ScopeRom       VariableScope = "rom" // const data at file scope
)

// IsFileScope reports whether the variable is visible outside a function body.
func (s VariableScope) IsFileScope() bool {
	return s == ScopeGlobal || s == ScopeStatic || s == ScopeRom
}

// ConstraintType is the form of a constraint.
type ConstraintType string

const (
	ConstraintMinValue    ConstraintType = "min_value"
	ConstraintMaxValue    ConstraintType = "max_value"
	ConstraintEnumeration ConstraintType = "enumeration"
	ConstraintRange       ConstraintType = "range"
	ConstraintCustom      ConstraintType = "custom"
)

// Constraint restricts the values a variable may take.
// Hard constraints must hold for every synthesized input; soft ones are hints.
type Constraint struct {
	Type       ConstraintType `json:"type" yaml:"type"`
	Min        string         `json:"min,omitempty" yaml:"min,omitempty"`
	Max        string         `json:"max,omitempty" yaml:"max,omitempty"`
	Values     []string       `json:"values,omitempty" yaml:"values,omitempty"`
	Expression string         `json:"expression,omitempty" yaml:"expression,omitempty"`
	Source     string         `json:"source" yaml:"source"` // Where the constraint came from
	Hard       bool           `json:"hard" yaml:"hard"`
}

// Key identifies a constraint for deduplication. Provenance and hardness are
// not part of the identity.
func (c Constraint) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", c.Type, c.Min, c.Max, strings.Join(c.Values, ","), c.Expression)
}

// Informational reports whether c carries no solvable clause.
func (c Constraint) Informational() bool {
	return c.Type == ConstraintCustom && strings.TrimSpace(c.Expression) == ""
}

// Expr renders c as a C boolean expression over name. It returns "" for
// informational constraints.
func (c Constraint) Expr(name string) string {
	switch c.Type {
	case ConstraintMinValue:
		return fmt.Sprintf("%s >= %s", name, c.Min)
	case ConstraintMaxValue:
		return fmt.Sprintf("%s <= %s", name, c.Max)
	case ConstraintRange:
		return fmt.Sprintf("(%s >= %s && %s <= %s)", name, c.Min, name, c.Max)
	case ConstraintEnumeration:
		if len(c.Values) == 0 {
			return ""
		}
		parts := make([]string, len(c.Values))
		for i, v := range c.Values {
			parts[i] = fmt.Sprintf("%s == %s", name, v)
		}
		if len(parts) == 1 {
			return parts[0]
		}
		return "(" + strings.Join(parts, " || ") + ")"
	default:
		return strings.TrimSpace(c.Expression)
	}
}

// String renders c for humans.
func (c Constraint) String() string {
	kind := "soft"
	if c.Hard {
		kind = "hard"
	}
	switch c.Type {
	case ConstraintRange:
		return fmt.Sprintf("range [%s, %s] (%s, %s)", c.Min, c.Max, kind, c.Source)
	case ConstraintMinValue:
		return fmt.Sprintf("min %s (%s, %s)", c.Min, kind, c.Source)
	case ConstraintMaxValue:
		return fmt.Sprintf("max %s (%s, %s)", c.Max, kind, c.Source)
	case ConstraintEnumeration:
		return fmt.Sprintf("one of {%s} (%s, %s)", strings.Join(c.Values, ", "), kind, c.Source)
	default:
		if c.Expression == "" {
			return fmt.Sprintf("note: %s", c.Source)
		}
		return fmt.Sprintf("%s (%s, %s)", c.Expression, kind, c.Source)
	}
}

// Variable is a declared C object.
type Variable struct {
	Name         string        `json:"name" yaml:"name"`
	TypeName     string        `json:"type_name" yaml:"type_name"`
	Kind         VariableKind  `json:"kind" yaml:"kind"`
	Scope        VariableScope `json:"scope" yaml:"scope"`
	IsConst      bool          `json:"is_const,omitempty" yaml:"is_const,omitempty"`
	IsVolatile   bool          `json:"is_volatile,omitempty" yaml:"is_volatile,omitempty"`
	Size         int           `json:"size" yaml:"size"`                                     // Bytes, 0 if unknown
	ArraySize    int           `json:"array_size,omitempty" yaml:"array_size,omitempty"`     // Element count for arrays
	InitialValue string        `json:"initial_value,omitempty" yaml:"initial_value,omitempty"`
	Constraints  []Constraint  `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	UsedBy       []string      `json:"used_by,omitempty" yaml:"used_by,omitempty"`
	Function     string        `json:"function,omitempty" yaml:"function,omitempty"` // Owning function for locals and parameters
	File         string        `json:"file,omitempty" yaml:"file,omitempty"`
	Line         int           `json:"line" yaml:"line"`
}

// AddConstraint appends c unless an equal constraint is already attached.
// It reports whether c was added.
func (v *Variable) AddConstraint(c Constraint) bool {
	key := c.Key()
	for _, existing := range v.Constraints {
		if existing.Key() == key {
			return false
		}
	}
	v.Constraints = append(v.Constraints, c)
	return true
}

// AddConstraints appends every constraint of cs that is not yet attached.
func (v *Variable) AddConstraints(cs []Constraint) int {
	added := 0
	for _, c := range cs {
		if v.AddConstraint(c) {
			added++
		}
	}
	return added
}

// AddUser records fn as a user of v.
func (v *Variable) AddUser(fn string) {
	for _, u := range v.UsedBy {
		if u == fn {
			return
		}
	}
	v.UsedBy = append(v.UsedBy, fn)
}

// DedupConstraints returns cs with later duplicates removed, preserving order.
func DedupConstraints(cs []Constraint) []Constraint {
	seen := make(map[string]bool, len(cs))
	out := make([]Constraint, 0, len(cs))
	for _, c := range cs {
		k := c.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}
