package constraint

import (
	"strings"

	"github.com/l3aro/c-testforge/pkg/cexpr"
	"github.com/l3aro/c-testforge/pkg/preproc"
	"github.com/l3aro/c-testforge/pkg/types"
)

// typeBounds derives the hard domain of v from its declared type.
func typeBounds(v types.Variable, typedefs map[string]string) []types.Constraint {
	if v.Kind == types.KindPointer {
		return []types.Constraint{{
			Type:       types.ConstraintCustom,
			Expression: v.Name + " != NULL",
			Source:     "pointer",
		}}
	}
	if v.Kind == types.KindStruct || v.Kind == types.KindUnion || v.Kind == types.KindEnum {
		return nil
	}

	resolved := types.ResolveTypedefs(v.TypeName, typedefs)
	s, ok := types.LookupScalar(resolved)
	if !ok {
		return nil
	}
	source := "type " + types.NormalizeTypeName(v.TypeName)
	if s.Bool {
		return []types.Constraint{{
			Type:   types.ConstraintEnumeration,
			Values: []string{"0", "1", "true", "false"},
			Source: source,
			Hard:   true,
		}}
	}
	return []types.Constraint{{
		Type:   types.ConstraintRange,
		Min:    s.Min,
		Max:    s.Max,
		Source: source,
		Hard:   true,
	}}
}

// isInteger reports whether v holds integral values.
func isInteger(v types.Variable, typedefs map[string]string) bool {
	switch v.Kind {
	case types.KindEnum:
		return true
	case types.KindPrimitive, types.KindArray:
		s, ok := types.LookupScalar(types.ResolveTypedefs(v.TypeName, typedefs))
		return !ok || !s.Float
	}
	return false
}

// enumGroup returns the enum type name v is declared with, or "".
func enumGroup(v types.Variable, typedefs map[string]string) string {
	name := types.NormalizeTypeName(types.ResolveTypedefs(v.TypeName, typedefs))
	return strings.TrimPrefix(name, "enum ")
}

// enumValues constrains an enum-typed variable to its enumerators. When no
// group matches the declared type every visible enumerator is allowed.
func enumValues(v types.Variable, s Scope) []types.Constraint {
	if v.Kind != types.KindEnum {
		return nil
	}
	group := enumGroup(v, s.Typedefs)
	alias := types.NormalizeTypeName(v.TypeName)

	var matched, all []string
	seen := make(map[string]bool)
	for _, d := range s.Definitions {
		if d.Type != types.DefinitionEnumValue || !d.Enabled {
			continue
		}
		if !seen[d.Value] {
			seen[d.Value] = true
			all = append(all, d.Value)
		}
		if d.Group != "" && (d.Group == group || d.Group == alias) {
			matched = appendUnique(matched, d.Value)
		}
	}

	source := "enum " + group
	values := matched
	if len(values) == 0 {
		values = all
		source = "visible enum values"
	}
	if len(values) == 0 {
		return nil
	}
	return []types.Constraint{{
		Type:   types.ConstraintEnumeration,
		Values: values,
		Source: source,
		Hard:   true,
	}}
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

// resolver turns bound text into a constant value, expanding macros and
// enumerators.
type resolver struct {
	defs     []types.Definition
	maxDepth int
}

func (r *resolver) value(text string) (cexpr.Value, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return cexpr.Value{}, false
	}
	if strings.HasPrefix(text, "-") {
		text = "-" + strings.TrimSpace(text[1:])
	}
	if v, err := cexpr.ParseValue(text); err == nil {
		return v, true
	}
	expanded, err := preproc.Expand(text, r.defs, r.maxDepth)
	if err != nil {
		return cexpr.Value{}, false
	}
	v, err := cexpr.EvalString(expanded, cexpr.NewMapEnv())
	if err != nil {
		return cexpr.Value{}, false
	}
	return v, true
}
