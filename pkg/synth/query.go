package synth

import (
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/l3aro/c-testforge/pkg/cache"
	"github.com/l3aro/c-testforge/pkg/coverage"
	"github.com/l3aro/c-testforge/pkg/preproc"
	"github.com/l3aro/c-testforge/pkg/solver"
	"github.com/l3aro/c-testforge/pkg/types"
)

// maxGlobalDepth bounds the callee walk that collects referenced globals.
const maxGlobalDepth = 8

// input is one query variable together with where its value comes from.
type input struct {
	name     string
	typeName string
	global   bool
}

// inputs lists the parameters of fn that can be bound by value, then the
// non-const file-scope variables fn or its callees reference.
func inputs(req *Request) []input {
	var out []input
	for _, p := range req.Function.Parameters {
		if p.Name == "" || (p.IsPointer && p.ArraySize <= 0) {
			continue
		}
		out = append(out, input{name: p.Name, typeName: p.TypeName})
	}

	byName := make(map[string]*types.Function, len(req.Functions))
	for i := range req.Functions {
		if _, ok := byName[req.Functions[i].Name]; !ok {
			byName[req.Functions[i].Name] = &req.Functions[i]
		}
	}
	var used []string
	seen := map[string]bool{req.Function.Name: true}
	var visit func(fn *types.Function, depth int)
	visit = func(fn *types.Function, depth int) {
		for _, name := range fn.UsedVariables {
			if !slices.Contains(used, name) {
				used = append(used, name)
			}
		}
		if depth >= maxGlobalDepth {
			return
		}
		for _, callee := range fn.CalledFunctions {
			if seen[callee] {
				continue
			}
			seen[callee] = true
			if next, ok := byName[callee]; ok {
				visit(next, depth+1)
			}
		}
	}
	visit(req.Function, 0)

	for _, name := range used {
		v := req.global(name)
		if v == nil || v.IsConst || req.Function.Parameter(name) != nil {
			continue
		}
		switch v.Kind {
		case types.KindPrimitive, types.KindEnum, types.KindArray, "":
			out = append(out, input{name: name, typeName: v.TypeName, global: true})
		}
	}
	return out
}

// variable returns the model variable carrying constraints for in.
func (req *Request) variable(in input) *types.Variable {
	if in.global {
		return req.global(in.name)
	}
	for i := range req.Variables {
		v := &req.Variables[i]
		if v.Name == in.name && v.Scope == types.ScopeParameter && v.Function == req.Function.Name {
			return v
		}
	}
	return nil
}

func (req *Request) global(name string) *types.Variable {
	for i := range req.Variables {
		if req.Variables[i].Name == name && req.Variables[i].Scope.IsFileScope() {
			return &req.Variables[i]
		}
	}
	return nil
}

// query builds the solver query for gap: the hard and soft constraints of
// every input plus the macro-expanded gap condition as a hard clause. It
// reports whether the condition is exact, so that an unsatisfiable answer
// proves the gap infeasible.
func (s *Synthesizer) query(req *Request, ins []input, consts map[string]string, gap coverage.Gap) (solver.Query, bool) {
	q := solver.Query{Constants: consts, Timeout: s.timeout, Mode: solver.FindOne}
	for _, in := range ins {
		sv := solver.Variable{Name: in.name, Type: in.typeName, Domain: solver.TypeDomain(in.typeName)}
		if p := req.Function.Parameter(in.name); p != nil && p.ArraySize > 0 {
			sv.ArraySize = p.ArraySize
		}
		if v := req.variable(in); v != nil {
			if sv.ArraySize == 0 && v.ArraySize > 0 && v.Kind == types.KindArray {
				sv.ArraySize = v.ArraySize
			}
			for _, c := range v.Constraints {
				if c.Hard {
					narrow(&sv.Domain, c)
				}
				expr := c.Expr(in.name)
				if expr == "" || sv.ArraySize > 0 {
					continue
				}
				if c.Hard {
					q.Hard = append(q.Hard, expr)
				} else {
					q.Soft = append(q.Soft, expr)
				}
			}
		}
		q.Variables = append(q.Variables, sv)
	}

	cond, exact := condition(req, ins, gap)
	if expanded, err := preproc.Expand(cond, req.Definitions, s.maxMacroDepth); err == nil {
		cond = expanded
	}
	if strings.TrimSpace(cond) != "" && strings.TrimSpace(cond) != "1" {
		q.Hard = append(q.Hard, cond)
	}
	return q, exact
}

// condition restates the gap condition over the inputs by replaying the
// assignments of the path it was taken from. A gap without a path keeps
// its own guard, which says nothing about what runs before it.
func condition(req *Request, ins []input, gap coverage.Gap) (string, bool) {
	fa := req.Analysis
	for _, p := range fa.Paths {
		if p.ID != gap.Path || gap.Path == "" {
			continue
		}
		switch gap.Kind {
		case coverage.GapBranch:
			return pathCondition(fa.Graph, p, gap.ID, req.Function, ins)
		case coverage.GapPath:
			return pathCondition(fa.Graph, p, "", req.Function, ins)
		}
	}
	return gap.Condition, gap.Condition == "1"
}

// narrow applies a hard constraint to a domain: enumerations replace the
// value set and integer bounds shrink the interval.
func narrow(d *solver.Domain, c types.Constraint) {
	switch c.Type {
	case types.ConstraintEnumeration:
		if len(c.Values) > 0 && d.Kind != solver.DomainReal {
			d.Kind = solver.DomainEnumeration
			d.Values = slices.Clone(c.Values)
		}
		return
	case types.ConstraintRange, types.ConstraintMinValue, types.ConstraintMaxValue:
	default:
		return
	}
	if d.Kind != solver.DomainInteger {
		return
	}
	if lo, err := strconv.ParseInt(c.Min, 0, 64); err == nil {
		if cur, err := strconv.ParseInt(d.Min, 10, 64); err != nil || lo > cur {
			d.Min = strconv.FormatInt(lo, 10)
		}
	}
	if hi, err := strconv.ParseInt(c.Max, 0, 64); err == nil {
		if cur, err := strconv.ParseInt(d.Max, 10, 64); err != nil || hi < cur {
			d.Max = strconv.FormatInt(hi, 10)
		}
	}
}

// gapKey identifies a query for the feasibility store. It covers the
// function body and the hard clauses, so editing either invalidates the
// record.
func gapKey(function string, body []string, q solver.Query) string {
	hard := slices.Clone(q.Hard)
	sort.Strings(hard)
	parts := []string{function, strings.Join(body, "\n")}
	for _, v := range q.Variables {
		parts = append(parts, v.Name+":"+string(v.Domain.Kind)+":"+v.Domain.Min+":"+v.Domain.Max+":"+strings.Join(v.Domain.Values, ","))
	}
	return cache.ContentKey(append(parts, hard...)...)
}
