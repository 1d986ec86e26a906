package types

import "strings"

// Parameter is a formal parameter of a function.
type Parameter struct {
	Name      string `json:"name" yaml:"name"`
	TypeName  string `json:"type_name" yaml:"type_name"`
	IsPointer bool   `json:"is_pointer,omitempty" yaml:"is_pointer,omitempty"`
	ArraySize int    `json:"array_size,omitempty" yaml:"array_size,omitempty"`
}

// CallSite is a call expression inside a function body.
type CallSite struct {
	Callee string `json:"callee" yaml:"callee"`
	Line   int    `json:"line" yaml:"line"`
}

// Function is a function definition.
type Function struct {
	Name            string      `json:"name" yaml:"name"`
	ReturnType      string      `json:"return_type" yaml:"return_type"`
	IsStatic        bool        `json:"is_static,omitempty" yaml:"is_static,omitempty"`
	IsInline        bool        `json:"is_inline,omitempty" yaml:"is_inline,omitempty"`
	IsExtern        bool        `json:"is_extern,omitempty" yaml:"is_extern,omitempty"`
	Parameters      []Parameter `json:"parameters" yaml:"parameters"`
	Body            string      `json:"-" yaml:"-"`
	StartLine       int         `json:"start_line" yaml:"start_line"`
	EndLine         int         `json:"end_line" yaml:"end_line"`
	File            string      `json:"file,omitempty" yaml:"file,omitempty"`
	CalledFunctions []string    `json:"called_functions,omitempty" yaml:"called_functions,omitempty"`
	CallSites       []CallSite  `json:"call_sites,omitempty" yaml:"call_sites,omitempty"`
	UsedVariables   []string    `json:"used_variables,omitempty" yaml:"used_variables,omitempty"`
}

// Signature renders the function prototype.
func (f Function) Signature() string {
	params := make([]string, len(f.Parameters))
	for i, p := range f.Parameters {
		params[i] = strings.TrimSpace(p.TypeName + " " + p.Name)
	}
	if len(params) == 0 {
		params = []string{"void"}
	}
	return f.ReturnType + " " + f.Name + "(" + strings.Join(params, ", ") + ")"
}

// Parameter returns the parameter named name, or nil.
func (f *Function) Parameter(name string) *Parameter {
	for i := range f.Parameters {
		if f.Parameters[i].Name == name {
			return &f.Parameters[i]
		}
	}
	return nil
}

// Calls reports whether f calls callee.
func (f Function) Calls(callee string) bool {
	for _, c := range f.CalledFunctions {
		if c == callee {
			return true
		}
	}
	return false
}

// Uses reports whether f references the variable name.
func (f Function) Uses(name string) bool {
	for _, v := range f.UsedVariables {
		if v == name {
			return true
		}
	}
	return false
}

// CallLine returns the first call-site line of callee and whether it was
// recorded exactly.
func (f Function) CallLine(callee string) (int, bool) {
	for _, cs := range f.CallSites {
		if cs.Callee == callee {
			return cs.Line, true
		}
	}
	return f.StartLine, false
}
