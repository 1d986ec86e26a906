// Package types defines the entity model shared by every analysis pass.
// It includes definitions, conditional directives, variables, constraints,
// functions, test cases, and the project and option records callers supply.
package types

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Diagnostic is a recoverable finding recorded during analysis.
type Diagnostic struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
	File     string   `json:"file,omitempty" yaml:"file,omitempty"`
	Line     int      `json:"line,omitempty" yaml:"line,omitempty"`     // 1-based, 0 if unknown
	Column   int      `json:"column,omitempty" yaml:"column,omitempty"` // 1-based, 0 if unknown
	Source   string   `json:"source,omitempty" yaml:"source,omitempty"` // Pass that produced it
}

// Warning builds a warning diagnostic.
func Warning(file string, line int, source, msg string) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Message: msg, File: file, Line: line, Source: source}
}

// Info builds an informational diagnostic.
func Info(file string, line int, source, msg string) Diagnostic {
	return Diagnostic{Severity: SeverityInfo, Message: msg, File: file, Line: line, Source: source}
}

// DetailLevel controls which of the expensive passes run.
type DetailLevel string

const (
	DetailBasic         DetailLevel = "basic"         // Entities and constraints only
	DetailDetailed      DetailLevel = "detailed"      // Adds CFG and complexity
	DetailComprehensive DetailLevel = "comprehensive" // Adds data flow
)

// AtLeast reports whether d includes the passes of other.
func (d DetailLevel) AtLeast(other DetailLevel) bool {
	return d.rank() >= other.rank()
}

func (d DetailLevel) rank() int {
	switch d {
	case DetailComprehensive:
		return 2
	case DetailDetailed:
		return 1
	default:
		return 0
	}
}

// AnalysisOptions selects the passes an analysis request runs.
type AnalysisOptions struct {
	Preprocessor  bool        `json:"preprocessor" yaml:"preprocessor"`
	Variables     bool        `json:"variables" yaml:"variables"`
	Functions     bool        `json:"functions" yaml:"functions"`
	Relationships bool        `json:"relationships" yaml:"relationships"`
	Constraints   bool        `json:"constraints" yaml:"constraints"`
	Detail        DetailLevel `json:"detail" yaml:"detail"`
}

// DefaultAnalysisOptions enables every pass at the detailed level.
func DefaultAnalysisOptions() AnalysisOptions {
	return AnalysisOptions{
		Preprocessor:  true,
		Variables:     true,
		Functions:     true,
		Relationships: true,
		Constraints:   true,
		Detail:        DetailDetailed,
	}
}

// Project is the unit of work handed to the engine by its callers.
type Project struct {
	Name         string            `json:"name" yaml:"name"`
	Root         string            `json:"root" yaml:"root"`
	SourceFiles  []string          `json:"source_files" yaml:"source_files"`
	IncludePaths []string          `json:"include_paths,omitempty" yaml:"include_paths"`
	ActiveMacros map[string]string `json:"active_macros,omitempty" yaml:"active_macros"`
}

// FileModel is the entity model extracted from a single source file.
type FileModel struct {
	Path string `json:"path"`
	// Lines are the compiled lines: disabled regions and conditional
	// directives are blank.
	Lines        []string           `json:"-"`
	Definitions  []Definition       `json:"definitions"`
	Conditionals *DirectiveArena    `json:"conditionals"`
	Includes     []IncludeDirective `json:"includes"`
	Typedefs     map[string]string  `json:"typedefs,omitempty"` // Alias to written type
	Variables    []Variable         `json:"variables"`
	Functions    []Function         `json:"functions"`
	Diagnostics  []Diagnostic       `json:"diagnostics,omitempty"`
}

// FindFunction returns the function named name, or nil.
func (m *FileModel) FindFunction(name string) *Function {
	for i := range m.Functions {
		if m.Functions[i].Name == name {
			return &m.Functions[i]
		}
	}
	return nil
}

// FindVariable returns the first variable named name, preferring one scoped
// to function fn when fn is non-empty.
func (m *FileModel) FindVariable(name, fn string) *Variable {
	var fallback *Variable
	for i := range m.Variables {
		v := &m.Variables[i]
		if v.Name != name {
			continue
		}
		if fn == "" || v.Function == fn {
			return v
		}
		if fallback == nil && v.Function == "" {
			fallback = v
		}
	}
	return fallback
}

// Globals returns the file-scope variables.
func (m *FileModel) Globals() []Variable {
	var out []Variable
	for _, v := range m.Variables {
		if v.Scope.IsFileScope() {
			out = append(out, v)
		}
	}
	return out
}
