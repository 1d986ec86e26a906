package scanner

import "strings"

// Kind classifies a discovered C file.
type Kind string

const (
	KindSource Kind = "source"
	KindHeader Kind = "header"
)

// kinds maps the extensions the scanner collects to their kind.
var kinds = map[string]Kind{
	".c":   KindSource,
	".i":   KindSource, // preprocessed source
	".inc": KindHeader,
	".h":   KindHeader,
}

// DetectKind returns the kind of a file extension, or "" when the scanner
// does not collect it. Uppercase ".C" and ".H" are accepted.
func DetectKind(ext string) Kind {
	return kinds[strings.ToLower(ext)]
}
