package scanner

import (
	"bufio"
	"io"
	"path"
	"path/filepath"
	"strings"
)

// Rule is one gitignore-style line of a .ctfignore file or of the
// configured exclude list.
//
// A rule without a slash matches a name at any depth below its base. A
// rule containing a slash is anchored to its base directory. A trailing
// slash restricts the rule to directories, so it matches every file below
// them. "**" spans any number of directories.
type Rule struct {
	text     string
	base     string // slash-separated directory the rule is relative to, "" for the root
	negate   bool
	dirOnly  bool
	anchored bool
	parts    []string
}

// ParseRule parses line relative to base. It reports false for blank
// lines and comments.
func ParseRule(line, base string) (Rule, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Rule{}, false
	}
	r := Rule{text: line, base: strings.Trim(filepath.ToSlash(base), "/")}

	if rest, ok := strings.CutPrefix(line, "!"); ok {
		r.negate = true
		line = rest
	}
	if rest, ok := strings.CutSuffix(line, "/"); ok {
		r.dirOnly = true
		line = rest
	}
	if rest, ok := strings.CutPrefix(line, "/"); ok {
		r.anchored = true
		line = rest
	}
	if strings.Contains(line, "/") {
		r.anchored = true
	}
	if line == "" {
		return Rule{}, false
	}
	r.parts = strings.Split(line, "/")
	return r, true
}

// String returns the rule as written.
func (r Rule) String() string { return r.text }

// Negated reports whether the rule re-includes what it matches.
func (r Rule) Negated() bool { return r.negate }

// Match reports whether the file at relPath, relative to the scan root,
// is selected by the rule. Negation does not change the result.
func (r Rule) Match(relPath string) bool {
	p := filepath.ToSlash(relPath)
	if r.base != "" {
		rest, ok := strings.CutPrefix(p, r.base+"/")
		if !ok {
			return false
		}
		p = rest
	}

	segs := strings.Split(p, "/")
	if r.dirOnly {
		// Only the directories holding the file can match.
		segs = segs[:len(segs)-1]
	}
	if r.anchored {
		return matchParts(r.parts, segs, r.dirOnly)
	}
	for i := range segs {
		if matchParts(r.parts, segs[i:], r.dirOnly) {
			return true
		}
	}
	return false
}

// matchParts matches pattern parts against path segments. With prefix set
// the parts need only match a leading run of the segments.
func matchParts(parts, segs []string, prefix bool) bool {
	if len(parts) == 0 {
		return prefix || len(segs) == 0
	}
	if parts[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchParts(parts[1:], segs[i:], prefix) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if ok, err := path.Match(parts[0], segs[0]); err != nil || !ok {
		return false
	}
	return matchParts(parts[1:], segs[1:], prefix)
}

// Rules is an ordered rule list. Later rules override earlier ones.
type Rules []Rule

// ReadRules parses every rule of r relative to base.
func ReadRules(r io.Reader, base string) (Rules, error) {
	var rules Rules
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if rule, ok := ParseRule(sc.Text(), base); ok {
			rules = append(rules, rule)
		}
	}
	return rules, sc.Err()
}

// Ignored reports whether relPath is excluded: the last matching rule
// decides, and a path no rule matches is kept.
func (rs Rules) Ignored(relPath string) bool {
	ignored := false
	for _, r := range rs {
		if r.Match(relPath) {
			ignored = !r.negate
		}
	}
	return ignored
}
