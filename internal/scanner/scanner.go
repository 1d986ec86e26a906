// Package scanner discovers C sources and headers under a project root.
// It respects .ctfignore files with gitignore-style patterns and the
// configured exclude patterns.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo represents information about a discovered file.
type FileInfo struct {
	Path     string // Relative path from root, slash separated
	FullPath string // Absolute path
	Kind     Kind
	Size     int64 // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	FollowSymlinks  bool     // Follow symlinks (within root only)
	DefaultExcludes []string // Directory names never entered
	IgnoreFileName  string   // Name of the ignore file (default: .ctfignore)
	// Exclude holds extra gitignore-style patterns, e.g. from configuration.
	Exclude []string
	// Headers includes .h files in the result.
	Headers bool
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		FollowSymlinks: false,
		IgnoreFileName: ".ctfignore",
		Headers:        true,
		DefaultExcludes: []string{
			".git",
			".hg",
			".svn",
			"CVS",
			"build",
			"cmake-build-debug",
			"cmake-build-release",
			"out",
			"obj",
			"bin",
			".ctf",
		},
	}
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
	root string
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = ".ctfignore"
	}
	return &Scanner{opts: opts}
}

// Scan recursively scans the directory at root and returns the C files
// found, sorted by relative path. A .ctfignore file applies to the
// directory holding it and everything below.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scanning %s: not a directory", root)
	}
	s.root = absRoot

	var rules Rules
	for _, p := range s.opts.Exclude {
		if r, ok := ParseRule(p, ""); ok {
			rules = append(rules, r)
		}
	}

	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && s.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			base := rel
			if base == "." {
				base = ""
			}
			local, err := s.loadRules(path, base)
			if err != nil {
				return fmt.Errorf("loading %s: %w", filepath.Join(path, s.opts.IgnoreFileName), err)
			}
			rules = append(rules, local...)
			return nil
		}

		if s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		kind := DetectKind(filepath.Ext(path))
		if kind == "" || (kind == KindHeader && !s.opts.Headers) {
			return nil
		}
		if rules.Ignored(rel) {
			return nil
		}

		var fi os.FileInfo
		if d.Type()&fs.ModeSymlink != 0 {
			if !s.opts.FollowSymlinks {
				return nil
			}
			target, ok := s.resolveSymlink(path)
			if !ok {
				return nil
			}
			fi = target
		} else if fi, err = d.Info(); err != nil {
			return nil
		}

		files = append(files, FileInfo{
			Path:     rel,
			FullPath: path,
			Kind:     kind,
			Size:     fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// resolveSymlink follows a file symlink that stays within the root.
func (s *Scanner) resolveSymlink(path string) (os.FileInfo, bool) {
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, false
	}
	realAbs, err := filepath.Abs(realPath)
	if err != nil {
		return nil, false
	}
	if !strings.HasPrefix(realAbs, s.root+string(filepath.Separator)) {
		return nil, false
	}
	target, err := os.Stat(realPath)
	if err != nil || target.IsDir() {
		return nil, false
	}
	return target, true
}

// skipDir reports whether the walk must not enter the directory name.
func (s *Scanner) skipDir(name string) bool {
	if s.opts.SkipHidden && strings.HasPrefix(name, ".") {
		return true
	}
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadRules reads the ignore file in dir, if any. base is dir relative to
// the scan root.
func (s *Scanner) loadRules(dir, base string) (Rules, error) {
	f, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRules(f, base)
}

// Scan scans root with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}

// Sources returns the paths of the .c files in files.
func Sources(files []FileInfo) []string {
	var out []string
	for _, f := range files {
		if f.Kind == KindSource {
			out = append(out, f.FullPath)
		}
	}
	return out
}
