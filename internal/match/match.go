// SPDX-License-Identifier: MIT
// Package match implements glob matching of repository-relative paths
// against removal and keep pattern lists.
package match

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultRemovePatterns returns the built-in removal list: build output,
// dependency directories, editor droppings, and common binary artifacts.
func DefaultRemovePatterns() []string {
	return []string{
		"target/",
		"build/",
		"dist/",
		"out/",
		"node_modules/",
		"vendor/",
		".venv/",
		"venv/",
		"*.jar",
		"*.war",
		"*.class",
		"*.pyc",
		"__pycache__/",
		".vscode/",
		".idea/",
		"*.swp",
		"*.swo",
		".DS_Store",
		"Thumbs.db",
		"*.log",
		"*.tmp",
		"*.temp",
		"*.bak",
		"*.zip",
		"*.rar",
	}
}

// FilePatterns filters a pattern list down to extension globs like
// "*.jar". Only these have a per-file history footprint the rewrite
// tooling can target; directory and bare-name patterns are dropped.
func FilePatterns(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		if strings.HasPrefix(p, "*.") {
			out = append(out, p)
		}
	}
	return out
}

// MatchesAny reports whether the base name of p matches any of the
// given glob patterns.
func MatchesAny(patterns []string, p string) bool {
	base := path.Base(filepath.ToSlash(p))
	for _, pattern := range patterns {
		if matches(filepath.ToSlash(pattern), base) {
			return true
		}
	}
	return false
}

// Matcher decides whether a repository-relative path should be removed.
// Keep patterns are consulted first and veto removal unconditionally.
// Paths under .git are never removable regardless of patterns.
type Matcher struct {
	remove []string
	keep   []string
}

// New builds a Matcher from removal and keep pattern lists.
func New(remove, keep []string) Matcher {
	return Matcher{remove: remove, keep: keep}
}

// ShouldRemove reports whether the entry at relPath (relative to the
// repository root, either separator style) matches the removal list.
// Patterns are checked against the full relative path and against the
// base name, so extension patterns like "*.log" apply at any depth.
// Directory entries additionally match trailing-slash patterns like
// "node_modules/".
func (m Matcher) ShouldRemove(relPath string, isDir bool) bool {
	rel := filepath.ToSlash(relPath)
	if rel == "" || rel == "." {
		return false
	}
	base := path.Base(rel)
	if base == ".git" || strings.HasPrefix(rel, ".git/") || strings.Contains(rel, "/.git/") {
		return false
	}

	for _, pattern := range m.keep {
		if matchAny(pattern, rel, base, isDir) {
			return false
		}
	}
	for _, pattern := range m.remove {
		if matchAny(pattern, rel, base, isDir) {
			return true
		}
	}
	return false
}

func matchAny(pattern, rel, base string, isDir bool) bool {
	pattern = filepath.ToSlash(pattern)
	if strings.HasSuffix(pattern, "/") {
		if !isDir {
			return false
		}
		return matches(pattern, base+"/") || matches(pattern, rel+"/")
	}
	return matches(pattern, rel) || matches(pattern, base)
}

func matches(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	if err != nil {
		return false
	}
	return ok
}
