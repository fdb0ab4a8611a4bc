// Package discovery walks a local directory tree to find git repositories
// for publishing. A directory counts as a repository when it carries git
// metadata; nothing below a found repository is visited.
package discovery

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Repo is one repository found under the scan root.
type Repo struct {
	// Path is the absolute repository root.
	Path string
	// RelPath is the path relative to the scan root, "." when the root
	// itself is a repository.
	RelPath string
	// Bare reports a repository without a working tree.
	Bare bool
}

// Options configures a scan.
type Options struct {
	// Root is the directory to scan.
	Root string
	// Exclude holds glob patterns; matching directories are skipped
	// entirely.
	Exclude []string
}

// Scan walks the root and returns every repository found, in walk order.
// Excluded directories and .git directories are not descended into.
func Scan(ctx context.Context, opts Options) ([]Repo, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}

	var repos []Repo
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return fs.SkipDir
		}
		if MatchesExclude(path, opts.Exclude) {
			return fs.SkipDir
		}

		found, bare := detectRepo(path)
		if !found {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return rerr
		}
		repos = append(repos, Repo{Path: path, RelPath: rel, Bare: bare})
		return fs.SkipDir
	})
	if err != nil {
		return nil, err
	}
	return repos, nil
}

// MatchesExclude checks whether a path matches any of the given exclude
// glob patterns.
func MatchesExclude(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	slashPath := filepath.ToSlash(path)
	for _, pattern := range patterns {
		match, err := doublestar.Match(filepath.ToSlash(pattern), slashPath)
		if err != nil {
			continue
		}
		if match {
			return true
		}
	}
	return false
}

// detectRepo reports whether dir is a repository root. A .git entry of
// any kind marks a working-copy repository; a HEAD file next to an
// objects directory marks a bare one.
func detectRepo(dir string) (found, bare bool) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true, false
	}
	if info, err := os.Stat(filepath.Join(dir, "HEAD")); err == nil && info.Mode().IsRegular() {
		if info, err := os.Stat(filepath.Join(dir, "objects")); err == nil && info.IsDir() {
			return true, true
		}
	}
	return false, false
}
