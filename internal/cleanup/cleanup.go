// SPDX-License-Identifier: MIT
// Package cleanup strips unwanted artifacts from mirrored working
// copies. The engine removes matching paths from the working tree,
// keeps .gitignore in step, untracks artifacts from the index, and can
// purge them from repository history entirely.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/skaphos/labmirror/internal/gitx"
	"github.com/skaphos/labmirror/internal/match"
)

// gitignoreMarker labels the block appended to .gitignore.
const gitignoreMarker = "# Cleanup patterns added by labmirror"

// gitignoreLines is the ignore block derived from the artifact
// patterns. Lines already present in a repository's .gitignore are not
// re-added; blank entries only shape the block and are never checked.
var gitignoreLines = []string{
	"# Archive and Compressed Files",
	"*.zip",
	"*.rar",
	"*.tar",
	"*.tar.gz",
	"*.tar.bz2",
	"*.7z",
	"*.gz",
	"*.bz2",
	"*.xz",
	"",
	"# Build Artifacts and Compiled Files",
	"*.jar",
	"*.war",
	"*.class",
	"*.o",
	"*.so",
	"*.exe",
	"*.dll",
	"*.dylib",
	"",
	"# Temporary and Backup Files",
	"*.tmp",
	"*.temp",
	"*.bak",
	"*.backup",
}

// cachePatterns is the fixed artifact list untracked from the index so
// the ignore rules take effect for files committed before cleanup ran.
var cachePatterns = []string{
	"*.zip", "*.rar", "*.tar", "*.tar.gz", "*.tar.bz2", "*.7z", "*.gz", "*.bz2", "*.xz",
	"*.jar", "*.war", "*.class", "*.o", "*.so", "*.exe", "*.dll", "*.dylib",
	"*.tmp", "*.temp", "*.bak", "*.backup",
}

// Options configures an Engine.
type Options struct {
	// DryRun reports what would change without touching the repository.
	DryRun bool
	// AutoCommit commits and pushes cleanup changes after each branch.
	AutoCommit bool
	// History enables the destructive history rewrite stage.
	History bool
	// Patterns is the removal list for working tree entries.
	Patterns []string
	// KeepPatterns vetoes removal for matching entries.
	KeepPatterns []string
	// CommitMessage is used for auto-commits.
	CommitMessage string
}

// Engine applies the cleanup stages to one repository at a time.
// Methods are not safe for concurrent use on the same repository.
type Engine struct {
	runner  gitx.Runner
	matcher match.Matcher
	opts    Options
	log     *slog.Logger
}

// NewEngine builds an Engine. A nil runner shells out to git, a nil
// logger falls back to slog.Default().
func NewEngine(runner gitx.Runner, opts Options, log *slog.Logger) *Engine {
	if runner == nil {
		runner = &gitx.GitRunner{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		runner:  runner,
		matcher: match.New(opts.Patterns, opts.KeepPatterns),
		opts:    opts,
		log:     log,
	}
}

// Clean walks the working tree and removes every entry the pattern
// matcher classifies as removable. The .git directory is never entered.
// Matched directories go recursively and are not descended into. In
// dry-run mode entries are only reported. Returns the removed paths
// relative to the repository root.
func (e *Engine) Clean(ctx context.Context, repoPath string) ([]string, error) {
	var removed []string
	err := filepath.WalkDir(repoPath, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return fs.SkipDir
		}
		rel, relErr := filepath.Rel(repoPath, p)
		if relErr != nil || rel == "." {
			return nil
		}
		if !e.matcher.ShouldRemove(rel, d.IsDir()) {
			return nil
		}
		if e.opts.DryRun {
			e.log.Info("would remove", "path", rel)
			removed = append(removed, rel)
		} else if rmErr := os.RemoveAll(p); rmErr != nil {
			e.log.Warn("remove failed", "path", rel, "error", rmErr)
		} else {
			e.log.Debug("removed", "path", rel)
			removed = append(removed, rel)
		}
		if d.IsDir() {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("clean %s: %w", repoPath, err)
	}
	return removed, nil
}

// UpdateGitignore appends the artifact ignore block to the repository's
// .gitignore. Only lines not already present are added, under a marker
// comment, so repeated runs never duplicate the block. Reports whether
// the file was modified (or would be, in dry-run mode).
func (e *Engine) UpdateGitignore(repoPath string) (bool, error) {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	content := ""
	data, err := os.ReadFile(gitignorePath)
	if err == nil {
		content = string(data)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("read %s: %w", gitignorePath, err)
	}

	var missing []string
	for _, line := range gitignoreLines {
		if line != "" && !strings.Contains(content, line) {
			missing = append(missing, line)
		}
	}
	if len(missing) == 0 {
		return false, nil
	}
	if e.opts.DryRun {
		e.log.Info("would add gitignore entries", "count", len(missing))
		return true, nil
	}

	var b strings.Builder
	if content != "" && !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n" + gitignoreMarker + "\n")
	for _, line := range missing {
		b.WriteString(line + "\n")
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", gitignorePath, err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return false, fmt.Errorf("update %s: %w", gitignorePath, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("update %s: %w", gitignorePath, err)
	}
	e.log.Debug("gitignore updated", "added", len(missing))
	return true, nil
}

// RemoveFromIndex untracks committed artifacts matching the fixed cache
// pattern list so the new ignore rules apply to them. Files stay on
// disk. Patterns matching nothing are fine; other per-pattern failures
// are joined into the returned error without stopping the sweep.
// Reports whether the index changed. Dry-run mode does nothing.
func (e *Engine) RemoveFromIndex(ctx context.Context, repoPath string) (bool, error) {
	if e.opts.DryRun {
		return false, nil
	}
	modified := false
	var errs []error
	for _, pattern := range cachePatterns {
		removed, err := gitx.RemoveCachedPattern(ctx, e.runner, repoPath, pattern)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if removed {
			e.log.Debug("untracked from index", "pattern", pattern)
			modified = true
		}
	}
	return modified, errors.Join(errs...)
}

// CommitAndPush stages everything, commits with the configured message,
// and pushes branch to origin. An empty staged diff skips the commit.
func (e *Engine) CommitAndPush(ctx context.Context, repoPath, branch string) error {
	if err := gitx.StageAll(ctx, e.runner, repoPath); err != nil {
		return err
	}
	staged, err := gitx.HasStagedChanges(ctx, e.runner, repoPath)
	if err != nil {
		return err
	}
	if !staged {
		e.log.Debug("no staged cleanup changes", "repo", repoPath)
		return nil
	}
	if err := gitx.Commit(ctx, e.runner, repoPath, e.opts.CommitMessage); err != nil {
		return err
	}
	if err := gitx.Push(ctx, e.runner, repoPath, "origin", branch); err != nil {
		return err
	}
	e.log.Info("cleanup changes pushed", "repo", repoPath, "branch", branch)
	return nil
}

// CleanBranch runs the per-branch stages against the currently
// checked-out branch: working tree removal, .gitignore update, index
// cleanup, and, when auto-commit is on and anything changed, a commit
// and push. Gitignore and index failures degrade to warnings so one
// stage cannot abort the rest.
func (e *Engine) CleanBranch(ctx context.Context, repoPath, branch string) error {
	removed, err := e.Clean(ctx, repoPath)
	if err != nil {
		return err
	}
	ignoreChanged, err := e.UpdateGitignore(repoPath)
	if err != nil {
		e.log.Warn("gitignore update failed", "repo", repoPath, "error", err)
	}
	indexChanged, err := e.RemoveFromIndex(ctx, repoPath)
	if err != nil {
		e.log.Warn("index cleanup failed", "repo", repoPath, "error", err)
	}
	if e.opts.DryRun || !e.opts.AutoCommit {
		return nil
	}
	if len(removed) == 0 && !ignoreChanged && !indexChanged {
		return nil
	}
	if err := e.CommitAndPush(ctx, repoPath, branch); err != nil {
		e.log.Warn("cleanup commit failed", "repo", repoPath, "branch", branch, "error", err)
	}
	return nil
}
