// Package gitx provides helpers for executing git commands and parsing
// their output. It shells out to the installed git binary.
package gitx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/skaphos/labmirror/internal/model"
)

// Runner executes git commands in a given repo directory.
// This interface allows mocking in tests.
type Runner interface {
	// Run executes a git command in the given directory and returns
	// combined stdout/stderr output.
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// GitRunner is the default Runner implementation that shells out to git.
type GitRunner struct {
	// GitBin is the path to the git binary. Defaults to "git".
	GitBin string
}

// Run executes a git command.
func (g *GitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := g.GitBin
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// opError attaches the command output to a failed git invocation so error
// classification can see the actual git message.
func opError(op, out string, err error) error {
	if strings.TrimSpace(out) == "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %s", op, err, out)
}

// IsRepo checks whether the given path is inside a git working tree.
func IsRepo(ctx context.Context, r Runner, dir string) (bool, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(out) == "true", nil
}

// Head returns the current branch and detached state.
func Head(ctx context.Context, r Runner, dir string) (model.Head, error) {
	out, err := r.Run(ctx, dir, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		// Detached HEAD, try to get the commit hash instead.
		hash, hashErr := r.Run(ctx, dir, "rev-parse", "--short", "HEAD")
		if hashErr != nil {
			return model.Head{Detached: true}, nil
		}
		return model.Head{
			Branch:   strings.TrimSpace(hash),
			Detached: true,
		}, nil
	}
	return model.Head{
		Branch:   strings.TrimSpace(out),
		Detached: false,
	}, nil
}

// Clone clones url into dest. The parent directory must already exist.
func Clone(ctx context.Context, r Runner, url, dest string) error {
	out, err := r.Run(ctx, "", "clone", url, dest)
	if err != nil {
		return opError("git clone", out, err)
	}
	return nil
}

// FetchPrune fetches all remotes with prune and submodule recursion disabled.
func FetchPrune(ctx context.Context, r Runner, dir string) error {
	out, err := r.Run(ctx, dir, "-c", "fetch.recurseSubmodules=false", "fetch", "--all", "--prune", "--no-recurse-submodules")
	if err != nil {
		return opError("git fetch", out, err)
	}
	return nil
}

// LocalBranches lists local branch names.
func LocalBranches(ctx context.Context, r Runner, dir string) ([]string, error) {
	out, err := r.Run(ctx, dir, "for-each-ref", "--format=%(refname:short)", "refs/heads")
	if err != nil {
		return nil, opError("git for-each-ref", out, err)
	}
	return ParseBranches(out), nil
}

// RemoteBranches lists branch names on the given remote, stripped of the
// remote prefix. The symbolic HEAD entry is excluded.
func RemoteBranches(ctx context.Context, r Runner, dir, remote string) ([]string, error) {
	out, err := r.Run(ctx, dir, "for-each-ref", "--format=%(refname:short)", "refs/remotes/"+remote)
	if err != nil {
		return nil, opError("git for-each-ref", out, err)
	}
	return ParseRemoteBranches(out, remote), nil
}

// Checkout switches the working tree to an existing branch.
func Checkout(ctx context.Context, r Runner, dir, branch string) error {
	out, err := r.Run(ctx, dir, "checkout", branch)
	if err != nil {
		return opError("git checkout", out, err)
	}
	return nil
}

// CheckoutTrack creates a local branch tracking remote/branch and checks
// it out.
func CheckoutTrack(ctx context.Context, r Runner, dir, remote, branch string) error {
	out, err := r.Run(ctx, dir, "checkout", "-b", branch, remote+"/"+branch)
	if err != nil {
		return opError("git checkout -b", out, err)
	}
	return nil
}

// PullFFOnly fast-forwards the current branch from remote/branch.
// Diverged branches fail instead of merging.
func PullFFOnly(ctx context.Context, r Runner, dir, remote, branch string) error {
	out, err := r.Run(ctx, dir, "pull", "--ff-only", remote, branch)
	if err != nil {
		return opError("git pull --ff-only", out, err)
	}
	return nil
}

// WorktreeStatus returns the working tree dirty/staged/unstaged/untracked counts.
func WorktreeStatus(ctx context.Context, r Runner, dir string) (*model.Worktree, error) {
	out, err := r.Run(ctx, dir, "status", "--porcelain=v1")
	if err != nil {
		return nil, opError("git status", out, err)
	}
	return ParsePorcelainStatus(out), nil
}

// StageAll stages every change in the working tree, including deletions
// and untracked files.
func StageAll(ctx context.Context, r Runner, dir string) error {
	out, err := r.Run(ctx, dir, "add", "-A")
	if err != nil {
		return opError("git add", out, err)
	}
	return nil
}

// HasStagedChanges reports whether the index differs from HEAD.
func HasStagedChanges(ctx context.Context, r Runner, dir string) (bool, error) {
	out, err := r.Run(ctx, dir, "diff", "--cached", "--name-only")
	if err != nil {
		return false, opError("git diff --cached", out, err)
	}
	return strings.TrimSpace(out) != "", nil
}

// Commit commits staged changes with the given message.
func Commit(ctx context.Context, r Runner, dir, message string) error {
	out, err := r.Run(ctx, dir, "commit", "-m", message)
	if err != nil {
		return opError("git commit", out, err)
	}
	return nil
}

// Push pushes ref to remote. Ref may be a branch name or an explicit
// src:dst refspec.
func Push(ctx context.Context, r Runner, dir, remote, ref string) error {
	out, err := r.Run(ctx, dir, "push", remote, ref)
	if err != nil {
		return opError("git push", out, err)
	}
	return nil
}

// ForcePush force-pushes ref to remote.
func ForcePush(ctx context.Context, r Runner, dir, remote, ref string) error {
	out, err := r.Run(ctx, dir, "push", "--force", remote, ref)
	if err != nil {
		return opError("git push --force", out, err)
	}
	return nil
}

// RemoveCachedPattern untracks paths matching pattern from the index
// without touching the working tree. A pattern that matches nothing is
// not an error. The bool reports whether any entry was actually removed.
func RemoveCachedPattern(ctx context.Context, r Runner, dir, pattern string) (bool, error) {
	out, err := r.Run(ctx, dir, "rm", "--cached", "-r", "-f", pattern)
	if err != nil {
		if strings.Contains(out, "did not match any files") {
			return false, nil
		}
		return false, opError("git rm --cached", out, err)
	}
	return strings.TrimSpace(out) != "", nil
}

// RemoteURL returns the URL of the named remote.
func RemoteURL(ctx context.Context, r Runner, dir, name string) (string, error) {
	out, err := r.Run(ctx, dir, "remote", "get-url", name)
	if err != nil {
		return "", opError("git remote get-url", out, err)
	}
	return strings.TrimSpace(out), nil
}

// HasRemote reports whether the named remote exists.
func HasRemote(ctx context.Context, r Runner, dir, name string) bool {
	_, err := r.Run(ctx, dir, "remote", "get-url", name)
	return err == nil
}

// AddRemote adds a named remote.
func AddRemote(ctx context.Context, r Runner, dir, name, url string) error {
	out, err := r.Run(ctx, dir, "remote", "add", name, url)
	if err != nil {
		return opError("git remote add", out, err)
	}
	return nil
}

// RemoveRemote removes a named remote.
func RemoveRemote(ctx context.Context, r Runner, dir, name string) error {
	out, err := r.Run(ctx, dir, "remote", "remove", name)
	if err != nil {
		return opError("git remote remove", out, err)
	}
	return nil
}
