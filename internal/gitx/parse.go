package gitx

import (
	"strconv"
	"strings"

	"github.com/skaphos/labmirror/internal/model"
)

// ParseBranches parses newline-separated branch names from
// `git for-each-ref --format=%(refname:short) refs/heads`.
func ParseBranches(output string) []string {
	if strings.TrimSpace(output) == "" {
		return nil
	}
	var branches []string
	for _, line := range strings.Split(output, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		branches = append(branches, name)
	}
	return branches
}

// ParseRemoteBranches parses the short refs under refs/remotes/<remote>,
// dropping the symbolic HEAD entry and the remote prefix. Lines that do
// not belong to the remote are skipped.
func ParseRemoteBranches(output, remote string) []string {
	if strings.TrimSpace(output) == "" {
		return nil
	}
	prefix := remote + "/"
	var branches []string
	for _, line := range strings.Split(output, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.Contains(name, "->") {
			continue
		}
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		name = strings.TrimPrefix(name, prefix)
		if name == "HEAD" || name == "" {
			continue
		}
		branches = append(branches, name)
	}
	return branches
}

// ParsePorcelainStatus parses the output of `git status --porcelain=v1`
// into a Worktree struct.
func ParsePorcelainStatus(output string) *model.Worktree {
	wt := &model.Worktree{}
	lines := strings.Split(output, "\n")
	for _, line := range lines {
		if len(line) < 2 {
			continue
		}
		x := line[0]
		y := line[1]

		if x == '?' && y == '?' {
			wt.Untracked++
			continue
		}
		if x != ' ' && x != '?' {
			wt.Staged++
		}
		if y != ' ' && y != '?' {
			wt.Unstaged++
		}
	}
	wt.Dirty = wt.Staged > 0 || wt.Unstaged > 0 || wt.Untracked > 0
	return wt
}

// ParseCount parses the single number printed by `git rev-list --count`.
func ParseCount(output string) int {
	n, err := strconv.Atoi(strings.TrimSpace(output))
	if err != nil {
		return 0
	}
	return n
}

// ParseNameOnlyLog parses `git log --name-only --pretty=format:` output
// into the listed file paths, one entry per occurrence. Blank separator
// lines are dropped; duplicates are preserved so callers can count how
// often a path appears across commits.
func ParseNameOnlyLog(output string) []string {
	if strings.TrimSpace(output) == "" {
		return nil
	}
	var paths []string
	for _, line := range strings.Split(output, "\n") {
		p := strings.TrimSpace(line)
		if p == "" {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}
