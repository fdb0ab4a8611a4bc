// SPDX-License-Identifier: MIT
package gitx

import (
	"context"
	"strconv"
	"strings"
)

// FilterRepoAvailable reports whether the git-filter-repo extension is
// installed and answers to `git filter-repo --version`.
func FilterRepoAvailable(ctx context.Context, r Runner) bool {
	_, err := r.Run(ctx, "", "filter-repo", "--version")
	return err == nil
}

// FilterRepoPurge rewrites the full history of the repository at dir,
// deleting every path matching one of the glob patterns. This is
// destructive: it rewrites all refs and drops the origin remote.
func FilterRepoPurge(ctx context.Context, r Runner, dir string, patterns []string) error {
	args := []string{"filter-repo", "--invert-paths"}
	for _, p := range patterns {
		args = append(args, "--path-glob", p)
	}
	args = append(args, "--force")
	out, err := r.Run(ctx, dir, args...)
	if err != nil {
		return opError("git filter-repo", out, err)
	}
	return nil
}

// CountCommits returns the number of commits reachable from ref.
func CountCommits(ctx context.Context, r Runner, dir, ref string) (int, error) {
	out, err := r.Run(ctx, dir, "rev-list", "--count", ref)
	if err != nil {
		return 0, opError("git rev-list", out, err)
	}
	return ParseCount(out), nil
}

// HistoryFilePaths lists every file path touched by commits reachable
// from ref, one entry per occurrence.
func HistoryFilePaths(ctx context.Context, r Runner, dir, ref string) ([]string, error) {
	out, err := r.Run(ctx, dir, "log", "--name-only", "--pretty=format:", ref)
	if err != nil {
		return nil, opError("git log", out, err)
	}
	return ParseNameOnlyLog(out), nil
}

// BlobSize returns the size in bytes of the blob at rev:path.
func BlobSize(ctx context.Context, r Runner, dir, rev, path string) (int64, error) {
	out, err := r.Run(ctx, dir, "cat-file", "-s", rev+":"+path)
	if err != nil {
		return 0, opError("git cat-file", out, err)
	}
	n, perr := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if perr != nil {
		return 0, perr
	}
	return n, nil
}
