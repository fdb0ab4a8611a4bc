package cleanup

import (
	"context"
	"errors"
	"fmt"

	"github.com/skaphos/labmirror/internal/gitx"
	"github.com/skaphos/labmirror/internal/match"
)

// ErrFilterRepoMissing indicates the git-filter-repo extension is not
// installed, so history cannot be rewritten.
var ErrFilterRepoMissing = errors.New("git-filter-repo is not installed")

// FileStat describes one file found in branch history.
type FileStat struct {
	// Occurrences counts how many commits touched the file.
	Occurrences int
	// SizeBytes is the blob size at the branch tip, 0 when the file no
	// longer exists there.
	SizeBytes int64
}

// BranchHistory summarizes the matching files reachable from one branch.
type BranchHistory struct {
	// Commits is the number of commits reachable from the branch head.
	Commits int
	// Files maps each matched path to its occurrence count and size.
	Files map[string]FileStat
	// SizeBytes sums the sizes of the matched files.
	SizeBytes int64
}

// HistoryAnalysis is the read-only report produced by AnalyzeHistory.
type HistoryAnalysis struct {
	// Branches maps branch name to findings. Branches without matching
	// files are omitted.
	Branches map[string]BranchHistory
	// TotalCommits sums the commit counts of the reported branches.
	TotalCommits int
	// UniqueFiles counts distinct matched paths across all branches.
	UniqueFiles int
	// SizeBytes sums the per-branch size estimates. A file shared by
	// several branches counts once per branch, so this is an upper
	// bound, not an exact reclaim figure.
	SizeBytes int64
}

// RewriteResult reports a completed history rewrite.
type RewriteResult struct {
	// BranchesPushed counts branches force-pushed successfully.
	BranchesPushed int
	// PushFailures counts branches the remote rejected.
	PushFailures int
}

// AnalyzeHistory scans every remote branch for history entries matching
// the configured file patterns and reports what a rewrite would remove.
// It never mutates the repository. Branch-level git failures are logged
// and the branch skipped.
func (e *Engine) AnalyzeHistory(ctx context.Context, repoPath string) (HistoryAnalysis, error) {
	analysis := HistoryAnalysis{Branches: map[string]BranchHistory{}}
	filePatterns := match.FilePatterns(e.opts.Patterns)
	if len(filePatterns) == 0 {
		return analysis, nil
	}

	branches, err := gitx.RemoteBranches(ctx, e.runner, repoPath, "origin")
	if err != nil {
		return analysis, err
	}

	unique := map[string]struct{}{}
	for _, branch := range branches {
		ref := "origin/" + branch
		commits, err := gitx.CountCommits(ctx, e.runner, repoPath, ref)
		if err != nil {
			e.log.Warn("commit count failed", "branch", branch, "error", err)
		}
		paths, err := gitx.HistoryFilePaths(ctx, e.runner, repoPath, ref)
		if err != nil {
			e.log.Warn("history listing failed", "branch", branch, "error", err)
			continue
		}

		files := map[string]FileStat{}
		for _, p := range paths {
			if !match.MatchesAny(filePatterns, p) {
				continue
			}
			stat := files[p]
			stat.Occurrences++
			files[p] = stat
		}
		if len(files) == 0 {
			continue
		}

		// Size is best-effort. A file purged from the tip but still in
		// history reads as 0.
		var size int64
		for p, stat := range files {
			n, _ := gitx.BlobSize(ctx, e.runner, repoPath, "HEAD", p)
			stat.SizeBytes = n
			files[p] = stat
			size += n
			unique[p] = struct{}{}
		}

		analysis.Branches[branch] = BranchHistory{
			Commits:   commits,
			Files:     files,
			SizeBytes: size,
		}
		analysis.TotalCommits += commits
		analysis.SizeBytes += size
	}
	analysis.UniqueFiles = len(unique)
	return analysis, nil
}

// RewriteHistory purges every configured file pattern from the full
// history of the repository and force-pushes all local branches.
// Returns ErrFilterRepoMissing when git-filter-repo is not installed.
// Push failures are counted in the result rather than returned.
func (e *Engine) RewriteHistory(ctx context.Context, repoPath string) (RewriteResult, error) {
	var res RewriteResult
	filePatterns := match.FilePatterns(e.opts.Patterns)
	if len(filePatterns) == 0 {
		e.log.Debug("no file patterns, skipping history rewrite", "repo", repoPath)
		return res, nil
	}
	if !gitx.FilterRepoAvailable(ctx, e.runner) {
		return res, ErrFilterRepoMissing
	}

	originURL, err := gitx.RemoteURL(ctx, e.runner, repoPath, "origin")
	if err != nil {
		return res, fmt.Errorf("resolve origin url: %w", err)
	}

	e.log.Info("rewriting history", "repo", repoPath, "patterns", len(filePatterns))
	if err := gitx.FilterRepoPurge(ctx, e.runner, repoPath, filePatterns); err != nil {
		return res, err
	}

	// filter-repo drops the origin remote. Re-add it so the force-pushes
	// have somewhere to go; the remove covers versions that leave it.
	_ = gitx.RemoveRemote(ctx, e.runner, repoPath, "origin")
	if err := gitx.AddRemote(ctx, e.runner, repoPath, "origin", originURL); err != nil {
		return res, fmt.Errorf("restore origin: %w", err)
	}

	branches, err := gitx.LocalBranches(ctx, e.runner, repoPath)
	if err != nil {
		return res, err
	}
	for _, branch := range branches {
		if err := gitx.ForcePush(ctx, e.runner, repoPath, "origin", branch); err != nil {
			e.log.Error("force-push failed", "repo", repoPath, "branch", branch, "error", err)
			res.PushFailures++
			continue
		}
		res.BranchesPushed++
	}
	return res, nil
}

// CleanHistory runs the history stage once per repository, after the
// per-branch passes. In dry-run mode it only reports what a rewrite
// would remove. Success requires every branch to force-push cleanly.
func (e *Engine) CleanHistory(ctx context.Context, repoPath string) error {
	if !e.opts.History {
		return nil
	}
	if e.opts.DryRun {
		analysis, err := e.AnalyzeHistory(ctx, repoPath)
		if err != nil {
			return err
		}
		e.reportAnalysis(repoPath, analysis)
		return nil
	}
	res, err := e.RewriteHistory(ctx, repoPath)
	if err != nil {
		return err
	}
	if res.PushFailures > 0 {
		return fmt.Errorf("history rewritten but %d of %d branches failed to force-push",
			res.PushFailures, res.BranchesPushed+res.PushFailures)
	}
	if res.BranchesPushed > 0 {
		e.log.Info("history rewritten", "repo", repoPath, "branches_pushed", res.BranchesPushed)
	}
	return nil
}

func (e *Engine) reportAnalysis(repoPath string, a HistoryAnalysis) {
	if len(a.Branches) == 0 {
		e.log.Info("history scan found nothing to remove", "repo", repoPath)
		return
	}
	e.log.Info("history rewrite would remove files",
		"repo", repoPath,
		"branches", len(a.Branches),
		"commits", a.TotalCommits,
		"unique_files", a.UniqueFiles,
		"estimated_bytes", a.SizeBytes)
	for branch, b := range a.Branches {
		e.log.Info("branch findings",
			"branch", branch,
			"commits", b.Commits,
			"files", len(b.Files),
			"bytes", b.SizeBytes)
	}
}
