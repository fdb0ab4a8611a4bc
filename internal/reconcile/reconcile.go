// SPDX-License-Identifier: MIT
// Package reconcile brings local working copies in line with their
// remote projects: fresh clones for repositories missing locally,
// fetch plus branch-by-branch fast-forwards for existing ones.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/skaphos/labmirror/internal/cleanup"
	"github.com/skaphos/labmirror/internal/gitx"
	"github.com/skaphos/labmirror/internal/model"
	"github.com/skaphos/labmirror/internal/sortutil"
	"github.com/skaphos/labmirror/internal/stats"
	"github.com/skaphos/labmirror/internal/throttle"
)

// Options configures a Reconciler.
type Options struct {
	// SkipExisting leaves repositories that already exist on disk alone.
	SkipExisting bool
	// UseSSH clones over SSH when the project exposes an SSH URL.
	UseSSH bool
	// CloneTimeout bounds the whole reconciliation of one repository.
	CloneTimeout time.Duration
	// MaxRetries is the number of clone retries after a transient failure.
	MaxRetries int
	// RetryDelay is the base delay between clone retries.
	RetryDelay time.Duration
	// Concurrency caps how many repositories reconcile at once.
	Concurrency int
}

// Reconciler clones and updates repositories. Branch operations within
// one repository run strictly sequentially; distinct repositories may
// run concurrently, each owning its working copy path exclusively.
type Reconciler struct {
	runner  gitx.Runner
	cleaner *cleanup.Engine
	pacer   *throttle.Pacer
	tracker *stats.Tracker
	opts    Options
	log     *slog.Logger
}

// New builds a Reconciler. A nil runner shells out to git, a nil
// tracker records into a throwaway, a nil logger falls back to
// slog.Default(). A nil cleaner disables the cleanup stages.
func New(runner gitx.Runner, cleaner *cleanup.Engine, pacer *throttle.Pacer, tracker *stats.Tracker, opts Options, log *slog.Logger) *Reconciler {
	if runner == nil {
		runner = &gitx.GitRunner{}
	}
	if tracker == nil {
		tracker = stats.NewTracker()
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.CloneTimeout <= 0 {
		opts.CloneTimeout = 5 * time.Minute
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Reconciler{
		runner:  runner,
		cleaner: cleaner,
		pacer:   pacer,
		tracker: tracker,
		opts:    opts,
		log:     log,
	}
}

// ReconcileAll reconciles every task with at most Concurrency
// repositories in flight. Results come back sorted by local path.
func (r *Reconciler) ReconcileAll(ctx context.Context, tasks []model.SyncTask) []model.RepoResult {
	if len(tasks) == 0 {
		return nil
	}

	sem := make(chan struct{}, r.opts.Concurrency)
	results := make(chan model.RepoResult, len(tasks))
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task model.SyncTask) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- r.Reconcile(ctx, task)
		}(task)
	}
	wg.Wait()
	close(results)

	out := make([]model.RepoResult, 0, len(tasks))
	for res := range results {
		out = append(out, res)
	}
	sortutil.SortRepoResults(out)
	return out
}

// Reconcile brings one repository up to date and reports what happened.
// Failures are captured in the result, never panicked or propagated, so
// one broken repository cannot abort a run.
func (r *Reconciler) Reconcile(ctx context.Context, task model.SyncTask) model.RepoResult {
	res := model.RepoResult{
		Project: task.Project.Path,
		Path:    task.TargetPath,
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.CloneTimeout)
	defer cancel()

	fail := func(outcome model.RepoOutcome, err error) model.RepoResult {
		res.Outcome = outcome
		res.Error = err.Error()
		res.ErrorClass = gitx.ClassifyError(err)
		r.tracker.Errorf(task.TargetPath, "", "%s", err)
		r.log.Error("reconcile failed", "repo", task.TargetPath, "error", err)
		return res
	}

	info, statErr := os.Stat(task.TargetPath)
	exists := statErr == nil

	created := false
	switch {
	case exists && !info.IsDir():
		return fail(model.OutcomeFailed, fmt.Errorf("target %s exists and is not a directory", task.TargetPath))
	case exists && r.opts.SkipExisting:
		res.Outcome = model.OutcomeSkipped
		res.OK = true
		r.tracker.RepoSkipped()
		r.log.Debug("skipping existing repository", "repo", task.TargetPath)
		return res
	case exists:
		if ok, _ := gitx.IsRepo(ctx, r.runner, task.TargetPath); !ok {
			return fail(model.OutcomeFailed, fmt.Errorf("%s exists but is not a git repository", task.TargetPath))
		}
		r.warnOriginDrift(ctx, task)
	default:
		if err := r.clone(ctx, task); err != nil {
			return fail(model.OutcomeFailed, err)
		}
		created = true
		r.tracker.RepoCreated()
	}

	// From here on a failure still leaves a fresh clone on disk, so the
	// outcome stays "created" for those.
	failOutcome := model.OutcomeFailed
	if created {
		failOutcome = model.OutcomeCreated
	}

	if err := r.pacer.Wait(ctx); err != nil {
		return fail(failOutcome, err)
	}
	if err := gitx.FetchPrune(ctx, r.runner, task.TargetPath); err != nil {
		return fail(failOutcome, err)
	}

	synced, failed := r.syncBranches(ctx, task)
	res.BranchesSynced = synced
	res.BranchesFailed = failed

	if r.cleaner != nil {
		if err := r.cleaner.CleanHistory(ctx, task.TargetPath); err != nil {
			r.log.Error("history cleanup failed", "repo", task.TargetPath, "error", err)
			r.tracker.Errorf(task.TargetPath, "", "history cleanup: %s", err)
		}
	}

	if created {
		res.Outcome = model.OutcomeCreated
	} else {
		res.Outcome = model.OutcomeUpdated
		r.tracker.RepoUpdated()
	}
	res.OK = true
	return res
}

// clone fetches a fresh working copy, retrying transient failures with
// backoff. A failed attempt removes its partial directory so the next
// one starts clean.
func (r *Reconciler) clone(ctx context.Context, task model.SyncTask) error {
	url := r.cloneURL(task.Project)
	if url == "" {
		return fmt.Errorf("project %s has no clone url", task.Project.Path)
	}
	if err := r.pacer.Wait(ctx); err != nil {
		return err
	}
	r.log.Info("cloning", "project", task.Project.Path, "into", task.TargetPath)

	attempts := uint(1)
	if r.opts.MaxRetries > 0 {
		attempts += uint(r.opts.MaxRetries)
	}
	return retry.Do(
		func() error {
			return gitx.Clone(ctx, r.runner, url, task.TargetPath)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(r.opts.RetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(gitx.Transient),
		retry.OnRetry(func(n uint, err error) {
			r.log.Warn("clone failed, retrying", "project", task.Project.Path, "attempt", n+1, "error", err)
			_ = os.RemoveAll(task.TargetPath)
		}),
	)
}

// cloneURL picks the clone URL per the configured scheme policy.
func (r *Reconciler) cloneURL(p model.Project) string {
	if r.opts.UseSSH {
		if p.SSHURL != "" {
			return p.SSHURL
		}
		r.log.Warn("project has no ssh url, falling back to http", "project", p.Path)
	}
	return p.HTTPURL
}

// warnOriginDrift flags working copies whose origin no longer points at
// the project they are mapped to. Compared under URL normalization so a
// scheme switch alone never warns.
func (r *Reconciler) warnOriginDrift(ctx context.Context, task model.SyncTask) {
	current, err := gitx.RemoteURL(ctx, r.runner, task.TargetPath, "origin")
	if err != nil {
		return
	}
	want := r.cloneURL(task.Project)
	if gitx.NormalizeURL(current) != gitx.NormalizeURL(want) {
		r.log.Warn("origin url differs from project url",
			"repo", task.TargetPath, "origin", current, "project", want)
	}
}

// syncBranches walks every remote branch: existing local branches are
// checked out and fast-forwarded, missing ones get a local tracking
// branch. A branch failure is recorded and the rest continue. The
// original branch is restored afterward, also when the run was canceled
// mid-loop.
func (r *Reconciler) syncBranches(ctx context.Context, task model.SyncTask) (synced, failed int) {
	dir := task.TargetPath

	head, err := gitx.Head(ctx, r.runner, dir)
	if err != nil {
		head = model.Head{Detached: true}
	}

	remote, err := gitx.RemoteBranches(ctx, r.runner, dir, "origin")
	if err != nil {
		r.log.Warn("cannot list remote branches", "repo", dir, "error", err)
		r.tracker.Errorf(dir, "", "list remote branches: %s", err)
		return 0, 0
	}
	local, err := gitx.LocalBranches(ctx, r.runner, dir)
	if err != nil {
		r.log.Warn("cannot list local branches", "repo", dir, "error", err)
		r.tracker.Errorf(dir, "", "list local branches: %s", err)
		return 0, 0
	}
	haveLocal := make(map[string]bool, len(local))
	for _, b := range local {
		haveLocal[b] = true
	}

	for _, branch := range remote {
		if ctx.Err() != nil {
			break
		}
		if err := r.syncBranch(ctx, dir, branch, haveLocal[branch]); err != nil {
			r.log.Warn("branch sync failed", "repo", dir, "branch", branch, "error", err)
			r.tracker.Errorf(dir, branch, "%s", err)
			failed++
			continue
		}
		if r.cleaner != nil {
			if err := r.cleaner.CleanBranch(ctx, dir, branch); err != nil {
				r.log.Warn("branch cleanup failed", "repo", dir, "branch", branch, "error", err)
				r.tracker.Errorf(dir, branch, "cleanup: %s", err)
			}
		}
		synced++
	}

	if (synced > 0 || failed > 0) && !head.Detached && head.Branch != "" {
		// Restoration must run even after cancellation so the working
		// copy is not left on an arbitrary branch.
		restoreCtx := context.WithoutCancel(ctx)
		if err := gitx.Checkout(restoreCtx, r.runner, dir, head.Branch); err != nil {
			r.log.Warn("could not restore original branch", "repo", dir, "branch", head.Branch, "error", err)
		}
	}
	return synced, failed
}

func (r *Reconciler) syncBranch(ctx context.Context, dir, branch string, haveLocal bool) error {
	if !haveLocal {
		return gitx.CheckoutTrack(ctx, r.runner, dir, "origin", branch)
	}
	if err := gitx.Checkout(ctx, r.runner, dir, branch); err != nil {
		return err
	}
	if err := r.pacer.Wait(ctx); err != nil {
		return err
	}
	return gitx.PullFFOnly(ctx, r.runner, dir, "origin", branch)
}
