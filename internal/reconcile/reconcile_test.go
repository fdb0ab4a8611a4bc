// SPDX-License-Identifier: MIT
package reconcile_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/labmirror/internal/cleanup"
	"github.com/skaphos/labmirror/internal/model"
	"github.com/skaphos/labmirror/internal/reconcile"
	"github.com/skaphos/labmirror/internal/report"
	"github.com/skaphos/labmirror/internal/stats"
)

const projectURL = "https://gitlab.example.com/team/app.git"

func newTask(dest string) model.SyncTask {
	return model.SyncTask{
		Project: model.Project{
			ID:      7,
			Name:    "App",
			Path:    "app",
			HTTPURL: projectURL,
			SSHURL:  "git@gitlab.example.com:team/app.git",
		},
		TargetPath: dest,
	}
}

// updateResponses seeds the git calls of a healthy two-branch update.
func updateResponses(dest string) map[string]MockResponse {
	m := map[string]MockResponse{}
	m[dest+":rev-parse --is-inside-work-tree"] = MockResponse{Output: "true"}
	m[dest+":remote get-url origin"] = MockResponse{Output: projectURL}
	m[dest+":-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules"] = MockResponse{}
	m[dest+":symbolic-ref --quiet --short HEAD"] = MockResponse{Output: "main"}
	m[dest+":for-each-ref --format=%(refname:short) refs/remotes/origin"] = MockResponse{Output: "origin/main\norigin/feature"}
	m[dest+":for-each-ref --format=%(refname:short) refs/heads"] = MockResponse{Output: "main"}
	m[dest+":checkout main"] = MockResponse{}
	m[dest+":pull --ff-only origin main"] = MockResponse{}
	m[dest+":checkout -b feature origin/feature"] = MockResponse{}
	return m
}

var _ = Describe("Reconcile", func() {
	var (
		dest    string
		tracker *stats.Tracker
	)

	BeforeEach(func() {
		dest = filepath.Join(GinkgoT().TempDir(), "app")
		tracker = stats.NewTracker()
	})

	Context("with an existing repository", func() {
		BeforeEach(func() {
			Expect(os.MkdirAll(dest, 0o755)).To(Succeed())
		})

		It("updates every remote branch", func() {
			mock := &MockRunner{Responses: updateResponses(dest)}
			rec := reconcile.New(mock, nil, nil, tracker, reconcile.Options{}, report.Nop())

			res := rec.Reconcile(context.Background(), newTask(dest))
			Expect(res.OK).To(BeTrue())
			Expect(res.Outcome).To(Equal(model.OutcomeUpdated))
			Expect(res.BranchesSynced).To(Equal(2))
			Expect(res.BranchesFailed).To(BeZero())
			Expect(mock.Calls).To(ContainElement(dest + ":checkout -b feature origin/feature"))
			Expect(tracker.Snapshot().ReposUpdated).To(Equal(1))
		})

		It("tolerates a branch that cannot fast-forward", func() {
			responses := updateResponses(dest)
			responses[dest+":pull --ff-only origin main"] = MockResponse{
				Output: "fatal: Not possible to fast-forward, aborting.",
				Err:    errors.New("exit status 128"),
			}
			mock := &MockRunner{Responses: responses}
			rec := reconcile.New(mock, nil, nil, tracker, reconcile.Options{}, report.Nop())

			res := rec.Reconcile(context.Background(), newTask(dest))
			Expect(res.OK).To(BeTrue())
			Expect(res.Outcome).To(Equal(model.OutcomeUpdated))
			Expect(res.BranchesSynced).To(Equal(1))
			Expect(res.BranchesFailed).To(Equal(1))

			snap := tracker.Snapshot()
			Expect(snap.Errors).To(HaveLen(1))
			Expect(snap.Errors[0].Branch).To(Equal("main"))
		})

		It("skips entirely when configured", func() {
			mock := &MockRunner{}
			rec := reconcile.New(mock, nil, nil, tracker, reconcile.Options{SkipExisting: true}, report.Nop())

			res := rec.Reconcile(context.Background(), newTask(dest))
			Expect(res.OK).To(BeTrue())
			Expect(res.Outcome).To(Equal(model.OutcomeSkipped))
			Expect(mock.Calls).To(BeEmpty())
			Expect(tracker.Snapshot().ReposSkipped).To(Equal(1))
		})

		It("fails when the target is not a repository", func() {
			responses := updateResponses(dest)
			responses[dest+":rev-parse --is-inside-work-tree"] = MockResponse{
				Output: "fatal: not a git repository",
				Err:    errors.New("exit status 128"),
			}
			mock := &MockRunner{Responses: responses}
			rec := reconcile.New(mock, nil, nil, tracker, reconcile.Options{}, report.Nop())

			res := rec.Reconcile(context.Background(), newTask(dest))
			Expect(res.OK).To(BeFalse())
			Expect(res.Outcome).To(Equal(model.OutcomeFailed))
			Expect(res.ErrorClass).To(Equal("corrupt"))
		})

		It("warns when the origin url drifted", func() {
			responses := updateResponses(dest)
			responses[dest+":remote get-url origin"] = MockResponse{Output: "https://gitlab.example.com/other/app.git"}
			mock := &MockRunner{Responses: responses}

			var buf bytes.Buffer
			rec := reconcile.New(mock, nil, nil, tracker, reconcile.Options{}, report.NewLogger(&buf, 0, false))

			res := rec.Reconcile(context.Background(), newTask(dest))
			Expect(res.OK).To(BeTrue())
			Expect(buf.String()).To(ContainSubstring("origin url differs"))
		})

		It("stays quiet when only the url scheme differs", func() {
			responses := updateResponses(dest)
			responses[dest+":remote get-url origin"] = MockResponse{Output: "git@gitlab.example.com:team/app.git"}
			mock := &MockRunner{Responses: responses}

			var buf bytes.Buffer
			rec := reconcile.New(mock, nil, nil, tracker, reconcile.Options{}, report.NewLogger(&buf, 0, false))

			rec.Reconcile(context.Background(), newTask(dest))
			Expect(buf.String()).NotTo(ContainSubstring("origin url differs"))
		})
	})

	It("fails when the target is a file", func() {
		Expect(os.MkdirAll(filepath.Dir(dest), 0o755)).To(Succeed())
		Expect(os.WriteFile(dest, []byte("x"), 0o644)).To(Succeed())
		rec := reconcile.New(&MockRunner{}, nil, nil, tracker, reconcile.Options{}, report.Nop())

		res := rec.Reconcile(context.Background(), newTask(dest))
		Expect(res.OK).To(BeFalse())
		Expect(res.Error).To(ContainSubstring("not a directory"))
	})

	Context("with a fresh clone", func() {
		It("clones and materializes every remote branch", func() {
			responses := updateResponses(dest)
			responses[":clone "+projectURL+" "+dest] = MockResponse{}
			mock := &MockRunner{Responses: responses}
			rec := reconcile.New(mock, nil, nil, tracker, reconcile.Options{}, report.Nop())

			res := rec.Reconcile(context.Background(), newTask(dest))
			Expect(res.OK).To(BeTrue())
			Expect(res.Outcome).To(Equal(model.OutcomeCreated))
			Expect(res.BranchesSynced).To(Equal(2))
			Expect(tracker.Snapshot().ReposCreated).To(Equal(1))
		})

		It("clones over ssh when configured", func() {
			responses := updateResponses(dest)
			responses[":clone git@gitlab.example.com:team/app.git "+dest] = MockResponse{}
			mock := &MockRunner{Responses: responses}
			rec := reconcile.New(mock, nil, nil, tracker, reconcile.Options{UseSSH: true}, report.Nop())

			res := rec.Reconcile(context.Background(), newTask(dest))
			Expect(res.OK).To(BeTrue())
			Expect(mock.Calls).To(ContainElement(":clone git@gitlab.example.com:team/app.git " + dest))
		})

		It("retries transient clone failures and clears partial clones", func() {
			base := &MockRunner{Responses: updateResponses(dest)}
			attempts := 0
			partialSurvived := false
			runner := runnerFunc(func(ctx context.Context, dir string, args ...string) (string, error) {
				if len(args) > 0 && args[0] == "clone" {
					attempts++
					if attempts == 1 {
						Expect(os.MkdirAll(filepath.Join(dest, "partial"), 0o755)).To(Succeed())
						return "fatal: could not resolve host: gitlab.example.com", errors.New("exit status 128")
					}
					if _, err := os.Stat(dest); err == nil {
						partialSurvived = true
					}
					return "", nil
				}
				return base.Run(ctx, dir, args...)
			})
			rec := reconcile.New(runner, nil, nil, tracker, reconcile.Options{
				MaxRetries: 2,
				RetryDelay: time.Millisecond,
			}, report.Nop())

			res := rec.Reconcile(context.Background(), newTask(dest))
			Expect(res.OK).To(BeTrue())
			Expect(res.Outcome).To(Equal(model.OutcomeCreated))
			Expect(attempts).To(Equal(2))
			Expect(partialSurvived).To(BeFalse())
		})

		It("does not retry authentication failures", func() {
			attempts := 0
			runner := runnerFunc(func(ctx context.Context, dir string, args ...string) (string, error) {
				attempts++
				return "fatal: Authentication failed for 'https://gitlab.example.com/team/app.git/'", errors.New("exit status 128")
			})
			rec := reconcile.New(runner, nil, nil, tracker, reconcile.Options{
				MaxRetries: 3,
				RetryDelay: time.Millisecond,
			}, report.Nop())

			res := rec.Reconcile(context.Background(), newTask(dest))
			Expect(res.OK).To(BeFalse())
			Expect(res.Outcome).To(Equal(model.OutcomeFailed))
			Expect(res.ErrorClass).To(Equal("auth"))
			Expect(attempts).To(Equal(1))
		})
	})

	Context("with cleanup enabled", func() {
		It("cleans each branch after it is checked out", func() {
			Expect(os.MkdirAll(filepath.Join(dest, "src"), 0o755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dest, "app.log"), []byte("x"), 0o644)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dest, "src", "main.go"), []byte("package main"), 0o644)).To(Succeed())

			base := &MockRunner{Responses: updateResponses(dest)}
			runner := runnerFunc(func(ctx context.Context, dir string, args ...string) (string, error) {
				if len(args) > 0 && args[0] == "rm" {
					return "fatal: pathspec did not match any files", errors.New("exit status 128")
				}
				return base.Run(ctx, dir, args...)
			})
			cleaner := cleanup.NewEngine(runner, cleanup.Options{Patterns: []string{"*.log"}}, report.Nop())
			rec := reconcile.New(runner, cleaner, nil, tracker, reconcile.Options{}, report.Nop())

			res := rec.Reconcile(context.Background(), newTask(dest))
			Expect(res.OK).To(BeTrue())
			Expect(filepath.Join(dest, "app.log")).NotTo(BeAnExistingFile())
			Expect(filepath.Join(dest, ".gitignore")).To(BeAnExistingFile())
		})

		It("records a missing history tool without failing the repository", func() {
			Expect(os.MkdirAll(dest, 0o755)).To(Succeed())

			responses := updateResponses(dest)
			responses[dest+":for-each-ref --format=%(refname:short) refs/remotes/origin"] = MockResponse{Output: ""}
			responses[":filter-repo --version"] = MockResponse{Err: errors.New("git: 'filter-repo' is not a git command")}
			mock := &MockRunner{Responses: responses}

			cleaner := cleanup.NewEngine(mock, cleanup.Options{History: true, Patterns: []string{"*.jar"}}, report.Nop())
			rec := reconcile.New(mock, cleaner, nil, tracker, reconcile.Options{}, report.Nop())

			res := rec.Reconcile(context.Background(), newTask(dest))
			Expect(res.OK).To(BeTrue())
			Expect(res.Outcome).To(Equal(model.OutcomeUpdated))

			snap := tracker.Snapshot()
			Expect(snap.Errors).To(HaveLen(1))
			Expect(snap.Errors[0].Message).To(ContainSubstring("history cleanup"))
		})
	})
})

var _ = Describe("ReconcileAll", func() {
	It("processes every task and sorts results by path", func() {
		tmp := GinkgoT().TempDir()
		var tasks []model.SyncTask
		for _, name := range []string{"bravo", "alpha", "charlie"} {
			dir := filepath.Join(tmp, name)
			Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
			tasks = append(tasks, newTask(dir))
		}

		tracker := stats.NewTracker()
		rec := reconcile.New(&MockRunner{}, nil, nil, tracker, reconcile.Options{
			SkipExisting: true,
			Concurrency:  2,
		}, report.Nop())

		results := rec.ReconcileAll(context.Background(), tasks)
		Expect(results).To(HaveLen(3))
		Expect(results[0].Path).To(HaveSuffix("alpha"))
		Expect(results[1].Path).To(HaveSuffix("bravo"))
		Expect(results[2].Path).To(HaveSuffix("charlie"))
		Expect(results[0].Outcome).To(Equal(model.OutcomeSkipped))
		Expect(tracker.Snapshot().ReposSkipped).To(Equal(3))
	})

	It("returns nil for an empty task list", func() {
		rec := reconcile.New(&MockRunner{}, nil, nil, nil, reconcile.Options{}, report.Nop())
		Expect(rec.ReconcileAll(context.Background(), nil)).To(BeNil())
	})
})
