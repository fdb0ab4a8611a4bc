package gitx_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/labmirror/internal/gitx"
)

var _ = Describe("GitRunner.Run", func() {
	var runner *gitx.GitRunner

	BeforeEach(func() {
		runner = &gitx.GitRunner{}
	})

	It("runs git version successfully", func() {
		out, err := runner.Run(context.Background(), "", "version")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("git version"))
	})

	It("errors for nonexistent directory", func() {
		_, err := runner.Run(context.Background(), "/nonexistent/path/xyz", "status")
		Expect(err).To(HaveOccurred())
	})

	It("respects context cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := runner.Run(ctx, "", "version")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("IsRepo", func() {
	It("returns true for a valid repo", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:rev-parse --is-inside-work-tree": {Output: "true"},
		}}
		ok, err := gitx.IsRepo(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("returns false on error", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:rev-parse --is-inside-work-tree": {Err: errors.New("not a repo")},
		}}
		ok, err := gitx.IsRepo(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Head", func() {
	It("returns branch name for attached HEAD", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:symbolic-ref --quiet --short HEAD": {Output: "main"},
		}}
		h, err := gitx.Head(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(h.Branch).To(Equal("main"))
		Expect(h.Detached).To(BeFalse())
	})

	It("returns commit hash for detached HEAD", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:symbolic-ref --quiet --short HEAD": {Err: errors.New("not symbolic")},
			"/repo:rev-parse --short HEAD":            {Output: "abc1234"},
		}}
		h, err := gitx.Head(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(h.Branch).To(Equal("abc1234"))
		Expect(h.Detached).To(BeTrue())
	})

	It("returns detached with empty branch when no commit", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:symbolic-ref --quiet --short HEAD": {Err: errors.New("not symbolic")},
			"/repo:rev-parse --short HEAD":            {Err: errors.New("no HEAD")},
		}}
		h, err := gitx.Head(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(h.Detached).To(BeTrue())
		Expect(h.Branch).To(Equal(""))
	})
})

var _ = Describe("Clone", func() {
	It("clones into the destination", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			":clone https://gitlab.example.com/team/app.git /dest/app": {Output: ""},
		}}
		err := gitx.Clone(context.Background(), mock, "https://gitlab.example.com/team/app.git", "/dest/app")
		Expect(err).NotTo(HaveOccurred())
	})

	It("surfaces the git output on failure", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			":clone https://gitlab.example.com/team/app.git /dest/app": {
				Output: "fatal: Authentication failed",
				Err:    errors.New("exit status 128"),
			},
		}}
		err := gitx.Clone(context.Background(), mock, "https://gitlab.example.com/team/app.git", "/dest/app")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("Authentication failed"))
	})
})

var _ = Describe("FetchPrune", func() {
	const key = "/repo:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules"

	It("fetches with prune", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{key: {Output: ""}}}
		Expect(gitx.FetchPrune(context.Background(), mock, "/repo")).To(Succeed())
	})

	It("returns error on fetch failure", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{key: {Err: errors.New("fetch failed")}}}
		Expect(gitx.FetchPrune(context.Background(), mock, "/repo")).NotTo(Succeed())
	})
})

var _ = Describe("LocalBranches", func() {
	It("lists local branches", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:for-each-ref --format=%(refname:short) refs/heads": {Output: "main\ndevelop\nfeature/login"},
		}}
		branches, err := gitx.LocalBranches(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(branches).To(Equal([]string{"main", "develop", "feature/login"}))
	})

	It("returns nil for a repo without branches", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:for-each-ref --format=%(refname:short) refs/heads": {Output: ""},
		}}
		branches, err := gitx.LocalBranches(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(branches).To(BeNil())
	})
})

var _ = Describe("RemoteBranches", func() {
	It("strips the remote prefix and drops HEAD", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:for-each-ref --format=%(refname:short) refs/remotes/origin": {
				Output: "origin/HEAD\norigin/main\norigin/release/1.2",
			},
		}}
		branches, err := gitx.RemoteBranches(context.Background(), mock, "/repo", "origin")
		Expect(err).NotTo(HaveOccurred())
		Expect(branches).To(Equal([]string{"main", "release/1.2"}))
	})

	It("propagates listing failures", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:for-each-ref --format=%(refname:short) refs/remotes/origin": {Err: errors.New("boom")},
		}}
		_, err := gitx.RemoteBranches(context.Background(), mock, "/repo", "origin")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("branch operations", func() {
	It("checks out an existing branch", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:checkout develop": {Output: "Switched to branch 'develop'"},
		}}
		Expect(gitx.Checkout(context.Background(), mock, "/repo", "develop")).To(Succeed())
	})

	It("creates a tracking branch", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:checkout -b feature origin/feature": {Output: ""},
		}}
		Expect(gitx.CheckoutTrack(context.Background(), mock, "/repo", "origin", "feature")).To(Succeed())
	})

	It("fast-forwards from the remote branch", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:pull --ff-only origin main": {Output: "Already up to date."},
		}}
		Expect(gitx.PullFFOnly(context.Background(), mock, "/repo", "origin", "main")).To(Succeed())
	})

	It("fails on diverged branches instead of merging", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:pull --ff-only origin main": {
				Output: "fatal: Not possible to fast-forward, aborting.",
				Err:    errors.New("exit status 128"),
			},
		}}
		err := gitx.PullFFOnly(context.Background(), mock, "/repo", "origin", "main")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("fast-forward"))
	})
})

var _ = Describe("WorktreeStatus", func() {
	It("returns parsed worktree status", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:status --porcelain=v1": {Output: "M  file.go\n?? new.go\n"},
		}}
		wt, err := gitx.WorktreeStatus(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(wt.Staged).To(Equal(1))
		Expect(wt.Untracked).To(Equal(1))
		Expect(wt.Dirty).To(BeTrue())
	})
})

var _ = Describe("staging and committing", func() {
	It("stages everything", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:add -A": {Output: ""},
		}}
		Expect(gitx.StageAll(context.Background(), mock, "/repo")).To(Succeed())
	})

	It("reports staged changes", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:diff --cached --name-only": {Output: "a.txt\nb.txt"},
		}}
		has, err := gitx.HasStagedChanges(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(has).To(BeTrue())
	})

	It("reports a clean index", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:diff --cached --name-only": {Output: ""},
		}}
		has, err := gitx.HasStagedChanges(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(has).To(BeFalse())
	})

	It("commits with the given message", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:commit -m chore: cleanup unnecessary files": {Output: ""},
		}}
		Expect(gitx.Commit(context.Background(), mock, "/repo", "chore: cleanup unnecessary files")).To(Succeed())
	})
})

var _ = Describe("pushing", func() {
	It("pushes a branch", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:push origin main": {Output: ""},
		}}
		Expect(gitx.Push(context.Background(), mock, "/repo", "origin", "main")).To(Succeed())
	})

	It("pushes an explicit refspec", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:push labmirror-publish main:main": {Output: ""},
		}}
		Expect(gitx.Push(context.Background(), mock, "/repo", "labmirror-publish", "main:main")).To(Succeed())
	})

	It("force-pushes a branch", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:push --force origin main": {Output: ""},
		}}
		Expect(gitx.ForcePush(context.Background(), mock, "/repo", "origin", "main")).To(Succeed())
	})

	It("surfaces rejected pushes", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:push origin main": {
				Output: "! [rejected] main -> main (non-fast-forward)",
				Err:    errors.New("exit status 1"),
			},
		}}
		err := gitx.Push(context.Background(), mock, "/repo", "origin", "main")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("rejected"))
	})
})

var _ = Describe("RemoveCachedPattern", func() {
	It("untracks matching paths and reports removal", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:rm --cached -r -f *.zip": {Output: "rm 'release.zip'"},
		}}
		removed, err := gitx.RemoveCachedPattern(context.Background(), mock, "/repo", "*.zip")
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(BeTrue())
	})

	It("tolerates patterns matching nothing", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:rm --cached -r -f *.rar": {
				Output: "fatal: pathspec '*.rar' did not match any files",
				Err:    errors.New("exit status 128"),
			},
		}}
		removed, err := gitx.RemoveCachedPattern(context.Background(), mock, "/repo", "*.rar")
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(BeFalse())
	})

	It("propagates other failures", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:rm --cached -r -f *.jar": {
				Output: "fatal: not a git repository",
				Err:    errors.New("exit status 128"),
			},
		}}
		_, err := gitx.RemoveCachedPattern(context.Background(), mock, "/repo", "*.jar")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("remote management", func() {
	It("reads a remote URL", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:remote get-url origin": {Output: "https://gitlab.example.com/team/app.git"},
		}}
		url, err := gitx.RemoteURL(context.Background(), mock, "/repo", "origin")
		Expect(err).NotTo(HaveOccurred())
		Expect(url).To(Equal("https://gitlab.example.com/team/app.git"))
	})

	It("detects a present remote", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:remote get-url origin": {Output: "https://gitlab.example.com/team/app.git"},
		}}
		Expect(gitx.HasRemote(context.Background(), mock, "/repo", "origin")).To(BeTrue())
	})

	It("detects an absent remote", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:remote get-url labmirror-publish": {Err: errors.New("no such remote")},
		}}
		Expect(gitx.HasRemote(context.Background(), mock, "/repo", "labmirror-publish")).To(BeFalse())
	})

	It("adds and removes remotes", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:remote add labmirror-publish https://gitlab.example.com/x.git": {Output: ""},
			"/repo:remote remove labmirror-publish":                              {Output: ""},
		}}
		Expect(gitx.AddRemote(context.Background(), mock, "/repo", "labmirror-publish", "https://gitlab.example.com/x.git")).To(Succeed())
		Expect(gitx.RemoveRemote(context.Background(), mock, "/repo", "labmirror-publish")).To(Succeed())
		Expect(mock.Calls).To(HaveLen(2))
	})
})

var _ = Describe("GitRunner with real git", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "gitx-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tmpDir)).To(Succeed())
	})

	It("detects a real git repo", func() {
		runner := &gitx.GitRunner{}
		ctx := context.Background()

		_, err := runner.Run(ctx, tmpDir, "init")
		Expect(err).NotTo(HaveOccurred())

		ok, err := gitx.IsRepo(ctx, runner, tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		head, err := gitx.Head(ctx, runner, tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(head.Detached).To(BeFalse())
		Expect(head.Branch).NotTo(BeEmpty())
	})

	It("stages and commits changes", func() {
		runner := &gitx.GitRunner{}
		ctx := context.Background()

		_, err := runner.Run(ctx, tmpDir, "init")
		Expect(err).NotTo(HaveOccurred())
		_, err = runner.Run(ctx, tmpDir, "config", "user.email", "test@example.com")
		Expect(err).NotTo(HaveOccurred())
		_, err = runner.Run(ctx, tmpDir, "config", "user.name", "Test")
		Expect(err).NotTo(HaveOccurred())

		Expect(os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("hello\n"), 0o644)).To(Succeed())
		Expect(gitx.StageAll(ctx, runner, tmpDir)).To(Succeed())

		has, err := gitx.HasStagedChanges(ctx, runner, tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(has).To(BeTrue())

		Expect(gitx.Commit(ctx, runner, tmpDir, "initial")).To(Succeed())

		has, err = gitx.HasStagedChanges(ctx, runner, tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(has).To(BeFalse())

		branches, err := gitx.LocalBranches(ctx, runner, tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(branches).To(HaveLen(1))
	})
})
