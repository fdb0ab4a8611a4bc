// Package publish pushes a local repository tree into a remote group
// hierarchy. Directory levels between the scan root and each repository
// become groups, the repository directory becomes a project, and every
// local branch is pushed to its identically named remote branch.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skaphos/labmirror/internal/discovery"
	"github.com/skaphos/labmirror/internal/forge"
	"github.com/skaphos/labmirror/internal/gitx"
	"github.com/skaphos/labmirror/internal/model"
	"github.com/skaphos/labmirror/internal/pathname"
	"github.com/skaphos/labmirror/internal/sortutil"
	"github.com/skaphos/labmirror/internal/stats"
	"github.com/skaphos/labmirror/internal/throttle"
)

// publishRemote is the temporary remote pushes go through. It is removed
// again after each repository.
const publishRemote = "labmirror-publish"

// Options configures a publish run.
type Options struct {
	// Token is embedded as oauth2 credentials in HTTPS push URLs.
	Token string
	// UseSSH pushes over the project's SSH URL instead of HTTPS.
	UseSSH bool
	// Exclude holds directory glob patterns skipped during the scan.
	Exclude []string
	// Concurrency bounds parallel repository publishes. Zero or one
	// means sequential.
	Concurrency int
}

// Publisher mirrors a local tree into a remote group.
type Publisher struct {
	client  forge.Client
	runner  gitx.Runner
	pacer   *throttle.Pacer
	tracker *stats.Tracker
	opts    Options
	log     *slog.Logger

	// groups caches resolved groups by "parentID:path" so sibling
	// repositories share one lookup or create per group.
	mu     sync.Mutex
	groups map[string]model.Group
}

// New returns a Publisher. A nil runner shells out to git, a nil tracker
// records into a throwaway, a nil logger falls back to slog.Default().
func New(client forge.Client, runner gitx.Runner, pacer *throttle.Pacer, tracker *stats.Tracker, opts Options, log *slog.Logger) *Publisher {
	if runner == nil {
		runner = &gitx.GitRunner{}
	}
	if tracker == nil {
		tracker = stats.NewTracker()
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Publisher{
		client:  client,
		runner:  runner,
		pacer:   pacer,
		tracker: tracker,
		opts:    opts,
		log:     log,
		groups:  make(map[string]model.Group),
	}
}

// PublishTree publishes every repository under source into the group
// identified by groupRef. Per-repository failures land in the results
// and the tracker; only an unreachable target group, a bad source
// directory, or a failed scan abort the run as a whole.
func (p *Publisher) PublishTree(ctx context.Context, source, groupRef string) ([]model.PublishResult, error) {
	root, err := p.client.GroupByIDOrPath(ctx, groupRef)
	if err != nil {
		return nil, fmt.Errorf("resolve target group %q: %w", groupRef, err)
	}
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("source path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path %s is not a directory", source)
	}

	repos, err := discovery.Scan(ctx, discovery.Options{Root: source, Exclude: p.opts.Exclude})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", source, err)
	}
	p.log.Info("publishing repositories", "count", len(repos), "source", source, "group", root.Path)
	if len(repos) == 0 {
		return nil, nil
	}

	sem := make(chan struct{}, p.opts.Concurrency)
	results := make(chan model.PublishResult, len(repos))
	var wg sync.WaitGroup
	for _, repo := range repos {
		wg.Add(1)
		go func(repo discovery.Repo) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- p.publishRepo(ctx, repo, root)
		}(repo)
	}
	wg.Wait()
	close(results)

	out := make([]model.PublishResult, 0, len(repos))
	for res := range results {
		out = append(out, res)
	}
	sortutil.SortPublishResults(out)
	return out, nil
}

// publishRepo ensures the group chain and project for one repository and
// pushes its branches.
func (p *Publisher) publishRepo(ctx context.Context, repo discovery.Repo, root model.Group) model.PublishResult {
	res := model.PublishResult{RepoPath: repo.Path}

	fail := func(err error) model.PublishResult {
		res.Error = err.Error()
		p.tracker.Errorf(repo.Path, "", "%s", err)
		p.log.Error("publish failed", "repo", repo.Path, "error", err)
		return res
	}

	if repo.Bare {
		p.log.Warn("skipping bare repository", "repo", repo.Path)
		res.Error = "bare repository has no working tree"
		return res
	}

	namespaceID, nsPath, err := p.ensureGroupChain(ctx, root, repo.RelPath)
	if err != nil {
		return fail(err)
	}

	project, err := p.ensureProject(ctx, namespaceID, filepath.Base(repo.Path))
	if err != nil {
		return fail(err)
	}
	res.ProjectPath = nsPath + "/" + project.Path

	pushURL, err := p.pushURL(project)
	if err != nil {
		return fail(err)
	}

	pushed, failed, err := p.pushBranches(ctx, repo.Path, pushURL)
	res.BranchesPushed = pushed
	res.BranchesFailed = failed
	if err != nil {
		return fail(err)
	}
	res.OK = true
	p.tracker.RepoUpdated()
	return res
}

// ensureGroupChain resolves or creates one group per directory level
// between the scan root and the repository. It returns the namespace id
// the project belongs in and that namespace's path.
func (p *Publisher) ensureGroupChain(ctx context.Context, root model.Group, rel string) (int, string, error) {
	parent := root
	nsPath := root.Path
	dir := filepath.Dir(rel)
	if dir == "." {
		return parent.ID, nsPath, nil
	}
	for _, name := range strings.Split(filepath.ToSlash(dir), "/") {
		g, err := p.groupFor(ctx, parent.ID, name)
		if err != nil {
			return 0, "", err
		}
		parent = g
		nsPath += "/" + g.Path
	}
	return parent.ID, nsPath, nil
}

// groupFor returns the subgroup of parentID whose path is the slug of
// name, creating it when absent. The lock is held across the remote
// calls so concurrent publishes of identical (parent, path) pairs
// resolve to one group instead of racing a duplicate create.
func (p *Publisher) groupFor(ctx context.Context, parentID int, name string) (model.Group, error) {
	slug := pathname.Slug(name)
	key := fmt.Sprintf("%d:%s", parentID, slug)

	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.groups[key]; ok {
		return g, nil
	}

	if err := p.pacer.Wait(ctx); err != nil {
		return model.Group{}, err
	}
	subs, err := p.client.ListSubgroups(ctx, parentID)
	if err != nil {
		return model.Group{}, fmt.Errorf("list subgroups of %d: %w", parentID, err)
	}
	for _, g := range subs {
		if g.Path == slug {
			p.log.Debug("found existing group", "path", slug, "id", g.ID)
			p.groups[key] = g
			return g, nil
		}
	}

	if err := p.pacer.Wait(ctx); err != nil {
		return model.Group{}, err
	}
	g, err := p.client.CreateGroup(ctx, name, slug, parentID)
	if err != nil {
		return model.Group{}, fmt.Errorf("create group %q: %w", slug, err)
	}
	p.log.Info("created group", "path", slug, "id", g.ID, "parent", parentID)
	p.tracker.GroupProcessed()
	p.groups[key] = g
	return g, nil
}

// ensureProject returns the project in namespaceID whose path is the
// slug of name, creating it when absent.
func (p *Publisher) ensureProject(ctx context.Context, namespaceID int, name string) (model.Project, error) {
	slug := pathname.Slug(name)
	if err := p.pacer.Wait(ctx); err != nil {
		return model.Project{}, err
	}
	projects, err := p.client.ListProjects(ctx, namespaceID)
	if err != nil {
		return model.Project{}, fmt.Errorf("list projects of %d: %w", namespaceID, err)
	}
	for _, proj := range projects {
		if proj.Path == slug {
			p.log.Debug("found existing project", "path", slug, "id", proj.ID)
			return proj, nil
		}
	}

	if err := p.pacer.Wait(ctx); err != nil {
		return model.Project{}, err
	}
	proj, err := p.client.CreateProject(ctx, name, slug, namespaceID)
	if err != nil {
		return model.Project{}, fmt.Errorf("create project %q: %w", slug, err)
	}
	p.log.Info("created project", "path", slug, "id", proj.ID)
	p.tracker.RepoCreated()
	return proj, nil
}

// pushURL picks the transport for a project. HTTPS URLs carry the token
// as oauth2 credentials, so they must never be logged verbatim.
func (p *Publisher) pushURL(project model.Project) (string, error) {
	if p.opts.UseSSH {
		if project.SSHURL == "" {
			return "", fmt.Errorf("project %s has no ssh url", project.Path)
		}
		return project.SSHURL, nil
	}
	if project.HTTPURL == "" {
		return "", fmt.Errorf("project %s has no http url", project.Path)
	}
	u, err := url.Parse(project.HTTPURL)
	if err != nil {
		return "", fmt.Errorf("parse project url: %w", err)
	}
	u.User = url.UserPassword("oauth2", p.opts.Token)
	return u.String(), nil
}

// pushBranches pushes every local branch through the temporary remote.
// A rejected branch is counted and the rest continue. The remote is
// removed again afterward, also when the push loop was cut short.
func (p *Publisher) pushBranches(ctx context.Context, dir, pushURL string) (pushed, failed int, err error) {
	if gitx.HasRemote(ctx, p.runner, dir, publishRemote) {
		// Stale remote from an interrupted earlier run.
		if err := gitx.RemoveRemote(ctx, p.runner, dir, publishRemote); err != nil {
			return 0, 0, err
		}
	}
	if err := gitx.AddRemote(ctx, p.runner, dir, publishRemote, pushURL); err != nil {
		return 0, 0, err
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		if rerr := gitx.RemoveRemote(cleanupCtx, p.runner, dir, publishRemote); rerr != nil {
			p.log.Warn("cannot remove publish remote", "repo", dir, "error", rerr)
		}
	}()

	branches, err := gitx.LocalBranches(ctx, p.runner, dir)
	if err != nil {
		return 0, 0, err
	}
	if len(branches) == 0 {
		p.log.Warn("no branches to push", "repo", dir)
		return 0, 0, nil
	}

	for _, branch := range branches {
		if cerr := ctx.Err(); cerr != nil {
			return pushed, failed, cerr
		}
		if werr := p.pacer.Wait(ctx); werr != nil {
			return pushed, failed, werr
		}
		if perr := gitx.Push(ctx, p.runner, dir, publishRemote, branch+":"+branch); perr != nil {
			p.log.Error("branch push rejected", "repo", dir, "branch", branch, "error", perr)
			p.tracker.Errorf(dir, branch, "%s", perr)
			failed++
			continue
		}
		p.log.Debug("pushed branch", "repo", dir, "branch", branch)
		p.tracker.BranchesPushed(1)
		pushed++
	}
	return pushed, failed, nil
}
