package forge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/skaphos/labmirror/internal/model"
)

// GitLab hosts list pages at 100 entries max; fewer round trips per group.
const perPage = 100

// Options tune the underlying HTTP client. Zero values fall back to the
// defaults the config package also uses.
type Options struct {
	// APITimeout bounds a single HTTP request.
	APITimeout time.Duration
	// MaxRetries is the retry budget for transient HTTP failures.
	MaxRetries int
	// RetryDelay is the minimum wait between retries.
	RetryDelay time.Duration
}

// GitLab implements Client against a GitLab host using the official API
// client. Retries on 429/5xx are handled inside the client itself.
type GitLab struct {
	client *gitlab.Client
	host   string
}

func NewGitLab(hostURL, token string, opts Options) (*GitLab, error) {
	if opts.APITimeout <= 0 {
		opts.APITimeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	client, err := gitlab.NewClient(token,
		gitlab.WithBaseURL(hostURL),
		gitlab.WithHTTPClient(&http.Client{Timeout: opts.APITimeout}),
		gitlab.WithCustomRetryMax(opts.MaxRetries),
		gitlab.WithCustomRetryWaitMinMax(opts.RetryDelay, 4*opts.RetryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("build gitlab client for %s: %w", hostURL, err)
	}
	return &GitLab{client: client, host: hostURL}, nil
}

func (g *GitLab) Authenticate(ctx context.Context) (string, error) {
	user, _, err := g.client.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		return "", &AuthError{Host: g.host, Err: err}
	}
	return user.Username, nil
}

func (g *GitLab) GroupByIDOrPath(ctx context.Context, ref string) (model.Group, error) {
	grp, resp, err := g.client.Groups.GetGroup(ref, nil, gitlab.WithContext(ctx))
	if err != nil {
		if isNotFound(resp) {
			return model.Group{}, fmt.Errorf("group %q: %w", ref, ErrNotFound)
		}
		return model.Group{}, fmt.Errorf("get group %q: %w", ref, err)
	}
	return toGroup(grp), nil
}

func (g *GitLab) ListSubgroups(ctx context.Context, groupID int) ([]model.Group, error) {
	opt := &gitlab.ListSubGroupsOptions{
		ListOptions: gitlab.ListOptions{PerPage: perPage},
	}
	var out []model.Group
	for {
		groups, resp, err := g.client.Groups.ListSubGroups(groupID, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list subgroups of group %d: %w", groupID, err)
		}
		for _, grp := range groups {
			out = append(out, toGroup(grp))
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return out, nil
}

func (g *GitLab) ListProjects(ctx context.Context, groupID int) ([]model.Project, error) {
	opt := &gitlab.ListGroupProjectsOptions{
		ListOptions: gitlab.ListOptions{PerPage: perPage},
	}
	var out []model.Project
	for {
		projects, resp, err := g.client.Groups.ListGroupProjects(groupID, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list projects of group %d: %w", groupID, err)
		}
		for _, proj := range projects {
			out = append(out, toProject(proj))
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return out, nil
}

func (g *GitLab) CreateGroup(ctx context.Context, name, path string, parentID int) (model.Group, error) {
	opt := &gitlab.CreateGroupOptions{
		Name:       gitlab.Ptr(name),
		Path:       gitlab.Ptr(path),
		Visibility: gitlab.Ptr(gitlab.PrivateVisibility),
	}
	if parentID != 0 {
		opt.ParentID = gitlab.Ptr(parentID)
	}
	grp, _, err := g.client.Groups.CreateGroup(opt, gitlab.WithContext(ctx))
	if err != nil {
		return model.Group{}, fmt.Errorf("create group %q: %w", path, err)
	}
	return toGroup(grp), nil
}

func (g *GitLab) CreateProject(ctx context.Context, name, path string, namespaceID int) (model.Project, error) {
	opt := &gitlab.CreateProjectOptions{
		Name:                 gitlab.Ptr(name),
		Path:                 gitlab.Ptr(path),
		NamespaceID:          gitlab.Ptr(namespaceID),
		Visibility:           gitlab.Ptr(gitlab.PrivateVisibility),
		InitializeWithReadme: gitlab.Ptr(false),
	}
	proj, _, err := g.client.Projects.CreateProject(opt, gitlab.WithContext(ctx))
	if err != nil {
		return model.Project{}, fmt.Errorf("create project %q: %w", path, err)
	}
	return toProject(proj), nil
}

func isNotFound(resp *gitlab.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}

func toGroup(g *gitlab.Group) model.Group {
	return model.Group{ID: g.ID, Name: g.Name, Path: g.Path, ParentID: g.ParentID}
}

func toProject(p *gitlab.Project) model.Project {
	return model.Project{
		ID:      p.ID,
		Name:    p.Name,
		Path:    p.Path,
		HTTPURL: p.HTTPURLToRepo,
		SSHURL:  p.SSHURLToRepo,
	}
}
