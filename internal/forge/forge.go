// Package forge defines the hosting-API operations labmirror relies on.
// Remote objects are converted to model value types at this boundary so
// the walker and publisher never handle client library object shapes.
package forge

import (
	"context"
	"errors"
	"fmt"

	"github.com/skaphos/labmirror/internal/model"
)

// ErrNotFound reports that a group or project does not exist or is not
// visible to the authenticated user.
var ErrNotFound = errors.New("not found")

// AuthError reports that the host rejected the configured token before
// any traversal work started.
type AuthError struct {
	Host string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication against %s failed: %v", e.Host, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Client is the hosting-API capability consumed by the mirror and publish
// engines. GitLab is the default implementation; a fake backs the tests.
type Client interface {
	// Authenticate verifies the configured token and returns the account
	// username. Failures are reported as *AuthError.
	Authenticate(ctx context.Context) (string, error)
	// GroupByIDOrPath resolves a group from a numeric id or a full path
	// such as "team/sub". Wraps ErrNotFound when the group is absent.
	GroupByIDOrPath(ctx context.Context, ref string) (model.Group, error)
	// ListSubgroups returns the immediate subgroups of a group, all pages.
	ListSubgroups(ctx context.Context, groupID int) ([]model.Group, error)
	// ListProjects returns the projects directly inside a group, all pages.
	ListProjects(ctx context.Context, groupID int) ([]model.Project, error)
	// CreateGroup creates a private group. A parentID of zero creates a
	// top-level group.
	CreateGroup(ctx context.Context, name, path string, parentID int) (model.Group, error)
	// CreateProject creates a private, README-less project in the given
	// namespace.
	CreateProject(ctx context.Context, name, path string, namespaceID int) (model.Project, error)
}
