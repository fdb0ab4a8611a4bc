// SPDX-License-Identifier: MIT
// Package model defines the value types exchanged between the labmirror
// engine packages. Remote objects are snapshotted into these types at the
// hosting-API boundary so the engine never depends on client library
// object shapes.
package model

// Group is a read-only snapshot of a remote group. Identity is the remote
// id; Name is display text used only for path derivation.
type Group struct {
	// ID is the remote group id.
	ID int `json:"id" yaml:"id"`
	// Name is the display name.
	Name string `json:"name" yaml:"name"`
	// Path is the URL path segment.
	Path string `json:"path" yaml:"path"`
	// ParentID is the id of the parent group, 0 for top-level groups.
	ParentID int `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
}

// Project is a read-only snapshot of a remote project.
type Project struct {
	// ID is the remote project id.
	ID int `json:"id" yaml:"id"`
	// Name is the display name.
	Name string `json:"name" yaml:"name"`
	// Path is the URL path segment.
	Path string `json:"path" yaml:"path"`
	// HTTPURL is the HTTPS clone URL.
	HTTPURL string `json:"http_url" yaml:"http_url"`
	// SSHURL is the SSH clone URL, empty when the host does not expose one.
	SSHURL string `json:"ssh_url,omitempty" yaml:"ssh_url,omitempty"`
}

// SyncTask pairs a discovered project with the local directory its working
// copy maps to. Tasks are produced by the hierarchy walker and consumed by
// the reconciler.
type SyncTask struct {
	// Project is the repository to reconcile.
	Project Project `json:"project" yaml:"project"`
	// TargetPath is the local directory the working copy lives in.
	TargetPath string `json:"target_path" yaml:"target_path"`
}

// RepoOutcome classifies the result of reconciling one repository.
type RepoOutcome string

const (
	// OutcomeCreated means the repository was cloned fresh.
	OutcomeCreated RepoOutcome = "created"
	// OutcomeUpdated means an existing clone was reconciled.
	OutcomeUpdated RepoOutcome = "updated"
	// OutcomeSkipped means an existing clone was left untouched.
	OutcomeSkipped RepoOutcome = "skipped"
	// OutcomeFailed means the repository could not be brought up to date.
	OutcomeFailed RepoOutcome = "failed"
)

// RepoResult records the reconciliation of one repository.
type RepoResult struct {
	// Project identifies the remote project.
	Project string `json:"project" yaml:"project"`
	// Path is the local working copy path.
	Path string `json:"path" yaml:"path"`
	// Outcome classifies what happened.
	Outcome RepoOutcome `json:"outcome" yaml:"outcome"`
	// OK is false when the repository-level operation failed.
	OK bool `json:"ok" yaml:"ok"`
	// Error contains the failure message when OK is false.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
	// ErrorClass is a coarse category for Error (for example, auth/network/timeout).
	ErrorClass string `json:"error_class,omitempty" yaml:"error_class,omitempty"`
	// BranchesSynced is the count of branches brought up to date.
	BranchesSynced int `json:"branches_synced" yaml:"branches_synced"`
	// BranchesFailed is the count of branches that could not be reconciled.
	BranchesFailed int `json:"branches_failed" yaml:"branches_failed"`
}

// PublishResult records publishing one local repository to the host.
type PublishResult struct {
	// RepoPath is the local repository path.
	RepoPath string `json:"repo_path" yaml:"repo_path"`
	// ProjectPath is the remote namespace path the repository was published under.
	ProjectPath string `json:"project_path" yaml:"project_path"`
	// BranchesPushed is the count of branches accepted by the remote.
	BranchesPushed int `json:"branches_pushed" yaml:"branches_pushed"`
	// BranchesFailed is the count of branches the remote rejected.
	BranchesFailed int `json:"branches_failed" yaml:"branches_failed"`
	// OK is false when the repository could not be published at all.
	OK bool `json:"ok" yaml:"ok"`
	// Error contains the failure message when OK is false.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Head represents the current HEAD state of a repo.
type Head struct {
	// Branch is the current branch name when HEAD is attached.
	Branch string `json:"branch" yaml:"branch"`
	// Detached reports whether HEAD is detached.
	Detached bool `json:"detached" yaml:"detached"`
}

// Worktree represents the working tree status.
type Worktree struct {
	// Dirty indicates whether the worktree has any local modifications.
	Dirty bool `json:"dirty" yaml:"dirty"`
	// Staged is the count of staged file changes.
	Staged int `json:"staged" yaml:"staged"`
	// Unstaged is the count of unstaged file changes.
	Unstaged int `json:"unstaged" yaml:"unstaged"`
	// Untracked is the count of untracked files.
	Untracked int `json:"untracked" yaml:"untracked"`
}
