// SPDX-License-Identifier: MIT
// Package stats collects run counters and error records for a mirror run.
// One Tracker is owned by each run and finalized once at the end.
package stats

import (
	"fmt"
	"sync"
)

// Record describes one recoverable failure captured during a run.
type Record struct {
	// Entity is the group, project, or repository path the failure belongs to.
	Entity string
	// Branch is set when the failure is scoped to a single branch.
	Branch string
	// Message is the failure text.
	Message string
}

// Tracker accumulates monotonic counters and error records.
// All methods are safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	groupsProcessed int
	reposCreated    int
	reposUpdated    int
	reposSkipped    int
	branchesPushed  int
	pathWarnings    int
	records         []Record
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// GroupProcessed counts one dequeued group.
func (t *Tracker) GroupProcessed() { t.add(&t.groupsProcessed, 1) }

// RepoCreated counts one fresh clone.
func (t *Tracker) RepoCreated() { t.add(&t.reposCreated, 1) }

// RepoUpdated counts one reconciled existing clone.
func (t *Tracker) RepoUpdated() { t.add(&t.reposUpdated, 1) }

// RepoSkipped counts one existing clone left untouched.
func (t *Tracker) RepoSkipped() { t.add(&t.reposSkipped, 1) }

// BranchesPushed counts branches accepted by the remote during publishing.
func (t *Tracker) BranchesPushed(n int) { t.add(&t.branchesPushed, n) }

// PathWarning counts one path length warning.
func (t *Tracker) PathWarning() { t.add(&t.pathWarnings, 1) }

func (t *Tracker) add(counter *int, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	*counter += n
}

// Errorf records a recoverable failure for entity. Branch may be empty
// for repository- or group-scoped failures.
func (t *Tracker) Errorf(entity, branch, format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, Record{
		Entity:  entity,
		Branch:  branch,
		Message: fmt.Sprintf(format, args...),
	})
}

// Summary is a point-in-time snapshot of the run counters.
type Summary struct {
	GroupsProcessed int
	ReposCreated    int
	ReposUpdated    int
	ReposSkipped    int
	BranchesPushed  int
	PathWarnings    int
	Errors          []Record
}

// Snapshot returns a copy of the current counters and error records.
func (t *Tracker) Snapshot() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		GroupsProcessed: t.groupsProcessed,
		ReposCreated:    t.reposCreated,
		ReposUpdated:    t.reposUpdated,
		ReposSkipped:    t.reposSkipped,
		BranchesPushed:  t.branchesPushed,
		PathWarnings:    t.pathWarnings,
		Errors:          append([]Record(nil), t.records...),
	}
}
