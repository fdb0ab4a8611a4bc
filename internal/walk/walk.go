// SPDX-License-Identifier: MIT
// Package walk traverses a remote group hierarchy breadth-first and maps
// it onto a local directory tree. Projects become reconcile tasks, groups
// become directories. The hierarchy is assumed to be a tree, so the
// walker does no cycle detection.
package walk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/skaphos/labmirror/internal/forge"
	"github.com/skaphos/labmirror/internal/model"
	"github.com/skaphos/labmirror/internal/pathname"
	"github.com/skaphos/labmirror/internal/stats"
	"github.com/skaphos/labmirror/internal/throttle"
)

// Options configures a traversal.
type Options struct {
	// ShortPaths rewrites long directory segments to a hashed short form.
	ShortPaths bool
	// MaxPathLength is the hard limit for assembled paths. Zero means the
	// pathname default.
	MaxPathLength int
}

// Walker turns a remote hierarchy into sync tasks.
type Walker struct {
	client  forge.Client
	pacer   *throttle.Pacer
	tracker *stats.Tracker
	guard   pathname.Guard
	opts    Options
	log     *slog.Logger
}

// New returns a Walker. A nil tracker or logger falls back to a discard
// implementation so callers can leave them out in tests.
func New(client forge.Client, pacer *throttle.Pacer, tracker *stats.Tracker, opts Options, log *slog.Logger) *Walker {
	if tracker == nil {
		tracker = stats.NewTracker()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Walker{
		client:  client,
		pacer:   pacer,
		tracker: tracker,
		guard:   pathname.Guard{MaxLength: opts.MaxPathLength},
		opts:    opts,
		log:     log,
	}
}

// node is one queued traversal step: a group and the directory its
// contents map to.
type node struct {
	group model.Group
	dir   string
}

// Walk resolves rootRef (numeric id or full path), then visits the group
// and every transitive subgroup breadth-first, creating the directory for
// each group and emitting one task per project found. Listing failures
// are recorded and the traversal continues with the remaining queue;
// only root resolution, destination setup, and cancellation abort the
// walk. Tasks collected before a cancellation are returned alongside the
// error.
func (w *Walker) Walk(ctx context.Context, rootRef, dest string) ([]model.SyncTask, error) {
	root, err := w.client.GroupByIDOrPath(ctx, rootRef)
	if err != nil {
		return nil, fmt.Errorf("resolve group %q: %w", rootRef, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}
	w.log.Info("starting traversal", "group", root.Name, "id", root.ID, "dest", dest)

	var tasks []model.SyncTask
	queue := []node{{group: root, dir: dest}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return tasks, err
		}
		n := queue[0]
		queue = queue[1:]

		w.tracker.GroupProcessed()
		w.log.Debug("processing group", "group", n.group.Name, "id", n.group.ID)

		projects, err := w.listProjects(ctx, n.group)
		if err != nil {
			if ctx.Err() != nil {
				return tasks, ctx.Err()
			}
			w.tracker.Errorf(n.group.Name, "", "list children: %s", err)
			w.log.Error("cannot list group children", "group", n.group.Name, "error", err)
			continue
		}
		for _, p := range projects {
			target := filepath.Join(n.dir, w.segment(p.Name))
			w.checkLength(target)
			tasks = append(tasks, model.SyncTask{Project: p, TargetPath: target})
		}

		subgroups, err := w.listSubgroups(ctx, n.group)
		if err != nil {
			if ctx.Err() != nil {
				return tasks, ctx.Err()
			}
			w.tracker.Errorf(n.group.Name, "", "list children: %s", err)
			w.log.Error("cannot list group children", "group", n.group.Name, "error", err)
			continue
		}
		for _, sub := range subgroups {
			dir := filepath.Join(n.dir, w.segment(sub.Name))
			w.checkLength(dir)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				w.tracker.Errorf(sub.Name, "", "create directory: %s", err)
				w.log.Error("cannot create group directory", "group", sub.Name, "dir", dir, "error", err)
				continue
			}
			queue = append(queue, node{group: sub, dir: dir})
		}
	}
	return tasks, nil
}

func (w *Walker) listProjects(ctx context.Context, g model.Group) ([]model.Project, error) {
	if err := w.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	return w.client.ListProjects(ctx, g.ID)
}

func (w *Walker) listSubgroups(ctx context.Context, g model.Group) ([]model.Group, error) {
	if err := w.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	return w.client.ListSubgroups(ctx, g.ID)
}

func (w *Walker) segment(name string) string {
	if w.opts.ShortPaths {
		return pathname.Short(name)
	}
	return pathname.Sanitize(name)
}

// checkLength grades the assembled path and records a warning when it is
// long. Warnings never block the traversal.
func (w *Walker) checkLength(path string) {
	switch w.guard.Check(path) {
	case pathname.WarnHard:
		w.tracker.PathWarning()
		w.log.Warn("path exceeds the configured maximum length", "path", path)
	case pathname.WarnSoft:
		w.tracker.PathWarning()
		w.log.Warn("path length approaching the configured maximum", "path", path)
	case pathname.WarnNone:
	}
}
