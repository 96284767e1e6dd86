// Package watcher is the platform file-system watcher collaborator: it
// produces a stream of (repo_root, path, kind) tuples with at-least-once
// delivery and per-directory order. It is the only component that talks
// to fsnotify directly; everything downstream (the supervisor, the repo
// workers) depends only on the Watcher interface below.
package watcher

import (
	"context"
	"time"
)

// Kind is the kind of change a FileEvent reports: create, modify,
// delete, or rename.
type Kind string

const (
	KindCreate Kind = "create"
	KindModify Kind = "modify"
	KindDelete Kind = "delete"
	KindRename Kind = "rename"
)

// Event is one (repo_root, path, kind) tuple. Transient: never
// persisted, consumed within one debounce window.
type Event struct {
	RepoRoot string
	Path     string
	Kind     Kind
	At       time.Time
}

// Watcher is the platform-watcher abstraction the supervisor depends on.
// Implementations must deliver at-least-once per repository root and
// preserve per-directory order; duplicate events are tolerated by the
// worker's debouncer.
type Watcher interface {
	// Watch begins tailing repoRoot for file events. Calling Watch twice
	// on the same root is a no-op.
	Watch(repoRoot string) error
	// Unwatch stops tailing repoRoot. Calling Unwatch on a root that was
	// never watched is a no-op.
	Unwatch(repoRoot string) error
	// Events returns the channel every watched repository's events are
	// delivered on. Callers should stop reading once ctx passed to Run
	// is canceled; the channel itself is never closed, to avoid a send
	// racing a concurrent Close.
	Events() <-chan Event
	// Run drives the watcher's internal event loop until ctx is canceled.
	Run(ctx context.Context)
	// Close stops the watcher and releases its underlying resources.
	Close() error
}
