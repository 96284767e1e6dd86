package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/logging"
)

// fixedExcludeDirs are never descended into when registering a recursive
// watch, mirroring the classifier's fixed excludes so the
// watcher does not pay to observe directories no commit will ever touch.
var fixedExcludeDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
}

// FSWatcher is the fsnotify-backed Watcher. fsnotify watches are
// non-recursive, so FSWatcher walks each registered repository root once
// to add a watch on every subdirectory, then keeps that set current as
// directories are created or removed.
type FSWatcher struct {
	w      *fsnotify.Watcher
	events chan Event

	mu    sync.Mutex
	roots map[string]bool // repoRoot -> watched
	// dirRoot maps every watched directory back to the repository root
	// that owns it, so an event on a nested directory can be attributed.
	dirRoot map[string]string
}

// New opens the underlying fsnotify watcher. Callers must call Run and,
// eventually, Close.
func New() (*FSWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FSWatcher{
		w:       w,
		events:  make(chan Event, 1024),
		roots:   make(map[string]bool),
		dirRoot: make(map[string]string),
	}, nil
}

func (fw *FSWatcher) Events() <-chan Event { return fw.events }

// Watch registers repoRoot and every existing subdirectory beneath it.
func (fw *FSWatcher) Watch(repoRoot string) error {
	fw.mu.Lock()
	if fw.roots[repoRoot] {
		fw.mu.Unlock()
		return nil
	}
	fw.roots[repoRoot] = true
	fw.mu.Unlock()

	return filepath.WalkDir(repoRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort walk, skip unreadable entries
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() != filepath.Base(repoRoot) && fixedExcludeDirs[d.Name()] {
			return filepath.SkipDir
		}
		fw.addDir(repoRoot, path)
		return nil
	})
}

// Unwatch removes every directory watch registered under repoRoot.
func (fw *FSWatcher) Unwatch(repoRoot string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	delete(fw.roots, repoRoot)
	for dir, root := range fw.dirRoot {
		if root == repoRoot {
			_ = fw.w.Remove(dir)
			delete(fw.dirRoot, dir)
		}
	}
	return nil
}

func (fw *FSWatcher) addDir(repoRoot, dir string) {
	fw.mu.Lock()
	fw.dirRoot[dir] = repoRoot
	fw.mu.Unlock()
	_ = fw.w.Add(dir)
}

func (fw *FSWatcher) rootFor(dir string) (string, bool) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	// Walk up from dir looking for the nearest registered ancestor, since
	// a file event's directory may not itself have been walked yet (e.g.
	// a file created in the same instant as its parent directory).
	for d := dir; ; {
		if root, ok := fw.dirRoot[d]; ok {
			return root, true
		}
		parent := filepath.Dir(d)
		if parent == d {
			return "", false
		}
		d = parent
	}
}

// Run drains fsnotify's event stream, translating each into an Event and
// attributing it to the owning repository root, until ctx is canceled.
func (fw *FSWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			fw.handle(ctx, ev)
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			logging.Warn(ctx, "watcher: fsnotify error", "error", err.Error())
		}
	}
}

func (fw *FSWatcher) handle(ctx context.Context, ev fsnotify.Event) {
	dir := filepath.Dir(ev.Name)
	root, ok := fw.rootFor(dir)
	if !ok {
		return
	}

	info, statErr := os.Lstat(ev.Name)
	if statErr == nil && info.IsDir() {
		if ev.Op&fsnotify.Create != 0 {
			name := filepath.Base(ev.Name)
			if !fixedExcludeDirs[name] {
				fw.addDir(root, ev.Name)
			}
		}
		return
	}

	kind, ok := translate(ev.Op)
	if !ok {
		return
	}

	out := Event{RepoRoot: root, Path: ev.Name, Kind: kind, At: time.Now()}
	select {
	case fw.events <- out:
	case <-ctx.Done():
	default:
		logging.Warn(ctx, "watcher: event channel saturated, dropping event", "repo_root", root, "path", ev.Name)
	}
}

func translate(op fsnotify.Op) (Kind, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return KindCreate, true
	case op&fsnotify.Write != 0:
		return KindModify, true
	case op&fsnotify.Remove != 0:
		return KindDelete, true
	case op&fsnotify.Rename != 0:
		return KindRename, true
	default:
		return "", false
	}
}

// Close stops the underlying fsnotify watcher. The event channel is left
// open: Run's select on fw.w.Events unblocks once fsnotify closes it
// internally, so Run returns without anyone needing to close fw.events
// (which would race a concurrent send from handle).
func (fw *FSWatcher) Close() error {
	return fw.w.Close()
}
