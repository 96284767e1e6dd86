package correlator

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/logging"
)

// pollInterval is the fallback re-scan period for files fsnotify doesn't
// reliably report writes for (e.g. across certain network filesystems).
const pollInterval = 2 * time.Second

// tailer walks and watches a transcript root, feeding new lines from
// every file beneath it to the owning Correlator.
type tailer struct {
	c    *Correlator
	root string
	w    *fsnotify.Watcher
}

func newTailer(c *Correlator, root string) *tailer {
	return &tailer{c: c, root: root}
}

func (t *tailer) run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	t.w = w
	defer w.Close()

	if err := t.watchTree(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			t.handleEvent(ctx, event)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.Warn(ctx, "correlator: watcher error", "error", err.Error())
		case <-ticker.C:
			t.scanExisting(ctx)
		}
	}
}

// watchTree registers a watch on root and every existing subdirectory,
// then tails every existing file once to pick up content written before
// the watcher started.
func (t *tailer) watchTree(ctx context.Context) error {
	return filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			_ = t.w.Add(path)
			return nil
		}
		t.tailFile(ctx, path)
		return nil
	})
}

func (t *tailer) handleEvent(ctx context.Context, event fsnotify.Event) {
	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			_ = t.w.Add(event.Name)
		}
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
		t.tailFile(ctx, event.Name)
	}
}

// scanExisting re-tails every currently tracked file. This is the
// fallback path for filesystems where fsnotify write events are
// unreliable; it is cheap because readNewLines seeks to the last known
// offset before reading.
func (t *tailer) scanExisting(ctx context.Context) {
	_ = filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		t.tailFile(ctx, path)
		return nil
	})
}

func (t *tailer) tailFile(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	t.c.readNewLines(ctx, path, f)
}
