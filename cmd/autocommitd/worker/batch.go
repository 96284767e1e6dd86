package worker

import (
	"sort"
	"time"
)

// fileEvent is one raw (path, kind) observation from the platform watcher:
// a stream of (repo_root, path, kind) tuples with at-least-once delivery
// and per-directory order.
type fileEvent struct {
	path string
	at   time.Time
}

// saveBatch is a coalesced set of file events belonging to one debounce
// window. Duplicate events for the same path collapse to the most
// recent timestamp, since the debouncer tolerates at-least-once
// delivery from the watcher.
type saveBatch struct {
	paths map[string]time.Time
}

func newSaveBatch() *saveBatch {
	return &saveBatch{paths: make(map[string]time.Time)}
}

func (b *saveBatch) add(ev fileEvent) {
	if existing, ok := b.paths[ev.path]; !ok || ev.at.After(existing) {
		b.paths[ev.path] = ev.at
	}
}

func (b *saveBatch) empty() bool {
	return len(b.paths) == 0
}

func (b *saveBatch) sortedPaths() []string {
	out := make([]string, 0, len(b.paths))
	for p := range b.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
