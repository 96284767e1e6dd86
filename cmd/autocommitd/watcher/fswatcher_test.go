package watcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		op   fsnotify.Op
		want Kind
		ok   bool
	}{
		{fsnotify.Create, KindCreate, true},
		{fsnotify.Write, KindModify, true},
		{fsnotify.Remove, KindDelete, true},
		{fsnotify.Rename, KindRename, true},
		{fsnotify.Chmod, "", false},
	}
	for _, tt := range tests {
		got, ok := translate(tt.op)
		if got != tt.want || ok != tt.ok {
			t.Errorf("translate(%v) = (%q, %v), want (%q, %v)", tt.op, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRootFor_WalksUpToNearestRegisteredAncestor(t *testing.T) {
	fw := &FSWatcher{
		roots:   map[string]bool{"/repo": true},
		dirRoot: map[string]string{"/repo": "/repo", "/repo/src": "/repo"},
	}
	root, ok := fw.rootFor("/repo/src/nested")
	if !ok || root != "/repo" {
		t.Errorf("rootFor(nested unregistered dir) = (%q, %v), want (/repo, true)", root, ok)
	}
}

func TestRootFor_Unregistered(t *testing.T) {
	fw := &FSWatcher{roots: map[string]bool{}, dirRoot: map[string]string{}}
	if _, ok := fw.rootFor("/somewhere/else"); ok {
		t.Error("rootFor on an unregistered path should report ok=false")
	}
}

func TestWatch_SkipsFixedExcludeDirectories(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}

	fw, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer fw.Close()

	if err := fw.Watch(dir); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if _, ok := fw.dirRoot[filepath.Join(dir, "node_modules")]; ok {
		t.Error("expected node_modules to be skipped")
	}
	if _, ok := fw.dirRoot[filepath.Join(dir, "src")]; !ok {
		t.Error("expected src to be watched")
	}
}

func TestUnwatch_RemovesAllDirsForRoot(t *testing.T) {
	fw, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer fw.Close()

	dir := t.TempDir()
	if err := fw.Watch(dir); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if err := fw.Unwatch(dir); err != nil {
		t.Fatalf("Unwatch() error = %v", err)
	}
	for _, root := range fw.dirRoot {
		if root == dir {
			t.Error("expected no dirRoot entries to remain for unwatched root")
		}
	}
	if fw.roots[dir] {
		t.Error("expected roots to no longer contain the unwatched root")
	}
}
