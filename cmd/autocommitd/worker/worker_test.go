package worker

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/classifier"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/errorkind"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/eventbus"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/gitexec"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/repoconfig"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/shadow"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/store"
)

func TestSaveBatch_AddKeepsLatestTimestamp(t *testing.T) {
	b := newSaveBatch()
	now := time.Now()
	b.add(fileEvent{path: "/r/a.ts", at: now})
	b.add(fileEvent{path: "/r/a.ts", at: now.Add(-1 * time.Second)})
	if got := b.paths["/r/a.ts"]; !got.Equal(now) {
		t.Errorf("expected latest timestamp retained, got %v", got)
	}
}

func TestMostRecent_AcceptedFiles(t *testing.T) {
	now := time.Now()
	accepted := []acceptedFile{
		{abs: "/r/a.ts", rel: "a.ts", at: now.Add(-10 * time.Second)},
		{abs: "/r/b.ts", rel: "b.ts", at: now},
	}
	got := mostRecent(accepted)
	if got.rel != "b.ts" {
		t.Errorf("mostRecent() = %+v, want b.ts", got)
	}
}

func TestSkipReasonFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errorkind.ErrAlreadyShadow, "already_shadow"},
		{errorkind.ErrDetachedHead, "detached_head"},
		{errorkind.ErrEmptyCommit, "empty_commit"},
		{errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		if got := skipReasonFor(tt.err); got != tt.want {
			t.Errorf("skipReasonFor(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRelPaths(t *testing.T) {
	accepted := []acceptedFile{{rel: "a.ts"}, {rel: "b.ts"}}
	got := relPaths(accepted)
	if len(got) != 2 || got[0] != "a.ts" || got[1] != "b.ts" {
		t.Errorf("relPaths() = %v", got)
	}
}

// initGitRepo creates a minimal git work tree with one committed file, so
// a real shadow commit can run against it.
func initGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "dev@example.com")
	run("config", "user.name", "dev")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("v0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "a.txt")
	run("commit", "-q", "-m", "initial")
	return dir
}

// TestRun_CooldownHoldsSecondCommitToThrottleFloor exercises the full
// debounce/commit/cooldown cycle against a real repository: a file event
// arriving while the worker is in Cooldown must not start a new debounce
// cycle immediately — it has to wait for the throttle floor, so two
// successive commits never land closer together than the configured
// throttle.
func TestRun_CooldownHoldsSecondCommitToThrottleFloor(t *testing.T) {
	repo := initGitRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	git, err := gitexec.New(0)
	if err != nil {
		t.Fatalf("gitexec.New() error = %v", err)
	}
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer st.Close()
	bus := eventbus.New()

	const throttle = 1000 * time.Millisecond
	cfg := repoconfig.Default(repo)
	cfg.ThrottleMS = throttle.Milliseconds()

	w := New(repo, cfg, Deps{
		Git:        git,
		Classifier: classifier.New(git),
		Shadow:     shadow.New(git),
		Store:      st,
		Bus:        bus,
	})

	commits, unsub := bus.Subscribe(8)
	defer unsub()
	go w.Run(ctx)

	filePath := filepath.Join(repo, "a.txt")
	writeAndNotify := func(content string) {
		if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		w.HandleFileEvent(filePath, time.Now())
	}

	waitForCommit := func() time.Time {
		t.Helper()
		for {
			select {
			case ev := <-commits:
				if ev.Kind == eventbus.KindCommitCreated {
					return time.Now()
				}
			case <-time.After(5 * time.Second):
				t.Fatal("timed out waiting for commit_created event")
			}
		}
	}

	writeAndNotify("v1\n")
	firstCommitAt := waitForCommit()

	// Sent almost immediately after the first commit, well inside the
	// Cooldown window: must not be committed until the throttle floor.
	time.Sleep(100 * time.Millisecond)
	writeAndNotify("v2\n")
	secondCommitAt := waitForCommit()

	spacing := secondCommitAt.Sub(firstCommitAt)
	if spacing < 850*time.Millisecond {
		t.Errorf("successive commits spaced %v apart, want >= throttle (%v)", spacing, throttle)
	}
}
