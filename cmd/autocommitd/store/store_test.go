package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/errorkind"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/repoconfig"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "autocommit.db")
	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSettingsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cfg := repoconfig.Default("/home/dev/project")
	cfg.Patterns = []string{"*.secret", "build/"}
	cfg.Notification = repoconfig.NotifyBatchedN

	if err := s.UpsertSettings(ctx, cfg); err != nil {
		t.Fatalf("UpsertSettings() error = %v", err)
	}

	got, err := s.ReadSettings(ctx, cfg.RepoRoot)
	if err != nil {
		t.Fatalf("ReadSettings() error = %v", err)
	}
	if got.RepoRoot != cfg.RepoRoot || got.Notification != cfg.Notification || len(got.Patterns) != 2 {
		t.Errorf("ReadSettings() = %+v, want round-trip of %+v", got, cfg)
	}
}

func TestReadSettings_UnknownRepo(t *testing.T) {
	s := openTestStore(t)
	_, err := s.ReadSettings(context.Background(), "/nowhere")
	if err != errorkind.ErrUnknownRepo {
		t.Errorf("ReadSettings() error = %v, want ErrUnknownRepo", err)
	}
}

func TestInsertCommit_DiffOrigin(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := CommitRecord{
		Hash:           "abc123",
		RepoRoot:       "/home/dev/project",
		ShadowBranch:   "shadow/main",
		OriginalBranch: "main",
		CommittedAt:    time.Now(),
		Additions:      3,
		Deletions:      1,
		Message:        "Auto-save (1 files) — shadow/main",
		Origin:         OriginDiff,
		Files:          []string{"src/a.ts"},
	}
	if err := s.InsertCommit(ctx, rec); err != nil {
		t.Fatalf("InsertCommit() error = %v", err)
	}

	got, err := s.CommitByHash(ctx, "abc123")
	if err != nil {
		t.Fatalf("CommitByHash() error = %v", err)
	}
	if got.Origin != OriginDiff || len(got.Files) != 1 || got.Files[0] != "src/a.ts" {
		t.Errorf("CommitByHash() = %+v", got)
	}
	if got.SessionID != "" {
		t.Errorf("expected no session id for diff-origin commit, got %q", got.SessionID)
	}
}

func TestInsertCommit_CorrelationOrigin(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := CommitRecord{
		Hash:           "def456",
		RepoRoot:       "/home/dev/project",
		ShadowBranch:   "shadow/feature/x",
		OriginalBranch: "feature/x",
		CommittedAt:    time.Now(),
		Message:        "Fix the thing — shadow/feature/x",
		Origin:         OriginCorrelation,
		SessionID:      "7744aef1",
		Confidence:     0.7,
		Files:          []string{"src/a.ts", "src/b.ts"},
	}
	if err := s.InsertCommit(ctx, rec); err != nil {
		t.Fatalf("InsertCommit() error = %v", err)
	}

	got, err := s.CommitByHash(ctx, "def456")
	if err != nil {
		t.Fatalf("CommitByHash() error = %v", err)
	}
	if got.SessionID != "7744aef1" || got.Confidence != 0.7 {
		t.Errorf("CommitByHash() = %+v, want session 7744aef1 confidence 0.7", got)
	}
	if len(got.Files) != 2 {
		t.Errorf("len(Files) = %d, want 2", len(got.Files))
	}
}

func TestRecentCommits_OrderedNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-1 * time.Hour)

	for i, hash := range []string{"h1", "h2", "h3"} {
		rec := CommitRecord{
			Hash:           hash,
			RepoRoot:       "/home/dev/project",
			ShadowBranch:   "shadow/main",
			OriginalBranch: "main",
			CommittedAt:    base.Add(time.Duration(i) * time.Minute),
			Message:        "Auto-save",
			Origin:         OriginDiff,
			Files:          []string{"a.ts"},
		}
		if err := s.InsertCommit(ctx, rec); err != nil {
			t.Fatalf("InsertCommit(%s) error = %v", hash, err)
		}
	}

	got, err := s.RecentCommits(ctx, "/home/dev/project", 10)
	if err != nil {
		t.Fatalf("RecentCommits() error = %v", err)
	}
	if len(got) != 3 || got[0].Hash != "h3" || got[2].Hash != "h1" {
		t.Errorf("RecentCommits() = %v, want [h3 h2 h1]", got)
	}
}

func TestCompareSemver(t *testing.T) {
	if compareSemver("v1.0.0", "v1.0.0") != 0 {
		t.Error("expected equal versions to compare 0")
	}
	if compareSemver("v1.9.0", "v1.10.0") >= 0 {
		t.Error("expected v1.9.0 < v1.10.0")
	}
}
