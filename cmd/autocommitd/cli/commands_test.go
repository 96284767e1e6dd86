package cli

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/paths"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/store"
)

// initGitRepo creates a minimal git work tree under t.TempDir() so add's
// "is this a git work tree" validation has something real to check.
func initGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-q")
	run("config", "user.email", "dev@example.com")
	run("config", "user.name", "dev")
	return dir
}

func withStateDir(t *testing.T) {
	t.Helper()
	t.Setenv(paths.StorePathEnvVar, filepath.Join(t.TempDir(), "autocommit.db"))
}

func TestAddListRemoveRoundTrip(t *testing.T) {
	withStateDir(t)
	repo := initGitRepo(t)
	ctx := context.Background()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"add", repo, "--throttle", "3000"})
	require.NoError(t, cmd.ExecuteContext(ctx))
	require.Contains(t, out.String(), "registered")

	out.Reset()
	cmd = NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"list"})
	require.NoError(t, cmd.ExecuteContext(ctx))
	require.Contains(t, out.String(), "Monitoring: ✓")
	require.Contains(t, out.String(), "(enabled)")

	out.Reset()
	cmd = NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"remove", repo})
	require.NoError(t, cmd.ExecuteContext(ctx))
	require.Contains(t, out.String(), "deregistered")

	out.Reset()
	cmd = NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"list"})
	require.NoError(t, cmd.ExecuteContext(ctx))
	require.Empty(t, out.String())
}

func TestAddDuplicateExitsThree(t *testing.T) {
	withStateDir(t)
	repo := initGitRepo(t)
	ctx := context.Background()

	first := NewRootCmd()
	first.SetArgs([]string{"add", repo})
	require.NoError(t, first.ExecuteContext(ctx))

	second := NewRootCmd()
	second.SetArgs([]string{"add", repo})
	err := second.ExecuteContext(ctx)
	require.Error(t, err)
	require.Equal(t, 3, ExitCode(err))
}

func TestAddNotAGitRepoExitsTwo(t *testing.T) {
	withStateDir(t)
	ctx := context.Background()

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"add", t.TempDir()})
	err := cmd.ExecuteContext(ctx)
	require.Error(t, err)
	require.Equal(t, 2, ExitCode(err))
}

func TestRemoveUnknownExitsFour(t *testing.T) {
	withStateDir(t)
	ctx := context.Background()

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"remove", t.TempDir()})
	err := cmd.ExecuteContext(ctx)
	require.Error(t, err)
	require.Equal(t, 4, ExitCode(err))
}

func TestStatusReportsZeroWithNoHistory(t *testing.T) {
	withStateDir(t)
	ctx := context.Background()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"status"})
	require.NoError(t, cmd.ExecuteContext(ctx))
	require.Contains(t, out.String(), "Total Commits: 0")
	require.Contains(t, out.String(), "Active Repositories: 0")
	require.Contains(t, out.String(), "Uptime: 0")
}

func TestStopWithNoRuntimeFileIsNotAnError(t *testing.T) {
	withStateDir(t)
	ctx := context.Background()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"stop"})
	require.NoError(t, cmd.ExecuteContext(ctx))
	require.Contains(t, out.String(), "not running")
}

func TestExplainPrintsCommitRecord(t *testing.T) {
	withStateDir(t)
	ctx := context.Background()

	storePath, err := paths.StorePath()
	require.NoError(t, err)
	st, err := store.Open(ctx, storePath)
	require.NoError(t, err)
	require.NoError(t, st.InsertCommit(ctx, store.CommitRecord{
		Hash:           "abc123",
		RepoRoot:       "/home/dev/project",
		ShadowBranch:   "shadow/main",
		OriginalBranch: "main",
		CommittedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Additions:      10,
		Deletions:      2,
		Message:        "Add retry logic",
		Origin:         store.OriginCorrelation,
		SessionID:      "sess-1",
		Confidence:     0.87,
		Files:          []string{"main.go", "retry.go"},
	}))
	require.NoError(t, st.Close())

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"explain", "abc123"})
	require.NoError(t, cmd.ExecuteContext(ctx))
	require.Contains(t, out.String(), "Commit: abc123")
	require.Contains(t, out.String(), "shadow/main (from main)")
	require.Contains(t, out.String(), "Correlated session: sess-1 (confidence 0.87)")
	require.Contains(t, out.String(), "main.go")
	require.Contains(t, out.String(), "retry.go")
}

func TestExplainUnknownHashExitsFour(t *testing.T) {
	withStateDir(t)
	ctx := context.Background()

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"explain", "doesnotexist"})
	err := cmd.ExecuteContext(ctx)
	require.Error(t, err)
	require.Equal(t, 4, ExitCode(err))
}

func TestStatusDetailedReportsShadowBranchAndCommitAge(t *testing.T) {
	withStateDir(t)
	repo := initGitRepo(t)
	ctx := context.Background()

	add := NewRootCmd()
	add.SetArgs([]string{"add", repo})
	require.NoError(t, add.ExecuteContext(ctx))

	storePath, err := paths.StorePath()
	require.NoError(t, err)
	st, err := store.Open(ctx, storePath)
	require.NoError(t, err)
	require.NoError(t, st.InsertCommit(ctx, store.CommitRecord{
		Hash:           "deadbeef",
		RepoRoot:       repo,
		ShadowBranch:   "shadow/main",
		OriginalBranch: "main",
		CommittedAt:    time.Now().Add(-time.Hour),
		Origin:         store.OriginDiff,
	}))
	require.NoError(t, st.Close())

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"status", "--detailed"})
	require.NoError(t, cmd.ExecuteContext(ctx))
	require.Contains(t, out.String(), repo)
	require.Contains(t, out.String(), "shadow branch:")
	require.Contains(t, out.String(), "last commit:")
}

func TestRuntimeInfoRoundTrip(t *testing.T) {
	withStateDir(t)
	start := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, writeRuntimeInfo(1234, start))

	info, ok := readRuntimeInfo()
	require.True(t, ok)
	require.Equal(t, 1234, info.PID)
	require.WithinDuration(t, start, info.StartedAt, time.Second)

	removeRuntimeInfo()
	_, ok = readRuntimeInfo()
	require.False(t, ok)
}
