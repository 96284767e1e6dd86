package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/gitexec"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/paths"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/repoconfig"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/shadow"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/store"
)

func newStatusCmd() *cobra.Command {
	var detailed bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print engine status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := runStatus(cmd.Context(), cmd); err != nil {
				return err
			}
			if detailed {
				return runStatusDetailed(cmd.Context(), cmd)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&detailed, "detailed", false, "also report, per repository, shadow branch health and last-commit age")
	return cmd
}

// runStatus prints three fixed lines, in order.
// "Total Commits" and "Active Repositories" are read straight from the
// store so `status` works whether or not an engine process is currently
// running; "Uptime" comes from the runtime file `start` maintains.
func runStatus(ctx context.Context, cmd *cobra.Command) error {
	storePath, err := paths.StorePath()
	if err != nil {
		return fmt.Errorf("status: resolve store path: %w", err)
	}
	st, err := store.Open(ctx, storePath)
	if err != nil {
		return fmt.Errorf("status: open store: %w", err)
	}
	defer st.Close()

	totalCommits, err := st.CountCommits(ctx)
	if err != nil {
		return fmt.Errorf("status: count commits: %w", err)
	}

	repos, err := st.ListRepositories(ctx)
	if err != nil {
		return fmt.Errorf("status: list repositories: %w", err)
	}
	active := 0
	for _, r := range repos {
		if r.Enabled {
			active++
		}
	}

	uptimeSeconds := int64(0)
	if info, ok := readRuntimeInfo(); ok && processAlive(info.PID) {
		uptimeSeconds = int64(time.Since(info.StartedAt).Seconds())
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Total Commits: %d\n", totalCommits)
	fmt.Fprintf(w, "Active Repositories: %d\n", active)
	fmt.Fprintf(w, "Uptime: %d\n", uptimeSeconds)
	return nil
}

// runStatusDetailed is the `status --detailed` self-check: for every
// registered repository, report whether its shadow branch exists and how
// long ago its last commit landed. Read-only; opens the store
// independently of whether the engine is currently running.
func runStatusDetailed(ctx context.Context, cmd *cobra.Command) error {
	storePath, err := paths.StorePath()
	if err != nil {
		return fmt.Errorf("status --detailed: resolve store path: %w", err)
	}
	st, err := store.Open(ctx, storePath)
	if err != nil {
		return fmt.Errorf("status --detailed: open store: %w", err)
	}
	defer st.Close()

	repos, err := st.ListRepositories(ctx)
	if err != nil {
		return fmt.Errorf("status --detailed: list repositories: %w", err)
	}

	git, err := gitexec.New(0)
	if err != nil {
		return fmt.Errorf("status --detailed: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w)
	for _, r := range repos {
		printRepoDetail(ctx, w, git, st, r)
	}
	return nil
}

func printRepoDetail(ctx context.Context, w io.Writer, git *gitexec.Executor, st *store.Store, r repoconfig.RepositoryConfig) {
	branchState := "unknown"
	if sv := shadow.New(git); sv != nil {
		if current, err := sv.CurrentBranch(ctx, r.RepoRoot); err == nil {
			shadowName, err := shadow.ShadowOf(current)
			if err == nil {
				if _, execErr := git.Execute(ctx, r.RepoRoot, "show-ref", []string{"--verify", "--quiet", "refs/heads/" + shadowName}); execErr == nil {
					branchState = shadowName + " (exists)"
				} else {
					branchState = shadowName + " (not yet created)"
				}
			}
		} else {
			branchState = "detached HEAD"
		}
	}

	lastCommitAge := "never"
	if recent, err := st.RecentCommits(ctx, r.RepoRoot, 1); err == nil && len(recent) > 0 {
		lastCommitAge = humanize.Time(recent[0].CommittedAt)
	}

	fmt.Fprintf(w, "%s\n  shadow branch: %s\n  last commit: %s\n\n", r.RepoRoot, branchState, lastCommitAge)
}
