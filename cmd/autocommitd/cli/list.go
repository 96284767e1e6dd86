package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/paths"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/store"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered repositories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), cmd)
		},
	}
}

// runList prints one line per registered repository in the exact form:
// "Monitoring: <tick-or-cross> <repo_path> (<enabled|disabled>)".
func runList(ctx context.Context, cmd *cobra.Command) error {
	storePath, err := paths.StorePath()
	if err != nil {
		return fmt.Errorf("list: resolve store path: %w", err)
	}
	st, err := store.Open(ctx, storePath)
	if err != nil {
		return fmt.Errorf("list: open store: %w", err)
	}
	defer st.Close()

	repos, err := st.ListRepositories(ctx)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	w := cmd.OutOrStdout()
	for _, r := range repos {
		mark := "✗"
		state := "disabled"
		if r.Enabled {
			mark = "✓"
			state = "enabled"
		}
		fmt.Fprintf(w, "Monitoring: %s %s (%s)\n", mark, r.RepoRoot, state)
	}
	return nil
}
