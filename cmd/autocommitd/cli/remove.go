package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/errorkind"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/paths"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/store"
)

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <repo_path>",
		Short: "Deregister a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), cmd, args[0])
		},
	}
}

// runRemove deletes repoPath's settings row, retaining its historical
// shadow_commits/correlations rows. Exit code 4 if the
// repository was never registered.
func runRemove(ctx context.Context, cmd *cobra.Command, repoPath string) error {
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return withExitCode(4, fmt.Errorf("remove: resolve path: %w", err))
	}

	storePath, err := paths.StorePath()
	if err != nil {
		return fmt.Errorf("remove: resolve store path: %w", err)
	}
	st, err := store.Open(ctx, storePath)
	if err != nil {
		return fmt.Errorf("remove: open store: %w", err)
	}
	defer st.Close()

	if _, err := st.ReadSettings(ctx, absPath); err != nil {
		if errors.Is(err, errorkind.ErrUnknownRepo) {
			return withExitCode(4, fmt.Errorf("remove: %w: %s", errorkind.ErrUnknownRepo, absPath))
		}
		return fmt.Errorf("remove: read settings: %w", err)
	}

	if err := st.DeleteSettings(ctx, absPath); err != nil {
		return fmt.Errorf("remove: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "deregistered %s\n", absPath)
	return nil
}
