package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/errorkind"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/gitexec"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/paths"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/repoconfig"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/store"
)

func newAddCmd() *cobra.Command {
	var throttleMS int64
	var maxSizeBytes int64
	var excludes []string

	cmd := &cobra.Command{
		Use:   "add <repo_path>",
		Short: "Register a repository for auto-commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return withExitCode(2, fmt.Errorf("add: resolve path: %w", err))
			}
			cfg := repoconfig.Default(absPath)
			if cmd.Flags().NFlag() == 0 && isInteractiveTerminal() {
				if err := promptAddWizard(&cfg); err != nil {
					return withExitCode(2, fmt.Errorf("add: wizard cancelled: %w", err))
				}
			} else {
				if throttleMS > 0 {
					cfg.ThrottleMS = throttleMS
				}
				if maxSizeBytes > 0 {
					cfg.MaxFileBytes = maxSizeBytes
				}
				cfg.Patterns = excludes
			}
			return runAdd(cmd.Context(), cmd, absPath, cfg)
		},
	}

	cmd.Flags().Int64Var(&throttleMS, "throttle", 0, "minimum interval between shadow commits, in milliseconds (default 2000, floor 500)")
	cmd.Flags().Int64Var(&maxSizeBytes, "max-size", 0, "maximum file size eligible for a shadow commit, in bytes (default 10MiB)")
	cmd.Flags().StringArrayVar(&excludes, "exclude", nil, "gitignore-style exclusion glob; may be repeated")

	return cmd
}

// runAdd validates repoPath is a git work tree and not already
// registered, then persists its settings. Exit codes: 2 on
// validation failure, 3 on duplicate, 0 on success.
func runAdd(ctx context.Context, cmd *cobra.Command, repoPath string, cfg repoconfig.RepositoryConfig) error {
	if err := cfg.Validate(); err != nil {
		return withExitCode(2, fmt.Errorf("add: %w", err))
	}

	git, err := gitexec.New(0)
	if err != nil {
		return withExitCode(2, fmt.Errorf("add: %w", err))
	}
	result, err := git.Execute(ctx, repoPath, "rev-parse", []string{"--is-inside-work-tree"})
	if err != nil || result.ExitCode != 0 {
		return withExitCode(2, fmt.Errorf("add: %w: %s", errorkind.ErrNotAGitRepo, repoPath))
	}

	storePath, err := paths.StorePath()
	if err != nil {
		return withExitCode(2, fmt.Errorf("add: resolve store path: %w", err))
	}
	st, err := store.Open(ctx, storePath)
	if err != nil {
		return withExitCode(2, fmt.Errorf("add: open store: %w", err))
	}
	defer st.Close()

	if _, err := st.ReadSettings(ctx, cfg.RepoRoot); !errors.Is(err, errorkind.ErrUnknownRepo) {
		if err == nil {
			return withExitCode(3, fmt.Errorf("add: %w: %s", errorkind.ErrDuplicateRepo, repoPath))
		}
		return withExitCode(2, fmt.Errorf("add: read settings: %w", err))
	}

	if err := st.UpsertSettings(ctx, cfg); err != nil {
		return withExitCode(2, fmt.Errorf("add: %w", err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", cfg.RepoRoot)
	return nil
}
