package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/paths"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/store"
)

// newExplainCmd is the `explain <hash>` correlation introspection command:
// a read-only window into what a shadow commit recorded — the stored
// ShadowCommit plus its optional correlation.
func newExplainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <hash>",
		Short: "Print what is known about a shadow commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd.Context(), cmd, args[0])
		},
	}
}

func runExplain(ctx context.Context, cmd *cobra.Command, hash string) error {
	storePath, err := paths.StorePath()
	if err != nil {
		return withExitCode(2, fmt.Errorf("explain: resolve store path: %w", err))
	}
	st, err := store.Open(ctx, storePath)
	if err != nil {
		return withExitCode(2, fmt.Errorf("explain: open store: %w", err))
	}
	defer st.Close()

	rec, err := st.CommitByHash(ctx, hash)
	if err != nil {
		return withExitCode(4, fmt.Errorf("explain: %w", err))
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Commit: %s\n", rec.Hash)
	fmt.Fprintf(w, "Repository: %s\n", rec.RepoRoot)
	fmt.Fprintf(w, "Shadow branch: %s (from %s)\n", rec.ShadowBranch, rec.OriginalBranch)
	fmt.Fprintf(w, "Committed: %s\n", rec.CommittedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Changes: +%d -%d\n", rec.Additions, rec.Deletions)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Message:\n  %s\n", rec.Message)
	fmt.Fprintln(w)

	switch rec.Origin {
	case store.OriginCorrelation:
		fmt.Fprintf(w, "Correlated session: %s (confidence %.2f)\n", rec.SessionID, rec.Confidence)
	case store.OriginDiff:
		fmt.Fprintln(w, "Correlated session: none (diff-only commit)")
	}

	fmt.Fprintln(w)
	if len(rec.Files) == 0 {
		fmt.Fprintln(w, "Files: (none)")
		return nil
	}
	fmt.Fprintf(w, "Files (%d):\n", len(rec.Files))
	for _, f := range rec.Files {
		fmt.Fprintf(w, "  - %s\n", f)
	}
	return nil
}
