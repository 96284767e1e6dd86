package cli

import (
	"github.com/spf13/cobra"
)

// Version and Commit are set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// NewRootCmd wires the command surface onto a cobra root command.
// Unknown subcommands and flags surface as cobra's own "unknown command"
// error; main.go maps that case to exit code 64.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "autocommitd",
		Short:         "Local auto-commit engine for shadow-branch history",
		Long:          "autocommitd watches a set of repositories and produces shadow-branch commits enriched with transcript correlation, without touching the user's own branches.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newExplainCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the autocommitd version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Println(Version + " (" + Commit + ")")
			return nil
		},
	}
}
