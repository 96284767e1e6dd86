package cli

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Signal a running engine to shut down",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStop(cmd)
		},
	}
}

// runStop signals the process recorded by `start`'s runtime file to shut
// down; it does not block waiting for it to exit. If no engine appears
// to be running, that is itself treated as acknowledgment: there is
// nothing left to stop.
func runStop(cmd *cobra.Command) error {
	info, ok := readRuntimeInfo()
	if !ok || !processAlive(info.PID) {
		removeRuntimeInfo()
		fmt.Fprintln(cmd.OutOrStdout(), "autocommitd is not running")
		return nil
	}

	proc, err := os.FindProcess(info.PID)
	if err != nil {
		return fmt.Errorf("stop: locate process %d: %w", info.PID, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("stop: signal process %d: %w", info.PID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent shutdown signal to autocommitd (pid %d)\n", info.PID)
	return nil
}
