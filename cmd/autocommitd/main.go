package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/cli"
)

// Version and Commit are set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	cli.Version = Version
	cli.Commit = Commit

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	rootCmd := cli.NewRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err == nil {
		os.Exit(0)
	}

	if isUnknownCommandErr(err) {
		fmt.Fprintln(rootCmd.OutOrStderr(), err)
		os.Exit(64)
	}

	fmt.Fprintln(rootCmd.OutOrStderr(), err)
	os.Exit(cli.ExitCode(err))
}

// isUnknownCommandErr matches cobra's own error text for an unrecognized
// subcommand or flag, mapped to exit code 64.
func isUnknownCommandErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unknown command") || strings.Contains(msg, "unknown flag") || strings.Contains(msg, "unknown shorthand flag")
}
