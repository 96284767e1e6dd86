package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/classifier"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/correlator"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/eventbus"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/gitexec"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/logging"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/paths"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/shadow"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/store"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/supervisor"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/watcher"
)

// correlationWindow is the default correlation window.
const correlationWindow = 10 * time.Second

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch the engine in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd.Context())
		},
	}
	return cmd
}

// runStart wires every collaborator together, opens the
// store, and runs the supervisor until ctx is canceled (SIGINT/SIGTERM,
// handled by main.go). It exits 0 on clean shutdown.
func runStart(ctx context.Context) error {
	stateDir, err := paths.EnsureStateDirs()
	if err != nil {
		return fmt.Errorf("start: prepare state directory: %w", err)
	}
	if err := logging.Init(stateDir, ""); err != nil {
		return fmt.Errorf("start: init logging: %w", err)
	}
	defer logging.Close()

	storePath, err := paths.StorePath()
	if err != nil {
		return fmt.Errorf("start: resolve store path: %w", err)
	}
	st, err := store.Open(ctx, storePath)
	if err != nil {
		return fmt.Errorf("start: open store: %w", err)
	}
	defer st.Close()

	git, err := gitexec.New(0)
	if err != nil {
		return fmt.Errorf("start: locate git: %w", err)
	}
	fsWatcher, err := watcher.New()
	if err != nil {
		return fmt.Errorf("start: init watcher: %w", err)
	}

	corr := correlator.New(correlationWindow)
	bus := eventbus.New()

	sv := supervisor.New(supervisor.Deps{
		Git:        git,
		Classifier: classifier.New(git),
		Shadow:     shadow.New(git),
		Correlator: corr,
		Store:      st,
		Bus:        bus,
		Watcher:    fsWatcher,
	})

	if root := paths.TranscriptRoot(); root != "" {
		go func() {
			if err := corr.WatchRoot(ctx, root); err != nil {
				logging.Warn(ctx, "start: transcript correlator stopped", "root", root, "error", err.Error())
			}
		}()
	}

	if err := sv.Start(ctx); err != nil {
		return fmt.Errorf("start: supervisor: %w", err)
	}

	startedAt := time.Now().UTC()
	if err := writeRuntimeInfo(os.Getpid(), startedAt); err != nil {
		logging.Warn(ctx, "start: failed to write runtime info, `status`/`stop` will not find this process", "error", err.Error())
	}
	defer removeRuntimeInfo()

	logging.Info(ctx, "autocommitd: started", "state_dir", stateDir)
	<-ctx.Done()
	logging.Info(ctx, "autocommitd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
	defer cancel()
	return sv.Shutdown(shutdownCtx)
}
