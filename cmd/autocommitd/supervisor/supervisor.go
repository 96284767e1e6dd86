// Package supervisor is the Engine Supervisor (T1): the
// top-level owner of every RepoWorker, the platform watcher, and the
// global concurrency cap on in-flight commits. It is the only component
// that starts or stops a RepoWorker's goroutine.
package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/classifier"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/correlator"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/errorkind"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/eventbus"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/gitexec"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/logging"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/repoconfig"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/shadow"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/store"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/watcher"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/worker"
)

// DefaultConcurrencyCap is the global limit on repositories simultaneously
// in the Committing/Persisting phase ("default 4").
const DefaultConcurrencyCap = 4

// drainTimeout bounds how long remove_repository and shutdown wait for a
// worker to finish its in-flight batch before forcing it to Degraded.
const drainTimeout = 30 * time.Second

// Deps are the shared collaborators every RepoWorker is wired to. The
// supervisor owns their lifetime except for Store, which the caller opens
// and closes (main.go needs it open before the supervisor exists, to fail
// fast on a corrupt schema).
type Deps struct {
	Git            *gitexec.Executor
	Classifier     *classifier.Classifier
	Shadow         *shadow.Manager
	Correlator     *correlator.Correlator
	Store          *store.Store
	Bus            *eventbus.Bus
	Watcher        watcher.Watcher
	ConcurrencyCap int // 0 uses DefaultConcurrencyCap
}

type workerEntry struct {
	cfg    repoconfig.RepositoryConfig
	worker *worker.RepoWorker
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor is the Engine Supervisor. The zero value is not usable; use
// New.
type Supervisor struct {
	deps Deps
	sem  *semaphore.Weighted

	baseCtx        context.Context
	dispatchCancel context.CancelFunc

	mu      sync.Mutex
	workers map[string]*workerEntry
}

// New returns a Supervisor wired to deps. Call Start to load previously
// registered repositories and begin dispatching watcher events.
func New(deps Deps) *Supervisor {
	concurrencyCap := deps.ConcurrencyCap
	if concurrencyCap <= 0 {
		concurrencyCap = DefaultConcurrencyCap
	}
	return &Supervisor{
		deps:    deps,
		sem:     semaphore.NewWeighted(int64(concurrencyCap)),
		workers: make(map[string]*workerEntry),
	}
}

// Bus exposes the event bus so the CLI's status surface can subscribe.
func (sv *Supervisor) Bus() *eventbus.Bus { return sv.deps.Bus }

// Store exposes the store's reader pool for status/explain queries.
func (sv *Supervisor) Store() *store.Store { return sv.deps.Store }

// Start loads every previously registered repository from the store,
// spawns its worker, registers it with the watcher, and begins the
// dispatch loop that routes watcher events to the owning worker. ctx
// governs the lifetime of every spawned goroutine; cancel it (or call
// Shutdown) to stop.
func (sv *Supervisor) Start(ctx context.Context) error {
	sv.baseCtx = ctx

	configs, err := sv.deps.Store.ListRepositories(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: list repositories: %w", err)
	}

	sv.mu.Lock()
	for _, cfg := range configs {
		if err := sv.deps.Watcher.Watch(cfg.RepoRoot); err != nil {
			logging.Warn(ctx, "supervisor: failed to watch repository at startup", "repo_root", cfg.RepoRoot, "error", err.Error())
			continue
		}
		sv.workers[cfg.RepoRoot] = sv.spawnWorker(cfg)
	}
	sv.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(ctx)
	sv.dispatchCancel = cancel
	go sv.deps.Watcher.Run(dispatchCtx)
	go sv.dispatchLoop(dispatchCtx)
	return nil
}

func (sv *Supervisor) spawnWorker(cfg repoconfig.RepositoryConfig) *workerEntry {
	ctx, cancel := context.WithCancel(sv.baseCtx)
	w := worker.New(cfg.RepoRoot, cfg, worker.Deps{
		Git:        sv.deps.Git,
		Classifier: sv.deps.Classifier,
		Shadow:     sv.deps.Shadow,
		Correlator: sv.deps.Correlator,
		Store:      sv.deps.Store,
		Bus:        sv.deps.Bus,
		Sem:        sv.sem,
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	return &workerEntry{cfg: cfg, worker: w, cancel: cancel, done: done}
}

func (sv *Supervisor) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sv.deps.Watcher.Events():
			sv.mu.Lock()
			entry, ok := sv.workers[ev.RepoRoot]
			sv.mu.Unlock()
			if ok {
				entry.worker.HandleFileEvent(ev.Path, ev.At)
			}
		}
	}
}

// AddRepository validates repoRoot is a git work tree, rejects it if
// already registered, persists its settings, spawns a worker, and
// registers the root with the watcher.
func (sv *Supervisor) AddRepository(ctx context.Context, repoRoot string, cfg repoconfig.RepositoryConfig) error {
	repoRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return fmt.Errorf("supervisor: resolve repo path: %w", err)
	}
	cfg.RepoRoot = repoRoot
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := sv.validateGitWorkTree(ctx, repoRoot); err != nil {
		return err
	}

	sv.mu.Lock()
	if _, exists := sv.workers[repoRoot]; exists {
		sv.mu.Unlock()
		return errorkind.ErrDuplicateRepo
	}
	sv.mu.Unlock()

	if err := sv.deps.Store.UpsertSettings(ctx, cfg); err != nil {
		return err
	}
	if err := sv.deps.Watcher.Watch(repoRoot); err != nil {
		_ = sv.deps.Store.DeleteSettings(ctx, repoRoot)
		return fmt.Errorf("supervisor: register watcher: %w", err)
	}

	sv.mu.Lock()
	sv.workers[repoRoot] = sv.spawnWorker(cfg)
	sv.mu.Unlock()
	return nil
}

func (sv *Supervisor) validateGitWorkTree(ctx context.Context, repoRoot string) error {
	result, err := sv.deps.Git.Execute(ctx, repoRoot, "rev-parse", []string{"--is-inside-work-tree"})
	if err != nil || result.ExitCode != 0 {
		return fmt.Errorf("%w: %s", errorkind.ErrNotAGitRepo, repoRoot)
	}
	return nil
}

// RemoveRepository drains the repository's worker, unregisters it from
// the watcher, and deletes its settings row. Historical shadow_commits
// and correlations rows are retained.
func (sv *Supervisor) RemoveRepository(ctx context.Context, repoRoot string) error {
	repoRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return fmt.Errorf("supervisor: resolve repo path: %w", err)
	}

	sv.mu.Lock()
	entry, ok := sv.workers[repoRoot]
	if ok {
		delete(sv.workers, repoRoot)
	}
	sv.mu.Unlock()
	if !ok {
		return errorkind.ErrUnknownRepo
	}

	sv.drainWorker(ctx, repoRoot, entry)
	_ = sv.deps.Watcher.Unwatch(repoRoot)
	return sv.deps.Store.DeleteSettings(ctx, repoRoot)
}

// drainWorker cancels the worker's context and waits up to drainTimeout
// for its goroutine to exit. A worker that misses the deadline is left
// running to finish or abandon its current phase at the next suspension
// point; its state will read Degraded if it never recovers.
func (sv *Supervisor) drainWorker(ctx context.Context, repoRoot string, entry *workerEntry) {
	entry.cancel()
	select {
	case <-entry.done:
	case <-time.After(drainTimeout):
		logging.Warn(ctx, "supervisor: worker did not drain in time", "repo_root", repoRoot, "timeout", drainTimeout.String())
	}
}

// UpdateSettings atomically persists cfg and hands it to the running
// worker; debounce/throttle changes take effect on the worker's next
// batch.
func (sv *Supervisor) UpdateSettings(ctx context.Context, repoRoot string, cfg repoconfig.RepositoryConfig) error {
	repoRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return fmt.Errorf("supervisor: resolve repo path: %w", err)
	}
	cfg.RepoRoot = repoRoot
	if err := cfg.Validate(); err != nil {
		return err
	}

	sv.mu.Lock()
	entry, ok := sv.workers[repoRoot]
	sv.mu.Unlock()
	if !ok {
		return errorkind.ErrUnknownRepo
	}

	if err := sv.deps.Store.UpsertSettings(ctx, cfg); err != nil {
		return err
	}
	entry.worker.UpdateSettings(cfg)

	sv.mu.Lock()
	entry.cfg = cfg
	sv.mu.Unlock()
	return nil
}

// Repositories returns a snapshot of every currently registered
// repository's configuration, sorted by the store (`list`).
func (sv *Supervisor) Repositories(ctx context.Context) ([]repoconfig.RepositoryConfig, error) {
	return sv.deps.Store.ListRepositories(ctx)
}

// Shutdown stops the watcher, drains every worker concurrently (bounded
// by drainTimeout each), and closes the store writer last. Errors from
// each step are aggregated rather than short-circuiting,
// so a slow worker does not prevent the store from being closed.
func (sv *Supervisor) Shutdown(ctx context.Context) error {
	var errs error

	if sv.dispatchCancel != nil {
		sv.dispatchCancel()
	}
	if err := sv.deps.Watcher.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("supervisor: close watcher: %w", err))
	}

	sv.mu.Lock()
	entries := make(map[string]*workerEntry, len(sv.workers))
	for root, e := range sv.workers {
		entries[root] = e
	}
	sv.mu.Unlock()

	var wg sync.WaitGroup
	for root, e := range entries {
		wg.Add(1)
		go func(root string, e *workerEntry) {
			defer wg.Done()
			sv.drainWorker(ctx, root, e)
		}(root, e)
	}
	wg.Wait()

	if err := sv.deps.Store.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("supervisor: close store: %w", err))
	}
	return errs
}
