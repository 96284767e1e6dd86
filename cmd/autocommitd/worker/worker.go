package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/classifier"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/correlator"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/errorkind"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/eventbus"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/gitexec"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/logging"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/repoconfig"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/shadow"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/store"

	"golang.org/x/sync/semaphore"
)

// correlationBudget is the hard lookup timeout for a correlator Find
// call before it is treated as "no match".
const correlationBudget = 50 * time.Millisecond

// Deps are the collaborators a RepoWorker is wired to. All are shared
// across every worker the supervisor owns; none hold per-repository
// state of their own.
type Deps struct {
	Git        *gitexec.Executor
	Classifier *classifier.Classifier
	Shadow     *shadow.Manager
	Correlator *correlator.Correlator
	Store      *store.Store
	Bus        *eventbus.Bus
	// Sem bounds how many repositories may be in the Committing/Persisting
	// phase at once ("global concurrency cap, default 4").
	// Shared across every worker the supervisor owns; nil disables the cap.
	Sem *semaphore.Weighted
}

// RepoWorker is the per-repository state machine. One instance owns
// exactly one repository; its internal loop runs on its own goroutine
// started by Run.
type RepoWorker struct {
	repoRoot string
	deps     Deps

	mu    sync.Mutex
	state State
	cfg   repoconfig.RepositoryConfig

	events chan fileEvent
	resume chan struct{}
}

// New returns a RepoWorker for repoRoot, idle until Run is started.
func New(repoRoot string, cfg repoconfig.RepositoryConfig, deps Deps) *RepoWorker {
	return &RepoWorker{
		repoRoot: repoRoot,
		deps:     deps,
		cfg:      cfg,
		state:    StateIdle,
		events:   make(chan fileEvent, 256),
		resume:   make(chan struct{}, 1),
	}
}

// State returns the worker's current state.
func (w *RepoWorker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *RepoWorker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// UpdateSettings atomically swaps the repository's configuration.
// Debounce/throttle changes take effect on the next batch.
func (w *RepoWorker) UpdateSettings(cfg repoconfig.RepositoryConfig) {
	w.mu.Lock()
	w.cfg = cfg
	w.mu.Unlock()
}

// HandleFileEvent enqueues one raw (path, kind) observation from the
// platform watcher. Never blocks the watcher: if the internal queue is
// saturated, the event is dropped, which is safe because the watcher's
// delivery contract is at-least-once, not exactly-once.
func (w *RepoWorker) HandleFileEvent(path string, at time.Time) {
	select {
	case w.events <- fileEvent{path: path, at: at}:
	default:
		logging.Warn(context.Background(), "worker: event queue saturated, dropping event", "repo_root", w.repoRoot, "path", path)
	}
}

// Resume signals a Degraded worker to return to Idle; this transition is
// supervisor-initiated only.
func (w *RepoWorker) Resume() {
	select {
	case w.resume <- struct{}{}:
	default:
	}
}

// Run drives the state machine until ctx is canceled. It is meant to be
// started in its own goroutine by the supervisor.
//
// Events arriving while the worker is in Cooldown never start a new
// debounce cycle: they accumulate into cooldownBatch instead, and that
// batch is only frozen once cooldownTimer fires. Since cooldownTimer is
// always armed for exactly the repository's throttle after a commit,
// this guarantees successive commits land no closer than throttle apart
// even under continuous file activity.
func (w *RepoWorker) Run(ctx context.Context) {
	var batch *saveBatch
	var debounceTimer *time.Timer
	var debounceStart time.Time
	var cooldownTimer *time.Timer
	var cooldownBatch *saveBatch

	resetDebounce := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = nil
		batch = nil
	}

	armCooldown := func() {
		if w.State() == StateCooldown && cooldownTimer == nil {
			cooldownTimer = time.NewTimer(w.currentThrottle())
		}
	}

	for {
		select {
		case <-ctx.Done():
			resetDebounce()
			return

		case ev := <-w.events:
			if w.State() == StateDegraded {
				continue // ignore new events while degraded; Resume() clears this
			}
			if w.State() == StateCooldown {
				// Held until the throttle floor elapses; see cooldownTimer.
				if cooldownBatch == nil {
					cooldownBatch = newSaveBatch()
				}
				cooldownBatch.add(ev)
				continue
			}
			if batch == nil {
				batch = newSaveBatch()
				debounceStart = ev.at
				w.setState(StateDebouncing)
			}
			batch.add(ev)

			throttleCap := w.currentThrottle() * 2
			elapsed := ev.at.Sub(debounceStart)
			wait := debounceWindow()
			if elapsed+wait > throttleCap {
				wait = throttleCap - elapsed
				if wait < 0 {
					wait = 0
				}
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(wait)

		case <-timerC(debounceTimer):
			frozen := batch
			resetDebounce()
			w.processBatch(ctx, frozen)
			armCooldown()

		case <-timerC(cooldownTimer):
			cooldownTimer = nil
			frozen := cooldownBatch
			cooldownBatch = nil
			if frozen != nil && !frozen.empty() {
				w.processBatch(ctx, frozen)
				armCooldown()
				continue
			}
			w.setState(StateIdle)

		case <-w.resume:
			if w.State() != StateDegraded {
				continue
			}
			if w.gitStatusClean(ctx) {
				w.setState(StateIdle)
			}
		}
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// debounceWindow is the fixed 500ms collapse window.
func debounceWindow() time.Duration { return 500 * time.Millisecond }

func (w *RepoWorker) currentThrottle() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg.Throttle()
}

func (w *RepoWorker) currentConfig() repoconfig.RepositoryConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

// acceptedFile pairs a classified-accept path in both its absolute and
// repo-relative forms, so later stages can read file content (absolute)
// while git commands and message text use the relative form.
type acceptedFile struct {
	abs string
	rel string
	at  time.Time
}

// processBatch runs Classifying -> Correlating -> Committing ->
// Persisting for one frozen SaveBatch, ending in Idle, Cooldown, or
// Degraded.
func (w *RepoWorker) processBatch(ctx context.Context, batch *saveBatch) {
	if batch == nil || batch.empty() {
		w.setState(StateIdle)
		return
	}

	cfg := w.currentConfig()
	if cfg.PauseOnDefault && w.onDefaultBranch(ctx, cfg.RepoRoot) {
		w.deps.Bus.Publish(eventbus.Event{Kind: eventbus.KindCommitSkipped, RepoRoot: w.repoRoot, Reason: "paused_on_default_branch"})
		w.setState(StateIdle)
		return
	}

	w.setState(StateClassifying)
	accepted, secretSuspected := w.classifyBatch(ctx, cfg, batch)

	if len(accepted) == 0 {
		w.deps.Bus.Publish(eventbus.Event{Kind: eventbus.KindCommitSkipped, RepoRoot: w.repoRoot, Reason: "none_accepted"})
		w.setState(StateIdle)
		return
	}
	for _, path := range secretSuspected {
		w.deps.Bus.Publish(eventbus.Event{Kind: eventbus.KindSecretSuspected, RepoRoot: w.repoRoot, Path: path})
	}

	w.setState(StateCorrelating)
	rep := mostRecent(accepted)
	corr := w.tryCorrelate(ctx, rep.abs, rep.at)

	w.setState(StateCommitting)
	if w.deps.Sem != nil {
		if err := w.deps.Sem.Acquire(ctx, 1); err != nil {
			w.setState(StateIdle)
			return
		}
		defer w.deps.Sem.Release(1)
	}
	relFiles := relPaths(accepted)
	result, message, stats, err := w.commit(ctx, cfg.RepoRoot, relFiles, corr)
	if err != nil {
		w.handleCommitError(err)
		return
	}

	w.setState(StatePersisting)
	w.persist(ctx, result, relFiles, message, stats, corr)
	w.setState(StateCooldown)
}

// classifyBatch resolves relative paths, batches check-ignore, and
// classifies each path, returning the accepted files and the subset
// rejected specifically for a suspected secret (its relative path, for
// the secret_suspected event).
func (w *RepoWorker) classifyBatch(ctx context.Context, cfg repoconfig.RepositoryConfig, batch *saveBatch) (accepted []acceptedFile, secretSuspected []string) {
	patterns := repoconfig.NewPatternMatcher(cfg.Patterns)
	paths := batch.sortedPaths()

	relByAbs := make(map[string]string, len(paths))
	relPaths := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(cfg.RepoRoot, p)
		if err != nil {
			continue
		}
		relByAbs[p] = rel
		relPaths = append(relPaths, rel)
	}

	ignored, err := w.deps.Classifier.BatchCheckIgnore(ctx, cfg.RepoRoot, relPaths)
	if err != nil {
		logging.Warn(ctx, "worker: batch check-ignore failed, treating all as not ignored", "repo_root", w.repoRoot, "error", err.Error())
		ignored = map[string]bool{}
	}

	for _, p := range paths {
		verdict := w.deps.Classifier.Classify(ctx, cfg, patterns, ignored, p)
		if verdict.Accept {
			accepted = append(accepted, acceptedFile{abs: p, rel: relByAbs[p], at: batch.paths[p]})
			continue
		}
		if verdict.Reason == classifier.ReasonSecretSuspected {
			secretSuspected = append(secretSuspected, relByAbs[p])
		}
	}
	return accepted, secretSuspected
}

// mostRecent returns the accepted file with the latest event timestamp,
// the representative path for correlation.
func mostRecent(accepted []acceptedFile) acceptedFile {
	best := accepted[0]
	for _, a := range accepted[1:] {
		if a.at.After(best.at) {
			best = a
		}
	}
	return best
}

func relPaths(accepted []acceptedFile) []string {
	out := make([]string, len(accepted))
	for i, a := range accepted {
		out[i] = a.rel
	}
	return out
}

func (w *RepoWorker) tryCorrelate(ctx context.Context, path string, at time.Time) *correlation {
	if path == "" || w.deps.Correlator == nil {
		return nil
	}
	sessionID, confidence, ok := w.deps.Correlator.FindWithTimeout(ctx, path, at, correlationBudget)
	if !ok {
		return nil
	}
	summary, quote := w.deps.Correlator.Summary(sessionID, at)
	return &correlation{sessionID: sessionID, confidence: confidence, summary: summary, quote: quote}
}

// commit builds the commit message and runs the shadow commit algorithm.
func (w *RepoWorker) commit(ctx context.Context, repoRoot string, relFiles []string, corr *correlation) (shadow.CommitResult, string, diffStats, error) {
	branch, err := w.deps.Shadow.CurrentBranch(ctx, repoRoot)
	if err != nil {
		return shadow.CommitResult{}, "", diffStats{}, err
	}
	shadowName, err := shadow.ShadowOf(branch)
	if err != nil {
		return shadow.CommitResult{}, "", diffStats{}, err
	}

	stats := w.aggregateDiffStats(ctx, repoRoot, relFiles)
	message := composeMessage(shadowName, relFiles, stats, corr)

	result, err := w.deps.Shadow.CommitBatch(ctx, repoRoot, relFiles, message)
	return result, message, stats, err
}

// aggregateDiffStats computes +added/-removed lines across every file in
// the batch, comparing each file's current working-tree content against
// its HEAD blob (empty string for a new file).
func (w *RepoWorker) aggregateDiffStats(ctx context.Context, repoRoot string, relFiles []string) diffStats {
	perFile := make([]diffStats, 0, len(relFiles))
	for _, rel := range relFiles {
		before := w.readHeadBlob(ctx, repoRoot, rel)
		after, err := os.ReadFile(filepath.Join(repoRoot, rel))
		if err != nil {
			continue
		}
		perFile = append(perFile, fileDiffStats(before, string(after)))
	}
	return sumStats(perFile)
}

// readHeadBlob returns relPath's content as of HEAD, or "" if it has no
// HEAD blob (a new file). cat-file -p accepts any <rev>:<path> object
// spec, so this needs no separate rev-parse step.
func (w *RepoWorker) readHeadBlob(ctx context.Context, repoRoot, relPath string) string {
	result, err := w.deps.Git.Execute(ctx, repoRoot, "cat-file", []string{"-p", "HEAD:" + relPath})
	if err != nil {
		return ""
	}
	return result.Stdout
}

func (w *RepoWorker) handleCommitError(err error) {
	switch {
	case errors.Is(err, errorkind.ErrAlreadyShadow), errors.Is(err, errorkind.ErrDetachedHead), errors.Is(err, errorkind.ErrEmptyCommit):
		w.deps.Bus.Publish(eventbus.Event{Kind: eventbus.KindCommitSkipped, RepoRoot: w.repoRoot, Reason: skipReasonFor(err)})
		w.setState(StateIdle)
	default:
		w.deps.Bus.Publish(eventbus.Event{Kind: eventbus.KindCommitFailed, RepoRoot: w.repoRoot, ErrorKind: "git_error"})
		w.deps.Bus.Publish(eventbus.Event{Kind: eventbus.KindRepoDegraded, RepoRoot: w.repoRoot})
		w.setState(StateDegraded)
	}
}

func skipReasonFor(err error) string {
	switch {
	case errors.Is(err, errorkind.ErrAlreadyShadow):
		return "already_shadow"
	case errors.Is(err, errorkind.ErrDetachedHead):
		return "detached_head"
	case errors.Is(err, errorkind.ErrEmptyCommit):
		return "empty_commit"
	default:
		return "unknown"
	}
}

func (w *RepoWorker) persist(ctx context.Context, result shadow.CommitResult, files []string, message string, stats diffStats, corr *correlation) {
	rec := store.CommitRecord{
		Hash:           result.Hash,
		RepoRoot:       w.repoRoot,
		ShadowBranch:   result.ShadowBranch,
		OriginalBranch: result.OriginalBranch,
		CommittedAt:    time.Now(),
		Additions:      stats.additions,
		Deletions:      stats.deletions,
		Message:        message,
		Origin:         store.OriginDiff,
		Files:          files,
	}
	if corr != nil {
		rec.Origin = store.OriginCorrelation
		rec.SessionID = corr.sessionID
		rec.Confidence = corr.confidence
	}

	event := eventbus.Event{Kind: eventbus.KindCommitCreated, RepoRoot: w.repoRoot, Hash: result.Hash}
	if corr != nil {
		event.SessionID = corr.sessionID
		event.Confidence = corr.confidence
	}
	w.deps.Bus.Publish(event)

	if err := w.deps.Store.InsertCommit(ctx, rec); err != nil {
		logging.Error(ctx, "worker: store write failed, commit remains live in git", "repo_root", w.repoRoot, "hash", result.Hash, "error", err.Error())
		w.deps.Bus.Publish(eventbus.Event{Kind: eventbus.KindCommitFailed, RepoRoot: w.repoRoot, Hash: result.Hash, ErrorKind: "store_write_failed"})
	}
}

// onDefaultBranch reports whether repoRoot's current branch is its
// default branch. Fails open (false) if either the current or default
// branch cannot be resolved, so a repository with no discoverable
// default branch is never silently paused forever.
func (w *RepoWorker) onDefaultBranch(ctx context.Context, repoRoot string) bool {
	current, err := w.deps.Shadow.CurrentBranch(ctx, repoRoot)
	if err != nil {
		return false
	}
	def, err := w.deps.Shadow.DefaultBranch(ctx, repoRoot)
	if err != nil {
		return false
	}
	return current == def
}

func (w *RepoWorker) gitStatusClean(ctx context.Context) bool {
	cfg := w.currentConfig()
	result, err := w.deps.Git.Execute(ctx, cfg.RepoRoot, "status", []string{"--porcelain"})
	if err != nil {
		return false
	}
	return result.Stdout == ""
}
