// Package errorkind is the shared sentinel error taxonomy for the engine.
// Callers distinguish errors with errors.Is/errors.As; the taxonomy names
// a kind, not a concrete type, so every layer wraps these with %w rather
// than minting its own error values for the same condition.
package errorkind

import "errors"

// Configuration errors: surfaced to the caller, never retried.
var (
	ErrNotAGitRepo    = errors.New("not a git work tree")
	ErrDuplicateRepo  = errors.New("repository already registered")
	ErrUnknownRepo    = errors.New("repository not registered")
	ErrInvalidPattern = errors.New("invalid exclusion pattern")
)

// Transient git errors: retried once after 500ms within the same worker
// phase; further failures degrade the worker.
var (
	ErrGitTimeout  = errors.New("git invocation timed out")
	ErrGitLockHeld = errors.New("git index/ref lock held by another process")
)

// Benign skips: logged at debug, worker returns to Idle.
var (
	ErrAlreadyShadow   = errors.New("branch is already a shadow branch")
	ErrDetachedHead    = errors.New("HEAD is detached")
	ErrEmptyCommit     = errors.New("no staged changes to commit")
	ErrNoDefaultBranch = errors.New("repository has no discoverable default branch")
)

// Safety stops: file excluded from the batch, an event is published, the
// remainder of the batch proceeds if any accepted files remain.
var (
	ErrSecretSuspected = errors.New("secret suspected in file content")
	ErrSensitivePath   = errors.New("path matches a sensitive exclusion")
)

// Hard failures: worker transitions to Degraded and pauses.
var (
	ErrDisallowedGitCommand = errors.New("disallowed git subcommand")
	ErrStoreWriteFailed     = errors.New("store write failed")
	ErrWorkingTreeCorrupted = errors.New("working tree left in an inconsistent state")
)

// Concurrency guards: a new batch arriving while one is committing is
// coalesced into the next SaveBatch, never dropped.
var ErrCommitInFlight = errors.New("a commit is already in flight for this repository")
