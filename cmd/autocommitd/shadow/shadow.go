// Package shadow implements the Shadow Branch Manager (L3):
// deriving the shadow branch name for a repository's current branch and
// running the atomic commit_batch algorithm against it through the L2
// git executor. It never touches the user's own branch except to check
// it out transiently and return to it.
package shadow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/errorkind"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/gitexec"
)

const shadowPrefix = "shadow/"

// Manager runs the commit_batch algorithm against one repository at a
// time, serialized by the caller through the L2 executor's per-repo lock.
type Manager struct {
	git *gitexec.Executor
}

// New returns a Manager that executes git through git.
func New(git *gitexec.Executor) *Manager {
	return &Manager{git: git}
}

// CurrentBranch reads HEAD via symbolic-ref --short. Returns
// errorkind.ErrDetachedHead if HEAD does not point at a branch.
func (m *Manager) CurrentBranch(ctx context.Context, repoRoot string) (string, error) {
	result, err := m.git.Execute(ctx, repoRoot, "symbolic-ref", []string{"--short", "HEAD"})
	if err != nil {
		return "", fmt.Errorf("%w: %w", errorkind.ErrDetachedHead, err)
	}
	name := strings.TrimSpace(result.Stdout)
	if name == "" {
		return "", errorkind.ErrDetachedHead
	}
	return name, nil
}

// DefaultBranch resolves the repository's default branch: the branch
// origin's HEAD points at, if a remote is configured, otherwise
// whichever of "main" or "master" exists as a local branch. Returns
// errorkind.ErrNoDefaultBranch if neither resolves.
func (m *Manager) DefaultBranch(ctx context.Context, repoRoot string) (string, error) {
	if result, err := m.git.Execute(ctx, repoRoot, "symbolic-ref", []string{"--short", "refs/remotes/origin/HEAD"}); err == nil {
		name := strings.TrimSpace(result.Stdout)
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		if name != "" {
			return name, nil
		}
	}
	for _, candidate := range []string{"main", "master"} {
		if _, err := m.git.Execute(ctx, repoRoot, "show-ref", []string{"--verify", "--quiet", "refs/heads/" + candidate}); err == nil {
			return candidate, nil
		}
	}
	return "", errorkind.ErrNoDefaultBranch
}

// ShadowOf derives the shadow branch name for an original branch name. It
// fails with errorkind.ErrAlreadyShadow if name is already a shadow
// branch, preventing shadow-of-shadow chains.
func ShadowOf(name string) (string, error) {
	if strings.HasPrefix(name, shadowPrefix) {
		return "", errorkind.ErrAlreadyShadow
	}
	return shadowPrefix + name, nil
}

// EnsureShadowExists creates shadowName at baseCommit if it does not
// already exist; otherwise it is a no-op.
func (m *Manager) EnsureShadowExists(ctx context.Context, repoRoot, shadowName, baseCommit string) error {
	_, err := m.git.Execute(ctx, repoRoot, "show-ref", []string{"--verify", "--quiet", "refs/heads/" + shadowName})
	if err == nil {
		return nil
	}
	_, err = m.git.Execute(ctx, repoRoot, "branch", []string{shadowName, baseCommit})
	if err != nil {
		return fmt.Errorf("shadow: create %s at %s: %w", shadowName, baseCommit, err)
	}
	return nil
}

// CommitResult is the outcome of a successful commit_batch.
type CommitResult struct {
	Hash           string
	ShadowBranch   string
	OriginalBranch string
}

// CommitBatch runs the eleven-step atomic commit algorithm against
// repoRoot. Preconditions held by the caller: the L2 mutex
// for this repository, files non-empty, every file already classified
// accept. On any failure it rolls back to leave the original branch and
// working tree observationally unchanged, then returns the error.
//
// The manager always stages the explicit files list and never runs
// `add -A`; whether untracked files get included in that list at all is
// the caller's auto-add-untracked decision (step 5), made
// before CommitBatch is invoked.
func (m *Manager) CommitBatch(ctx context.Context, repoRoot string, files []string, message string) (CommitResult, error) {
	if len(files) == 0 {
		return CommitResult{}, fmt.Errorf("shadow: commit_batch called with no files")
	}

	// Step 1: snapshot original branch and base commit.
	original, err := m.CurrentBranch(ctx, repoRoot)
	if err != nil {
		return CommitResult{}, err
	}
	baseResult, err := m.git.Execute(ctx, repoRoot, "rev-parse", []string{"HEAD"})
	if err != nil {
		return CommitResult{}, fmt.Errorf("shadow: rev-parse HEAD: %w", err)
	}
	base := strings.TrimSpace(baseResult.Stdout)

	shadowName, err := ShadowOf(original)
	if err != nil {
		return CommitResult{}, err
	}

	// Step 2: stash unrelated unstaged changes, recording a rollback token.
	stashToken, err := m.maybeStash(ctx, repoRoot, files)
	if err != nil {
		return CommitResult{}, fmt.Errorf("shadow: stash before commit: %w", err)
	}

	result, commitErr := m.runCommitSteps(ctx, repoRoot, shadowName, original, base, files, message)
	if commitErr != nil {
		if rbErr := m.rollback(ctx, repoRoot, original, stashToken); rbErr != nil {
			return CommitResult{}, fmt.Errorf("%w: rollback failed after %v: %w", errorkind.ErrWorkingTreeCorrupted, commitErr, rbErr)
		}
		return CommitResult{}, commitErr
	}

	// Step 9: return to the original branch.
	if _, err := m.git.Execute(ctx, repoRoot, "checkout", []string{original}); err != nil {
		if rbErr := m.rollback(ctx, repoRoot, original, stashToken); rbErr != nil {
			return CommitResult{}, fmt.Errorf("%w: checkout back to %s failed: %w", errorkind.ErrWorkingTreeCorrupted, original, rbErr)
		}
		return CommitResult{}, fmt.Errorf("shadow: checkout back to %s: %w", original, err)
	}

	// Step 10: restore any stash taken in step 2.
	if stashToken != "" {
		if err := m.popStash(ctx, repoRoot, stashToken); err != nil {
			return CommitResult{}, fmt.Errorf("%w: stash pop after commit: %w", errorkind.ErrWorkingTreeCorrupted, err)
		}
	}

	return CommitResult{Hash: result, ShadowBranch: shadowName, OriginalBranch: original}, nil
}

// runCommitSteps performs steps 3-8: ensure the shadow branch exists,
// check it out, stage the explicit file list, commit, and read the hash.
func (m *Manager) runCommitSteps(ctx context.Context, repoRoot, shadowName, original, base string, files []string, message string) (string, error) {
	if err := m.EnsureShadowExists(ctx, repoRoot, shadowName, base); err != nil {
		return "", err
	}

	if _, err := m.git.Execute(ctx, repoRoot, "checkout", []string{shadowName}); err != nil {
		return "", fmt.Errorf("shadow: checkout %s: %w", shadowName, err)
	}

	addArgs := append([]string{"--"}, files...)
	if _, err := m.git.Execute(ctx, repoRoot, "add", addArgs); err != nil {
		return "", fmt.Errorf("shadow: add: %w", err)
	}

	// `diff --cached --quiet` exits 0 when there is no staged difference
	// and 1 when there is one; only exit code 1 means "proceed to commit",
	// anything else (timeout, lock held) is a real executor error.
	diffResult, diffErr := m.git.Execute(ctx, repoRoot, "diff", []string{"--cached", "--quiet"})
	if diffErr == nil {
		return "", errorkind.ErrEmptyCommit
	}
	if diffResult.ExitCode != 1 {
		return "", fmt.Errorf("shadow: diff --cached --quiet: %w", diffErr)
	}

	if _, err := m.git.Execute(ctx, repoRoot, "commit", []string{"--no-verify", "-m", message}); err != nil {
		return "", fmt.Errorf("shadow: commit: %w", err)
	}

	hashResult, err := m.git.Execute(ctx, repoRoot, "rev-parse", []string{"HEAD"})
	if err != nil {
		return "", fmt.Errorf("shadow: rev-parse HEAD after commit: %w", err)
	}
	return strings.TrimSpace(hashResult.Stdout), nil
}

// maybeStash stashes the working tree if it carries unstaged changes
// outside of files, tagging the stash with a unique message so it can be
// identified and popped precisely rather than by stack position.
func (m *Manager) maybeStash(ctx context.Context, repoRoot string, files []string) (string, error) {
	statusResult, err := m.git.Execute(ctx, repoRoot, "status", []string{"--porcelain"})
	if err != nil {
		return "", fmt.Errorf("status: %w", err)
	}
	if !hasUnrelatedChanges(statusResult.Stdout, files) {
		return "", nil
	}

	token := "auto-commit-engine/" + uuid.NewString()
	if _, err := m.git.Execute(ctx, repoRoot, "stash", []string{"push", "--include-untracked", "-m", token}); err != nil {
		return "", fmt.Errorf("stash push: %w", err)
	}
	return token, nil
}

// hasUnrelatedChanges reports whether git status --porcelain shows any
// path not already in the accepted files list.
func hasUnrelatedChanges(porcelain string, files []string) bool {
	accepted := make(map[string]bool, len(files))
	for _, f := range files {
		accepted[f] = true
	}
	for _, line := range strings.Split(porcelain, "\n") {
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		if !accepted[path] {
			return true
		}
	}
	return false
}

// popStash pops the stash entry carrying the given token message. Stash
// refs shift as entries are popped elsewhere, so it is resolved by
// message content rather than a fixed stash@{N} index.
func (m *Manager) popStash(ctx context.Context, repoRoot, token string) error {
	listResult, err := m.git.Execute(ctx, repoRoot, "stash", []string{"list"})
	if err != nil {
		return fmt.Errorf("stash list: %w", err)
	}
	ref, err := findStashRef(listResult.Stdout, token)
	if err != nil {
		return err
	}
	if _, err := m.git.Execute(ctx, repoRoot, "stash", []string{"pop", ref}); err != nil {
		return fmt.Errorf("stash pop %s: %w", ref, err)
	}
	return nil
}

func findStashRef(list, token string) (string, error) {
	for _, line := range strings.Split(list, "\n") {
		if !strings.Contains(line, token) {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		return line[:idx], nil
	}
	return "", fmt.Errorf("shadow: stash token %q not found", token)
}

// rollback restores HEAD to original and pops the recorded stash, if any.
// It is the recovery path for any failure between checkout of the shadow
// branch and checkout back to the original branch.
func (m *Manager) rollback(ctx context.Context, repoRoot, original, stashToken string) error {
	var errs []error
	if _, err := m.git.Execute(ctx, repoRoot, "checkout", []string{original}); err != nil {
		errs = append(errs, fmt.Errorf("rollback checkout %s: %w", original, err))
	}
	if stashToken != "" {
		if err := m.popStash(ctx, repoRoot, stashToken); err != nil {
			errs = append(errs, fmt.Errorf("rollback stash pop: %w", err))
		}
	}
	return errors.Join(errs...)
}
