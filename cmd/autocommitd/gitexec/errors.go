package gitexec

import "github.com/shadowgit/autocommitd/cmd/autocommitd/errorkind"

// Sentinel errors for the git executor, aliased to the shared taxonomy
// so callers can errors.Is against one set of kinds
// regardless of which layer raised them.
var (
	ErrDisallowedGitCommand = errorkind.ErrDisallowedGitCommand
	ErrGitTimeout           = errorkind.ErrGitTimeout
	ErrGitLockHeld          = errorkind.ErrGitLockHeld
)
