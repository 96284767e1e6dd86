// Package classifier implements the Path Classifier (L1):
// a single `Classify` call that decides whether one changed path belongs
// in a shadow commit, and why not when it doesn't. It is the only layer
// allowed to read file content, and it is deliberately cheap: at most one
// stat and one bounded read per path, with `git check-ignore` batched at
// the SaveBatch level by the caller rather than invoked per file.
package classifier

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/gitexec"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/repoconfig"
	"github.com/shadowgit/autocommitd/redact"
)

// Reason is one of the ordered rejection reasons from
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonOutsideRepoRoot Reason = "outside_repo_root"
	ReasonFixedExclude    Reason = "fixed_exclude"
	ReasonUserPattern     Reason = "user_pattern"
	ReasonGitIgnored      Reason = "git_ignored"
	ReasonTooLarge        Reason = "too_large"
	ReasonBinary          Reason = "binary"
	ReasonSecretSuspected Reason = "secret_suspected"
)

// sniffWindow is the number of leading bytes read to decide binary-ness
// (reason 6) and to seed the secret scan's head window.
const sniffWindow = 8 * 1024

// secretHeadWindow and secretTailWindow bound the secret scan per
// reason 7: first 64 KiB plus last 4 KiB of the file.
const (
	secretHeadWindow = 64 * 1024
	secretTailWindow = 4 * 1024
)

var fixedExcludeDirs = []string{".git", "node_modules", "dist"}

// Verdict is the outcome of one Classify call.
type Verdict struct {
	Accept bool
	Reason Reason
}

// Classifier holds the per-invocation collaborators: a git executor for
// batched check-ignore lookups and the repository's own config (user
// patterns, max file size).
type Classifier struct {
	git *gitexec.Executor
}

// New returns a Classifier using git for check-ignore lookups.
func New(git *gitexec.Executor) *Classifier {
	return &Classifier{git: git}
}

// Classify evaluates reject reasons in the fixed order
// requires; the first match wins. absPath is the file's path as reported
// by the watcher, not yet verified to resolve inside repoRoot.
func (c *Classifier) Classify(ctx context.Context, cfg repoconfig.RepositoryConfig, patterns *repoconfig.PatternMatcher, ignored map[string]bool, absPath string) Verdict {
	relPath, ok := c.resolveWithinRoot(cfg.RepoRoot, absPath)
	if !ok {
		return Verdict{Reason: ReasonOutsideRepoRoot}
	}

	parts := strings.Split(filepath.ToSlash(relPath), "/")
	if matchesFixedExclude(parts) {
		return Verdict{Reason: ReasonFixedExclude}
	}

	if patterns.Match(parts, false) {
		return Verdict{Reason: ReasonUserPattern}
	}

	if ignored[relPath] {
		return Verdict{Reason: ReasonGitIgnored}
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		// Already gone (deleted between event and classification); treat
		// as not-accept without a hard reason since there is nothing to
		// scan or commit.
		return Verdict{Reason: ReasonOutsideRepoRoot}
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return Verdict{Reason: ReasonOutsideRepoRoot}
	}

	maxBytes := cfg.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = repoconfig.DefaultMaxFileBytes
	}
	if info.Size() > maxBytes {
		return Verdict{Reason: ReasonTooLarge}
	}

	head, tail, err := readSniffWindows(absPath, info.Size())
	if err != nil {
		return Verdict{Reason: ReasonOutsideRepoRoot}
	}

	if isBinary(head) {
		return Verdict{Reason: ReasonBinary}
	}

	if secretSuspected(head, tail) {
		return Verdict{Reason: ReasonSecretSuspected}
	}

	return Verdict{Accept: true}
}

// BatchCheckIgnore runs one `git check-ignore` invocation over all
// candidate paths and returns the subset git considers ignored, keyed by
// path relative to repoRoot. Batched per save batch rather than invoked
// per file.
func (c *Classifier) BatchCheckIgnore(ctx context.Context, repoRoot string, relPaths []string) (map[string]bool, error) {
	ignored := make(map[string]bool, len(relPaths))
	if len(relPaths) == 0 {
		return ignored, nil
	}
	args := append([]string{"-v", "--non-matching", "--"}, relPaths...)
	result, err := c.git.Execute(ctx, repoRoot, "check-ignore", args)
	// check-ignore exits 1 when nothing matches; that's not an error for us.
	if err != nil && result.ExitCode != 1 {
		return nil, fmt.Errorf("classifier: check-ignore: %w", err)
	}
	for _, line := range strings.Split(result.Stdout, "\n") {
		if line == "" {
			continue
		}
		// --non-matching --verbose prints "::<path>" for paths that are
		// NOT ignored and "<source>:<linenum>:<pattern>\t<path>" for ones
		// that are. Only the latter carry a tab-separated path suffix.
		idx := strings.LastIndex(line, "\t")
		if idx < 0 {
			continue
		}
		path := line[idx+1:]
		if strings.HasPrefix(line, "::") {
			continue
		}
		ignored[path] = true
	}
	return ignored, nil
}

// resolveWithinRoot resolves absPath through any symlinks and confirms it
// lands inside repoRoot (reason 1), returning the
// repo-relative path on success.
func (c *Classifier) resolveWithinRoot(repoRoot, absPath string) (string, bool) {
	rel, err := filepath.Rel(repoRoot, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	// securejoin resolves the relative path against repoRoot honoring any
	// symlinks along the way and guarantees the result cannot escape root.
	resolved, err := securejoin.SecureJoin(repoRoot, rel)
	if err != nil {
		return "", false
	}
	resolvedRel, err := filepath.Rel(repoRoot, resolved)
	if err != nil || strings.HasPrefix(resolvedRel, "..") {
		return "", false
	}
	return rel, true
}

func matchesFixedExclude(parts []string) bool {
	for _, seg := range parts {
		for _, dir := range fixedExcludeDirs {
			if seg == dir {
				return true
			}
		}
	}
	base := parts[len(parts)-1]
	if strings.HasSuffix(base, ".lock") {
		return true
	}
	if base == ".env" || strings.HasPrefix(base, ".env.") {
		return true
	}
	return false
}

func readSniffWindows(path string, size int64) (head, tail []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	headBuf := make([]byte, min64(size, secretHeadWindow))
	if _, err := f.Read(headBuf); err != nil && !isEOF(err) {
		return nil, nil, err
	}

	if size <= secretHeadWindow {
		return headBuf, nil, nil
	}

	tailSize := min64(size, secretTailWindow)
	tailBuf := make([]byte, tailSize)
	if _, err := f.ReadAt(tailBuf, size-tailSize); err != nil && !isEOF(err) {
		return nil, nil, err
	}
	return headBuf, tailBuf, nil
}

func min64(size int64, cap int64) int64 {
	if size < cap {
		return size
	}
	return cap
}

func isEOF(err error) bool {
	return err != nil && err.Error() == "EOF"
}

// isBinary scans the leading sniffWindow bytes for a NUL byte.
func isBinary(head []byte) bool {
	n := len(head)
	if n > sniffWindow {
		n = sniffWindow
	}
	return bytes.IndexByte(head[:n], 0) >= 0
}

// secretSuspected runs the two secret-scan checks of reason
// 7 over the head and tail windows: fixed high-signal patterns, and
// case-insensitive keyword-adjacent assignments. It never returns the
// matched text, only a boolean, so the caller can log the verdict without
// ever logging the secret itself.
func secretSuspected(head, tail []byte) bool {
	if redact.FixedPatternHit(string(head)) {
		return true
	}
	if len(tail) > 0 && redact.FixedPatternHit(string(tail)) {
		return true
	}
	return keywordAssignmentHit(string(head)) || (len(tail) > 0 && keywordAssignmentHit(string(tail)))
}

var secretKeywords = []string{"api_key", "password", "secret", "private_key"}

// keywordAssignmentHit implements reason 7(a): a
// case-insensitive keyword within 32 chars of a '=' or ':' followed by a
// non-whitespace token of length >= 8.
func keywordAssignmentHit(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range secretKeywords {
		start := 0
		for {
			idx := strings.Index(lower[start:], kw)
			if idx < 0 {
				break
			}
			abs := start + idx
			window := lower[abs+len(kw):]
			if len(window) > 32 {
				window = window[:32]
			}
			if hasAssignmentToken(s[abs+len(kw):], window) {
				return true
			}
			start = abs + len(kw)
		}
	}
	return false
}

func hasAssignmentToken(original, lowerWindow string) bool {
	sepIdx := strings.IndexAny(lowerWindow, "=:")
	if sepIdx < 0 {
		return false
	}
	rest := strings.TrimLeft(original[sepIdx+1:], " \t\"'")
	tokenEnd := strings.IndexAny(rest, " \t\n\"'")
	token := rest
	if tokenEnd >= 0 {
		token = rest[:tokenEnd]
	}
	return len(token) >= 8
}
