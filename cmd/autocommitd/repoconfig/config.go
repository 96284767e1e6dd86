// Package repoconfig defines RepositoryConfig and the
// gitignore-style user exclusion pattern matcher used by the classifier.
package repoconfig

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// NotificationPreference is one of the four notification modes a
// repository can be configured with.
type NotificationPreference string

const (
	NotifyEveryCommit    NotificationPreference = "every-commit"
	NotifyBatchedN       NotificationPreference = "batched-N"
	NotifyHourlySummary  NotificationPreference = "hourly-summary"
	NotifyDisabled       NotificationPreference = "disabled"
	DefaultThrottle                             = 2 * time.Second
	MinThrottle                                 = 500 * time.Millisecond
	DefaultMaxFileBytes                         = 10 * 1024 * 1024
)

// RepositoryConfig is the persisted configuration for one monitored
// repository.
type RepositoryConfig struct {
	RepoRoot          string                  `json:"repo_root"`
	Enabled           bool                    `json:"enabled"`
	ThrottleMS        int64                   `json:"throttle_ms"`
	MaxFileBytes      int64                   `json:"max_file_bytes"`
	Patterns          []string                `json:"patterns"`
	Notification      NotificationPreference  `json:"notification"`
	AutoAddUntracked  bool                    `json:"auto_add_untracked"`
	PauseOnDefault    bool                    `json:"pause_on_default_branch"`
}

// Default returns a RepositoryConfig with defaults applied.
func Default(repoRoot string) RepositoryConfig {
	return RepositoryConfig{
		RepoRoot:         repoRoot,
		Enabled:          true,
		ThrottleMS:       DefaultThrottle.Milliseconds(),
		MaxFileBytes:     DefaultMaxFileBytes,
		Notification:     NotifyEveryCommit,
		AutoAddUntracked: false,
		PauseOnDefault:   false,
	}
}

// Throttle returns the configured throttle as a time.Duration, clamped to
// the hard floor of 500ms
func (c RepositoryConfig) Throttle() time.Duration {
	d := time.Duration(c.ThrottleMS) * time.Millisecond
	if d < MinThrottle {
		return MinThrottle
	}
	return d
}

// Validate checks the invariants places on a RepositoryConfig.
func (c RepositoryConfig) Validate() error {
	if c.RepoRoot == "" {
		return errors.New("repo_root must not be empty")
	}
	if c.ThrottleMS > 0 && time.Duration(c.ThrottleMS)*time.Millisecond < MinThrottle {
		return fmt.Errorf("throttle below hard floor of %s", MinThrottle)
	}
	switch c.Notification {
	case NotifyEveryCommit, NotifyBatchedN, NotifyHourlySummary, NotifyDisabled, "":
	default:
		return fmt.Errorf("invalid notification preference %q", c.Notification)
	}
	for _, p := range c.Patterns {
		if p == "" {
			return errors.New("empty exclusion pattern")
		}
	}
	return nil
}

// PatternMatcher compiles the user's ordered exclusion patterns into a
// gitignore-style matcher ("*", "**", "?", "[]", leading "!" negation,
// trailing "/" to require a directory). Built on go-git's own
// gitignore package rather than a hand-rolled glob engine.
type PatternMatcher struct {
	matcher gitignore.Matcher
}

// NewPatternMatcher compiles patterns in the order given; later patterns
// take precedence, matching gitignore semantics.
func NewPatternMatcher(patterns []string) *PatternMatcher {
	var ps []gitignore.Pattern
	for _, raw := range patterns {
		ps = append(ps, gitignore.ParsePattern(raw, nil))
	}
	return &PatternMatcher{matcher: gitignore.NewMatcher(ps)}
}

// Match reports whether the relative path (split on "/") matches any
// compiled user pattern. isDir indicates whether the path is a directory.
func (m *PatternMatcher) Match(relPathParts []string, isDir bool) bool {
	if m == nil || m.matcher == nil {
		return false
	}
	return m.matcher.Match(relPathParts, isDir)
}
