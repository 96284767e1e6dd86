package logging

import "context"

type contextKey int

const (
	repoRootKey contextKey = iota
	componentKey
	sessionIDKey
)

// WithRepoRoot returns a context carrying the repository root for log attribution.
func WithRepoRoot(ctx context.Context, repoRoot string) context.Context {
	return context.WithValue(ctx, repoRootKey, repoRoot)
}

// WithComponent returns a context carrying the logical component name (e.g. "worker", "shadow").
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// WithSessionID returns a context carrying a correlated session id.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}
