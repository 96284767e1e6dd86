// Package store is the embedded relational Store (L5): a
// single-file database holding shadow commit history, correlation
// records, and per-repository settings. It is opened with write-ahead
// journaling and a single writer connection owned by the supervisor;
// reader connections are handed out separately for status/explain
// queries that should never block on an in-flight write.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/errorkind"
)

// schemaVersion is compared against the meta table's stored version using
// semver ordering; a store opened by a newer binary than the one that
// created it refuses to proceed rather than risk silent corruption.
const schemaVersion = "v1.0.0"

// Store owns the single writer connection plus the shared reader pool.
// The writer is serialized at the database/sql level (SetMaxOpenConns(1))
// rather than with an in-process mutex, so every write still goes through
// a single real connection even if called from multiple goroutines.
type Store struct {
	writer *sql.DB
	reader *sql.DB
	path   string
}

// Open opens (creating if absent) the store file at path with WAL
// journaling, synchronous=NORMAL, and foreign keys enforced. It returns
// two *sql.DB handles over the same file: a
// single-connection writer and a multi-connection reader pool.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("store: open reader pool: %w", err)
	}

	if err := writer.PingContext(ctx); err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{writer: writer, reader: reader, path: path}
	if err := s.migrate(ctx); err != nil {
		writer.Close()
		reader.Close()
		return nil, err
	}
	return s, nil
}

// Close closes both the writer and reader connections.
func (s *Store) Close() error {
	werr := s.writer.Close()
	rerr := s.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Path returns the store's file path.
func (s *Store) Path() string { return s.path }

// Writer exposes the single writer connection for the supervisor's
// commit-persistence transactions.
func (s *Store) Writer() *sql.DB { return s.writer }

// Reader exposes the reader pool for status/explain/list queries.
func (s *Store) Reader() *sql.DB { return s.reader }

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.writer.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}

	var storedVersion string
	row := s.writer.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`)
	switch err := row.Scan(&storedVersion); {
	case err == sql.ErrNoRows:
		_, err := s.writer.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES ('schema_version', ?)`, schemaVersion)
		if err != nil {
			return fmt.Errorf("store: record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("store: read schema version: %w", err)
	default:
		if compareSemver(storedVersion, schemaVersion) > 0 {
			return fmt.Errorf("%w: store schema %s is newer than this binary's %s", errorkind.ErrWorkingTreeCorrupted, storedVersion, schemaVersion)
		}
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS shadow_commits (
	hash TEXT PRIMARY KEY,
	repo_root TEXT NOT NULL,
	shadow_branch TEXT NOT NULL,
	original_branch TEXT NOT NULL,
	committed_at INTEGER NOT NULL,
	additions INTEGER NOT NULL DEFAULT 0,
	deletions INTEGER NOT NULL DEFAULT 0,
	message TEXT NOT NULL,
	origin TEXT NOT NULL CHECK (origin IN ('correlation', 'diff')),
	session_id TEXT,
	confidence REAL
);

CREATE INDEX IF NOT EXISTS idx_shadow_commits_repo_time
	ON shadow_commits(repo_root, committed_at);

CREATE TABLE IF NOT EXISTS shadow_commit_files (
	hash TEXT NOT NULL REFERENCES shadow_commits(hash) ON DELETE CASCADE,
	relative_path TEXT NOT NULL,
	PRIMARY KEY (hash, relative_path)
);

CREATE TABLE IF NOT EXISTS correlations (
	hash TEXT PRIMARY KEY REFERENCES shadow_commits(hash) ON DELETE CASCADE,
	session_id TEXT NOT NULL,
	repo_root TEXT NOT NULL,
	confidence REAL NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS repository_settings (
	repo_root TEXT PRIMARY KEY,
	enabled INTEGER NOT NULL DEFAULT 1,
	throttle_ms INTEGER NOT NULL,
	max_file_bytes INTEGER NOT NULL,
	notification TEXT NOT NULL,
	auto_add_untracked INTEGER NOT NULL DEFAULT 0,
	pause_on_default_branch INTEGER NOT NULL DEFAULT 0,
	patterns_json TEXT NOT NULL DEFAULT '[]'
);
`
