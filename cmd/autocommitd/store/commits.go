package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/errorkind"
)

// Origin distinguishes a shadow commit produced purely from a diff from
// one backed by a transcript correlation.
type Origin string

const (
	OriginDiff        Origin = "diff"
	OriginCorrelation Origin = "correlation"
)

// CommitRecord is one row destined for shadow_commits, plus its file list
// and optional correlation, persisted together in one transaction.
type CommitRecord struct {
	Hash           string
	RepoRoot       string
	ShadowBranch   string
	OriginalBranch string
	CommittedAt    time.Time
	Additions      int
	Deletions      int
	Message        string
	Origin         Origin
	SessionID      string  // empty when Origin == OriginDiff
	Confidence     float64 // meaningless when Origin == OriginDiff
	Files          []string
}

// InsertCommit persists one commit and its file list (and correlation
// row, if any) as a single transaction. On failure the transaction is
// rolled back and the caller
// should surface errorkind.ErrStoreWriteFailed — the commit is already
// live in git regardless of whether this persists.
func (s *Store) InsertCommit(ctx context.Context, rec CommitRecord) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", errorkind.ErrStoreWriteFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	var sessionID sql.NullString
	var confidence sql.NullFloat64
	if rec.Origin == OriginCorrelation {
		sessionID = sql.NullString{String: rec.SessionID, Valid: true}
		confidence = sql.NullFloat64{Float64: rec.Confidence, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shadow_commits
			(hash, repo_root, shadow_branch, original_branch, committed_at, additions, deletions, message, origin, session_id, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Hash, rec.RepoRoot, rec.ShadowBranch, rec.OriginalBranch, rec.CommittedAt.Unix(),
		rec.Additions, rec.Deletions, rec.Message, string(rec.Origin), sessionID, confidence,
	)
	if err != nil {
		return fmt.Errorf("%w: insert shadow_commits: %w", errorkind.ErrStoreWriteFailed, err)
	}

	for _, f := range rec.Files {
		if _, err := tx.ExecContext(ctx, `INSERT INTO shadow_commit_files (hash, relative_path) VALUES (?, ?)`, rec.Hash, f); err != nil {
			return fmt.Errorf("%w: insert shadow_commit_files: %w", errorkind.ErrStoreWriteFailed, err)
		}
	}

	if rec.Origin == OriginCorrelation {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO correlations (hash, session_id, repo_root, confidence, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			rec.Hash, rec.SessionID, rec.RepoRoot, rec.Confidence, rec.CommittedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("%w: insert correlations: %w", errorkind.ErrStoreWriteFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx: %w", errorkind.ErrStoreWriteFailed, err)
	}
	return nil
}

// CommitByHash reads one shadow commit and its file list for the
// `explain <hash>` command, using the reader pool so it never contends
// with an in-flight write.
func (s *Store) CommitByHash(ctx context.Context, hash string) (CommitRecord, error) {
	var rec CommitRecord
	var committedAt int64
	var origin string
	var sessionID sql.NullString
	var confidence sql.NullFloat64

	row := s.reader.QueryRowContext(ctx, `
		SELECT hash, repo_root, shadow_branch, original_branch, committed_at, additions, deletions, message, origin, session_id, confidence
		FROM shadow_commits WHERE hash = ?`, hash)
	err := row.Scan(&rec.Hash, &rec.RepoRoot, &rec.ShadowBranch, &rec.OriginalBranch, &committedAt,
		&rec.Additions, &rec.Deletions, &rec.Message, &origin, &sessionID, &confidence)
	if errors.Is(err, sql.ErrNoRows) {
		return CommitRecord{}, fmt.Errorf("store: no commit with hash %q", hash)
	}
	if err != nil {
		return CommitRecord{}, fmt.Errorf("store: query commit: %w", err)
	}
	rec.CommittedAt = time.Unix(committedAt, 0).UTC()
	rec.Origin = Origin(origin)
	if sessionID.Valid {
		rec.SessionID = sessionID.String
	}
	if confidence.Valid {
		rec.Confidence = confidence.Float64
	}

	rows, err := s.reader.QueryContext(ctx, `SELECT relative_path FROM shadow_commit_files WHERE hash = ? ORDER BY relative_path`, hash)
	if err != nil {
		return CommitRecord{}, fmt.Errorf("store: query commit files: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return CommitRecord{}, fmt.Errorf("store: scan commit file: %w", err)
		}
		rec.Files = append(rec.Files, path)
	}
	return rec, rows.Err()
}

// CountCommits returns the total number of rows in shadow_commits across
// every repository, for the `status` command's "Total Commits" line.
func (s *Store) CountCommits(ctx context.Context) (int, error) {
	var n int
	row := s.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM shadow_commits`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count commits: %w", err)
	}
	return n, nil
}

// RecentCommits returns up to limit commits for repoRoot, most recent
// first, for the `status --detailed` command.
func (s *Store) RecentCommits(ctx context.Context, repoRoot string, limit int) ([]CommitRecord, error) {
	rows, err := s.reader.QueryContext(ctx, `
		SELECT hash, repo_root, shadow_branch, original_branch, committed_at, additions, deletions, message, origin, session_id, confidence
		FROM shadow_commits WHERE repo_root = ? ORDER BY committed_at DESC LIMIT ?`, repoRoot, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query recent commits: %w", err)
	}
	defer rows.Close()

	var out []CommitRecord
	for rows.Next() {
		var rec CommitRecord
		var committedAt int64
		var origin string
		var sessionID sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(&rec.Hash, &rec.RepoRoot, &rec.ShadowBranch, &rec.OriginalBranch, &committedAt,
			&rec.Additions, &rec.Deletions, &rec.Message, &origin, &sessionID, &confidence); err != nil {
			return nil, fmt.Errorf("store: scan commit row: %w", err)
		}
		rec.CommittedAt = time.Unix(committedAt, 0).UTC()
		rec.Origin = Origin(origin)
		if sessionID.Valid {
			rec.SessionID = sessionID.String
		}
		if confidence.Valid {
			rec.Confidence = confidence.Float64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
