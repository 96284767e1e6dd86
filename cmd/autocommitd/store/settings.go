package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/errorkind"
	"github.com/shadowgit/autocommitd/cmd/autocommitd/repoconfig"
)

// UpsertSettings writes the full settings row for a repository, creating
// it if absent. Used by add_repository and update_settings; both write
// through this single path so the round-trip law
// ("add_repository(p, c); read_settings(p)") holds by construction.
func (s *Store) UpsertSettings(ctx context.Context, cfg repoconfig.RepositoryConfig) error {
	patternsJSON, err := json.Marshal(cfg.Patterns)
	if err != nil {
		return fmt.Errorf("store: marshal patterns: %w", err)
	}
	_, err = s.writer.ExecContext(ctx, `
		INSERT INTO repository_settings
			(repo_root, enabled, throttle_ms, max_file_bytes, notification, auto_add_untracked, pause_on_default_branch, patterns_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_root) DO UPDATE SET
			enabled = excluded.enabled,
			throttle_ms = excluded.throttle_ms,
			max_file_bytes = excluded.max_file_bytes,
			notification = excluded.notification,
			auto_add_untracked = excluded.auto_add_untracked,
			pause_on_default_branch = excluded.pause_on_default_branch,
			patterns_json = excluded.patterns_json`,
		cfg.RepoRoot, cfg.Enabled, cfg.ThrottleMS, cfg.MaxFileBytes, string(cfg.Notification),
		cfg.AutoAddUntracked, cfg.PauseOnDefault, string(patternsJSON),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert repository_settings: %w", errorkind.ErrStoreWriteFailed, err)
	}
	return nil
}

// ReadSettings returns the persisted settings for repoRoot, or
// errorkind.ErrUnknownRepo if it was never registered.
func (s *Store) ReadSettings(ctx context.Context, repoRoot string) (repoconfig.RepositoryConfig, error) {
	var cfg repoconfig.RepositoryConfig
	var notification, patternsJSON string
	row := s.reader.QueryRowContext(ctx, `
		SELECT repo_root, enabled, throttle_ms, max_file_bytes, notification, auto_add_untracked, pause_on_default_branch, patterns_json
		FROM repository_settings WHERE repo_root = ?`, repoRoot)
	err := row.Scan(&cfg.RepoRoot, &cfg.Enabled, &cfg.ThrottleMS, &cfg.MaxFileBytes, &notification,
		&cfg.AutoAddUntracked, &cfg.PauseOnDefault, &patternsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return repoconfig.RepositoryConfig{}, errorkind.ErrUnknownRepo
	}
	if err != nil {
		return repoconfig.RepositoryConfig{}, fmt.Errorf("store: read settings: %w", err)
	}
	cfg.Notification = repoconfig.NotificationPreference(notification)
	if err := json.Unmarshal([]byte(patternsJSON), &cfg.Patterns); err != nil {
		return repoconfig.RepositoryConfig{}, fmt.Errorf("store: unmarshal patterns: %w", err)
	}
	return cfg, nil
}

// DeleteSettings removes the settings row for repoRoot. Historical
// shadow_commits and correlations rows are retained.
func (s *Store) DeleteSettings(ctx context.Context, repoRoot string) error {
	_, err := s.writer.ExecContext(ctx, `DELETE FROM repository_settings WHERE repo_root = ?`, repoRoot)
	if err != nil {
		return fmt.Errorf("%w: delete repository_settings: %w", errorkind.ErrStoreWriteFailed, err)
	}
	return nil
}

// ListRepositories returns every currently registered repository's
// settings.
func (s *Store) ListRepositories(ctx context.Context) ([]repoconfig.RepositoryConfig, error) {
	rows, err := s.reader.QueryContext(ctx, `
		SELECT repo_root, enabled, throttle_ms, max_file_bytes, notification, auto_add_untracked, pause_on_default_branch, patterns_json
		FROM repository_settings ORDER BY repo_root`)
	if err != nil {
		return nil, fmt.Errorf("store: list repositories: %w", err)
	}
	defer rows.Close()

	var out []repoconfig.RepositoryConfig
	for rows.Next() {
		var cfg repoconfig.RepositoryConfig
		var notification, patternsJSON string
		if err := rows.Scan(&cfg.RepoRoot, &cfg.Enabled, &cfg.ThrottleMS, &cfg.MaxFileBytes, &notification,
			&cfg.AutoAddUntracked, &cfg.PauseOnDefault, &patternsJSON); err != nil {
			return nil, fmt.Errorf("store: scan settings row: %w", err)
		}
		cfg.Notification = repoconfig.NotificationPreference(notification)
		if err := json.Unmarshal([]byte(patternsJSON), &cfg.Patterns); err != nil {
			return nil, fmt.Errorf("store: unmarshal patterns: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}
