// Package registry is the transactional relational store of projects,
// worktree types, worktrees, and activities. It owns schema migrations and
// the uniqueness/shape constraints described in the data model.
package registry

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/go-imi/imi/internal/models"
)

// Store wraps a pooled *sql.DB and applies migrations on construction.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and applies
// all pending migrations, seeding the built-in worktree types on first run.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate registry db: %w", err)
	}
	return store, nil
}

// OpenWithDB wraps an existing connection without reopening migrations,
// primarily for tests that share one in-memory database across stores.
func OpenWithDB(db *sql.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("migrate registry db: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

// migrations is a forward-only list of schema steps. There is no executed
// down-migration path; the commented rollback is kept for operators.
var migrations = []string{
	// 001: core schema
	`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		remote_origin TEXT NOT NULL,
		default_branch TEXT NOT NULL,
		trunk_path TEXT NOT NULL,
		description TEXT,
		metadata TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	// Canonical remote_origin is unique only among active projects; enforced
	// with a partial unique index rather than a table constraint.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_active_origin
		ON projects(remote_origin) WHERE active = 1`,
	`CREATE TABLE IF NOT EXISTS worktree_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		branch_prefix TEXT NOT NULL DEFAULT '',
		worktree_prefix TEXT NOT NULL,
		description TEXT,
		is_builtin INTEGER NOT NULL DEFAULT 0,
		color TEXT,
		icon TEXT,
		metadata TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS worktrees (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		type_id INTEGER NOT NULL REFERENCES worktree_types(id),
		name TEXT NOT NULL,
		branch_name TEXT NOT NULL,
		path TEXT NOT NULL,
		owner_id TEXT,
		has_uncommitted_changes INTEGER NOT NULL DEFAULT 0,
		uncommitted_files_count INTEGER NOT NULL DEFAULT 0 CHECK (uncommitted_files_count >= 0),
		ahead_of_trunk INTEGER NOT NULL DEFAULT 0 CHECK (ahead_of_trunk >= 0),
		behind_trunk INTEGER NOT NULL DEFAULT 0 CHECK (behind_trunk >= 0),
		last_commit_hash TEXT,
		last_commit_message TEXT,
		last_sync_at DATETIME,
		merged_at DATETIME,
		merged_by TEXT,
		merge_commit_hash TEXT,
		completion_type TEXT,
		metadata TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (project_id, name)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_worktrees_active_path
		ON worktrees(path) WHERE active = 1`,
	`CREATE INDEX IF NOT EXISTS idx_worktrees_project ON worktrees(project_id)`,
	`CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		worktree_id TEXT NOT NULL REFERENCES worktrees(id),
		kind TEXT NOT NULL,
		file_path TEXT,
		description TEXT NOT NULL,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activities_worktree ON activities(worktree_id)`,
	`CREATE INDEX IF NOT EXISTS idx_activities_created ON activities(created_at)`,
}

func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range migrations {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration %q: %w", stmt, err)
		}
	}

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM worktree_types`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		for _, t := range models.BuiltinWorktreeTypes {
			_, err := tx.Exec(
				`INSERT INTO worktree_types (name, branch_prefix, worktree_prefix, is_builtin) VALUES (?, ?, ?, 1)`,
				t.Name, t.BranchPrefix, t.WorktreePrefix,
			)
			if err != nil {
				return fmt.Errorf("seed worktree type %q: %w", t.Name, err)
			}
		}
	}

	if _, err := tx.Exec(`INSERT OR IGNORE INTO schema_migrations (version) VALUES (1)`); err != nil {
		return err
	}

	return tx.Commit()
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back on error or panic. This is the transactional boundary shared
// with the Lifecycle Manager (§4.5.1's "open a DB transaction" step).
func (s *Store) WithTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}
