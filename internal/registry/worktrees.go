package registry

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/go-imi/imi/internal/errs"
	"github.com/go-imi/imi/internal/models"
)

const worktreeColumns = `id, project_id, type_id, name, branch_name, path, owner_id,
	has_uncommitted_changes, uncommitted_files_count, ahead_of_trunk, behind_trunk,
	last_commit_hash, last_commit_message, last_sync_at, merged_at, merged_by,
	merge_commit_hash, completion_type, metadata, active, created_at, updated_at`

func scanWorktree(row interface {
	Scan(dest ...any) error
}) (models.Worktree, error) {
	var w models.Worktree
	var ownerID, lastHash, lastMsg, mergedBy, mergeHash, completion, meta sql.NullString
	var lastSync, mergedAt sql.NullTime
	var hasUncommitted int

	err := row.Scan(
		&w.ID, &w.ProjectID, &w.TypeID, &w.Name, &w.BranchName, &w.Path, &ownerID,
		&hasUncommitted, &w.UncommittedFilesCount, &w.AheadOfTrunk, &w.BehindTrunk,
		&lastHash, &lastMsg, &lastSync, &mergedAt, &mergedBy,
		&mergeHash, &completion, &meta, &w.Active, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return models.Worktree{}, err
	}
	w.OwnerID = ownerID.String
	w.HasUncommittedChanges = hasUncommitted != 0
	w.LastCommitHash = lastHash.String
	w.LastCommitMessage = lastMsg.String
	w.MergedBy = mergedBy.String
	w.MergeCommitHash = mergeHash.String
	w.CompletionType = models.CompletionType(completion.String)
	if lastSync.Valid {
		t := lastSync.Time
		w.LastSyncAt = &t
	}
	if mergedAt.Valid {
		t := mergedAt.Time
		w.MergedAt = &t
	}
	if meta.Valid && meta.String != "" {
		_ = json.Unmarshal([]byte(meta.String), &w.Metadata)
	}
	return w, nil
}

// uniqueConstraintViolation reports whether err is a SQLite UNIQUE failure,
// which RegisterWorktree translates into NameInUse/PathExists.
// modernc.org/sqlite surfaces constraint violations as plain error strings
// rather than a typed sentinel, so this matches on message content.
func uniqueConstraintViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting registerWorktree
// run either as a standalone statement or as one step of a caller-owned
// transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// RegisterWorktree inserts a new active worktree row. Violations of the
// (project_id, name) or active-path uniqueness constraints surface as
// NameInUse / PathExists respectively (distinguished by message content).
func (s *Store) RegisterWorktree(spec models.WorktreeSpec) (models.Worktree, error) {
	return registerWorktree(s.db, spec)
}

// RegisterWorktreeTx is RegisterWorktree run as one statement of an
// in-progress transaction, so the caller can hold the row uncommitted while
// it performs the git and filesystem mutations that must accompany it — per
// §4.5.1, the row is inserted before those mutations run, so a second
// concurrent insert for the same (project_id, name) is rejected by the
// constraint before it ever reaches the git driver, rather than racing it.
func (s *Store) RegisterWorktreeTx(tx *sql.Tx, spec models.WorktreeSpec) (models.Worktree, error) {
	return registerWorktree(tx, spec)
}

func registerWorktree(ex execer, spec models.WorktreeSpec) (models.Worktree, error) {
	meta, err := marshalMetadata(spec.Metadata)
	if err != nil {
		return models.Worktree{}, errs.Wrap(errs.InvalidInput, errs.PlaneRegistry, "marshal worktree metadata", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = ex.Exec(
		`INSERT INTO worktrees (id, project_id, type_id, name, branch_name, path, owner_id, metadata, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		id, spec.ProjectID, spec.TypeID, spec.Name, spec.BranchName, spec.Path, spec.OwnerID, meta, now, now,
	)
	if err != nil {
		if uniqueConstraintViolation(err) {
			if strings.Contains(err.Error(), "idx_worktrees_active_path") {
				return models.Worktree{}, errs.Wrap(errs.PathExists, errs.PlaneRegistry, "worktree path already registered: "+spec.Path, err)
			}
			return models.Worktree{}, errs.Wrap(errs.NameInUse, errs.PlaneRegistry, "worktree name already in use: "+spec.Name, err)
		}
		return models.Worktree{}, errs.Wrap(errs.Transient, errs.PlaneRegistry, "register worktree", err)
	}

	return models.Worktree{
		ID: id, ProjectID: spec.ProjectID, TypeID: spec.TypeID, Name: spec.Name,
		BranchName: spec.BranchName, Path: spec.Path, OwnerID: spec.OwnerID,
		Metadata: spec.Metadata, Active: true, CreatedAt: now, UpdatedAt: now,
	}, nil
}

// GetWorktreeByPath returns the active worktree at the given absolute path.
func (s *Store) GetWorktreeByPath(path string) (models.Worktree, error) {
	row := s.db.QueryRow(`SELECT `+worktreeColumns+` FROM worktrees WHERE path = ? AND active = 1`, path)
	w, err := scanWorktree(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Worktree{}, errs.New(errs.NotFound, errs.PlaneRegistry, "no active worktree at "+path)
	}
	if err != nil {
		return models.Worktree{}, errs.Wrap(errs.Transient, errs.PlaneRegistry, "get worktree by path", err)
	}
	return w, nil
}

// GetWorktreeByProjectAndName returns the active worktree with the given
// natural key.
func (s *Store) GetWorktreeByProjectAndName(projectID, name string) (models.Worktree, error) {
	row := s.db.QueryRow(`SELECT `+worktreeColumns+` FROM worktrees WHERE project_id = ? AND name = ? AND active = 1`, projectID, name)
	w, err := scanWorktree(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Worktree{}, errs.New(errs.NotFound, errs.PlaneRegistry, "no active worktree named "+name)
	}
	if err != nil {
		return models.Worktree{}, errs.Wrap(errs.Transient, errs.PlaneRegistry, "get worktree by name", err)
	}
	return w, nil
}

// ListFilters narrows ListWorktrees; zero values mean "no filter".
type ListFilters struct {
	ProjectID  string
	ActiveOnly bool
	IncludeAll bool // overrides ActiveOnly, returns every row regardless of active
}

// ListWorktrees returns worktrees matching filters, ordered by name.
func (s *Store) ListWorktrees(filters ListFilters) ([]models.Worktree, error) {
	query := `SELECT ` + worktreeColumns + ` FROM worktrees WHERE 1=1`
	var args []any
	if filters.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filters.ProjectID)
	}
	if filters.ActiveOnly && !filters.IncludeAll {
		query += ` AND active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, errs.PlaneRegistry, "list worktrees", err)
	}
	defer rows.Close()

	var out []models.Worktree
	for rows.Next() {
		w, err := scanWorktree(rows)
		if err != nil {
			return nil, errs.Wrap(errs.Transient, errs.PlaneRegistry, "scan worktree", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// UpdateWorktreeGitState applies a sync() refresh to one worktree in a
// single statement, keeping has_uncommitted_changes consistent with the
// count per the data-model invariant.
func (s *Store) UpdateWorktreeGitState(id string, update models.GitStateUpdate) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE worktrees SET last_commit_hash = ?, last_commit_message = ?, ahead_of_trunk = ?, behind_trunk = ?,
		 uncommitted_files_count = ?, has_uncommitted_changes = ?, last_sync_at = ?, updated_at = ?
		 WHERE id = ?`,
		update.HeadSHA, update.LastCommitMessage, update.AheadOfTrunk, update.BehindTrunk,
		update.UncommittedFilesCount, boolToInt(update.UncommittedFilesCount > 0), now, now, id,
	)
	if err != nil {
		return errs.Wrap(errs.Transient, errs.PlaneRegistry, "update worktree git state", err)
	}
	return nil
}

// MarkWorktreeMerged records merge metadata; the caller deactivates the row
// separately via DeactivateWorktree as part of remove() semantics.
func (s *Store) MarkWorktreeMerged(id, mergeCommitHash, mergedBy string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE worktrees SET merged_at = ?, merged_by = ?, merge_commit_hash = ?, completion_type = ?, updated_at = ? WHERE id = ?`,
		now, mergedBy, mergeCommitHash, models.CompletionMerged, now, id,
	)
	if err != nil {
		return errs.Wrap(errs.Transient, errs.PlaneRegistry, "mark worktree merged", err)
	}
	return nil
}

// DeactivateWorktree is the terminal state transition for close/remove/merge
// and for prune's reconciliation of vanished worktrees.
func (s *Store) DeactivateWorktree(id string) error {
	res, err := s.db.Exec(`UPDATE worktrees SET active = 0, updated_at = ? WHERE id = ? AND active = 1`, time.Now().UTC(), id)
	if err != nil {
		return errs.Wrap(errs.Transient, errs.PlaneRegistry, "deactivate worktree", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.NotFound, errs.PlaneRegistry, "no active worktree with id "+id)
	}
	return nil
}

// UpdateWorktreePath rewrites path for repair(); used alongside the git
// driver's gitdir pointer rewrite so both planes agree.
func (s *Store) UpdateWorktreePath(id, path string) error {
	_, err := s.db.Exec(`UPDATE worktrees SET path = ?, updated_at = ? WHERE id = ?`, path, time.Now().UTC(), id)
	if err != nil {
		return errs.Wrap(errs.Transient, errs.PlaneRegistry, "update worktree path", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
