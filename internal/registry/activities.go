package registry

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/go-imi/imi/internal/errs"
	"github.com/go-imi/imi/internal/models"
)

const activityColumns = `id, owner_id, worktree_id, kind, file_path, description, metadata, created_at`

func scanActivity(row interface {
	Scan(dest ...any) error
}) (models.Activity, error) {
	var a models.Activity
	var filePath, meta sql.NullString
	var kind string
	if err := row.Scan(&a.ID, &a.OwnerID, &a.WorktreeID, &kind, &filePath, &a.Description, &meta, &a.CreatedAt); err != nil {
		return models.Activity{}, err
	}
	a.Kind = models.ActivityKind(kind)
	a.FilePath = filePath.String
	a.Metadata = unmarshalMetadata(meta)
	return a, nil
}

// LogActivity appends an immutable activity row. Activities are never
// updated or deleted individually; PruneActivities is the only bulk removal
// path, driven by the retention policy.
func (s *Store) LogActivity(activity models.Activity) error {
	meta, err := marshalMetadata(activity.Metadata)
	if err != nil {
		return errs.Wrap(errs.InvalidInput, errs.PlaneRegistry, "marshal activity metadata", err)
	}
	id := activity.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := activity.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.Exec(
		`INSERT INTO activities (id, owner_id, worktree_id, kind, file_path, description, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, activity.OwnerID, activity.WorktreeID, string(activity.Kind), activity.FilePath, activity.Description, meta, createdAt,
	)
	if err != nil {
		return errs.Wrap(errs.Transient, errs.PlaneRegistry, "log activity", err)
	}
	return nil
}

// ListActivitiesForWorktree returns a worktree's activity log, most recent
// first.
func (s *Store) ListActivitiesForWorktree(worktreeID string, limit int) ([]models.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE worktree_id = ? ORDER BY created_at DESC`
	args := []any{worktreeID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, errs.PlaneRegistry, "list activities", err)
	}
	defer rows.Close()

	var out []models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, errs.Wrap(errs.Transient, errs.PlaneRegistry, "scan activity", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PruneActivities deletes activity rows older than the retention window,
// implementing the "retention policy (days) prunes old rows periodically"
// requirement. It returns the number of rows removed.
func (s *Store) PruneActivities(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM activities WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, errs.Wrap(errs.Transient, errs.PlaneRegistry, "prune activities", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
