package registry

import (
	"github.com/go-imi/imi/internal/errs"
	"github.com/go-imi/imi/internal/models"
)

// Stats implements stats(): a summary over the registry, built from one
// COUNT query per figure, used by the status/dashboard surfaces. Counts are scoped to projectID when it is
// non-empty, otherwise global across every registered project.
func (s *Store) Stats(projectID string) (models.RegistryStats, error) {
	var stats models.RegistryStats

	projectFilter := ""
	var args []any
	if projectID != "" {
		projectFilter = " WHERE id = ?"
		args = []any{projectID}
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM projects`+projectFilter, args...).Scan(&stats.ProjectCount); err != nil {
		return models.RegistryStats{}, errs.Wrap(errs.Transient, errs.PlaneRegistry, "count projects", err)
	}

	worktreeFilter := " WHERE active = 1"
	args = nil
	if projectID != "" {
		worktreeFilter += " AND project_id = ?"
		args = []any{projectID}
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM worktrees`+worktreeFilter, args...).Scan(&stats.ActiveWorktreeCount); err != nil {
		return models.RegistryStats{}, errs.Wrap(errs.Transient, errs.PlaneRegistry, "count active worktrees", err)
	}

	mergedFilter := " WHERE merged_at IS NOT NULL"
	args = nil
	if projectID != "" {
		mergedFilter += " AND project_id = ?"
		args = []any{projectID}
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM worktrees`+mergedFilter, args...).Scan(&stats.MergedWorktreeCount); err != nil {
		return models.RegistryStats{}, errs.Wrap(errs.Transient, errs.PlaneRegistry, "count merged worktrees", err)
	}

	dirtyFilter := " WHERE active = 1 AND has_uncommitted_changes = 1"
	args = nil
	if projectID != "" {
		dirtyFilter += " AND project_id = ?"
		args = []any{projectID}
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM worktrees`+dirtyFilter, args...).Scan(&stats.DirtyWorktreeCount); err != nil {
		return models.RegistryStats{}, errs.Wrap(errs.Transient, errs.PlaneRegistry, "count dirty worktrees", err)
	}

	activityQuery := `SELECT COUNT(*) FROM activities`
	args = nil
	if projectID != "" {
		activityQuery = `SELECT COUNT(*) FROM activities a JOIN worktrees w ON w.id = a.worktree_id WHERE w.project_id = ?`
		args = []any{projectID}
	}
	if err := s.db.QueryRow(activityQuery, args...).Scan(&stats.ActivityCount); err != nil {
		return models.RegistryStats{}, errs.Wrap(errs.Transient, errs.PlaneRegistry, "count activities", err)
	}

	return stats, nil
}
