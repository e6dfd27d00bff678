package registry

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/go-imi/imi/internal/errs"
	"github.com/go-imi/imi/internal/models"
)

func marshalMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func unmarshalMetadata(s sql.NullString) map[string]any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal([]byte(s.String), &m)
	return m
}

// RegisterProject inserts a new project, or, when a row with the same
// remote_origin already exists (active or inactive), updates and reactivates
// that row and returns it with isNew false (re-registration semantics from
// §3.4). remote_origin is compared exactly as given; it is not normalized.
func (s *Store) RegisterProject(spec models.ProjectSpec) (models.Project, bool, error) {
	var result models.Project
	isNew := false

	err := s.WithTx(func(tx *sql.Tx) error {
		existing, err := queryProjectByOrigin(tx, spec.RemoteOrigin, false)
		if err == nil {
			// Reactivate.
			now := time.Now().UTC()
			_, err = tx.Exec(
				`UPDATE projects SET active = 1, name = ?, default_branch = ?, trunk_path = ?, description = ?, updated_at = ? WHERE id = ?`,
				spec.Name, spec.DefaultBranch, spec.TrunkPath, spec.Description, now, existing.ID,
			)
			if err != nil {
				return err
			}
			existing.Active = true
			existing.Name = spec.Name
			existing.DefaultBranch = spec.DefaultBranch
			existing.TrunkPath = spec.TrunkPath
			existing.Description = spec.Description
			existing.UpdatedAt = now
			result = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		meta, err := marshalMetadata(spec.Metadata)
		if err != nil {
			return err
		}
		id := uuid.NewString()
		now := time.Now().UTC()
		_, err = tx.Exec(
			`INSERT INTO projects (id, name, remote_origin, default_branch, trunk_path, description, metadata, active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			id, spec.Name, spec.RemoteOrigin, spec.DefaultBranch, spec.TrunkPath, spec.Description, meta, now, now,
		)
		if err != nil {
			return err
		}
		isNew = true
		result = models.Project{
			ID: id, Name: spec.Name, RemoteOrigin: spec.RemoteOrigin,
			DefaultBranch: spec.DefaultBranch, TrunkPath: spec.TrunkPath,
			Description: spec.Description, Metadata: spec.Metadata,
			Active: true, CreatedAt: now, UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return models.Project{}, false, errs.Wrap(errs.Transient, errs.PlaneRegistry, "register project", err)
	}
	return result, isNew, nil
}

func scanProject(row interface {
	Scan(dest ...any) error
}) (models.Project, error) {
	var p models.Project
	var desc, meta sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.RemoteOrigin, &p.DefaultBranch, &p.TrunkPath, &desc, &meta, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return models.Project{}, err
	}
	p.Description = desc.String
	p.Metadata = unmarshalMetadata(meta)
	return p, nil
}

const projectColumns = `id, name, remote_origin, default_branch, trunk_path, description, metadata, active, created_at, updated_at`

func queryProjectByOrigin(q interface {
	QueryRow(query string, args ...any) *sql.Row
}, origin string, active bool) (models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE remote_origin = ?`
	args := []any{origin}
	if active {
		query += ` AND active = 1`
	}
	return scanProject(q.QueryRow(query, args...))
}

// GetProjectByOrigin returns the active project with the given canonical
// remote_origin, or errs.NotFound.
func (s *Store) GetProjectByOrigin(origin string) (models.Project, error) {
	p, err := queryProjectByOrigin(s.db, origin, true)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, errs.New(errs.NotFound, errs.PlaneRegistry, "no active project with remote_origin "+origin)
	}
	if err != nil {
		return models.Project{}, errs.Wrap(errs.Transient, errs.PlaneRegistry, "get project by origin", err)
	}
	return p, nil
}

// GetProjectByID returns a project row by its ID, active or not.
func (s *Store) GetProjectByID(id string) (models.Project, error) {
	row := s.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, errs.New(errs.NotFound, errs.PlaneRegistry, "no project with id "+id)
	}
	if err != nil {
		return models.Project{}, errs.Wrap(errs.Transient, errs.PlaneRegistry, "get project by id", err)
	}
	return p, nil
}

// GetProjectByName returns the active project with an exact name match.
func (s *Store) GetProjectByName(name string) (models.Project, error) {
	row := s.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE name = ? AND active = 1`, name)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, errs.New(errs.NotFound, errs.PlaneRegistry, "no active project named "+name)
	}
	if err != nil {
		return models.Project{}, errs.Wrap(errs.Transient, errs.PlaneRegistry, "get project by name", err)
	}
	return p, nil
}

// SearchProjects returns active projects whose name contains substr.
func (s *Store) SearchProjects(substr string) ([]models.Project, error) {
	rows, err := s.db.Query(`SELECT `+projectColumns+` FROM projects WHERE active = 1 AND name LIKE ? ORDER BY name`, "%"+substr+"%")
	if err != nil {
		return nil, errs.Wrap(errs.Transient, errs.PlaneRegistry, "search projects", err)
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, errs.Wrap(errs.Transient, errs.PlaneRegistry, "scan project", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListActiveProjects returns every active project, ordered by name.
func (s *Store) ListActiveProjects() ([]models.Project, error) {
	return s.SearchProjects("")
}

// DeactivateProject soft-deletes a project and cascades to its worktrees: all
// of the project's still-active worktree rows are deactivated in the same
// transaction, so a deactivated project never leaves active worktree rows
// pointing at it behind.
func (s *Store) DeactivateProject(id string) error {
	err := s.WithTx(func(tx *sql.Tx) error {
		now := time.Now().UTC()
		res, err := tx.Exec(`UPDATE projects SET active = 0, updated_at = ? WHERE id = ? AND active = 1`, now, id)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return errs.New(errs.NotFound, errs.PlaneRegistry, "no active project with id "+id)
		}
		_, err = tx.Exec(`UPDATE worktrees SET active = 0, updated_at = ? WHERE project_id = ? AND active = 1`, now, id)
		return err
	})
	if err != nil {
		if kind, ok := errs.KindOf(err); ok && kind == errs.NotFound {
			return err
		}
		return errs.Wrap(errs.Transient, errs.PlaneRegistry, "deactivate project", err)
	}
	return nil
}

// UpdateProjectPaths rewrites trunk_path for repair().
func (s *Store) UpdateProjectPaths(id, trunkPath string) error {
	_, err := s.db.Exec(`UPDATE projects SET trunk_path = ?, updated_at = ? WHERE id = ?`, trunkPath, time.Now().UTC(), id)
	if err != nil {
		return errs.Wrap(errs.Transient, errs.PlaneRegistry, "update project trunk path", err)
	}
	return nil
}
