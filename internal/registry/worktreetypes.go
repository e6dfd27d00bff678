package registry

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-imi/imi/internal/errs"
	"github.com/go-imi/imi/internal/models"
)

func scanWorktreeType(row interface {
	Scan(dest ...any) error
}) (models.WorktreeType, error) {
	var t models.WorktreeType
	var desc, color, icon, meta sql.NullString
	var isBuiltin int
	if err := row.Scan(&t.ID, &t.Name, &t.BranchPrefix, &t.WorktreePrefix, &desc, &isBuiltin, &color, &icon, &meta); err != nil {
		return models.WorktreeType{}, err
	}
	t.Description = desc.String
	t.Color = color.String
	t.Icon = icon.String
	t.IsBuiltin = isBuiltin != 0
	if meta.Valid && meta.String != "" {
		_ = json.Unmarshal([]byte(meta.String), &t.Metadata)
	}
	return t, nil
}

const worktreeTypeColumns = `id, name, branch_prefix, worktree_prefix, description, is_builtin, color, icon, metadata`

// GetWorktreeTypeByName resolves a type_name from the CLI/create request.
func (s *Store) GetWorktreeTypeByName(name string) (models.WorktreeType, error) {
	row := s.db.QueryRow(`SELECT `+worktreeTypeColumns+` FROM worktree_types WHERE name = ?`, name)
	t, err := scanWorktreeType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WorktreeType{}, errs.New(errs.InvalidInput, errs.PlaneRegistry, "unknown worktree type "+name)
	}
	if err != nil {
		return models.WorktreeType{}, errs.Wrap(errs.Transient, errs.PlaneRegistry, "get worktree type", err)
	}
	return t, nil
}

// ListWorktreeTypes returns every registered type, builtin and custom.
func (s *Store) ListWorktreeTypes() ([]models.WorktreeType, error) {
	rows, err := s.db.Query(`SELECT ` + worktreeTypeColumns + ` FROM worktree_types ORDER BY id`)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, errs.PlaneRegistry, "list worktree types", err)
	}
	defer rows.Close()

	var out []models.WorktreeType
	for rows.Next() {
		t, err := scanWorktreeType(rows)
		if err != nil {
			return nil, errs.Wrap(errs.Transient, errs.PlaneRegistry, "scan worktree type", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
