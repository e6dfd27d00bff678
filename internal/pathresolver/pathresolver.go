// Package pathresolver is the single source of absolute worktree paths.
// No other component is permitted to build a worktree path by string
// concatenation; everything goes through Resolve or ResolveTrunk.
package pathresolver

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-imi/imi/internal/errs"
	"github.com/go-imi/imi/internal/models"
)

// ClusterHub returns the parent directory of a project's trunk_path, the
// root that holds .iMi/, the trunk worktree, and every sibling worktree.
func ClusterHub(trunkPath string) string {
	return filepath.Dir(trunkPath)
}

// Resolve computes the absolute path for a named worktree of the given type,
// rooted at the project's cluster hub.
func Resolve(project models.Project, wtType models.WorktreeType, name string) (string, error) {
	if wtType.WorktreePrefix == "" {
		return "", errs.New(errs.InvalidInput, errs.PlaneFilesystem, "worktree type "+wtType.Name+" has no worktree_prefix")
	}
	if strings.ContainsAny(name, "/\\") {
		return "", errs.New(errs.InvalidInput, errs.PlaneFilesystem, "worktree name must not contain path separators: "+name)
	}
	hub := ClusterHub(project.TrunkPath)
	return filepath.Join(hub, wtType.WorktreePrefix+name), nil
}

// ResolveTrunk computes the trunk worktree's path given the trunk type and
// the project's default branch, used during registration before TrunkPath
// is known.
func ResolveTrunk(hub string, trunkType models.WorktreeType, defaultBranch string) string {
	return filepath.Join(hub, trunkType.WorktreePrefix+defaultBranch)
}

// BranchName computes the branch a worktree of this type should use.
// The trunk type (empty branch_prefix) uses the project's default branch
// directly rather than a prefixed name.
func BranchName(wtType models.WorktreeType, name, defaultBranch string) string {
	if wtType.IsTrunk() {
		return defaultBranch
	}
	return wtType.BranchPrefix + name
}

// MetadataDir returns the project's private metadata directory, `.iMi/`
// inside the cluster hub.
func MetadataDir(hub string) string {
	return filepath.Join(hub, ".iMi")
}

// ProjectManifestPath returns the path to the hub's project.json.
func ProjectManifestPath(hub string) string {
	return filepath.Join(MetadataDir(hub), "project.json")
}

// SyncDir returns the optional sync-files directory inside the hub.
func SyncDir(hub string) string {
	return filepath.Join(hub, "sync")
}

// ClassifyBasename matches a sibling directory's basename against the known
// worktree prefixes, returning the matching type and the bare name with the
// prefix stripped. Used by both the Context Detector and orphan detection.
func ClassifyBasename(basename string, types []models.WorktreeType) (wtType models.WorktreeType, name string, ok bool) {
	for _, t := range types {
		if t.WorktreePrefix != "" && strings.HasPrefix(basename, t.WorktreePrefix) {
			return t, strings.TrimPrefix(basename, t.WorktreePrefix), true
		}
	}
	return models.WorktreeType{}, "", false
}

// IsTrunkBasename reports whether basename matches the trunk worktree's
// prefix shape (trunk-<default_branch>).
func IsTrunkBasename(basename string, trunkType models.WorktreeType) bool {
	return strings.HasPrefix(basename, trunkType.WorktreePrefix)
}

func init() {
	// Guard against a future builtin type being added with an empty prefix;
	// Resolve depends on every non-trunk type having one.
	for _, t := range models.BuiltinWorktreeTypes {
		if !t.IsTrunk() && t.WorktreePrefix == "" {
			panic(fmt.Sprintf("worktree type %q must have a non-empty worktree_prefix", t.Name))
		}
	}
}
