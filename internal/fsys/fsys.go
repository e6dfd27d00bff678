// Package fsys provides cluster-hub filesystem helpers: the .iMi/ metadata
// directory, sync-file propagation, and orphan detection. Every write uses
// a temp-file-then-rename pattern so a crash mid-write never leaves a
// half-written file behind.
package fsys

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/go-imi/imi/internal/errs"
	"github.com/go-imi/imi/internal/logger"
	"github.com/go-imi/imi/internal/models"
	"github.com/go-imi/imi/internal/pathresolver"
)

// ProjectManifest is the content of .iMi/project.json, the hub-local mirror
// of the registry row consulted by the Context Detector before a DB lookup.
type ProjectManifest struct {
	ProjectID     string `json:"project_id"`
	Name          string `json:"name"`
	RemoteOrigin  string `json:"remote_origin"`
	DefaultBranch string `json:"default_branch"`
	TrunkPath     string `json:"trunk_path"`
}

// AtomicWriteFile writes content to path via a temp file in the same
// directory followed by rename, so readers never observe a partial write.
func AtomicWriteFile(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errs.Wrap(errs.Transient, errs.PlaneFilesystem, "create temp file in "+dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return errs.Wrap(errs.Transient, errs.PlaneFilesystem, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.Transient, errs.PlaneFilesystem, "close temp file", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return errs.Wrap(errs.Transient, errs.PlaneFilesystem, "chmod temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errs.Wrap(errs.Transient, errs.PlaneFilesystem, "rename into place: "+path, err)
	}
	return nil
}

// EnsureHub creates hub/.iMi if missing and writes/updates project.json,
// implementing ensure_hub. Permissions follow the parent directory.
func EnsureHub(hub string, manifest ProjectManifest) error {
	info, err := os.Stat(hub)
	if err != nil {
		return errs.Wrap(errs.Transient, errs.PlaneFilesystem, "stat cluster hub "+hub, err)
	}
	metaDir := pathresolver.MetadataDir(hub)
	if err := os.MkdirAll(metaDir, info.Mode().Perm()); err != nil {
		return errs.Wrap(errs.Transient, errs.PlaneFilesystem, "create .iMi dir", err)
	}

	content, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errs.Wrap(errs.InvalidInput, errs.PlaneFilesystem, "marshal project manifest", err)
	}
	return AtomicWriteFile(pathresolver.ProjectManifestPath(hub), content, 0o644)
}

// ReadManifest loads a hub's project.json, or errs.NotFound if absent.
func ReadManifest(hub string) (ProjectManifest, error) {
	content, err := os.ReadFile(pathresolver.ProjectManifestPath(hub))
	if err != nil {
		if os.IsNotExist(err) {
			return ProjectManifest{}, errs.New(errs.NotFound, errs.PlaneFilesystem, "no project manifest in "+hub)
		}
		return ProjectManifest{}, errs.Wrap(errs.Transient, errs.PlaneFilesystem, "read project manifest", err)
	}
	var m ProjectManifest
	if err := json.Unmarshal(content, &m); err != nil {
		return ProjectManifest{}, errs.Wrap(errs.Corrupted, errs.PlaneFilesystem, "parse project manifest", err)
	}
	return m, nil
}

// PropagateMode selects symlink vs copy for sync-file propagation.
type PropagateMode int

const (
	PropagateSymlink PropagateMode = iota
	PropagateCopy
)

// PropagateSync implements propagate_sync: for each file under the hub's
// sync/ directory, create a symlink or copy inside targetWorktree. A name
// collision in the target is skipped with a warning, never an error —
// sync-file collisions during create() are "reported, not fatal" per the
// lifecycle manager's failure semantics.
func PropagateSync(hub, targetWorktree string, files []string, mode PropagateMode) {
	syncDir := pathresolver.SyncDir(hub)
	for _, file := range files {
		src := filepath.Join(syncDir, file)
		dst := filepath.Join(targetWorktree, file)

		if _, err := os.Lstat(dst); err == nil {
			logger.Logger.Warn().Str("file", file).Str("worktree", targetWorktree).Msg("sync file already present, skipping")
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			logger.Logger.Warn().Err(err).Str("file", file).Msg("could not create sync target directory")
			continue
		}

		var err error
		switch mode {
		case PropagateSymlink:
			err = os.Symlink(src, dst)
		default:
			err = copyFile(src, dst)
		}
		if err != nil {
			logger.Logger.Warn().Err(err).Str("file", file).Msg("failed to propagate sync file")
		}
	}
}

func copyFile(src, dst string) error {
	content, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return AtomicWriteFile(dst, content, info.Mode().Perm())
}

// DetectOrphans implements detect_orphans: sibling directories of the hub
// whose basename matches a known worktree prefix but is absent from
// registeredNames (the set of currently-active worktree names).
func DetectOrphans(hub string, types []models.WorktreeType, registeredNames map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(hub)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, errs.PlaneFilesystem, "read cluster hub "+hub, err)
	}

	var orphans []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		base := entry.Name()
		if base == ".iMi" || base == "sync" {
			continue
		}
		_, name, ok := pathresolver.ClassifyBasename(base, types)
		if !ok {
			continue
		}
		if !registeredNames[name] {
			orphans = append(orphans, base)
		}
	}
	return orphans, nil
}

// RemoveOrphan deletes an orphaned sibling directory entirely. Callers must
// have already confirmed force/dry_run semantics; this performs the removal
// unconditionally.
func RemoveOrphan(hub, basename string) error {
	path := filepath.Join(hub, basename)
	if err := os.RemoveAll(path); err != nil {
		return errs.Wrap(errs.Transient, errs.PlaneFilesystem, "remove orphan "+path, err)
	}
	return nil
}
