// Package ctxdetect classifies the current working directory against the
// registry, the way the CLI decides what list/status/create mean without
// explicit flags.
package ctxdetect

import (
	"path/filepath"
	"strings"

	"github.com/go-imi/imi/internal/errs"
	"github.com/go-imi/imi/internal/fsys"
	"github.com/go-imi/imi/internal/git"
	"github.com/go-imi/imi/internal/models"
	"github.com/go-imi/imi/internal/pathresolver"
	"github.com/go-imi/imi/internal/registry"
)

// Classification is the closed set of outcomes Detect can return.
type Classification int

const (
	OutsideAnyRepo Classification = iota
	InsideUnregistered
	InsideRegistered
)

// WorktreeRole narrows InsideRegistered to which kind of worktree cwd is in.
type WorktreeRole int

const (
	RoleTrunk WorktreeRole = iota
	RoleTyped
	RoleOther
)

// Context is the full result of Detect.
type Context struct {
	Classification Classification
	RepoRoot       string // set for InsideUnregistered and InsideRegistered

	Project      models.Project
	WorktreeType models.WorktreeType
	Worktree     *models.Worktree // nil if the repo root doesn't match a registered row
	Role         WorktreeRole
}

// Detect walks up from cwd looking for a git repository, then classifies it
// against the registry following §4.4's detection rules.
func Detect(cwd string, ops git.Operations, store *registry.Store) (Context, error) {
	repoRoot, err := ops.FindRepository(cwd)
	if err != nil {
		return Context{Classification: OutsideAnyRepo}, nil
	}

	types, err := store.ListWorktreeTypes()
	if err != nil {
		return Context{}, err
	}
	trunkType, ok := findTrunkType(types)
	if !ok {
		return Context{}, errs.New(errs.Corrupted, errs.PlaneRegistry, "no trunk worktree type registered")
	}

	basename := filepath.Base(repoRoot)

	if pathresolver.IsTrunkBasename(basename, trunkType) {
		hub := pathresolver.ClusterHub(repoRoot)
		return classifyHub(repoRoot, hub, trunkType, RoleTrunk, ops, store)
	}

	if wtType, _, ok := pathresolver.ClassifyBasename(basename, types); ok {
		hub := pathresolver.ClusterHub(repoRoot)
		return classifyHub(repoRoot, hub, wtType, RoleTyped, ops, store)
	}

	// Unrecognized basename: classify as Other and still attempt manifest/
	// remote-origin resolution rather than giving up immediately, in case
	// this is a registered worktree whose directory was renamed by hand.
	return classifyOther(repoRoot, types, ops, store)
}

// resolveProject implements the fallback chain shared by classifyHub and
// classifyOther: first the hub's project.json, then the remote origin.
func resolveProject(repoRoot, hub string, ops git.Operations, store *registry.Store) (models.Project, error) {
	manifest, err := fsys.ReadManifest(hub)
	var project models.Project
	if err == nil {
		project, err = store.GetProjectByID(manifest.ProjectID)
	}
	if err != nil {
		if remoteErr := tryResolveByRemote(repoRoot, ops, store, &project); remoteErr != nil {
			return models.Project{}, remoteErr
		}
	}
	return project, nil
}

func classifyHub(repoRoot, hub string, wtType models.WorktreeType, role WorktreeRole, ops git.Operations, store *registry.Store) (Context, error) {
	project, err := resolveProject(repoRoot, hub, ops, store)
	if err != nil {
		return Context{Classification: InsideUnregistered, RepoRoot: repoRoot}, nil
	}

	name := strings.TrimPrefix(filepath.Base(repoRoot), wtType.WorktreePrefix)
	wt, wtErr := store.GetWorktreeByProjectAndName(project.ID, name)
	ctx := Context{
		Classification: InsideRegistered,
		RepoRoot:       repoRoot,
		Project:        project,
		WorktreeType:   wtType,
		Role:           role,
	}
	if wtErr == nil {
		ctx.Worktree = &wt
	}
	return ctx, nil
}

// classifyOther handles a basename that matches neither the trunk nor any
// known worktree prefix: the worktree row, if any, is found by its recorded
// path instead of by a (project, name) key derived from a prefix we don't
// have.
func classifyOther(repoRoot string, types []models.WorktreeType, ops git.Operations, store *registry.Store) (Context, error) {
	hub := pathresolver.ClusterHub(repoRoot)
	project, err := resolveProject(repoRoot, hub, ops, store)
	if err != nil {
		return Context{Classification: InsideUnregistered, RepoRoot: repoRoot}, nil
	}

	ctx := Context{
		Classification: InsideRegistered,
		RepoRoot:       repoRoot,
		Project:        project,
		Role:           RoleOther,
	}
	if wt, wtErr := store.GetWorktreeByPath(repoRoot); wtErr == nil {
		ctx.Worktree = &wt
		if wtType, ok := findTypeByID(types, wt.TypeID); ok {
			ctx.WorktreeType = wtType
		}
	}
	return ctx, nil
}

func findTypeByID(types []models.WorktreeType, id int) (models.WorktreeType, bool) {
	for _, t := range types {
		if t.ID == id {
			return t, true
		}
	}
	return models.WorktreeType{}, false
}

// tryResolveByRemote is the fallback path from §4.4: "resolve the project by
// the hub's project.json, then by the remote origin, in that order." Used
// when the hub has no (or a stale) project.json.
func tryResolveByRemote(repoRoot string, ops git.Operations, store *registry.Store, project *models.Project) error {
	if origin, err := ops.RemoteOrigin(repoRoot); err == nil {
		if p, err := store.GetProjectByOrigin(origin); err == nil {
			*project = p
			return nil
		}
	}

	// Origin-less or unregistered-origin repositories still resolve if their
	// cluster hub matches an active project's trunk hub.
	hub := pathresolver.ClusterHub(repoRoot)
	projects, err := store.ListActiveProjects()
	if err != nil {
		return err
	}
	for _, p := range projects {
		if pathresolver.ClusterHub(p.TrunkPath) == hub {
			*project = p
			return nil
		}
	}
	return errs.New(errs.NotFound, errs.PlaneRegistry, "no project matches hub "+hub)
}

func findTrunkType(types []models.WorktreeType) (models.WorktreeType, bool) {
	for _, t := range types {
		if t.IsTrunk() {
			return t, true
		}
	}
	return models.WorktreeType{}, false
}
