// Package initstate implements the Initialization State Machine behind
// `imi init`: a three-branch transition keyed by what the Context Detector
// reports about the current working directory. Every transition is
// idempotent; re-running init never destroys user data.
package initstate

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/go-imi/imi/internal/config"
	"github.com/go-imi/imi/internal/ctxdetect"
	"github.com/go-imi/imi/internal/errs"
	"github.com/go-imi/imi/internal/fsys"
	"github.com/go-imi/imi/internal/git"
	"github.com/go-imi/imi/internal/logger"
	"github.com/go-imi/imi/internal/models"
	"github.com/go-imi/imi/internal/pathresolver"
	"github.com/go-imi/imi/internal/registry"
)

// Outcome describes which branch of the state machine ran and what changed.
type Outcome struct {
	Branch      ctxdetect.Classification
	Project     *models.Project
	ConfigPath  string
	Message     string
}

// Run executes `init` for cwd, following §4.7's three-branch machine. force
// only overrides the config/registry refresh on the OutsideAnyRepo branch;
// it never deletes a worktree or a project row.
func Run(cwd string, force bool, gitOps git.Operations, store *registry.Store) (Outcome, error) {
	ctx, err := ctxdetect.Detect(cwd, gitOps, store)
	if err != nil {
		return Outcome{}, err
	}

	switch ctx.Classification {
	case ctxdetect.OutsideAnyRepo:
		return runOutsideAnyRepo(force)
	case ctxdetect.InsideUnregistered:
		return runInsideUnregistered(ctx, gitOps, store)
	default:
		return runInsideRegistered(ctx, store)
	}
}

func runOutsideAnyRepo(force bool) (Outcome, error) {
	path, err := config.Path()
	if err != nil {
		return Outcome{}, errs.Wrap(errs.Transient, errs.PlaneFilesystem, "resolve config path", err)
	}

	if _, statErr := os.Stat(path); statErr == nil && !force {
		return Outcome{Branch: ctxdetect.OutsideAnyRepo, ConfigPath: path,
			Message: "config already present at " + path + "; re-run with --force to refresh"}, nil
	}

	cfg := config.Default()
	if err := config.Save(cfg); err != nil {
		return Outcome{}, errs.Wrap(errs.Transient, errs.PlaneFilesystem, "write config.toml", err)
	}
	dbPath, err := config.DBPath()
	if err != nil {
		return Outcome{}, errs.Wrap(errs.Transient, errs.PlaneFilesystem, "resolve registry db path", err)
	}
	if _, err := registry.Open(dbPath); err != nil {
		return Outcome{}, err
	}

	return Outcome{Branch: ctxdetect.OutsideAnyRepo, ConfigPath: path, Message: "initialized global config and registry at " + path}, nil
}

func runInsideUnregistered(ctx ctxdetect.Context, gitOps git.Operations, store *registry.Store) (Outcome, error) {
	types, err := store.ListWorktreeTypes()
	if err != nil {
		return Outcome{}, err
	}
	trunkType, ok := trunkTypeOf(types)
	if !ok {
		return Outcome{}, errs.New(errs.Corrupted, errs.PlaneRegistry, "no trunk worktree type registered")
	}

	basename := filepath.Base(ctx.RepoRoot)
	if !pathresolver.IsTrunkBasename(basename, trunkType) {
		return Outcome{}, errs.New(errs.InvalidInput, errs.PlaneInput,
			"current directory \""+basename+"\" does not start with the trunk prefix \""+trunkType.WorktreePrefix+
				"\"; rename it or run init from the trunk worktree")
	}

	defaultBranch, err := gitOps.DefaultBranch(ctx.RepoRoot)
	if err != nil {
		return Outcome{}, errs.Wrap(errs.BadRepo, errs.PlaneGit, "determine default branch", err)
	}

	hub := pathresolver.ClusterHub(ctx.RepoRoot)
	projectName := filepath.Base(hub)

	project, _, err := store.RegisterProject(models.ProjectSpec{
		Name:          projectName,
		RemoteOrigin:  canonicalOrigin(ctx.RepoRoot, gitOps),
		DefaultBranch: defaultBranch,
		TrunkPath:     ctx.RepoRoot,
	})
	if err != nil {
		return Outcome{}, err
	}

	if err := fsys.EnsureHub(hub, fsys.ProjectManifest{
		ProjectID: project.ID, Name: project.Name, RemoteOrigin: project.RemoteOrigin,
		DefaultBranch: project.DefaultBranch, TrunkPath: project.TrunkPath,
	}); err != nil {
		return Outcome{}, err
	}

	if _, err := store.GetWorktreeByProjectAndName(project.ID, defaultBranch); err != nil {
		if _, regErr := store.RegisterWorktree(models.WorktreeSpec{
			ProjectID: project.ID, TypeID: trunkType.ID, Name: defaultBranch,
			BranchName: defaultBranch, Path: ctx.RepoRoot,
		}); regErr != nil {
			return Outcome{}, regErr
		}
	}

	return Outcome{Branch: ctxdetect.InsideUnregistered, Project: &project,
		Message: "registered project " + project.Name + " with hub " + hub}, nil
}

func runInsideRegistered(ctx ctxdetect.Context, store *registry.Store) (Outcome, error) {
	project := ctx.Project
	hub := pathresolver.ClusterHub(project.TrunkPath)

	if err := fsys.EnsureHub(hub, fsys.ProjectManifest{
		ProjectID: project.ID, Name: project.Name, RemoteOrigin: project.RemoteOrigin,
		DefaultBranch: project.DefaultBranch, TrunkPath: project.TrunkPath,
	}); err != nil {
		return Outcome{}, err
	}

	types, err := store.ListWorktreeTypes()
	if err != nil {
		return Outcome{}, err
	}
	trunkType, ok := trunkTypeOf(types)
	if !ok {
		return Outcome{}, errs.New(errs.Corrupted, errs.PlaneRegistry, "no trunk worktree type registered")
	}

	if _, err := store.GetWorktreeByProjectAndName(project.ID, project.DefaultBranch); err != nil {
		if _, regErr := store.RegisterWorktree(models.WorktreeSpec{
			ProjectID: project.ID, TypeID: trunkType.ID, Name: project.DefaultBranch,
			BranchName: project.DefaultBranch, Path: project.TrunkPath,
		}); regErr != nil {
			return Outcome{}, regErr
		}
		return Outcome{Branch: ctxdetect.InsideRegistered, Project: &project, Message: "added missing trunk worktree row"}, nil
	}

	return Outcome{Branch: ctxdetect.InsideRegistered, Project: &project, Message: "hub metadata verified, nothing to do"}, nil
}

func trunkTypeOf(types []models.WorktreeType) (models.WorktreeType, bool) {
	for _, t := range types {
		if t.IsTrunk() {
			return t, true
		}
	}
	return models.WorktreeType{}, false
}

// canonicalOrigin returns the repo's "origin" remote URL, or a synthetic
// uuid-scoped fallback for origin-less local repositories so the
// unique-remote_origin registration constraint still holds.
func canonicalOrigin(repoPath string, gitOps git.Operations) string {
	origin, err := gitOps.RemoteOrigin(repoPath)
	if err != nil {
		logger.Logger.Debug().Str("repo", repoPath).Msg("no remote origin, registering as a local-only project")
		return "local:" + uuid.NewString()
	}
	return origin
}
