// Package lifecycle implements the Worktree Lifecycle Manager, the
// multi-plane (DB, git, filesystem) transaction coordinator behind every
// mutating iMi command.
package lifecycle

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-imi/imi/internal/config"
	"github.com/go-imi/imi/internal/errs"
	"github.com/go-imi/imi/internal/events"
	"github.com/go-imi/imi/internal/fsys"
	"github.com/go-imi/imi/internal/git"
	"github.com/go-imi/imi/internal/logger"
	"github.com/go-imi/imi/internal/models"
	"github.com/go-imi/imi/internal/pathresolver"
	"github.com/go-imi/imi/internal/registry"
)

// Manager coordinates the three planes for every mutating operation. All
// public methods are safe for concurrent use; per-project serialization is
// handled internally via the advisory lock.
type Manager struct {
	store   *registry.Store
	git     git.Operations
	cfg     *config.Config
	emitter *events.Emitter
	locks   *projectLocks
}

// NewManager wires a Manager from its four collaborators. cfg may be
// config.Default() when the caller has not loaded a config.toml.
func NewManager(store *registry.Store, gitOps git.Operations, cfg *config.Config, emitter *events.Emitter) *Manager {
	return &Manager{store: store, git: gitOps, cfg: cfg, emitter: emitter, locks: newProjectLocks()}
}

// ResolveProject looks a project up by id first, then by exact name,
// implementing the project_ref argument accepted throughout §4.5.2.
func (m *Manager) ResolveProject(ref string) (models.Project, error) {
	if ref == "" {
		return models.Project{}, errs.New(errs.InvalidInput, errs.PlaneInput, "project reference required")
	}
	if p, err := m.store.GetProjectByID(ref); err == nil {
		return p, nil
	}
	return m.store.GetProjectByName(ref)
}

func (m *Manager) resolveType(typeName string) (models.WorktreeType, error) {
	return m.store.GetWorktreeTypeByName(typeName)
}

func validateName(name string) error {
	if name == "" {
		return errs.New(errs.InvalidInput, errs.PlaneInput, "name must not be empty")
	}
	if len(name) > 100 {
		return errs.New(errs.InvalidInput, errs.PlaneInput, "name must be at most 100 characters")
	}
	if strings.ContainsAny(name, "/\\") {
		return errs.New(errs.InvalidInput, errs.PlaneInput, "name must not contain path separators")
	}
	return nil
}

// Create implements create(): validate, resolve paths, insert the row inside
// a transaction, add the git worktree from the project's default branch,
// propagate sync files, commit, then emit worktree.created. The trunk is not
// fetched first. A failed git mutation rolls back the row insert; if the
// commit fails after the worktree was added, the worktree is removed again
// before the error is surfaced.
func (m *Manager) Create(ctx context.Context, projectRef, typeName, name, ownerID string, metadata map[string]any) (models.Worktree, error) {
	if err := validateName(name); err != nil {
		return models.Worktree{}, err
	}

	project, err := m.ResolveProject(projectRef)
	if err != nil {
		return models.Worktree{}, err
	}
	if !project.Active {
		return models.Worktree{}, errs.New(errs.InvalidInput, errs.PlaneRegistry, "project is not active: "+project.Name)
	}

	wtType, err := m.resolveType(typeName)
	if err != nil {
		return models.Worktree{}, err
	}
	if wtType.IsTrunk() {
		return models.Worktree{}, errs.New(errs.InvalidInput, errs.PlaneInput, "cannot create a second trunk worktree")
	}

	unlock := m.locks.Lock(project.ID)
	defer unlock()

	if _, err := m.store.GetWorktreeByProjectAndName(project.ID, name); err == nil {
		return models.Worktree{}, errs.New(errs.NameInUse, errs.PlaneRegistry, "worktree name already in use: "+name)
	}

	targetPath, err := pathresolver.Resolve(project, wtType, name)
	if err != nil {
		return models.Worktree{}, err
	}
	if _, err := os.Stat(targetPath); err == nil {
		return models.Worktree{}, errs.New(errs.PathExists, errs.PlaneFilesystem, "path already exists: "+targetPath)
	}

	if _, err := os.Stat(project.TrunkPath); err != nil {
		return models.Worktree{}, errs.Wrap(errs.TrunkMissing, errs.PlaneGit, "trunk worktree missing: "+project.TrunkPath, err)
	}

	branch := pathresolver.BranchName(wtType, name, project.DefaultBranch)

	// Per §4.5.1: insert the row first and hold it in an open transaction,
	// then perform the git and filesystem mutations, committing only once
	// both succeed. A second concurrent Create for this name blocks on the
	// registry's single-writer lock and is rejected by the (project_id,
	// name) uniqueness constraint before it ever calls AddWorktree, instead
	// of racing a second `git worktree add` against the same target path.
	var worktree models.Worktree
	added := false
	err = m.store.WithTx(func(tx *sql.Tx) error {
		var txErr error
		worktree, txErr = m.store.RegisterWorktreeTx(tx, models.WorktreeSpec{
			ProjectID: project.ID, TypeID: wtType.ID, Name: name, BranchName: branch,
			Path: targetPath, OwnerID: ownerID, Metadata: metadata,
		})
		if txErr != nil {
			return txErr
		}
		if txErr := m.git.AddWorktree(project.TrunkPath, targetPath, branch, project.DefaultBranch); txErr != nil {
			return errs.Wrap(errs.BranchConflict, errs.PlaneGit, "add_worktree failed", txErr)
		}
		added = true
		fsys.PropagateSync(pathresolver.ClusterHub(project.TrunkPath), targetPath, m.cfg.Sync.Files, syncModeOf(m.cfg.Sync.Mode))
		return nil
	})
	if err != nil {
		if added {
			if rmErr := m.git.RemoveWorktree(project.TrunkPath, targetPath, true); rmErr != nil {
				logger.Logger.Warn().Err(rmErr).Str("path", targetPath).Msg("rollback of added worktree failed")
			}
		}
		return models.Worktree{}, err
	}

	m.emitter.Emit(models.EventWorktreeCreated, "", map[string]any{
		"project_id": project.ID, "worktree_id": worktree.ID, "name": name, "branch": branch, "path": targetPath,
	})
	m.logActivity(ownerID, worktree.ID, models.ActivityCreated, "created worktree "+name)
	return worktree, nil
}

// Review implements review(): fetch a PR's head ref into a non-default
// local ref without touching the trunk, then create a "review"-typed
// worktree checked out to it. The trunk worktree's HEAD is never touched.
func (m *Manager) Review(ctx context.Context, projectRef string, prNumber int, ownerID string) (models.Worktree, error) {
	project, err := m.ResolveProject(projectRef)
	if err != nil {
		return models.Worktree{}, err
	}
	wtType, err := m.resolveType("review")
	if err != nil {
		return models.Worktree{}, err
	}

	name := strconv.Itoa(prNumber)

	unlock := m.locks.Lock(project.ID)
	defer unlock()

	if _, err := m.store.GetWorktreeByProjectAndName(project.ID, name); err == nil {
		return models.Worktree{}, errs.New(errs.NameInUse, errs.PlaneRegistry, "review worktree already exists: "+name)
	}

	targetPath, err := pathresolver.Resolve(project, wtType, name)
	if err != nil {
		return models.Worktree{}, err
	}
	if _, err := os.Stat(targetPath); err == nil {
		return models.Worktree{}, errs.New(errs.PathExists, errs.PlaneFilesystem, "path already exists: "+targetPath)
	}

	localRef, err := m.git.FetchPRRef(project.TrunkPath, m.cfg.Git.DefaultRemote, prNumber)
	if err != nil {
		return models.Worktree{}, errs.Wrap(errs.RefNotFound, errs.PlaneGit, "fetch_pr_ref failed for PR "+strconv.Itoa(prNumber), err)
	}

	branch := pathresolver.BranchName(wtType, name, project.DefaultBranch)

	// Same insert-before-mutate ordering as Create; see its comment.
	var worktree models.Worktree
	err = m.store.WithTx(func(tx *sql.Tx) error {
		var txErr error
		worktree, txErr = m.store.RegisterWorktreeTx(tx, models.WorktreeSpec{
			ProjectID: project.ID, TypeID: wtType.ID, Name: name, BranchName: branch,
			Path: targetPath, OwnerID: ownerID, Metadata: map[string]any{"pr_number": prNumber},
		})
		if txErr != nil {
			return txErr
		}
		if txErr := m.git.AddWorktree(project.TrunkPath, targetPath, branch, localRef); txErr != nil {
			return errs.Wrap(errs.BranchConflict, errs.PlaneGit, "add_worktree failed", txErr)
		}
		fsys.PropagateSync(pathresolver.ClusterHub(project.TrunkPath), targetPath, m.cfg.Sync.Files, syncModeOf(m.cfg.Sync.Mode))
		return nil
	})
	if err != nil {
		return models.Worktree{}, err
	}

	m.emitter.Emit(models.EventWorktreeCreated, "", map[string]any{
		"project_id": project.ID, "worktree_id": worktree.ID, "name": name, "branch": branch,
		"path": targetPath, "pr_number": prNumber,
	})
	m.logActivity(ownerID, worktree.ID, models.ActivityCreated, "created review worktree for PR "+strconv.Itoa(prNumber))
	return worktree, nil
}

// logActivity appends an audit row and, on success, emits activity.logged.
// Failures are warn-only: the audit trail is best-effort and must never
// fail the mutation it is describing.
func (m *Manager) logActivity(ownerID, worktreeID string, kind models.ActivityKind, description string) {
	if err := m.store.LogActivity(models.Activity{
		OwnerID: ownerID, WorktreeID: worktreeID, Kind: kind, Description: description,
	}); err != nil {
		logger.Logger.Warn().Err(err).Str("worktree_id", worktreeID).Msg("log_activity failed")
		return
	}
	m.emitter.Emit(models.EventActivityLogged, "", map[string]any{"worktree_id": worktreeID, "kind": string(kind)})
}

func syncModeOf(m config.SyncMode) fsys.PropagateMode {
	if m == config.SyncModeCopy {
		return fsys.PropagateCopy
	}
	return fsys.PropagateSymlink
}

// destroyOutcome records what happened during a close/remove so callers can
// compose merge() and report idempotent no-ops uniformly.
type destroyOutcome struct {
	AlreadyClosed       bool
	LocalBranchDeleted  bool
	RemoteBranchDeleted bool
	RemoteDeleteError   string
}

// destroy implements the shared body of close() and remove(): remove the
// filesystem directory, the git worktree registration, then deactivate the
// DB row. Branch deletion is opt-in via deleteLocal/deleteRemote.
func (m *Manager) destroy(ctx context.Context, projectRef, name string, deleteLocal, deleteRemote bool) (models.Worktree, destroyOutcome, error) {
	project, err := m.ResolveProject(projectRef)
	if err != nil {
		return models.Worktree{}, destroyOutcome{}, err
	}

	unlock := m.locks.Lock(project.ID)
	defer unlock()

	wt, err := m.store.GetWorktreeByProjectAndName(project.ID, name)
	if err != nil {
		if kind, ok := errs.KindOf(err); ok && kind == errs.NotFound {
			return models.Worktree{}, destroyOutcome{AlreadyClosed: true}, nil
		}
		return models.Worktree{}, destroyOutcome{}, err
	}
	if wt.MergedAt != nil {
		return models.Worktree{}, destroyOutcome{}, errs.New(errs.InvalidInput, errs.PlaneRegistry, "worktree already completed: "+name)
	}

	exists, err := m.git.WorktreeExists(project.TrunkPath, wt.Path)
	if err != nil {
		return models.Worktree{}, destroyOutcome{}, errs.Wrap(errs.Transient, errs.PlaneGit, "worktree_exists check failed", err)
	}
	if exists {
		if err := m.git.RemoveWorktree(project.TrunkPath, wt.Path, true); err != nil {
			return models.Worktree{}, destroyOutcome{}, errs.Wrap(errs.Transient, errs.PlaneGit, "remove_worktree failed", err)
		}
	} else if _, statErr := os.Stat(wt.Path); statErr == nil {
		if rmErr := os.RemoveAll(wt.Path); rmErr != nil {
			return models.Worktree{}, destroyOutcome{}, errs.Wrap(errs.Transient, errs.PlaneFilesystem, "remove leftover worktree directory", rmErr)
		}
	}
	if err := m.git.PruneWorktreeMetadata(project.TrunkPath); err != nil {
		logger.Logger.Warn().Err(err).Msg("prune_worktree_metadata failed after remove_worktree")
	}

	outcome := destroyOutcome{}
	if deleteLocal {
		if err := m.git.DeleteLocalBranch(project.TrunkPath, wt.BranchName, true); err != nil {
			logger.Logger.Warn().Err(err).Str("branch", wt.BranchName).Msg("delete_local_branch failed")
		} else {
			outcome.LocalBranchDeleted = true
		}
	}
	if deleteRemote {
		if err := m.git.DeleteRemoteBranch(project.TrunkPath, m.cfg.Git.DefaultRemote, wt.BranchName); err != nil {
			outcome.RemoteDeleteError = err.Error()
			logger.Logger.Warn().Err(err).Str("branch", wt.BranchName).Msg("delete_remote_branch failed (best-effort)")
		} else {
			outcome.RemoteBranchDeleted = true
		}
	}

	if err := m.store.DeactivateWorktree(wt.ID); err != nil {
		return models.Worktree{}, destroyOutcome{}, err
	}

	return wt, outcome, nil
}

// Close implements close(): preserves both branches, deactivates the row.
// Idempotent on an already-closed worktree.
func (m *Manager) Close(ctx context.Context, projectRef, name string) error {
	wt, outcome, err := m.destroy(ctx, projectRef, name, false, false)
	if err != nil {
		return err
	}
	if outcome.AlreadyClosed {
		logger.Logger.Info().Str("name", name).Msg("worktree already closed, nothing to do")
		return nil
	}
	m.emitter.Emit(models.EventWorktreeClosed, "", map[string]any{"worktree_id": wt.ID, "name": name})
	m.logActivity(wt.OwnerID, wt.ID, models.ActivityOther, "closed worktree "+name)
	return nil
}

// Remove implements remove(): close semantics plus optional local/remote
// branch deletion.
func (m *Manager) Remove(ctx context.Context, projectRef, name string, keepLocalBranch, keepRemoteBranch bool) error {
	wt, outcome, err := m.destroy(ctx, projectRef, name, !keepLocalBranch, !keepRemoteBranch)
	if err != nil {
		return err
	}
	if outcome.AlreadyClosed {
		logger.Logger.Info().Str("name", name).Msg("worktree already removed, nothing to do")
		return nil
	}
	m.emitter.Emit(models.EventWorktreeRemoved, "", map[string]any{
		"worktree_id": wt.ID, "name": name,
		"local_branch_deleted": outcome.LocalBranchDeleted, "remote_branch_deleted": outcome.RemoteBranchDeleted,
		"remote_delete_error": outcome.RemoteDeleteError,
	})
	m.logActivity(wt.OwnerID, wt.ID, models.ActivityDeleted, "removed worktree "+name)
	return nil
}

// Merge implements merge(): apply remove() semantics with branch deletion
// enabled by default, then record merge metadata on the now-inactive row.
// The metadata is written after destroy because destroy rejects any row
// whose merged_at is already set.
func (m *Manager) Merge(ctx context.Context, projectRef, name, mergeCommitHash, mergedBy string) error {
	project, err := m.ResolveProject(projectRef)
	if err != nil {
		return err
	}
	wt, err := m.store.GetWorktreeByProjectAndName(project.ID, name)
	if err != nil {
		return err
	}

	_, outcome, err := m.destroy(ctx, projectRef, name, true, true)
	if err != nil {
		return err
	}
	if err := m.store.MarkWorktreeMerged(wt.ID, mergeCommitHash, mergedBy); err != nil {
		return err
	}
	m.emitter.Emit(models.EventWorktreeMerged, "", map[string]any{
		"worktree_id": wt.ID, "name": name, "merge_commit_hash": mergeCommitHash, "merged_by": mergedBy,
		"local_branch_deleted": outcome.LocalBranchDeleted, "remote_branch_deleted": outcome.RemoteBranchDeleted,
	})
	m.logActivity(wt.OwnerID, wt.ID, models.ActivityMerged, "merged worktree "+name)
	return nil
}

// Deactivate implements unregister(): soft-deletes the project and cascades
// to its worktree rows, per §3.4. Git worktrees and their directories are
// left untouched on disk; only the registry stops tracking them.
func (m *Manager) Deactivate(ctx context.Context, projectRef string) (models.Project, error) {
	project, err := m.ResolveProject(projectRef)
	if err != nil {
		return models.Project{}, err
	}

	unlock := m.locks.Lock(project.ID)
	defer unlock()

	if err := m.store.DeactivateProject(project.ID); err != nil {
		return models.Project{}, err
	}

	m.emitter.Emit(models.EventProjectDeactivated, "", map[string]any{
		"project_id": project.ID, "name": project.Name,
	})
	return project, nil
}

// RepairReport summarizes a repair() run.
type RepairReport struct {
	FixedNames []string
	Errors     map[string]string
}

// Repair implements repair(): recompute absolute paths after the cluster
// hub has moved and rewrite the gitdir/commondir/.git pointers plus the
// DB's trunk_path and each worktree.path. Per-worktree errors are collected;
// partial success is acceptable.
func (m *Manager) Repair(ctx context.Context, projectRef string) (RepairReport, error) {
	project, err := m.ResolveProject(projectRef)
	if err != nil {
		return RepairReport{}, err
	}

	unlock := m.locks.Lock(project.ID)
	defer unlock()

	report := RepairReport{Errors: map[string]string{}}

	currentHub := pathresolver.ClusterHub(project.TrunkPath)
	actualHub := currentHub
	if _, statErr := os.Stat(currentHub); statErr != nil {
		return RepairReport{}, errs.Wrap(errs.BadRepo, errs.PlaneFilesystem, "cluster hub not found: "+currentHub, statErr)
	}

	worktrees, err := m.store.ListWorktrees(registry.ListFilters{ProjectID: project.ID, ActiveOnly: true})
	if err != nil {
		return RepairReport{}, err
	}

	trunkType, err := m.resolveType(models.TrunkTypeName)
	if err != nil {
		return RepairReport{}, err
	}
	expectedTrunkPath := pathresolver.ResolveTrunk(actualHub, trunkType, project.DefaultBranch)
	if expectedTrunkPath != project.TrunkPath {
		if err := m.store.UpdateProjectPaths(project.ID, expectedTrunkPath); err != nil {
			report.Errors["trunk"] = err.Error()
		} else {
			project.TrunkPath = expectedTrunkPath
			report.FixedNames = append(report.FixedNames, "trunk")
		}
	}

	types, err := m.store.ListWorktreeTypes()
	if err != nil {
		return RepairReport{}, err
	}

	for _, wt := range worktrees {
		wtType, found := typeByID(types, wt.TypeID)
		if !found {
			report.Errors[wt.Name] = "unknown worktree type id"
			continue
		}
		expectedPath, err := pathresolver.Resolve(project, wtType, wt.Name)
		if err != nil {
			report.Errors[wt.Name] = err.Error()
			continue
		}
		if _, statErr := os.Stat(expectedPath); statErr != nil {
			report.Errors[wt.Name] = "worktree directory missing on disk at expected path: " + expectedPath
			continue
		}
		if expectedPath == wt.Path {
			continue
		}
		if err := m.store.UpdateWorktreePath(wt.ID, expectedPath); err != nil {
			report.Errors[wt.Name] = err.Error()
			continue
		}
		report.FixedNames = append(report.FixedNames, wt.Name)
	}

	if err := m.git.RewriteGitdirPointers(project.TrunkPath, currentHub, actualHub); err != nil {
		report.Errors["gitdir_pointers"] = err.Error()
	}

	m.emitter.Emit(models.EventProjectRepaired, "", map[string]any{
		"project_id": project.ID, "fixed": report.FixedNames, "errors": len(report.Errors),
	})
	return report, nil
}

func typeByID(types []models.WorktreeType, id int) (models.WorktreeType, bool) {
	for _, t := range types {
		if t.ID == id {
			return t, true
		}
	}
	return models.WorktreeType{}, false
}

// PruneReport summarizes a prune() sweep's per-layer counts.
type PruneReport struct {
	AdminCleaned     bool
	DeactivatedRows  []string
	OrphansFound     []string
	OrphansRemoved   []string
	ActivitiesPruned int64
	DryRun           bool
}

// Prune implements prune(): reconcile the registry, the git admin
// directory, and the cluster hub's sibling directories in one sweep. All
// reads are taken from a single DB list call and a single git list call so
// the sweep sees a consistent snapshot.
func (m *Manager) Prune(ctx context.Context, projectRef string, dryRun, force bool) (PruneReport, error) {
	project, err := m.ResolveProject(projectRef)
	if err != nil {
		return PruneReport{}, err
	}

	unlock := m.locks.Lock(project.ID)
	defer unlock()

	report := PruneReport{DryRun: dryRun}

	if !dryRun {
		if err := m.git.PruneWorktreeMetadata(project.TrunkPath); err != nil {
			return PruneReport{}, errs.Wrap(errs.Transient, errs.PlaneGit, "prune_worktree_metadata failed", err)
		}
		report.AdminCleaned = true

		if m.cfg.Activity.RetentionDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -m.cfg.Activity.RetentionDays)
			if n, err := m.store.PruneActivities(cutoff); err != nil {
				logger.Logger.Warn().Err(err).Msg("prune_activities failed")
			} else {
				report.ActivitiesPruned = n
			}
		}
	}

	gitWorktrees, err := m.git.ListWorktrees(project.TrunkPath)
	if err != nil {
		return PruneReport{}, errs.Wrap(errs.Transient, errs.PlaneGit, "list_worktrees failed", err)
	}
	gitPaths := map[string]bool{}
	for _, wt := range gitWorktrees {
		gitPaths[wt.Path] = true
	}

	rows, err := m.store.ListWorktrees(registry.ListFilters{ProjectID: project.ID, ActiveOnly: true})
	if err != nil {
		return PruneReport{}, err
	}

	registeredNames := map[string]bool{}
	for _, wt := range rows {
		registeredNames[wt.Name] = true
		_, existsOnDisk := gitPaths[wt.Path]
		_, statErr := os.Stat(wt.Path)
		if existsOnDisk && statErr == nil {
			continue
		}
		report.DeactivatedRows = append(report.DeactivatedRows, wt.Name)
		if !dryRun {
			if err := m.store.DeactivateWorktree(wt.ID); err != nil {
				logger.Logger.Warn().Err(err).Str("name", wt.Name).Msg("failed to deactivate vanished worktree")
			}
		}
	}

	types, err := m.store.ListWorktreeTypes()
	if err != nil {
		return PruneReport{}, err
	}
	hub := pathresolver.ClusterHub(project.TrunkPath)
	orphans, err := fsys.DetectOrphans(hub, types, registeredNames)
	if err != nil {
		return PruneReport{}, err
	}
	report.OrphansFound = orphans
	if force && !dryRun {
		for _, orphan := range orphans {
			if err := fsys.RemoveOrphan(hub, orphan); err != nil {
				logger.Logger.Warn().Err(err).Str("orphan", orphan).Msg("failed to remove orphan")
				continue
			}
			report.OrphansRemoved = append(report.OrphansRemoved, orphan)
		}
	}

	m.emitter.Emit(models.EventProjectPruned, "", map[string]any{
		"project_id": project.ID, "deactivated": len(report.DeactivatedRows),
		"orphans_found": len(report.OrphansFound), "orphans_removed": len(report.OrphansRemoved),
		"activities_pruned": report.ActivitiesPruned, "dry_run": dryRun,
	})
	return report, nil
}

// Sync implements sync(): refresh head_sha/ahead_behind/dirty_count for
// every active worktree of the project in one pass, updating the DB and
// emitting worktree.synced per updated row.
func (m *Manager) Sync(ctx context.Context, projectRef string) (int, error) {
	project, err := m.ResolveProject(projectRef)
	if err != nil {
		return 0, err
	}

	unlock := m.locks.Lock(project.ID)
	defer unlock()

	rows, err := m.store.ListWorktrees(registry.ListFilters{ProjectID: project.ID, ActiveOnly: true})
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, wt := range rows {
		if _, statErr := os.Stat(wt.Path); statErr != nil {
			continue
		}
		state, err := m.git.RefreshGitState(wt.Path, project.TrunkPath, project.DefaultBranch)
		if err != nil {
			logger.Logger.Warn().Err(err).Str("name", wt.Name).Msg("sync: refresh_git_state failed")
			continue
		}
		update := models.GitStateUpdate{
			HeadSHA: state.HeadSHA, LastCommitMessage: state.LastCommitMessage,
			AheadOfTrunk: state.AheadOfTrunk, BehindTrunk: state.BehindTrunk,
			UncommittedFilesCount: state.UncommittedFilesCount,
		}
		if err := m.store.UpdateWorktreeGitState(wt.ID, update); err != nil {
			logger.Logger.Warn().Err(err).Str("name", wt.Name).Msg("sync: update_worktree_git_state failed")
			continue
		}
		updated++
		m.emitter.Emit(models.EventWorktreeSynced, "", map[string]any{
			"worktree_id": wt.ID, "name": wt.Name, "head_sha": state.HeadSHA,
			"ahead": state.AheadOfTrunk, "behind": state.BehindTrunk, "dirty": state.UncommittedFilesCount,
		})
		m.logActivity(wt.OwnerID, wt.ID, models.ActivitySynced, "synced worktree "+wt.Name)
	}
	return updated, nil
}

// EnsureRetryable wraps fn with the bounded-retry policy described in
// §4.5.4 for Transient errors: three attempts with linear backoff.
func EnsureRetryable(fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if kind, ok := errs.KindOf(lastErr); !ok || kind != errs.Transient {
			return lastErr
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	return lastErr
}
