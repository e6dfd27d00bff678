package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-imi/imi/internal/errs"
	"github.com/go-imi/imi/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMigrateSeedsBuiltinWorktreeTypes(t *testing.T) {
	store := openTestStore(t)

	types, err := store.ListWorktreeTypes()
	require.NoError(t, err)
	require.Len(t, types, len(models.BuiltinWorktreeTypes))

	trunk, err := store.GetWorktreeTypeByName("trunk")
	require.NoError(t, err)
	assert.True(t, trunk.IsTrunk())
	assert.Empty(t, trunk.BranchPrefix)

	feat, err := store.GetWorktreeTypeByName("feat")
	require.NoError(t, err)
	assert.Equal(t, "feat/", feat.BranchPrefix)
	assert.Equal(t, "feat-", feat.WorktreePrefix)
}

func TestGetWorktreeTypeByNameUnknown(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetWorktreeTypeByName("nonexistent")
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.InvalidInput, kind)
}

func TestRegisterProjectThenLookupByIDNameAndOrigin(t *testing.T) {
	store := openTestStore(t)

	spec := models.ProjectSpec{
		Name: "acme", RemoteOrigin: "git@github.com:acme/acme.git",
		DefaultBranch: "main", TrunkPath: "/home/dev/acme/trunk-main",
	}
	created, isNew, err := store.RegisterProject(spec)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Active)

	byID, err := store.GetProjectByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, byID.Name)

	byName, err := store.GetProjectByName("acme")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	byOrigin, err := store.GetProjectByOrigin(spec.RemoteOrigin)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byOrigin.ID)
}

func TestRegisterProjectReactivatesInactiveRow(t *testing.T) {
	store := openTestStore(t)
	spec := models.ProjectSpec{
		Name: "acme", RemoteOrigin: "git@github.com:acme/acme.git",
		DefaultBranch: "main", TrunkPath: "/home/dev/acme/trunk-main",
	}
	first, _, err := store.RegisterProject(spec)
	require.NoError(t, err)
	require.NoError(t, store.DeactivateProject(first.ID))

	spec.Name = "acme-renamed"
	second, isNew, err := store.RegisterProject(spec)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Active)
	assert.Equal(t, "acme-renamed", second.Name)
}

func TestGetProjectByIDNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetProjectByID("missing")
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.NotFound, kind)
}

func TestDeactivateProjectTwiceFailsSecondTime(t *testing.T) {
	store := openTestStore(t)
	created, _, err := store.RegisterProject(models.ProjectSpec{
		Name: "acme", RemoteOrigin: "origin-1", DefaultBranch: "main", TrunkPath: "/x/trunk-main",
	})
	require.NoError(t, err)

	require.NoError(t, store.DeactivateProject(created.ID))
	err = store.DeactivateProject(created.ID)
	require.Error(t, err)
	kind, _ := errs.KindOf(err)
	assert.Equal(t, errs.NotFound, kind)
}

func TestDeactivateProjectCascadesToWorktrees(t *testing.T) {
	store := openTestStore(t)
	project := registerTestProject(t, store, "origin-cascade")
	featType, err := store.GetWorktreeTypeByName("feat")
	require.NoError(t, err)

	wt, err := store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: project.ID, TypeID: featType.ID, Name: "widgets",
		BranchName: "feat/widgets", Path: "/x/feat-widgets",
	})
	require.NoError(t, err)

	require.NoError(t, store.DeactivateProject(project.ID))

	_, err = store.GetWorktreeByProjectAndName(project.ID, "widgets")
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.NotFound, kind)

	all, err := store.ListWorktrees(ListFilters{ProjectID: project.ID, IncludeAll: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)
	assert.Equal(t, wt.ID, all[0].ID)
}

func registerTestProject(t *testing.T, store *Store, origin string) models.Project {
	t.Helper()
	p, _, err := store.RegisterProject(models.ProjectSpec{
		Name: "acme", RemoteOrigin: origin, DefaultBranch: "main", TrunkPath: "/x/trunk-main",
	})
	require.NoError(t, err)
	return p
}

func TestRegisterWorktreeAndLookups(t *testing.T) {
	store := openTestStore(t)
	project := registerTestProject(t, store, "origin-wt")
	featType, err := store.GetWorktreeTypeByName("feat")
	require.NoError(t, err)

	wt, err := store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: project.ID, TypeID: featType.ID, Name: "widgets",
		BranchName: "feat/widgets", Path: "/x/feat-widgets",
	})
	require.NoError(t, err)
	assert.True(t, wt.Active)

	byPath, err := store.GetWorktreeByPath("/x/feat-widgets")
	require.NoError(t, err)
	assert.Equal(t, wt.ID, byPath.ID)

	byName, err := store.GetWorktreeByProjectAndName(project.ID, "widgets")
	require.NoError(t, err)
	assert.Equal(t, wt.ID, byName.ID)

	all, err := store.ListWorktrees(ListFilters{ProjectID: project.ID, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestRegisterWorktreeDuplicateNameIsNameInUse(t *testing.T) {
	store := openTestStore(t)
	project := registerTestProject(t, store, "origin-dup-name")
	featType, err := store.GetWorktreeTypeByName("feat")
	require.NoError(t, err)

	_, err = store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: project.ID, TypeID: featType.ID, Name: "widgets",
		BranchName: "feat/widgets", Path: "/x/feat-widgets",
	})
	require.NoError(t, err)

	_, err = store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: project.ID, TypeID: featType.ID, Name: "widgets",
		BranchName: "feat/widgets-2", Path: "/x/feat-widgets-2",
	})
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.NameInUse, kind)
}

func TestRegisterWorktreeDuplicatePathIsPathExists(t *testing.T) {
	store := openTestStore(t)
	project := registerTestProject(t, store, "origin-dup-path")
	featType, err := store.GetWorktreeTypeByName("feat")
	require.NoError(t, err)

	_, err = store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: project.ID, TypeID: featType.ID, Name: "widgets",
		BranchName: "feat/widgets", Path: "/x/feat-widgets",
	})
	require.NoError(t, err)

	_, err = store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: project.ID, TypeID: featType.ID, Name: "other-name",
		BranchName: "feat/other", Path: "/x/feat-widgets",
	})
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.PathExists, kind)
}

func TestUpdateWorktreeGitStateKeepsUncommittedFlagConsistent(t *testing.T) {
	store := openTestStore(t)
	project := registerTestProject(t, store, "origin-sync")
	featType, err := store.GetWorktreeTypeByName("feat")
	require.NoError(t, err)
	wt, err := store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: project.ID, TypeID: featType.ID, Name: "widgets",
		BranchName: "feat/widgets", Path: "/x/feat-widgets",
	})
	require.NoError(t, err)

	require.NoError(t, store.UpdateWorktreeGitState(wt.ID, models.GitStateUpdate{
		HeadSHA: "abc123", AheadOfTrunk: 2, BehindTrunk: 0, UncommittedFilesCount: 3,
	}))

	got, err := store.GetWorktreeByProjectAndName(project.ID, "widgets")
	require.NoError(t, err)
	assert.True(t, got.HasUncommittedChanges)
	assert.Equal(t, 3, got.UncommittedFilesCount)
	assert.Equal(t, models.StatusUncommitted, got.Status())
}

func TestMarkWorktreeMergedThenDeactivate(t *testing.T) {
	store := openTestStore(t)
	project := registerTestProject(t, store, "origin-merge")
	featType, err := store.GetWorktreeTypeByName("feat")
	require.NoError(t, err)
	wt, err := store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: project.ID, TypeID: featType.ID, Name: "widgets",
		BranchName: "feat/widgets", Path: "/x/feat-widgets",
	})
	require.NoError(t, err)

	require.NoError(t, store.MarkWorktreeMerged(wt.ID, "deadbeef", "alice"))
	require.NoError(t, store.DeactivateWorktree(wt.ID))

	all, err := store.ListWorktrees(ListFilters{ProjectID: project.ID, IncludeAll: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)
	assert.Equal(t, models.Status(models.CompletionMerged), all[0].Status())
}

func TestLogActivityThenListForWorktree(t *testing.T) {
	store := openTestStore(t)
	project := registerTestProject(t, store, "origin-activity")
	featType, err := store.GetWorktreeTypeByName("feat")
	require.NoError(t, err)
	wt, err := store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: project.ID, TypeID: featType.ID, Name: "widgets",
		BranchName: "feat/widgets", Path: "/x/feat-widgets",
	})
	require.NoError(t, err)

	require.NoError(t, store.LogActivity(models.Activity{
		OwnerID: "alice", WorktreeID: wt.ID, Kind: models.ActivityCreated, Description: "created widgets",
	}))

	activities, err := store.ListActivitiesForWorktree(wt.ID, 0)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, models.ActivityCreated, activities[0].Kind)
	assert.Equal(t, "alice", activities[0].OwnerID)
}

func TestPruneActivitiesDeletesOnlyRowsOlderThanCutoff(t *testing.T) {
	store := openTestStore(t)
	project := registerTestProject(t, store, "origin-prune-activity")
	featType, err := store.GetWorktreeTypeByName("feat")
	require.NoError(t, err)
	wt, err := store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: project.ID, TypeID: featType.ID, Name: "widgets",
		BranchName: "feat/widgets", Path: "/x/feat-widgets",
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, store.LogActivity(models.Activity{
		WorktreeID: wt.ID, Kind: models.ActivityOther, Description: "recent", CreatedAt: now,
	}))
	require.NoError(t, store.LogActivity(models.Activity{
		WorktreeID: wt.ID, Kind: models.ActivityOther, Description: "stale", CreatedAt: now.AddDate(-1, 0, 0),
	}))

	n, err := store.PruneActivities(now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	remaining, err := store.ListActivitiesForWorktree(wt.ID, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "recent", remaining[0].Description)
}

func TestStatsCountsScopedToProject(t *testing.T) {
	store := openTestStore(t)
	project := registerTestProject(t, store, "origin-stats")
	featType, err := store.GetWorktreeTypeByName("feat")
	require.NoError(t, err)
	wt, err := store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: project.ID, TypeID: featType.ID, Name: "widgets",
		BranchName: "feat/widgets", Path: "/x/feat-widgets",
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateWorktreeGitState(wt.ID, models.GitStateUpdate{UncommittedFilesCount: 1}))
	require.NoError(t, store.LogActivity(models.Activity{WorktreeID: wt.ID, Kind: models.ActivityCreated}))

	other := registerTestProject(t, store, "origin-stats-other")
	_, err = store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: other.ID, TypeID: featType.ID, Name: "other-wt",
		BranchName: "feat/other", Path: "/y/feat-other",
	})
	require.NoError(t, err)

	scoped, err := store.Stats(project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, scoped.ProjectCount)
	assert.Equal(t, 1, scoped.ActiveWorktreeCount)
	assert.Equal(t, 1, scoped.DirtyWorktreeCount)
	assert.Equal(t, 1, scoped.ActivityCount)

	global, err := store.Stats("")
	require.NoError(t, err)
	assert.Equal(t, 2, global.ProjectCount)
	assert.Equal(t, 2, global.ActiveWorktreeCount)
}
