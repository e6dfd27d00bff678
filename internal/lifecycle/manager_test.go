package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-imi/imi/internal/config"
	"github.com/go-imi/imi/internal/errs"
	"github.com/go-imi/imi/internal/events"
	"github.com/go-imi/imi/internal/git"
	"github.com/go-imi/imi/internal/models"
	"github.com/go-imi/imi/internal/registry"
)

// fakeGit is an in-memory git.Operations stand-in: AddWorktree just creates
// the target directory on disk, which is all the Manager inspects (via
// os.Stat) besides the interface calls themselves.
type fakeGit struct {
	git.Operations

	addWorktreeErr    error
	removeWorktreeErr error
	worktreeExists    bool
	fetchPRRefErr     error
	refreshState      git.GitState

	mu               sync.Mutex
	live             map[string]bool
	removedPaths     []string
	addWorktreeCalls int
}

func (f *fakeGit) AddWorktree(repoPath, worktreePath, branch, fromRef string) error {
	f.mu.Lock()
	f.addWorktreeCalls++
	f.mu.Unlock()

	if f.addWorktreeErr != nil {
		return f.addWorktreeErr
	}
	if err := os.MkdirAll(worktreePath, 0o755); err != nil {
		return err
	}

	f.mu.Lock()
	if f.live == nil {
		f.live = map[string]bool{}
	}
	f.live[worktreePath] = true
	f.mu.Unlock()
	return nil
}

func (f *fakeGit) RemoveWorktree(repoPath, worktreePath string, force bool) error {
	f.mu.Lock()
	f.removedPaths = append(f.removedPaths, worktreePath)
	delete(f.live, worktreePath)
	f.mu.Unlock()

	if f.removeWorktreeErr != nil {
		return f.removeWorktreeErr
	}
	return os.RemoveAll(worktreePath)
}

func (f *fakeGit) WorktreeExists(repoPath, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.worktreeExists || f.live[path], nil
}

func (f *fakeGit) PruneWorktreeMetadata(repoPath string) error { return nil }

func (f *fakeGit) DeleteLocalBranch(repoPath, branch string, force bool) error { return nil }

func (f *fakeGit) DeleteRemoteBranch(repoPath, remote, branch string) error { return nil }

func (f *fakeGit) FetchPRRef(repoPath, remote string, prNumber int) (string, error) {
	if f.fetchPRRefErr != nil {
		return "", f.fetchPRRefErr
	}
	return "refs/imi/pr/42", nil
}

func (f *fakeGit) ListWorktrees(repoPath string) ([]git.WorktreeInfo, error) {
	var out []git.WorktreeInfo
	for path := range f.live {
		out = append(out, git.WorktreeInfo{Path: path})
	}
	return out, nil
}

func (f *fakeGit) RefreshGitState(worktreePath, trunkPath, trunkBranch string) (git.GitState, error) {
	return f.refreshState, nil
}

func (f *fakeGit) RewriteGitdirPointers(repoPath, oldCommonDir, newCommonDir string) error {
	return nil
}

type testEnv struct {
	store   *registry.Store
	git     *fakeGit
	manager *Manager
	hub     string
	project models.Project
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := registry.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := t.TempDir()
	trunkPath := filepath.Join(hub, "trunk-main")
	require.NoError(t, os.MkdirAll(trunkPath, 0o755))

	project, _, err := store.RegisterProject(models.ProjectSpec{
		Name: "acme", RemoteOrigin: "git@github.com:acme/acme.git",
		DefaultBranch: "main", TrunkPath: trunkPath,
	})
	require.NoError(t, err)

	fake := &fakeGit{}
	cfg := config.Default()
	emitter := events.NewEmitter(events.LogSink{}, "test")
	manager := NewManager(store, fake, cfg, emitter)

	return &testEnv{store: store, git: fake, manager: manager, hub: hub, project: project}
}

func TestCreateRegistersWorktreeAndAddsGitWorktree(t *testing.T) {
	env := newTestEnv(t)

	wt, err := env.manager.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, "widgets", wt.Name)
	assert.Equal(t, "feat/widgets", wt.BranchName)
	assert.Equal(t, filepath.Join(env.hub, "feat-widgets"), wt.Path)

	_, statErr := os.Stat(wt.Path)
	assert.NoError(t, statErr)

	got, err := env.store.GetWorktreeByProjectAndName(env.project.ID, "widgets")
	require.NoError(t, err)
	assert.Equal(t, wt.ID, got.ID)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	require.NoError(t, err)

	_, err = env.manager.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.NameInUse, kind)
}

// TestConcurrentCreateWithSameNameOnlyAddsWorktreeOnce uses two independent
// Managers (separate advisory locks, as two separate imi processes would
// have) sharing one registry store and one fake git driver, so the only
// thing preventing a double AddWorktree for the same name is the registry's
// (project_id, name) uniqueness constraint being checked before the git
// mutation runs, not after it.
func TestConcurrentCreateWithSameNameOnlyAddsWorktreeOnce(t *testing.T) {
	env := newTestEnv(t)
	mgrA := NewManager(env.store, env.git, config.Default(), events.NewEmitter(events.LogSink{}, "a"))
	mgrB := NewManager(env.store, env.git, config.Default(), events.NewEmitter(events.LogSink{}, "b"))

	var wg sync.WaitGroup
	errs2 := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs2[0] = mgrA.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	}()
	go func() {
		defer wg.Done()
		_, errs2[1] = mgrB.Create(context.Background(), env.project.ID, "feat", "widgets", "bob", nil)
	}()
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs2 {
		if err == nil {
			successes++
			continue
		}
		kind, ok := errs.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, errs.NameInUse, kind)
		conflicts++
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	env.git.mu.Lock()
	defer env.git.mu.Unlock()
	assert.Equal(t, 1, env.git.addWorktreeCalls)
}

func TestCreateRejectsSecondTrunk(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.Create(context.Background(), env.project.ID, "trunk", "other", "alice", nil)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.InvalidInput, kind)
}

func TestCreateRejectsInvalidName(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.Create(context.Background(), env.project.ID, "feat", "has/slash", "alice", nil)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.InvalidInput, kind)
}

func TestCreateRejectsPathThatAlreadyExistsOnDiskBeforeTouchingGit(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(env.hub, "feat-widgets"), 0o755))

	_, err := env.manager.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.PathExists, kind)
	assert.Equal(t, 0, env.git.addWorktreeCalls, "AddWorktree must never run once the path check fails")
}

func TestReviewFetchesPRRefAndCreatesWorktree(t *testing.T) {
	env := newTestEnv(t)

	wt, err := env.manager.Review(context.Background(), env.project.ID, 42, "alice")
	require.NoError(t, err)
	assert.Equal(t, "42", wt.Name)
	assert.Equal(t, filepath.Join(env.hub, "pr-42"), wt.Path)
	assert.Equal(t, 42, wt.Metadata["pr_number"])
}

func TestReviewSurfacesRefNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.git.fetchPRRefErr = assertErr{"no such PR"}

	_, err := env.manager.Review(context.Background(), env.project.ID, 99, "alice")
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.RefNotFound, kind)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestCloseIsIdempotentOnMissingWorktree(t *testing.T) {
	env := newTestEnv(t)
	err := env.manager.Close(context.Background(), env.project.ID, "does-not-exist")
	assert.NoError(t, err)
}

func TestCloseDeactivatesRowAndRemovesWorktree(t *testing.T) {
	env := newTestEnv(t)
	wt, err := env.manager.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	require.NoError(t, err)

	require.NoError(t, env.manager.Close(context.Background(), env.project.ID, "widgets"))

	_, err = env.store.GetWorktreeByProjectAndName(env.project.ID, "widgets")
	require.Error(t, err)
	kind, _ := errs.KindOf(err)
	assert.Equal(t, errs.NotFound, kind)

	assert.Contains(t, env.git.removedPaths, wt.Path)
}

func TestCreateAndCloseEachLogActivity(t *testing.T) {
	env := newTestEnv(t)
	wt, err := env.manager.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	require.NoError(t, err)

	require.NoError(t, env.manager.Close(context.Background(), env.project.ID, "widgets"))

	activities, err := env.store.ListActivitiesForWorktree(wt.ID, 0)
	require.NoError(t, err)
	require.Len(t, activities, 2)
	// Most recent first: close() logs after create().
	assert.Equal(t, models.ActivityOther, activities[0].Kind)
	assert.Equal(t, models.ActivityCreated, activities[1].Kind)
	assert.Equal(t, "alice", activities[1].OwnerID)
}

func TestMergeMarksMergedAndDeactivates(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	require.NoError(t, err)

	require.NoError(t, env.manager.Merge(context.Background(), env.project.ID, "widgets", "deadbeef", "bob"))

	rows, err := env.store.ListWorktrees(registry.ListFilters{ProjectID: env.project.ID, IncludeAll: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Active)
	assert.Equal(t, "deadbeef", rows[0].MergeCommitHash)
}

func TestMergeLogsMergedActivity(t *testing.T) {
	env := newTestEnv(t)
	wt, err := env.manager.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	require.NoError(t, err)
	require.NoError(t, env.manager.Merge(context.Background(), env.project.ID, "widgets", "deadbeef", "bob"))

	activities, err := env.store.ListActivitiesForWorktree(wt.ID, 0)
	require.NoError(t, err)
	require.Len(t, activities, 2)
	assert.Equal(t, models.ActivityMerged, activities[0].Kind)
}

func TestMergeRejectsAlreadyMergedOnSecondDestroy(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	require.NoError(t, err)
	require.NoError(t, env.manager.Merge(context.Background(), env.project.ID, "widgets", "deadbeef", "bob"))

	err = env.manager.Merge(context.Background(), env.project.ID, "widgets", "deadbeef2", "bob")
	require.Error(t, err)
}

func TestSyncUpdatesGitStateForEachActiveWorktree(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	require.NoError(t, err)

	env.git.refreshState = git.GitState{HeadSHA: "abc123", AheadOfTrunk: 1, UncommittedFilesCount: 2}
	updated, err := env.manager.Sync(context.Background(), env.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	got, err := env.store.GetWorktreeByProjectAndName(env.project.ID, "widgets")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.LastCommitHash)
	assert.Equal(t, 1, got.AheadOfTrunk)
	assert.True(t, got.HasUncommittedChanges)
}

func TestSyncLogsSyncedActivity(t *testing.T) {
	env := newTestEnv(t)
	wt, err := env.manager.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	require.NoError(t, err)

	env.git.refreshState = git.GitState{HeadSHA: "abc123"}
	_, err = env.manager.Sync(context.Background(), env.project.ID)
	require.NoError(t, err)

	activities, err := env.store.ListActivitiesForWorktree(wt.ID, 0)
	require.NoError(t, err)
	require.Len(t, activities, 2)
	assert.Equal(t, models.ActivitySynced, activities[0].Kind)
}

func TestPruneDeactivatesRowsWhoseDirectoryVanished(t *testing.T) {
	env := newTestEnv(t)
	wt, err := env.manager.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(wt.Path)) // simulate manual deletion outside iMi

	report, err := env.manager.Prune(context.Background(), env.project.ID, false, false)
	require.NoError(t, err)
	assert.Contains(t, report.DeactivatedRows, "widgets")

	_, err = env.store.GetWorktreeByProjectAndName(env.project.ID, "widgets")
	require.Error(t, err)
}

func TestPruneLeavesHealthyWorktreesAlone(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	require.NoError(t, err)

	report, err := env.manager.Prune(context.Background(), env.project.ID, false, false)
	require.NoError(t, err)
	assert.Empty(t, report.DeactivatedRows)

	got, err := env.store.GetWorktreeByProjectAndName(env.project.ID, "widgets")
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestPruneRemovesActivitiesOlderThanRetention(t *testing.T) {
	env := newTestEnv(t)
	wt, err := env.manager.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	require.NoError(t, err)

	stale := models.Activity{
		OwnerID: "alice", WorktreeID: wt.ID, Kind: models.ActivityOther,
		Description: "ancient", CreatedAt: time.Now().AddDate(0, 0, -365),
	}
	require.NoError(t, env.store.LogActivity(stale))

	report, err := env.manager.Prune(context.Background(), env.project.ID, false, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.ActivitiesPruned)

	activities, err := env.store.ListActivitiesForWorktree(wt.ID, 0)
	require.NoError(t, err)
	for _, a := range activities {
		assert.NotEqual(t, "ancient", a.Description)
	}
}

func TestPruneDryRunReportsWithoutMutating(t *testing.T) {
	env := newTestEnv(t)
	wt, err := env.manager.Create(context.Background(), env.project.ID, "feat", "widgets", "alice", nil)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(wt.Path))

	report, err := env.manager.Prune(context.Background(), env.project.ID, true, false)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Contains(t, report.DeactivatedRows, "widgets")

	got, err := env.store.GetWorktreeByProjectAndName(env.project.ID, "widgets")
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestResolveProjectByNameOrID(t *testing.T) {
	env := newTestEnv(t)
	byName, err := env.manager.ResolveProject("acme")
	require.NoError(t, err)
	assert.Equal(t, env.project.ID, byName.ID)

	byID, err := env.manager.ResolveProject(env.project.ID)
	require.NoError(t, err)
	assert.Equal(t, env.project.ID, byID.ID)

	_, err = env.manager.ResolveProject("")
	require.Error(t, err)
}

func TestEnsureRetryableRetriesOnlyTransientErrors(t *testing.T) {
	attempts := 0
	err := EnsureRetryable(func() error {
		attempts++
		if attempts < 3 {
			return errs.New(errs.Transient, errs.PlaneGit, "locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestEnsureRetryableStopsImmediatelyOnNonTransient(t *testing.T) {
	attempts := 0
	err := EnsureRetryable(func() error {
		attempts++
		return errs.New(errs.InvalidInput, errs.PlaneInput, "bad")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
