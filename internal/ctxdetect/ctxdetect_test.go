package ctxdetect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-imi/imi/internal/errs"
	"github.com/go-imi/imi/internal/fsys"
	"github.com/go-imi/imi/internal/git"
	"github.com/go-imi/imi/internal/models"
	"github.com/go-imi/imi/internal/registry"
)

// fakeOps is a minimal git.Operations stand-in: FindRepository walks up to
// the nearest directory containing a ".git" marker file/dir on disk (so
// tests can use plain temp directories without a real repository), and
// RemoteOrigin/DefaultBranch are driven by fields set per test.
type fakeOps struct {
	git.Operations
	origin        string
	originErr     error
	defaultBranch string
}

func (f *fakeOps) FindRepository(startPath string) (string, error) {
	dir := startPath
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errs.New(errs.NotFound, errs.PlaneGit, "not a git repository")
		}
		dir = parent
	}
}

func (f *fakeOps) RemoteOrigin(repoPath string) (string, error) {
	if f.originErr != nil {
		return "", f.originErr
	}
	return f.origin, nil
}

func (f *fakeOps) DefaultBranch(repoPath string) (string, error) {
	return f.defaultBranch, nil
}

func openTestStore(t *testing.T) *registry.Store {
	t.Helper()
	store, err := registry.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func markGitRepo(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
}

func TestDetectOutsideAnyRepo(t *testing.T) {
	store := openTestStore(t)
	ops := &fakeOps{originErr: errs.New(errs.NotFound, "git", "no remote")}

	ctx, err := Detect(t.TempDir(), ops, store)
	require.NoError(t, err)
	assert.Equal(t, OutsideAnyRepo, ctx.Classification)
}

func TestDetectInsideUnregisteredUnrecognizedBasename(t *testing.T) {
	store := openTestStore(t)
	ops := &fakeOps{}

	dir := filepath.Join(t.TempDir(), "random-checkout")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	markGitRepo(t, dir)

	ctx, err := Detect(dir, ops, store)
	require.NoError(t, err)
	assert.Equal(t, InsideUnregistered, ctx.Classification)
	assert.Equal(t, dir, ctx.RepoRoot)
}

func TestDetectInsideRegisteredViaManifest(t *testing.T) {
	store := openTestStore(t)
	trunkType, err := store.GetWorktreeTypeByName("trunk")
	require.NoError(t, err)

	hub := t.TempDir()
	trunkPath := filepath.Join(hub, "trunk-main")
	markGitRepo(t, trunkPath)

	project, _, err := store.RegisterProject(models.ProjectSpec{
		Name: "acme", RemoteOrigin: "git@github.com:acme/acme.git",
		DefaultBranch: "main", TrunkPath: trunkPath,
	})
	require.NoError(t, err)
	_, err = store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: project.ID, TypeID: trunkType.ID, Name: "main",
		BranchName: "main", Path: trunkPath,
	})
	require.NoError(t, err)
	require.NoError(t, fsys.EnsureHub(hub, fsys.ProjectManifest{
		ProjectID: project.ID, Name: project.Name, RemoteOrigin: project.RemoteOrigin,
		DefaultBranch: project.DefaultBranch, TrunkPath: project.TrunkPath,
	}))

	ops := &fakeOps{}
	ctx, err := Detect(trunkPath, ops, store)
	require.NoError(t, err)
	require.Equal(t, InsideRegistered, ctx.Classification)
	assert.Equal(t, project.ID, ctx.Project.ID)
	assert.Equal(t, RoleTrunk, ctx.Role)
	require.NotNil(t, ctx.Worktree)
	assert.Equal(t, "main", ctx.Worktree.Name)
}

func TestDetectFallsBackToRemoteOriginWhenManifestMissing(t *testing.T) {
	store := openTestStore(t)
	featType, err := store.GetWorktreeTypeByName("feat")
	require.NoError(t, err)

	hub := t.TempDir()
	trunkPath := filepath.Join(hub, "trunk-main")
	worktreePath := filepath.Join(hub, "feat-widgets")
	markGitRepo(t, worktreePath)

	project, _, err := store.RegisterProject(models.ProjectSpec{
		Name: "acme", RemoteOrigin: "git@github.com:acme/acme.git",
		DefaultBranch: "main", TrunkPath: trunkPath,
	})
	require.NoError(t, err)
	_, err = store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: project.ID, TypeID: featType.ID, Name: "widgets",
		BranchName: "feat/widgets", Path: worktreePath,
	})
	require.NoError(t, err)
	// No .iMi/project.json written: forces the remote-origin fallback path.

	ops := &fakeOps{origin: project.RemoteOrigin}
	ctx, err := Detect(worktreePath, ops, store)
	require.NoError(t, err)
	require.Equal(t, InsideRegistered, ctx.Classification)
	assert.Equal(t, project.ID, ctx.Project.ID)
	require.NotNil(t, ctx.Worktree)
	assert.Equal(t, "widgets", ctx.Worktree.Name)
}

func TestDetectFallsBackToHubPathWhenOriginless(t *testing.T) {
	store := openTestStore(t)
	featType, err := store.GetWorktreeTypeByName("feat")
	require.NoError(t, err)

	hub := t.TempDir()
	trunkPath := filepath.Join(hub, "trunk-main")
	worktreePath := filepath.Join(hub, "feat-widgets")
	markGitRepo(t, worktreePath)

	project, _, err := store.RegisterProject(models.ProjectSpec{
		Name: "acme", RemoteOrigin: "local:some-uuid",
		DefaultBranch: "main", TrunkPath: trunkPath,
	})
	require.NoError(t, err)
	_, err = store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: project.ID, TypeID: featType.ID, Name: "widgets",
		BranchName: "feat/widgets", Path: worktreePath,
	})
	require.NoError(t, err)

	ops := &fakeOps{originErr: errs.New(errs.NotFound, "git", "no origin remote")}
	ctx, err := Detect(worktreePath, ops, store)
	require.NoError(t, err)
	require.Equal(t, InsideRegistered, ctx.Classification)
	assert.Equal(t, project.ID, ctx.Project.ID)
}

func TestDetectUnrecognizedBasenameStillResolvesToRoleOther(t *testing.T) {
	store := openTestStore(t)
	featType, err := store.GetWorktreeTypeByName("feat")
	require.NoError(t, err)

	hub := t.TempDir()
	trunkPath := filepath.Join(hub, "trunk-main")
	// A basename matching neither the trunk prefix nor any known worktree
	// prefix, as if the directory were renamed by hand after creation.
	worktreePath := filepath.Join(hub, "my-renamed-checkout")
	markGitRepo(t, worktreePath)

	project, _, err := store.RegisterProject(models.ProjectSpec{
		Name: "acme", RemoteOrigin: "git@github.com:acme/acme.git",
		DefaultBranch: "main", TrunkPath: trunkPath,
	})
	require.NoError(t, err)
	wt, err := store.RegisterWorktree(models.WorktreeSpec{
		ProjectID: project.ID, TypeID: featType.ID, Name: "widgets",
		BranchName: "feat/widgets", Path: worktreePath,
	})
	require.NoError(t, err)
	// No .iMi/project.json written: forces the remote-origin fallback path.

	ops := &fakeOps{origin: project.RemoteOrigin}
	ctx, err := Detect(worktreePath, ops, store)
	require.NoError(t, err)
	require.Equal(t, InsideRegistered, ctx.Classification)
	assert.Equal(t, project.ID, ctx.Project.ID)
	assert.Equal(t, RoleOther, ctx.Role)
	require.NotNil(t, ctx.Worktree)
	assert.Equal(t, wt.ID, ctx.Worktree.ID)
	assert.Equal(t, featType.ID, ctx.WorktreeType.ID)
}
