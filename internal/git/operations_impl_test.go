package git

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	billyutil "github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"
)

// newMemOperations builds an OperationsImpl whose admin-file rewrites run
// against an in-memory filesystem, so these tests never touch disk.
func newMemOperations() *OperationsImpl {
	return NewOperationsWithExecutorAndFS(nil, memfs.New()).(*OperationsImpl)
}

func TestRewriteGitdirPointersUpdatesMatchingEntries(t *testing.T) {
	ops := newMemOperations()

	require.NoError(t, billyutil.WriteFile(ops.fs, "/new/hub/worktrees/feature-a/gitdir", []byte("/old/hub/worktrees/feature-a/.git\n"), 0o644))
	require.NoError(t, billyutil.WriteFile(ops.fs, "/new/hub/worktrees/feature-a/commondir", []byte("../..\n"), 0o644))

	err := ops.RewriteGitdirPointers("/repo", "/old/hub", "/new/hub")
	require.NoError(t, err)

	gitdir, err := billyutil.ReadFile(ops.fs, "/new/hub/worktrees/feature-a/gitdir")
	require.NoError(t, err)
	require.Equal(t, "/new/hub/worktrees/feature-a/.git\n", string(gitdir))
}

func TestRewriteGitdirPointersNoAdminDirIsNotAnError(t *testing.T) {
	ops := newMemOperations()

	err := ops.RewriteGitdirPointers("/repo", "/old/hub", "/new/hub")
	require.NoError(t, err)
}

func TestRewriteGitdirPointersSkipsEntriesPointingElsewhere(t *testing.T) {
	ops := newMemOperations()

	require.NoError(t, billyutil.WriteFile(ops.fs, "/new/hub/worktrees/untouched/gitdir", []byte("/somewhere/else/.git\n"), 0o644))

	require.NoError(t, ops.RewriteGitdirPointers("/repo", "/old/hub", "/new/hub"))

	gitdir, err := billyutil.ReadFile(ops.fs, "/new/hub/worktrees/untouched/gitdir")
	require.NoError(t, err)
	require.Equal(t, "/somewhere/else/.git\n", string(gitdir))
}
