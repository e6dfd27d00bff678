package git

// WorktreeInfo is one row of `git worktree list --porcelain` output.
type WorktreeInfo struct {
	Path   string
	Branch string
	Commit string
	Bare   bool
}

// GitState is the snapshot returned by RefreshGitState, feeding directly
// into models.GitStateUpdate.
type GitState struct {
	HeadSHA               string
	LastCommitMessage     string
	AheadOfTrunk          int
	BehindTrunk           int
	UncommittedFilesCount int
}

// Operations is the Git Worktree Driver's interface, scoped to exactly the
// operations the Worktree Lifecycle Manager needs: find_repository,
// list_worktrees, add_worktree, remove_worktree, prune_worktree_metadata,
// worktree_exists, head_sha, current_branch, ahead_behind, dirty_count,
// rewrite_gitdir_pointers, delete_local_branch, delete_remote_branch,
// fetch_pr_ref.
type Operations interface {
	// FindRepository walks up from startPath looking for a .git entry and
	// returns the repository root (find_repository).
	FindRepository(startPath string) (string, error)

	// AddWorktree creates a new worktree at worktreePath checked out to
	// branch, creating the branch from fromRef if it does not yet exist
	// (add_worktree).
	AddWorktree(repoPath, worktreePath, branch, fromRef string) error

	// RemoveWorktree removes the admin-directory entry and working tree for
	// worktreePath (remove_worktree).
	RemoveWorktree(repoPath, worktreePath string, force bool) error

	// ListWorktrees returns every worktree known to repoPath's admin
	// directory (list_worktrees).
	ListWorktrees(repoPath string) ([]WorktreeInfo, error)

	// PruneWorktreeMetadata removes admin-directory entries for worktrees
	// whose working directory has vanished on disk (prune_worktree_metadata).
	PruneWorktreeMetadata(repoPath string) error

	// WorktreeExists reports whether path is currently a registered worktree
	// of repoPath (worktree_exists).
	WorktreeExists(repoPath, path string) (bool, error)

	// HeadSHA returns the current commit hash at worktreePath (head_sha).
	HeadSHA(worktreePath string) (string, error)

	// CurrentBranch returns the checked-out branch name at worktreePath
	// (current_branch).
	CurrentBranch(worktreePath string) (string, error)

	// AheadBehind returns commits reachable from headRef but not baseRef,
	// and vice versa (ahead_behind).
	AheadBehind(repoPath, baseRef, headRef string) (ahead, behind int, err error)

	// DirtyCount returns the number of entries reported by status
	// (dirty_count).
	DirtyCount(worktreePath string) (int, error)

	// RefreshGitState gathers head_sha/ahead_behind/dirty_count in one call
	// for sync().
	RefreshGitState(worktreePath, trunkPath, trunkBranch string) (GitState, error)

	// RewriteGitdirPointers rewrites the gitdir/commondir admin files for
	// every worktree after the common git directory moves (repair()'s
	// rewrite_gitdir_pointers).
	RewriteGitdirPointers(repoPath, oldCommonDir, newCommonDir string) error

	// RewriteWorktreeGitFile rewrites one worktree's own `.git` file to point
	// at newGitdir. Manager.Repair does not call it.
	RewriteWorktreeGitFile(worktreePath, newGitdir string) error

	// DeleteLocalBranch removes a local branch ref (delete_local_branch).
	DeleteLocalBranch(repoPath, branch string, force bool) error

	// DeleteRemoteBranch deletes a branch on remote. Best-effort:
	// delete_remote_branch failures never abort a close()/remove().
	DeleteRemoteBranch(repoPath, remote, branch string) error

	// FetchPRRef fetches refs/pull/<n>/head into a non-default local ref
	// without touching trunk HEAD (fetch_pr_ref, backing the review command).
	FetchPRRef(repoPath, remote string, prNumber int) (string, error)

	// DefaultBranch resolves the remote's HEAD symbolic ref, used when a
	// project is registered without an explicit default branch.
	DefaultBranch(repoPath string) (string, error)

	// RemoteOrigin returns the URL of the "origin" remote as `git remote
	// get-url origin` prints it, trimmed but not normalized to a canonical
	// form, or an error carrying no errs.Kind if it cannot be read (including
	// when the repository has no origin). Used to derive a project's
	// remote_origin identity during init and the Context Detector's fallback
	// resolution path.
	RemoteOrigin(repoPath string) (string, error)

	// IsGitRepository reports whether path is (inside) a git repository.
	IsGitRepository(path string) bool
}
