package git

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	billyutil "github.com/go-git/go-billy/v5/util"

	"github.com/go-imi/imi/internal/git/executor"
	"github.com/go-imi/imi/internal/logger"
)

// OperationsImpl implements Operations, composing the focused helper types
// (branch, fetch, status) over a single command executor.
type OperationsImpl struct {
	executor      executor.CommandExecutor
	branchOps     *BranchOperations
	fetchExecutor *FetchExecutor
	statusChecker *StatusChecker
	// fs backs the plain admin-file rewrites (RewriteGitdirPointers,
	// RewriteWorktreeGitFile) that repair() drives; real runs use osfs
	// rooted at "/", tests swap in memfs to avoid touching disk.
	fs billy.Filesystem
}

// NewOperations creates an Operations implementation backed by go-git where
// possible, falling back to the shell git binary for worktree admin-directory
// manipulation that go-git does not support.
func NewOperations() Operations {
	exec := executor.NewGitExecutor()
	return NewOperationsWithExecutor(exec)
}

// NewOperationsWithExecutor builds Operations around an arbitrary executor,
// used in tests to swap in a recording or in-memory implementation.
func NewOperationsWithExecutor(exec executor.CommandExecutor) Operations {
	return NewOperationsWithExecutorAndFS(exec, osfs.New("/"))
}

// NewOperationsWithExecutorAndFS additionally swaps the filesystem backing
// the admin-file rewrites, used in tests to exercise RewriteGitdirPointers/
// RewriteWorktreeGitFile against an in-memory filesystem instead of disk.
func NewOperationsWithExecutorAndFS(exec executor.CommandExecutor, fs billy.Filesystem) Operations {
	return &OperationsImpl{
		executor:      exec,
		branchOps:     NewBranchOperations(exec),
		fetchExecutor: NewFetchExecutor(exec),
		statusChecker: NewStatusChecker(exec),
		fs:            fs,
	}
}

func (o *OperationsImpl) executeGit(workingDir string, args ...string) ([]byte, error) {
	return o.executor.ExecuteGitWithWorkingDir(workingDir, args...)
}

// FindRepository implements find_repository by walking up from startPath.
func (o *OperationsImpl) FindRepository(startPath string) (string, error) {
	root, found := FindGitRoot(startPath)
	if !found {
		return "", fmt.Errorf("not a git repository: %s", startPath)
	}
	return root, nil
}

// AddWorktree implements add_worktree. go-git's porcelain has no worktree
// support, so this shells out like the rest of the admin-directory surface.
func (o *OperationsImpl) AddWorktree(repoPath, worktreePath, branch, fromRef string) error {
	var args []string
	if o.branchOps.BranchExistsLocal(repoPath, branch) {
		args = []string{"worktree", "add", worktreePath, branch}
	} else {
		args = []string{"worktree", "add", "-b", branch, worktreePath}
		if fromRef != "" {
			args = append(args, fromRef)
		}
	}

	_, err := o.executeGit(repoPath, args...)
	if err != nil && strings.Contains(err.Error(), "missing but already registered worktree") {
		logger.Logger.Warn().Str("path", worktreePath).Msg("worktree registration conflict, pruning and retrying")
		if pruneErr := o.PruneWorktreeMetadata(repoPath); pruneErr != nil {
			return fmt.Errorf("add worktree: %w (prune also failed: %v)", err, pruneErr)
		}
		_, err = o.executeGit(repoPath, args...)
	}
	if err != nil {
		return fmt.Errorf("add worktree: %w", err)
	}
	return nil
}

// RemoveWorktree implements remove_worktree.
func (o *OperationsImpl) RemoveWorktree(repoPath, worktreePath string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, worktreePath)
	_, err := o.executeGit(repoPath, args...)
	return err
}

// ListWorktrees implements list_worktrees by parsing porcelain output.
func (o *OperationsImpl) ListWorktrees(repoPath string) ([]WorktreeInfo, error) {
	output, err := o.executeGit(repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	var worktrees []WorktreeInfo
	var current WorktreeInfo
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "worktree "):
			if current.Path != "" {
				worktrees = append(worktrees, current)
			}
			current = WorktreeInfo{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "HEAD "):
			current.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case line == "bare":
			current.Bare = true
		}
	}
	if current.Path != "" {
		worktrees = append(worktrees, current)
	}
	return worktrees, nil
}

// PruneWorktreeMetadata implements prune_worktree_metadata.
func (o *OperationsImpl) PruneWorktreeMetadata(repoPath string) error {
	_, err := o.executeGit(repoPath, "worktree", "prune")
	return err
}

// WorktreeExists implements worktree_exists.
func (o *OperationsImpl) WorktreeExists(repoPath, path string) (bool, error) {
	worktrees, err := o.ListWorktrees(repoPath)
	if err != nil {
		return false, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	for _, wt := range worktrees {
		if wt.Path == path || wt.Path == abs {
			return true, nil
		}
	}
	return false, nil
}

// HeadSHA implements head_sha.
func (o *OperationsImpl) HeadSHA(worktreePath string) (string, error) {
	output, err := o.executeGit(worktreePath, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// CurrentBranch implements current_branch.
func (o *OperationsImpl) CurrentBranch(worktreePath string) (string, error) {
	output, err := o.executeGit(worktreePath, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// AheadBehind implements ahead_behind.
func (o *OperationsImpl) AheadBehind(repoPath, baseRef, headRef string) (int, int, error) {
	return o.branchOps.AheadBehind(repoPath, baseRef, headRef)
}

// DirtyCount implements dirty_count.
func (o *OperationsImpl) DirtyCount(worktreePath string) (int, error) {
	return o.statusChecker.DirtyCount(worktreePath)
}

// RefreshGitState bundles head_sha, the last commit subject, ahead_behind,
// and dirty_count into the single snapshot sync() needs per worktree.
func (o *OperationsImpl) RefreshGitState(worktreePath, trunkPath, trunkBranch string) (GitState, error) {
	head, err := o.HeadSHA(worktreePath)
	if err != nil {
		return GitState{}, fmt.Errorf("head_sha: %w", err)
	}

	msgOutput, err := o.executeGit(worktreePath, "log", "-1", "--format=%s")
	if err != nil {
		return GitState{}, fmt.Errorf("last commit message: %w", err)
	}

	ahead, behind, err := o.AheadBehind(worktreePath, trunkBranch, "HEAD")
	if err != nil {
		// trunk branch may not be fetched into this worktree's view; non-fatal.
		logger.Logger.Debug().Err(err).Str("worktree", worktreePath).Msg("ahead_behind unavailable")
		ahead, behind = 0, 0
	}

	dirty, err := o.DirtyCount(worktreePath)
	if err != nil {
		return GitState{}, fmt.Errorf("dirty_count: %w", err)
	}

	return GitState{
		HeadSHA:               head,
		LastCommitMessage:     strings.TrimSpace(string(msgOutput)),
		AheadOfTrunk:          ahead,
		BehindTrunk:           behind,
		UncommittedFilesCount: dirty,
	}, nil
}

// RewriteGitdirPointers implements rewrite_gitdir_pointers for repair(): for
// each admin entry under `<newCommonDir>/worktrees/` whose `gitdir` file
// starts with oldCommonDir, it rewrites that `gitdir` file and, when present,
// its `commondir` file. The worktrees' own `.git` files are not touched here.
// Writes are atomic (temp file + rename) to avoid leaving a worktree with a
// half-written pointer if the process dies mid-repair.
func (o *OperationsImpl) RewriteGitdirPointers(repoPath, oldCommonDir, newCommonDir string) error {
	adminDir := filepath.Join(newCommonDir, "worktrees")
	entries, err := o.fs.ReadDir(adminDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read worktree admin dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		gitdirFile := filepath.Join(adminDir, entry.Name(), "gitdir")
		content, err := billyutil.ReadFile(o.fs, gitdirFile)
		if err != nil {
			continue
		}
		worktreeGitPath := strings.TrimSpace(string(content))
		if !strings.HasPrefix(worktreeGitPath, oldCommonDir) {
			continue
		}
		rewritten := newCommonDir + strings.TrimPrefix(worktreeGitPath, oldCommonDir)
		if err := o.atomicWriteFile(gitdirFile, []byte(rewritten+"\n")); err != nil {
			return fmt.Errorf("rewrite gitdir for %s: %w", entry.Name(), err)
		}

		commondirFile := filepath.Join(adminDir, entry.Name(), "commondir")
		if _, err := o.fs.Stat(commondirFile); err == nil {
			if err := o.atomicWriteFile(commondirFile, []byte(relCommonDir(adminDir, entry.Name(), newCommonDir)+"\n")); err != nil {
				return fmt.Errorf("rewrite commondir for %s: %w", entry.Name(), err)
			}
		}

		// The admin dir only tracks the worktree's common-dir path, not its
		// working directory, so the worktree-side .git file (which points the
		// other way) is not derived here. RewriteWorktreeGitFile rewrites one
		// such file given the worktree's path; Manager.Repair does not call it.
	}
	return nil
}

func relCommonDir(adminDir, worktreeName, newCommonDir string) string {
	rel, err := filepath.Rel(filepath.Join(adminDir, worktreeName), newCommonDir)
	if err != nil {
		return newCommonDir
	}
	return rel
}

func (o *OperationsImpl) atomicWriteFile(path string, content []byte) error {
	tmp := path + ".tmp"
	if err := billyutil.WriteFile(o.fs, tmp, content, 0o644); err != nil {
		return err
	}
	return o.fs.Rename(tmp, path)
}

// RewriteWorktreeGitFile rewrites a single worktree's own `.git` file to
// point at newGitdir. The admin-directory side is handled by
// RewriteGitdirPointers. Nothing in the Lifecycle Manager calls this method,
// so Repair leaves worktree `.git` files unchanged.
func (o *OperationsImpl) RewriteWorktreeGitFile(worktreePath, newGitdir string) error {
	dotGit := filepath.Join(worktreePath, ".git")
	if _, ok := IsWorktreeGitFile(dotGit); !ok {
		return fmt.Errorf("%s is not a worktree .git file", dotGit)
	}
	return o.atomicWriteFile(dotGit, []byte("gitdir: "+newGitdir+"\n"))
}

// DeleteLocalBranch implements delete_local_branch.
func (o *OperationsImpl) DeleteLocalBranch(repoPath, branch string, force bool) error {
	return o.branchOps.DeleteLocalBranch(repoPath, branch, force)
}

// DeleteRemoteBranch implements delete_remote_branch.
func (o *OperationsImpl) DeleteRemoteBranch(repoPath, remote, branch string) error {
	return o.branchOps.DeleteRemoteBranch(repoPath, remote, branch)
}

// FetchPRRef implements fetch_pr_ref.
func (o *OperationsImpl) FetchPRRef(repoPath, remote string, prNumber int) (string, error) {
	return o.fetchExecutor.FetchPRRef(repoPath, remote, prNumber)
}

// DefaultBranch resolves origin's HEAD, used when registering a project
// without an explicit default branch override.
func (o *OperationsImpl) DefaultBranch(repoPath string) (string, error) {
	return o.branchOps.GetDefaultBranch(repoPath)
}

func (o *OperationsImpl) RemoteOrigin(repoPath string) (string, error) {
	return o.branchOps.GetRemoteURL(repoPath)
}

// IsGitRepository implements the boundary check used by the Context
// Detector.
func (o *OperationsImpl) IsGitRepository(path string) bool {
	_, err := o.executeGit(path, "rev-parse", "--git-dir")
	return err == nil
}
