package git

import (
	"fmt"

	"github.com/go-imi/imi/internal/git/executor"
	"github.com/go-imi/imi/internal/logger"
)

// FetchStrategy defines the strategy for fetching branches or arbitrary refs.
type FetchStrategy struct {
	Branch         string // Branch to fetch
	Remote         string // Remote name or path
	RemoteName     string // Remote name for refs (defaults to remote name)
	IsLocalRepo    bool   // Whether this is a local repo fetch
	Depth          int    // Fetch depth (0 = no depth limit)
	UpdateLocalRef bool   // Whether to update local refs after fetch
	RefSpec        string // Custom refspec (optional) - used for fetch_pr_ref
}

// FetchExecutor handles fetch operations with strategy pattern.
type FetchExecutor struct {
	executor executor.CommandExecutor
}

// NewFetchExecutor creates a new fetch executor.
func NewFetchExecutor(exec executor.CommandExecutor) *FetchExecutor {
	return &FetchExecutor{executor: exec}
}

// FetchBranch executes a fetch strategy.
func (f *FetchExecutor) FetchBranch(repoPath string, strategy FetchStrategy) error {
	if strategy.Remote == "" {
		strategy.Remote = "origin"
	}
	if strategy.RemoteName == "" {
		strategy.RemoteName = strategy.Remote
	}

	if strategy.IsLocalRepo && strategy.Remote == "origin" {
		return nil
	}

	args := []string{"fetch", strategy.Remote}

	if strategy.RefSpec != "" {
		args = append(args, strategy.RefSpec)
	} else if strategy.Branch != "" {
		if strategy.IsLocalRepo {
			args = append(args, fmt.Sprintf("%s:refs/remotes/%s/%s", strategy.Branch, strategy.RemoteName, strategy.Branch))
		} else {
			args = append(args, fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", strategy.Branch, strategy.RemoteName, strategy.Branch))
		}
	}

	if strategy.Depth > 0 {
		args = append(args, "--depth", fmt.Sprintf("%d", strategy.Depth))
	}

	output, err := f.executor.ExecuteGitWithWorkingDir(repoPath, args...)
	if err != nil {
		return fmt.Errorf("failed to fetch: %v\n%s", err, output)
	}

	if strategy.UpdateLocalRef && strategy.Branch != "" && !strategy.IsLocalRepo {
		_, err = f.executor.ExecuteGitWithWorkingDir(repoPath, "update-ref",
			fmt.Sprintf("refs/heads/%s", strategy.Branch),
			fmt.Sprintf("refs/remotes/%s/%s", strategy.RemoteName, strategy.Branch))
		if err != nil {
			logger.Logger.Warn().Err(err).Str("branch", strategy.Branch).Msg("could not update local branch ref after fetch")
		}
	}

	return nil
}

// FetchPRRef fetches refs/pull/<n>/head into a non-default local ref
// (refs/imi/pr/<n>) without touching the trunk's HEAD or any branch ref.
func (f *FetchExecutor) FetchPRRef(repoPath string, remote string, prNumber int) (string, error) {
	if remote == "" {
		remote = "origin"
	}
	localRef := fmt.Sprintf("refs/imi/pr/%d", prNumber)
	strategy := FetchStrategy{
		Remote:  remote,
		RefSpec: fmt.Sprintf("refs/pull/%d/head:%s", prNumber, localRef),
	}
	if err := f.FetchBranch(repoPath, strategy); err != nil {
		return "", err
	}
	return localRef, nil
}
