package git

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	githubURLPattern = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/\s]+?)(?:\.git)?(?:/|$)`)
	sshURLPattern     = regexp.MustCompile(`^(?:ssh://)?git@([^:]+):(.+)$`)
)

// ParseGitHubURL extracts owner and repo from a supported remote URL form.
// Its only caller is CanonicalRemoteOrigin.
func ParseGitHubURL(url string) (owner, repo string, err error) {
	if strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://git@") {
		matches := sshURLPattern.FindStringSubmatch(url)
		if len(matches) > 2 {
			parts := strings.Split(matches[2], "/")
			if len(parts) == 2 {
				owner = parts[0]
				repo = strings.TrimSuffix(parts[1], ".git")
				return owner, repo, nil
			}
		}
	}

	matches := githubURLPattern.FindStringSubmatch(url)
	if len(matches) > 2 {
		owner = matches[1]
		repo = strings.TrimSuffix(matches[2], ".git")
		return owner, repo, nil
	}

	return "", "", fmt.Errorf("unable to parse remote URL: %s", url)
}

// ConvertSSHToHTTPS converts a Git SSH remote URL to HTTPS form.
func ConvertSSHToHTTPS(url string) string {
	if strings.HasPrefix(url, "ssh://git@") {
		url = strings.TrimPrefix(url, "ssh://")
	}
	if strings.HasPrefix(url, "git@") {
		parts := strings.SplitN(url, ":", 2)
		if len(parts) == 2 {
			host := strings.TrimPrefix(parts[0], "git@")
			path := parts[1]
			return fmt.Sprintf("https://%s/%s", host, path)
		}
	}
	return url
}

// CanonicalRemoteOrigin normalizes an accepted remote URL form (ssh or https)
// into the form git@github.com:<owner>/<repo>.git, whatever the input host.
// Project registration does not call it: remote_origin is stored exactly as
// read from git.
func CanonicalRemoteOrigin(url string) (string, error) {
	owner, repo, err := ParseGitHubURL(url)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("git@github.com:%s/%s.git", owner, repo), nil
}

// HasConflictMarkers checks if output contains Git conflict markers.
func HasConflictMarkers(output string) bool {
	patterns := []string{"<<<<<<<", "=======", ">>>>>>>", "CONFLICT", "Automatic merge failed"}
	for _, p := range patterns {
		if strings.Contains(output, p) {
			return true
		}
	}
	return false
}

// CleanBranchName strips the decorations `git branch`/`git worktree list` add.
func CleanBranchName(branchName string) string {
	branchName = strings.TrimSpace(branchName)
	branchName = strings.TrimPrefix(branchName, "*")
	branchName = strings.TrimPrefix(branchName, "+")
	return strings.TrimSpace(branchName)
}

// FindGitRoot walks up from startDir until it finds a `.git` directory (a
// normal repository) or a `.git` file with a `gitdir:` pointer (a worktree),
// returning the directory that contains it.
func FindGitRoot(startDir string) (string, bool) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false
	}

	for {
		gitPath := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitPath); err == nil {
			if info.IsDir() {
				return dir, true
			}
			if content, err := os.ReadFile(gitPath); err == nil {
				if strings.HasPrefix(string(content), "gitdir: ") {
					return dir, true
				}
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}

// IsWorktreeGitFile reports whether path is a worktree's `.git` file (as
// opposed to the main repository's `.git` directory), and returns the gitdir
// pointer it contains.
func IsWorktreeGitFile(path string) (gitdir string, ok bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	trimmed := strings.TrimSpace(string(content))
	if !strings.HasPrefix(trimmed, "gitdir: ") {
		return "", false
	}
	return strings.TrimPrefix(trimmed, "gitdir: "), true
}
