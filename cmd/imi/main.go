// Command imi is the git worktree fleet manager CLI.
package main

import (
	"os"

	"golang.org/x/term"

	"github.com/go-imi/imi/internal/cmd"
	"github.com/go-imi/imi/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

func main() {
	logger.Configure(logger.GetLogLevelFromEnv(), term.IsTerminal(int(os.Stderr.Fd())))
	cmd.SetVersionInfo(version, commit, date, builtBy)
	cmd.Execute()
}
