package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-imi/imi/internal/ctxdetect"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the registry, globally or for one project",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}

		projectID := repoFlag
		if projectID == "" {
			if ctx, err := ctxdetect.Detect(cwd(), e.git, e.store); err == nil && ctx.Classification == ctxdetect.InsideRegistered {
				projectID = ctx.Project.ID
			}
		}

		stats, err := e.store.Stats(projectID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return renderJSON(stats)
		}

		printTableRow("projects", fmt.Sprintf("%d", stats.ProjectCount))
		printTableRow("active worktrees", fmt.Sprintf("%d", stats.ActiveWorktreeCount))
		printTableRow("merged worktrees", fmt.Sprintf("%d", stats.MergedWorktreeCount))
		printTableRow("dirty worktrees", fmt.Sprintf("%d", stats.DirtyWorktreeCount))
		printTableRow("activity rows", fmt.Sprintf("%d", stats.ActivityCount))
		return nil
	},
}
