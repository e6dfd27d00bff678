package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-imi/imi/internal/ctxdetect"
)

var listProjectsOnly bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects (outside any repo) or worktrees (inside one)",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		result, err := e.manager.List(cwd(), listProjectsOnly)
		if err != nil {
			return err
		}
		if jsonOutput {
			return renderJSON(result)
		}

		switch result.Mode {
		case ctxdetect.OutsideAnyRepo:
			fmt.Println(headerStyle.Render("PROJECT\tWORKTREES\tDEFAULT BRANCH"))
			for _, s := range result.Projects {
				printTableRow(s.Project.Name, fmt.Sprintf("%d", s.WorktreeCount), s.Project.DefaultBranch)
			}
		case ctxdetect.InsideRegistered:
			fmt.Println(headerStyle.Render("NAME\tBRANCH\tSTATUS\tPATH"))
			for _, w := range result.Worktrees {
				printTableRow(w.Name, w.BranchName, string(w.Status()), w.Path)
			}
		default:
			fmt.Println(dimStyle.Render(result.Hint))
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listProjectsOnly, "projects", false, "always list projects, even inside a registered worktree")
	listCmd.Flags().Bool("worktrees", false, "list worktrees for the current project (default when inside one)")
}
