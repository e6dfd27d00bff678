package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-imi/imi/internal/ctxdetect"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the derived status of the current worktree or project",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		result, err := e.manager.Status(cwd())
		if err != nil {
			return err
		}
		if jsonOutput {
			return renderJSON(result)
		}

		switch result.Mode {
		case ctxdetect.OutsideAnyRepo, ctxdetect.InsideUnregistered:
			fmt.Println(dimStyle.Render(result.Hint))
		default:
			w := result.Worktree
			fmt.Println(headerStyle.Render(result.Project.Name))
			printTableRow("name", w.Name)
			printTableRow("branch", w.BranchName)
			printTableRow("status", string(result.Status))
			printTableRow("ahead/behind", fmt.Sprintf("%d/%d", w.AheadOfTrunk, w.BehindTrunk))
			printTableRow("uncommitted files", fmt.Sprintf("%d", w.UncommittedFilesCount))
		}
		return nil
	},
}
