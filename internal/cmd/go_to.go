package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// goToCmd prints a worktree's absolute path on stdout. It never attempts to
// change the caller's shell directory itself; shells wrap it as
// `cd "$(imi go <name>)"`.
var goToCmd = &cobra.Command{
	Use:   "go <name>",
	Short: "Print the absolute path of a worktree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		ref, err := resolveProjectRef(e)
		if err != nil {
			return err
		}
		project, err := e.manager.ResolveProject(ref)
		if err != nil {
			return err
		}
		wt, err := e.store.GetWorktreeByProjectAndName(project.ID, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return renderJSON(map[string]any{"path": wt.Path})
		}
		fmt.Println(wt.Path)
		return nil
	},
}
