package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Unregister a project and deactivate its worktree rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		ref, err := resolveProjectRef(e)
		if err != nil {
			return err
		}
		project, err := e.manager.Deactivate(cmd.Context(), ref)
		if err != nil {
			return err
		}
		if jsonOutput {
			return renderJSON(map[string]any{"name": project.Name, "deactivated": true})
		}
		fmt.Printf("deactivated %s\n", project.Name)
		return nil
	},
}
