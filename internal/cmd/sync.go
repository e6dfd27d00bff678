package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh recorded git state for every active worktree",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		ref, err := resolveProjectRef(e)
		if err != nil {
			return err
		}
		updated, err := e.manager.Sync(cmd.Context(), ref)
		if err != nil {
			return err
		}
		if jsonOutput {
			return renderJSON(map[string]any{"updated": updated})
		}
		fmt.Printf("synced %d worktrees\n", updated)
		return nil
	},
}
