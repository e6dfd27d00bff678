package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var closeCmd = &cobra.Command{
	Use:   "close <name>",
	Short: "Close a worktree, preserving its local and remote branches",
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
		if err := e.manager.Close(cmd.Context(), ref, args[0]); err != nil {
			return err
		}
		if jsonOutput {
			return renderJSON(map[string]any{"name": args[0], "closed": true})
		}
		fmt.Printf("closed %s\n", args[0])
		return nil
	},
}
