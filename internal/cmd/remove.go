package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	keepLocalBranch  bool
	keepRemoteBranch bool
)

var removeCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a worktree, deleting its branches unless told to keep them",
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
		if err := e.manager.Remove(cmd.Context(), ref, args[0], keepLocalBranch, keepRemoteBranch); err != nil {
			return err
		}
		if jsonOutput {
			return renderJSON(map[string]any{"name": args[0], "removed": true})
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

func init() {
	removeCmd.Flags().BoolVar(&keepLocalBranch, "keep-local", false, "do not delete the local branch")
	removeCmd.Flags().BoolVar(&keepRemoteBranch, "keep-remote", false, "do not delete the remote branch")
}
