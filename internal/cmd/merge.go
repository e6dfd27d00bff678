package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-imi/imi/internal/config"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <name> <sha>",
	Short: "Record a worktree as merged and retire it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		ref, err := resolveProjectRef(e)
		if err != nil {
			return err
		}
		if err := e.manager.Merge(cmd.Context(), ref, args[0], args[1], config.IdentityToken()); err != nil {
			return err
		}
		if jsonOutput {
			return renderJSON(map[string]any{"name": args[0], "merge_commit_hash": args[1], "merged": true})
		}
		fmt.Printf("merged %s at %s\n", args[0], args[1])
		return nil
	},
}
