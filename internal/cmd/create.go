package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-imi/imi/internal/config"
)

var createCmd = &cobra.Command{
	Use:   "create <type> <name>",
	Short: "Create a type-prefixed worktree branched from trunk",
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
		wt, err := e.manager.Create(cmd.Context(), ref, args[0], args[1], config.IdentityToken(), nil)
		if err != nil {
			return err
		}
		if jsonOutput {
			return renderJSON(wt)
		}
		fmt.Printf("created %s at %s (branch %s)\n", wt.Name, wt.Path, wt.BranchName)
		return nil
	},
}
