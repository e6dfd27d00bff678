package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/go-imi/imi/internal/config"
	"github.com/go-imi/imi/internal/errs"
)

var reviewCmd = &cobra.Command{
	Use:   "review <pr_number>",
	Short: "Check out a pull request's head ref into its own worktree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prNumber, err := strconv.Atoi(args[0])
		if err != nil {
			return errs.Wrap(errs.InvalidInput, errs.PlaneInput, "pr_number must be an integer", err)
		}
		e, err := newEnv()
		if err != nil {
			return err
		}
		ref, err := resolveProjectRef(e)
		if err != nil {
			return err
		}
		wt, err := e.manager.Review(cmd.Context(), ref, prNumber, config.IdentityToken())
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
