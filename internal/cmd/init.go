package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-imi/imi/internal/initstate"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Register the current project, or refresh global config",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		outcome, err := initstate.Run(cwd(), initForce, e.git, e.store)
		if err != nil {
			return err
		}
		if jsonOutput {
			return renderJSON(outcome)
		}
		fmt.Println(outcome.Message)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "refresh global config/registry even if already present")
}
