package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Fix recorded paths and gitdir pointers after the cluster hub moves",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		ref, err := resolveProjectRef(e)
		if err != nil {
			return err
		}
		report, err := e.manager.Repair(cmd.Context(), ref)
		if err != nil {
			return err
		}
		if jsonOutput {
			return renderJSON(report)
		}
		fmt.Printf("fixed: %v\n", report.FixedNames)
		for name, msg := range report.Errors {
			fmt.Printf("error (%s): %s\n", name, msg)
		}
		return nil
	},
}
