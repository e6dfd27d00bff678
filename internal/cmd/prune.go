package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	pruneDryRun bool
	pruneForce  bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Reconcile the registry, git admin directory, and cluster hub",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		ref, err := resolveProjectRef(e)
		if err != nil {
			return err
		}
		report, err := e.manager.Prune(cmd.Context(), ref, pruneDryRun, pruneForce)
		if err != nil {
			return err
		}
		if jsonOutput {
			return renderJSON(report)
		}
		fmt.Printf("deactivated: %v\norphans found: %v\norphans removed: %v\nactivities pruned: %d\n",
			report.DeactivatedRows, report.OrphansFound, report.OrphansRemoved, report.ActivitiesPruned)
		return nil
	},
}

func init() {
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "report what would change without mutating anything")
	pruneCmd.Flags().BoolVar(&pruneForce, "force", false, "also remove orphaned sibling directories")
}
