package main

import (
	"fmt"

	execmodel "aramaster/internal/model/execution"

	"github.com/spf13/cobra"
)

var indexFlags struct {
	project string
	branch  string
	cycle   string
	folder  string
	pending bool
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index one job folder, or every pending job folder with --pending",
	RunE:  runIndex,
}

func init() {
	f := indexCmd.Flags()
	f.StringVar(&indexFlags.project, "project", "", "project code")
	f.StringVar(&indexFlags.branch, "branch", "", "cycle branch")
	f.StringVar(&indexFlags.cycle, "cycle", "", "cycle name")
	f.StringVar(&indexFlags.folder, "folder", "", "job folder, absolute or relative to the cycle folder")
	f.BoolVar(&indexFlags.pending, "pending", false, "index every job folder not yet indexed as DONE")

	indexCmd.MarkFlagsRequiredTogether("project", "branch", "cycle", "folder")
	indexCmd.MarkFlagsMutuallyExclusive("pending", "folder")
	indexCmd.MarkFlagsOneRequired("pending", "folder")
}

func runIndex(cmd *cobra.Command, _ []string) error {
	svc, err := openServices()
	if err != nil {
		return err
	}
	defer svc.close()
	ctx := cmd.Context()

	var planned []*execmodel.PlannedIndexation
	if indexFlags.pending {
		planned, err = svc.indexer.Planner.PlanPending(ctx)
	} else {
		var one *execmodel.PlannedIndexation
		one, err = svc.indexer.Planner.Plan(ctx, indexFlags.project, indexFlags.branch, indexFlags.cycle, indexFlags.folder)
		planned = append(planned, one)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, p := range planned {
		execution, err := svc.indexer.Indexer.IndexExecution(ctx, p)
		switch {
		case err != nil:
			failed++
			fmt.Fprintf(out, "FAILED   %s: %v\n", p.RawFolder, err)
		case execution == nil:
			fmt.Fprintf(out, "SKIPPED  %s\n", p.RawFolder)
		default:
			fmt.Fprintf(out, "%-8s %s (execution #%d, quality %s)\n", execution.Status, p.RawFolder, execution.ID, execution.QualityStatus)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d indexations failed", failed, len(planned))
	}
	return nil
}
