package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var problemProject string

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute first and last seen date-times of every problem of a project",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withProject(cmd, func(svc *services, projectID uint64) (string, error) {
			n, err := svc.core.ProblemService.RecomputeFirstAndLastSeen(cmd.Context(), projectID)
			return fmt.Sprintf("%d problems recomputed", n), err
		})
	},
}

var refreshDefectsCmd = &cobra.Command{
	Use:   "refresh-defects",
	Short: "Refresh defect statuses of a project from its defect tracker",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withProject(cmd, func(svc *services, projectID uint64) (string, error) {
			n, err := svc.core.ProblemService.RefreshDefects(cmd.Context(), projectID)
			return fmt.Sprintf("%d problems updated", n), err
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{recomputeCmd, refreshDefectsCmd} {
		c.Flags().StringVar(&problemProject, "project", "", "project code")
		_ = c.MarkFlagRequired("project")
	}
}

func withProject(cmd *cobra.Command, fn func(svc *services, projectID uint64) (string, error)) error {
	svc, err := openServices()
	if err != nil {
		return err
	}
	defer svc.close()

	projectID, err := svc.core.ProjectService.ToID(cmd.Context(), problemProject)
	if err != nil {
		return err
	}
	msg, err := fn(svc, projectID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}
