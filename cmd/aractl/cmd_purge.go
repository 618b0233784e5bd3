package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var purgeFlags struct {
	project string
	all     bool
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete executions older than the project retention setting",
	RunE:  runPurge,
}

func init() {
	f := purgeCmd.Flags()
	f.StringVar(&purgeFlags.project, "project", "", "project code")
	f.BoolVar(&purgeFlags.all, "all", false, "purge every project")

	purgeCmd.MarkFlagsMutuallyExclusive("project", "all")
	purgeCmd.MarkFlagsOneRequired("project", "all")
}

func runPurge(cmd *cobra.Command, _ []string) error {
	svc, err := openServices()
	if err != nil {
		return err
	}
	defer svc.close()

	var deleted int
	if purgeFlags.all {
		deleted, err = svc.purge.Service.PurgeAll(cmd.Context())
	} else {
		deleted, err = svc.purge.Service.PurgeProjectByCode(cmd.Context(), purgeFlags.project)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d executions deleted\n", deleted)
	return nil
}
