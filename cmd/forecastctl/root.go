package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/irfndi/costcast/internal/telemetry"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "forecastctl",
		Short:         "Offline cloud cost forecasting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "forecastctl %s\n", telemetry.ServiceVersion)
			return err
		},
	}
}
