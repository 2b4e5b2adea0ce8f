package main

import (
	"github.com/spf13/cobra"

	"github.com/neuralpositive/trackgate/internal/version"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "trackgate",
		Short:         "Catalog-to-storage resolution and audio streaming gateway",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(&configFlag))
	rootCmd.AddCommand(newRepairCommand(&configFlag))
	rootCmd.AddCommand(newResolveCommand(&configFlag))
	rootCmd.AddCommand(newIndexCommand(&configFlag))

	return rootCmd
}
