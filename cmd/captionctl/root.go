package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "captionctl",
		Short:         "Inspect and transform SRT caption tracks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newFormatCommand())
	rootCmd.AddCommand(newShiftCommand())
	rootCmd.AddCommand(newMergeCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}
