package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "roilionctl",
		Short:         "Operator tool for the Au Roi Lion contact api",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newSpamCmd(), newValidateCmd(), newTokenCmd())
	return root
}
