package main

import (
	"fmt"

	"github.com/auroilion/roilion/pipeline"
	"github.com/auroilion/roilion/validate"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var name, email, message string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check contact form fields the way the api does",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reason := pipeline.ValidationReason(validate.Fields(name, email, message))
			if reason == pipeline.None {
				fmt.Fprintf(cmd.OutOrStdout(), "ok: reply to %v\n", validate.NormalizeEmail(email))
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%v: %v\n", reason, reason.Message())
			return fmt.Errorf("fields rejected: %v", reason)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "visitor name")
	cmd.Flags().StringVar(&email, "email", "", "reply-to address")
	cmd.Flags().StringVar(&message, "message", "", "message body")
	return cmd
}
