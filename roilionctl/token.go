package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/auroilion/roilion/contact"
	"github.com/auroilion/roilion/token"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var key string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and check visitor tokens",
	}
	cmd.PersistentFlags().StringVar(&key, "key", os.Getenv("KEY"), "signing key (default: $KEY)")
	cmd.PersistentFlags().DurationVar(&ttl, "ttl", contact.DefaultTokenTTL, "token lifetime")

	generator := func() (*token.Generator, error) {
		if key == "" {
			return nil, errors.New("a signing key is required, set --key or KEY")
		}
		return token.NewGenerator(key, ttl), nil
	}

	issue := &cobra.Command{
		Use:   "issue [id]",
		Short: "Issue a token for id, or a random id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tg, err := generator()
			if err != nil {
				return err
			}

			id := uuid.New().String()
			if len(args) == 1 {
				id = args[0]
			}

			tk, exp := tg.Issue(id)
			fmt.Fprintf(cmd.OutOrStdout(), "%v\nexpires: %v\n", tk, exp.UTC().Format(time.RFC3339))
			return nil
		},
	}

	verify := &cobra.Command{
		Use:   "verify <token>",
		Short: "Check a token and print the id it was issued for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tg, err := generator()
			if err != nil {
				return err
			}

			id, err := tg.VerifyToken(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.AddCommand(issue, verify)
	return cmd
}
