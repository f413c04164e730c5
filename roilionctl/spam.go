package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/auroilion/roilion/spam"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newSpamCmd() *cobra.Command {
	var rulesPath string

	cmd := &cobra.Command{
		Use:   "spam",
		Short: "Inspect the spam classifier",
	}
	cmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "YAML rules file (default: bundled rules)")

	var asJSON bool
	classify := &cobra.Command{
		Use:   "classify [file|-]",
		Short: "Score a message read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadClassifier(rulesPath)
			if err != nil {
				return err
			}

			msg, err := readMessage(cmd, args)
			if err != nil {
				return err
			}

			s := c.Score(msg)
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					spam.Score
					Verdict string `json:"verdict"`
				}{s, s.Verdict().String()})
			}

			if s.Keyword != "" {
				fmt.Fprintf(out, "keyword: %q\n", s.Keyword)
			}
			for _, m := range s.Matches {
				fmt.Fprintf(out, "%-16s x%-3d +%d\n", m.Rule, m.Count, m.Points)
			}
			fmt.Fprintf(out, "score: %d/%d\nverdict: %v\n", s.Total, s.Threshold, s.Verdict())
			return nil
		},
	}
	classify.Flags().BoolVar(&asJSON, "json", false, "print the score as JSON")

	rules := &cobra.Command{
		Use:   "rules",
		Short: "Print the effective rules as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadClassifier(rulesPath)
			if err != nil {
				return err
			}

			b, err := c.Rules().Marshal()
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}

	cmd.AddCommand(classify, rules)
	return cmd
}

func loadClassifier(path string) (*spam.Classifier, error) {
	if path == "" {
		return spam.NewDefault()
	}

	r, err := spam.LoadRulesFile(path)
	if err != nil {
		return nil, err
	}
	return spam.New(r)
}

func readMessage(cmd *cobra.Command, args []string) (string, error) {
	var in io.Reader = cmd.InOrStdin()

	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", errors.Wrap(err, "failed to open message")
		}
		defer f.Close()
		in = f
	}

	b, err := io.ReadAll(in)
	if err != nil {
		return "", errors.Wrap(err, "failed to read message")
	}
	return string(b), nil
}
