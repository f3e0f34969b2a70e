package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"livesale-backend/internal/parse"
)

type parseOutput struct {
	Normalized string        `json:"normalized"`
	Intent     *parse.Intent `json:"intent"`
}

func newParseCommand() *cobra.Command {
	var claimWord, passWord string

	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "Show how a comment is normalized and parsed",
		Example: `  livesaled parse "SOLD 12!!"
  livesaled parse "mine 4" --claim-word mine`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized, intent := parse.ParseComment(args[0], claimWord, passWord)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(parseOutput{Normalized: normalized, Intent: intent})
		},
	}

	cmd.Flags().StringVar(&claimWord, "claim-word", "sold", "keyword that claims a slot")
	cmd.Flags().StringVar(&passWord, "pass-word", "pass", "keyword that withdraws a claim")
	return cmd
}
