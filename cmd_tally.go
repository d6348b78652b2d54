package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nicebartender/nostrbot/db"
)

func newTallyCmd() *cobra.Command {
	var flags cliFlags
	cmd := &cobra.Command{
		Use:   "tally",
		Short: "Print the stored poll results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(flags)
			if err != nil {
				return err
			}
			store, err := db.OpenStore(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			votes, err := loadVotes(cmd.Context(), store, cfg.Poll.ID, cfg.Poll.Question)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatResults(votes.Question, votes.Tally))
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}
