package main

import "github.com/spf13/cobra"

// newRootCmd creates the pollbot command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pollbot",
		Short:         "Yes/no poll bot for nostr relays",
		Long:          "pollbot answers yes, no and results notes on a set of nostr relays\nand keeps the tally in sqlite or Postgres.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newRunCmd(),
		newKeygenCmd(),
		newRelayCmd(),
		newTallyCmd(),
	)
	return cmd
}
