package main

import (
	"github.com/spf13/cobra"

	"github.com/nicebartender/nostrbot/devrelay"
	"github.com/nicebartender/nostrbot/observability"
)

func newRelayCmd() *cobra.Command {
	var addr, level string
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run an in-memory development relay",
		Long:  "Run a small relay that keeps recent events in memory.\nUseful for trying the bot locally: pollbot run --relay ws://localhost:7447",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.NewLogger(level, cmd.ErrOrStderr())
			return devrelay.NewHub(logger).ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", envOrDefault("NOSTRBOT_RELAY_ADDR", ":7447"), "Listen address")
	cmd.Flags().StringVar(&level, "log-level", "", "Log level")
	return cmd
}
