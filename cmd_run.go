package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nicebartender/nostrbot/bot"
	"github.com/nicebartender/nostrbot/config"
	"github.com/nicebartender/nostrbot/db"
	"github.com/nicebartender/nostrbot/nostr"
	"github.com/nicebartender/nostrbot/observability"
)

const (
	seenRetention = 24 * time.Hour
	pruneCron     = "17 * * * *"
)

func newRunCmd() *cobra.Command {
	var flags cliFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the relays and answer poll commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger := observability.NewLogger(cfg.LogLevel, cmd.ErrOrStderr())
			slog.SetDefault(logger)
			return runPollBot(cmd.Context(), cfg, logger)
		},
	}
	flags.bind(cmd)
	return cmd
}

func runPollBot(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	keys, err := loadKeypair(cfg)
	if err != nil {
		return err
	}
	dialer, err := cfg.Dialer()
	if err != nil {
		return err
	}

	store, err := db.OpenStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	votes, err := loadVotes(ctx, store, cfg.Poll.ID, cfg.Poll.Question)
	if err != nil {
		return err
	}
	state := bot.NewState(votes)

	b := bot.New[Votes](keys, bot.Options{
		Relays: cfg.Relays,
		Dialer: dialer,
		Profile: bot.Profile{
			Name:         cfg.Profile.Name,
			About:        cfg.Profile.About,
			Picture:      cfg.Profile.Picture,
			IntroMessage: cfg.Profile.Intro,
		},
		Logger:         logger,
		Dedup:          store,
		HandlerTimeout: cfg.HandlerTimeout(),
		ReconnectDelay: cfg.ReconnectDelay(),
		MentionsOnly:   cfg.MentionsOnly,
	})
	for _, c := range pollCommands(store) {
		if err := b.Command(c); err != nil {
			return err
		}
	}
	if err := b.Help(); err != nil {
		return err
	}

	if cfg.Poll.ResultsCron != "" {
		if err := b.Schedule(cfg.Poll.ResultsCron, broadcastResults(b.Sender(), state, logger)); err != nil {
			return err
		}
	}
	if err := b.Schedule(pruneCron, pruneSeen(store, logger)); err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		observability.RegisterMetrics()
		go serveMetrics(ctx, cfg.MetricsAddr, logger)
	}

	npub, _ := nostr.EncodePublicKey(keys.PublicKey())
	logger.Info("starting poll bot", "npub", npub, "poll", cfg.Poll.ID, "relays", len(cfg.Relays), "network", cfg.Network)
	return b.Run(ctx, state)
}

func pruneSeen(store db.Store, logger *slog.Logger) bot.Task {
	return func(ctx context.Context) {
		n, err := store.PruneSeen(ctx, time.Now().Add(-seenRetention))
		if err != nil {
			logger.Warn("prune seen events failed", "err", err)
			return
		}
		logger.Debug("pruned seen events", "count", n)
	}
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           observability.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "err", err)
		os.Exit(1)
	}
}
