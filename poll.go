package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nicebartender/nostrbot/bot"
	"github.com/nicebartender/nostrbot/db"
	"github.com/nicebartender/nostrbot/nostr"
)

// TallyStore persists vote counts between runs.
type TallyStore interface {
	LoadTally(ctx context.Context, pollID string) (db.Tally, error)
	SaveTally(ctx context.Context, pollID string, t db.Tally) error
}

// Votes is the poll bot's shared state.
type Votes struct {
	PollID   string
	Question string
	Tally    db.Tally
}

func loadVotes(ctx context.Context, store TallyStore, pollID, question string) (Votes, error) {
	t, err := store.LoadTally(ctx, pollID)
	if err != nil {
		return Votes{}, fmt.Errorf("load tally %s: %w", pollID, err)
	}
	return Votes{PollID: pollID, Question: question, Tally: t}, nil
}

// record counts one vote and persists it. The count is rolled back when the
// store refuses it.
func (v *Votes) record(ctx context.Context, store TallyStore, yes bool) error {
	prev := v.Tally
	if yes {
		v.Tally.Yes++
	} else {
		v.Tally.No++
	}
	if err := store.SaveTally(ctx, v.PollID, v.Tally); err != nil {
		v.Tally = prev
		return fmt.Errorf("save tally: %w", err)
	}
	return nil
}

func formatResults(question string, t db.Tally) string {
	var yesPct, noPct float64
	if total := t.Yes + t.No; total > 0 {
		yesPct = float64(t.Yes) / float64(total) * 100
		noPct = float64(t.No) / float64(total) * 100
	}
	return fmt.Sprintf("%s\n------------------\nyes: %.2f %% (%d)\nno: %.2f %% (%d)",
		question, yesPct, t.Yes, noPct, t.No)
}

func pollCommands(store TallyStore) []bot.Command[Votes] {
	vote := func(yes bool) bot.Handler[Votes] {
		return func(ctx context.Context, ev nostr.Event, v *Votes) (*nostr.UnsignedEvent, error) {
			if err := v.record(ctx, store, yes); err != nil {
				return nil, err
			}
			reply := nostr.BuildReply(ev, formatResults(v.Question, v.Tally))
			return &reply, nil
		}
	}
	results := func(_ context.Context, ev nostr.Event, v *Votes) (*nostr.UnsignedEvent, error) {
		reply := nostr.BuildReply(ev, formatResults(v.Question, v.Tally))
		return &reply, nil
	}

	return []bot.Command[Votes]{
		bot.NewCommand[Votes]("results", results).Desc("Show the current results."),
		bot.NewCommand[Votes]("yes", vote(true)).Desc("Vote yes."),
		bot.NewCommand[Votes]("no", vote(false)).Desc("Vote no."),
	}
}

// broadcastResults publishes the current results as a standalone note.
func broadcastResults(sender *bot.Sender, state *bot.State[Votes], logger *slog.Logger) bot.Task {
	return func(ctx context.Context) {
		var content string
		err := state.With(ctx, func(v *Votes) error {
			content = formatResults(v.Question, v.Tally)
			return nil
		})
		if err != nil {
			return
		}
		ev, err := sender.Send(ctx, nostr.NewTextNote(content, nil))
		if err != nil {
			logger.Warn("results broadcast failed", "err", err)
			return
		}
		logger.Info("results broadcast", "id", ev.ID)
	}
}
