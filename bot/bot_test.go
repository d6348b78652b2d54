package bot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nicebartender/nostrbot/devrelay"
	"github.com/nicebartender/nostrbot/nostr"
	"github.com/nicebartender/nostrbot/relay"
)

func startRelay(t *testing.T) (*devrelay.Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := devrelay.NewHub(quietLogger())
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func deadRelay(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()
	return url
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func findReply(hub *devrelay.Hub, author, to string) (nostr.Event, bool) {
	for _, ev := range hub.Events() {
		if ev.PubKey == author && ev.RepliesTo(to) {
			return ev, true
		}
	}
	return nostr.Event{}, false
}

type runResult struct {
	err error
}

func runBot(t *testing.T, b *Bot[counter], state *State[counter]) (context.CancelFunc, <-chan runResult) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan runResult, 1)
	go func() { done <- runResult{b.Run(ctx, state)} }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestRunRepliesOverLiveRelay(t *testing.T) {
	hub, live := startRelay(t)
	botKey := newKey(t)
	user := newKey(t)

	b := New[counter](botKey, Options{
		Relays:  []string{deadRelay(t), live},
		Profile: Profile{Name: "tally", About: "counts yes"},
		Logger:  quietLogger(),
	})
	if err := b.Command(countCommand("yes").Desc("Vote yes.")); err != nil {
		t.Fatal(err)
	}
	if err := b.Help(); err != nil {
		t.Fatal(err)
	}
	if b.Status() != StatusUnconnected {
		t.Fatalf("status = %s before connect", b.Status())
	}

	state := NewState(counter{})
	cancel, done := runBot(t, b, state)
	waitFor(t, "subscription", func() bool { return hub.Subscriptions() == 1 })
	if b.Status() != StatusRunning {
		t.Errorf("status = %s, want running", b.Status())
	}

	ev := userNote(t, user, "yes extra text")
	hub.Publish(ev)

	var reply nostr.Event
	waitFor(t, "reply", func() bool {
		var ok bool
		reply, ok = findReply(hub, botKey.PublicKey(), ev.ID)
		return ok
	})
	if err := nostr.Verify(reply); err != nil {
		t.Errorf("reply does not verify: %v", err)
	}
	if p := reply.Tags.Find("p"); len(p) != 1 || p[0].Value() != user.PublicKey() {
		t.Errorf("reply p tags = %v", p)
	}
	if got := readCount(t, state); got != 1 {
		t.Errorf("handler ran %d times, want 1", got)
	}

	var sawProfile bool
	for _, e := range hub.Events() {
		if e.Kind == nostr.KindMetadata && e.PubKey == botKey.PublicKey() {
			sawProfile = strings.Contains(e.Content, `"name":"tally"`)
		}
	}
	if !sawProfile {
		t.Error("profile metadata not published")
	}

	cancel()
	select {
	case res := <-done:
		if res.err != nil {
			t.Errorf("Run = %v, want nil after cancel", res.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if b.Status() != StatusStopped {
		t.Errorf("status = %s, want stopped", b.Status())
	}
}

func TestRunFailsWithoutRelays(t *testing.T) {
	b := New[counter](newKey(t), Options{Relays: []string{deadRelay(t)}, Logger: quietLogger()})
	err := b.Run(context.Background(), NewState(counter{}))
	if !errors.Is(err, relay.ErrNoRelaysAvailable) {
		t.Errorf("Run = %v, want ErrNoRelaysAvailable", err)
	}
	if b.Status() != StatusUnconnected {
		t.Errorf("status = %s, want unconnected", b.Status())
	}
}

func TestRunEndsWhenRelaysDrop(t *testing.T) {
	hub, live := startRelay(t)
	b := New[counter](newKey(t), Options{Relays: []string{live}, Logger: quietLogger()})
	_, done := runBot(t, b, NewState(counter{}))
	waitFor(t, "subscription", func() bool { return hub.Subscriptions() == 1 })

	hub.DropClients()
	select {
	case res := <-done:
		if !errors.Is(res.err, ErrRelaysLost) {
			t.Errorf("Run = %v, want ErrRelaysLost", res.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after relays dropped")
	}
}

func TestRunReconnectsAndResubscribes(t *testing.T) {
	hub, live := startRelay(t)
	botKey := newKey(t)
	b := New[counter](botKey, Options{
		Relays:         []string{live},
		Logger:         quietLogger(),
		ReconnectDelay: 10 * time.Millisecond,
	})
	b.Command(countCommand("yes"))
	runBot(t, b, NewState(counter{}))
	waitFor(t, "subscription", func() bool { return hub.Subscriptions() == 1 })

	hub.DropClients()
	waitFor(t, "resubscription", func() bool { return hub.Subscriptions() == 1 })

	ev := userNote(t, newKey(t), "yes")
	hub.Publish(ev)
	waitFor(t, "reply after reconnect", func() bool {
		_, ok := findReply(hub, botKey.PublicKey(), ev.ID)
		return ok
	})
}

func TestSpawnedTasksAndSchedule(t *testing.T) {
	hub, live := startRelay(t)
	b := New[counter](newKey(t), Options{Relays: []string{live}, Logger: quietLogger()})

	started := make(chan struct{})
	b.Spawn(func(ctx context.Context) {
		close(started)
		b.Sender().Send(ctx, nostr.NewTextNote("task says hi", nil))
	})
	if err := b.Schedule("not a cron", func(context.Context) {}); err == nil {
		t.Error("invalid cron expression accepted")
	}
	if err := b.Schedule("*/5 * * * *", func(context.Context) {}); err != nil {
		t.Errorf("Schedule: %v", err)
	}

	runBot(t, b, NewState(counter{}))
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("spawned task never started")
	}
	waitFor(t, "task note", func() bool {
		for _, e := range hub.Events() {
			if e.Content == "task says hi" {
				return true
			}
		}
		return false
	})
}

func TestRunTwice(t *testing.T) {
	hub, live := startRelay(t)
	b := New[counter](newKey(t), Options{Relays: []string{live}, Logger: quietLogger()})
	runBot(t, b, NewState(counter{}))
	waitFor(t, "subscription", func() bool { return hub.Subscriptions() == 1 })

	if err := b.Run(context.Background(), NewState(counter{})); err == nil {
		t.Error("second Run succeeded")
	}
	if err := b.Connect(context.Background()); err == nil {
		t.Error("Connect on running bot succeeded")
	}
}
