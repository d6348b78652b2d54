package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nicebartender/nostrbot/nostr"
)

type counter struct {
	n    int
	args []string
}

func countCommand(trigger string) Command[counter] {
	return NewCommand[counter](trigger, func(_ context.Context, ev nostr.Event, s *counter) (*nostr.UnsignedEvent, error) {
		s.n++
		reply := nostr.BuildReply(ev, trigger)
		return &reply, nil
	})
}

func TestMatchFirstRegisteredWins(t *testing.T) {
	cs := NewCommands[counter]()
	for _, trig := range []string{"yes", "yes please", "no"} {
		if err := cs.Add(countCommand(trig)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		content string
		trigger string
		rest    string
		ok      bool
	}{
		{"yes", "yes", "", true},
		{"yes please", "yes", "please", true},
		{"yes extra text", "yes", "extra text", true},
		{"no", "no", "", true},
		{" yes", "", "", false},
		{"maybe", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		c, rest, ok := cs.Match(tt.content)
		if ok != tt.ok || c.Trigger != tt.trigger || rest != tt.rest {
			t.Errorf("Match(%q) = %q, %q, %v; want %q, %q, %v", tt.content, c.Trigger, rest, ok, tt.trigger, tt.rest, tt.ok)
		}
	}
}

func TestExtraCommandReceivesArgs(t *testing.T) {
	cs := NewCommands[counter]()
	cs.Add(NewExtraCommand[counter]("!echo", func(_ context.Context, ev nostr.Event, s *counter, args string) (*nostr.UnsignedEvent, error) {
		s.args = append(s.args, args)
		return nil, nil
	}))

	c, rest, ok := cs.Match("!echo   hello world  ")
	if !ok || !c.TakesArgs() {
		t.Fatalf("Match = %v, takes args %v", ok, c.TakesArgs())
	}
	var s counter
	if _, err := c.invoke(context.Background(), nostr.Event{}, &s, rest); err != nil {
		t.Fatal(err)
	}
	if len(s.args) != 1 || s.args[0] != "hello world" {
		t.Errorf("args = %q", s.args)
	}
}

func TestAddRejectsIncompleteCommands(t *testing.T) {
	cs := NewCommands[counter]()
	if err := cs.Add(countCommand("")); err == nil {
		t.Error("empty trigger accepted")
	}
	if err := cs.Add(NewCommand[counter]("x", nil)); err == nil {
		t.Error("nil handler accepted")
	}
	if err := cs.Add(NewExtraCommand[counter]("x", nil)); err == nil {
		t.Error("nil extra handler accepted")
	}
	if len(cs.List()) != 0 {
		t.Errorf("table has %d commands", len(cs.List()))
	}
}

func TestHelpListsCommands(t *testing.T) {
	cs := NewCommands[counter]()
	cs.Add(countCommand("yes").Desc("Vote yes."))
	cs.Add(NewExtraCommand[counter]("!say", func(context.Context, nostr.Event, *counter, string) (*nostr.UnsignedEvent, error) {
		return nil, nil
	}).Desc("Repeat text."))
	cs.Add(HelpCommand(cs))

	c, _, ok := cs.Match("!help")
	if !ok {
		t.Fatal("!help not matched")
	}
	orig := nostr.Event{ID: strings.Repeat("a", 64), PubKey: strings.Repeat("b", 64)}
	reply, err := c.invoke(context.Background(), orig, &counter{}, "")
	if err != nil || reply == nil {
		t.Fatalf("help = %v, %v", reply, err)
	}
	want := "Available commands:\nyes - Vote yes.\n!say <text> - Repeat text.\n!help - Show this help."
	if reply.Content != want {
		t.Errorf("help text = %q, want %q", reply.Content, want)
	}
	if len(reply.Tags.Find("e")) != 1 || len(reply.Tags.Find("p")) != 1 {
		t.Errorf("help reply tags = %v", reply.Tags)
	}
}

func TestStateSerializesAccess(t *testing.T) {
	state := NewState(0)
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state.With(context.Background(), func(n *int) error {
				v := *n
				time.Sleep(time.Microsecond)
				*n = v + 1
				return nil
			})
		}()
	}
	wg.Wait()

	var got int
	state.With(context.Background(), func(n *int) error {
		got = *n
		return nil
	})
	if got != 100 {
		t.Errorf("count = %d, want 100", got)
	}
}

func TestStateWaitHonorsContext(t *testing.T) {
	state := NewState(0)
	held := make(chan struct{})
	release := make(chan struct{})
	go state.With(context.Background(), func(*int) error {
		close(held)
		<-release
		return nil
	})
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := state.With(ctx, func(*int) error {
		t.Error("fn ran while state was held")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("With = %v, want deadline exceeded", err)
	}
}

func TestStateReleasedAfterPanic(t *testing.T) {
	state := NewState(0)
	func() {
		defer func() { recover() }()
		state.With(context.Background(), func(*int) error { panic("boom") })
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := state.With(ctx, func(*int) error { return nil }); err != nil {
		t.Errorf("state still held after panic: %v", err)
	}
}

func TestMemoryDeduperEvicts(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduper(2)
	for _, id := range []string{"a", "b"} {
		if seen, _ := d.Seen(ctx, id); seen {
			t.Errorf("%s seen on first sight", id)
		}
	}
	if seen, _ := d.Seen(ctx, "a"); !seen {
		t.Error("a not remembered")
	}
	d.Seen(ctx, "c") // evicts a
	if seen, _ := d.Seen(ctx, "a"); seen {
		t.Error("a survived eviction")
	}
}

func TestMemoryDeduperForget(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduper(2)
	d.Seen(ctx, "a")
	if err := d.Forget(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if seen, _ := d.Seen(ctx, "a"); seen {
		t.Error("a still seen after Forget")
	}
	d.Seen(ctx, "b")
	d.Seen(ctx, "c") // evicts a
	if seen, _ := d.Seen(ctx, "b"); !seen {
		t.Error("b evicted too early")
	}
}
