package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nicebartender/nostrbot/nostr"
)

// Handler answers a command. A nil reply means nothing is sent back.
type Handler[S any] func(ctx context.Context, ev nostr.Event, state *S) (*nostr.UnsignedEvent, error)

// ExtraHandler is a Handler that also receives the trimmed text following
// the trigger.
type ExtraHandler[S any] func(ctx context.Context, ev nostr.Event, state *S, args string) (*nostr.UnsignedEvent, error)

type commandKind int

const (
	kindBasic commandKind = iota
	kindExtra
)

// Command binds a trigger to exactly one of the two handler forms.
type Command[S any] struct {
	Trigger     string
	Description string

	kind  commandKind
	basic Handler[S]
	extra ExtraHandler[S]
}

func NewCommand[S any](trigger string, h Handler[S]) Command[S] {
	return Command[S]{Trigger: trigger, kind: kindBasic, basic: h}
}

func NewExtraCommand[S any](trigger string, h ExtraHandler[S]) Command[S] {
	return Command[S]{Trigger: trigger, kind: kindExtra, extra: h}
}

// Desc returns a copy of c with a help description.
func (c Command[S]) Desc(description string) Command[S] {
	c.Description = description
	return c
}

func (c Command[S]) TakesArgs() bool {
	return c.kind == kindExtra
}

func (c Command[S]) invoke(ctx context.Context, ev nostr.Event, state *S, args string) (*nostr.UnsignedEvent, error) {
	switch c.kind {
	case kindExtra:
		return c.extra(ctx, ev, state, args)
	default:
		return c.basic(ctx, ev, state)
	}
}

// Commands is the ordered command table. Earlier registrations win.
type Commands[S any] struct {
	mu   sync.RWMutex
	list []Command[S]
}

func NewCommands[S any]() *Commands[S] {
	return &Commands[S]{}
}

func (cs *Commands[S]) Add(c Command[S]) error {
	if c.Trigger == "" {
		return fmt.Errorf("command with empty trigger")
	}
	if (c.kind == kindBasic && c.basic == nil) || (c.kind == kindExtra && c.extra == nil) {
		return fmt.Errorf("command %q has no handler", c.Trigger)
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.list = append(cs.list, c)
	return nil
}

// Match returns the first command whose trigger prefixes content, and the
// trimmed remainder of content after the trigger.
func (cs *Commands[S]) Match(content string) (Command[S], string, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	for _, c := range cs.list {
		if rest, ok := strings.CutPrefix(content, c.Trigger); ok {
			return c, strings.TrimSpace(rest), true
		}
	}
	return Command[S]{}, "", false
}

func (cs *Commands[S]) List() []Command[S] {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]Command[S], len(cs.list))
	copy(out, cs.list)
	return out
}

const HelpTrigger = "!help"

// HelpCommand lists every registered command with its description.
func HelpCommand[S any](cs *Commands[S]) Command[S] {
	return NewExtraCommand[S](HelpTrigger, func(_ context.Context, ev nostr.Event, _ *S, _ string) (*nostr.UnsignedEvent, error) {
		reply := nostr.BuildReply(ev, helpText(cs.List()))
		return &reply, nil
	}).Desc("Show this help.")
}

func helpText[S any](cmds []Command[S]) string {
	var b strings.Builder
	b.WriteString("Available commands:")
	for _, c := range cmds {
		b.WriteString("\n")
		b.WriteString(c.Trigger)
		if c.TakesArgs() && c.Trigger != HelpTrigger {
			b.WriteString(" <text>")
		}
		if c.Description != "" {
			b.WriteString(" - ")
			b.WriteString(c.Description)
		}
	}
	return b.String()
}
