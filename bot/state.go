package bot

import "context"

// State guards bot data so that at most one caller touches it at a time.
// The pointer handed to fn must not be kept after fn returns.
type State[S any] struct {
	sem   chan struct{}
	value S
}

func NewState[S any](initial S) *State[S] {
	return &State[S]{
		sem:   make(chan struct{}, 1),
		value: initial,
	}
}

// With waits for exclusive access, runs fn, and releases access even if fn
// panics. It gives up early if ctx ends while waiting.
func (s *State[S]) With(ctx context.Context, fn func(*S) error) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()
	return fn(&s.value)
}
