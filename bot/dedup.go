package bot

import (
	"context"
	"sync"
)

// Deduper remembers event ids. Seen reports whether id was already recorded
// and records it if not. Forget drops a recorded id so a later copy of the
// event is handled again.
type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// MemoryDeduper keeps the most recent ids in memory, evicting the oldest.
type MemoryDeduper struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	next  int
}

func NewMemoryDeduper(capacity int) *MemoryDeduper {
	if capacity <= 0 {
		capacity = 4096
	}
	return &MemoryDeduper{
		ids:   make(map[string]struct{}, capacity),
		order: make([]string, capacity),
	}
}

func (d *MemoryDeduper) Seen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.ids[id]; ok {
		return true, nil
	}
	if evicted := d.order[d.next]; evicted != "" {
		delete(d.ids, evicted)
	}
	d.order[d.next] = id
	d.next = (d.next + 1) % len(d.order)
	d.ids[id] = struct{}{}
	return false, nil
}

func (d *MemoryDeduper) Forget(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.ids[id]; !ok {
		return nil
	}
	delete(d.ids, id)
	for i, v := range d.order {
		if v == id {
			d.order[i] = ""
			break
		}
	}
	return nil
}
