package store

import (
	"context"
	"sync"
)

// Fanout delivers changes to every active Watch call of an in-process
// store.
type Fanout struct {
	mu   sync.Mutex
	seq  uint64
	list map[uint64]func(Change)
}

func NewFanout() *Fanout {
	return &Fanout{list: make(map[uint64]func(Change))}
}

func (f *Fanout) Watch(ctx context.Context, fn func(Change)) error {
	f.mu.Lock()
	f.seq++
	key := f.seq
	f.list[key] = fn
	f.mu.Unlock()
	<-ctx.Done()
	f.mu.Lock()
	delete(f.list, key)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *Fanout) Send(c Change) {
	f.mu.Lock()
	subs := make([]func(Change), 0, len(f.list))
	for _, fn := range f.list {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(c)
	}
}

func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.list)
}
