package pool

import (
	"context"
	"sync"

	"relaypool.dev/pkg/wire"
)

// fakeStore is an in-memory store.EventStore used across pool tests.
type fakeStore struct {
	mu     sync.Mutex
	events map[wire.Id]*wire.Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: make(map[wire.Id]*wire.Event)}
}

func (s *fakeStore) SaveEvent(ctx context.Context, ev *wire.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev
	return nil
}

func (s *fakeStore) NegentropyItems(ctx context.Context, filter *wire.Filter) ([]wire.NegentropyItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []wire.NegentropyItem
	for _, ev := range s.events {
		if filter.Matches(ev) {
			items = append(items, wire.NegentropyItem{Id: ev.ID, CreatedAt: ev.CreatedAt})
		}
	}
	return items, nil
}
