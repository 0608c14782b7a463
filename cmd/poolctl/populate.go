package main

import (
	"context"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"relaypool.dev/pkg/store"
	"relaypool.dev/pkg/wire"
)

// populateFromFile loads a msgpack-encoded snapshot (a plain array of
// wire.Event) from path and saves each one to es, for seeding a local
// store from a previously exported dataset without going through any
// relay at all.
func populateFromFile(ctx context.Context, es *store.BadgerStore, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var events []*wire.Event
	if err = msgpack.Unmarshal(b, &events); err != nil {
		return 0, err
	}
	for _, ev := range events {
		if err = es.SaveEvent(ctx, ev); err != nil {
			return 0, err
		}
	}
	return len(events), nil
}
