// Package store defines the EventStore contract the pool consumes for
// local persistence during reconciliation, plus a badger-backed
// implementation of it.
package store

import (
	"context"

	"relaypool.dev/pkg/wire"
)

// EventStore is the consumed contract: save an event, and answer
// reconciliation's "what do I have for this filter" question with the
// minimal (id, timestamp) summaries negentropy needs. The pool never
// derives an event's id or validates its signature — both are assumed
// already done by whatever produced the Event before it reaches SaveEvent.
type EventStore interface {
	SaveEvent(ctx context.Context, ev *wire.Event) error
	NegentropyItems(ctx context.Context, filter *wire.Filter) ([]wire.NegentropyItem, error)
}
