package pool

import (
	"context"
	"sync"

	"relaypool.dev/pkg/relay"
	"relaypool.dev/pkg/wire"
)

// SyncTargeted runs a negentropy reconciliation pass against targets for
// each of filters: it asks the EventStore once per filter for local items,
// then invokes every relay's SyncMulti with the whole filter -> items map,
// merging results into one aggregate Reconciliation wrapped in an Outcome. If no relay reports
// success the call fails with KindNegentropyReconciliationFailed; otherwise
// the merged result is returned even if some relays failed.
func (p *Pool) SyncTargeted(ctx context.Context, targets []string, filters []*wire.Filter, opts relay.SyncOptions) (*Outcome[*wire.Reconciliation], error) {
	if p.isShutdown() {
		return nil, errShutdown()
	}
	clients, err := p.resolveTargets(targets)
	if err != nil {
		return nil, err
	}

	items := make(map[*wire.Filter][]wire.NegentropyItem, len(filters))
	for _, f := range filters {
		localItems, err := p.store.NegentropyItems(ctx, f)
		if err != nil {
			return nil, errStore(err)
		}
		items[f] = localItems
	}

	aggregate := wire.NewReconciliation()
	outcome := NewOutcome(aggregate)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for url, client := range clients {
		wg.Add(1)
		go func(url string, client relay.Client) {
			defer wg.Done()
			if err := p.awaitConnection(ctx, client); err != nil {
				mu.Lock()
				outcome.Err(url, err)
				mu.Unlock()
				return
			}
			// each relay gets the full local item set independently —
			// no cross-relay dedup before re-issuing per-relay sends.
			perRelayItems := make(map[*wire.Filter][]wire.NegentropyItem, len(items))
			for f, it := range items {
				perRelayItems[f.Clone()] = it
			}
			result, err := client.SyncMulti(ctx, perRelayItems, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcome.Err(url, err)
				return
			}
			aggregate.Merge(result)
			outcome.Ok(url)
		}(url, client)
	}
	wg.Wait()

	if outcome.IsEmpty() {
		return outcome, errNegentropyReconciliationFailed("no relay completed reconciliation")
	}
	return outcome, nil
}

// SyncWith is a convenience wrapper over SyncTargeted using the
// READ ∪ WRITE subset as its default target set, per §4.3's sync tie-break.
func (p *Pool) SyncWith(ctx context.Context, filters []*wire.Filter, opts relay.SyncOptions) (*Outcome[*wire.Reconciliation], error) {
	urls := p.readWriteUnion()
	if len(urls) == 0 {
		return nil, errNoRelaysSpecified()
	}
	return p.SyncTargeted(ctx, urls, filters, opts)
}
