package pool

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"relaypool.dev/internal/log"
	"relaypool.dev/pkg/relay"
	"relaypool.dev/pkg/wire"
)

// dedupURLs turns a possibly-duplicated URL slice into an ordered, deduped
// one, preserving first occurrence order so error messages stay stable.
func dedupURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// resolveTargets applies the fan-out engine's shared preconditions: the
// caller's URL set must be non-empty, the registry must be non-empty, and
// every requested URL must already be registered (all-or-nothing). When
// Options.SkipDisconnectedRelays is set, currently-disconnected relays are
// then dropped from the resolved set rather than left to fail individually.
func (p *Pool) resolveTargets(urls []string) (map[string]relay.Client, error) {
	urls = dedupURLs(urls)
	if len(urls) == 0 {
		return nil, errNoRelaysSpecified()
	}
	if p.registry.Len() == 0 {
		return nil, errNoRelays()
	}
	targets, err := p.registry.Resolve(urls)
	if err != nil {
		return nil, err
	}
	if p.opts.SkipDisconnectedRelays() {
		for url, client := range targets {
			if client.Status() != relay.Connected {
				delete(targets, url)
			}
		}
	}
	return targets, nil
}

// awaitConnection blocks, when Options.WaitForConnection is set, until
// client reports itself connected or Options.Timeout elapses, so a
// fan-out dispatch doesn't race a relay that is mid-connect. It is a no-op
// when the option is disabled.
func (p *Pool) awaitConnection(ctx context.Context, client relay.Client) error {
	if !p.opts.WaitForConnection() {
		return nil
	}
	return client.WaitForConnection(ctx, p.opts.Timeout())
}

// boundSendCtx applies Options.SendTimeout to ctx if the caller didn't
// already set a deadline of their own, mirroring the same
// no-deadline-means-force-one convention WSClient.SendEvent uses locally.
func (p *Pool) boundSendCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.opts.SendTimeout())
}

// chunkFilters splits filters into groups of at most size, used by
// SubscribeWithId to keep each REQ envelope within Options.ReqFiltersChunkSize.
// size <= 0 disables chunking.
func chunkFilters(filters []*wire.Filter, size int) [][]*wire.Filter {
	if size <= 0 || len(filters) <= size {
		return [][]*wire.Filter{filters}
	}
	chunks := make([][]*wire.Filter, 0, (len(filters)+size-1)/size)
	for i := 0; i < len(filters); i += size {
		end := i + size
		if end > len(filters) {
			end = len(filters)
		}
		chunks = append(chunks, filters[i:end])
	}
	return chunks
}

// SendMsgTo queues an arbitrary raw message on every relay in urls. If any
// of the messages is itself an event being published (e.g. an EVENT
// envelope), callers should use SendEventTo instead so the event is
// persisted exactly once before dispatch, per the engine's contract.
func (p *Pool) SendMsgTo(ctx context.Context, urls []string, msgs [][]byte) (*Outcome[struct{}], error) {
	if p.isShutdown() {
		return nil, errShutdown()
	}
	targets, err := p.resolveTargets(urls)
	if err != nil {
		return nil, err
	}

	outcome := NewOutcome(struct{}{})
	var mu sync.Mutex
	var wg sync.WaitGroup
	for url, client := range targets {
		send := func(url string, client relay.Client) error {
			if err := p.awaitConnection(ctx, client); err != nil {
				return err
			}
			sendCtx, cancel := p.boundSendCtx(ctx)
			defer cancel()
			return client.BatchMsg(sendCtx, msgs)
		}

		if !p.opts.WaitForSend() {
			// Fire-and-forget: the relay is counted dispatched immediately;
			// a later write failure is only logged, since the Outcome this
			// call returns has already been handed back to the caller.
			outcome.Ok(url)
			go func(url string, client relay.Client) {
				if err := send(url, client); err != nil {
					log.D.F("{%s} fire-and-forget send failed: %v", url, err)
				}
			}(url, client)
			continue
		}

		wg.Add(1)
		go func(url string, client relay.Client) {
			defer wg.Done()
			err := send(url, client)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcome.Err(url, err)
			} else {
				outcome.Ok(url)
			}
		}(url, client)
	}
	wg.Wait()

	if outcome.IsEmpty() {
		return outcome, errFailed("all relays rejected the message")
	}
	return outcome, nil
}

// SendEventTo persists ev to the EventStore exactly once, then publishes it
// to every relay in urls (normally the WRITE subset). A store failure
// aborts the whole call before any relay is contacted, as does an event
// whose id doesn't meet Options.Difficulty's NIP-13 proof-of-work floor.
func (p *Pool) SendEventTo(ctx context.Context, urls []string, ev *wire.Event) (*Outcome[wire.Id], error) {
	if p.isShutdown() {
		return nil, errShutdown()
	}
	targets, err := p.resolveTargets(urls)
	if err != nil {
		return nil, err
	}

	if want := p.opts.Difficulty(); want > 0 {
		if got := wire.CountLeadingZeroBits(ev.ID); got < int(want) {
			return nil, errRelay(fmt.Errorf("event %s: insufficient proof-of-work: have %d bits, need %d", ev.ID, got, want))
		}
	}

	if err = p.store.SaveEvent(ctx, ev); err != nil {
		return nil, errStore(err)
	}

	outcome := NewOutcome(ev.ID)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for url, client := range targets {
		wg.Add(1)
		go func(url string, client relay.Client) {
			defer wg.Done()
			var err error
			if connErr := p.awaitConnection(ctx, client); connErr != nil {
				err = connErr
			} else {
				sendCtx, cancel := p.boundSendCtx(ctx)
				defer cancel()
				if p.opts.WaitForOk() {
					_, err = client.SendEvent(sendCtx, ev)
				} else {
					env := wire.EventEnvelope{Event: ev}
					b, marshalErr := env.MarshalJSON()
					if marshalErr != nil {
						err = marshalErr
					} else {
						err = client.BatchMsg(sendCtx, [][]byte{b})
					}
				}
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcome.Err(url, err)
			} else {
				outcome.Ok(url)
			}
		}(url, client)
	}
	wg.Wait()

	if outcome.IsEmpty() {
		return outcome, errFailed("all relays rejected the event")
	}
	return outcome, nil
}

// SubscribeWithId installs filters under id in the SubscriptionRegistry and
// issues REQ to every relay in urls (normally the READ subset). Filter sets
// larger than Options.ReqFiltersChunkSize are split across multiple REQs
// sharing id's prefix. When Options.WaitForSubscription is set, a relay
// only counts as successful once it reports EOSE on the subscription's
// primary id (bounded by Options.Timeout).
func (p *Pool) SubscribeWithId(ctx context.Context, urls []string, id wire.SubscriptionId, filters []*wire.Filter) (*Outcome[struct{}], error) {
	if p.isShutdown() {
		return nil, errShutdown()
	}
	targets, err := p.resolveTargets(urls)
	if err != nil {
		return nil, err
	}

	p.subscriptions.Save(id, filters)
	chunks := chunkFilters(filters, p.opts.ReqFiltersChunkSize())

	outcome := NewOutcome(struct{}{})
	var mu sync.Mutex
	var wg sync.WaitGroup
	for url, client := range targets {
		wg.Add(1)
		go func(url string, client relay.Client) {
			defer wg.Done()

			var dispatchErr error
			if dispatchErr = p.awaitConnection(ctx, client); dispatchErr == nil {
				for i, chunk := range chunks {
					subID := id
					if i > 0 {
						subID = wire.SubscriptionId(string(id) + "-" + strconv.Itoa(i))
					}
					if dispatchErr = client.SubscribeWithId(ctx, subID, chunk, relay.SubscriptionOptions{}); dispatchErr != nil {
						break
					}
				}
			}

			if dispatchErr == nil && p.opts.WaitForSubscription() {
				dispatchErr = p.awaitEose(ctx, url, id, p.opts.Timeout())
			}

			mu.Lock()
			defer mu.Unlock()
			if dispatchErr != nil {
				outcome.Err(url, dispatchErr)
			} else {
				outcome.Ok(url)
			}
		}(url, client)
	}
	wg.Wait()

	if outcome.IsEmpty() {
		return outcome, errFailed("all relays rejected the subscription")
	}
	return outcome, nil
}

// awaitEose blocks on the notification bus until url reports EOSE for id,
// ctx is cancelled, or timeout elapses.
func (p *Pool) awaitEose(ctx context.Context, url string, id wire.SubscriptionId, timeout time.Duration) error {
	ch, unsubscribe := p.bus.Subscribe()
	defer unsubscribe()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case n := <-ch:
			if n.Kind != NotifyMessage || n.RelayURL != url {
				continue
			}
			env, err := wire.ParseServerMessage(n.Raw)
			if err != nil {
				continue
			}
			if eose, ok := env.(*wire.EoseEnvelope); ok && eose.SubscriptionId == id {
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("relay %s: timed out waiting for EOSE on %s", url, id)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// UnsubscribeFrom closes id on every relay in urls without touching the
// SubscriptionRegistry entry — use Unsubscribe to also forget it pool-wide.
func (p *Pool) UnsubscribeFrom(ctx context.Context, urls []string, id wire.SubscriptionId) (*Outcome[struct{}], error) {
	if p.isShutdown() {
		return nil, errShutdown()
	}
	targets, err := p.resolveTargets(urls)
	if err != nil {
		return nil, err
	}

	outcome := NewOutcome(struct{}{})
	var mu sync.Mutex
	var wg sync.WaitGroup
	for url, client := range targets {
		wg.Add(1)
		go func(url string, client relay.Client) {
			defer wg.Done()
			err := client.Unsubscribe(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcome.Err(url, err)
			} else {
				outcome.Ok(url)
			}
		}(url, client)
	}
	wg.Wait()

	if outcome.IsEmpty() {
		return outcome, errFailed("all relays rejected the unsubscribe")
	}
	return outcome, nil
}

// Unsubscribe closes id across every currently registered relay and removes
// it from the SubscriptionRegistry.
func (p *Pool) Unsubscribe(ctx context.Context, id wire.SubscriptionId) (*Outcome[struct{}], error) {
	outcome, err := p.UnsubscribeFrom(ctx, p.registry.URLs(), id)
	p.subscriptions.Remove(id)
	return outcome, err
}

// UnsubscribeAll closes every known subscription on every currently
// registered relay and clears the SubscriptionRegistry.
func (p *Pool) UnsubscribeAll(ctx context.Context) (*Outcome[struct{}], error) {
	if p.isShutdown() {
		return nil, errShutdown()
	}
	targets := p.registry.Snapshot()
	if len(targets) == 0 {
		return nil, errNoRelays()
	}

	outcome := NewOutcome(struct{}{})
	var mu sync.Mutex
	var wg sync.WaitGroup
	for url, client := range targets {
		wg.Add(1)
		go func(url string, client relay.Client) {
			defer wg.Done()
			err := client.UnsubscribeAll(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcome.Err(url, err)
			} else {
				outcome.Ok(url)
			}
		}(url, client)
	}
	wg.Wait()
	p.subscriptions.RemoveAll()

	if outcome.IsEmpty() {
		return outcome, errFailed("all relays rejected unsubscribe-all")
	}
	return outcome, nil
}

// readWriteUnion returns the union of the READ-flagged and WRITE-flagged
// subsets of the registry, used as sync's default target set.
func (p *Pool) readWriteUnion() []string {
	var urls []string
	for url, client := range p.registry.Snapshot() {
		if client.Flags().Load().Any(relay.Read | relay.Write) {
			urls = append(urls, url)
		}
	}
	return urls
}

// readSubset returns every currently READ-flagged relay URL.
func (p *Pool) readSubset() []string {
	var urls []string
	for url, client := range p.registry.Snapshot() {
		if client.Flags().Load().Has(relay.Read) {
			urls = append(urls, url)
		}
	}
	return urls
}

// writeSubset returns every currently WRITE-flagged relay URL.
func (p *Pool) writeSubset() []string {
	var urls []string
	for url, client := range p.registry.Snapshot() {
		if client.Flags().Load().Has(relay.Write) {
			urls = append(urls, url)
		}
	}
	return urls
}

// SendEvent publishes ev to the WRITE subset of the registry.
func (p *Pool) SendEvent(ctx context.Context, ev *wire.Event) (*Outcome[wire.Id], error) {
	urls := p.writeSubset()
	if len(urls) == 0 {
		return nil, errNoRelaysSpecified()
	}
	return p.SendEventTo(ctx, urls, ev)
}

// Subscribe installs filters on the READ subset of the registry under a
// freshly generated subscription id.
func (p *Pool) Subscribe(ctx context.Context, filters []*wire.Filter) (wire.SubscriptionId, *Outcome[struct{}], error) {
	id := wire.NewSubscriptionId("sub")
	urls := p.readSubset()
	if len(urls) == 0 {
		return id, nil, errNoRelaysSpecified()
	}
	outcome, err := p.SubscribeWithId(ctx, urls, id, filters)
	return id, outcome, err
}
