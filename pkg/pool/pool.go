// Package pool implements the Relay Pool: the orchestrator that owns a
// URL -> relay.Client registry, fans subscribe/publish/sync operations
// across a selected subset of it, aggregates per-relay outcomes, broadcasts
// notifications, and coordinates lifecycle under concurrent access.
package pool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"relaypool.dev/internal/chk"
	"relaypool.dev/internal/log"
	"relaypool.dev/pkg/relay"
	"relaypool.dev/pkg/store"
)

// Pool is the outer handle applications hold. Constructing one via New
// starts no background connections; callers add relays explicitly via
// AddRelay.
type Pool struct {
	registry      *RelayRegistry
	subscriptions *SubscriptionRegistry
	bus           *NotificationBus
	store         store.EventStore
	opts          *Options

	shutdown atomic.Bool

	refCount atomic.Int64
	once     sync.Once
}

// New constructs a Pool backed by the given EventStore. opts may be nil to
// accept DefaultOptions().
func New(eventStore store.EventStore, opts ...Option) *Pool {
	o := DefaultOptions()
	for _, opt := range opts {
		opt.ApplyPoolOption(o)
	}
	p := &Pool{
		registry:      NewRelayRegistry(),
		subscriptions: NewSubscriptionRegistry(),
		bus:           NewNotificationBus(o.NotificationChannelSize()),
		store:         eventStore,
		opts:          o,
	}
	p.refCount.Store(1)
	return p
}

func (p *Pool) isShutdown() bool { return p.shutdown.Load() }

// Notifications returns a new receiver on the pool's notification bus.
// Notifications published before this call are not replayed.
func (p *Pool) Notifications() (<-chan Notification, func()) {
	return p.bus.Subscribe()
}

// RelayURLs returns a snapshot of every URL currently in the registry.
func (p *Pool) RelayURLs() []string { return p.registry.URLs() }

// RelayInfo is a point-in-time snapshot of one registered relay's state.
type RelayInfo struct {
	URL    string
	Status relay.Status
	Flags  relay.ServiceFlags
}

// RelayStatuses returns a snapshot of status and flags for every registered
// relay, for callers (e.g. a status endpoint) that want to report pool state
// without reaching into the registry directly.
func (p *Pool) RelayStatuses() []RelayInfo {
	snap := p.registry.Snapshot()
	out := make([]RelayInfo, 0, len(snap))
	for url, client := range snap {
		out = append(out, RelayInfo{URL: url, Status: client.Status(), Flags: client.Flags().Load()})
	}
	return out
}

// Acquire increments the pool's external reference count, for callers
// sharing one Pool across multiple owners that each want shutdown-on-drop
// semantics to wait for all of them to release it. Release decrements it;
// when it reaches zero and ShutdownOnDrop is set, Shutdown runs exactly
// once in the background.
func (p *Pool) Acquire() { p.refCount.Add(1) }

// Release decrements the pool's reference count. See Acquire.
func (p *Pool) Release() {
	if p.refCount.Add(-1) > 0 {
		return
	}
	if !p.opts.ShutdownOnDrop() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	}()
}

// AddRelay registers url with the given initial service flags. It fails
// with KindShutdown if the pool is shut down, KindTooManyRelays if adding
// would exceed Options.MaxRelays, and returns (false, nil) idempotently if
// url is already registered. When inheritSubs is true, every filter
// currently in the SubscriptionRegistry is installed on the new client's
// local bookkeeping without transmitting a REQ — transmission happens on
// the client's first successful Connect.
func (p *Pool) AddRelay(url string, flags relay.ServiceFlags, inheritSubs bool, opts ...relay.Option) (bool, error) {
	if p.isShutdown() {
		return false, errShutdown()
	}
	if limit := p.opts.MaxRelays(); limit > 0 && p.registry.Len() >= limit {
		return false, errTooManyRelays(limit)
	}

	client := relay.NewWSClient(url, opts...)
	client.Flags().Store(flags)
	if err := client.SetNotificationSender(relayNotificationSender{bus: p.bus}); chk.E(err) {
		return false, errRelay(err)
	}

	if !p.registry.Add(url, client) {
		return false, nil
	}

	if inheritSubs {
		for id, filters := range p.subscriptions.Snapshot() {
			_ = client.UpdateSubscription(id, filters, false)
		}
	}

	return true, nil
}

// RemoveRelay removes url from the registry. If force is false and the
// relay carries the Gossip flag, it is demoted instead: Read|Write|Discovery
// are cleared but the entry (and its Gossip flag) is retained. Otherwise
// the client is disconnected and dropped from the registry entirely.
func (p *Pool) RemoveRelay(url string, force bool) error {
	client, ok := p.registry.Get(url)
	if !ok {
		return errRelayNotFound(url)
	}
	if !force && client.Flags().Load().Has(relay.Gossip) {
		client.Flags().Clear(relay.Read | relay.Write | relay.Discovery)
		return nil
	}
	_, _ = p.registry.Remove(url)
	return client.Disconnect()
}

// RemoveAllRelays applies RemoveRelay's rule to every currently registered
// relay, snapshotting the URL set under the registry's read lock first so
// concurrent AddRelay calls during the sweep are not a race.
func (p *Pool) RemoveAllRelays(force bool) {
	for url := range p.registry.Snapshot() {
		_ = p.RemoveRelay(url, force)
	}
}

// Connect dials every currently registered relay concurrently.
func (p *Pool) Connect(ctx context.Context) *Outcome[struct{}] {
	return p.connectAll(ctx, false)
}

// TryConnect is like Connect but skips any relay whose status already
// reports !CanConnect(), avoiding a redundant dial against an
// already-connected or already-connecting relay.
func (p *Pool) TryConnect(ctx context.Context, timeout time.Duration) *Outcome[struct{}] {
	return p.connectAllWithTimeout(ctx, timeout, true)
}

func (p *Pool) connectAll(ctx context.Context, gateOnCanConnect bool) *Outcome[struct{}] {
	return p.connectAllWithTimeout(ctx, p.opts.Timeout(), gateOnCanConnect)
}

func (p *Pool) connectAllWithTimeout(ctx context.Context, timeout time.Duration, gateOnCanConnect bool) *Outcome[struct{}] {
	outcome := NewOutcome(struct{}{})
	var mu sync.Mutex
	var wg sync.WaitGroup
	for url, client := range p.registry.Snapshot() {
		if gateOnCanConnect && !client.Status().CanConnect() {
			continue
		}
		wg.Add(1)
		go func(url string, client relay.Client) {
			defer wg.Done()
			err := client.TryConnect(ctx, timeout)
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
	return outcome
}

// Disconnect disconnects every currently registered relay.
func (p *Pool) Disconnect() *Outcome[struct{}] {
	outcome := NewOutcome(struct{}{})
	var mu sync.Mutex
	var wg sync.WaitGroup
	for url, client := range p.registry.Snapshot() {
		wg.Add(1)
		go func(url string, client relay.Client) {
			defer wg.Done()
			err := client.Disconnect()
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
	return outcome
}

// Shutdown sets the shutdown flag, force-removes every relay, and publishes
// a terminal Shutdown notification exactly once. It is idempotent and safe
// to call concurrently with AddRelay/RemoveRelay: an AddRelay that checks
// the flag after it is set fails with KindShutdown, and a RemoveRelay for a
// relay the sweep already removed reports KindRelayNotFound.
func (p *Pool) Shutdown(ctx context.Context) error {
	var published bool
	p.once.Do(func() {
		p.shutdown.Store(true)
		p.RemoveAllRelays(true)
		p.bus.Publish(Notification{Kind: NotifyShutdown})
		published = true
	})
	if published {
		log.I.Ln("pool shutdown complete")
	}
	return nil
}
