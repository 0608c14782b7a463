package pool

import (
	"sync"

	"relaypool.dev/pkg/relay"
	"relaypool.dev/pkg/wire"
)

// RelayRegistry is the pool's URL -> relay.Client map. Writers never hold
// any other lock while holding this one, avoiding the lock-order cycle the
// spec calls out between the registry and subscription locks.
type RelayRegistry struct {
	mu     sync.RWMutex
	relays map[string]relay.Client
}

func NewRelayRegistry() *RelayRegistry {
	return &RelayRegistry{relays: make(map[string]relay.Client)}
}

// Add inserts client under url if absent, reporting false (no side effect)
// if url was already present.
func (r *RelayRegistry) Add(url string, client relay.Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.relays[url]; ok {
		return false
	}
	r.relays[url] = client
	return true
}

// Get returns the client for url, if present.
func (r *RelayRegistry) Get(url string) (relay.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.relays[url]
	return c, ok
}

// Remove deletes url from the registry, returning the removed client if any.
func (r *RelayRegistry) Remove(url string) (relay.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.relays[url]
	if ok {
		delete(r.relays, url)
	}
	return c, ok
}

// Len returns the number of registered relays.
func (r *RelayRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.relays)
}

// URLs returns a snapshot of every registered URL.
func (r *RelayRegistry) URLs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	urls := make([]string, 0, len(r.relays))
	for u := range r.relays {
		urls = append(urls, u)
	}
	return urls
}

// Resolve maps a requested URL set to their clients, taking the read lock
// for the whole lookup. It returns RelayNotFound on the first URL missing
// from the registry, matching the fan-out engine's all-or-nothing
// precondition — no partial dispatch.
func (r *RelayRegistry) Resolve(urls []string) (map[string]relay.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]relay.Client, len(urls))
	for _, u := range urls {
		c, ok := r.relays[u]
		if !ok {
			return nil, errRelayNotFound(u)
		}
		out[u] = c
	}
	return out, nil
}

// Snapshot returns a shallow copy of every URL -> client pair currently
// registered, for callers (e.g. remove_all_relays) that need to iterate
// without holding the registry lock across their own work.
func (r *RelayRegistry) Snapshot() map[string]relay.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]relay.Client, len(r.relays))
	for u, c := range r.relays {
		out[u] = c
	}
	return out
}

// SubscriptionRegistry maps SubscriptionId -> filters, independent of which
// relays that subscription happens to be live on. Reads are far more
// frequent than writes (every new relay connection consults it to decide
// what to (re)install), hence the RWMutex.
type SubscriptionRegistry struct {
	mu   sync.RWMutex
	subs map[wire.SubscriptionId][]*wire.Filter
}

func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{subs: make(map[wire.SubscriptionId][]*wire.Filter)}
}

// Save overwrites (or creates) the filters for id.
func (s *SubscriptionRegistry) Save(id wire.SubscriptionId, filters []*wire.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[id] = filters
}

// Get returns the filters for id, if present.
func (s *SubscriptionRegistry) Get(id wire.SubscriptionId) ([]*wire.Filter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.subs[id]
	return f, ok
}

// Remove deletes id from the registry.
func (s *SubscriptionRegistry) Remove(id wire.SubscriptionId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// RemoveAll clears the registry entirely.
func (s *SubscriptionRegistry) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = make(map[wire.SubscriptionId][]*wire.Filter)
}

// Snapshot returns a copy of the whole SubscriptionId -> filters map, used
// when a newly added relay inherits the pool's current subscriptions.
func (s *SubscriptionRegistry) Snapshot() map[wire.SubscriptionId][]*wire.Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[wire.SubscriptionId][]*wire.Filter, len(s.subs))
	for id, f := range s.subs {
		out[id] = f
	}
	return out
}
