package relay

import "go.uber.org/atomic"

// ServiceFlags is a bitset of the roles a relay is currently trusted to
// perform within the pool. Flags are live-tunable: a relay demoted by
// PoolLifecycle (rather than hard-removed) has its flags cleared down to
// whatever is left, not its entry deleted from the registry.
type ServiceFlags uint8

const (
	// Read allows the relay to be selected as a source for subscribe/sync
	// operations.
	Read ServiceFlags = 1 << iota
	// Write allows the relay to be selected as a destination for
	// publish/send operations.
	Write
	// Ping keeps the relay in the periodic health-check rotation.
	Ping
	// Gossip marks a relay as discovered via NIP-65-style gossip rather
	// than configured directly; a non-forced removal of a gossip relay
	// demotes it (Read|Write|Discovery cleared) instead of removing it.
	Gossip
	// Discovery allows the relay to be used to discover other relays'
	// advertised relay lists.
	Discovery
)

// Has reports whether every bit in want is set in f.
func (f ServiceFlags) Has(want ServiceFlags) bool { return f&want == want }

// Any reports whether any bit in want is set in f.
func (f ServiceFlags) Any(want ServiceFlags) bool { return f&want != 0 }

func (f ServiceFlags) String() string {
	if f == 0 {
		return "none"
	}
	s := ""
	add := func(bit ServiceFlags, name string) {
		if f.Has(bit) {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	add(Read, "read")
	add(Write, "write")
	add(Ping, "ping")
	add(Gossip, "gossip")
	add(Discovery, "discovery")
	return s
}

// AtomicFlags is a concurrency-safe, live-tunable ServiceFlags cell.
type AtomicFlags struct {
	v atomic.Uint32
}

// NewAtomicFlags returns an AtomicFlags initialized to the given value.
func NewAtomicFlags(initial ServiceFlags) *AtomicFlags {
	a := &AtomicFlags{}
	a.v.Store(uint32(initial))
	return a
}

// Load returns the current flags.
func (a *AtomicFlags) Load() ServiceFlags { return ServiceFlags(a.v.Load()) }

// Store replaces the current flags.
func (a *AtomicFlags) Store(f ServiceFlags) { a.v.Store(uint32(f)) }

// Clear clears the given bits, leaving any others untouched. Used by
// PoolLifecycle to demote a Gossip relay (clear Read|Write|Discovery) rather
// than remove it outright.
func (a *AtomicFlags) Clear(bits ServiceFlags) {
	for {
		old := a.v.Load()
		next := old &^ uint32(bits)
		if a.v.CompareAndSwap(old, next) {
			return
		}
	}
}
