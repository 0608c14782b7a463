package relay

import "go.uber.org/atomic"

// Status is the connection lifecycle state of a single RelayClient.
type Status int32

const (
	// Initialized is the state a relay sits in before any connect attempt.
	Initialized Status = iota
	// Pending is set while a Connect/TryConnect call is in flight.
	Pending
	// Connected means the websocket handshake succeeded and the relay's
	// read/write pumps are running.
	Connected
	// Disconnected means a previously connected relay lost its connection;
	// it remains a candidate for a future reconnect attempt.
	Disconnected
	// Terminated means the relay was explicitly removed from the pool and
	// will not be reconnected.
	Terminated
)

func (s Status) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Pending:
		return "pending"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// CanConnect reports whether it makes sense to attempt a connection given
// the current status: not already connected/connecting, and not terminated.
func (s Status) CanConnect() bool {
	switch s {
	case Initialized, Disconnected:
		return true
	default:
		return false
	}
}

// AtomicStatus is a concurrency-safe Status cell.
type AtomicStatus struct {
	v atomic.Int32
}

// NewAtomicStatus returns an AtomicStatus initialized to Initialized.
func NewAtomicStatus() *AtomicStatus {
	a := &AtomicStatus{}
	a.v.Store(int32(Initialized))
	return a
}

func (a *AtomicStatus) Load() Status    { return Status(a.v.Load()) }
func (a *AtomicStatus) Store(s Status)  { a.v.Store(int32(s)) }
func (a *AtomicStatus) CanConnect() bool { return a.Load().CanConnect() }
