package pool

import (
	"time"

	"go.uber.org/atomic"
)

// Options holds the pool's tunables. The boolean/integer fields are backed
// by atomics so they stay live-tunable after the pool is built, matching
// the teacher's penalty-box/relay-options pattern of mutable pool state.
type Options struct {
	maxRelays              atomic.Int64 // 0 means unlimited
	notifChannelSize       atomic.Int64
	waitForConnection      atomic.Bool
	waitForSend            atomic.Bool
	waitForOk              atomic.Bool
	waitForSubscription    atomic.Bool
	difficulty             atomic.Int64
	reqFiltersChunkSize    atomic.Int64
	skipDisconnectedRelays atomic.Bool
	timeout                atomic.Duration
	sendTimeout            atomic.Duration
	shutdownOnDrop         atomic.Bool
}

// DefaultOptions returns the pool's baked-in defaults: no relay cap, a
// 4096-slot notification ring buffer, wait-for-ok but not wait-for-send,
// a 10s default timeout, and shutdown-on-drop enabled.
func DefaultOptions() *Options {
	o := &Options{}
	o.notifChannelSize.Store(4096)
	o.waitForConnection.Store(true)
	o.waitForOk.Store(true)
	o.reqFiltersChunkSize.Store(10)
	o.timeout.Store(10 * time.Second)
	o.sendTimeout.Store(10 * time.Second)
	o.shutdownOnDrop.Store(true)
	return o
}

// Option configures an Options at pool construction time.
type Option interface {
	ApplyPoolOption(*Options)
}

type withMaxRelays int

func (w withMaxRelays) ApplyPoolOption(o *Options) { o.maxRelays.Store(int64(w)) }

// WithMaxRelays caps the number of relays add_relay will accept.
func WithMaxRelays(n int) Option { return withMaxRelays(n) }

type withNotificationChannelSize int

func (w withNotificationChannelSize) ApplyPoolOption(o *Options) {
	o.notifChannelSize.Store(int64(w))
}

// WithNotificationChannelSize sets the notification bus's ring buffer capacity.
func WithNotificationChannelSize(n int) Option { return withNotificationChannelSize(n) }

type withTimeout time.Duration

func (w withTimeout) ApplyPoolOption(o *Options) { o.timeout.Store(time.Duration(w)) }

// WithTimeout sets the default per-relay timeout for calls that don't
// specify their own.
func WithTimeout(d time.Duration) Option { return withTimeout(d) }

type withSendTimeout time.Duration

func (w withSendTimeout) ApplyPoolOption(o *Options) { o.sendTimeout.Store(time.Duration(w)) }

// WithSendTimeout sets the default publish-await-OK timeout.
func WithSendTimeout(d time.Duration) Option { return withSendTimeout(d) }

type withSkipDisconnectedRelays bool

func (w withSkipDisconnectedRelays) ApplyPoolOption(o *Options) {
	o.skipDisconnectedRelays.Store(bool(w))
}

// WithSkipDisconnectedRelays, when true, excludes currently-disconnected
// relays from fan-out target sets instead of letting them fail individually.
func WithSkipDisconnectedRelays(v bool) Option { return withSkipDisconnectedRelays(v) }

type withShutdownOnDrop bool

func (w withShutdownOnDrop) ApplyPoolOption(o *Options) { o.shutdownOnDrop.Store(bool(w)) }

// WithShutdownOnDrop controls whether the pool's background reference
// tracker shuts it down once the last external handle is released.
func WithShutdownOnDrop(v bool) Option { return withShutdownOnDrop(v) }

type withWaitForConnection bool

func (w withWaitForConnection) ApplyPoolOption(o *Options) { o.waitForConnection.Store(bool(w)) }

// WithWaitForConnection, when true (the default), makes every fan-out
// dispatch (publish, subscribe, message send) wait for a target relay's
// connection to come up before issuing the operation, instead of failing
// fast against a relay that is mid-connect or disconnected.
func WithWaitForConnection(v bool) Option { return withWaitForConnection(v) }

type withWaitForSend bool

func (w withWaitForSend) ApplyPoolOption(o *Options) { o.waitForSend.Store(bool(w)) }

// WithWaitForSend, when false, makes SendMsgTo dispatch fire-and-forget:
// the call returns as soon as every target relay's write has been
// launched, without waiting for the write to actually complete. This
// fire-and-forget mode is the default (false); when true, SendMsgTo waits
// for every relay's write before returning.
func WithWaitForSend(v bool) Option { return withWaitForSend(v) }

type withWaitForOk bool

func (w withWaitForOk) ApplyPoolOption(o *Options) { o.waitForOk.Store(bool(w)) }

// WithWaitForOk, when true (the default), makes SendEventTo await each
// relay's NIP-01 OK response before counting it a success. When false,
// a relay is counted successful as soon as the EVENT frame is written,
// without waiting for acknowledgement.
func WithWaitForOk(v bool) Option { return withWaitForOk(v) }

type withWaitForSubscription bool

func (w withWaitForSubscription) ApplyPoolOption(o *Options) { o.waitForSubscription.Store(bool(w)) }

// WithWaitForSubscription, when true, makes SubscribeWithId wait (bounded
// by Timeout) for each target relay's EOSE before counting it a success,
// instead of succeeding as soon as the REQ is written.
func WithWaitForSubscription(v bool) Option { return withWaitForSubscription(v) }

type withDifficulty uint8

func (w withDifficulty) ApplyPoolOption(o *Options) { o.difficulty.Store(int64(w)) }

// WithDifficulty sets the minimum NIP-13 proof-of-work difficulty (leading
// zero bits of an event id) SendEventTo requires before persisting and
// dispatching an event. Zero (the default) requires none.
func WithDifficulty(d uint8) Option { return withDifficulty(d) }

type withReqFiltersChunkSize int

func (w withReqFiltersChunkSize) ApplyPoolOption(o *Options) {
	o.reqFiltersChunkSize.Store(int64(w))
}

// WithReqFiltersChunkSize caps how many filters SubscribeWithId packs into
// a single REQ envelope; a subscription whose filter set exceeds this is
// split across multiple REQs: the first uses the subscription id itself,
// later ones use id-1, id-2, and so on.
func WithReqFiltersChunkSize(n int) Option { return withReqFiltersChunkSize(n) }

func (o *Options) MaxRelays() int               { return int(o.maxRelays.Load()) }
func (o *Options) NotificationChannelSize() int { return int(o.notifChannelSize.Load()) }
func (o *Options) Timeout() time.Duration       { return o.timeout.Load() }
func (o *Options) SendTimeout() time.Duration   { return o.sendTimeout.Load() }
func (o *Options) SkipDisconnectedRelays() bool { return o.skipDisconnectedRelays.Load() }
func (o *Options) ShutdownOnDrop() bool         { return o.shutdownOnDrop.Load() }
func (o *Options) WaitForConnection() bool      { return o.waitForConnection.Load() }
func (o *Options) WaitForSend() bool            { return o.waitForSend.Load() }
func (o *Options) WaitForOk() bool              { return o.waitForOk.Load() }
func (o *Options) WaitForSubscription() bool    { return o.waitForSubscription.Load() }
func (o *Options) Difficulty() uint8            { return uint8(o.difficulty.Load()) }
func (o *Options) ReqFiltersChunkSize() int     { return int(o.reqFiltersChunkSize.Load()) }
