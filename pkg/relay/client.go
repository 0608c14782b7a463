// Package relay defines the per-relay client contract the pool dispatches
// fan-out operations against, plus a coder/websocket-backed implementation
// of it.
package relay

import (
	"context"
	"time"

	"relaypool.dev/pkg/wire"
)

// ExitPolicy governs when a streaming fetch/subscribe call considers itself
// done collecting events from a relay.
type ExitPolicy int

const (
	// ExitOnEOSE stops as soon as the relay reports end-of-stored-events.
	ExitOnEOSE ExitPolicy = iota
	// WaitDurationAfterEOSE keeps collecting for a fixed grace period past EOSE.
	WaitDurationAfterEOSE
	// WaitForEvents stops once a target event count has been collected,
	// regardless of EOSE.
	WaitForEvents
	// WaitForEventsOrEOSE stops at whichever of the above comes first.
	WaitForEventsOrEOSE
)

// FetchPolicy bundles an ExitPolicy with its parameters.
type FetchPolicy struct {
	Exit         ExitPolicy
	GracePeriod  time.Duration // used by WaitDurationAfterEOSE
	TargetEvents int           // used by WaitForEvents / WaitForEventsOrEOSE
}

// SyncOptions configures a negentropy reconciliation pass.
type SyncOptions struct {
	// Direction selects whether local items missing remotely are sent,
	// remote items missing locally are received, or both.
	Direction SyncDirection
	Timeout   time.Duration
}

// SyncDirection is which side of a reconciliation delta gets acted on.
type SyncDirection int

const (
	SyncBoth SyncDirection = iota
	SyncUp                 // only send what the remote is missing
	SyncDown               // only receive what we're missing
)

// SubscriptionOptions configures a single subscribe_with_id call.
type SubscriptionOptions struct {
	Label string
}

// NotificationSender is the narrow interface a RelayClient needs to publish
// notifications onto the pool's bus without importing the pool package
// (which would create an import cycle back into relay).
type NotificationSender interface {
	NotifyRelayStatusChange(url string, status Status)
	NotifyMessage(url string, raw []byte)
	NotifyEvent(url string, subID wire.SubscriptionId, ev *wire.Event)
	NotifyAuthenticated(url string)
}

// Client is the consumed contract the pool's fan-out engine dispatches
// against. It is implemented by *WSClient below; tests may substitute a
// fake.
type Client interface {
	URL() string
	Flags() *AtomicFlags
	Status() Status

	Connect(ctx context.Context) error
	TryConnect(ctx context.Context, timeout time.Duration) error
	Disconnect() error
	WaitForConnection(ctx context.Context, timeout time.Duration) error

	BatchMsg(ctx context.Context, msgs [][]byte) error
	SendEvent(ctx context.Context, ev *wire.Event) (wire.Id, error)

	SubscribeWithId(ctx context.Context, id wire.SubscriptionId, filters []*wire.Filter, opts SubscriptionOptions) error
	Unsubscribe(ctx context.Context, id wire.SubscriptionId) error
	UnsubscribeAll(ctx context.Context) error
	UpdateSubscription(id wire.SubscriptionId, filters []*wire.Filter, send bool) error

	FetchEventsWithCallback(ctx context.Context, filters []*wire.Filter, timeout time.Duration, policy FetchPolicy, onEvent func(*wire.Event)) error
	SyncMulti(ctx context.Context, items map[*wire.Filter][]wire.NegentropyItem, opts SyncOptions) (*wire.Reconciliation, error)

	SetNotificationSender(sender NotificationSender) error
}

// Option configures a Client at construction time, following the same
// ApplyXOption interface idiom used for pool- and subscription-level
// options.
type Option interface {
	ApplyRelayOption(*WSClient)
}

// WithLabel tags every subscription this client opens (absent an explicit
// per-subscription label) with a prefix, useful for log correlation.
type WithLabel string

func (w WithLabel) ApplyRelayOption(c *WSClient) { c.defaultLabel = string(w) }

// WithAssumeValid skips signature verification for events from this relay.
// The pool has no signer of its own (verification is out of scope per this
// module's boundary), so this only controls whether FetchEventsWithCallback
// logs a warning for obviously-too-short signatures; real verification is
// the caller's or EventStore's job.
type WithAssumeValid bool

func (w WithAssumeValid) ApplyRelayOption(c *WSClient) { c.assumeValid = bool(w) }

// WithDialTimeout overrides the default 7s connect timeout.
type WithDialTimeout time.Duration

func (w WithDialTimeout) ApplyRelayOption(c *WSClient) { c.dialTimeout = time.Duration(w) }

var (
	_ Option = WithLabel("")
	_ Option = WithAssumeValid(false)
	_ Option = WithDialTimeout(0)
)
