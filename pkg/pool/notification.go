package pool

import (
	"sync"

	"relaypool.dev/pkg/relay"
	"relaypool.dev/pkg/wire"
)

// NotificationKind tags the variant carried by a Notification.
type NotificationKind int

const (
	NotifyRelayStatusChange NotificationKind = iota
	NotifyMessage
	NotifyEvent
	NotifyAuthenticated
	NotifyShutdown
)

// Notification is the single message type broadcast on the pool's bus; only
// the fields relevant to Kind are populated.
type Notification struct {
	Kind           NotificationKind
	RelayURL       string
	Status         relay.Status
	Raw            []byte
	SubscriptionId wire.SubscriptionId
	Event          *wire.Event
}

// NotificationBus is a lossy broadcast fan-out: each subscriber gets its own
// fixed-capacity channel, and a subscriber whose channel is full has each
// newly published notification silently dropped for it (the ones already
// queued are kept) rather than stalling publishers. Messages published
// before a receiver subscribes are never replayed to it.
type NotificationBus struct {
	mu          sync.Mutex
	subscribers map[int]chan Notification
	nextID      int
	bufferSize  int
}

// NewNotificationBus returns a bus whose subscriber channels each have the
// given buffer capacity.
func NewNotificationBus(bufferSize int) *NotificationBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &NotificationBus{subscribers: make(map[int]chan Notification), bufferSize: bufferSize}
}

// Subscribe returns a new receiver channel and an unsubscribe function.
func (b *NotificationBus) Subscribe() (<-chan Notification, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Notification, b.bufferSize)
	b.subscribers[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
	}
}

// Publish fans n out to every current subscriber. A subscriber whose buffer
// is full has this notification dropped for it rather than blocking the
// publisher — lossy by design, per the bus's contract.
func (b *NotificationBus) Publish(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- n:
		default:
		}
	}
}

// relayNotificationSender adapts NotificationBus to relay.NotificationSender
// so each RelayClient can publish onto the pool's bus without importing pool.
type relayNotificationSender struct {
	bus *NotificationBus
}

func (s relayNotificationSender) NotifyRelayStatusChange(url string, status relay.Status) {
	s.bus.Publish(Notification{Kind: NotifyRelayStatusChange, RelayURL: url, Status: status})
}

func (s relayNotificationSender) NotifyMessage(url string, raw []byte) {
	s.bus.Publish(Notification{Kind: NotifyMessage, RelayURL: url, Raw: raw})
}

func (s relayNotificationSender) NotifyEvent(url string, subID wire.SubscriptionId, ev *wire.Event) {
	s.bus.Publish(Notification{Kind: NotifyEvent, RelayURL: url, SubscriptionId: subID, Event: ev})
}

func (s relayNotificationSender) NotifyAuthenticated(url string) {
	s.bus.Publish(Notification{Kind: NotifyAuthenticated, RelayURL: url})
}

var _ relay.NotificationSender = relayNotificationSender{}
