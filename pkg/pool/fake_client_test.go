package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"relaypool.dev/pkg/relay"
	"relaypool.dev/pkg/wire"
)

// fakeClient is a minimal in-memory relay.Client used to exercise the
// fan-out engine, aggregator and reconciliation driver without a real
// websocket relay on the other end.
type fakeClient struct {
	mu sync.Mutex

	url    string
	flags  *relay.AtomicFlags
	status *relay.AtomicStatus
	sender relay.NotificationSender

	failConnect   bool
	failSend      bool
	failSubscribe bool

	events []*wire.Event // events this relay will deliver on FetchEventsWithCallback

	syncResult *wire.Reconciliation
	syncErr    error

	sentEvents []*wire.Event
	subs       map[wire.SubscriptionId][]*wire.Filter
}

func newFakeClient(url string) *fakeClient {
	return &fakeClient{
		url:    url,
		flags:  relay.NewAtomicFlags(relay.Read | relay.Write),
		status: relay.NewAtomicStatus(),
		subs:   make(map[wire.SubscriptionId][]*wire.Filter),
	}
}

func (f *fakeClient) URL() string              { return f.url }
func (f *fakeClient) Flags() *relay.AtomicFlags { return f.flags }
func (f *fakeClient) Status() relay.Status      { return f.status.Load() }

func (f *fakeClient) Connect(ctx context.Context) error {
	if f.failConnect {
		return fmt.Errorf("connect failed")
	}
	f.status.Store(relay.Connected)
	return nil
}

func (f *fakeClient) TryConnect(ctx context.Context, timeout time.Duration) error {
	return f.Connect(ctx)
}

func (f *fakeClient) Disconnect() error {
	f.status.Store(relay.Disconnected)
	return nil
}

func (f *fakeClient) WaitForConnection(ctx context.Context, timeout time.Duration) error {
	return nil
}

func (f *fakeClient) BatchMsg(ctx context.Context, msgs [][]byte) error {
	if f.failSend {
		return fmt.Errorf("batch failed")
	}
	return nil
}

func (f *fakeClient) SendEvent(ctx context.Context, ev *wire.Event) (wire.Id, error) {
	if f.failSend {
		return "", fmt.Errorf("relay rejected event")
	}
	f.mu.Lock()
	f.sentEvents = append(f.sentEvents, ev)
	f.mu.Unlock()
	return ev.ID, nil
}

func (f *fakeClient) SubscribeWithId(ctx context.Context, id wire.SubscriptionId, filters []*wire.Filter, opts relay.SubscriptionOptions) error {
	if f.failSubscribe {
		return fmt.Errorf("subscribe failed")
	}
	f.mu.Lock()
	f.subs[id] = filters
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Unsubscribe(ctx context.Context, id wire.SubscriptionId) error {
	f.mu.Lock()
	delete(f.subs, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) UnsubscribeAll(ctx context.Context) error {
	f.mu.Lock()
	f.subs = make(map[wire.SubscriptionId][]*wire.Filter)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) UpdateSubscription(id wire.SubscriptionId, filters []*wire.Filter, send bool) error {
	f.mu.Lock()
	f.subs[id] = filters
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) FetchEventsWithCallback(ctx context.Context, filters []*wire.Filter, timeout time.Duration, policy relay.FetchPolicy, onEvent func(*wire.Event)) error {
	for _, ev := range f.events {
		for _, flt := range filters {
			if flt.Matches(ev) {
				onEvent(ev)
				break
			}
		}
	}
	return nil
}

func (f *fakeClient) SyncMulti(ctx context.Context, items map[*wire.Filter][]wire.NegentropyItem, opts relay.SyncOptions) (*wire.Reconciliation, error) {
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	if f.syncResult != nil {
		return f.syncResult, nil
	}
	return wire.NewReconciliation(), nil
}

func (f *fakeClient) SetNotificationSender(sender relay.NotificationSender) error {
	f.sender = sender
	return nil
}

var _ relay.Client = (*fakeClient)(nil)
