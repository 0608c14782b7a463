package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"relaypool.dev/pkg/relay"
	"relaypool.dev/pkg/wire"
)

func newTestPool(t *testing.T) (*Pool, *fakeStore) {
	t.Helper()
	st := newFakeStore()
	p := New(st)
	return p, st
}

func TestSendEventToPreconditions(t *testing.T) {
	p, _ := newTestPool(t)
	ev := &wire.Event{ID: "1"}

	_, err := p.SendEventTo(context.Background(), nil, ev)
	require.Error(t, err, "no relays specified")

	_, err = p.SendEventTo(context.Background(), []string{"wss://missing"}, ev)
	require.Error(t, err, "empty registry")

	ok, err := p.AddRelay("wss://a", relay.Write, false)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = p.SendEventTo(context.Background(), []string{"wss://missing"}, ev)
	require.Error(t, err, "unregistered url should fail all-or-nothing")
}

func TestSendEventToSuccessAndPersistence(t *testing.T) {
	p, st := newTestPool(t)
	_, ok := addFakeRelay(t, p, "wss://a", relay.Write)
	require.True(t, ok)

	ev := &wire.Event{ID: "abc", Kind: 1}
	outcome, err := p.SendEventTo(context.Background(), []string{"wss://a"}, ev)
	require.NoError(t, err)
	require.Contains(t, outcome.Success, "wss://a")

	_, saved := st.events[ev.ID]
	require.True(t, saved, "event must be persisted before dispatch")
}

func TestSendEventToAllRelaysFail(t *testing.T) {
	p, _ := newTestPool(t)
	client, ok := addFakeRelay(t, p, "wss://a", relay.Write)
	require.True(t, ok)
	client.failSend = true

	ev := &wire.Event{ID: "abc"}
	outcome, err := p.SendEventTo(context.Background(), []string{"wss://a"}, ev)
	require.Error(t, err)
	require.True(t, outcome.IsEmpty())
}

func TestSendEventToPartialFailure(t *testing.T) {
	p, _ := newTestPool(t)
	good, ok := addFakeRelay(t, p, "wss://good", relay.Write)
	require.True(t, ok)
	_ = good
	bad, ok := addFakeRelay(t, p, "wss://bad", relay.Write)
	require.True(t, ok)
	bad.failSend = true

	ev := &wire.Event{ID: "abc"}
	outcome, err := p.SendEventTo(context.Background(), []string{"wss://good", "wss://bad"}, ev)
	require.NoError(t, err, "partial success is not a failure")
	require.Contains(t, outcome.Success, "wss://good")
	require.Contains(t, outcome.Failed, "wss://bad")
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	p, _ := newTestPool(t)
	_, ok := addFakeRelay(t, p, "wss://a", relay.Read)
	require.True(t, ok)

	filters := []*wire.Filter{{Kinds: []int{1}}}
	id, outcome, err := p.Subscribe(context.Background(), filters)
	require.NoError(t, err)
	require.Contains(t, outcome.Success, "wss://a")

	got, ok := p.subscriptions.Get(id)
	require.True(t, ok)
	require.Equal(t, filters, got)

	_, err = p.Unsubscribe(context.Background(), id)
	require.NoError(t, err)
	_, ok = p.subscriptions.Get(id)
	require.False(t, ok)
}

// addFakeRelay registers a fakeClient directly into p's registry, bypassing
// AddRelay's relay.NewWSClient construction so tests don't need a real
// websocket endpoint.
func addFakeRelay(t *testing.T, p *Pool, url string, flags relay.ServiceFlags) (*fakeClient, bool) {
	t.Helper()
	c := newFakeClient(url)
	c.flags.Store(flags)
	ok := p.registry.Add(url, c)
	return c, ok
}
