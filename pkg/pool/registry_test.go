package pool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"relaypool.dev/pkg/wire"
)

func TestRelayRegistryAddGetRemove(t *testing.T) {
	r := NewRelayRegistry()
	c := newFakeClient("wss://a")

	require.True(t, r.Add("wss://a", c))
	require.False(t, r.Add("wss://a", c), "duplicate add should report false")
	require.Equal(t, 1, r.Len())

	got, ok := r.Get("wss://a")
	require.True(t, ok)
	require.Same(t, c, got)

	removed, ok := r.Remove("wss://a")
	require.True(t, ok)
	require.Same(t, c, removed)
	require.Equal(t, 0, r.Len())

	_, ok = r.Remove("wss://a")
	require.False(t, ok)
}

func TestRelayRegistryResolveAllOrNothing(t *testing.T) {
	r := NewRelayRegistry()
	r.Add("wss://a", newFakeClient("wss://a"))

	_, err := r.Resolve([]string{"wss://a", "wss://missing"})
	require.Error(t, err)

	got, err := r.Resolve([]string{"wss://a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestRelayRegistrySnapshotIsolation(t *testing.T) {
	r := NewRelayRegistry()
	r.Add("wss://a", newFakeClient("wss://a"))

	snap := r.Snapshot()
	r.Add("wss://b", newFakeClient("wss://b"))

	require.Len(t, snap, 1, "snapshot must not see later mutations")
	require.Len(t, r.Snapshot(), 2)
}

func TestSubscriptionRegistry(t *testing.T) {
	s := NewSubscriptionRegistry()
	id := wire.SubscriptionId("sub1")
	filters := []*wire.Filter{{Kinds: []int{1}}}

	s.Save(id, filters)
	got, ok := s.Get(id)
	require.True(t, ok)
	require.Equal(t, filters, got)

	snap := s.Snapshot()
	require.Len(t, snap, 1)

	s.Remove(id)
	_, ok = s.Get(id)
	require.False(t, ok)

	s.Save(id, filters)
	s.RemoveAll()
	require.Len(t, s.Snapshot(), 0)
}
