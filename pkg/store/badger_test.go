package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"relaypool.dev/pkg/wire"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndGetEvent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ev := &wire.Event{ID: "abc", PubKey: "pk", Kind: 1, CreatedAt: 100, Content: "hi"}
	require.NoError(t, s.SaveEvent(ctx, ev))

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, ev.Content, got.Content)

	missing, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestSaveEventRejectsNil(t *testing.T) {
	s := openTestStore(t)
	require.Error(t, s.SaveEvent(context.Background(), nil))
}

func TestNegentropyItemsFiltersByFilterAndBounds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	events := []*wire.Event{
		{ID: "1", PubKey: "alice", Kind: 1, CreatedAt: 10},
		{ID: "2", PubKey: "alice", Kind: 1, CreatedAt: 20},
		{ID: "3", PubKey: "bob", Kind: 1, CreatedAt: 30},
	}
	for _, ev := range events {
		require.NoError(t, s.SaveEvent(ctx, ev))
	}

	filter := &wire.Filter{Authors: []string{"alice"}}
	items, err := s.NegentropyItems(ctx, filter)
	require.NoError(t, err)
	require.Len(t, items, 2)

	since := wire.Timestamp(15)
	bounded := &wire.Filter{Since: &since}
	items, err = s.NegentropyItems(ctx, bounded)
	require.NoError(t, err)
	ids := make(map[wire.Id]bool)
	for _, it := range items {
		ids[it.Id] = true
	}
	require.True(t, ids["2"])
	require.True(t, ids["3"])
	require.False(t, ids["1"])
}

func TestCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	require.NoError(t, s.SaveEvent(ctx, &wire.Event{ID: "1"}))
	require.NoError(t, s.SaveEvent(ctx, &wire.Event{ID: "2"}))

	n, err = s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestPath(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.Equal(t, dir, s.Path())
}
