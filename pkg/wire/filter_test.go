package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterMatches(t *testing.T) {
	since := Timestamp(100)
	until := Timestamp(200)
	f := &Filter{
		Authors: []string{"alice"},
		Kinds:   []int{1},
		Tags:    map[string][]string{"p": {"bob"}},
		Since:   &since,
		Until:   &until,
	}

	match := &Event{PubKey: "alice", Kind: 1, CreatedAt: 150, Tags: Tags{{"p", "bob"}}}
	require.True(t, f.Matches(match))

	wrongAuthor := &Event{PubKey: "carol", Kind: 1, CreatedAt: 150, Tags: Tags{{"p", "bob"}}}
	require.False(t, f.Matches(wrongAuthor))

	wrongKind := &Event{PubKey: "alice", Kind: 2, CreatedAt: 150, Tags: Tags{{"p", "bob"}}}
	require.False(t, f.Matches(wrongKind))

	missingTag := &Event{PubKey: "alice", Kind: 1, CreatedAt: 150, Tags: Tags{{"p", "dave"}}}
	require.False(t, f.Matches(missingTag))

	tooOld := &Event{PubKey: "alice", Kind: 1, CreatedAt: 50, Tags: Tags{{"p", "bob"}}}
	require.False(t, f.Matches(tooOld))

	tooNew := &Event{PubKey: "alice", Kind: 1, CreatedAt: 250, Tags: Tags{{"p", "bob"}}}
	require.False(t, f.Matches(tooNew))

	require.False(t, (*Filter)(nil).Matches(match))
	require.False(t, f.Matches(nil))
}

func TestFilterClone(t *testing.T) {
	since := Timestamp(10)
	limit := 5
	f := &Filter{
		IDs:     []Id{"a"},
		Authors: []string{"alice"},
		Kinds:   []int{1},
		Tags:    map[string][]string{"p": {"bob"}},
		Since:   &since,
		Limit:   &limit,
	}
	c := f.Clone()
	require.Equal(t, f.IDs, c.IDs)
	require.Equal(t, f.Tags, c.Tags)

	// mutating the clone must not affect the original
	c.IDs[0] = "b"
	c.Tags["p"][0] = "carol"
	*c.Since = 20
	require.Equal(t, Id("a"), f.IDs[0])
	require.Equal(t, "bob", f.Tags["p"][0])
	require.Equal(t, Timestamp(10), *f.Since)

	require.Nil(t, (*Filter)(nil).Clone())
}

func TestFilterJSONRoundTrip(t *testing.T) {
	f := &Filter{
		Authors: []string{"alice"},
		Tags:    map[string][]string{"p": {"bob", "carol"}, "e": {"ev1"}},
	}
	b, err := json.Marshal(f)
	require.NoError(t, err)

	var got Filter
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, f.Authors, got.Authors)
	require.Equal(t, f.Tags, got.Tags)
}
