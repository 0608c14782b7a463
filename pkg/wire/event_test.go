package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventReplaceableKinds(t *testing.T) {
	cases := []struct {
		kind        int
		replaceable bool
		parameterized bool
	}{
		{0, true, false},
		{3, true, false},
		{1, false, false},
		{10002, true, false},
		{19999, true, false},
		{20000, false, false},
		{30023, false, true},
		{39999, false, true},
		{40000, false, false},
	}
	for _, c := range cases {
		ev := &Event{Kind: c.kind}
		require.Equal(t, c.replaceable, ev.IsReplaceable(), "kind %d", c.kind)
		require.Equal(t, c.parameterized, ev.IsParameterizedReplaceable(), "kind %d", c.kind)
	}
}

func TestEventDTag(t *testing.T) {
	ev := &Event{Tags: Tags{{"e", "abc"}, {"d", "my-article"}}}
	require.Equal(t, "my-article", ev.DTag())

	ev2 := &Event{Tags: Tags{{"p", "xyz"}}}
	require.Equal(t, "", ev2.DTag())
}

func TestEventMarshalUnmarshalRoundTrip(t *testing.T) {
	ev := &Event{
		ID:        "abc123",
		PubKey:    "deadbeef",
		CreatedAt: Timestamp(1700000000),
		Kind:      1,
		Tags:      Tags{{"p", "xyz"}},
		Content:   "hello",
		Sig:       "sig",
	}
	b, err := ev.Marshal()
	require.NoError(t, err)

	var out Event
	require.NoError(t, out.Unmarshal(b))
	require.Equal(t, *ev, out)
}

func TestTagsContainsAny(t *testing.T) {
	tags := Tags{{"p", "alice"}, {"e", "ev1"}, {"p", "bob"}}
	require.True(t, tags.ContainsAny("p", []string{"bob"}))
	require.False(t, tags.ContainsAny("p", []string{"carol"}))
	require.False(t, tags.ContainsAny("t", []string{"alice"}))
}

func TestEventString(t *testing.T) {
	var nilEv *Event
	require.Equal(t, "<nil event>", nilEv.String())

	ev := &Event{ID: "0123456789abcdef", Kind: 1}
	require.Equal(t, "event(01234567 kind=1)", ev.String())
}
