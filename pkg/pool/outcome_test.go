package pool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutcomeOkErr(t *testing.T) {
	o := NewOutcome(struct{}{})
	o.Ok("relay-a")
	o.Err("relay-b", errors.New("boom"))

	require.Contains(t, o.Success, "relay-a")
	require.Equal(t, "boom", o.Failed["relay-b"])
	require.False(t, o.IsEmpty())
}

func TestOutcomeIsEmpty(t *testing.T) {
	o := NewOutcome(struct{}{})
	require.True(t, o.IsEmpty())
	o.Err("relay-a", errors.New("fail"))
	require.True(t, o.IsEmpty())
}

func TestOutcomeMerge(t *testing.T) {
	a := NewOutcome(struct{}{})
	a.Ok("relay-a")
	a.Err("relay-b", errors.New("first"))

	b := NewOutcome(struct{}{})
	b.Ok("relay-c")
	b.Err("relay-b", errors.New("second, should not overwrite"))

	a.Merge(b)
	require.Contains(t, a.Success, "relay-a")
	require.Contains(t, a.Success, "relay-c")
	require.Equal(t, "first", a.Failed["relay-b"])
}

func TestOutcomeMergeNil(t *testing.T) {
	a := NewOutcome(struct{}{})
	a.Ok("relay-a")
	a.Merge(nil)
	require.Len(t, a.Success, 1)
}
