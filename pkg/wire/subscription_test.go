package wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSubscriptionIdLabel(t *testing.T) {
	id := NewSubscriptionId("repl")
	require.True(t, strings.HasPrefix(string(id), "repl:"))

	anon := NewSubscriptionId("")
	require.False(t, strings.Contains(string(anon), ":"))
}

func TestNewSubscriptionIdUnique(t *testing.T) {
	seen := make(map[SubscriptionId]struct{})
	for i := 0; i < 100; i++ {
		id := NewSubscriptionId("x")
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}
