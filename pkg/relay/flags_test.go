package relay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServiceFlagsHasAny(t *testing.T) {
	f := Read | Write
	require.True(t, f.Has(Read))
	require.True(t, f.Has(Read|Write))
	require.False(t, f.Has(Read|Ping))
	require.True(t, f.Any(Ping|Write))
	require.False(t, f.Any(Ping|Discovery))
}

func TestServiceFlagsString(t *testing.T) {
	require.Equal(t, "none", ServiceFlags(0).String())
	require.Equal(t, "read|write", (Read | Write).String())
	require.Equal(t, "read|write|ping|gossip|discovery", (Read | Write | Ping | Gossip | Discovery).String())
}

func TestAtomicFlagsClear(t *testing.T) {
	af := NewAtomicFlags(Read | Write | Gossip)
	af.Clear(Read | Write)
	require.Equal(t, Gossip, af.Load())
}

func TestAtomicFlagsConcurrent(t *testing.T) {
	af := NewAtomicFlags(Read)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			af.Store(Read | Write)
			af.Clear(Write)
			_ = af.Load()
		}()
	}
	wg.Wait()
}
