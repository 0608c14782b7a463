package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"trace": Trace,
		"DEBUG": Debug,
		"":      Info,
		"warn":  Warn,
		"error": Err,
		"fatal": Fatal,
		"off":   off,
		"huh":   Info,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestSetLevelGatesOutput(t *testing.T) {
	SetLevel(Warn)
	defer SetLevel(Info)

	require.False(t, enabled(Debug))
	require.True(t, enabled(Warn))
	require.True(t, enabled(Err))
}
