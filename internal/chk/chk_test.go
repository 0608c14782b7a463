package chk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEReportsNonNil(t *testing.T) {
	require.False(t, E(nil))
	require.True(t, E(errors.New("boom")))
}

func TestTReportsNonNil(t *testing.T) {
	require.False(t, T(nil))
	require.True(t, T(errors.New("boom")))
}
