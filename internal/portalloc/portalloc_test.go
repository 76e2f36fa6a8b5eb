package portalloc

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFind_PrefersRequestedPort(t *testing.T) {
	// Grab an ephemeral port the OS considers free, release it, then ask for it.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	want := l.Addr().(*net.TCPAddr).Port
	l.Close()

	got, err := Find(want)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFind_FallsBackWhenOccupied(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	taken := l.Addr().(*net.TCPAddr).Port

	got, err := Find(taken)
	require.NoError(t, err)
	assert.NotEqual(t, taken, got)

	// The returned port must still be bindable.
	l2, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", got))
	require.NoError(t, err)
	l2.Close()
}

func TestFind_InvalidPreferred(t *testing.T) {
	_, err := Find(0)
	assert.Error(t, err)

	_, err = Find(-1)
	assert.Error(t, err)

	_, err = Find(70000)
	assert.Error(t, err)
}

func TestFind_NearTopOfRange(t *testing.T) {
	// Walking forward from 65535 has nowhere to go; the ephemeral fallback
	// must still produce a usable port when 65535 itself is occupied.
	l, err := net.Listen("tcp", "127.0.0.1:65535")
	if err != nil {
		t.Skip("port 65535 unavailable on this host")
	}
	defer l.Close()

	got, err := Find(65535)
	require.NoError(t, err)
	assert.NotEqual(t, 65535, got)
	assert.Positive(t, got)
}
