package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EmptyAddrIsNoOp(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	require.NotNil(t, c)

	// A no-op client must never panic, with or without tags.
	c.Incr("x")
	c.Gauge("y", 1.0)
	c.TimingMs("z", 2.5)
	assert.NoError(t, c.Close())
}

func TestNilClient_MethodsAreSafe(t *testing.T) {
	var c *Client
	c.Incr("x")
	c.Gauge("y", 1.0)
	c.TimingMs("z", 2.5)
	assert.NoError(t, c.Close())
}

func TestNew_DialsRealAgent(t *testing.T) {
	c, err := New("127.0.0.1:18125")
	require.NoError(t, err)
	require.NotNil(t, c)
	defer c.Close()

	// statsd sends are fire-and-forget UDP; this only verifies no panic.
	c.Incr("x")
}
