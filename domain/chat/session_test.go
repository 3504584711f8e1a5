package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOverflowPolicy(t *testing.T) {
	req := require.New(t)

	p, err := ParseOverflowPolicy("")
	req.NoError(err)
	req.Equal(Unbounded, p)

	p, err = ParseOverflowPolicy("drop-oldest")
	req.NoError(err)
	req.Equal(DropOldest, p)

	p, err = ParseOverflowPolicy("disconnect")
	req.NoError(err)
	req.Equal(Disconnect, p)

	_, err = ParseOverflowPolicy("block")
	req.Error(err)
}

func TestBackpressure_Bounded(t *testing.T) {
	req := require.New(t)
	req.False(Backpressure{}.Bounded())
	req.False(Backpressure{Capacity: 10, Policy: Unbounded}.Bounded())
	req.False(Backpressure{Capacity: 0, Policy: DropOldest}.Bounded())
	req.True(Backpressure{Capacity: 10, Policy: Disconnect}.Bounded())
}

func TestPrincipal(t *testing.T) {
	req := require.New(t)
	req.False(Anonymous.Authenticated())
	req.True(Principal("alice").Authenticated())
	req.Equal("anonymous", Anonymous.String())
}
