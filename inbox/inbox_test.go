package inbox

import (
	"fmt"
	"testing"

	"github.com/opd-ai/toxnet/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type visited struct {
	peer    uint32
	channel wire.ChannelID
	data    string
}

func collect(out *[]visited, remove bool) VisitFunc {
	return func(peer uint32, channel wire.ChannelID, data []byte) bool {
		*out = append(*out, visited{peer, channel, string(data)})
		return remove
	}
}

func TestPushAndLen(t *testing.T) {
	in := New()
	assert.True(t, in.Push(1, 0, []byte("a")))
	assert.True(t, in.Push(1, 2, []byte("b")))
	assert.True(t, in.Push(2, 0, []byte("c")))
	assert.False(t, in.Push(1, wire.MaxChannels, []byte("bad")))

	assert.Equal(t, 3, in.Len())
	assert.Equal(t, 2, in.LenPeer(1))
	assert.Equal(t, 1, in.LenPeerChannel(1, 2))
	assert.Equal(t, 0, in.LenPeerChannel(1, wire.MaxChannels))
	assert.Equal(t, 0, in.LenPeer(99))
}

func TestForEachRemoveAllEmpties(t *testing.T) {
	in := New()
	for i := 0; i < 5; i++ {
		in.Push(1, 0, []byte(fmt.Sprint(i)))
	}

	var seen []visited
	n := in.ForEach(collect(&seen, true))
	assert.Equal(t, 5, n)
	assert.Equal(t, 0, in.Len())
	require.Len(t, seen, 5)
	for i, v := range seen {
		assert.Equal(t, fmt.Sprint(i), v.data, "arrival order must be preserved")
	}

	assert.Equal(t, 0, in.ForEach(collect(&seen, true)))
}

func TestForEachKeepAllRetainsOrder(t *testing.T) {
	in := New()
	in.Push(1, 0, []byte("a"))
	in.Push(1, 0, []byte("b"))
	in.Push(1, 0, []byte("c"))

	var first, second []visited
	assert.Equal(t, 3, in.ForEach(collect(&first, false)))
	assert.Equal(t, 3, in.Len())
	assert.Equal(t, 3, in.ForEach(collect(&second, false)))
	assert.Equal(t, first, second)
}

func TestForEachSelectiveRemoval(t *testing.T) {
	in := New()
	for _, s := range []string{"keep1", "drop1", "keep2", "drop2"} {
		in.Push(3, 4, []byte(s))
	}

	n := in.ForEachPeerChannel(3, 4, func(_ uint32, _ wire.ChannelID, data []byte) bool {
		return string(data)[:4] == "drop"
	})
	assert.Equal(t, 4, n, "count reports visited, not removed")

	var rest []visited
	in.ForEach(collect(&rest, false))
	assert.Equal(t, []visited{{3, 4, "keep1"}, {3, 4, "keep2"}}, rest)
	assert.Equal(t, 2, in.Len())
}

func TestForEachStableCrossBucketOrder(t *testing.T) {
	in := New()
	in.Push(9, 1, []byte("p9c1"))
	in.Push(2, 5, []byte("p2c5"))
	in.Push(2, 0, []byte("p2c0"))
	in.Push(9, 0, []byte("p9c0"))

	var seen []visited
	in.ForEach(collect(&seen, false))
	assert.Equal(t, []visited{
		{2, 0, "p2c0"},
		{2, 5, "p2c5"},
		{9, 0, "p9c0"},
		{9, 1, "p9c1"},
	}, seen)
}

func TestForEachPeerScope(t *testing.T) {
	in := New()
	in.Push(1, 0, []byte("a"))
	in.Push(1, 9, []byte("b"))
	in.Push(2, 0, []byte("c"))

	var seen []visited
	assert.Equal(t, 2, in.ForEachPeer(1, collect(&seen, true)))
	assert.Equal(t, []visited{{1, 0, "a"}, {1, 9, "b"}}, seen)
	assert.Equal(t, 1, in.Len())
	assert.Equal(t, 0, in.ForEachPeer(42, collect(&seen, true)))
}

func TestForEachPeerChannelScope(t *testing.T) {
	in := New()
	in.Push(1, 0, []byte("a"))
	in.Push(1, 1, []byte("b"))

	var seen []visited
	assert.Equal(t, 1, in.ForEachPeerChannel(1, 1, collect(&seen, true)))
	assert.Equal(t, []visited{{1, 1, "b"}}, seen)
	assert.Equal(t, 0, in.ForEachPeerChannel(1, wire.MaxChannels, collect(&seen, true)))
	assert.Equal(t, 0, in.ForEachPeerChannel(5, 0, collect(&seen, true)))
	assert.Equal(t, 1, in.Len())
}

func TestClear(t *testing.T) {
	in := New()
	in.Push(1, 0, []byte("a"))
	in.Push(2, 3, []byte("b"))

	in.ClearPeer(1)
	assert.Equal(t, 1, in.Len())
	assert.Equal(t, 0, in.LenPeer(1))

	in.Clear()
	assert.Equal(t, 0, in.Len())
	assert.Equal(t, 0, in.ForEach(func(uint32, wire.ChannelID, []byte) bool { return true }))
}

func TestUnboundedGrowth(t *testing.T) {
	// no capacity bound: an undrained inbox keeps everything
	in := New()
	const n = 10000
	for i := 0; i < n; i++ {
		in.Push(1, wire.ChannelID(i%wire.MaxChannels), []byte{byte(i)})
	}
	assert.Equal(t, n, in.Len())
}
