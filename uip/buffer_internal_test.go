package uip

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleRing(t *testing.T) {
	ring := newHandleRing[uint8](3)
	require.True(t, ring.Empty())

	_, ok := ring.Front()
	require.False(t, ok)
	_, ok = ring.PopFront()
	require.False(t, ok)

	require.True(t, ring.Push(1))
	require.True(t, ring.Push(2))
	require.True(t, ring.Push(3))
	require.True(t, ring.Full())
	require.False(t, ring.Push(4))

	front, _ := ring.Front()
	back, _ := ring.Back()
	require.Equal(t, uint8(1), front)
	require.Equal(t, uint8(3), back)

	popped, ok := ring.PopFront()
	require.True(t, ok)
	require.Equal(t, uint8(1), popped)

	// Wraps around the end of its slots
	require.True(t, ring.Push(4))
	require.Equal(t, 3, ring.Len())
	require.Equal(t, []uint8{2, 3, 4}, []uint8{ring.At(0), ring.At(1), ring.At(2)})

	for _, expected := range []uint8{2, 3, 4} {
		popped, ok = ring.PopFront()
		require.True(t, ok)
		require.Equal(t, expected, popped)
	}
	require.True(t, ring.Empty())
}
