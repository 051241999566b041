package uip_test

import (
	"io"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uipnet/uipethernet/uip"
)

func TestUDPReceive(t *testing.T) {
	s := newTestStack(t, uip.CreateOptions{})
	udp := s.NewUDP()
	require.NoError(t, udp.Begin(5000))

	first := pattern(20, 1)
	second := pattern(7, 100)
	require.True(t, s.chip.InjectFrame(udpFrame(t, 5000, 6000, first), true))
	require.True(t, s.chip.InjectFrame(udpFrame(t, 5000, 6001, second), true))

	require.Equal(t, 20, udp.ParsePacket())
	require.Equal(t, netip.AddrPortFrom(remoteAddr, 6000), udp.RemoteAddr())
	require.Equal(t, 20, udp.Available())

	buf := make([]byte, 8)
	require.Equal(t, 8, udp.Read(buf))
	require.Equal(t, first[:8], buf)
	require.Equal(t, 12, udp.Available())
	peeked, err := udp.PeekByte()
	require.NoError(t, err)
	require.Equal(t, first[8], peeked)

	// The rest of a datagram is discarded by the next ParsePacket
	require.Equal(t, 7, udp.ParsePacket())
	require.Equal(t, netip.AddrPortFrom(remoteAddr, 6001), udp.RemoteAddr())
	require.Equal(t, 7, udp.Read(buf))
	require.Equal(t, second, buf[:7])
	require.Equal(t, -1, udp.Read(buf))
	_, err = udp.ReadByte()
	require.ErrorIs(t, err, io.EOF)

	require.Zero(t, udp.ParsePacket())
	require.Zero(t, s.network.Pool().AllocationCount())
}

func TestUDPReceiveAcrossRingEnd(t *testing.T) {
	s := newTestStack(t, uip.CreateOptions{})
	udp := s.NewUDP()
	require.NoError(t, udp.Begin(5000))

	buf := make([]byte, 1200)
	for i, size := range []int{1000, 1000, 600} {
		payload := pattern(size, byte(i))
		require.True(t, s.chip.InjectFrame(udpFrame(t, 5000, 6000, payload), true))

		require.Equal(t, size, udp.ParsePacket())
		require.Equal(t, size, udp.Read(buf))
		require.Equal(t, payload, buf[:size])
	}

	require.Zero(t, s.network.Pool().AllocationCount())
}

func TestUDPQueueFullDropsDatagrams(t *testing.T) {
	s := newTestStack(t, uip.CreateOptions{NumPackets: 2})
	udp := s.NewUDP()
	require.NoError(t, udp.Begin(5000))

	for i := 0; i < 3; i++ {
		require.True(t, s.chip.InjectFrame(udpFrame(t, 5000, 6000, pattern(10+i, 0)), true))
	}
	s.pump(3)

	require.Equal(t, 10, udp.ParsePacket())
	require.Equal(t, 11, udp.ParsePacket())
	require.Zero(t, udp.ParsePacket())
	require.Equal(t, 3, s.engine.inputs)
}

func TestUDPIgnoresOtherPorts(t *testing.T) {
	s := newTestStack(t, uip.CreateOptions{})
	udp := s.NewUDP()
	require.NoError(t, udp.Begin(5000))

	require.True(t, s.chip.InjectFrame(udpFrame(t, 5001, 6000, pattern(10, 0)), true))
	require.Zero(t, udp.ParsePacket())
	require.Equal(t, 1, s.engine.inputs)
}

func TestUDPSend(t *testing.T) {
	s := newTestStack(t, uip.CreateOptions{UDPPacketSize: 32})
	udp := s.NewUDP()
	require.NoError(t, udp.Begin(5000))

	remote := netip.AddrPortFrom(remoteAddr, 7000)
	require.True(t, udp.BeginPacket(remote))
	require.Equal(t, 5, udp.Write([]byte("hello")))
	require.Equal(t, 6, udp.Write([]byte(" world")))
	require.True(t, udp.EndPacket())

	require.Len(t, s.engine.datagrams, 1)
	require.Equal(t, remote, s.engine.datagrams[0].remote)
	require.Equal(t, []byte("hello world"), s.engine.datagrams[0].payload)

	require.Len(t, s.chip.Sent, 1)
	header := make([]byte, linkHeaderSize+udpHeaderSize)
	require.Equal(t, append(header, []byte("hello world")...), s.chip.Sent[0].Frame)

	// Datagrams are clipped to UDPPacketSize
	require.True(t, udp.BeginPacket(remote))
	require.Equal(t, 32, udp.Write(pattern(40, 0)))
	require.True(t, udp.EndPacket())
	require.Len(t, s.engine.datagrams[1].payload, 32)

	// Nothing written, nothing sent
	require.True(t, udp.BeginPacket(remote))
	require.False(t, udp.EndPacket())
	require.False(t, udp.EndPacket())

	require.Zero(t, s.network.Pool().AllocationCount())
}

func TestUDPSocketLifecycle(t *testing.T) {
	s := newTestStack(t, uip.CreateOptions{MaxUDPConnections: 1})

	udp := s.NewUDP()
	require.False(t, udp.BeginPacket(netip.AddrPortFrom(remoteAddr, 7000)))
	require.NoError(t, udp.Begin(5000))
	require.ErrorIs(t, s.NewUDP().Begin(5001), uip.ErrNoSocket)

	require.True(t, s.chip.InjectFrame(udpFrame(t, 5000, 6000, pattern(10, 0)), true))
	require.True(t, s.chip.InjectFrame(udpFrame(t, 5000, 6000, pattern(10, 0)), true))
	require.Equal(t, 10, udp.ParsePacket())
	s.pump(1)
	require.True(t, udp.BeginPacket(netip.AddrPortFrom(remoteAddr, 7000)))

	udp.Stop()
	require.Zero(t, s.network.Pool().AllocationCount())
	require.Empty(t, s.engine.udp)
	require.Zero(t, udp.ParsePacket())

	// The socket is free again
	require.NoError(t, s.NewUDP().Begin(5001))
}

func TestUDPFlush(t *testing.T) {
	s := newTestStack(t, uip.CreateOptions{})
	udp := s.NewUDP()
	require.NoError(t, udp.Begin(5000))

	require.True(t, s.chip.InjectFrame(udpFrame(t, 5000, 6000, pattern(10, 0)), true))
	require.Equal(t, 10, udp.ParsePacket())

	udp.Flush()
	require.Zero(t, udp.Available())
	_, err := udp.PeekByte()
	require.ErrorIs(t, err, io.EOF)
	require.Zero(t, s.network.Pool().AllocationCount())
}
