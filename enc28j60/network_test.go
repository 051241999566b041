package enc28j60_test

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/uipnet/uipethernet/enc28j60"
	"github.com/uipnet/uipethernet/enc28j60/enc28j60sim"
	"github.com/uipnet/uipethernet/memutils"
	"github.com/uipnet/uipethernet/memutils/metadata"
	"golang.org/x/exp/slog"
)

var testMAC = net.HardwareAddr{0x02, 0x00, 0x5e, 0x10, 0x20, 0x30}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout))
}

func newNetwork(t *testing.T, chip *enc28j60sim.Chip, options enc28j60.CreateOptions) *enc28j60.Network {
	options.Sleep = func(time.Duration) {}

	network, err := enc28j60.New(testLogger(), chip, options)
	require.NoError(t, err)
	require.NoError(t, network.Init(testMAC))
	return network
}

func pattern(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = seed + byte(i*7)
	}
	return data
}

// receive injects a frame, takes it from the ring, checks its contents and releases it
func receive(t *testing.T, chip *enc28j60sim.Chip, network *enc28j60.Network, frame []byte) {
	require.True(t, chip.InjectFrame(frame, true))
	require.Equal(t, enc28j60.ReceiveBufferHandle, network.ReceivePacket())

	buf := make([]byte, len(frame))
	require.Equal(t, len(frame), network.ReadPacket(enc28j60.ReceiveBufferHandle, 0, buf))
	require.Equal(t, frame, buf)
	network.FreePacket()
}

func referenceChecksum(data []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(data); i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if len(data)%2 == 1 {
		sum += uint32(data[len(data)-1]) << 8
	}
	for sum > 0xffff {
		sum = sum&0xffff + sum>>16
	}
	return uint16(sum)
}

func TestNetworkInit(t *testing.T) {
	chip := enc28j60sim.New()
	network := newNetwork(t, chip, enc28j60.CreateOptions{})

	require.Equal(t, 1, chip.Resets)
	require.Equal(t, 0x0000, chip.RegisterPair(enc28j60.ERXSTL))
	require.Equal(t, 0x07FF, chip.RegisterPair(enc28j60.ERXNDL))
	// The read pointer must always be odd
	require.Equal(t, 0x07FF, chip.RegisterPair(enc28j60.ERXRDPTL))
	require.Equal(t, enc28j60.MAX_FRAMELEN, chip.RegisterPair(enc28j60.MAMXFLL))
	require.Equal(t, uint16(enc28j60.PHCON2_HDLDIS), chip.Phy(enc28j60.PHCON2))
	require.Equal(t, uint16(0x476), chip.Phy(enc28j60.PHLCON))
	require.NotZero(t, chip.Register(enc28j60.ECON1)&enc28j60.ECON1_RXEN)

	require.Equal(t, testMAC, network.HardwareAddr())
	require.Equal(t, enc28j60.Ring{Low: 0, High: 0x800}, network.ReceiveRing())

	require.Equal(t, 0x801, network.Pool().Start())
	require.Equal(t, enc28j60.MEMORY_SIZE-7-0x801, network.Pool().Size())
}

func TestNetworkRejectsBadLayout(t *testing.T) {
	_, err := enc28j60.New(testLogger(), enc28j60sim.New(), enc28j60.CreateOptions{ReceiveStop: 0x0800})
	require.Error(t, err)

	_, err = enc28j60.New(testLogger(), nil, enc28j60.CreateOptions{})
	require.Error(t, err)

	network, err := enc28j60.New(testLogger(), enc28j60sim.New(), enc28j60.CreateOptions{})
	require.NoError(t, err)
	require.Error(t, network.Init(net.HardwareAddr{1, 2, 3}))
}

func TestNetworkReceive(t *testing.T) {
	chip := enc28j60sim.New()
	network := newNetwork(t, chip, enc28j60.CreateOptions{})

	require.Equal(t, metadata.NoBlock, network.ReceivePacket())

	frame := pattern(60, 3)
	require.True(t, chip.InjectFrame(frame, true))
	require.Equal(t, 1, network.PendingPackets())

	handle := network.ReceivePacket()
	require.Equal(t, enc28j60.ReceiveBufferHandle, handle)
	require.Equal(t, 0, chip.PacketCount())
	require.Equal(t, 60, network.BlockSize(handle))

	buf := make([]byte, 100)
	require.Equal(t, 60, network.ReadPacket(handle, 0, buf))
	require.Equal(t, frame, buf[:60])

	require.Equal(t, 10, network.ReadPacket(handle, 50, buf))
	require.Equal(t, frame[50:], buf[:10])
	require.Equal(t, 0, network.ReadPacket(handle, 60, buf))

	// Ring space is held until the frame is freed
	require.Equal(t, 0x07FF, chip.RegisterPair(enc28j60.ERXRDPTL))
	network.FreePacket()
	require.Equal(t, 69, chip.RegisterPair(enc28j60.ERXRDPTL))
	require.Equal(t, 0, network.BlockSize(handle))
}

func TestNetworkReceiveDropsBadFrames(t *testing.T) {
	chip := enc28j60sim.New()
	network := newNetwork(t, chip, enc28j60.CreateOptions{})

	require.True(t, chip.InjectFrame(pattern(40, 1), false))
	require.Equal(t, metadata.NoBlock, network.ReceivePacket())
	require.Equal(t, 0, chip.PacketCount())
	require.Equal(t, 49, chip.RegisterPair(enc28j60.ERXRDPTL))

	receive(t, chip, network, pattern(40, 2))
}

func TestNetworkReceiveAcrossRingEnd(t *testing.T) {
	chip := enc28j60sim.New()
	network := newNetwork(t, chip, enc28j60.CreateOptions{})

	receive(t, chip, network, pattern(1000, 1))
	receive(t, chip, network, pattern(1000, 2))

	// This frame starts 22 bytes before the end of the ring
	frame := pattern(100, 9)
	require.True(t, chip.InjectFrame(frame, true))
	require.Equal(t, enc28j60.ReceiveBufferHandle, network.ReceivePacket())

	buf := make([]byte, 100)
	require.Equal(t, 100, network.ReadPacket(enc28j60.ReceiveBufferHandle, 0, buf))
	require.Equal(t, frame, buf)

	block := network.AllocBlock(100)
	require.NotEqual(t, metadata.NoBlock, block)

	copied, err := network.CopyPacket(block, 0, enc28j60.ReceiveBufferHandle, 0, 100)
	require.NoError(t, err)
	require.Equal(t, 100, copied)

	buf = make([]byte, 100)
	require.Equal(t, 100, network.ReadPacket(block, 0, buf))
	require.Equal(t, frame, buf)

	require.Equal(t, network.Chksum(0, enc28j60.ReceiveBufferHandle, 0, 100), network.Chksum(0, block, 0, 100))
	require.Equal(t, referenceChecksum(frame), network.Chksum(0, block, 0, 100))

	network.FreePacket()
	require.NoError(t, network.FreeBlock(block))
	require.Equal(t, 0, chip.Dropped)
}

func TestNetworkTruncateHeldFrame(t *testing.T) {
	chip := enc28j60sim.New()
	network := newNetwork(t, chip, enc28j60.CreateOptions{})

	frame := pattern(60, 4)
	require.True(t, chip.InjectFrame(frame, true))
	handle := network.ReceivePacket()

	require.NoError(t, network.ResizeBlock(handle, 14))
	require.Equal(t, 46, network.BlockSize(handle))

	buf := make([]byte, 46)
	require.Equal(t, 46, network.ReadPacket(handle, 0, buf))
	require.Equal(t, frame[14:], buf)

	require.ErrorIs(t, network.TruncateBlock(handle, 0, 47), memutils.ErrBlockGrowth)
	require.ErrorIs(t, network.ResizeBlock(handle, -1), memutils.ErrBlockGrowth)

	require.NoError(t, network.TruncateBlock(handle, 6, 20))
	require.Equal(t, 20, network.ReadPacket(handle, 0, buf))
	require.Equal(t, frame[20:40], buf[:20])

	require.NoError(t, network.FreeBlock(handle))
	require.ErrorIs(t, network.ResizeBlock(handle, 0), memutils.ErrInvalidHandle)
}

func TestNetworkReceiveBufferIsReadOnly(t *testing.T) {
	chip := enc28j60sim.New()
	network := newNetwork(t, chip, enc28j60.CreateOptions{})

	require.True(t, chip.InjectFrame(pattern(60, 5), true))
	handle := network.ReceivePacket()

	require.Equal(t, 0, network.WritePacket(handle, 0, []byte{1, 2, 3}))

	block := network.AllocBlock(10)
	_, err := network.CopyPacket(handle, 0, block, 0, 10)
	require.ErrorIs(t, err, enc28j60.ErrReceiveBufferReadOnly)
	require.ErrorIs(t, network.SendPacket(handle), enc28j60.ErrReceiveBufferReadOnly)

	network.FreePacket()
	_, err = network.CopyPacket(block, 0, handle, 0, 10)
	require.ErrorIs(t, err, memutils.ErrInvalidHandle)
	require.NoError(t, network.FreeBlock(block))
}

func TestNetworkWriteAndCopyAreClipped(t *testing.T) {
	chip := enc28j60sim.New()
	network := newNetwork(t, chip, enc28j60.CreateOptions{})

	first := network.AllocBlock(16)
	second := network.AllocBlock(8)

	require.Equal(t, 16, network.WritePacket(first, 0, pattern(20, 1)))
	require.Equal(t, 6, network.WritePacket(first, 10, pattern(20, 2)))
	require.Equal(t, 0, network.WritePacket(first, 16, pattern(1, 3)))

	copied, err := network.CopyPacket(second, 2, first, 4, 16)
	require.NoError(t, err)
	require.Equal(t, 6, copied)

	copied, err = network.CopyPacket(second, 0, first, 15, 1)
	require.NoError(t, err)
	require.Equal(t, 1, copied)

	expected := make([]byte, 16)
	network.ReadPacket(first, 0, expected)

	buf := make([]byte, 8)
	require.Equal(t, 8, network.ReadPacket(second, 0, buf))
	require.Equal(t, expected[15], buf[0])
	require.Equal(t, expected[4:10], buf[2:8])

	require.NoError(t, network.FreeBlock(first))
	require.NoError(t, network.FreeBlock(second))
	require.NoError(t, network.Destroy())
}

func TestNetworkSendPacket(t *testing.T) {
	chip := enc28j60sim.New()
	network := newNetwork(t, chip, enc28j60.CreateOptions{})

	before := network.AllocBlock(100)
	frame := network.AllocBlock(60)
	after := network.AllocBlock(100)

	beforeData := pattern(100, 1)
	beforeData[99] = 0x42
	afterData := pattern(100, 2)
	frameData := pattern(60, 3)

	network.WritePacket(before, 0, beforeData)
	network.WritePacket(frame, 0, frameData)
	network.WritePacket(after, 0, afterData)

	require.NoError(t, network.SendPacket(frame))
	require.Len(t, chip.Sent, 1)
	require.Equal(t, byte(0), chip.Sent[0].Control)
	require.Equal(t, frameData, chip.Sent[0].Frame)

	// The control byte borrowed from the previous block and the status vector written over the next
	// block are both restored
	buf := make([]byte, 100)
	network.ReadPacket(before, 0, buf)
	require.Equal(t, beforeData, buf)
	network.ReadPacket(after, 0, buf)
	require.Equal(t, afterData, buf)

	require.NoError(t, network.FreeBlock(before))
	require.NoError(t, network.FreeBlock(frame))
	require.NoError(t, network.FreeBlock(after))
}

func TestNetworkTransmitErrorRecovery(t *testing.T) {
	testCases := map[string]struct {
		Errors      int
		ExpectError bool
		ExpectSent  int
	}{
		"NoErrors": {
			Errors:     0,
			ExpectSent: 1,
		},
		"RecoversWithinRetries": {
			Errors:     2,
			ExpectSent: 1,
		},
		"GivesUp": {
			Errors:      3,
			ExpectError: true,
			ExpectSent:  0,
		},
	}

	for testName, testCase := range testCases {
		t.Run(testName, func(t *testing.T) {
			chip := enc28j60sim.New()
			network := newNetwork(t, chip, enc28j60.CreateOptions{TransmitRetries: 3})

			block := network.AllocBlock(42)
			network.WritePacket(block, 0, pattern(42, 6))

			chip.InjectTransmitErrors(testCase.Errors)
			err := network.SendPacket(block)
			if testCase.ExpectError {
				require.ErrorIs(t, err, enc28j60.ErrTransmit)
			} else {
				require.NoError(t, err)
			}

			require.Len(t, chip.Sent, testCase.ExpectSent)
			require.Zero(t, chip.Register(enc28j60.ECON1)&enc28j60.ECON1_TXRTS)
			require.NoError(t, network.FreeBlock(block))
		})
	}
}

func TestNetworkWaitsForDMA(t *testing.T) {
	chip := enc28j60sim.New()
	chip.DMALatency = 5
	network := newNetwork(t, chip, enc28j60.CreateOptions{})

	src := network.AllocBlock(200)
	dst := network.AllocBlock(200)
	data := pattern(200, 8)
	network.WritePacket(src, 0, data)

	_, err := network.CopyPacket(dst, 0, src, 0, 200)
	require.NoError(t, err)
	require.True(t, chip.DMABusy())

	buf := make([]byte, 200)
	require.Equal(t, 200, network.ReadPacket(dst, 0, buf))
	require.Equal(t, data, buf)
	require.Equal(t, referenceChecksum(data), network.Chksum(0, dst, 0, 200))
	require.Zero(t, chip.Violations)
}

func TestNetworkDMATimeout(t *testing.T) {
	chip := enc28j60sim.New()
	chip.DMALatency = 1000
	network := newNetwork(t, chip, enc28j60.CreateOptions{PollLimit: 10})

	src := network.AllocBlock(20)
	dst := network.AllocBlock(20)

	_, err := network.CopyPacket(dst, 0, src, 0, 20)
	require.NoError(t, err)

	_, err = network.CopyPacket(dst, 0, src, 0, 20)
	require.ErrorIs(t, err, enc28j60.ErrDMATimeout)
	require.False(t, chip.DMABusy())
	require.Zero(t, chip.Violations)
}

func TestNetworkCompactsThroughDMA(t *testing.T) {
	chip := enc28j60sim.New()
	chip.DMALatency = 3
	network := newNetwork(t, chip, enc28j60.CreateOptions{})

	var handles []metadata.BlockHandle
	for i := 0; i < 6; i++ {
		handle := network.AllocBlock(1000)
		require.NotEqual(t, metadata.NoBlock, handle)
		network.WritePacket(handle, 0, pattern(1000, byte(i)))
		handles = append(handles, handle)
	}

	for i := 0; i < 6; i += 2 {
		require.NoError(t, network.FreeBlock(handles[i]))
	}

	large := network.AllocBlock(2500)
	require.NotEqual(t, metadata.NoBlock, large)
	require.Equal(t, 1, network.Pool().CompactionStats().Passes)

	buf := make([]byte, 1000)
	for i := 1; i < 6; i += 2 {
		require.Equal(t, 1000, network.ReadPacket(handles[i], 0, buf))
		require.Equal(t, pattern(1000, byte(i)), buf, "block %d", i)
	}
	require.Zero(t, chip.Violations)
	require.NoError(t, network.Pool().Validate())
}

func TestNetworkChksum(t *testing.T) {
	chip := enc28j60sim.New()
	network := newNetwork(t, chip, enc28j60.CreateOptions{})

	header := []byte{
		0x45, 0x00, 0x00, 0x73, 0x00, 0x00, 0x40, 0x00, 0x40, 0x11,
		0x00, 0x00, 0xc0, 0xa8, 0x00, 0x01, 0xc0, 0xa8, 0x00, 0xc7,
	}
	block := network.AllocBlock(len(header))
	network.WritePacket(block, 0, header)

	// The complement of the header sum is the well-known checksum 0xb861
	require.Equal(t, uint16(0xb861), ^network.Chksum(0, block, 0, len(header)))

	data := pattern(101, 0x99)
	odd := network.AllocBlock(len(data))
	network.WritePacket(odd, 0, data)

	whole := network.Chksum(0, odd, 0, len(data))
	require.Equal(t, referenceChecksum(data), whole)
	require.Equal(t, whole, network.Chksum(network.Chksum(0, odd, 0, 40), odd, 40, 1000))

	// Invalid handles leave the sum alone
	require.Equal(t, uint16(0x1234), network.Chksum(0x1234, metadata.BlockHandle(9), 0, 10))
}

func TestNetworkLinkAndPower(t *testing.T) {
	chip := enc28j60sim.New()
	network := newNetwork(t, chip, enc28j60.CreateOptions{})

	require.True(t, network.LinkStatus())
	chip.Link = false
	require.False(t, network.LinkStatus())

	require.Equal(t, uint8(7), network.Revision())
	chip.Revision = 4
	require.Equal(t, uint8(4), network.Revision())

	network.PowerOff()
	require.Zero(t, chip.Register(enc28j60.ECON1)&enc28j60.ECON1_RXEN)
	require.NotZero(t, chip.Register(enc28j60.ECON2)&enc28j60.ECON2_PWRSV)
	require.False(t, chip.InjectFrame(pattern(60, 1), true))

	network.PowerOn()
	require.NotZero(t, chip.Register(enc28j60.ECON1)&enc28j60.ECON1_RXEN)
	require.Zero(t, chip.Register(enc28j60.ECON2)&enc28j60.ECON2_PWRSV)
	receive(t, chip, network, pattern(60, 2))
}

func TestNetworkDestroyReportsLeaks(t *testing.T) {
	chip := enc28j60sim.New()
	network := newNetwork(t, chip, enc28j60.CreateOptions{})

	block := network.AllocBlock(64)
	require.ErrorIs(t, network.Destroy(), enc28j60.ErrUnreleasedBlocks)

	require.NoError(t, network.FreeBlock(block))
	require.NoError(t, network.Destroy())
}

func TestNetworkDetailedMap(t *testing.T) {
	chip := enc28j60sim.New()
	network := newNetwork(t, chip, enc28j60.CreateOptions{})

	network.AllocBlock(64)

	writer := jwriter.NewWriter()
	obj := writer.Object()
	network.PrintDetailedMap(obj)
	obj.End()
	require.NoError(t, writer.Error())

	require.JSONEq(t, `{
  "ReceiveRing": {"Start": 0, "Stop": 2047, "NextPacket": 0, "Held": false},
  "Pool": {
    "Start": 2049,
    "TotalBytes": 6136,
    "UnusedBytes": 6072,
    "Allocations": 1,
    "FreeHandles": 15,
    "Compaction": {"Passes": 0, "BytesMoved": 0, "AllocationsMoved": 0},
    "Regions": [
      {"Offset": 2049, "Size": 64, "Type": "BLOCK", "Handle": 1},
      {"Offset": 2113, "Size": 6072, "Type": "FREE"}
    ]
  }
}`, string(writer.Bytes()))
}
