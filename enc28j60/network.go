package enc28j60

import (
	"context"
	"encoding/binary"
	"math"
	"net"
	"time"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/uipnet/uipethernet/memutils"
	"github.com/uipnet/uipethernet/memutils/metadata"
	"golang.org/x/exp/slog"
)

// ReceiveBufferHandle refers to the frame most recently returned by ReceivePacket. It aliases the chip's
// receive ring rather than a pool block, and stays valid until FreePacket.
const ReceiveBufferHandle metadata.BlockHandle = math.MaxUint8

const (
	receiveHeaderSize  = 6
	crcSize            = 4
	transmitStatusSize = 7

	defaultPollLimit       = 10000
	defaultTransmitRetries = 3
	resetDelay             = 50 * time.Millisecond
)

// CreateOptions contains optional settings when creating a Network
type CreateOptions struct {
	// ReceiveStop is the last address of the receive ring, which always starts at address 0. It must be odd.
	// The pool occupies the memory after it, less one byte reserved for the first block's control byte.
	ReceiveStop int
	// Pool holds the options for the block pool in the transmit region
	Pool metadata.CreateOptions
	// PollLimit bounds every busy-wait on a chip status bit (DMA, transmit, PHY)
	PollLimit int
	// TransmitRetries is the number of times a frame is resent after the chip reports a transmit error
	TransmitRetries int
	// Sleep is used to wait for the chip to come out of reset. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

type receivePacket struct {
	begin int
	size  int
	valid bool
}

// Network turns the chip's 8 KiB of buffer memory into packet storage. The memory below ReceiveStop is the
// hardware receive ring, which the chip fills with inbound frames; everything above it is a Pool of blocks
// used for outbound frames and for payload copied out of the ring. Copies between the two regions are
// performed by the chip's DMA engine, so payload bytes never cross the SPI bus.
type Network struct {
	logger *slog.Logger
	chip   chip

	ring            Ring
	pool            *metadata.Pool
	nextPacketPtr   int
	receivePkt      receivePacket
	dmaRunning      bool
	transmitRetries int

	checksumScratch      [32]byte
	transmitStatusBackup [transmitStatusSize]byte
}

var _ metadata.BlockStore = (*Network)(nil)

// New creates a Network on bus. Init must be called before the chip will receive frames.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, bus Bus, options CreateOptions) (*Network, error) {
	if bus == nil {
		return nil, errors.New("a network requires a bus")
	}

	if logger == nil {
		logger = slog.Default()
	}

	receiveStop := options.ReceiveStop
	if receiveStop == 0 {
		receiveStop = RXSTOP_INIT
	}

	if receiveStop%2 == 0 || receiveStop <= RXSTART_INIT || receiveStop >= TXSTOP_INIT-transmitStatusSize-1 {
		return nil, errors.Errorf("receive ring end 0x%04x must be odd and leave room for the pool", receiveStop)
	}

	pollLimit := options.PollLimit
	if pollLimit == 0 {
		pollLimit = defaultPollLimit
	}

	transmitRetries := options.TransmitRetries
	if transmitRetries == 0 {
		transmitRetries = defaultTransmitRetries
	}

	sleep := options.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	n := &Network{
		logger: logger,
		chip: chip{
			bus:       bus,
			pollLimit: pollLimit,
			sleep:     sleep,
		},
		ring:            Ring{Low: RXSTART_INIT, High: receiveStop + 1},
		nextPacketPtr:   RXSTART_INIT,
		transmitRetries: transmitRetries,
	}

	// The byte at receiveStop+1 holds the control byte for a block placed at the very start of the pool,
	// and the top of memory is kept clear for the status vector written after the last block
	poolStart := receiveStop + 2
	poolEnd := TXSTOP_INIT + 1 - transmitStatusSize
	pool, err := metadata.NewPool(logger, poolStart, poolEnd-poolStart, metadata.BlockMoverFunc(n.moveBlock), options.Pool)
	if err != nil {
		return nil, err
	}
	n.pool = pool

	return n, nil
}

// Init resets the chip and programs it for operation with the given hardware address: receive ring
// bounds, receive filters, MAC framing, inter-packet gaps, PHY and interrupt configuration. Reception is
// enabled when Init returns.
func (n *Network) Init(mac net.HardwareAddr) error {
	n.logger.Debug("Network::Init", slog.String("MAC", mac.String()))

	if len(mac) != 6 {
		return errors.Errorf("hardware address must be 6 bytes, received %d", len(mac))
	}

	n.nextPacketPtr = n.ring.Low
	n.receivePkt = receivePacket{}
	n.dmaRunning = false

	n.chip.bus.WriteOp(SOFT_RESET, 0, SOFT_RESET)
	n.chip.bank = 0
	// ESTAT.CLKRDY is unreliable after reset (Rev. B4 errata), so wait instead of polling it
	n.chip.sleep(resetDelay)

	n.chip.writeRegPair(ERXSTL, uint16(n.ring.Low))
	n.chip.writeRegPair(ERXNDL, uint16(n.ring.High-1))
	n.setERXRDPT()

	n.chip.writeRegPair(EPMM0, 0x303f)
	n.chip.writeRegPair(EPMCSL, 0xf7f9)
	n.chip.writeReg(ERXFCON, ERXFCON_UCEN|ERXFCON_CRCEN|ERXFCON_PMEN|ERXFCON_BCEN)

	n.chip.writeReg(MACON1, MACON1_MARXEN|MACON1_TXPAUS|MACON1_RXPAUS)
	n.chip.writeReg(MACON2, 0x00)
	n.chip.setBits(MACON3, MACON3_PADCFG0|MACON3_TXCRCEN|MACON3_FRMLNEN)
	n.chip.writeRegPair(MAIPGL, 0x0C12)
	n.chip.writeReg(MABBIPG, 0x12)
	n.chip.writeRegPair(MAMXFLL, MAX_FRAMELEN)

	n.chip.writeReg(MAADR5, mac[0])
	n.chip.writeReg(MAADR4, mac[1])
	n.chip.writeReg(MAADR3, mac[2])
	n.chip.writeReg(MAADR2, mac[3])
	n.chip.writeReg(MAADR1, mac[4])
	n.chip.writeReg(MAADR0, mac[5])

	if err := n.chip.phyWrite(PHCON2, PHCON2_HDLDIS); err != nil {
		return err
	}

	n.chip.setBits(EIE, EIE_INTIE|EIE_PKTIE)
	n.chip.setBits(ECON1, ECON1_RXEN)

	return n.chip.phyWrite(PHLCON, 0x476)
}

// HardwareAddr reads back the MAC address programmed into the chip
func (n *Network) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr{
		n.chip.readReg(MAADR5),
		n.chip.readReg(MAADR4),
		n.chip.readReg(MAADR3),
		n.chip.readReg(MAADR2),
		n.chip.readReg(MAADR1),
		n.chip.readReg(MAADR0),
	}
}

// Pool returns the block pool in the transmit region
func (n *Network) Pool() *metadata.Pool {
	return n.pool
}

// ReceiveRing returns the bounds of the hardware receive ring
func (n *Network) ReceiveRing() Ring {
	return n.ring
}

// ReceivePacket takes the next frame from the hardware receive ring. If a frame with a good receive status
// is pending, its payload (without the CRC) is exposed as ReceiveBufferHandle until FreePacket is called.
// Frames with a bad status are dropped and their ring space released immediately. NoBlock is returned when
// there is no good frame.
func (n *Network) ReceivePacket() metadata.BlockHandle {
	if n.chip.readReg(EPKTCNT) == 0 {
		return metadata.NoBlock
	}

	if err := n.checkDMA(); err != nil {
		n.logger.LogAttrs(context.Background(), slog.LevelError, "Network::ReceivePacket", slog.Any("error", err))
		return metadata.NoBlock
	}

	var header [receiveHeaderSize]byte
	readPtr := n.ring.Add(n.nextPacketPtr, receiveHeaderSize)
	n.chip.readBuffer(n.nextPacketPtr, header[:])

	next := int(binary.LittleEndian.Uint16(header[0:2]))
	length := int(binary.LittleEndian.Uint16(header[2:4])) - crcSize
	status := binary.LittleEndian.Uint16(header[4:6])

	n.nextPacketPtr = next
	n.chip.setBits(ECON2, ECON2_PKTDEC)

	if status&RSV_RXOK != 0 && length > 0 && n.ring.Contains(next) {
		n.receivePkt = receivePacket{begin: readPtr, size: length, valid: true}
		n.logger.Debug("Network::ReceivePacket", slog.Int("Begin", readPtr), slog.Int("Size", length))
		return ReceiveBufferHandle
	}

	n.logger.Warn("Network::ReceivePacket dropped bad frame",
		slog.Int("Status", int(status)), slog.Int("Size", length), slog.Int("Next", next))

	if !n.ring.Contains(next) {
		n.resetReceiver()
		return metadata.NoBlock
	}

	n.setERXRDPT()
	return metadata.NoBlock
}

// resetReceiver recovers from a corrupted receive header by discarding everything in the ring
func (n *Network) resetReceiver() {
	n.chip.clearBits(ECON1, ECON1_RXEN)
	n.chip.setBits(ECON1, ECON1_RXRST)
	n.chip.clearBits(ECON1, ECON1_RXRST)
	for n.chip.readReg(EPKTCNT) > 0 {
		n.chip.setBits(ECON2, ECON2_PKTDEC)
	}

	n.nextPacketPtr = n.ring.Low
	n.receivePkt = receivePacket{}
	n.chip.writeRegPair(ERXSTL, uint16(n.ring.Low))
	n.chip.writeRegPair(ERXNDL, uint16(n.ring.High-1))
	n.setERXRDPT()
	n.chip.setBits(ECON1, ECON1_RXEN)
}

// setERXRDPT releases ring space up to the current packet. The errata require ERXRDPT to be odd, which
// the byte before an (always even) packet start is.
func (n *Network) setERXRDPT() {
	n.chip.writeRegPair(ERXRDPTL, uint16(n.ring.Prev(n.nextPacketPtr)))
}

// FreePacket releases the ring space of the frame returned by ReceivePacket
func (n *Network) FreePacket() {
	if err := n.checkDMA(); err != nil {
		n.logger.LogAttrs(context.Background(), slog.LevelError, "Network::FreePacket", slog.Any("error", err))
	}

	n.setERXRDPT()
	n.receivePkt = receivePacket{}
}

// PendingPackets returns the number of frames waiting in the receive ring
func (n *Network) PendingPackets() int {
	return int(n.chip.readReg(EPKTCNT))
}

func (n *Network) blockRange(handle metadata.BlockHandle) (begin int, size int, inRing bool, err error) {
	if handle == ReceiveBufferHandle {
		if !n.receivePkt.valid {
			return 0, 0, true, cerrors.Wrapf(memutils.ErrInvalidHandle, "no received frame is held")
		}
		return n.receivePkt.begin, n.receivePkt.size, true, nil
	}

	begin, size, err = n.pool.BlockRange(handle)
	return begin, size, false, err
}

// AllocBlock reserves size bytes in the pool. The pool compacts itself through the DMA engine when
// necessary.
func (n *Network) AllocBlock(size int) metadata.BlockHandle {
	return n.pool.AllocBlock(size)
}

// FreeBlock releases a pool block, or the held frame when passed ReceiveBufferHandle
func (n *Network) FreeBlock(handle metadata.BlockHandle) error {
	if handle == ReceiveBufferHandle {
		n.FreePacket()
		return nil
	}

	return n.pool.FreeBlock(handle)
}

// ResizeBlock drops offset bytes from the front of a block or of the held frame
func (n *Network) ResizeBlock(handle metadata.BlockHandle, offset int) error {
	if handle == ReceiveBufferHandle {
		return n.TruncateBlock(handle, offset, n.receivePkt.size-offset)
	}

	return n.pool.ResizeBlock(handle, offset)
}

// TruncateBlock narrows a block or the held frame to size bytes starting offset bytes in
func (n *Network) TruncateBlock(handle metadata.BlockHandle, offset int, size int) error {
	if handle != ReceiveBufferHandle {
		return n.pool.TruncateBlock(handle, offset, size)
	}

	if !n.receivePkt.valid {
		return cerrors.Wrapf(memutils.ErrInvalidHandle, "no received frame is held")
	}

	if offset < 0 || size < 0 || offset+size > n.receivePkt.size {
		return cerrors.Wrapf(memutils.ErrBlockGrowth, "frame of %d bytes cannot become %d bytes at offset %d",
			n.receivePkt.size, size, offset)
	}

	n.receivePkt.begin = n.ring.Add(n.receivePkt.begin, offset)
	n.receivePkt.size = size
	return nil
}

// BlockSize returns the size of a block or of the held frame, or 0 if the handle is not live
func (n *Network) BlockSize(handle metadata.BlockHandle) int {
	_, size, _, err := n.blockRange(handle)
	if err != nil {
		return 0
	}
	return size
}

func (n *Network) address(begin int, pos int, inRing bool) int {
	addr := begin + pos
	if inRing {
		addr = n.ring.Add(begin, pos)
	}

	memutils.DebugCheckRange(addr, MEMORY_SIZE, "buffer address")
	return addr
}

// ReadPacket copies bytes starting pos bytes into a block into buf and returns the number of bytes read,
// which is clipped to the end of the block
func (n *Network) ReadPacket(handle metadata.BlockHandle, pos int, buf []byte) int {
	begin, size, inRing, err := n.blockRange(handle)
	if err != nil {
		return 0
	}

	length := memutils.ClipLength(pos, len(buf), size)
	if length == 0 {
		return 0
	}

	if err := n.checkDMA(); err != nil {
		n.logger.LogAttrs(context.Background(), slog.LevelError, "Network::ReadPacket", slog.Any("error", err))
		return 0
	}

	n.chip.readBuffer(n.address(begin, pos, inRing), buf[:length])
	return length
}

// WritePacket copies buf into a block starting pos bytes in and returns the number of bytes written, which
// is clipped to the end of the block. The held frame cannot be written.
func (n *Network) WritePacket(handle metadata.BlockHandle, pos int, buf []byte) int {
	if handle == ReceiveBufferHandle {
		return 0
	}

	begin, size, _, err := n.blockRange(handle)
	if err != nil {
		return 0
	}

	length := memutils.ClipLength(pos, len(buf), size)
	if length == 0 {
		return 0
	}

	if err := n.checkDMA(); err != nil {
		n.logger.LogAttrs(context.Background(), slog.LevelError, "Network::WritePacket", slog.Any("error", err))
		return 0
	}

	n.chip.writeBuffer(begin+pos, buf[:length])
	return length
}

// CopyPacket copies length bytes from srcPos bytes into src to destPos bytes into dest using the DMA
// engine, and returns the number of bytes copied, clipped to both blocks. The source may be the held
// frame, in which case the copy follows the receive ring around its end. The copy may still be running
// when CopyPacket returns; every later access to buffer memory waits for it.
func (n *Network) CopyPacket(dest metadata.BlockHandle, destPos int, src metadata.BlockHandle, srcPos int, length int) (int, error) {
	if dest == ReceiveBufferHandle {
		return 0, cerrors.Wrapf(ErrReceiveBufferReadOnly, "copying into the held frame")
	}

	destBegin, destSize, _, err := n.blockRange(dest)
	if err != nil {
		return 0, err
	}

	srcBegin, srcSize, srcInRing, err := n.blockRange(src)
	if err != nil {
		return 0, err
	}

	length = memutils.ClipLength(destPos, length, destSize)
	length = memutils.ClipLength(srcPos, length, srcSize)
	if length == 0 {
		return 0, nil
	}

	err = n.memoryMove(destBegin+destPos, n.address(srcBegin, srcPos, srcInRing), length, srcInRing)
	if err != nil {
		return 0, err
	}
	return length, nil
}

// SendPacket transmits a pool block as a frame. The byte in front of the block is used as the per-packet
// control byte: it is set to zero (use MACON3 settings) for the duration of the transmission and restored
// afterward, since it may belong to the previous block. The bytes the chip overwrites with its status
// vector after the frame are restored the same way.
func (n *Network) SendPacket(handle metadata.BlockHandle) error {
	if handle == ReceiveBufferHandle {
		return cerrors.Wrapf(ErrReceiveBufferReadOnly, "sending the held frame")
	}

	begin, size, _, err := n.blockRange(handle)
	if err != nil {
		return err
	}

	n.logger.Debug("Network::SendPacket", slog.Int("Handle", int(handle)), slog.Int("Size", size))

	if err := n.checkDMA(); err != nil {
		return err
	}

	start := begin - 1
	end := start + size

	control := n.chip.readByte(start)
	if control != 0 {
		n.chip.writeByte(start, 0)
	}

	// The chip writes its transmit status vector over the bytes following the frame
	statusEnd := end + 1 + transmitStatusSize
	if statusEnd > MEMORY_SIZE {
		statusEnd = MEMORY_SIZE
	}
	status := n.transmitStatusBackup[:statusEnd-end-1]
	if len(status) > 0 {
		n.chip.readBuffer(end+1, status)
	}

	n.chip.writeRegPair(ETXSTL, uint16(start))
	n.chip.writeRegPair(ETXNDL, uint16(end))

	err = n.transmit()

	if control != 0 {
		n.chip.writeByte(start, control)
	}
	if len(status) > 0 {
		n.chip.writeBuffer(end+1, status)
	}

	return err
}

func (n *Network) transmit() error {
	for attempt := 0; ; attempt++ {
		n.chip.clearBits(EIR, EIR_TXERIF|EIR_TXIF)
		n.chip.setBits(ECON1, ECON1_TXRTS)

		failed := false
		for i := 0; i < n.chip.pollLimit; i++ {
			if n.chip.readReg(EIR)&EIR_TXERIF != 0 {
				failed = true
				break
			}
			if n.chip.readReg(ECON1)&ECON1_TXRTS == 0 {
				return nil
			}
		}

		// Rev. B4 errata 12: a transmit error can leave TXRTS stuck, so reset the transmit logic
		n.chip.setBits(ECON1, ECON1_TXRST)
		n.chip.clearBits(ECON1, ECON1_TXRST)
		n.chip.clearBits(ECON1, ECON1_TXRTS)
		n.chip.clearBits(EIR, EIR_TXERIF)

		n.logger.Warn("Network::transmit recovered from transmit error",
			slog.Int("Attempt", attempt+1), slog.Bool("Stuck", !failed))

		if attempt+1 >= n.transmitRetries {
			return cerrors.Wrapf(ErrTransmit, "after %d attempts", attempt+1)
		}
	}
}

// Chksum adds the bytes of a block, starting pos bytes in, to a running internet checksum. The bytes are
// summed as big-endian 16-bit words with end-around carry; an odd trailing byte is the high byte of a
// final word. The result is not complemented, so sums over several ranges can be chained.
func (n *Network) Chksum(sum uint16, handle metadata.BlockHandle, pos int, length int) uint16 {
	begin, size, inRing, err := n.blockRange(handle)
	if err != nil {
		return sum
	}

	length = memutils.ClipLength(pos, length, size)
	if length == 0 {
		return sum
	}

	if err := n.checkDMA(); err != nil {
		n.logger.LogAttrs(context.Background(), slog.LevelError, "Network::Chksum", slog.Any("error", err))
		return sum
	}

	n.chip.writeRegPair(ERDPTL, uint16(n.address(begin, pos, inRing)))

	total := uint32(sum)
	for length > 0 {
		chunk := len(n.checksumScratch)
		if length < chunk {
			chunk = length
		}

		data := n.checksumScratch[:chunk]
		n.chip.bus.ReadBuffer(data)

		for i := 0; i+1 < chunk; i += 2 {
			total += uint32(data[i])<<8 | uint32(data[i+1])
		}
		if chunk%2 == 1 {
			total += uint32(data[chunk-1]) << 8
		}

		length -= chunk
	}

	for total > 0xffff {
		total = total&0xffff + total>>16
	}
	return uint16(total)
}

// LinkStatus reports whether the PHY has a link
func (n *Network) LinkStatus() bool {
	status, err := n.chip.phyRead(PHSTAT2)
	if err != nil {
		n.logger.Warn("Network::LinkStatus", slog.Any("error", err))
		return false
	}
	return status&PHSTAT2_LSTAT != 0
}

// Revision returns the silicon revision. Rev. B7 reports the same EREVID as B5 plus one, so values above 5
// are adjusted to the datasheet numbering.
func (n *Network) Revision() uint8 {
	rev := n.chip.readReg(EREVID)
	if rev > 5 {
		rev++
	}
	return rev
}

// SetClockOut programs the CLKOUT pin prescaler (0 disables the output)
func (n *Network) SetClockOut(prescaler uint8) {
	n.chip.writeReg(ECOCON, prescaler&0x7)
}

// PowerOff stops reception and puts the chip into power save mode once any frame in progress has been
// received or sent
func (n *Network) PowerOff() {
	n.logger.Debug("Network::PowerOff")

	n.chip.clearBits(ECON1, ECON1_RXEN)
	n.chip.waitClear(ESTAT, ESTAT_RXBUSY)
	n.chip.waitClear(ECON1, ECON1_TXRTS)
	n.chip.setBits(ECON2, ECON2_VRPS)
	n.chip.setBits(ECON2, ECON2_PWRSV)
}

// PowerOn leaves power save mode and re-enables reception
func (n *Network) PowerOn() {
	n.logger.Debug("Network::PowerOn")

	n.chip.clearBits(ECON2, ECON2_PWRSV)
	for i := 0; i < n.chip.pollLimit; i++ {
		if n.chip.readReg(ESTAT)&ESTAT_CLKRDY != 0 {
			break
		}
	}
	n.chip.setBits(ECON1, ECON1_RXEN)
}

// AddStatistics adds the pool's occupancy to stats
func (n *Network) AddStatistics(stats *memutils.Statistics) {
	n.pool.AddStatistics(stats)
}

// AddDetailedStatistics adds the pool's occupancy and layout to stats
func (n *Network) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	n.pool.AddDetailedStatistics(stats)
}

// PrintDetailedMap writes the receive ring state and the pool layout into json
func (n *Network) PrintDetailedMap(json jwriter.ObjectState) {
	receive := json.Name("ReceiveRing").Object()
	receive.Name("Start").Int(n.ring.Low)
	receive.Name("Stop").Int(n.ring.High - 1)
	receive.Name("NextPacket").Int(n.nextPacketPtr)
	receive.Name("Held").Bool(n.receivePkt.valid)
	receive.End()

	pool := json.Name("Pool").Object()
	n.pool.PrintDetailedMap(pool)
	pool.End()
}

// Destroy releases the held frame and reports any pool block that was never freed
func (n *Network) Destroy() error {
	n.logger.Debug("Network::Destroy")

	if n.receivePkt.valid {
		n.FreePacket()
	}

	if n.pool.IsEmpty() {
		return nil
	}

	err := n.pool.VisitAllRegions(func(handle metadata.BlockHandle, offset int, size int, free bool) error {
		if !free {
			n.logger.LogAttrs(context.Background(), slog.LevelError,
				"[UNRELEASED MEMORY] unfreed block",
				slog.Int("Handle", int(handle)),
				slog.Int("Offset", offset),
				slog.Int("Size", size))
		}
		return nil
	})
	if err != nil {
		return err
	}

	return cerrors.Wrapf(ErrUnreleasedBlocks, "%d blocks", n.pool.AllocationCount())
}
